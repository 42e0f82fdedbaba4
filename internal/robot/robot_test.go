package robot

import (
	"context"
	"errors"
	"testing"

	"github.com/lancer-robotics/minibot/internal/protocol"
)

func dispatch(t *testing.T, r *Robot, tx *fakeTransport, payload []byte) Outcome {
	t.Helper()
	return r.Dispatch(context.Background(), Datagram{Payload: payload, Addr: testAddr}, tx)
}

func TestNewRobotDefaults(t *testing.T) {
	r := New("R1", nil)
	s := r.Snapshot()

	if s.Status != GameStatusStandby {
		t.Errorf("initial status = %v, want standby", s.Status)
	}
	if s.Controller != NeutralControllerState() {
		t.Errorf("initial controller = %+v, want neutral", s.Controller)
	}
	if s.Connected || s.EmergencyStop {
		t.Errorf("unexpected flags in %+v", s)
	}
}

func TestMalformedDatagramsAreIdempotentDrops(t *testing.T) {
	payloads := [][]byte{
		nil,
		{},
		[]byte("garbage"),
		[]byte("R2:teleop"),
		[]byte("R1teleop"),
		{0x00},
		{1, 2, 3},
		make([]byte, 9),
	}

	for _, p := range payloads {
		r := New("R1", nil)
		tx := &fakeTransport{}
		before := r.Snapshot()

		dispatch(t, r, tx, p)
		dispatch(t, r, tx, p)

		after := r.Snapshot()
		if after.Status != before.Status || after.Controller != before.Controller || after.Connected != before.Connected {
			t.Errorf("payload %q changed state: %+v -> %+v", p, before, after)
		}
		if len(tx.replies()) != 0 {
			t.Errorf("payload %q produced replies %v", p, tx.replies())
		}
	}
}

func TestControlFrameAuthorizationGate(t *testing.T) {
	frame := protocol.BuildControlFrame(protocol.ControlFrame{
		LeftX: 10, LeftY: 20, RightX: 30, RightY: 40,
		Aux1: 50, Aux2: 60,
		Buttons0: protocol.ButtonCircle | protocol.ButtonSquare,
		Buttons1: 0xFF,
	})

	tests := []struct {
		name    string
		status  string
		outcome Outcome
		applied bool
	}{
		{name: "standby drops", status: "standby", outcome: OutcomeFrameUnauthorized},
		{name: "unknown drops", status: "garbage", outcome: OutcomeFrameUnauthorized},
		{name: "teleop applies", status: "teleop", outcome: OutcomeFrameApplied, applied: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New("R1", nil)
			tx := &fakeTransport{}
			dispatch(t, r, tx, protocol.BuildStatusCommand("R1", tt.status))

			if got := dispatch(t, r, tx, frame); got != tt.outcome {
				t.Fatalf("outcome = %v, want %v", got, tt.outcome)
			}

			c := r.Controller()
			if !tt.applied {
				if c != NeutralControllerState() {
					t.Errorf("controller changed while unauthorized: %+v", c)
				}
				return
			}
			want := ControllerState{
				LeftX: 10, LeftY: 20, RightX: 30, RightY: 40,
				Circle: true, Square: true,
			}
			if c != want {
				t.Errorf("controller = %+v, want %+v", c, want)
			}
		})
	}
}

func TestFrameStateSurvivesLeavingTeleop(t *testing.T) {
	r := New("R1", nil)
	tx := &fakeTransport{}
	dispatch(t, r, tx, []byte("R1:teleop"))
	dispatch(t, r, tx, protocol.BuildControlFrame(protocol.ControlFrame{LeftX: 1, LeftY: 2, RightX: 3, RightY: 4, Buttons0: protocol.ButtonCross}))
	dispatch(t, r, tx, []byte("R1:standby"))
	dispatch(t, r, tx, protocol.BuildControlFrame(protocol.ControlFrame{LeftX: 200, LeftY: 200, RightX: 200, RightY: 200}))

	want := ControllerState{LeftX: 1, LeftY: 2, RightX: 3, RightY: 4, Cross: true}
	if c := r.Controller(); c != want {
		t.Errorf("controller = %+v, want %+v", c, want)
	}
}

func TestHandshakeExactlyOnce(t *testing.T) {
	r := New("R1", nil)
	tx := &fakeTransport{}

	if got := dispatch(t, r, tx, []byte("ping")); got != OutcomeHandshake {
		t.Fatalf("first ping outcome = %v, want handshake", got)
	}
	other := &fakeTransport{}
	if got := r.Dispatch(context.Background(), Datagram{Payload: []byte("ping"), Addr: testAddr}, other); got != OutcomePingIgnored {
		t.Fatalf("second ping outcome = %v, want ping_ignored", got)
	}

	replies := tx.replies()
	if len(replies) != 1 || len(other.replies()) != 0 {
		t.Fatalf("replies = %v / %v, want exactly one", replies, other.replies())
	}
	if replies[0].payload != "pong:R1" {
		t.Errorf("reply = %q, want pong:R1", replies[0].payload)
	}
	if replies[0].addr.String() != testAddr.String() {
		t.Errorf("reply sent to %s, want %s", replies[0].addr, testAddr)
	}
	if !r.Connected() {
		t.Error("connection flag not set")
	}
}

func TestHandshakeNulTerminatedPing(t *testing.T) {
	r := New("R1", nil)
	tx := &fakeTransport{}
	if got := dispatch(t, r, tx, []byte("ping\x00\x00")); got != OutcomeHandshake {
		t.Fatalf("outcome = %v, want handshake", got)
	}
}

func TestHandshakeSendFailureStillSetsFlag(t *testing.T) {
	r := New("R1", nil)
	tx := &fakeTransport{sendErr: errors.New("network unreachable")}

	dispatch(t, r, tx, []byte("ping"))
	dispatch(t, r, tx, []byte("ping"))

	if !r.Connected() {
		t.Error("connection flag not set after failed send")
	}
	if n := len(tx.replies()); n != 1 {
		t.Errorf("send attempts = %d, want 1", n)
	}
}

func TestPingDoesNotChangeStatus(t *testing.T) {
	r := New("R1", nil)
	tx := &fakeTransport{}
	dispatch(t, r, tx, []byte("R1:teleop"))
	dispatch(t, r, tx, []byte("ping"))
	dispatch(t, r, tx, []byte("ping"))
	if r.Status() != GameStatusTeleop {
		t.Errorf("status = %v, want teleop", r.Status())
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		start   string
		command string
		want    GameStatus
	}{
		{name: "teleop", command: "R1:teleop", want: GameStatusTeleop},
		{name: "standby", start: "R1:teleop", command: "R1:standby", want: GameStatusStandby},
		{name: "garbage", command: "R1:garbage", want: GameStatusUnknown},
		{name: "empty suffix", command: "R1:", want: GameStatusUnknown},
		{name: "case sensitive", command: "R1:Teleop", want: GameStatusUnknown},
		{name: "wrong identity", start: "R1:teleop", command: "X:teleop", want: GameStatusTeleop},
		{name: "wrong identity from standby", command: "X:teleop", want: GameStatusStandby},
		{name: "foreign robot standby", start: "R1:teleop", command: "R9:standby", want: GameStatusTeleop},
		{name: "no separator", start: "R1:teleop", command: "R1teleopp", want: GameStatusTeleop},
		{name: "unknown then teleop", start: "R1:???", command: "R1:teleop", want: GameStatusTeleop},
		{name: "trailing newline", command: "R1:teleop\n", want: GameStatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New("R1", nil)
			tx := &fakeTransport{}
			if tt.start != "" {
				dispatch(t, r, tx, []byte(tt.start))
			}
			dispatch(t, r, tx, []byte(tt.command))
			if got := r.Status(); got != tt.want {
				t.Errorf("status = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPollReadsAtMostOneDatagram(t *testing.T) {
	r := New("R1", nil)
	tx := &fakeTransport{}
	ctx := context.Background()

	if got := r.Poll(ctx, tx); got != OutcomeNone {
		t.Fatalf("empty poll outcome = %v, want none", got)
	}

	tx.push([]byte("R1:teleop"), testAddr)
	tx.push([]byte("ping"), testAddr)

	if got := r.Poll(ctx, tx); got != OutcomeStatusAssigned {
		t.Fatalf("first poll = %v, want status_assigned", got)
	}
	if r.Connected() {
		t.Fatal("second datagram consumed by first poll")
	}
	if got := r.Poll(ctx, tx); got != OutcomeHandshake {
		t.Fatalf("second poll = %v, want handshake", got)
	}
}

func TestCounters(t *testing.T) {
	r := New("R1", nil)
	tx := &fakeTransport{}
	frame := make([]byte, protocol.ControlFrameSize)

	dispatch(t, r, tx, frame)
	dispatch(t, r, tx, []byte("R1:teleop"))
	dispatch(t, r, tx, frame)
	dispatch(t, r, tx, []byte("ping"))
	dispatch(t, r, tx, []byte("ping"))
	dispatch(t, r, tx, []byte("hello"))
	dispatch(t, r, tx, make([]byte, 400))

	want := Counters{
		FramesApplied:  1,
		FramesDropped:  1,
		PingsAnswered:  1,
		StatusCommands: 1,
		Ignored:        3,
		Truncated:      1,
	}
	if got := r.Snapshot().Counters; got != want {
		t.Errorf("counters = %+v, want %+v", got, want)
	}
}

func TestEmergencyStopLatch(t *testing.T) {
	r := New("R1", nil)
	tx := &fakeTransport{}
	dispatch(t, r, tx, []byte("R1:teleop"))

	r.SetEmergencyStop(context.Background(), true, "test")
	if !r.Snapshot().EmergencyStop {
		t.Fatal("e-stop not latched")
	}
	if r.Status() != GameStatusTeleop {
		t.Errorf("e-stop changed status to %v", r.Status())
	}

	r.SetEmergencyStop(context.Background(), false, "test")
	if r.Snapshot().EmergencyStop {
		t.Error("e-stop not released")
	}
}

func TestParseGameStatus(t *testing.T) {
	tests := map[string]GameStatus{
		"standby": GameStatusStandby,
		"teleop":  GameStatusTeleop,
		"":        GameStatusUnknown,
		"auto":    GameStatusUnknown,
		"TELEOP":  GameStatusUnknown,
	}
	for in, want := range tests {
		if got := ParseGameStatus(in); got != want {
			t.Errorf("ParseGameStatus(%q) = %v, want %v", in, got, want)
		}
	}
}
