package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lancer-robotics/minibot/internal/events"
	"github.com/lancer-robotics/minibot/internal/robot"
)

func runConsole(t *testing.T, r *robot.Robot, bus *events.EventBus, input string) string {
	t.Helper()
	var out bytes.Buffer
	c := NewCLI(r, bus, strings.NewReader(input), &out)

	done := make(chan struct{})
	go func() {
		c.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("console did not exit")
	}
	return out.String()
}

func TestStatusTable(t *testing.T) {
	r := robot.New("R1", nil)
	r.Dispatch(context.Background(), robot.Datagram{Payload: []byte("R1:teleop")}, nil)

	out := runConsole(t, r, nil, "status\n")
	for _, want := range []string{"R1", "teleop", "Status commands"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestControllerTable(t *testing.T) {
	r := robot.New("R1", nil)
	out := runConsole(t, r, nil, "controller\n")
	if !strings.Contains(out, "127") || !strings.Contains(out, "-") {
		t.Errorf("controller output:\n%s", out)
	}
}

func TestEStopCommands(t *testing.T) {
	r := robot.New("R1", nil)

	runConsole(t, r, nil, "estop\n")
	if !r.Snapshot().EmergencyStop {
		t.Fatal("estop not latched")
	}

	out := runConsole(t, r, nil, "release\n")
	if !r.Snapshot().EmergencyStop {
		t.Error("release without confirm cleared the latch")
	}
	if !strings.Contains(out, "usage: release confirm") {
		t.Errorf("missing usage hint:\n%s", out)
	}

	runConsole(t, r, nil, "RELEASE confirm\n")
	if r.Snapshot().EmergencyStop {
		t.Error("release confirm did not clear the latch")
	}
}

func TestQuitEmitsShutdownAndStops(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Stop()

	got := make(chan events.Event, 1)
	bus.Subscribe(events.EventShutdown, "test", func(ctx context.Context, e events.Event) error {
		got <- e
		return nil
	})

	r := robot.New("R1", nil)
	out := runConsole(t, r, bus, "quit\nestop\n")

	select {
	case e := <-got:
		if e.Source != "cli" {
			t.Errorf("source = %q, want cli", e.Source)
		}
	case <-time.After(time.Second):
		t.Fatal("shutdown event not emitted")
	}
	if r.Snapshot().EmergencyStop {
		t.Error("commands after quit were executed")
	}
	if !strings.Contains(out, "Shutting down") {
		t.Errorf("output:\n%s", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	out := runConsole(t, robot.New("R1", nil), nil, "\n  \nfly\nhelp\n")
	if !strings.Contains(out, "Unknown command: 'fly'") {
		t.Errorf("output:\n%s", out)
	}
	if !strings.Contains(out, "release confirm") {
		t.Errorf("help missing:\n%s", out)
	}
}
