package robot

import (
	"context"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lancer-robotics/minibot/internal/events"
	"github.com/lancer-robotics/minibot/internal/protocol"
)

// Datagram is one received payload together with its sender.
type Datagram struct {
	Payload []byte
	Addr    *net.UDPAddr
}

// Sender transmits a best-effort datagram.
type Sender interface {
	Send(addr *net.UDPAddr, payload []byte) error
}

// Transport is the non-blocking datagram primitive the robot polls.
// TryReceive returns false when nothing is pending.
type Transport interface {
	Sender
	TryReceive() (Datagram, bool)
}

// Outcome records what Dispatch did with a datagram.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeDropped
	OutcomeFrameApplied
	OutcomeFrameUnauthorized
	OutcomeHandshake
	OutcomePingIgnored
	OutcomeStatusAssigned
	OutcomeIgnored
)

var outcomeStrings = map[Outcome]string{
	OutcomeNone:              "none",
	OutcomeDropped:           "dropped",
	OutcomeFrameApplied:      "frame_applied",
	OutcomeFrameUnauthorized: "frame_unauthorized",
	OutcomeHandshake:         "handshake",
	OutcomePingIgnored:       "ping_ignored",
	OutcomeStatusAssigned:    "status_assigned",
	OutcomeIgnored:           "ignored",
}

// String returns the string representation of Outcome.
func (o Outcome) String() string {
	if s, ok := outcomeStrings[o]; ok {
		return s
	}
	return "unknown"
}

// Robot owns the per-instance control state of one minibot. Dispatch is
// the only writer of controller state, game status and the connection
// flag; readers take a Snapshot.
type Robot struct {
	mu sync.RWMutex

	id         string
	status     GameStatus
	controller ControllerState
	connected  bool
	estop      bool
	counters   Counters

	eventBus *events.EventBus
	logger   zerolog.Logger
}

// New creates a robot in standby with neutral controls. eventBus may be nil.
func New(id string, eventBus *events.EventBus) *Robot {
	return &Robot{
		id:         id,
		status:     GameStatusStandby,
		controller: NeutralControllerState(),
		eventBus:   eventBus,
		logger:     log.With().Str("component", "robot").Str("robot_id", id).Logger(),
	}
}

// ID returns the robot identity.
func (r *Robot) ID() string {
	return r.id
}

// Poll reads at most one pending datagram and dispatches it. It returns
// OutcomeNone when the transport had nothing.
func (r *Robot) Poll(ctx context.Context, tx Transport) Outcome {
	d, ok := tx.TryReceive()
	if !ok {
		return OutcomeNone
	}
	return r.Dispatch(ctx, d, tx)
}

// Dispatch classifies one datagram and applies it. Malformed, unauthorized
// and foreign datagrams are dropped without error. A discovery reply, if
// due, is sent through tx before Dispatch returns.
func (r *Robot) Dispatch(ctx context.Context, d Datagram, tx Sender) Outcome {
	pkt := protocol.Classify(d.Payload)
	if pkt.Truncated {
		r.mu.Lock()
		r.counters.Truncated++
		r.mu.Unlock()
	}

	switch pkt.Kind {
	case protocol.KindControl:
		return r.applyFrame(pkt.Frame)
	case protocol.KindText:
		return r.handleText(ctx, pkt.Text, d.Addr, tx)
	default:
		return OutcomeDropped
	}
}

func (r *Robot) applyFrame(f protocol.ControlFrame) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != GameStatusTeleop {
		r.counters.FramesDropped++
		return OutcomeFrameUnauthorized
	}

	r.controller.apply(f)
	r.counters.FramesApplied++
	return OutcomeFrameApplied
}

func (r *Robot) handleText(ctx context.Context, text string, addr *net.UDPAddr, tx Sender) Outcome {
	if text == protocol.DiscoveryPing {
		return r.handleDiscovery(ctx, addr, tx)
	}

	suffix, ok := protocol.StatusSuffix(text, r.id)
	if !ok {
		r.mu.Lock()
		r.counters.Ignored++
		r.mu.Unlock()
		r.logger.Trace().Str("text", text).Msg("ignoring text command")
		return OutcomeIgnored
	}

	next := ParseGameStatus(suffix)

	r.mu.Lock()
	prev := r.status
	r.status = next
	r.counters.StatusCommands++
	r.mu.Unlock()

	if prev != next {
		r.logger.Info().
			Str("previous", prev.String()).
			Str("current", next.String()).
			Msg("game status changed")
	}

	r.emit(ctx, events.EventStatusChanged, events.StatusChangedPayload{
		RobotID:  r.id,
		Previous: prev.String(),
		Current:  next.String(),
		Raw:      suffix,
	})
	return OutcomeStatusAssigned
}

func (r *Robot) handleDiscovery(ctx context.Context, addr *net.UDPAddr, tx Sender) Outcome {
	r.mu.Lock()
	if r.connected {
		r.counters.Ignored++
		r.mu.Unlock()
		return OutcomePingIgnored
	}
	r.connected = true
	r.counters.PingsAnswered++
	r.mu.Unlock()

	remote := ""
	if addr != nil {
		remote = addr.String()
	}

	if tx != nil && addr != nil {
		if err := tx.Send(addr, protocol.BuildDiscoveryReply(r.id)); err != nil {
			r.logger.Warn().Err(err).Str("remote", remote).Msg("failed to send discovery reply")
		}
	}

	r.logger.Info().Str("remote", remote).Msg("answered discovery ping")
	r.emit(ctx, events.EventHandshake, events.HandshakePayload{
		RobotID: r.id,
		Remote:  remote,
	})
	return OutcomeHandshake
}

// SetEmergencyStop sets or releases the e-stop latch. The control loop
// holds every actuator at neutral while it is set. Game status is not
// touched.
func (r *Robot) SetEmergencyStop(ctx context.Context, active bool, by string) {
	r.mu.Lock()
	changed := r.estop != active
	r.estop = active
	r.mu.Unlock()

	if !changed {
		return
	}

	r.logger.Warn().Bool("active", active).Str("by", by).Msg("emergency stop changed")
	r.emit(ctx, events.EventEmergencyStop, events.EmergencyStopPayload{
		RobotID: r.id,
		Active:  active,
		By:      by,
	})
}

// Status returns the current game status.
func (r *Robot) Status() GameStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Controller returns a copy of the controller state.
func (r *Robot) Controller() ControllerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.controller
}

// Connected reports whether the discovery handshake has completed.
func (r *Robot) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

// Snapshot returns a consistent copy of the robot state.
func (r *Robot) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		RobotID:       r.id,
		Status:        r.status,
		Controller:    r.controller,
		Connected:     r.connected,
		EmergencyStop: r.estop,
		Counters:      r.counters,
	}
}

func (r *Robot) emit(ctx context.Context, t events.EventType, payload interface{}) {
	if r.eventBus == nil {
		return
	}
	// Handlers run after the caller returns; a request context must not
	// cancel them.
	r.eventBus.Emit(context.WithoutCancel(ctx), events.Event{
		Type:    t,
		Source:  "robot:" + r.id,
		Payload: payload,
	})
}
