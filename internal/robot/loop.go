package robot

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lancer-robotics/minibot/internal/protocol"
)

// Default loop timing.
const (
	DefaultPollInterval    = 5 * time.Millisecond
	DefaultControlInterval = 20 * time.Millisecond
	DefaultDeadzone        = 0.1
)

// LoopConfig controls the cooperative tick rates.
type LoopConfig struct {
	PollInterval    time.Duration
	ControlInterval time.Duration
	Deadzone        float64
}

// DriveCommand is one control-tick's worth of actuator targets.
type DriveCommand struct {
	Left       float64 `json:"left"`
	Right      float64 `json:"right"`
	Aux        float64 `json:"aux"`
	ServoAngle int     `json:"servo_angle"`
	Neutral    bool    `json:"neutral"`
}

// ComputeDrive maps a snapshot to actuator targets. Outside teleop, or
// with the e-stop latched, every target is neutral. In teleop the sticks
// give tank drive (stick up is forward), triangle/cross run the aux motor
// forward/backward and the right stick X positions the servo.
func ComputeDrive(s Snapshot, deadzone float64) DriveCommand {
	if s.EmergencyStop || s.Status != GameStatusTeleop {
		return DriveCommand{Neutral: true}
	}

	c := s.Controller
	cmd := DriveCommand{
		Left:  -applyDeadzone(NormalizeAxis(c.LeftY), deadzone),
		Right: -applyDeadzone(NormalizeAxis(c.RightY), deadzone),
	}

	switch {
	case c.Triangle && !c.Cross:
		cmd.Aux = 1
	case c.Cross && !c.Triangle:
		cmd.Aux = -1
	}

	steer := applyDeadzone(NormalizeAxis(c.RightX), deadzone)
	cmd.ServoAngle = int(math.Round(steer * ServoMaxAngle))
	return cmd
}

// NormalizeAxis maps a raw axis byte to [-1, 1] around AxisNeutral.
func NormalizeAxis(v uint8) float64 {
	n := (float64(v) - float64(protocol.AxisNeutral)) / float64(protocol.AxisNeutral)
	return math.Max(-1, math.Min(1, n))
}

func applyDeadzone(v, deadzone float64) float64 {
	if math.Abs(v) < deadzone {
		return 0
	}
	return v
}

// Loop is the single cooperative control loop: on each poll tick it
// dispatches at most one datagram, on each control tick it drives the
// actuators from the robot state. Both run on the goroutine calling Run.
type Loop struct {
	robot     *Robot
	transport Transport
	actuators *Actuators
	cfg       LoopConfig
}

// NewLoop wires a robot, its transport and its actuators.
func NewLoop(r *Robot, tx Transport, act *Actuators, cfg LoopConfig) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ControlInterval <= 0 {
		cfg.ControlInterval = DefaultControlInterval
	}
	if cfg.Deadzone < 0 {
		cfg.Deadzone = 0
	}
	return &Loop{
		robot:     r,
		transport: tx,
		actuators: act,
		cfg:       cfg,
	}
}

// Run stops all motors, then ticks until ctx is cancelled, and stops all
// motors again on the way out.
func (l *Loop) Run(ctx context.Context) error {
	l.actuators.StopAllMotors()
	defer l.actuators.StopAllMotors()

	pollTicker := time.NewTicker(l.cfg.PollInterval)
	defer pollTicker.Stop()
	controlTicker := time.NewTicker(l.cfg.ControlInterval)
	defer controlTicker.Stop()

	log.Info().
		Str("robot_id", l.robot.ID()).
		Dur("poll_interval", l.cfg.PollInterval).
		Dur("control_interval", l.cfg.ControlInterval).
		Msg("control loop started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("robot_id", l.robot.ID()).Msg("control loop stopping")
			return nil
		case <-pollTicker.C:
			l.robot.Poll(ctx, l.transport)
		case <-controlTicker.C:
			l.Drive()
		}
	}
}

// Drive performs one control tick and returns the command it applied.
func (l *Loop) Drive() DriveCommand {
	cmd := ComputeDrive(l.robot.Snapshot(), l.cfg.Deadzone)
	if cmd.Neutral {
		l.actuators.StopAllMotors()
		return cmd
	}

	l.actuators.DriveLeftMotor(cmd.Left)
	l.actuators.DriveRightMotor(cmd.Right)
	l.actuators.DriveAuxMotor(cmd.Aux)
	l.actuators.DriveServo(cmd.ServoAngle)
	return cmd
}
