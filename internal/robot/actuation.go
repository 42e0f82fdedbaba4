package robot

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/lancer-robotics/minibot/internal/events"
)

// Motor and servo calibration shared by every channel.
const (
	SpeedMultiplier = 20.0
	MotorDutyLimit  = 20.0

	ServoMinAngle = -50
	ServoMaxAngle = 50

	// Servo pulse width in ms is ServoPulsePerDegree*angle + ServoPulseCenter,
	// expressed as a fraction of a ServoPeriodMs period.
	ServoPulsePerDegree = 0.01
	ServoPulseCenter    = 1.5
	ServoPeriodMs       = 10.0

	DefaultFullScaleDuty = 65535
)

// DutyWriter is the hardware actuation sink. WriteDuty reports whether the
// hardware accepted the value.
type DutyWriter interface {
	WriteDuty(channel int, duty int) bool
}

// Calibration fixes one actuator's pin and PWM offset.
type Calibration struct {
	Channel   int
	PWMOffset int
}

// Channel drives one actuator through a DutyWriter.
type Channel struct {
	name  string
	cal   Calibration
	sink  DutyWriter
	bus   *events.EventBus
	scale int

	// failing is set while the sink keeps rejecting writes.
	failing atomic.Bool
}

// NewChannel creates an actuation channel. fullScale is the duty value of
// a 100% cycle; zero selects DefaultFullScaleDuty.
func NewChannel(name string, cal Calibration, sink DutyWriter, fullScale int) *Channel {
	if fullScale <= 0 {
		fullScale = DefaultFullScaleDuty
	}
	return &Channel{
		name:  name,
		cal:   cal,
		sink:  sink,
		scale: fullScale,
	}
}

// MotorDuty maps a normalized speed to an absolute duty value:
// round(clamp(value*SpeedMultiplier, ±MotorDutyLimit)) + offset.
// NaN is treated as zero.
func MotorDuty(value float64, offset int) int {
	if math.IsNaN(value) {
		value = 0
	}
	v := value * SpeedMultiplier
	if v > MotorDutyLimit {
		v = MotorDutyLimit
	} else if v < -MotorDutyLimit {
		v = -MotorDutyLimit
	}
	return int(math.Round(v)) + offset
}

// ServoDuty maps an angle to a duty value. ok is false outside
// [ServoMinAngle, ServoMaxAngle].
func ServoDuty(angle int, fullScale int) (duty int, ok bool) {
	if angle < ServoMinAngle || angle > ServoMaxAngle {
		return 0, false
	}
	pulseMs := ServoPulsePerDegree*float64(angle) + ServoPulseCenter
	return int(pulseMs / ServoPeriodMs * float64(fullScale)), true
}

// DriveMotor writes a clamped motor duty. It always writes and returns the
// sink's own result.
func (c *Channel) DriveMotor(value float64) bool {
	duty := MotorDuty(value, c.cal.PWMOffset)
	ok := c.sink.WriteDuty(c.cal.Channel, duty)
	c.track(ok, duty)
	return ok
}

// DriveServo writes a servo angle. Out-of-range angles are rejected with
// no write. The sink's result is not part of the return value.
func (c *Channel) DriveServo(angle int) bool {
	duty, ok := ServoDuty(angle, c.scale)
	if !ok {
		log.Debug().Str("actuator", c.name).Int("angle", angle).Msg("servo angle out of range")
		c.emit(events.EventServoRejected, events.ServoRejectedPayload{
			Channel: c.cal.Channel,
			Angle:   angle,
		})
		return false
	}
	c.track(c.sink.WriteDuty(c.cal.Channel, duty), duty)
	return true
}

// track reports a failure once when the sink starts rejecting writes and
// logs the recovery on the next accepted write.
func (c *Channel) track(ok bool, duty int) {
	if ok {
		if c.failing.Swap(false) {
			log.Info().Str("actuator", c.name).Int("channel", c.cal.Channel).Msg("hardware duty writes recovered")
		}
		return
	}
	if !c.failing.CompareAndSwap(false, true) {
		return
	}
	log.Warn().
		Str("actuator", c.name).
		Int("channel", c.cal.Channel).
		Int("duty", duty).
		Msg("hardware duty write failed")
	c.emit(events.EventHardwareFailed, events.HardwareFailedPayload{
		Actuator: c.name,
		Channel:  c.cal.Channel,
		Duty:     duty,
	})
}

func (c *Channel) emit(t events.EventType, payload interface{}) {
	if c.bus == nil {
		return
	}
	c.bus.Emit(context.Background(), events.Event{
		Type:    t,
		Source:  "actuator:" + c.name,
		Payload: payload,
	})
}

// ActuatorConfig is the calibration of all four actuators.
type ActuatorConfig struct {
	LeftMotor  Calibration
	RightMotor Calibration
	AuxMotor   Calibration
	Servo      Calibration

	FullScaleDuty int
}

// Actuators groups the robot's two drive motors, auxiliary motor and servo.
type Actuators struct {
	Left  *Channel
	Right *Channel
	Aux   *Channel
	Servo *Channel
}

// NewActuators builds the four channels on one sink. eventBus may be nil.
func NewActuators(cfg ActuatorConfig, sink DutyWriter, eventBus *events.EventBus) *Actuators {
	a := &Actuators{
		Left:  NewChannel("left_motor", cfg.LeftMotor, sink, cfg.FullScaleDuty),
		Right: NewChannel("right_motor", cfg.RightMotor, sink, cfg.FullScaleDuty),
		Aux:   NewChannel("aux_motor", cfg.AuxMotor, sink, cfg.FullScaleDuty),
		Servo: NewChannel("servo", cfg.Servo, sink, cfg.FullScaleDuty),
	}
	for _, ch := range a.All() {
		ch.bus = eventBus
	}
	return a
}

// All returns the channels in left, right, aux, servo order.
func (a *Actuators) All() []*Channel {
	return []*Channel{a.Left, a.Right, a.Aux, a.Servo}
}

// DriveLeftMotor drives the left drive motor.
func (a *Actuators) DriveLeftMotor(value float64) bool { return a.Left.DriveMotor(value) }

// DriveRightMotor drives the right drive motor.
func (a *Actuators) DriveRightMotor(value float64) bool { return a.Right.DriveMotor(value) }

// DriveAuxMotor drives the auxiliary motor.
func (a *Actuators) DriveAuxMotor(value float64) bool { return a.Aux.DriveMotor(value) }

// DriveServo positions the servo.
func (a *Actuators) DriveServo(angle int) bool { return a.Servo.DriveServo(angle) }

// StopAllMotors drives every channel to neutral: 0.0 on the motors and
// 0 degrees on the servo.
func (a *Actuators) StopAllMotors() {
	a.DriveLeftMotor(0)
	a.DriveRightMotor(0)
	a.DriveAuxMotor(0)
	a.DriveServo(0)
}
