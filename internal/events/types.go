// Package events defines the in-process event types a minibot publishes
// while it runs. The robot core emits them; telemetry, the journal and the
// API consume them.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Control channel events
	EventHandshake     EventType = "handshake"
	EventStatusChanged EventType = "status_changed"

	// Actuation events
	EventEmergencyStop  EventType = "emergency_stop"
	EventServoRejected  EventType = "servo_rejected"
	EventHardwareFailed EventType = "hardware_write_failed"

	// System events
	EventHealthAlert EventType = "health_alert"
	EventStartup     EventType = "startup"
	EventShutdown    EventType = "shutdown"
)

// AllTypes lists every event type, in declaration order.
func AllTypes() []EventType {
	return []EventType{
		EventHandshake,
		EventStatusChanged,
		EventEmergencyStop,
		EventServoRejected,
		EventHardwareFailed,
		EventHealthAlert,
		EventStartup,
		EventShutdown,
	}
}

// Event is the base structure for all events flowing through the EventBus.
type Event struct {
	Type      EventType   `json:"type"`
	Source    string      `json:"source"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// HandshakePayload is emitted once, when the discovery ping is answered.
type HandshakePayload struct {
	RobotID string `json:"robot_id"`
	Remote  string `json:"remote"`
}

// StatusChangedPayload is emitted on every accepted status command,
// including re-assignments of the current status.
type StatusChangedPayload struct {
	RobotID  string `json:"robot_id"`
	Previous string `json:"previous"`
	Current  string `json:"current"`
	Raw      string `json:"raw"`
}

// EmergencyStopPayload is emitted when the e-stop latch changes.
type EmergencyStopPayload struct {
	RobotID string `json:"robot_id"`
	Active  bool   `json:"active"`
	By      string `json:"by"`
}

// ServoRejectedPayload is emitted when a servo angle is out of range.
type ServoRejectedPayload struct {
	Channel int `json:"channel"`
	Angle   int `json:"angle"`
}

// HardwareFailedPayload is emitted when a duty write reports failure.
type HardwareFailedPayload struct {
	Actuator string `json:"actuator"`
	Channel  int    `json:"channel"`
	Duty     int    `json:"duty"`
}

// HealthAlertPayload is emitted when a periodic health check crosses a
// threshold.
type HealthAlertPayload struct {
	Check   string  `json:"check"`
	Level   string  `json:"level"`
	Message string  `json:"message"`
	Value   float64 `json:"value"`
}
