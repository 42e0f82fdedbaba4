// Package robot is the onboard core of a minibot: the packet dispatcher,
// the game status state machine, the discovery handshake, the controller
// state it guards, and the actuation channels that turn that state into
// bounded duty cycles.
package robot

import "github.com/lancer-robotics/minibot/internal/protocol"

// GameStatus is the authorization mode assigned by the driver station.
type GameStatus int

const (
	GameStatusStandby GameStatus = iota
	GameStatusTeleop
	GameStatusUnknown
)

// gameStatusStrings maps GameStatus values to their wire and JSON spelling.
var gameStatusStrings = map[GameStatus]string{
	GameStatusStandby: "standby",
	GameStatusTeleop:  "teleop",
	GameStatusUnknown: "unknown",
}

// statusLexicon is the closed set of accepted status suffixes. Anything
// missing maps to GameStatusUnknown.
var statusLexicon = map[string]GameStatus{
	"standby": GameStatusStandby,
	"teleop":  GameStatusTeleop,
}

// ParseGameStatus maps a status suffix to a GameStatus by exact match.
func ParseGameStatus(s string) GameStatus {
	if st, ok := statusLexicon[s]; ok {
		return st
	}
	return GameStatusUnknown
}

// String returns the string representation of GameStatus.
func (s GameStatus) String() string {
	if str, ok := gameStatusStrings[s]; ok {
		return str
	}
	return "unknown"
}

// MarshalJSON serializes GameStatus as a JSON string (e.g. "teleop").
func (s GameStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// ControllerState is the latest joystick input accepted while in teleop.
type ControllerState struct {
	LeftX  uint8 `json:"left_x"`
	LeftY  uint8 `json:"left_y"`
	RightX uint8 `json:"right_x"`
	RightY uint8 `json:"right_y"`

	Cross    bool `json:"cross"`
	Circle   bool `json:"circle"`
	Square   bool `json:"square"`
	Triangle bool `json:"triangle"`
}

// NeutralControllerState returns sticks centered and no buttons pressed.
func NeutralControllerState() ControllerState {
	return ControllerState{
		LeftX:  protocol.AxisNeutral,
		LeftY:  protocol.AxisNeutral,
		RightX: protocol.AxisNeutral,
		RightY: protocol.AxisNeutral,
	}
}

// apply copies the consumed fields of a control frame. aux bytes and the
// second button byte are ignored.
func (c *ControllerState) apply(f protocol.ControlFrame) {
	c.LeftX = f.LeftX
	c.LeftY = f.LeftY
	c.RightX = f.RightX
	c.RightY = f.RightY

	c.Cross = f.Cross()
	c.Circle = f.Circle()
	c.Square = f.Square()
	c.Triangle = f.Triangle()
}

// Counters tracks how datagrams were handled since startup.
type Counters struct {
	FramesApplied  uint64 `json:"frames_applied"`
	FramesDropped  uint64 `json:"frames_dropped"`
	PingsAnswered  uint64 `json:"pings_answered"`
	StatusCommands uint64 `json:"status_commands"`
	Ignored        uint64 `json:"ignored"`
	Truncated      uint64 `json:"truncated"`
}

// Snapshot is a consistent copy of a robot's observable state.
type Snapshot struct {
	RobotID       string          `json:"robot_id"`
	Status        GameStatus      `json:"status"`
	Controller    ControllerState `json:"controller"`
	Connected     bool            `json:"connected"`
	EmergencyStop bool            `json:"emergency_stop"`
	Counters      Counters        `json:"counters"`
}
