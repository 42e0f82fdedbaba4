// Package protocol implements the wire format spoken between the driver
// station and a minibot over UDP. Two kinds of datagram share one port:
// fixed-size binary control frames and short ASCII text commands
// (discovery pings and game status assignments).
package protocol

// Binary control frame layout.
// [leftX][leftY][rightX][rightY][aux1][aux2][buttons0][buttons1]
const (
	ControlFrameSize = 8

	offLeftX    = 0
	offLeftY    = 1
	offRightX   = 2
	offRightY   = 3
	offAux1     = 4
	offAux2     = 5
	offButtons0 = 6
	offButtons1 = 7
)

// Button bits in buttons0.
const (
	ButtonCross    byte = 0x01
	ButtonCircle   byte = 0x02
	ButtonSquare   byte = 0x04
	ButtonTriangle byte = 0x08
)

// AxisNeutral is the resting value of every joystick axis.
const AxisNeutral uint8 = 127

// MaxDatagramSize is the receive buffer size. Longer payloads are
// truncated, never rejected.
const MaxDatagramSize = 255

// Text commands.
const (
	DiscoveryPing        = "ping"
	DiscoveryReplyPrefix = "pong:"
	StatusSeparator      = ':'
)

// Kind classifies an inbound datagram.
type Kind int

const (
	KindEmpty Kind = iota
	KindControl
	KindText
)

var kindStrings = map[Kind]string{
	KindEmpty:   "empty",
	KindControl: "control",
	KindText:    "text",
}

// String returns the string representation of Kind.
func (k Kind) String() string {
	if s, ok := kindStrings[k]; ok {
		return s
	}
	return "unknown"
}

// ControlFrame is a decoded binary control frame.
type ControlFrame struct {
	LeftX  uint8 `json:"left_x"`
	LeftY  uint8 `json:"left_y"`
	RightX uint8 `json:"right_x"`
	RightY uint8 `json:"right_y"`
	Aux1   uint8 `json:"aux1"`
	Aux2   uint8 `json:"aux2"`

	Buttons0 uint8 `json:"buttons0"`
	Buttons1 uint8 `json:"buttons1"`
}

// Cross reports whether the cross button bit is set.
func (f ControlFrame) Cross() bool { return f.Buttons0&ButtonCross != 0 }

// Circle reports whether the circle button bit is set.
func (f ControlFrame) Circle() bool { return f.Buttons0&ButtonCircle != 0 }

// Square reports whether the square button bit is set.
func (f ControlFrame) Square() bool { return f.Buttons0&ButtonSquare != 0 }

// Triangle reports whether the triangle button bit is set.
func (f ControlFrame) Triangle() bool { return f.Buttons0&ButtonTriangle != 0 }
