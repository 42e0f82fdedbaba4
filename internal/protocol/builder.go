package protocol

import "bytes"

// PacketBuilder constructs outbound datagrams. The driver station side
// and the tests use it to produce frames the robot understands.
type PacketBuilder struct {
	buf bytes.Buffer
}

// NewPacketBuilder creates a new PacketBuilder.
func NewPacketBuilder() *PacketBuilder {
	return &PacketBuilder{}
}

// WriteByte writes a single byte.
func (b *PacketBuilder) WriteByte(v byte) *PacketBuilder {
	b.buf.WriteByte(v)
	return b
}

// WriteString writes raw string bytes without a length prefix or terminator.
func (b *PacketBuilder) WriteString(s string) *PacketBuilder {
	b.buf.WriteString(s)
	return b
}

// Build returns the constructed packet bytes.
func (b *PacketBuilder) Build() []byte {
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}

// ---- Pre-built packet constructors ----

// BuildControlFrame encodes a control frame.
// Format: [lx:1][ly:1][rx:1][ry:1][aux1:1][aux2:1][buttons0:1][buttons1:1]
func BuildControlFrame(f ControlFrame) []byte {
	b := NewPacketBuilder()
	b.WriteByte(f.LeftX).
		WriteByte(f.LeftY).
		WriteByte(f.RightX).
		WriteByte(f.RightY).
		WriteByte(f.Aux1).
		WriteByte(f.Aux2).
		WriteByte(f.Buttons0).
		WriteByte(f.Buttons1)
	return b.Build()
}

// BuildDiscoveryPing creates the "ping" discovery ping.
func BuildDiscoveryPing() []byte {
	return NewPacketBuilder().WriteString(DiscoveryPing).Build()
}

// BuildDiscoveryReply creates the handshake reply "pong:<identity>".
func BuildDiscoveryReply(identity string) []byte {
	return NewPacketBuilder().
		WriteString(DiscoveryReplyPrefix).
		WriteString(identity).
		Build()
}

// BuildStatusCommand creates a status assignment "<identity>:<status>".
func BuildStatusCommand(identity, status string) []byte {
	return NewPacketBuilder().
		WriteString(identity).
		WriteByte(StatusSeparator).
		WriteString(status).
		Build()
}
