package protocol

import (
	"bytes"
	"strings"
)

// Datagram is one classified inbound payload.
type Datagram struct {
	Kind  Kind
	Frame ControlFrame
	Text  string

	// Truncated is set when the raw payload exceeded MaxDatagramSize.
	Truncated bool
}

// Classify inspects a raw payload and decodes it by length.
// Exactly ControlFrameSize bytes is a control frame; anything else
// non-empty is text, cut at the first NUL. Payloads longer than
// MaxDatagramSize are truncated before classification.
func Classify(payload []byte) Datagram {
	var d Datagram

	if len(payload) > MaxDatagramSize {
		payload = payload[:MaxDatagramSize]
		d.Truncated = true
	}

	switch {
	case len(payload) == 0:
		d.Kind = KindEmpty
	case len(payload) == ControlFrameSize:
		d.Kind = KindControl
		d.Frame = DecodeControlFrame(payload)
	default:
		d.Kind = KindText
		d.Text = decodeText(payload)
	}
	return d
}

// DecodeControlFrame decodes a control frame. The caller guarantees the
// slice holds at least ControlFrameSize bytes.
func DecodeControlFrame(data []byte) ControlFrame {
	return ControlFrame{
		LeftX:    data[offLeftX],
		LeftY:    data[offLeftY],
		RightX:   data[offRightX],
		RightY:   data[offRightY],
		Aux1:     data[offAux1],
		Aux2:     data[offAux2],
		Buttons0: data[offButtons0],
		Buttons1: data[offButtons1],
	}
}

func decodeText(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return string(data)
}

// StatusSuffix returns the text after the first separator when text is
// prefixed by identity. ok is false when the prefix does not match or no
// separator is present. The separator is searched across the whole text,
// so an identity containing ':' splits at its own separator.
func StatusSuffix(text, identity string) (suffix string, ok bool) {
	if !strings.HasPrefix(text, identity) {
		return "", false
	}
	i := strings.IndexByte(text, StatusSeparator)
	if i < 0 {
		return "", false
	}
	return text[i+1:], true
}
