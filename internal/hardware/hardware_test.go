package hardware

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("device gone")
}

type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestSerialSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewSerialSink(&buf)

	if !s.WriteDuty(16, 90) {
		t.Fatal("WriteDuty failed")
	}
	s.WriteDuty(19, 13107)

	want := "3 16 90\n3 19 13107\n"
	if buf.String() != want {
		t.Errorf("wire = %q, want %q", buf.String(), want)
	}
}

func TestSerialSinkSuppressesRepeats(t *testing.T) {
	var buf bytes.Buffer
	s := NewSerialSink(&buf)
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	s.WriteDuty(16, 90)
	s.WriteDuty(16, 90)
	s.WriteDuty(16, 91)
	s.WriteDuty(16, 91)

	if got, want := buf.String(), "3 16 90\n3 16 91\n"; got != want {
		t.Errorf("wire = %q, want %q", got, want)
	}
}

func TestSerialSinkRefreshesHeldValues(t *testing.T) {
	var buf bytes.Buffer
	s := NewSerialSink(&buf)
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	// A steady neutral command, as StopAllMotors sends every tick.
	for i := 0; i < 30; i++ {
		s.WriteDuty(16, 90)
		now = now.Add(20 * time.Millisecond)
	}

	lines := strings.Count(buf.String(), "3 16 90\n")
	if lines < 2 || lines > 4 {
		t.Errorf("held duty sent %d times over 600ms, want a refresh every %s", lines, DefaultRefreshInterval)
	}
}
func TestSerialSinkReportsFailure(t *testing.T) {
	s := NewSerialSink(failingWriter{})
	if s.WriteDuty(16, 90) {
		t.Error("WriteDuty succeeded on a failing link")
	}
	if s.WriteDuty(16, 90) {
		t.Error("failed value was cached")
	}
}

func TestSerialSinkClose(t *testing.T) {
	rec := &closeRecorder{}
	s := NewSerialSink(rec)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !rec.closed {
		t.Error("underlying link not closed")
	}

	if err := NewSerialSink(&bytes.Buffer{}).Close(); err != nil {
		t.Errorf("Close on non-closer: %v", err)
	}
}

func TestSimulatedSink(t *testing.T) {
	s := NewSimulatedSink()
	if _, ok := s.Duty(16); ok {
		t.Fatal("fresh simulator has a value")
	}

	s.WriteDuty(16, 90)
	s.WriteDuty(16, 110)
	s.WriteDuty(19, 9830)

	if d, _ := s.Duty(16); d != 110 {
		t.Errorf("Duty(16) = %d, want 110", d)
	}
	if n := s.Writes(); n != 3 {
		t.Errorf("Writes = %d, want 3", n)
	}
	duties := s.Duties()
	duties[16] = 0
	if d, _ := s.Duty(16); d != 110 {
		t.Error("Duties returned shared map")
	}
}
