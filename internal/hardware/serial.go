// Package hardware provides the PWM duty sinks the actuation channels
// write to: a line-protocol serial link to a PWM co-processor, and an
// in-memory simulator for bench runs without hardware.
package hardware

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tarm/serial"
)

// cmdSetDuty is the co-processor command that latches a raw duty value on
// one PWM pin: "3 <pin> <duty>\n".
const cmdSetDuty = 3

// DefaultRefreshInterval bounds how long an unchanged duty goes without
// being re-sent, so a co-processor that reset picks up held values.
const DefaultRefreshInterval = 250 * time.Millisecond

// SerialConfig describes the serial link to the PWM co-processor.
type SerialConfig struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
	Refresh     time.Duration
}

// DefaultSerialConfig returns the link settings the co-processor firmware
// boots with.
func DefaultSerialConfig(device string) SerialConfig {
	return SerialConfig{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
		Refresh:     DefaultRefreshInterval,
	}
}

type sentDuty struct {
	duty int
	at   time.Time
}

// SerialSink writes duty values to a PWM co-processor. An unchanged value
// is re-sent only once its refresh interval has passed.
type SerialSink struct {
	mu      sync.Mutex
	out     *bufio.Writer
	closer  io.Closer
	cache   map[int]sentDuty
	refresh time.Duration
	now     func() time.Time
}

// OpenSerial opens the serial device and returns a sink on it.
func OpenSerial(cfg SerialConfig) (*SerialSink, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial device %s: %w", cfg.Device, err)
	}

	log.Info().
		Str("device", cfg.Device).
		Int("baud", cfg.Baud).
		Msg("PWM co-processor link opened")

	sink := NewSerialSink(port)
	if cfg.Refresh > 0 {
		sink.refresh = cfg.Refresh
	}
	return sink, nil
}

// NewSerialSink wraps an already open link. If w is also an io.Closer,
// Close closes it.
func NewSerialSink(w io.Writer) *SerialSink {
	s := &SerialSink{
		out:     bufio.NewWriter(w),
		cache:   make(map[int]sentDuty),
		refresh: DefaultRefreshInterval,
		now:     time.Now,
	}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// WriteDuty sends one duty value and reports whether the link accepted it.
func (s *SerialSink) WriteDuty(channel int, duty int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if prev, ok := s.cache[channel]; ok && prev.duty == duty && now.Sub(prev.at) < s.refresh {
		return true
	}

	if _, err := fmt.Fprintf(s.out, "%d %d %d\n", cmdSetDuty, channel, duty); err != nil {
		delete(s.cache, channel)
		log.Error().Err(err).Int("channel", channel).Msg("failed to write duty")
		return false
	}
	if err := s.out.Flush(); err != nil {
		delete(s.cache, channel)
		log.Error().Err(err).Int("channel", channel).Msg("failed to flush duty")
		return false
	}

	s.cache[channel] = sentDuty{duty: duty, at: now}
	return true
}

// Close closes the underlying link.
func (s *SerialSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
