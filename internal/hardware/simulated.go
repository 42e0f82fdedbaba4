package hardware

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// SimulatedSink accepts every write and remembers the last duty per
// channel.
type SimulatedSink struct {
	mu     sync.RWMutex
	duties map[int]int
	writes uint64
}

// NewSimulatedSink creates an empty simulator.
func NewSimulatedSink() *SimulatedSink {
	return &SimulatedSink{duties: make(map[int]int)}
}

// WriteDuty records the value and always succeeds.
func (s *SimulatedSink) WriteDuty(channel int, duty int) bool {
	s.mu.Lock()
	prev, seen := s.duties[channel]
	s.duties[channel] = duty
	s.writes++
	s.mu.Unlock()

	if !seen || prev != duty {
		log.Trace().Int("channel", channel).Int("duty", duty).Msg("simulated duty")
	}
	return true
}

// Duty returns the last value written to channel.
func (s *SimulatedSink) Duty(channel int) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.duties[channel]
	return d, ok
}

// Duties returns a copy of every channel's last value.
func (s *SimulatedSink) Duties() map[int]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]int, len(s.duties))
	for k, v := range s.duties {
		out[k] = v
	}
	return out
}

// Writes returns the total number of writes.
func (s *SimulatedSink) Writes() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Close is a no-op.
func (s *SimulatedSink) Close() error {
	return nil
}
