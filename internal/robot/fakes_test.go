package robot

import (
	"net"
	"sync"
)

type sentPacket struct {
	addr    *net.UDPAddr
	payload string
}

// fakeTransport queues inbound datagrams and records replies.
type fakeTransport struct {
	mu      sync.Mutex
	inbound []Datagram
	sent    []sentPacket
	sendErr error
}

func (f *fakeTransport) push(payload []byte, addr *net.UDPAddr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound = append(f.inbound, Datagram{Payload: payload, Addr: addr})
}

func (f *fakeTransport) TryReceive() (Datagram, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inbound) == 0 {
		return Datagram{}, false
	}
	d := f.inbound[0]
	f.inbound = f.inbound[1:]
	return d, true
}

func (f *fakeTransport) Send(addr *net.UDPAddr, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentPacket{addr: addr, payload: string(payload)})
	return f.sendErr
}

func (f *fakeTransport) replies() []sentPacket {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentPacket, len(f.sent))
	copy(out, f.sent)
	return out
}

type dutyWrite struct {
	channel int
	duty    int
}

// recordingSink records every duty write and returns result.
type recordingSink struct {
	mu     sync.Mutex
	writes []dutyWrite
	fail   bool
}

func (s *recordingSink) WriteDuty(channel int, duty int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, dutyWrite{channel: channel, duty: duty})
	return !s.fail
}

func (s *recordingSink) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *recordingSink) all() []dutyWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dutyWrite, len(s.writes))
	copy(out, s.writes)
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = nil
}

// last returns the most recent duty written to channel.
func (s *recordingSink) last(channel int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.writes) - 1; i >= 0; i-- {
		if s.writes[i].channel == channel {
			return s.writes[i].duty, true
		}
	}
	return 0, false
}

var testAddr = &net.UDPAddr{IP: net.IPv4(192, 168, 4, 10), Port: 40000}

func testActuatorConfig() ActuatorConfig {
	return ActuatorConfig{
		LeftMotor:     Calibration{Channel: 16, PWMOffset: 90},
		RightMotor:    Calibration{Channel: 17, PWMOffset: 90},
		AuxMotor:      Calibration{Channel: 18, PWMOffset: 90},
		Servo:         Calibration{Channel: 19},
		FullScaleDuty: DefaultFullScaleDuty,
	}
}
