package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/ipv4"

	"github.com/lancer-robotics/minibot/internal/protocol"
	"github.com/lancer-robotics/minibot/internal/robot"
)

// DefaultQueueDepth bounds how many datagrams may wait between polls.
const DefaultQueueDepth = 64

// tosLowDelay is IPTOS_LOWDELAY.
const tosLowDelay = 0x10

// UDPTransport is the robot's single bound UDP socket. A reader goroutine
// drains the socket into a bounded queue so TryReceive never blocks the
// control loop. Datagrams arriving while the queue is full are dropped.
type UDPTransport struct {
	conn    *net.UDPConn
	inbound chan robot.Datagram

	received atomic.Uint64
	dropped  atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// ListenUDP binds addr (for example ":5000") and starts the reader.
// queueDepth <= 0 selects DefaultQueueDepth.
func ListenUDP(ctx context.Context, addr string, queueDepth int) (*UDPTransport, error) {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}

	lc := ReuseAddrListenConfig()
	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind UDP %s: %w", addr, err)
	}
	conn := pc.(*net.UDPConn)

	if err := ipv4.NewPacketConn(conn).SetTOS(tosLowDelay); err != nil {
		log.Debug().Err(err).Msg("could not set low-delay TOS on control socket")
	}

	t := &UDPTransport{
		conn:    conn,
		inbound: make(chan robot.Datagram, queueDepth),
		done:    make(chan struct{}),
	}
	go t.readLoop()

	log.Info().Str("addr", conn.LocalAddr().String()).Msg("UDP control socket bound")
	return t, nil
}

func (t *UDPTransport) readLoop() {
	defer close(t.done)

	// One spare byte so oversized payloads reach the classifier and are
	// counted as truncated there.
	buf := make([]byte, protocol.MaxDatagramSize+1)
	for {
		n, remote, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Error().Err(err).Msg("UDP read error")
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		t.received.Add(1)

		select {
		case t.inbound <- robot.Datagram{Payload: payload, Addr: remote}:
		default:
			t.dropped.Add(1)
			log.Warn().Str("remote", remote.String()).Msg("inbound queue full, datagram dropped")
		}
	}
}

// TryReceive returns the oldest pending datagram, or false if none is
// waiting.
func (t *UDPTransport) TryReceive() (robot.Datagram, bool) {
	select {
	case d := <-t.inbound:
		return d, true
	default:
		return robot.Datagram{}, false
	}
}

// Send transmits one datagram to addr.
func (t *UDPTransport) Send(addr *net.UDPAddr, payload []byte) error {
	if _, err := t.conn.WriteToUDP(payload, addr); err != nil {
		return fmt.Errorf("failed to send to %s: %w", addr, err)
	}
	return nil
}

// LocalAddr returns the bound address.
func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

// Stats returns how many datagrams were read and how many were dropped
// on a full queue.
func (t *UDPTransport) Stats() (received, dropped uint64) {
	return t.received.Load(), t.dropped.Load()
}

// Close closes the socket and waits for the reader to exit.
func (t *UDPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close()
		<-t.done
		log.Info().Msg("UDP control socket closed")
	})
	return err
}
