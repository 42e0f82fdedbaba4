package network

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/lancer-robotics/minibot/internal/protocol"
	"github.com/lancer-robotics/minibot/internal/robot"
)

func listenLoopback(t *testing.T, depth int) *UDPTransport {
	t.Helper()
	tr, err := ListenUDP(context.Background(), "127.0.0.1:0", depth)
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func dialTransport(t *testing.T, tr *UDPTransport) *net.UDPConn {
	t.Helper()
	c, err := net.DialUDP("udp4", nil, tr.LocalAddr())
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func waitDatagram(t *testing.T, tr *UDPTransport) robot.Datagram {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d, ok := tr.TryReceive(); ok {
			return d
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no datagram received")
	return robot.Datagram{}
}

func TestTryReceiveEmpty(t *testing.T) {
	tr := listenLoopback(t, 0)
	if _, ok := tr.TryReceive(); ok {
		t.Error("TryReceive returned a datagram on an idle socket")
	}
}

func TestRoundTrip(t *testing.T) {
	tr := listenLoopback(t, 0)
	client := dialTransport(t, tr)

	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatalf("client write: %v", err)
	}
	d := waitDatagram(t, tr)
	if string(d.Payload) != "ping" {
		t.Fatalf("payload = %q, want ping", d.Payload)
	}
	if d.Addr.Port != client.LocalAddr().(*net.UDPAddr).Port {
		t.Errorf("sender port = %d, want %d", d.Addr.Port, client.LocalAddr().(*net.UDPAddr).Port)
	}

	if err := tr.Send(d.Addr, protocol.BuildDiscoveryReply("R1")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if string(buf[:n]) != "pong:R1" {
		t.Errorf("reply = %q, want pong:R1", buf[:n])
	}
}

func TestOversizedDatagramReachesClassifierTruncated(t *testing.T) {
	tr := listenLoopback(t, 0)
	client := dialTransport(t, tr)

	big := bytes.Repeat([]byte{'x'}, 400)
	if _, err := client.Write(big); err != nil {
		t.Fatalf("client write: %v", err)
	}
	d := waitDatagram(t, tr)

	pkt := protocol.Classify(d.Payload)
	if !pkt.Truncated {
		t.Error("oversized datagram not flagged truncated")
	}
	if len(pkt.Text) != protocol.MaxDatagramSize {
		t.Errorf("text length = %d, want %d", len(pkt.Text), protocol.MaxDatagramSize)
	}
}

func TestFullQueueDrops(t *testing.T) {
	tr := listenLoopback(t, 1)
	client := dialTransport(t, tr)

	for i := 0; i < 5; i++ {
		client.Write([]byte("R1:teleop"))
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if received, _ := tr.Stats(); received == 5 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	received, dropped := tr.Stats()
	if received != 5 || dropped != 4 {
		t.Errorf("stats = %d received, %d dropped; want 5, 4", received, dropped)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	tr, err := ListenUDP(context.Background(), "127.0.0.1:0", 0)
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
