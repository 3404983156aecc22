package telemetry

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"
)

// freeUDPAddr reserves an ephemeral loopback port and releases it for the
// listener to claim.
func freeUDPAddr(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	addr := conn.LocalAddr().String()
	conn.Close()
	return addr
}

func TestNewUDPListenerDefaults(t *testing.T) {
	l := NewUDPListener(UDPListenerConfig{Address: ":20777"})
	if l.stats == nil {
		t.Error("stats should default to a no-op collector")
	}
	if cap(l.packets) != 4 {
		t.Errorf("channel depth = %d, want 4", cap(l.packets))
	}
	if l.logInterval != time.Minute {
		t.Errorf("log interval = %v, want 1m", l.logInterval)
	}

	l = NewUDPListener(UDPListenerConfig{Address: ":20777", ChannelDepth: 16})
	if cap(l.packets) != 16 {
		t.Errorf("channel depth = %d, want 16", cap(l.packets))
	}
}

func TestUDPListenerDeliversCopies(t *testing.T) {
	addr := freeUDPAddr(t)
	stats := NewPacketStats()
	l := NewUDPListener(UDPListenerConfig{
		Address: addr,
		Stats:   stats,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	// Give the socket a moment to bind, then send two datagrams.
	time.Sleep(100 * time.Millisecond)
	sender, err := net.Dial("udp", addr)
	if err != nil {
		t.Fatalf("failed to dial listener: %v", err)
	}
	defer sender.Close()

	for i := 0; i < 2; i++ {
		if _, err := fmt.Fprintf(sender, "packet-%d", i); err != nil {
			t.Fatalf("send failed: %v", err)
		}
	}

	for i := 0; i < 2; i++ {
		select {
		case got := <-l.Packets():
			want := fmt.Sprintf("packet-%d", i)
			if string(got) != want {
				t.Errorf("packet %d = %q, want %q", i, got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for packet delivery")
		}
	}

	packets, bytes, _, _, _ := stats.GetAndReset()
	if packets != 2 {
		t.Errorf("stats packets = %d, want 2", packets)
	}
	if bytes == 0 {
		t.Error("stats bytes should be non-zero")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Start returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop on cancellation")
	}

	// The packet channel closes on shutdown.
	select {
	case _, open := <-l.Packets():
		if open {
			t.Error("expected closed packet channel after shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("packet channel not closed")
	}
}
