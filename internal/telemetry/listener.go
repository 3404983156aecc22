package telemetry

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"
)

// StatsInterface provides packet statistics management for the listener.
type StatsInterface interface {
	AddPacket(bytes int)
	AddMotion()
	AddInvalid()
	LogStats()
}

// noopStats is a StatsInterface implementation that does nothing.
// It is used as a safe default when no stats collector is provided.
type noopStats struct{}

func (n *noopStats) AddPacket(bytes int) {}
func (n *noopStats) AddMotion()          {}
func (n *noopStats) AddInvalid()         {}
func (n *noopStats) LogStats()           {}

// UDPListener receives F1 telemetry datagrams and delivers raw buffers to
// the pipeline over a channel. Each delivered buffer is a fresh copy, so
// downstream stages may retain it.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	conn        *net.UDPConn
	stats       StatsInterface
	packets     chan []byte
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Stats       StatsInterface
	// ChannelDepth bounds the packet handoff channel. A shallow channel is
	// deliberate: when the pipeline falls behind, stale frames are dropped
	// at the listener instead of queueing up latency.
	ChannelDepth int
}

// NewUDPListener creates a new UDP listener with the provided configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	var stats StatsInterface
	if config.Stats != nil {
		stats = config.Stats
	} else {
		stats = &noopStats{}
	}

	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	depth := config.ChannelDepth
	if depth <= 0 {
		depth = 4
	}

	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		stats:       stats,
		packets:     make(chan []byte, depth),
	}
}

// Packets returns the channel on which received telemetry buffers are
// delivered, in arrival order.
func (l *UDPListener) Packets() <-chan []byte {
	return l.packets
}

// Start begins listening for UDP packets. It blocks until the context is
// cancelled or an unrecoverable socket error occurs, and closes the packet
// channel on return.
func (l *UDPListener) Start(ctx context.Context) error {
	defer close(l.packets)

	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.conn = conn
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			log.Printf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	log.Printf("Telemetry listener started on %s", l.address)

	go l.startStatsLogging(ctx)

	// Motion packets are 1349 bytes; leave margin for other packet types.
	buffer := make([]byte, 2048)

	for {
		select {
		case <-ctx.Done():
			log.Print("Telemetry listener stopping due to context cancellation")
			return ctx.Err()
		default:
			// Set read deadline to allow checking context cancellation
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, _, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue // Continue on timeout to check context
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("UDP read error: %v", err)
				continue
			}

			l.stats.AddPacket(n)

			packet := make([]byte, n)
			copy(packet, buffer[:n])

			select {
			case l.packets <- packet:
			default:
				// Pipeline is behind: drop the oldest queued frame and keep
				// the newest. Filter state wants fresh data, not history.
				select {
				case <-l.packets:
				default:
				}
				select {
				case l.packets <- packet:
				default:
				}
			}
		}
	}
}

// startStatsLogging periodically logs packet statistics.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	// Trigger an initial stats report shortly after startup to avoid a long
	// silence on first-run. Then continue on the configured interval.
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.LogStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// Close closes the UDP listener socket.
func (l *UDPListener) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
