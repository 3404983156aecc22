package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/simrig/internal/monitoring"
)

// PacketStats tracks telemetry packet statistics with thread-safe operations.
type PacketStats struct {
	mu           sync.Mutex
	packetCount  int64
	byteCount    int64
	motionCount  int64
	invalidCount int64
	lastReset    time.Time
}

// NewPacketStats creates a new PacketStats instance.
func NewPacketStats() *PacketStats {
	return &PacketStats{
		lastReset: time.Now(),
	}
}

// AddPacket increments packet count and byte count.
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
}

// AddMotion increments the decoded motion sample count.
func (ps *PacketStats) AddMotion() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.motionCount++
}

// AddInvalid increments the malformed packet count.
func (ps *PacketStats) AddInvalid() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.invalidCount++
}

// GetAndReset returns current stats and resets counters.
func (ps *PacketStats) GetAndReset() (packets, bytes, motion, invalid int64, duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	duration = now.Sub(ps.lastReset)
	packets = ps.packetCount
	bytes = ps.byteCount
	motion = ps.motionCount
	invalid = ps.invalidCount

	ps.packetCount = 0
	ps.byteCount = 0
	ps.motionCount = 0
	ps.invalidCount = 0
	ps.lastReset = now

	return
}

// LogStats logs formatted statistics for the interval since the last reset.
func (ps *PacketStats) LogStats() {
	packets, bytes, motion, invalid, duration := ps.GetAndReset()
	if packets == 0 && invalid == 0 {
		return
	}

	packetsPerSec := float64(packets) / duration.Seconds()
	kbPerSec := float64(bytes) / duration.Seconds() / 1024
	motionPerSec := float64(motion) / duration.Seconds()

	logMsg := fmt.Sprintf("Telemetry stats (/sec): %.1f KB, %.1f packets, %.1f motion samples",
		kbPerSec, packetsPerSec, motionPerSec)
	if invalid > 0 {
		logMsg += fmt.Sprintf(", %d invalid", invalid)
	}

	monitoring.Logf("%s", logMsg)
}
