// Package actuator defines the contract between the command scheduler and
// the physical motion platforms, plus the command envelope that crosses
// it. Concrete transports live in the smc and moog subpackages; each one
// re-applies the safety envelope before touching hardware so a bug
// upstream cannot command an excursion.
package actuator

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/simrig/internal/cueing"
)

// Transport error taxonomy. Callers match with errors.Is and retry with
// backoff up to a configured bound; exhausting the bound faults the
// safety machine.
var (
	ErrTimeout  = errors.New("actuator: hardware acknowledgement timeout")
	ErrRejected = errors.New("actuator: command rejected by controller")
	ErrLinkDown = errors.New("actuator: link down")
)

// Envelope wraps one dispatched pose with its sequence number and issue
// time. Sequence numbers are strictly increasing per session and are used
// for ordering verification and latency measurement.
type Envelope struct {
	Pose     cueing.Pose
	Sequence uint64
	IssuedAt time.Time
}

func (e Envelope) String() string {
	return fmt.Sprintf("Envelope(seq=%d %s)", e.Sequence, e.Pose)
}

// Transport drives one physical platform family. Implementations own
// their wire protocol and their hardware timeouts; every blocking call
// must return within a bounded time so the pipeline can detect staleness.
type Transport interface {
	// Connect establishes the hardware link and leaves the platform ready
	// to home.
	Connect() error
	// Home drives the platform to its configured center pose and blocks,
	// with an internal timeout, until the hardware confirms it.
	Home() error
	// Send applies the platform's own safety clamp and writes the pose.
	Send(env Envelope) error
	// EmergencyStop immediately commands the hardware to hold or return
	// home, bypassing all rate limiting.
	EmergencyStop() error
	// Shutdown returns to home and releases the connection.
	Shutdown() error
}
