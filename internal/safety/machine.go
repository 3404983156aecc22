// Package safety enforces the platform excursion envelope and the
// emergency-stop state machine. Every pose on its way to hardware passes
// through exactly one Machine; anything anomalous (operator e-stop, stale
// telemetry, exhausted hardware retries) collapses the output to the home
// pose until an operator resets.
package safety

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/banshee-data/simrig/internal/cueing"
)

// State of the safety machine. Transitions:
//
//	Idle -> Homing -> Active <-> Tripped
//
// Fault is reachable from every state and leaves only through Reset.
type State int

const (
	StateIdle State = iota
	StateHoming
	StateActive
	StateTripped
	StateFault
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHoming:
		return "homing"
	case StateActive:
		return "active"
	case StateTripped:
		return "tripped"
	case StateFault:
		return "fault"
	}
	return "unknown"
}

var (
	// ErrNotActive is returned by Apply outside the Active state when the
	// machine has no substitute pose to offer (Idle/Homing).
	ErrNotActive = errors.New("safety: machine not active")
	// ErrBadTransition is returned for transition requests the current
	// state does not allow.
	ErrBadTransition = errors.New("safety: invalid state transition")
)

// invalidInputLimit is how many consecutive filter input faults are
// tolerated before the session is considered unrecoverable.
const invalidInputLimit = 30

// Machine owns the e-stop state and applies the excursion envelope.
// Exactly one instance exists per running session; it must not be mutated
// concurrently.
type Machine struct {
	state  State
	limits Limits

	staleness     time.Duration
	lastTelemetry time.Time // zero value means "no telemetry yet"

	warningCount int
	invalidRun   int

	tripReason  string
	faultReason string
}

// NewMachine creates a machine in Idle with the given envelope.
func NewMachine(limits Limits, staleness time.Duration) (*Machine, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if staleness <= 0 {
		return nil, fmt.Errorf("safety: staleness timeout must be positive, got %v", staleness)
	}
	return &Machine{
		state:     StateIdle,
		limits:    limits,
		staleness: staleness,
	}, nil
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Limits returns the envelope the machine enforces.
func (m *Machine) Limits() Limits {
	return m.limits
}

// WarningCount returns how many poses required clamping.
func (m *Machine) WarningCount() int {
	return m.warningCount
}

// Start moves Idle -> Homing.
func (m *Machine) Start() error {
	if m.state != StateIdle {
		return fmt.Errorf("%w: start from %s", ErrBadTransition, m.state)
	}
	m.state = StateHoming
	log.Print("Safety: homing")
	return nil
}

// HomeConfirmed moves Homing -> Active once hardware reports the home
// position. The caller must reset filter state alongside this call.
func (m *Machine) HomeConfirmed() error {
	if m.state != StateHoming {
		return fmt.Errorf("%w: home confirmation in %s", ErrBadTransition, m.state)
	}
	m.state = StateActive
	m.invalidRun = 0
	log.Print("Safety: active")
	return nil
}

// ObserveTelemetry records that a telemetry frame arrived at the given
// time, feeding the staleness watchdog. Arrival alone says nothing about
// the frame's content; only NoteValidInput ends an invalid-input run.
func (m *Machine) ObserveTelemetry(now time.Time) {
	m.lastTelemetry = now
}

// CheckStale trips the machine if telemetry has gone quiet for longer
// than the staleness timeout. Returns true if a trip occurred.
func (m *Machine) CheckStale(now time.Time) bool {
	if m.state != StateActive || m.lastTelemetry.IsZero() {
		return false
	}
	if age := now.Sub(m.lastTelemetry); age > m.staleness {
		m.trip(fmt.Sprintf("telemetry stale for %v", age.Round(time.Millisecond)))
		return true
	}
	return false
}

// Trip handles an external emergency-stop signal. Always honored, from
// any non-terminal state.
func (m *Machine) Trip(reason string) {
	if m.state == StateFault {
		return
	}
	m.trip(reason)
}

func (m *Machine) trip(reason string) {
	if m.state == StateTripped {
		return
	}
	m.state = StateTripped
	m.tripReason = reason
	log.Printf("Safety: TRIPPED (%s); holding home pose until reset", reason)
}

// Fault marks the session unrecoverable. Reachable from every state.
func (m *Machine) Fault(reason string) {
	if m.state == StateFault {
		return
	}
	m.state = StateFault
	m.faultReason = reason
	log.Printf("Safety: FAULT (%s); operator reset required", reason)
}

// NoteInvalidInput counts an input fault, whether the frame failed
// decoding or the filter rejected it. A long enough run of consecutive
// faults escalates to Fault.
func (m *Machine) NoteInvalidInput() {
	m.invalidRun++
	if m.invalidRun >= invalidInputLimit {
		m.Fault(fmt.Sprintf("%d consecutive invalid inputs", m.invalidRun))
	}
}

// NoteValidInput records a sample that made it through the filter,
// ending any run of consecutive input faults.
func (m *Machine) NoteValidInput() {
	m.invalidRun = 0
}

// Reset performs the explicit operator reset: Tripped or Fault back to
// Idle. Recovery is never automatic — stale telemetry resuming does not
// re-arm the platform on its own.
func (m *Machine) Reset() error {
	if m.state != StateTripped && m.state != StateFault {
		return fmt.Errorf("%w: reset from %s", ErrBadTransition, m.state)
	}
	log.Printf("Safety: operator reset from %s", m.state)
	*m = Machine{
		state:     StateIdle,
		limits:    m.limits,
		staleness: m.staleness,
	}
	return nil
}

// Apply runs a pose through the envelope for the current state.
//
// Active: every axis is independently saturated to the limits (no rate
// shaping here; that belongs to the scheduler). Tripped/Fault: the input
// is ignored and the home pose is emitted. Idle/Homing: no pose is
// accepted.
func (m *Machine) Apply(p cueing.Pose) (cueing.Pose, error) {
	switch m.state {
	case StateActive:
		clamped, wasClamped := Clamp(p, m.limits)
		if wasClamped {
			m.warningCount++
			log.Printf("Safety: pose clamped to envelope [warning #%d]", m.warningCount)
		}
		return clamped, nil
	case StateTripped, StateFault:
		return cueing.Home, nil
	default:
		return cueing.Home, fmt.Errorf("%w: %s", ErrNotActive, m.state)
	}
}
