package actuator

import (
	"log"
	"sync"

	"github.com/banshee-data/simrig/internal/cueing"
	"github.com/banshee-data/simrig/internal/safety"
)

// MockTransport implements Transport for tests and dry-run mode. It
// records every envelope it is handed and supports scripted errors for
// exercising retry and fault paths.
type MockTransport struct {
	mu sync.Mutex

	Limits safety.Limits

	Sent    []Envelope
	Homed   int
	Stopped int

	// ConnectError is returned by Connect if set.
	ConnectError error
	// HomeError is returned by Home if set.
	HomeError error
	// SendErrors is consumed one per Send call; nil entries succeed.
	SendErrors []error

	connected bool
	quiet     bool
}

// NewMockTransport creates a mock bounded by the given envelope.
func NewMockTransport(limits safety.Limits) *MockTransport {
	return &MockTransport{Limits: limits, quiet: true}
}

// NewDryRunTransport creates a mock that logs each command, for running
// the full pipeline without hardware.
func NewDryRunTransport(limits safety.Limits) *MockTransport {
	return &MockTransport{Limits: limits, quiet: false}
}

func (m *MockTransport) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConnectError != nil {
		return m.ConnectError
	}
	m.connected = true
	return nil
}

func (m *MockTransport) Home() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HomeError != nil {
		return m.HomeError
	}
	m.Homed++
	return nil
}

func (m *MockTransport) Send(env Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SendErrors) > 0 {
		err := m.SendErrors[0]
		m.SendErrors = m.SendErrors[1:]
		if err != nil {
			return err
		}
	}

	// The mock clamps like a real transport so tests observe exactly
	// what hardware would receive.
	clamped, _ := safety.Clamp(env.Pose, m.Limits)
	env.Pose = clamped

	m.Sent = append(m.Sent, env)
	if !m.quiet {
		log.Printf("[dry-run] %s", env)
	}
	return nil
}

func (m *MockTransport) EmergencyStop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stopped++
	return nil
}

func (m *MockTransport) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Homed++
	m.connected = false
	return nil
}

// LastPose returns the most recently sent pose, or the home pose if
// nothing was sent.
func (m *MockTransport) LastPose() cueing.Pose {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return cueing.Home
	}
	return m.Sent[len(m.Sent)-1].Pose
}
