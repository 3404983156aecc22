// Package scheduler decouples the 60 Hz pose stream from the slower
// cadence the actuator hardware tolerates. It enforces a maximum output
// rate, bounds per-axis velocity with slew limiting, suppresses redundant
// writes below a movement threshold, and owns command sequencing.
package scheduler

import (
	"fmt"
	"log"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/simrig/internal/actuator"
	"github.com/banshee-data/simrig/internal/cueing"
)

// FaultReporter receives escalations when the hardware link is beyond
// retry. Satisfied by *safety.Machine.
type FaultReporter interface {
	Fault(reason string)
}

// Config tunes the scheduler.
type Config struct {
	// MinCommandInterval is the floor between dispatches (1/30 s keeps
	// the SMC controller from oscillating).
	MinCommandInterval time.Duration
	// SlewRateTranslation bounds surge/sway/heave velocity, m/s.
	SlewRateTranslation float64
	// SlewRateRotation bounds roll/pitch/yaw velocity, rad/s.
	SlewRateRotation float64
	// PositionThreshold suppresses dispatches whose Euclidean distance
	// from the last sent pose is below it.
	PositionThreshold float64
	// MaxRetries bounds transport retry attempts per dispatch.
	MaxRetries int
	// RetryBackoff is the initial backoff between retries; it doubles
	// per attempt.
	RetryBackoff time.Duration
}

// DefaultConfig returns tuning for a 30 Hz output cadence.
func DefaultConfig() Config {
	return Config{
		MinCommandInterval:  time.Second / 30,
		SlewRateTranslation: 0.5,
		SlewRateRotation:    1.5,
		PositionThreshold:   0.001,
		MaxRetries:          3,
		RetryBackoff:        10 * time.Millisecond,
	}
}

// Scheduler rate-limits and slew-limits clamped poses on their way to
// one transport. Owned by a single pipeline goroutine.
type Scheduler struct {
	cfg       Config
	transport actuator.Transport
	faults    FaultReporter

	lastPose cueing.Pose
	lastSent time.Time
	sequence uint64

	dispatched uint64
	suppressed uint64

	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a scheduler feeding the given transport.
func New(cfg Config, transport actuator.Transport, faults FaultReporter) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		transport: transport,
		faults:    faults,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// Offer considers one clamped pose for dispatch. It returns true when an
// envelope was handed to the transport (successfully or not); false means
// the pose was suppressed by rate limiting or the movement threshold.
func (s *Scheduler) Offer(p cueing.Pose) (bool, error) {
	now := s.now()

	// Maximum output rate: one command per MinCommandInterval.
	var elapsed time.Duration
	if s.lastSent.IsZero() {
		elapsed = s.cfg.MinCommandInterval
	} else {
		elapsed = now.Sub(s.lastSent)
		if elapsed < s.cfg.MinCommandInterval {
			s.suppressed++
			return false, nil
		}
	}

	limited := s.slewLimit(p, elapsed)

	// Minimum-movement threshold. lastSent is deliberately not advanced
	// here: small deltas accumulate against the same reference pose and
	// eventually cross the threshold instead of being starved forever.
	if floats.Distance(limited.Values(), s.lastPose.Values(), 2) < s.cfg.PositionThreshold {
		s.suppressed++
		return false, nil
	}

	s.sequence++
	env := actuator.Envelope{
		Pose:     limited,
		Sequence: s.sequence,
		IssuedAt: now,
	}

	err := s.send(env)

	// A failed send still consumes the rate-limit slot so a failing link
	// is not hammered at telemetry rate.
	s.lastPose = limited
	s.lastSent = now
	s.dispatched++
	return true, err
}

// slewLimit moves each axis from the last sent pose toward the target by
// at most slewRate*elapsed, guaranteeing bounded platform velocity no
// matter what the filter emits.
func (s *Scheduler) slewLimit(target cueing.Pose, elapsed time.Duration) cueing.Pose {
	dt := elapsed.Seconds()
	out := s.lastPose
	for a := cueing.Axis(0); a < cueing.NumAxes; a++ {
		rate := s.cfg.SlewRateTranslation
		if a == cueing.AxisRoll || a == cueing.AxisPitch || a == cueing.AxisYaw {
			rate = s.cfg.SlewRateRotation
		}
		maxStep := rate * dt

		delta := target.Get(a) - s.lastPose.Get(a)
		if math.Abs(delta) > maxStep {
			delta = math.Copysign(maxStep, delta)
		}
		out = out.Set(a, s.lastPose.Get(a)+delta)
	}
	return out
}

// send attempts the transport write with bounded retry and exponential
// backoff. Exhausting the budget faults the safety machine.
func (s *Scheduler) send(env actuator.Envelope) error {
	var err error
	backoff := s.cfg.RetryBackoff
	for attempt := 0; ; attempt++ {
		err = s.transport.Send(env)
		if err == nil {
			return nil
		}
		if attempt >= s.cfg.MaxRetries {
			break
		}
		log.Printf("Transport send failed (attempt %d/%d): %v", attempt+1, s.cfg.MaxRetries, err)
		s.sleep(backoff)
		backoff *= 2
	}

	reason := fmt.Sprintf("transport send seq %d failed after %d retries: %v", env.Sequence, s.cfg.MaxRetries, err)
	if s.faults != nil {
		s.faults.Fault(reason)
	}
	return fmt.Errorf("scheduler: %s", reason)
}

// Reset clears rate and slew history after a re-home so the next command
// ramps from the home pose. Sequence numbers keep increasing across
// resets; ordering is per session, not per home cycle.
func (s *Scheduler) Reset() {
	s.lastPose = cueing.Home
	s.lastSent = time.Time{}
}

// Stats returns dispatch and suppression counters.
func (s *Scheduler) Stats() (dispatched, suppressed uint64) {
	return s.dispatched, s.suppressed
}
