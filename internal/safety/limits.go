package safety

import (
	"fmt"

	"github.com/banshee-data/simrig/internal/cueing"
)

// AxisLimits bounds one axis. Min and Max may be asymmetric (the platform
// has more forward surge travel than rearward).
type AxisLimits struct {
	Min float64
	Max float64
}

// Limits holds the per-axis excursion envelope. Loaded once from
// configuration and read-only afterwards. The same Limits value is applied
// twice: once by the safety state machine and again inside each actuator
// transport, so neither layer has to trust the other.
type Limits struct {
	Surge AxisLimits // meters
	Sway  AxisLimits // meters
	Heave AxisLimits // meters
	Roll  AxisLimits // radians
	Pitch AxisLimits // radians
	Yaw   AxisLimits // radians
}

// DefaultLimits returns the envelope of the 6DOF2000E platform.
func DefaultLimits() Limits {
	return Limits{
		Surge: AxisLimits{Min: -0.241, Max: 0.259},
		Sway:  AxisLimits{Min: -0.259, Max: 0.259},
		Heave: AxisLimits{Min: -0.178, Max: 0.178},
		Roll:  AxisLimits{Min: -0.3665, Max: 0.3665},
		Pitch: AxisLimits{Min: -0.3840, Max: 0.3840},
		Yaw:   AxisLimits{Min: -0.3840, Max: 0.3840},
	}
}

// Axis returns the limits for one axis.
func (l Limits) Axis(a cueing.Axis) AxisLimits {
	switch a {
	case cueing.AxisSurge:
		return l.Surge
	case cueing.AxisSway:
		return l.Sway
	case cueing.AxisHeave:
		return l.Heave
	case cueing.AxisRoll:
		return l.Roll
	case cueing.AxisPitch:
		return l.Pitch
	case cueing.AxisYaw:
		return l.Yaw
	}
	return AxisLimits{}
}

// Validate rejects envelopes that cannot contain the home pose.
func (l Limits) Validate() error {
	for a := cueing.Axis(0); a < cueing.NumAxes; a++ {
		lim := l.Axis(a)
		if lim.Min > lim.Max {
			return fmt.Errorf("safety: %s limits inverted (min %v > max %v)", a, lim.Min, lim.Max)
		}
		if lim.Min > 0 || lim.Max < 0 {
			return fmt.Errorf("safety: %s limits exclude home position", a)
		}
	}
	return nil
}

// Clamp saturates every axis of a pose to the envelope and reports
// whether any axis was clamped. Saturation, never wraparound; clamping an
// already-clamped pose is a no-op.
func Clamp(p cueing.Pose, l Limits) (cueing.Pose, bool) {
	clamped := false
	for a := cueing.Axis(0); a < cueing.NumAxes; a++ {
		lim := l.Axis(a)
		v := p.Get(a)
		switch {
		case v < lim.Min:
			p = p.Set(a, lim.Min)
			clamped = true
		case v > lim.Max:
			p = p.Set(a, lim.Max)
			clamped = true
		}
	}
	return p, clamped
}
