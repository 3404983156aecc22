package cueing

import "fmt"

// Axis identifies one of the six platform degrees of freedom.
type Axis int

const (
	AxisSurge Axis = iota // forward/back, meters
	AxisSway              // left/right, meters
	AxisHeave             // up/down, meters
	AxisRoll              // lean left/right, radians
	AxisPitch             // nose up/down, radians
	AxisYaw               // rotate left/right, radians

	NumAxes = 6
)

func (a Axis) String() string {
	switch a {
	case AxisSurge:
		return "surge"
	case AxisSway:
		return "sway"
	case AxisHeave:
		return "heave"
	case AxisRoll:
		return "roll"
	case AxisPitch:
		return "pitch"
	case AxisYaw:
		return "yaw"
	}
	return "unknown"
}

// Pose is a 6-DOF platform command. This is the target position of the
// platform, not individual actuator positions; the platform controller
// handles inverse kinematics internally. Poses pass through the pipeline
// by value.
type Pose struct {
	Surge float64 // meters, forward(+) / back(-)
	Sway  float64 // meters, right(+) / left(-)
	Heave float64 // meters, up(+) / down(-)
	Roll  float64 // radians, lean right(+) / left(-)
	Pitch float64 // radians, nose up(+) / down(-)
	Yaw   float64 // radians, rotate right(+) / left(-)
}

// Home is the all-zero neutral pose.
var Home = Pose{}

// Get returns the value of one axis.
func (p Pose) Get(a Axis) float64 {
	switch a {
	case AxisSurge:
		return p.Surge
	case AxisSway:
		return p.Sway
	case AxisHeave:
		return p.Heave
	case AxisRoll:
		return p.Roll
	case AxisPitch:
		return p.Pitch
	case AxisYaw:
		return p.Yaw
	}
	return 0
}

// Set returns a copy of the pose with one axis replaced.
func (p Pose) Set(a Axis, v float64) Pose {
	switch a {
	case AxisSurge:
		p.Surge = v
	case AxisSway:
		p.Sway = v
	case AxisHeave:
		p.Heave = v
	case AxisRoll:
		p.Roll = v
	case AxisPitch:
		p.Pitch = v
	case AxisYaw:
		p.Yaw = v
	}
	return p
}

// Values returns the pose as a fixed-order axis slice (surge, sway,
// heave, roll, pitch, yaw).
func (p Pose) Values() []float64 {
	return []float64{p.Surge, p.Sway, p.Heave, p.Roll, p.Pitch, p.Yaw}
}

func (p Pose) String() string {
	return fmt.Sprintf("Pose(surge=%.3f sway=%.3f heave=%.3f roll=%.3f pitch=%.3f yaw=%.3f)",
		p.Surge, p.Sway, p.Heave, p.Roll, p.Pitch, p.Yaw)
}
