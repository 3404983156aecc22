// Package units provides shared conversion helpers for motion values.
// Pose translations are meters and rotations radians; the actuator and
// operator surfaces variously want millimeters and degrees.
package units

import "math"

// MillimetersPerMeter converts pose translations to actuator millimeters.
const MillimetersPerMeter = 1000.0

// RadiansToDegrees converts an angle in radians to degrees.
func RadiansToDegrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}
