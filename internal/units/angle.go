// Package units provides shared constants and conversions for angle units.
package units

import "math"

// Unit constants
const (
	Degrees = "deg"
	Radians = "rad"
)

// ValidUnits contains all valid angle unit values.
var ValidUnits = []string{Degrees, Radians}

// IsValid checks if the given unit is in the list of valid units.
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ConvertAngle converts an angle from degrees to the target units.
// The pipeline stores all angles in degrees.
func ConvertAngle(angleDeg float64, targetUnits string) float64 {
	switch targetUnits {
	case Radians:
		return angleDeg * math.Pi / 180.0
	case Degrees:
		return angleDeg
	default:
		return angleDeg
	}
}

// ConvertRate converts an angular rate from degrees/second to the target units.
func ConvertRate(rateDegS float64, targetUnits string) float64 {
	return ConvertAngle(rateDegS, targetUnits)
}
