// Package units provides shared constants and validation for speed units
package units

// Unit constants
const (
	KMH = "kmh"
	MPH = "mph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{KMH, MPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "kmh, mph"
}

// ConvertSpeed converts a speed from km/h to the target units.
// The bus protocols report speed in km/h, so that is the stored canonical unit.
func ConvertSpeed(speedKMH float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedKMH * 0.6213711922
	case KMH:
		return speedKMH
	default:
		return speedKMH // default to km/h if unknown unit
	}
}
