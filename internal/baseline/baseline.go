// Package baseline holds learned per-model operating ranges and classifies
// live telemetry frames against them.
package baseline

import (
	"time"

	"github.com/electrifix/scootertap/internal/protocol"
)

// DefaultTolerance is the fraction of a range's span by which the warning
// band extends beyond {min,max} before a deviation escalates to an error.
const DefaultTolerance = 0.20

// Range is an accepted [Min, Max] interval for one telemetry field. Bounds
// are inclusive.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies within the range, bounds included.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Baseline is the recorded normal operating envelope for one scooter model.
// A baseline is immutable once saved; re-learning supersedes it with a new
// record rather than mutating this one.
type Baseline struct {
	ModelID     int64                    `json:"model_id"`
	CapturedAt  time.Time                `json:"captured_at"`
	SampleCount int                      `json:"sample_count"`
	Notes       string                   `json:"notes,omitempty"`
	Ranges      map[protocol.Field]Range `json:"ranges"`
	// Modes is the discrete set of speed modes observed during learning.
	Modes []protocol.Mode `json:"modes,omitempty"`
}

// AcceptsMode reports whether the mode is in the baseline's accepted set.
func (b *Baseline) AcceptsMode(m protocol.Mode) bool {
	for _, accepted := range b.Modes {
		if accepted == m {
			return true
		}
	}
	return false
}
