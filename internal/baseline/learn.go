package baseline

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/electrifix/scootertap/internal/protocol"
)

// ErrNoSamples is returned when Finalize is called before any valid frame
// was added.
var ErrNoSamples = fmt.Errorf("no samples collected")

// Learner accumulates decoded frames from a known-good capture and produces
// a Baseline from the observed value distributions. The capture session never
// learns; learning is a separate workflow run against a healthy scooter.
type Learner struct {
	samples map[protocol.Field][]float64
	modes   map[protocol.Mode]bool
	frames  int
}

// NewLearner returns an empty learner.
func NewLearner() *Learner {
	return &Learner{
		samples: make(map[protocol.Field][]float64),
		modes:   make(map[protocol.Mode]bool),
	}
}

// Add folds one decoded frame into the sample set. Frames with no available
// fields still count toward the sample total.
func (l *Learner) Add(f protocol.Frame) {
	l.frames++
	for _, field := range protocol.NumericFields {
		if v, ok := f.Numeric(field); ok {
			l.samples[field] = append(l.samples[field], v)
		}
	}
	if f.Mode != protocol.ModeUnknown {
		l.modes[f.Mode] = true
	}
}

// Frames returns the number of frames added so far.
func (l *Learner) Frames() int { return l.frames }

// Finalize builds the baseline for the given model. Each field's range is the
// observed min/max widened to mean±2σ when the sample spread justifies it, so
// a short capture does not produce a range so tight that normal jitter trips
// warnings.
func (l *Learner) Finalize(modelID int64, notes string) (*Baseline, error) {
	if l.frames == 0 {
		return nil, ErrNoSamples
	}

	ranges := make(map[protocol.Field]Range, len(l.samples))
	for field, values := range l.samples {
		if len(values) == 0 {
			continue
		}
		lo, hi := values[0], values[0]
		for _, v := range values[1:] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if len(values) >= 2 {
			mean, sd := stat.MeanStdDev(values, nil)
			if !math.IsNaN(sd) {
				lo = math.Min(lo, mean-2*sd)
				hi = math.Max(hi, mean+2*sd)
			}
		}
		ranges[field] = Range{Min: lo, Max: hi}
	}

	modes := make([]protocol.Mode, 0, len(l.modes))
	for m := range l.modes {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })

	return &Baseline{
		ModelID:     modelID,
		CapturedAt:  time.Now(),
		SampleCount: l.frames,
		Notes:       notes,
		Ranges:      ranges,
		Modes:       modes,
	}, nil
}
