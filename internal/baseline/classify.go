package baseline

import (
	"math"

	"github.com/electrifix/scootertap/internal/protocol"
)

// Verdict is the per-field comparison outcome for one telemetry frame.
type Verdict string

const (
	VerdictNormal        Verdict = "normal"
	VerdictWarning       Verdict = "warning"
	VerdictError         Verdict = "error"
	VerdictNotApplicable Verdict = "not_applicable"
)

// Classify compares every field of the frame against the baseline and returns
// a per-field verdict. It is a pure function of its inputs: no hidden state,
// deterministic, cheap enough to run on every frame at stream rate.
//
// Rules: a value inside [min,max] (bounds inclusive) is normal; outside but
// within the tolerance band is a warning; beyond the band is an error. Fields
// absent from either the frame or the baseline, and frames compared with no
// baseline loaded, classify as not_applicable. tolerance <= 0 falls back to
// DefaultTolerance.
func Classify(f *protocol.Frame, b *Baseline, tolerance float64) map[protocol.Field]Verdict {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	result := make(map[protocol.Field]Verdict)

	for _, field := range protocol.NumericFields {
		value, inFrame := f.Numeric(field)
		if b == nil {
			if inFrame {
				result[field] = VerdictNotApplicable
			}
			continue
		}
		r, inBaseline := b.Ranges[field]
		switch {
		case inFrame && inBaseline:
			result[field] = classifyValue(value, r, tolerance)
		case inFrame || inBaseline:
			result[field] = VerdictNotApplicable
		}
	}

	if f.Mode != protocol.ModeUnknown {
		if b == nil || len(b.Modes) == 0 {
			result[protocol.FieldMode] = VerdictNotApplicable
		} else if b.AcceptsMode(f.Mode) {
			result[protocol.FieldMode] = VerdictNormal
		} else {
			// No tolerance band exists for a discrete set; an
			// unexpected mode is an error outright.
			result[protocol.FieldMode] = VerdictError
		}
	}

	return result
}

func classifyValue(v float64, r Range, tolerance float64) Verdict {
	if r.Contains(v) {
		return VerdictNormal
	}
	band := tolerance * (r.Max - r.Min)
	if band <= 0 {
		// Degenerate single-value range: extend by a fraction of the
		// bound itself, with a floor of one unit.
		band = tolerance * math.Max(math.Abs(r.Max), 1)
	}
	if v >= r.Min-band && v <= r.Max+band {
		return VerdictWarning
	}
	return VerdictError
}

// WorstVerdict reduces a classification map to its most severe verdict,
// ignoring not_applicable entries. It returns not_applicable when nothing
// was comparable.
func WorstVerdict(m map[protocol.Field]Verdict) Verdict {
	worst := VerdictNotApplicable
	rank := map[Verdict]int{
		VerdictNotApplicable: 0,
		VerdictNormal:        1,
		VerdictWarning:       2,
		VerdictError:         3,
	}
	for _, v := range m {
		if rank[v] > rank[worst] {
			worst = v
		}
	}
	return worst
}
