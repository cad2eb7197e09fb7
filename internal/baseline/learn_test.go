package baseline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electrifix/scootertap/internal/protocol"
)

func TestLearnerFinalizeEmpty(t *testing.T) {
	_, err := NewLearner().Finalize(1, "")
	require.ErrorIs(t, err, ErrNoSamples)
}

func TestLearnerBuildsRangesAndModes(t *testing.T) {
	l := NewLearner()
	for _, v := range []float64{47.8, 48.1, 48.3, 48.0, 47.9} {
		f := protocol.NewFrame(protocol.ProtocolJPQS, time.Now())
		voltage := v
		f.Voltage = &voltage
		f.Mode = protocol.ModeEco
		l.Add(f)
	}
	sport := protocol.NewFrame(protocol.ProtocolJPQS, time.Now())
	sport.Mode = protocol.ModeSport
	l.Add(sport)

	b, err := l.Finalize(7, "bench capture")
	require.NoError(t, err)

	assert.Equal(t, int64(7), b.ModelID)
	assert.Equal(t, 6, b.SampleCount)
	assert.Equal(t, "bench capture", b.Notes)
	assert.Equal(t, []protocol.Mode{protocol.ModeEco, protocol.ModeSport}, b.Modes)

	r, ok := b.Ranges[protocol.FieldVoltage]
	require.True(t, ok)
	// The range covers every observed value, widened by the spread.
	assert.LessOrEqual(t, r.Min, 47.8)
	assert.GreaterOrEqual(t, r.Max, 48.3)
	assert.Less(t, r.Max-r.Min, 2.0, "widening should stay proportionate to jitter")

	// Fields never observed produce no range.
	_, ok = b.Ranges[protocol.FieldSpeed]
	assert.False(t, ok)
}

func TestLearnerSingleSample(t *testing.T) {
	l := NewLearner()
	f := protocol.NewFrame(protocol.ProtocolNinebot, time.Now())
	temp := 31.5
	f.Temperature = &temp
	l.Add(f)

	b, err := l.Finalize(2, "")
	require.NoError(t, err)
	assert.Equal(t, Range{Min: 31.5, Max: 31.5}, b.Ranges[protocol.FieldTemperature])
}

func TestLearnedBaselineClassifiesItsOwnSamples(t *testing.T) {
	l := NewLearner()
	values := []float64{12.0, 14.5, 13.2, 12.8}
	for _, v := range values {
		f := protocol.NewFrame(protocol.ProtocolJPQS, time.Now())
		speed := v
		f.SpeedKMH = &speed
		l.Add(f)
	}
	b, err := l.Finalize(1, "")
	require.NoError(t, err)

	for _, v := range values {
		f := protocol.NewFrame(protocol.ProtocolJPQS, time.Now())
		speed := v
		f.SpeedKMH = &speed
		got := Classify(&f, b, DefaultTolerance)
		assert.Equal(t, VerdictNormal, got[protocol.FieldSpeed], "sample %v", v)
	}
}
