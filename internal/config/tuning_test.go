package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyTuningDefaults(t *testing.T) {
	cfg := EmptyTuning()

	assert.Equal(t, 0.20, cfg.GetToleranceBand())
	assert.Equal(t, 3, cfg.GetDetectThreshold())
	assert.Equal(t, int64(4096), cfg.GetDetectBudgetBytes())
	assert.Equal(t, 64*1024, cfg.GetMaxBufferBytes())
	assert.Equal(t, 24.5, cfg.GetRPMPerKMH())
}

func TestLoadTuningPartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.json")
	content := `{"tolerance_band": 0.1, "detect_threshold": 5}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadTuning(path)
	require.NoError(t, err)

	assert.Equal(t, 0.1, cfg.GetToleranceBand())
	assert.Equal(t, 5, cfg.GetDetectThreshold())
	// untouched fields keep their defaults
	assert.Equal(t, int64(4096), cfg.GetDetectBudgetBytes())
	assert.Equal(t, 24.5, cfg.GetRPMPerKMH())
}

func TestLoadTuningRejectsNonJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	_, err := LoadTuning(path)
	assert.ErrorContains(t, err, ".json extension")
}

func TestLoadTuningMissingFile(t *testing.T) {
	_, err := LoadTuning(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadTuningMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tolerance_band": `), 0o644))

	_, err := LoadTuning(path)
	assert.ErrorContains(t, err, "parse config JSON")
}

func TestTuningValidate(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	i := func(v int) *int { return &v }
	i64 := func(v int64) *int64 { return &v }

	tests := []struct {
		name    string
		cfg     Tuning
		wantErr string
	}{
		{"empty is valid", Tuning{}, ""},
		{"tolerance negative", Tuning{ToleranceBand: f(-0.1)}, "tolerance_band"},
		{"tolerance above one", Tuning{ToleranceBand: f(1.5)}, "tolerance_band"},
		{"threshold zero", Tuning{DetectThreshold: i(0)}, "detect_threshold"},
		{"budget zero", Tuning{DetectBudgetBytes: i64(0)}, "detect_budget_bytes"},
		{"buffer too small", Tuning{MaxBufferBytes: i(100)}, "max_buffer_bytes"},
		{"rpm negative", Tuning{RPMPerKMH: f(-1)}, "rpm_per_kmh"},
		{"all valid", Tuning{
			ToleranceBand:     f(0.3),
			DetectThreshold:   i(2),
			DetectBudgetBytes: i64(8192),
			MaxBufferBytes:    i(1024),
			RPMPerKMH:         f(30),
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
