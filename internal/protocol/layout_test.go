package protocol

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLayoutsValidate(t *testing.T) {
	require.NoError(t, DefaultLayouts().Validate())
}

func TestLoadLayoutsPartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "protocols.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"jp_qs_s4:\n  voltage_divisor: 100\nninebot:\n  max_length: 48\n",
	), 0o644))

	layouts, err := LoadLayouts(path)
	require.NoError(t, err)

	assert.Equal(t, 100.0, layouts.JP.VoltageDivisor)
	assert.Equal(t, 48, layouts.Ninebot.MaxLength)

	// Unspecified fields keep their defaults.
	want := DefaultLayouts()
	want.JP.VoltageDivisor = 100
	want.Ninebot.MaxLength = 48
	if diff := cmp.Diff(want, layouts); diff != "" {
		t.Errorf("layouts mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadLayoutsRejectsBadExtension(t *testing.T) {
	_, err := LoadLayouts("protocols.json")
	require.Error(t, err)
}

func TestLoadLayoutsRejectsOutOfFrameOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "protocols.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"jp_qs_s4:\n  throttle_offset: 14\n",
	), 0o644))

	_, err := LoadLayouts(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttle_offset")
}

func TestLayoutDrivenDescriptor(t *testing.T) {
	// A corrected layout flows through to decoding without decoder changes.
	layout := DefaultLayouts().JP
	layout.VoltageDivisor = 100
	desc := NewJPDescriptor(layout)

	frame := jpTestFrame(0x04, map[int]byte{4: 0xC4, 5: 0x12}) // 4804
	f, err := desc.Decode(frame)
	require.NoError(t, err)
	require.NotNil(t, f.Voltage)
	assert.InDelta(t, 48.04, *f.Voltage, 1e-9)
}
