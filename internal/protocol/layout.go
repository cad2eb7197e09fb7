package protocol

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Layouts carries the wire-level frame layouts for every supported protocol:
// sync markers, field byte offsets, scaling divisors, and length limits. The
// decoders consume these as configuration data so that a corrected layout can
// be shipped without touching decoder code.
type Layouts struct {
	JP      JPLayout      `yaml:"jp_qs_s4"`
	Ninebot NinebotLayout `yaml:"ninebot"`
}

// JPLayout is the byte layout of the JP/QS-S4 fixed-frame protocol. Offsets
// are from frame start; the checksum is always the final byte.
type JPLayout struct {
	FrameLength int `yaml:"frame_length"`
	BaudRate    int `yaml:"baud_rate"`

	// Dashboard → controller frame.
	ThrottleOffset  int `yaml:"throttle_offset"`
	BrakeOffset     int `yaml:"brake_offset"`
	ModeOffset      int `yaml:"mode_offset"`
	HeadlightOffset int `yaml:"headlight_offset"`
	CruiseOffset    int `yaml:"cruise_offset"`

	// Controller → dashboard frame. Multi-byte fields are little-endian.
	SpeedOffset       int `yaml:"speed_offset"`
	VoltageOffset     int `yaml:"voltage_offset"`
	CurrentOffset     int `yaml:"current_offset"`
	ErrorCodeOffset   int `yaml:"error_code_offset"`
	TemperatureOffset int `yaml:"temperature_offset"`

	SpeedDivisor   float64 `yaml:"speed_divisor"`
	VoltageDivisor float64 `yaml:"voltage_divisor"`
	CurrentDivisor float64 `yaml:"current_divisor"`

	// BrakeEngagedPercent is the brake input percentage above which the
	// brake is reported as engaged.
	BrakeEngagedPercent float64 `yaml:"brake_engaged_percent"`
}

// NinebotLayout is the layout of the Ninebot/Xiaomi length-prefixed protocol.
type NinebotLayout struct {
	BaudRate int `yaml:"baud_rate"`

	// MaxLength caps the total frame length derived from the length byte.
	MaxLength int `yaml:"max_length"`

	// Register scaling divisors for the field registers carried in
	// READ_RESPONSE payloads.
	SpeedDivisor       float64 `yaml:"speed_divisor"`
	VoltageDivisor     float64 `yaml:"voltage_divisor"`
	CurrentDivisor     float64 `yaml:"current_divisor"`
	TemperatureDivisor float64 `yaml:"temperature_divisor"`

	// BrakeEngagedRaw is the raw brake register value above which the
	// brake is reported as engaged.
	BrakeEngagedRaw int `yaml:"brake_engaged_raw"`
}

// DefaultLayouts returns the documented layouts for the built-in protocols.
func DefaultLayouts() Layouts {
	return Layouts{
		JP: JPLayout{
			FrameLength:         15,
			BaudRate:            1200,
			ThrottleOffset:      2,
			BrakeOffset:         3,
			ModeOffset:          4,
			HeadlightOffset:     5,
			CruiseOffset:        7,
			SpeedOffset:         2,
			VoltageOffset:       4,
			CurrentOffset:       6,
			ErrorCodeOffset:     8,
			TemperatureOffset:   9,
			SpeedDivisor:        10,
			VoltageDivisor:      10,
			CurrentDivisor:      10,
			BrakeEngagedPercent: 10,
		},
		Ninebot: NinebotLayout{
			BaudRate:           115200,
			MaxLength:          64,
			SpeedDivisor:       1000,
			VoltageDivisor:     100,
			CurrentDivisor:     100,
			TemperatureDivisor: 10,
			BrakeEngagedRaw:    25,
		},
	}
}

// LoadLayouts reads a YAML layout file and overlays it on the defaults, so
// partial files only overriding a few offsets or divisors are safe.
func LoadLayouts(path string) (Layouts, error) {
	layouts := DefaultLayouts()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return layouts, fmt.Errorf("layout file must have .yaml extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return layouts, fmt.Errorf("failed to read layout file: %w", err)
	}
	if err := yaml.Unmarshal(data, &layouts); err != nil {
		return layouts, fmt.Errorf("failed to parse layout YAML: %w", err)
	}
	if err := layouts.Validate(); err != nil {
		return layouts, fmt.Errorf("invalid layout: %w", err)
	}
	return layouts, nil
}

// Validate checks the layouts for offsets that cannot fit their frames.
func (l Layouts) Validate() error {
	jp := l.JP
	if jp.FrameLength < 4 {
		return fmt.Errorf("jp_qs_s4 frame_length %d too small", jp.FrameLength)
	}
	maxOffset := jp.FrameLength - 1 // last byte is the checksum
	for name, off := range map[string]int{
		"throttle_offset":    jp.ThrottleOffset,
		"brake_offset":       jp.BrakeOffset,
		"mode_offset":        jp.ModeOffset,
		"headlight_offset":   jp.HeadlightOffset,
		"cruise_offset":      jp.CruiseOffset,
		"error_code_offset":  jp.ErrorCodeOffset,
		"temperature_offset": jp.TemperatureOffset,
	} {
		if off < 2 || off >= maxOffset {
			return fmt.Errorf("jp_qs_s4 %s %d out of frame", name, off)
		}
	}
	for name, off := range map[string]int{
		"speed_offset":   jp.SpeedOffset,
		"voltage_offset": jp.VoltageOffset,
		"current_offset": jp.CurrentOffset,
	} {
		if off < 2 || off+1 >= maxOffset {
			return fmt.Errorf("jp_qs_s4 %s %d out of frame", name, off)
		}
	}
	for name, div := range map[string]float64{
		"jp_qs_s4 speed_divisor":      jp.SpeedDivisor,
		"jp_qs_s4 voltage_divisor":    jp.VoltageDivisor,
		"jp_qs_s4 current_divisor":    jp.CurrentDivisor,
		"ninebot speed_divisor":       l.Ninebot.SpeedDivisor,
		"ninebot voltage_divisor":     l.Ninebot.VoltageDivisor,
		"ninebot current_divisor":     l.Ninebot.CurrentDivisor,
		"ninebot temperature_divisor": l.Ninebot.TemperatureDivisor,
	} {
		if div <= 0 {
			return fmt.Errorf("%s must be positive, got %g", name, div)
		}
	}
	if l.Ninebot.MaxLength < ninebotMinFrame {
		return fmt.Errorf("ninebot max_length %d below minimum frame size %d", l.Ninebot.MaxLength, ninebotMinFrame)
	}
	return nil
}
