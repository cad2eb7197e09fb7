// Package config loads the diagnostics tuning parameters.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// Tuning represents the adjustable diagnostics parameters. Fields are
// pointers so that a partial config file only overrides what it names; the
// Get* methods supply the documented defaults for everything else.
type Tuning struct {
	// ToleranceBand is the fraction of a baseline range's span by which
	// the warning band extends beyond min/max before a deviation is an
	// error.
	ToleranceBand *float64 `json:"tolerance_band,omitempty"`

	// DetectThreshold is the number of consecutive valid frames required
	// to lock in a protocol during auto-detection.
	DetectThreshold *int `json:"detect_threshold,omitempty"`

	// DetectBudgetBytes bounds how many stream bytes auto-detection (and
	// the no-valid-data check) may consume before degrading.
	DetectBudgetBytes *int64 `json:"detect_budget_bytes,omitempty"`

	// MaxBufferBytes caps the synchronizer's pending-byte buffer.
	MaxBufferBytes *int `json:"max_buffer_bytes,omitempty"`

	// RPMPerKMH estimates motor RPM from road speed for protocols that do
	// not report RPM directly.
	RPMPerKMH *float64 `json:"rpm_per_kmh,omitempty"`
}

// EmptyTuning returns a Tuning with every field unset.
func EmptyTuning() *Tuning {
	return &Tuning{}
}

// LoadTuning loads a Tuning from a JSON file. Fields omitted from the file
// retain their defaults, so partial configs are safe.
func LoadTuning(path string) (*Tuning, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuning()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Tuning) Validate() error {
	if c.ToleranceBand != nil {
		if *c.ToleranceBand < 0 || *c.ToleranceBand > 1 {
			return fmt.Errorf("tolerance_band must be between 0 and 1, got %f", *c.ToleranceBand)
		}
	}
	if c.DetectThreshold != nil && *c.DetectThreshold < 1 {
		return fmt.Errorf("detect_threshold must be at least 1, got %d", *c.DetectThreshold)
	}
	if c.DetectBudgetBytes != nil && *c.DetectBudgetBytes < 1 {
		return fmt.Errorf("detect_budget_bytes must be positive, got %d", *c.DetectBudgetBytes)
	}
	if c.MaxBufferBytes != nil && *c.MaxBufferBytes < 256 {
		return fmt.Errorf("max_buffer_bytes must be at least 256, got %d", *c.MaxBufferBytes)
	}
	if c.RPMPerKMH != nil && *c.RPMPerKMH < 0 {
		return fmt.Errorf("rpm_per_kmh must be non-negative, got %f", *c.RPMPerKMH)
	}
	return nil
}

// GetToleranceBand returns the tolerance_band value or the default.
func (c *Tuning) GetToleranceBand() float64 {
	if c.ToleranceBand == nil {
		return 0.20
	}
	return *c.ToleranceBand
}

// GetDetectThreshold returns the detect_threshold value or the default.
func (c *Tuning) GetDetectThreshold() int {
	if c.DetectThreshold == nil {
		return 3
	}
	return *c.DetectThreshold
}

// GetDetectBudgetBytes returns the detect_budget_bytes value or the default.
func (c *Tuning) GetDetectBudgetBytes() int64 {
	if c.DetectBudgetBytes == nil {
		return 4096
	}
	return *c.DetectBudgetBytes
}

// GetMaxBufferBytes returns the max_buffer_bytes value or the default.
func (c *Tuning) GetMaxBufferBytes() int {
	if c.MaxBufferBytes == nil {
		return 64 * 1024
	}
	return *c.MaxBufferBytes
}

// GetRPMPerKMH returns the rpm_per_kmh value or the default. The default of
// 24.5 corresponds to the common 8.5-inch scooter wheel.
func (c *Tuning) GetRPMPerKMH() float64 {
	if c.RPMPerKMH == nil {
		return 24.5
	}
	return *c.RPMPerKMH
}
