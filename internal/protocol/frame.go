// Package protocol implements byte-level decoding of e-scooter serial bus
// traffic: frame synchronization against per-protocol sync markers, checksum
// validation, and extraction of normalized telemetry fields.
package protocol

import (
	"encoding/hex"
	"time"
)

// Field identifies a single telemetry channel within a Frame. The string
// values double as JSON keys and as baseline range keys in the database.
type Field string

const (
	FieldThrottle     Field = "throttle_percent"
	FieldBrakePercent Field = "brake_percent"
	FieldBrakeEngaged Field = "brake_engaged"
	FieldSpeed        Field = "speed_kmh"
	FieldVoltage      Field = "voltage"
	FieldCurrent      Field = "current"
	FieldTemperature  Field = "temperature"
	FieldBattery      Field = "battery_percent"
	FieldMode         Field = "mode"
	FieldHeadlight    Field = "headlight"
	FieldCruise       Field = "cruise"
	FieldRPM          Field = "rpm"
	FieldErrorCode    Field = "error_code"
)

// NumericFields lists the fields that carry a numeric reading and can be
// compared against a baseline range.
var NumericFields = []Field{
	FieldThrottle,
	FieldBrakePercent,
	FieldSpeed,
	FieldVoltage,
	FieldCurrent,
	FieldTemperature,
	FieldBattery,
	FieldRPM,
	FieldErrorCode,
}

// Mode is the rider-selected speed mode reported by the dashboard.
type Mode int

const (
	ModeUnknown Mode = iota - 1
	ModeEco
	ModeSport
	ModeTurbo
)

func (m Mode) String() string {
	switch m {
	case ModeEco:
		return "eco"
	case ModeSport:
		return "sport"
	case ModeTurbo:
		return "turbo"
	default:
		return "unknown"
	}
}

// Frame is one normalized telemetry snapshot decoded from the bus. Fields use
// pointers so that a value a protocol (or message type) does not carry is
// distinguishable from a genuine zero reading: nil means "unavailable".
//
// A Frame is immutable once returned by a decoder. The session layer merges
// successive partial frames into a running snapshot with Merge.
type Frame struct {
	Throttle     *float64 `json:"throttle_percent,omitempty"`
	BrakePercent *float64 `json:"brake_percent,omitempty"`
	BrakeEngaged *bool    `json:"brake_engaged,omitempty"`
	SpeedKMH     *float64 `json:"speed_kmh,omitempty"`
	Voltage      *float64 `json:"voltage,omitempty"`
	Current      *float64 `json:"current,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	Battery      *float64 `json:"battery_percent,omitempty"`
	Mode         Mode     `json:"mode"`
	Headlight    *bool    `json:"headlight,omitempty"`
	Cruise       *bool    `json:"cruise,omitempty"`
	RPM          *float64 `json:"rpm,omitempty"`
	ErrorCode    *int     `json:"error_code,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`

	Protocol   string    `json:"protocol"`
	CapturedAt time.Time `json:"captured_at"`
}

// NewFrame returns an empty frame for the named protocol with every field
// marked unavailable.
func NewFrame(protocol string, at time.Time) Frame {
	return Frame{Mode: ModeUnknown, Protocol: protocol, CapturedAt: at}
}

// Numeric returns the value of a numeric field, with ok reporting whether the
// field is available in this frame.
func (f *Frame) Numeric(field Field) (float64, bool) {
	ptr := func(p *float64) (float64, bool) {
		if p == nil {
			return 0, false
		}
		return *p, true
	}
	switch field {
	case FieldThrottle:
		return ptr(f.Throttle)
	case FieldBrakePercent:
		return ptr(f.BrakePercent)
	case FieldSpeed:
		return ptr(f.SpeedKMH)
	case FieldVoltage:
		return ptr(f.Voltage)
	case FieldCurrent:
		return ptr(f.Current)
	case FieldTemperature:
		return ptr(f.Temperature)
	case FieldBattery:
		return ptr(f.Battery)
	case FieldRPM:
		return ptr(f.RPM)
	case FieldErrorCode:
		if f.ErrorCode == nil {
			return 0, false
		}
		return float64(*f.ErrorCode), true
	}
	return 0, false
}

// Merge folds the available fields of other into f, keeping the latest known
// value per field. Fields unavailable in other are left untouched.
func (f *Frame) Merge(other Frame) {
	if other.Throttle != nil {
		f.Throttle = other.Throttle
	}
	if other.BrakePercent != nil {
		f.BrakePercent = other.BrakePercent
	}
	if other.BrakeEngaged != nil {
		f.BrakeEngaged = other.BrakeEngaged
	}
	if other.SpeedKMH != nil {
		f.SpeedKMH = other.SpeedKMH
	}
	if other.Voltage != nil {
		f.Voltage = other.Voltage
	}
	if other.Current != nil {
		f.Current = other.Current
	}
	if other.Temperature != nil {
		f.Temperature = other.Temperature
	}
	if other.Battery != nil {
		f.Battery = other.Battery
	}
	if other.Mode != ModeUnknown {
		f.Mode = other.Mode
	}
	if other.Headlight != nil {
		f.Headlight = other.Headlight
	}
	if other.Cruise != nil {
		f.Cruise = other.Cruise
	}
	if other.RPM != nil {
		f.RPM = other.RPM
	}
	if other.ErrorCode != nil {
		f.ErrorCode = other.ErrorCode
		f.ErrorMessage = other.ErrorMessage
	}
	if other.Protocol != "" {
		f.Protocol = other.Protocol
	}
	if !other.CapturedAt.IsZero() {
		f.CapturedAt = other.CapturedAt
	}
}

// RawFrame is a contiguous byte window believed to hold one protocol message.
// It is produced by the Synchronizer and consumed by a decoder within a single
// scan pass; the Data slice is an independent copy of the stream bytes.
type RawFrame struct {
	// Protocol is the name of the descriptor whose sync marker matched.
	Protocol string
	// Offset is the byte position of the frame start within the stream.
	Offset int64
	// Data holds the complete candidate frame.
	Data []byte
}

// Hex returns the frame bytes as a lowercase hex string.
func (r RawFrame) Hex() string {
	return hex.EncodeToString(r.Data)
}

// Helper constructors used by the decoders and tests.
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }
