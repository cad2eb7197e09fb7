package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// JP/QS-S4 protocol constants. The protocol runs the dashboard and motor
// controller over a shared 1200-baud line with fixed 15-byte frames in both
// directions, distinguished by the second header byte. The final byte is an
// XOR checksum of all preceding bytes.
const (
	ProtocolJPQS = "jp_qs_s4"

	jpHeaderDashToCtrl = 0x03 // dashboard → controller
	jpHeaderCtrlToDash = 0x04 // controller → dashboard
)

// jpErrorMessages maps the controller error-code byte to a description.
var jpErrorMessages = map[int]string{
	0x00: "No error",
	0x01: "Motor hall sensor error",
	0x02: "Throttle error",
	0x03: "Motor phase error",
	0x04: "Motor stalled",
	0x05: "Controller overheat",
	0x06: "Overcurrent",
	0x07: "Battery low voltage",
	0x08: "Battery high voltage",
	0x09: "BMS communication error",
	0x0A: "Motor hall sensor error B",
	0x0B: "Motor hall sensor error C",
}

// JPErrorMessage returns the description for a controller error code.
func JPErrorMessage(code int) string {
	if msg, ok := jpErrorMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown error 0x%02X", code)
}

// NewJPDescriptor builds the JP/QS-S4 descriptor from a wire layout.
func NewJPDescriptor(layout JPLayout) *Descriptor {
	return &Descriptor{
		Name:     ProtocolJPQS,
		BaudRate: layout.BaudRate,
		Markers: [][]byte{
			{0x01, jpHeaderDashToCtrl},
			{0x01, jpHeaderCtrlToDash},
		},
		Length: LengthRule{Fixed: layout.FrameLength},
		Validate: func(data []byte) bool {
			return jpValidate(data, layout.FrameLength)
		},
		Decode: func(data []byte) (Frame, error) {
			return jpDecode(data, layout)
		},
	}
}

// jpValidate checks the XOR checksum: the last byte must equal the XOR of
// every byte before it.
func jpValidate(data []byte, frameLength int) bool {
	if len(data) != frameLength {
		return false
	}
	var sum byte
	for _, b := range data[:frameLength-1] {
		sum ^= b
	}
	return sum == data[frameLength-1]
}

func jpDecode(data []byte, layout JPLayout) (Frame, error) {
	if len(data) != layout.FrameLength {
		return Frame{}, fmt.Errorf("jp_qs_s4: frame length %d, want %d", len(data), layout.FrameLength)
	}

	f := NewFrame(ProtocolJPQS, time.Now())
	switch data[1] {
	case jpHeaderDashToCtrl:
		throttle := round1(clampPercent(float64(data[layout.ThrottleOffset]) / 255 * 100))
		brake := round1(clampPercent(float64(data[layout.BrakeOffset]) / 255 * 100))
		f.Throttle = ptrFloat64(throttle)
		f.BrakePercent = ptrFloat64(brake)
		f.BrakeEngaged = ptrBool(brake > layout.BrakeEngagedPercent)
		f.Mode = clampMode(int(data[layout.ModeOffset]))
		f.Headlight = ptrBool(data[layout.HeadlightOffset] == 1)
		f.Cruise = ptrBool(data[layout.CruiseOffset] == 1)
	case jpHeaderCtrlToDash:
		speed := float64(binary.LittleEndian.Uint16(data[layout.SpeedOffset:])) / layout.SpeedDivisor
		voltage := float64(binary.LittleEndian.Uint16(data[layout.VoltageOffset:])) / layout.VoltageDivisor
		current := float64(binary.LittleEndian.Uint16(data[layout.CurrentOffset:])) / layout.CurrentDivisor
		code := int(data[layout.ErrorCodeOffset])
		f.SpeedKMH = ptrFloat64(speed)
		f.Voltage = ptrFloat64(voltage)
		f.Current = ptrFloat64(current)
		f.Temperature = ptrFloat64(float64(data[layout.TemperatureOffset]))
		f.ErrorCode = ptrInt(code)
		f.ErrorMessage = JPErrorMessage(code)
	default:
		return Frame{}, fmt.Errorf("jp_qs_s4: unknown direction byte 0x%02X", data[1])
	}
	return f, nil
}

// round1 rounds to one decimal place, matching the protocol's /10 fixed-point
// convention.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// clampPercent clamps a percentage to [0,100]; a noisy raw byte mapping out
// of range must not void an otherwise-valid frame.
func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// clampMode maps the raw mode byte to a known mode, clamping noisy values to
// the highest mode the way the dashboards themselves do.
func clampMode(raw int) Mode {
	if raw < 0 {
		return ModeUnknown
	}
	if raw > int(ModeTurbo) {
		return ModeTurbo
	}
	return Mode(raw)
}
