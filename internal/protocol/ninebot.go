package protocol

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Ninebot/Xiaomi protocol constants. Frames are length-prefixed:
//
//	5A A5 | len | src | dst | cmd | arg | payload[len-2] | checksum LE16
//
// where the checksum is 0xFFFF XOR the 16-bit sum of src through payload.
// Telemetry is carried in READ_RESPONSE messages whose argument byte selects
// the register being reported.
const (
	ProtocolNinebot = "ninebot"

	ninebotCmdReadResponse = 0x03

	// header(2) + len(1) + src(1) + dst(1) + cmd(1) + arg(1) + checksum(2)
	ninebotOverhead = 7
	ninebotMinFrame = 9 // overhead + minimum length byte of 2
)

// Ninebot telemetry registers reported via READ_RESPONSE.
const (
	ninebotRegSpeed     = 0x25
	ninebotRegVoltage   = 0x31
	ninebotRegCurrent   = 0x32
	ninebotRegBattery   = 0x34
	ninebotRegTemp      = 0x35
	ninebotRegErrorCode = 0x3A
	ninebotRegThrottle  = 0x50
	ninebotRegBrake     = 0x51
	ninebotRegTailLight = 0xB0
)

var ninebotErrorMessages = map[int]string{
	0:  "No error",
	10: "Undervoltage",
	11: "Overvoltage",
	12: "Motor hall sensor error",
	13: "Motor phase error",
	14: "BMS communication error",
	15: "Controller overheat",
	16: "Motor overheat",
	17: "Overcurrent",
	18: "Short circuit",
	19: "Motor stalled",
	21: "Throttle error",
	22: "Brake error",
	23: "Serial communication error",
	24: "Battery cell imbalance",
}

// NinebotErrorMessage returns the description for a Ninebot error code.
func NinebotErrorMessage(code int) string {
	if msg, ok := ninebotErrorMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown error (%d)", code)
}

// NewNinebotDescriptor builds the Ninebot descriptor from a wire layout.
func NewNinebotDescriptor(layout NinebotLayout) *Descriptor {
	return &Descriptor{
		Name:     ProtocolNinebot,
		BaudRate: layout.BaudRate,
		Markers: [][]byte{
			{0x5A, 0xA5},
			{0x55, 0xAA},
		},
		Length: LengthRule{
			PrefixOffset: 2,
			PrefixAdd:    ninebotOverhead,
			Max:          layout.MaxLength,
		},
		Validate: ninebotValidate,
		Decode: func(data []byte) (Frame, error) {
			return ninebotDecode(data, layout)
		},
	}
}

func ninebotValidate(data []byte) bool {
	if len(data) < ninebotMinFrame {
		return false
	}
	length := int(data[2])
	if length < 2 || len(data) != length+ninebotOverhead {
		return false
	}
	var sum uint16
	for _, b := range data[3 : len(data)-2] {
		sum += uint16(b)
	}
	want := binary.LittleEndian.Uint16(data[len(data)-2:])
	return 0xFFFF^sum == want
}

// ninebotDecode extracts the field subset a single frame can populate. Only
// READ_RESPONSE messages carry register values; all other message types yield
// a frame with every field unavailable, and the session merges register reads
// across frames into a complete snapshot.
func ninebotDecode(data []byte, layout NinebotLayout) (Frame, error) {
	if !ninebotValidate(data) {
		return Frame{}, fmt.Errorf("ninebot: structurally invalid frame")
	}

	f := NewFrame(ProtocolNinebot, time.Now())
	command := data[5]
	register := data[6]
	payload := data[7 : len(data)-2]

	if command != ninebotCmdReadResponse || len(payload) < 2 {
		return f, nil
	}

	value := binary.LittleEndian.Uint16(payload[:2])
	switch register {
	case ninebotRegSpeed:
		f.SpeedKMH = ptrFloat64(float64(value) / layout.SpeedDivisor)
	case ninebotRegVoltage:
		f.Voltage = ptrFloat64(float64(value) / layout.VoltageDivisor)
	case ninebotRegCurrent:
		f.Current = ptrFloat64(float64(value) / layout.CurrentDivisor)
	case ninebotRegBattery:
		f.Battery = ptrFloat64(clampPercent(float64(value)))
	case ninebotRegTemp:
		f.Temperature = ptrFloat64(float64(value) / layout.TemperatureDivisor)
	case ninebotRegErrorCode:
		code := int(value)
		f.ErrorCode = ptrInt(code)
		f.ErrorMessage = NinebotErrorMessage(code)
	case ninebotRegThrottle:
		f.Throttle = ptrFloat64(round1(clampPercent(float64(value) / 255 * 100)))
	case ninebotRegBrake:
		brake := round1(clampPercent(float64(value) / 255 * 100))
		f.BrakePercent = ptrFloat64(brake)
		f.BrakeEngaged = ptrBool(int(value) > layout.BrakeEngagedRaw)
	case ninebotRegTailLight:
		f.Headlight = ptrBool(value > 0)
	}
	return f, nil
}
