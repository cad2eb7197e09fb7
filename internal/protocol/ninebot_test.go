package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNinebotValidateChecksum(t *testing.T) {
	frame := ninebotTestFrame(0x20, 0x3E, 0x03, 0x31, []byte{0xC4, 0x12})
	assert.True(t, ninebotValidate(frame))

	for i := 2; i < len(frame); i++ {
		corrupted := append([]byte{}, frame...)
		corrupted[i] ^= 0x01
		assert.False(t, ninebotValidate(corrupted), "byte %d flip not detected", i)
	}
}

func TestNinebotValidateRejectsShortLength(t *testing.T) {
	// Length byte below 2 cannot describe a real message.
	frame := []byte{0x5A, 0xA5, 0x01, 0x20, 0x3E, 0x03, 0x31, 0x00, 0x00}
	assert.False(t, ninebotValidate(frame))
	assert.False(t, ninebotValidate(nil))
}

func TestNinebotDecodeRegisters(t *testing.T) {
	desc := NewNinebotDescriptor(DefaultLayouts().Ninebot)

	tests := []struct {
		name     string
		register byte
		payload  []byte
		check    func(t *testing.T, f Frame)
	}{
		{
			name:     "speed",
			register: 0x25,
			payload:  []byte{0xD4, 0x30}, // 12500 -> 12.5 km/h
			check: func(t *testing.T, f Frame) {
				require.NotNil(t, f.SpeedKMH)
				assert.InDelta(t, 12.5, *f.SpeedKMH, 1e-9)
			},
		},
		{
			name:     "voltage",
			register: 0x31,
			payload:  []byte{0xC4, 0x12}, // 4804 -> 48.04 V
			check: func(t *testing.T, f Frame) {
				require.NotNil(t, f.Voltage)
				assert.InDelta(t, 48.04, *f.Voltage, 1e-9)
			},
		},
		{
			name:     "temperature",
			register: 0x35,
			payload:  []byte{0x9B, 0x01}, // 411 -> 41.1 C
			check: func(t *testing.T, f Frame) {
				require.NotNil(t, f.Temperature)
				assert.InDelta(t, 41.1, *f.Temperature, 1e-9)
			},
		},
		{
			name:     "battery",
			register: 0x34,
			payload:  []byte{0x54, 0x00}, // 84%
			check: func(t *testing.T, f Frame) {
				require.NotNil(t, f.Battery)
				assert.Equal(t, 84.0, *f.Battery)
			},
		},
		{
			name:     "error code",
			register: 0x3A,
			payload:  []byte{0x0F, 0x00},
			check: func(t *testing.T, f Frame) {
				require.NotNil(t, f.ErrorCode)
				assert.Equal(t, 15, *f.ErrorCode)
				assert.Equal(t, "Controller overheat", f.ErrorMessage)
			},
		},
		{
			name:     "brake",
			register: 0x51,
			payload:  []byte{0x40, 0x00}, // raw 64 -> 25.1%, engaged
			check: func(t *testing.T, f Frame) {
				require.NotNil(t, f.BrakePercent)
				assert.Equal(t, 25.1, *f.BrakePercent)
				require.NotNil(t, f.BrakeEngaged)
				assert.True(t, *f.BrakeEngaged)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			frame := ninebotTestFrame(0x20, 0x3E, 0x03, tc.register, tc.payload)
			require.True(t, desc.Validate(frame))

			f, err := desc.Decode(frame)
			require.NoError(t, err)
			assert.Equal(t, ProtocolNinebot, f.Protocol)
			tc.check(t, f)
		})
	}
}

func TestNinebotDecodeNonReadResponse(t *testing.T) {
	desc := NewNinebotDescriptor(DefaultLayouts().Ninebot)

	// A WRITE command carries no telemetry; every field stays unavailable.
	frame := ninebotTestFrame(0x3E, 0x20, 0x02, 0x70, []byte{0x01, 0x00})
	f, err := desc.Decode(frame)
	require.NoError(t, err)
	assert.Nil(t, f.SpeedKMH)
	assert.Nil(t, f.Voltage)
	assert.Nil(t, f.Throttle)
	assert.Nil(t, f.ErrorCode)
	assert.Equal(t, ModeUnknown, f.Mode)
}

func TestNinebotLengthRule(t *testing.T) {
	desc := NewNinebotDescriptor(DefaultLayouts().Ninebot)

	n, ok := desc.Length.FrameLength([]byte{0x5A, 0xA5, 0x04})
	assert.True(t, ok)
	assert.Equal(t, 11, n)

	// Length byte not yet received.
	_, ok = desc.Length.FrameLength([]byte{0x5A, 0xA5})
	assert.False(t, ok)

	// Oversized declared length flags the candidate as noise.
	n, ok = desc.Length.FrameLength([]byte{0x5A, 0xA5, 0xFF})
	assert.True(t, ok)
	assert.Equal(t, -1, n)
}
