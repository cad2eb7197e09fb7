package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jpTestFrame builds a valid 15-byte JP/QS-S4 frame with the given direction
// byte and field bytes, computing the trailing XOR checksum.
func jpTestFrame(direction byte, fields map[int]byte) []byte {
	data := make([]byte, 15)
	data[0] = 0x01
	data[1] = direction
	for offset, value := range fields {
		data[offset] = value
	}
	var sum byte
	for _, b := range data[:14] {
		sum ^= b
	}
	data[14] = sum
	return data
}

// ninebotTestFrame builds a valid Ninebot frame around the given payload.
func ninebotTestFrame(src, dst, cmd, arg byte, payload []byte) []byte {
	length := byte(len(payload) + 2)
	data := []byte{0x5A, 0xA5, length, src, dst, cmd, arg}
	data = append(data, payload...)
	var sum uint16
	for _, b := range data[3:] {
		sum += uint16(b)
	}
	sum = 0xFFFF ^ sum
	return append(data, byte(sum), byte(sum>>8))
}

func TestSynchronizerRecoversFramesBetweenNoise(t *testing.T) {
	reg := DefaultRegistry()
	sync := NewSynchronizer(reg.All()...)

	frameA := jpTestFrame(0x03, map[int]byte{2: 128})
	frameB := jpTestFrame(0x04, map[int]byte{2: 0xE3, 3: 0x01}) // speed 48.3
	noise := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xC0, 0xFE}

	var stream []byte
	stream = append(stream, noise...)
	stream = append(stream, frameA...)
	stream = append(stream, noise[:3]...)
	stream = append(stream, frameB...)
	stream = append(stream, noise...)

	frames := sync.Feed(stream)
	require.Len(t, frames, 2)
	assert.Equal(t, ProtocolJPQS, frames[0].Protocol)
	assert.Equal(t, frameA, frames[0].Data)
	assert.Equal(t, frameB, frames[1].Data)
	assert.Equal(t, int64(len(noise)), frames[0].Offset)

	// Exactly the inserted noise bytes were dropped; no frame bytes were
	// misclassified.
	assert.Equal(t, uint64(len(noise)*2+3), sync.NoiseBytes())
}

func TestSynchronizerIncrementalFeed(t *testing.T) {
	reg := DefaultRegistry()
	sync := NewSynchronizer(reg.All()...)

	frame := jpTestFrame(0x03, map[int]byte{2: 200, 4: 1})
	for i, b := range frame {
		frames := sync.Feed([]byte{b})
		if i < len(frame)-1 {
			assert.Empty(t, frames, "frame emitted before byte %d arrived", len(frame))
		} else {
			require.Len(t, frames, 1)
			assert.Equal(t, frame, frames[0].Data)
		}
	}
	assert.Zero(t, sync.NoiseBytes())
	assert.Zero(t, sync.Buffered())
}

func TestSynchronizerStartsMidFrame(t *testing.T) {
	reg := DefaultRegistry()
	sync := NewSynchronizer(reg.All()...)

	// A freshly opened tap sees the tail of one frame before the next
	// whole one. The tail bytes contain no marker and count as noise.
	frame := jpTestFrame(0x04, map[int]byte{2: 10})
	tail := []byte{0x42, 0x42, 0x42, 0x42, 0x42}

	frames := sync.Feed(append(append([]byte{}, tail...), frame...))
	require.Len(t, frames, 1)
	assert.Equal(t, frame, frames[0].Data)
	assert.Equal(t, uint64(len(tail)), sync.NoiseBytes())
}

func TestSynchronizerRejectsOversizedDeclaredLength(t *testing.T) {
	reg := DefaultRegistry()
	sync := NewSynchronizer(reg.All()...)

	// A Ninebot marker followed by an absurd length byte must not stall
	// the scan waiting for 262 bytes; it is noise.
	garbage := []byte{0x5A, 0xA5, 0xFF}
	frame := ninebotTestFrame(0x20, 0x3E, 0x03, 0x31, []byte{0xC4, 0x12})

	frames := sync.Feed(append(garbage, frame...))
	require.Len(t, frames, 1)
	assert.Equal(t, ProtocolNinebot, frames[0].Protocol)
	assert.Equal(t, uint64(len(garbage)), sync.NoiseBytes())
}

func TestSynchronizerHoldsMarkerPrefixAtBufferEnd(t *testing.T) {
	reg := DefaultRegistry()
	sync := NewSynchronizer(reg.All()...)

	// A lone 0x5A at the end of the buffer may be the start of a marker;
	// it must be held, not dropped as noise.
	frames := sync.Feed([]byte{0x5A})
	assert.Empty(t, frames)
	assert.Zero(t, sync.NoiseBytes())
	assert.Equal(t, 1, sync.Buffered())

	frame := ninebotTestFrame(0x20, 0x3D, 0x03, 0x25, []byte{0x10, 0x27})
	frames = sync.Feed(frame[1:])
	require.Len(t, frames, 1)
	assert.Equal(t, frame, frames[0].Data)
	assert.Zero(t, sync.NoiseBytes())
}

func TestSynchronizerAllNoise(t *testing.T) {
	reg := DefaultRegistry()
	sync := NewSynchronizer(reg.All()...)

	noise := make([]byte, 1000)
	for i := range noise {
		noise[i] = 0x42
	}
	frames := sync.Feed(noise)
	assert.Empty(t, frames)
	assert.Equal(t, uint64(1000), sync.NoiseBytes())
}

func TestSynchronizerBufferCap(t *testing.T) {
	reg := DefaultRegistry()
	sync := NewSynchronizer(reg.All()...)
	sync.SetMaxBuffer(32)

	// A plausible Ninebot header declaring a 55-byte frame that never
	// completes pins the buffer; the cap sheds the oldest bytes.
	held := make([]byte, 40)
	held[0], held[1], held[2] = 0x5A, 0xA5, 0x30
	frames := sync.Feed(held)
	assert.Empty(t, frames)
	assert.Equal(t, 32, sync.Buffered())
	assert.Equal(t, uint64(8), sync.NoiseBytes())
}
