package protocol

// DefaultMaxBuffer caps how many unconsumed bytes the synchronizer retains
// while waiting for a frame to complete. A passive tap opened mid-stream can
// deliver arbitrary garbage, so the buffer must not grow without bound.
const DefaultMaxBuffer = 64 * 1024

// Synchronizer scans an append-only byte stream for protocol sync markers and
// carves out candidate frames. It is resilient to starting mid-frame and to
// dropped or corrupted bytes: anything that is not a complete, plausibly-sized
// candidate frame is skipped one byte at a time and counted as noise.
//
// Synchronizer is not safe for concurrent use; the owning session serializes
// access.
type Synchronizer struct {
	descs     []*Descriptor
	buf       []byte
	offset    int64 // stream offset of buf[0]
	noise     uint64
	maxBuffer int
}

// NewSynchronizer returns a synchronizer that hunts for the sync markers of
// the given descriptors.
func NewSynchronizer(descs ...*Descriptor) *Synchronizer {
	return &Synchronizer{descs: descs, maxBuffer: DefaultMaxBuffer}
}

// SetDescriptors replaces the candidate descriptor set. Used by the
// dispatcher to lock on to a single protocol once auto-detection succeeds.
func (s *Synchronizer) SetDescriptors(descs ...*Descriptor) {
	s.descs = descs
}

// SetMaxBuffer overrides the retained-byte cap. Non-positive values keep the
// current cap.
func (s *Synchronizer) SetMaxBuffer(n int) {
	if n > 0 {
		s.maxBuffer = n
	}
}

// NoiseBytes returns the total count of bytes discarded as noise.
func (s *Synchronizer) NoiseBytes() uint64 { return s.noise }

// Buffered returns the number of bytes held while waiting for more data.
func (s *Synchronizer) Buffered() int { return len(s.buf) }

// Feed appends p to the stream buffer and returns zero or more candidate
// frames. It never blocks: when only a partial frame is present the bytes are
// retained until the next call. Malformed length fields and unmatched bytes
// are normal tap noise, silently counted and dropped.
func (s *Synchronizer) Feed(p []byte) []RawFrame {
	s.buf = append(s.buf, p...)

	var frames []RawFrame
	i := 0
scan:
	for i < len(s.buf) {
		window := s.buf[i:]
		sawShort := false
		for _, d := range s.descs {
			match, short := d.MarkerAt(window)
			if short {
				sawShort = true
			}
			if !match {
				continue
			}
			n, ok := d.Length.FrameLength(window)
			if !ok {
				// Length byte not yet received.
				break scan
			}
			if n < 0 {
				// Declared length exceeds the protocol maximum:
				// garbage that happens to start with a marker.
				s.noise++
				i++
				continue scan
			}
			if n > len(window) {
				// Frame incomplete; wait for more data.
				break scan
			}
			data := make([]byte, n)
			copy(data, window[:n])
			frames = append(frames, RawFrame{
				Protocol: d.Name,
				Offset:   s.offset + int64(i),
				Data:     data,
			})
			i += n
			continue scan
		}
		if sawShort {
			// A marker prefix sits at the end of the buffer; it may
			// complete on the next Feed.
			break
		}
		s.noise++
		i++
	}

	s.offset += int64(i)
	s.buf = s.buf[i:]

	// Shed the oldest bytes if a stalled partial frame has pinned the
	// buffer past its cap.
	if over := len(s.buf) - s.maxBuffer; over > 0 {
		s.noise += uint64(over)
		s.offset += int64(over)
		s.buf = s.buf[over:]
	}

	return frames
}
