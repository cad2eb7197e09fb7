package protocol

import (
	"fmt"
	"sort"
)

// ErrUnknownProtocol is returned when a protocol identifier has no registered
// descriptor.
var ErrUnknownProtocol = fmt.Errorf("unknown protocol")

// LengthRule describes how a descriptor determines the total length of a
// candidate frame. Exactly one of Fixed or the prefix fields is used.
type LengthRule struct {
	// Fixed is the frame length in bytes for fixed-size protocols.
	Fixed int

	// PrefixOffset is the byte offset (from frame start) of a length byte
	// for length-prefixed protocols; PrefixAdd is added to that byte to
	// obtain the total frame length.
	PrefixOffset int
	PrefixAdd    int

	// Max caps the total frame length. A declared length above Max marks
	// the candidate as noise so that garbage cannot stall synchronization.
	Max int
}

// FrameLength returns the total length of the frame starting at buf[0].
// ok is false when more bytes are needed to determine the length; a returned
// length of -1 means the declared length is invalid (over Max) and the
// candidate must be treated as noise.
func (r LengthRule) FrameLength(buf []byte) (n int, ok bool) {
	if r.Fixed > 0 {
		return r.Fixed, true
	}
	if len(buf) <= r.PrefixOffset {
		return 0, false
	}
	n = int(buf[r.PrefixOffset]) + r.PrefixAdd
	if r.Max > 0 && n > r.Max {
		return -1, true
	}
	return n, true
}

// Descriptor is the immutable per-protocol record the synchronizer and
// dispatcher operate on: sync markers, length rule, checksum validation, and
// field extraction. Decoders never branch on protocol name outside their own
// descriptor.
type Descriptor struct {
	// Name is the protocol identifier stored in model configuration.
	Name string

	// BaudRate is the bus rate the protocol runs at, used when opening a
	// serial port for a model configured with this protocol.
	BaudRate int

	// Markers holds the sync byte patterns that can start a frame.
	Markers [][]byte

	// Length determines candidate frame length.
	Length LengthRule

	// Validate applies the protocol checksum or structural check to a
	// complete candidate frame. It must not panic on arbitrary bytes.
	Validate func(data []byte) bool

	// Decode extracts telemetry fields from a frame that passed Validate.
	// Fields the frame's message type does not carry stay unavailable.
	Decode func(data []byte) (Frame, error)
}

// MarkerAt reports whether one of the descriptor's sync markers is a prefix
// of buf, and if so, whether buf is long enough to tell (short reports that
// a marker could still match once more bytes arrive).
func (d *Descriptor) MarkerAt(buf []byte) (match, short bool) {
	for _, m := range d.Markers {
		n := len(m)
		if n > len(buf) {
			n = len(buf)
		}
		equal := true
		for i := 0; i < n; i++ {
			if buf[i] != m[i] {
				equal = false
				break
			}
		}
		if !equal {
			continue
		}
		if n < len(m) {
			short = true
			continue
		}
		return true, false
	}
	return false, short
}

// Registry holds the known protocol descriptors keyed by identifier.
type Registry struct {
	descriptors map[string]*Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]*Descriptor)}
}

// DefaultRegistry returns a registry holding the built-in protocol
// descriptors with their default wire layouts.
func DefaultRegistry() *Registry {
	return RegistryFromLayouts(DefaultLayouts())
}

// RegistryFromLayouts builds a registry from explicit wire-layout
// configuration, allowing field offsets and scaling to be supplied as data.
func RegistryFromLayouts(layouts Layouts) *Registry {
	r := NewRegistry()
	r.Register(NewJPDescriptor(layouts.JP))
	r.Register(NewNinebotDescriptor(layouts.Ninebot))
	return r
}

// Register adds a descriptor, replacing any existing entry with the same name.
func (r *Registry) Register(d *Descriptor) {
	r.descriptors[d.Name] = d
}

// Lookup returns the descriptor for the given protocol identifier.
func (r *Registry) Lookup(name string) (*Descriptor, error) {
	d, ok := r.descriptors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, name)
	}
	return d, nil
}

// All returns every registered descriptor in stable name order.
func (r *Registry) All() []*Descriptor {
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Descriptor, 0, len(names))
	for _, name := range names {
		out = append(out, r.descriptors[name])
	}
	return out
}
