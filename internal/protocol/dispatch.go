package protocol

const (
	// DefaultDetectThreshold is the number of consecutive checksum-valid
	// frames a decoder must produce before auto-detection locks it in. A
	// single valid frame is not enough: short checksums collide on noise.
	DefaultDetectThreshold = 3

	// DefaultDetectBudget is the number of stream bytes auto-detection may
	// consume before giving up and reporting the protocol undetected.
	DefaultDetectBudget = 4096
)

// Dispatcher selects the active protocol decoder, either pinned explicitly
// from model configuration or locked in by auto-detection heuristics.
//
// In auto-detect mode every registered decoder validates the same candidate
// frames; the first to produce the threshold count of consecutive valid
// frames is locked for the rest of the session. Dispatcher is not safe for
// concurrent use; the owning session serializes access.
type Dispatcher struct {
	registry  *Registry
	threshold int
	budget    int64

	active    *Descriptor
	bytesSeen int64
	runs      map[string]int
	anyValid  bool
}

// NewDispatcher returns a dispatcher in auto-detect mode over the registry.
// threshold and budget fall back to the package defaults when zero.
func NewDispatcher(registry *Registry, threshold int, budget int64) *Dispatcher {
	if threshold <= 0 {
		threshold = DefaultDetectThreshold
	}
	if budget <= 0 {
		budget = DefaultDetectBudget
	}
	return &Dispatcher{
		registry:  registry,
		threshold: threshold,
		budget:    budget,
		runs:      make(map[string]int),
	}
}

// Pin selects a decoder explicitly by protocol identifier, bypassing
// auto-detection. It fails with ErrUnknownProtocol when no decoder is
// registered under the name.
func (d *Dispatcher) Pin(name string) (*Descriptor, error) {
	desc, err := d.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	d.active = desc
	return desc, nil
}

// Active returns the selected decoder, or nil while auto-detection is still
// running (or has exhausted its budget).
func (d *Dispatcher) Active() *Descriptor { return d.active }

// Candidates returns the descriptors the synchronizer should hunt markers
// for: the active decoder once one is selected, otherwise all registered.
func (d *Dispatcher) Candidates() []*Descriptor {
	if d.active != nil {
		return []*Descriptor{d.active}
	}
	return d.registry.All()
}

// ObserveBytes charges n stream bytes against the detection budget.
func (d *Dispatcher) ObserveBytes(n int) {
	d.bytesSeen += int64(n)
}

// ObserveFrame records a validation outcome for a candidate frame during
// auto-detection, and returns the newly locked descriptor the moment the
// consecutive-valid threshold is reached (nil otherwise).
func (d *Dispatcher) ObserveFrame(protocol string, valid bool) *Descriptor {
	if d.active != nil {
		return nil
	}
	if !valid {
		d.runs[protocol] = 0
		return nil
	}
	d.anyValid = true
	d.runs[protocol]++
	if d.runs[protocol] < d.threshold {
		return nil
	}
	desc, err := d.registry.Lookup(protocol)
	if err != nil {
		return nil
	}
	d.active = desc
	return desc
}

// Exhausted reports whether the detection byte budget is spent without a
// decoder being locked in.
func (d *Dispatcher) Exhausted() bool {
	return d.active == nil && d.bytesSeen >= d.budget
}

// SawValidFrame reports whether any candidate frame validated during
// detection. It distinguishes a protocol mismatch (valid frames exist but no
// decoder reached the threshold) from dead or miswired input.
func (d *Dispatcher) SawValidFrame() bool { return d.anyValid }
