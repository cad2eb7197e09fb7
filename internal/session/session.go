// Package session implements the telemetry session state machine: one
// session per active capture, owning the frame synchronizer, the protocol
// dispatcher, the running counters, and the latest merged telemetry snapshot.
package session

import (
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/electrifix/scootertap/internal/baseline"
	"github.com/electrifix/scootertap/internal/config"
	"github.com/electrifix/scootertap/internal/metrics"
	"github.com/electrifix/scootertap/internal/protocol"
)

var (
	// ErrNotActive is returned by Ingest and Stop when the session is not
	// in the Active state. Lifecycle misuse is a caller bug and fails
	// loudly, unlike stream noise which is absorbed and counted.
	ErrNotActive = errors.New("session is not active")

	// ErrAlreadyActive is returned by Start on a session that is already
	// capturing.
	ErrAlreadyActive = errors.New("session is already active")

	// ErrFinished is returned by Start on a session that has been stopped.
	// A stopped session is inert; create a new one for the next capture.
	ErrFinished = errors.New("session has finished; create a new session")
)

// Status describes where the session is in protocol selection.
type Status string

const (
	// StatusDetecting means auto-detection is still sampling candidate
	// frames.
	StatusDetecting Status = "detecting"
	// StatusLocked means a decoder is selected, either pinned from model
	// configuration or locked in by auto-detection.
	StatusLocked Status = "locked"
	// StatusUndetected means the detection budget was spent while valid
	// frames were seen but no decoder reached the consecutive-frame
	// threshold. Frames are surfaced as raw hex from then on.
	StatusUndetected Status = "undetected"
	// StatusNoValidData means the detection budget was spent without a
	// single frame validating. This usually indicates a wiring problem
	// rather than a protocol mismatch.
	StatusNoValidData Status = "no_valid_data"
)

// Counters are the running capture statistics, finalized on Stop.
type Counters struct {
	BytesSeen      int64         `json:"bytes_seen"`
	FramesSeen     int64         `json:"frames_seen"`
	FramesRejected int64         `json:"frames_rejected"`
	NoiseBytes     uint64        `json:"noise_bytes"`
	StartedAt      time.Time     `json:"started_at"`
	StoppedAt      time.Time     `json:"stopped_at,omitzero"`
	Duration       time.Duration `json:"duration_ns"`
}

// Event is delivered to subscribers on every decoded frame and on status
// transitions. Frame is a value copy of the merged snapshot; RawHex is set
// instead of Frame when the session is surfacing undecoded frames.
type Event struct {
	SessionID      string                              `json:"session_id"`
	Status         Status                              `json:"status"`
	Frame          *protocol.Frame                     `json:"frame,omitempty"`
	Classification map[protocol.Field]baseline.Verdict `json:"classification,omitempty"`
	RawHex         string                              `json:"raw_hex,omitempty"`
	Counters       Counters                            `json:"counters"`
}

// Options configure a session at construction.
type Options struct {
	// Protocol pins a decoder by identifier; empty enables auto-detection.
	Protocol string
	// Baseline is compared against every decoded frame; nil classifies
	// every field not_applicable.
	Baseline *baseline.Baseline
	// Registry supplies the candidate decoders; nil uses the built-in set.
	Registry *protocol.Registry
	// Tuning supplies the detection and comparison parameters; nil uses
	// the documented defaults.
	Tuning *config.Tuning
}

type state int

const (
	stateIdle state = iota
	stateActive
	stateFinished
)

// Session is the telemetry session state machine. It is created Idle,
// transitions to Active on Start, and returns to an inert finished state on
// Stop. All methods are safe for concurrent use, but decoding assumes a
// single producer calls Ingest.
type Session struct {
	id   string
	opts Options

	mu          sync.Mutex
	state       state
	status      Status
	sync        *protocol.Synchronizer
	dispatcher  *protocol.Dispatcher
	registry    *protocol.Registry
	tolerance   float64
	rpmPerKMH   float64
	latest      protocol.Frame
	verdicts    map[protocol.Field]baseline.Verdict
	counters    Counters
	noiseBase   uint64
	subscribers map[string]chan Event
}

// New creates an Idle session. Protocol selection is not validated until
// Start so that an unknown identifier fails the capture before any bytes
// flow, not at construction.
func New(opts Options) *Session {
	if opts.Registry == nil {
		opts.Registry = protocol.DefaultRegistry()
	}
	if opts.Tuning == nil {
		opts.Tuning = config.EmptyTuning()
	}
	return &Session{
		id:          uuid.NewString(),
		opts:        opts,
		registry:    opts.Registry,
		subscribers: make(map[string]chan Event),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Active reports whether the session is currently capturing.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateActive
}

// Start transitions Idle to Active: counters reset, the synchronizer and
// dispatcher are built, and an explicit protocol choice is resolved. It
// fails with protocol.ErrUnknownProtocol before any capture begins when the
// pinned identifier has no registered decoder.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateActive:
		return ErrAlreadyActive
	case stateFinished:
		return ErrFinished
	}

	tuning := s.opts.Tuning
	s.dispatcher = protocol.NewDispatcher(s.registry, tuning.GetDetectThreshold(), tuning.GetDetectBudgetBytes())
	s.tolerance = tuning.GetToleranceBand()
	s.rpmPerKMH = tuning.GetRPMPerKMH()

	s.status = StatusDetecting
	if s.opts.Protocol != "" {
		if _, err := s.dispatcher.Pin(s.opts.Protocol); err != nil {
			return fmt.Errorf("pinning protocol %q: %w", s.opts.Protocol, err)
		}
		s.status = StatusLocked
	}
	s.sync = protocol.NewSynchronizer(s.dispatcher.Candidates()...)
	s.sync.SetMaxBuffer(tuning.GetMaxBufferBytes())

	s.latest = protocol.NewFrame("", time.Time{})
	s.verdicts = nil
	s.counters = Counters{StartedAt: time.Now()}
	s.noiseBase = 0
	s.state = stateActive
	metrics.ActiveSessions.Inc()
	return nil
}

// Ingest feeds a chunk of stream bytes through the synchronizer, decoder,
// and comparator pipeline. It never blocks and returns promptly; partial
// frames are buffered across calls. Checksum failures and noise are counted,
// never returned as errors — the only error is lifecycle misuse.
func (s *Session) Ingest(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateActive {
		return ErrNotActive
	}

	s.counters.BytesSeen += int64(len(p))
	s.dispatcher.ObserveBytes(len(p))
	metrics.BytesIngested.Add(float64(len(p)))

	frames := s.sync.Feed(p)
	if noise := s.sync.NoiseBytes(); noise > s.noiseBase {
		metrics.NoiseBytes.Add(float64(noise - s.noiseBase))
		s.noiseBase = noise
	}
	s.counters.NoiseBytes = s.sync.NoiseBytes()

	var events []Event
	for _, rf := range frames {
		events = append(events, s.processFrame(rf)...)
	}

	// Auto-detection budget check. The status downgrade is reported once;
	// ingestion continues surfacing raw hex either way.
	if s.status == StatusDetecting && s.dispatcher.Exhausted() {
		if s.dispatcher.SawValidFrame() {
			s.status = StatusUndetected
		} else {
			s.status = StatusNoValidData
		}
		events = append(events, Event{
			SessionID: s.id,
			Status:    s.status,
			Counters:  s.counters,
		})
	}

	s.publish(events)
	return nil
}

// processFrame runs one candidate frame through validation, detection, and
// decoding. Caller holds s.mu.
func (s *Session) processFrame(rf protocol.RawFrame) []Event {
	desc, err := s.registry.Lookup(rf.Protocol)
	if err != nil {
		return nil
	}
	valid := desc.Validate(rf.Data)

	var events []Event

	if s.dispatcher.Active() == nil {
		if locked := s.dispatcher.ObserveFrame(rf.Protocol, valid); locked != nil {
			s.status = StatusLocked
			s.sync.SetDescriptors(locked)
			events = append(events, Event{
				SessionID: s.id,
				Status:    s.status,
				Counters:  s.counters,
			})
		}
	}

	if !valid {
		s.counters.FramesRejected++
		metrics.FramesRejected.WithLabelValues(rf.Protocol).Inc()
		if s.status == StatusUndetected {
			events = append(events, s.rawEvent(rf))
		}
		return events
	}

	s.counters.FramesSeen++
	metrics.FramesDecoded.WithLabelValues(rf.Protocol).Inc()

	active := s.dispatcher.Active()
	if active == nil {
		// Still detecting, or detection gave up: no structured decode.
		if s.status == StatusUndetected {
			events = append(events, s.rawEvent(rf))
		}
		return events
	}
	if active.Name != rf.Protocol {
		// Stale candidate from another protocol carved out of the same
		// chunk that locked the decoder.
		return events
	}

	frame, err := active.Decode(rf.Data)
	if err != nil {
		s.counters.FramesRejected++
		metrics.FramesRejected.WithLabelValues(rf.Protocol).Inc()
		return events
	}

	s.latest.Merge(frame)
	s.deriveRPM()
	s.verdicts = baseline.Classify(&s.latest, s.opts.Baseline, s.tolerance)
	metrics.Classifications.WithLabelValues(string(baseline.WorstVerdict(s.verdicts))).Inc()

	snapshot := s.latest
	events = append(events, Event{
		SessionID:      s.id,
		Status:         s.status,
		Frame:          &snapshot,
		Classification: s.verdicts,
		Counters:       s.counters,
	})
	return events
}

// deriveRPM estimates motor RPM from road speed when the protocol does not
// report RPM directly. Caller holds s.mu.
func (s *Session) deriveRPM() {
	if s.latest.RPM != nil || s.latest.SpeedKMH == nil || s.rpmPerKMH <= 0 {
		return
	}
	rpm := *s.latest.SpeedKMH * s.rpmPerKMH
	s.latest.RPM = &rpm
}

func (s *Session) rawEvent(rf protocol.RawFrame) Event {
	return Event{
		SessionID: s.id,
		Status:    s.status,
		RawHex:    rf.Hex(),
		Counters:  s.counters,
	}
}

// Stop transitions Active to the finished state, finalizes the counters, and
// closes all subscriber channels. No events are delivered after Stop
// returns. Stopping a session that is not active is rejected with
// ErrNotActive; state is never corrupted by a repeated call.
func (s *Session) Stop() (Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateActive {
		return s.counters, ErrNotActive
	}

	s.counters.StoppedAt = time.Now()
	s.counters.Duration = s.counters.StoppedAt.Sub(s.counters.StartedAt)
	s.state = stateFinished
	metrics.ActiveSessions.Dec()

	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.counters, nil
}

// Subscribe registers a consumer channel for session events. The channel is
// buffered and delivery is fire-and-forget: a consumer that falls behind
// misses events rather than blocking the ingest path.
func (s *Session) Subscribe() (string, chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := randomID()
	ch := make(chan Event, 16)
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Session) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// publish fans events out to all subscribers without blocking. Caller holds
// s.mu.
func (s *Session) publish(events []Event) {
	for _, ev := range events {
		for _, ch := range s.subscribers {
			select {
			case ch <- ev:
			default:
				// Consumer is behind; drop rather than stall ingest.
			}
		}
	}
}

// Snapshot returns a consistent copy of the latest merged frame, its
// classification, the counters, and the status.
func (s *Session) Snapshot() (protocol.Frame, map[protocol.Field]baseline.Verdict, Counters, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	verdicts := make(map[protocol.Field]baseline.Verdict, len(s.verdicts))
	for k, v := range s.verdicts {
		verdicts[k] = v
	}
	return s.latest, verdicts, s.counters, s.status
}

// Protocol returns the identifier of the locked decoder, or empty while
// detection is unresolved.
func (s *Session) Protocol() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dispatcher == nil {
		return ""
	}
	if active := s.dispatcher.Active(); active != nil {
		return active.Name
	}
	return ""
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}
