// Package capture ties the serial tap to the telemetry session lifecycle:
// one active capture at a time, with its summary persisted on stop.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/electrifix/scootertap/internal/baseline"
	"github.com/electrifix/scootertap/internal/config"
	"github.com/electrifix/scootertap/internal/db"
	"github.com/electrifix/scootertap/internal/monitoring"
	"github.com/electrifix/scootertap/internal/protocol"
	"github.com/electrifix/scootertap/internal/serialmux"
	"github.com/electrifix/scootertap/internal/session"
)

// ErrNoCapture is returned by Stop and Status when nothing is running.
var ErrNoCapture = errors.New("no capture is running")

// realOpener opens a physical serial port for the tap.
func realOpener(path string, opts serialmux.PortOptions) (serialmux.SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	return serial.Open(path, mode)
}

// StartOptions select what to capture and how to decode it.
type StartOptions struct {
	// Port is the serial device path, e.g. /dev/ttyUSB0.
	Port string `json:"port"`
	// ModelID selects a configured scooter model; zero captures without
	// model context (auto-detect, no baseline).
	ModelID int64 `json:"model_id,omitempty"`
	// Protocol overrides the model's protocol identifier; empty keeps the
	// model's configuration or enables auto-detection.
	Protocol string `json:"protocol,omitempty"`
	// BaudRate overrides the model's bus rate.
	BaudRate int `json:"baud_rate,omitempty"`
}

// Manager owns the serial tap and the single active capture session.
// Starting a new capture terminates any prior one first.
type Manager struct {
	store    *db.DB
	registry *protocol.Registry
	tuning   *config.Tuning
	opener   serialmux.SerialPortOpener

	mu      sync.Mutex
	tap     serialmux.Tapper
	sess    *session.Session
	cancel  context.CancelFunc
	pumpWG  sync.WaitGroup
	modelID *int64
}

// NewManager builds a capture manager. opener may be nil to open real serial
// ports; tests inject a fake.
func NewManager(store *db.DB, registry *protocol.Registry, tuning *config.Tuning, opener serialmux.SerialPortOpener) *Manager {
	if registry == nil {
		registry = protocol.DefaultRegistry()
	}
	if tuning == nil {
		tuning = config.EmptyTuning()
	}
	if opener == nil {
		opener = realOpener
	}
	return &Manager{
		store:    store,
		registry: registry,
		tuning:   tuning,
		opener:   opener,
	}
}

// Start opens the port and begins a capture session. A capture already in
// progress is stopped and persisted first.
func (m *Manager) Start(opts StartOptions) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess != nil {
		monitoring.Logf("capture: terminating session %s before starting a new one", m.sess.ID())
		if _, err := m.stopLocked(); err != nil && !errors.Is(err, session.ErrNotActive) {
			return nil, fmt.Errorf("stopping previous capture: %w", err)
		}
	}

	protocolID := opts.Protocol
	baud := opts.BaudRate
	tuning := m.tuning
	var active *baseline.Baseline
	var modelID *int64

	if opts.ModelID != 0 {
		model, err := m.store.ModelByID(opts.ModelID)
		if err != nil {
			return nil, err
		}
		modelID = &model.ID
		if protocolID == "" {
			protocolID = model.Protocol
		}
		if baud == 0 {
			baud = model.BaudRate
		}
		if model.RPMPerKMH > 0 {
			t := *tuning
			t.RPMPerKMH = &model.RPMPerKMH
			tuning = &t
		}
		stored, err := m.store.ActiveBaseline(model.ID)
		switch {
		case err == nil:
			active = &stored.Baseline
		case errors.Is(err, db.ErrNotFound):
			// No baseline learned yet; comparator degrades to
			// not_applicable.
		default:
			return nil, err
		}
	}

	sess := session.New(session.Options{
		Protocol: protocolID,
		Baseline: active,
		Registry: m.registry,
		Tuning:   tuning,
	})
	if err := sess.Start(); err != nil {
		return nil, err
	}

	port, err := m.opener(opts.Port, serialmux.PortOptions{BaudRate: baud})
	if err != nil {
		sess.Stop()
		return nil, fmt.Errorf("opening %s: %w", opts.Port, err)
	}
	tap := serialmux.NewTapMux[serialmux.SerialPorter](port)

	ctx, cancel := context.WithCancel(context.Background())
	m.tap = tap
	m.sess = sess
	m.cancel = cancel
	m.modelID = modelID

	go func() {
		if err := tap.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("capture: tap monitor for %s exited: %v", opts.Port, err)
		}
	}()

	subID, chunks := tap.Subscribe()
	m.pumpWG.Add(1)
	go func() {
		defer m.pumpWG.Done()
		defer tap.Unsubscribe(subID)
		for chunk := range chunks {
			if err := sess.Ingest(chunk); err != nil {
				// Session stopped under us; drain and exit.
				return
			}
		}
	}()

	if m.store != nil {
		_, _, counters, status := sess.Snapshot()
		row := db.CaptureSession{
			ID:        sess.ID(),
			ModelID:   modelID,
			Protocol:  sess.Protocol(),
			Status:    string(status),
			StartedAt: counters.StartedAt,
		}
		if err := m.store.RecordSessionStart(row); err != nil {
			monitoring.Logf("capture: recording session %s: %v", sess.ID(), err)
		}
	}

	monitoring.Logf("capture: session %s started on %s (protocol=%q baud=%d)",
		sess.ID(), opts.Port, protocolID, baud)
	return sess, nil
}

// Stop terminates the running capture, persists its summary, and returns the
// final counters.
func (m *Manager) Stop() (session.Counters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked()
}

func (m *Manager) stopLocked() (session.Counters, error) {
	if m.sess == nil {
		return session.Counters{}, ErrNoCapture
	}

	m.cancel()
	if err := m.tap.Close(); err != nil {
		monitoring.Logf("capture: closing tap: %v", err)
	}
	m.pumpWG.Wait()

	sess := m.sess
	counters, err := sess.Stop()
	if err != nil && !errors.Is(err, session.ErrNotActive) {
		return counters, err
	}

	if m.store != nil {
		stopped := counters.StoppedAt
		if stopped.IsZero() {
			stopped = time.Now()
		}
		_, _, _, status := sess.Snapshot()
		row := db.CaptureSession{
			ID:             sess.ID(),
			ModelID:        m.modelID,
			Protocol:       sess.Protocol(),
			Status:         string(status),
			BytesSeen:      counters.BytesSeen,
			FramesSeen:     counters.FramesSeen,
			FramesRejected: counters.FramesRejected,
			NoiseBytes:     int64(counters.NoiseBytes),
			StoppedAt:      &stopped,
		}
		if err := m.store.FinalizeSession(row); err != nil {
			monitoring.Logf("capture: finalizing session %s: %v", sess.ID(), err)
		}
	}

	monitoring.Logf("capture: session %s stopped (%d frames, %d rejected, %d noise bytes)",
		sess.ID(), counters.FramesSeen, counters.FramesRejected, counters.NoiseBytes)

	m.tap = nil
	m.sess = nil
	m.cancel = nil
	m.modelID = nil
	return counters, nil
}

// Session returns the running session, or nil when idle.
func (m *Manager) Session() *session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// Close stops any running capture. Used during server shutdown.
func (m *Manager) Close() error {
	_, err := m.Stop()
	if errors.Is(err, ErrNoCapture) {
		return nil
	}
	return err
}
