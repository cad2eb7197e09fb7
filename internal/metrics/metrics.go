// Package metrics exposes Prometheus instrumentation for the capture
// pipeline. Collectors are registered on the default registry and served by
// the API's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BytesIngested counts raw bytes fed into the frame synchronizer.
	BytesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scootertap",
		Subsystem: "capture",
		Name:      "bytes_ingested_total",
		Help:      "Raw serial bytes ingested across all sessions.",
	})

	// NoiseBytes counts bytes discarded during frame resynchronization.
	NoiseBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scootertap",
		Subsystem: "capture",
		Name:      "noise_bytes_total",
		Help:      "Bytes discarded as noise by the frame synchronizer.",
	})

	// FramesDecoded counts checksum-valid frames per protocol.
	FramesDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scootertap",
		Subsystem: "capture",
		Name:      "frames_decoded_total",
		Help:      "Frames that passed validation, by protocol.",
	}, []string{"protocol"})

	// FramesRejected counts frames that failed checksum or decode.
	FramesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scootertap",
		Subsystem: "capture",
		Name:      "frames_rejected_total",
		Help:      "Frames rejected by validation, by protocol.",
	}, []string{"protocol"})

	// Classifications counts per-frame worst verdicts against the baseline.
	Classifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scootertap",
		Subsystem: "baseline",
		Name:      "classifications_total",
		Help:      "Frame classifications against the active baseline, by worst verdict.",
	}, []string{"verdict"})

	// ActiveSessions tracks the number of capture sessions currently active.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scootertap",
		Subsystem: "capture",
		Name:      "active_sessions",
		Help:      "Number of capture sessions currently active.",
	})
)
