// Command learn-baseline captures a healthy ride (or bench run) for a fixed
// duration, accumulates the observed telemetry ranges, and saves them as the
// model's new active baseline.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/electrifix/scootertap/internal/baseline"
	"github.com/electrifix/scootertap/internal/db"
	"github.com/electrifix/scootertap/internal/serialmux"
	"github.com/electrifix/scootertap/internal/session"
)

var (
	dbFile        = flag.String("db", "scootertap.db", "SQLite database path")
	migrationsDir = flag.String("migrations", "./migrations", "Migrations directory")
	portPath      = flag.String("port", "", "Serial device path, e.g. /dev/ttyUSB0")
	modelID       = flag.Int64("model", 0, "Scooter model ID to learn a baseline for")
	duration      = flag.Duration("duration", 2*time.Minute, "How long to sample")
	notes         = flag.String("notes", "", "Free-text notes stored with the baseline")
)

func main() {
	flag.Parse()

	if *portPath == "" {
		log.Fatal("-port is required")
	}
	if *modelID == 0 {
		log.Fatal("-model is required")
	}

	store, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()
	if err := store.MigrateUp(*migrationsDir); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	model, err := store.ModelByID(*modelID)
	if err != nil {
		log.Fatalf("failed to load model: %v", err)
	}
	log.Printf("learning baseline for %s (%s @ %d baud) over %s",
		model.Name, model.Protocol, model.BaudRate, *duration)

	sess := session.New(session.Options{Protocol: model.Protocol})
	if err := sess.Start(); err != nil {
		log.Fatalf("failed to start session: %v", err)
	}

	mux, err := serialmux.NewRealTapMux(*portPath, serialmux.PortOptions{BaudRate: model.BaudRate})
	if err != nil {
		log.Fatalf("failed to open %s: %v", *portPath, err)
	}
	defer mux.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	go func() {
		if err := mux.Monitor(ctx); err != nil && err != context.Canceled && err != context.DeadlineExceeded {
			log.Printf("tap monitor exited: %v", err)
		}
	}()

	learner := baseline.NewLearner()
	subID, events := sess.Subscribe()
	defer sess.Unsubscribe(subID)
	go func() {
		for ev := range events {
			if ev.Frame != nil {
				learner.Add(*ev.Frame)
			}
		}
	}()

	chunkID, chunks := mux.Subscribe()
	defer mux.Unsubscribe(chunkID)

loop:
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				break loop
			}
			if err := sess.Ingest(chunk); err != nil {
				log.Fatalf("ingest failed: %v", err)
			}
		case <-ctx.Done():
			break loop
		}
	}

	counters, err := sess.Stop()
	if err != nil {
		log.Fatalf("failed to stop session: %v", err)
	}
	log.Printf("sampled %d frames (%d rejected, %d noise bytes)",
		counters.FramesSeen, counters.FramesRejected, counters.NoiseBytes)

	b, err := learner.Finalize(model.ID, *notes)
	if err != nil {
		log.Fatalf("failed to build baseline: %v", err)
	}

	id, err := store.SaveBaseline(b)
	if err != nil {
		log.Fatalf("failed to save baseline: %v", err)
	}
	log.Printf("saved baseline %d for %s: %d fields, %d samples",
		id, model.Name, len(b.Ranges), b.SampleCount)
}
