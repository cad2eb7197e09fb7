// Command scootertap runs the e-scooter bus diagnostics server: a passive
// serial tap, protocol decoding, baseline comparison, and the HTTP/websocket
// API the bench UI talks to.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/electrifix/scootertap/internal/api"
	"github.com/electrifix/scootertap/internal/capture"
	"github.com/electrifix/scootertap/internal/config"
	"github.com/electrifix/scootertap/internal/db"
	"github.com/electrifix/scootertap/internal/protocol"
	"github.com/electrifix/scootertap/internal/units"
	"github.com/electrifix/scootertap/internal/version"
)

var (
	listen        = flag.String("listen", ":8080", "Listen address")
	dbFile        = flag.String("db", "scootertap.db", "SQLite database path")
	migrationsDir = flag.String("migrations", "./migrations", "Migrations directory")
	tuningPath    = flag.String("tuning", "", "Optional tuning config JSON path")
	layoutsPath   = flag.String("protocols", "", "Optional protocol wire-layout YAML path")
	displayUnits  = flag.String("units", units.KMH, "Display units for speed (kmh, mph)")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("scootertap %s\n", version.String())
		os.Exit(0)
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*displayUnits) {
		log.Fatalf("Invalid units %q: valid values are %s", *displayUnits, units.GetValidUnitsString())
	}

	tuning := config.EmptyTuning()
	if *tuningPath != "" {
		var err error
		tuning, err = config.LoadTuning(*tuningPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	}

	layouts := protocol.DefaultLayouts()
	if *layoutsPath != "" {
		var err error
		layouts, err = protocol.LoadLayouts(*layoutsPath)
		if err != nil {
			log.Fatalf("Failed to load protocol layouts: %v", err)
		}
	}
	registry := protocol.RegistryFromLayouts(layouts)

	store, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	if err := store.MigrateUp(*migrationsDir); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	manager := capture.NewManager(store, registry, tuning, nil)
	defer manager.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(manager, store, *displayUnits).ServeMux()
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("scootertap %s listening on %s", version.Version, *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
