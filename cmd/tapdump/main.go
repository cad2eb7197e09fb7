// Command tapdump attaches to a serial tap (or replays a capture file) and
// prints decoded telemetry frames as JSON lines. Useful for checking wiring
// and protocol detection before bothering with the full server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/electrifix/scootertap/internal/config"
	"github.com/electrifix/scootertap/internal/monitoring"
	"github.com/electrifix/scootertap/internal/protocol"
	"github.com/electrifix/scootertap/internal/serialmux"
	"github.com/electrifix/scootertap/internal/session"
)

var (
	portPath   = flag.String("port", "", "Serial device path, e.g. /dev/ttyUSB0")
	baudRate   = flag.Int("baud", 0, "Baud rate (0 uses the protocol default)")
	protocolID = flag.String("protocol", "", "Pin a protocol (jp_qs_s4, ninebot); empty auto-detects")
	replayPath = flag.String("replay", "", "Replay raw bytes from a capture file instead of a port")
	tuningPath = flag.String("tuning", "", "Optional tuning config JSON path")
	showRaw    = flag.Bool("raw", false, "Also print raw frame hex while undetected")
	verbose    = flag.Bool("verbose", false, "Trace raw serial chunks to stderr")
)

func main() {
	flag.Parse()

	if *portPath == "" && *replayPath == "" {
		log.Fatal("either -port or -replay is required")
	}
	monitoring.SetDebug(*verbose)

	tuning := config.EmptyTuning()
	if *tuningPath != "" {
		var err error
		tuning, err = config.LoadTuning(*tuningPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	sess := session.New(session.Options{
		Protocol: *protocolID,
		Tuning:   tuning,
	})
	if err := sess.Start(); err != nil {
		log.Fatalf("failed to start session: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	id, events := sess.Subscribe()
	defer sess.Unsubscribe(id)

	go printEvents(events)

	if *replayPath != "" {
		replayFile(sess, *replayPath)
	} else {
		tapPort(ctx, sess, *portPath, *baudRate)
	}

	counters, err := sess.Stop()
	if err != nil {
		log.Fatalf("failed to stop session: %v", err)
	}
	log.Printf("done: %d bytes, %d frames decoded, %d rejected, %d noise bytes",
		counters.BytesSeen, counters.FramesSeen, counters.FramesRejected, counters.NoiseBytes)
}

func printEvents(events chan session.Event) {
	encoder := json.NewEncoder(os.Stdout)
	for ev := range events {
		if ev.RawHex != "" && !*showRaw {
			continue
		}
		if err := encoder.Encode(ev); err != nil {
			log.Printf("failed to encode event: %v", err)
		}
	}
}

// replayFile feeds a raw capture file through the session in small chunks to
// exercise the same resynchronization path a live tap does.
func replayFile(sess *session.Session, path string) {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open capture file: %v", err)
	}
	defer f.Close()

	buf := make([]byte, 256)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if err := sess.Ingest(buf[:n]); err != nil {
				log.Fatalf("ingest failed: %v", err)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("read failed: %v", err)
		}
	}
	// Give the printer a moment to drain.
	time.Sleep(100 * time.Millisecond)
}

func tapPort(ctx context.Context, sess *session.Session, path string, baud int) {
	if baud == 0 && *protocolID != "" {
		if desc, err := protocol.DefaultRegistry().Lookup(*protocolID); err == nil {
			baud = desc.BaudRate
		}
	}

	mux, err := serialmux.NewRealTapMux(path, serialmux.PortOptions{BaudRate: baud})
	if err != nil {
		log.Fatalf("failed to open %s: %v", path, err)
	}
	defer mux.Close()

	go func() {
		if err := mux.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("tap monitor exited: %v", err)
		}
	}()

	id, chunks := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			if err := sess.Ingest(chunk); err != nil {
				log.Fatalf("ingest failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
