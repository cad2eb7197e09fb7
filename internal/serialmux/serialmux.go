// Serialmux provides a passive tap over a serial bus with the ability for
// multiple clients to subscribe to raw byte chunks read from the port. The
// tap never transmits: scooter dashboards and controllers chatter on their
// own, and writing to a live bus could confuse either end.
package serialmux

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"io"
	"sync"

	"github.com/electrifix/scootertap/internal/monitoring"
)

// readChunkSize is the read buffer size per port read. The supported
// protocols run at 1200-115200 baud, so chunks stay small in practice.
const readChunkSize = 512

// subscriberBuffer is the per-subscriber channel depth. A consumer that
// falls this far behind loses chunks rather than stalling the reader.
const subscriberBuffer = 64

// Tapper is the interface the capture layer consumes.
type Tapper interface {
	// Subscribe creates a new channel for receiving byte chunks read from
	// the serial port. The channel ID is used to identify the unique
	// channel when unsubscribing.
	Subscribe() (string, chan []byte)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// Monitor reads chunks from the serial port and sends them to the
	// subscribed channels.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error
}

// TapMux is a generic passive serial tap that allows multiple clients to
// subscribe to byte chunks from a single serial port.
type TapMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan []byte
	subscriberMu sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// NewTapMux creates a TapMux instance backed by the given serial port.
func NewTapMux[T SerialPorter](port T) *TapMux[T] {
	return &TapMux[T]{
		port:        port,
		subscribers: make(map[string]chan []byte),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *TapMux[T]) Subscribe() (string, chan []byte) {
	id := randomID()
	ch := make(chan []byte, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the tap.
func (s *TapMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Monitor reads byte chunks from the serial port and fans them out to
// subscribers until the context is done or the port errors out.
func (s *TapMux[T]) Monitor(ctx context.Context) error {
	chunkChan := make(chan []byte)
	readErrChan := make(chan error, 1)

	// start a goroutine to read from the serial port & send chunks to
	// chunkChan and any errors to readErrChan.
	//
	// the blocking port.Read will not interfere with our outer loop
	// awaiting chunks & context cancellation.
	go func() {
		defer close(chunkChan)
		buf := make([]byte, readChunkSize)
		for {
			n, err := s.port.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunkChan <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					select {
					case readErrChan <- err:
					case <-ctx.Done():
					}
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErrChan:
			return err

		case chunk, ok := <-chunkChan:
			// if the channel is closed, we're done reading from the port
			if !ok {
				return nil
			}
			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			monitoring.Debugf("serialmux: read %d bytes: % x", len(chunk), chunk)

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- chunk:
				default:
					// if the channel is full skip so as not to block the outer loop
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *TapMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}
