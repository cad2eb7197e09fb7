package serialmux

import (
	"context"
	"sync"
)

// DisabledTapMux is a no-op Tapper implementation used when no serial
// hardware is attached (for --disable-serial). It allows the server to run
// without a real device. Subscribers are tracked so their channels can be
// deterministically closed on Unsubscribe() or Close(), allowing readers to
// unblock predictably during shutdown.
type DisabledTapMux struct {
	mu          sync.Mutex
	subscribers map[string]chan []byte
	closing     bool
}

func NewDisabledTapMux() *DisabledTapMux {
	return &DisabledTapMux{
		subscribers: make(map[string]chan []byte),
	}
}

func (d *DisabledTapMux) Subscribe() (string, chan []byte) {
	id := randomID()
	ch := make(chan []byte)

	d.mu.Lock()
	if d.closing {
		// If already closing, return a closed channel so callers don't block.
		close(ch)
		d.mu.Unlock()
		return id, ch
	}
	d.subscribers[id] = ch
	d.mu.Unlock()
	return id, ch
}

func (d *DisabledTapMux) Unsubscribe(id string) {
	d.mu.Lock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
}

func (d *DisabledTapMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledTapMux) Close() error {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
	return nil
}
