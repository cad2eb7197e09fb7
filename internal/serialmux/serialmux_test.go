package serialmux

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTapMuxFansOutChunks(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewTapMux[*TestableSerialPort](port)

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()
	defer mux.Unsubscribe(id1)
	defer mux.Unsubscribe(id2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	port.AddReadData([]byte{0x01, 0x03, 0x80})

	for _, ch := range []chan []byte{ch1, ch2} {
		select {
		case chunk := <-ch:
			assert.Equal(t, []byte{0x01, 0x03, 0x80}, chunk)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for chunk")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("monitor did not exit on cancel")
	}
}

func TestTapMuxMonitorReturnsReadError(t *testing.T) {
	port := NewTestableSerialPort()
	readErr := errors.New("device unplugged")
	port.ReadError = readErr
	mux := NewTapMux[*TestableSerialPort](port)

	err := mux.Monitor(context.Background())
	assert.ErrorIs(t, err, readErr)
}

func TestTapMuxCloseClosesSubscribers(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewTapMux[*TestableSerialPort](port)

	_, ch := mux.Subscribe()
	require.NoError(t, mux.Close())

	_, ok := <-ch
	assert.False(t, ok)
	assert.True(t, port.Closed)
}

func TestTapMuxUnsubscribe(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewTapMux[*TestableSerialPort](port)

	id, ch := mux.Subscribe()
	mux.Unsubscribe(id)

	_, ok := <-ch
	assert.False(t, ok)

	// Unsubscribing an unknown ID is a no-op.
	mux.Unsubscribe("not-a-subscriber")
}

func TestDisabledTapMux(t *testing.T) {
	mux := NewDisabledTapMux()

	id, ch := mux.Subscribe()
	mux.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)

	_, ch = mux.Subscribe()
	require.NoError(t, mux.Close())
	_, ok = <-ch
	assert.False(t, ok)

	// Subscribing after close yields an already-closed channel.
	_, ch = mux.Subscribe()
	_, ok = <-ch
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, mux.Monitor(ctx), context.Canceled)
}
