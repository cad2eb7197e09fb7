package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherPin(t *testing.T) {
	d := NewDispatcher(DefaultRegistry(), 0, 0)

	desc, err := d.Pin(ProtocolJPQS)
	require.NoError(t, err)
	assert.Equal(t, ProtocolJPQS, desc.Name)
	assert.Equal(t, desc, d.Active())
	assert.Len(t, d.Candidates(), 1)
}

func TestDispatcherPinUnknownProtocol(t *testing.T) {
	d := NewDispatcher(DefaultRegistry(), 0, 0)

	_, err := d.Pin("segway_classic")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownProtocol)
	assert.Nil(t, d.Active())
}

func TestDispatcherAutoDetectLocksAfterThreshold(t *testing.T) {
	d := NewDispatcher(DefaultRegistry(), 3, 0)
	assert.Len(t, d.Candidates(), 2)

	assert.Nil(t, d.ObserveFrame(ProtocolJPQS, true))
	assert.Nil(t, d.ObserveFrame(ProtocolJPQS, true))
	locked := d.ObserveFrame(ProtocolJPQS, true)
	require.NotNil(t, locked)
	assert.Equal(t, ProtocolJPQS, locked.Name)
	assert.Len(t, d.Candidates(), 1)

	// Further observations are no-ops once locked.
	assert.Nil(t, d.ObserveFrame(ProtocolNinebot, true))
	assert.Equal(t, ProtocolJPQS, d.Active().Name)
}

func TestDispatcherInvalidFrameResetsRun(t *testing.T) {
	d := NewDispatcher(DefaultRegistry(), 3, 0)

	assert.Nil(t, d.ObserveFrame(ProtocolNinebot, true))
	assert.Nil(t, d.ObserveFrame(ProtocolNinebot, true))
	// A checksum collision does not keep the streak alive.
	assert.Nil(t, d.ObserveFrame(ProtocolNinebot, false))
	assert.Nil(t, d.ObserveFrame(ProtocolNinebot, true))
	assert.Nil(t, d.ObserveFrame(ProtocolNinebot, true))
	locked := d.ObserveFrame(ProtocolNinebot, true)
	require.NotNil(t, locked)
	assert.Equal(t, ProtocolNinebot, locked.Name)
}

func TestDispatcherBudget(t *testing.T) {
	d := NewDispatcher(DefaultRegistry(), 3, 100)

	assert.False(t, d.Exhausted())
	d.ObserveBytes(60)
	assert.False(t, d.Exhausted())
	d.ObserveBytes(60)
	assert.True(t, d.Exhausted())
	assert.False(t, d.SawValidFrame())

	// Locking afterwards clears the exhausted condition.
	d.ObserveFrame(ProtocolJPQS, true)
	assert.True(t, d.SawValidFrame())
	d.ObserveFrame(ProtocolJPQS, true)
	d.ObserveFrame(ProtocolJPQS, true)
	assert.False(t, d.Exhausted())
}
