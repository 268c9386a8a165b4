package agentloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventEmitterDropsWhenFull(t *testing.T) {
	e := NewEventEmitter("s1", 2)
	e.Emit(EventUserInput, nil)
	e.Emit(EventModelCallStart, nil)
	e.Emit(EventModelCallEnd, nil)

	assert.Equal(t, 1, e.Dropped())
	first := <-e.Events()
	assert.Equal(t, EventUserInput, first.Kind)
	assert.Equal(t, "s1", first.SessionID)
	assert.False(t, first.Timestamp.IsZero())
}

func TestEventEmitterClose(t *testing.T) {
	e := NewEventEmitter("s1", 0)
	e.Close()
	e.Close()
	e.Emit(EventWarning, nil)

	_, ok := <-e.Events()
	require.False(t, ok)
}
