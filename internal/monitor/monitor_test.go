package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusift/internal/broadcast"
)

func TestThreeHiddenTransitionsTerminate(t *testing.T) {
	m := New(3, false)
	m.Attach(nil)

	assert.Equal(t, VerdictCounted, m.Observe(true))
	assert.Equal(t, VerdictIgnored, m.Observe(false))
	assert.Equal(t, VerdictCounted, m.Observe(true))
	assert.Equal(t, VerdictIgnored, m.Observe(false))
	assert.Equal(t, VerdictTooManyDistractions, m.Observe(true))

	assert.Equal(t, 3, m.Count())
	assert.True(t, m.Interrupted())
}

func TestRepeatedHiddenCountsOnce(t *testing.T) {
	m := New(3, false)
	m.Attach(nil)

	assert.Equal(t, VerdictCounted, m.Observe(true))
	assert.Equal(t, VerdictIgnored, m.Observe(true))
	assert.Equal(t, VerdictIgnored, m.Observe(true))
	assert.Equal(t, 1, m.Count())
}

func TestTerminateOnHidden(t *testing.T) {
	m := New(3, true)
	m.Attach(nil)

	assert.Equal(t, VerdictTerminate, m.Observe(true))
	assert.Equal(t, 1, m.Count())
	assert.True(t, m.Interrupted())
}

func TestInvalidThresholdFallsBack(t *testing.T) {
	assert.Equal(t, DefaultThreshold, New(0, false).Threshold())
	assert.Equal(t, 5, New(5, false).Threshold())
}

func TestAttachResetsAndDetachUnsubscribes(t *testing.T) {
	hub := broadcast.NewHub[bool]()
	m := New(3, false)

	for cycle := 0; cycle < 5; cycle++ {
		m.Attach(hub)
		require.True(t, m.Attached())
		assert.Equal(t, 1, hub.Len(), "one subscription per active session")
		assert.Equal(t, 0, m.Count(), "counter resets on every new session")

		hub.Publish(true)
		hidden := <-m.Signals()
		m.Observe(hidden)
		assert.Equal(t, 1, m.Count())

		m.Detach()
		assert.False(t, m.Attached())
		assert.Nil(t, m.Signals())
	}
	assert.Equal(t, 0, hub.Len(), "no subscription leaks across cycles")
}

func TestReattachDropsPreviousSubscription(t *testing.T) {
	hub := broadcast.NewHub[bool]()
	m := New(3, false)
	m.Attach(hub)
	m.Attach(hub)
	assert.Equal(t, 1, hub.Len())
	m.Detach()
	assert.Equal(t, 0, hub.Len())
}
