package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusift/internal/clock"
	"focusift/internal/clock/clocktest"
	"focusift/internal/event"
)

type recorder struct {
	events []event.Event
}

func (r *recorder) emit(e event.Event) { r.events = append(r.events, e) }

func (r *recorder) count(t event.EventType) int {
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func newClock(t *testing.T) (*clock.Clock, *clocktest.Factory, *recorder) {
	t.Helper()
	f := &clocktest.Factory{}
	rec := &recorder{}
	start := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	c := clock.New(rec.emit, clock.WithTicker(f.New), clock.WithNow(func() time.Time { return start }))
	return c, f, rec
}

func TestRunToCompletion(t *testing.T) {
	for _, minutes := range []int{1, 2, 25} {
		c, f, rec := newClock(t)
		require.True(t, c.Start(minutes))
		require.NotNil(t, c.Ticks())

		for i := 0; i < minutes*60+10; i++ {
			c.Tick()
		}

		st := c.State()
		assert.False(t, st.Running)
		assert.Equal(t, minutes*60, st.ElapsedSeconds)
		assert.Equal(t, 0, st.RemainingSeconds)
		assert.Equal(t, 1, rec.count(event.EventTypeSessionCompleted), "exactly one completion for %d minutes", minutes)
		assert.Equal(t, minutes*60, rec.count(event.EventTypeTick))
		assert.Equal(t, 0, rec.count(event.EventTypeSessionStopped))
		assert.True(t, f.Last().Stopped())
		assert.Nil(t, c.Ticks())
	}
}

func TestStopCancelsFurtherTicks(t *testing.T) {
	for _, after := range []int{0, 1, 30, 59} {
		c, f, rec := newClock(t)
		require.True(t, c.Start(1))
		for i := 0; i < after; i++ {
			c.Tick()
		}

		require.True(t, c.Stop(event.ReasonUser))
		assert.True(t, f.Last().Stopped())
		assert.Nil(t, c.Ticks())

		ticksBefore := rec.count(event.EventTypeTick)
		c.Tick()
		c.Tick()
		assert.Equal(t, ticksBefore, rec.count(event.EventTypeTick), "no tick applied after stop")
		assert.Equal(t, after, c.State().ElapsedSeconds)
		assert.Equal(t, 0, rec.count(event.EventTypeSessionCompleted))

		last := rec.events[len(rec.events)-1]
		assert.Equal(t, event.EventTypeSessionStopped, last.Type)
		assert.Equal(t, event.ReasonUser, last.Reason)
	}
}

func TestStartWhileRunningIsNoop(t *testing.T) {
	c, f, _ := newClock(t)
	require.True(t, c.Start(5))
	c.Tick()

	assert.False(t, c.Start(10))
	assert.Equal(t, 1, f.Count(), "no second ticker")
	st := c.State()
	assert.Equal(t, 300, st.PlannedSeconds)
	assert.Equal(t, 1, st.ElapsedSeconds)
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	c, _, rec := newClock(t)
	assert.False(t, c.Stop(event.ReasonUser))
	assert.Empty(t, rec.events)
}

func TestStartRejectsNonPositive(t *testing.T) {
	c, f, rec := newClock(t)
	assert.False(t, c.Start(0))
	assert.False(t, c.Start(-3))
	assert.Equal(t, 0, f.Count())
	assert.Empty(t, rec.events)
	assert.False(t, c.Running())
}

func TestRestartResetsElapsed(t *testing.T) {
	c, f, _ := newClock(t)
	require.True(t, c.Start(1))
	c.Tick()
	c.Stop(event.ReasonUser)

	require.True(t, c.Start(2))
	assert.Equal(t, 2, f.Count())
	st := c.State()
	assert.Equal(t, 0, st.ElapsedSeconds)
	assert.Equal(t, 120, st.RemainingSeconds)
}
