package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusift/internal/catalog"
	"focusift/internal/clock/clocktest"
	"focusift/internal/event"
	"focusift/internal/feedback"
)

const fireWait = time.Second

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemBackend() *memBackend { return &memBackend{data: make(map[string][]byte)} }

func (m *memBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memBackend) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memBackend) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.data {
		out = append(out, k)
	}
	return out
}

type harness struct {
	c         *Controller
	ticks     *clocktest.Factory
	events    <-chan event.Event
	summaries chan event.SessionSummary
	cancel    context.CancelFunc
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	h := &harness{
		ticks:     &clocktest.Factory{},
		summaries: make(chan event.SessionSummary, 8),
	}
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	h.c = New("alice", cfg, Deps{
		Catalog:  cat,
		Feedback: feedback.NewStore(newMemBackend(), feedback.KeyFor("alice"), nil),
		Summary:  func(s event.SessionSummary) { h.summaries <- s },
	}, WithTicker(h.ticks.New), WithNow(func() time.Time { return start }))

	var unsubscribe func()
	h.events, unsubscribe = h.c.Subscribe(1024)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.c.Run(ctx)
	t.Cleanup(func() {
		unsubscribe()
		cancel()
		<-h.c.Done()
	})
	return h
}

func (h *harness) fire(t *testing.T, n int) {
	t.Helper()
	tk := h.ticks.Last()
	require.NotNil(t, tk)
	for i := 0; i < n; i++ {
		require.True(t, tk.Fire(fireWait), "tick %d not received", i+1)
	}
}

func (h *harness) status(t *testing.T) event.Status {
	t.Helper()
	st, err := h.c.Status(context.Background())
	require.NoError(t, err)
	return st
}

func waitFor(t *testing.T, ch <-chan event.Event, typ event.EventType) event.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			require.True(t, ok, "event stream closed while waiting for %s", typ)
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func drain(ch <-chan event.Event) []event.Event {
	var out []event.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func countType(events []event.Event, typ event.EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func TestSessionRunsToCompletion(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	st, err := h.c.Start(ctx, "1")
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, 60, st.PlannedSeconds)
	assert.NotEmpty(t, st.SessionID)

	h.fire(t, 60)

	st = h.status(t)
	assert.False(t, st.Running)
	assert.Equal(t, 60, st.ElapsedSeconds)
	assert.Equal(t, 0, st.RemainingSeconds)
	assert.Equal(t, event.ReasonCompleted, st.LastReason)
	require.NotNil(t, st.LastSuggestion)
	assert.Equal(t, "short", st.LastSuggestion.Bucket)
	assert.Equal(t, "2-Minute Rule", st.LastSuggestion.Top())

	assert.True(t, h.ticks.Last().Stopped())
	assert.False(t, h.ticks.Last().Fire(50*time.Millisecond), "no tick is consumed after completion")

	completed := waitFor(t, h.events, event.EventTypeSessionCompleted)
	assert.Equal(t, event.ReasonCompleted, completed.Reason)
	sugg := waitFor(t, h.events, event.EventTypeSuggestion)
	assert.Equal(t, "2-Minute Rule", sugg.Notes)
	assert.Equal(t, 0, countType(drain(h.events), event.EventTypeSessionCompleted), "completion is emitted once")

	sum := <-h.summaries
	require.NoError(t, sum.Validate())
	assert.Equal(t, "alice", sum.UserID)
	require.NotNil(t, sum.WasInterrupted)
	assert.False(t, *sum.WasInterrupted)
	require.NotNil(t, sum.TabSwitchCount)
	assert.Equal(t, 0, *sum.TabSwitchCount)
	require.NotNil(t, sum.Suggestion)
	assert.Equal(t, "2-Minute Rule", *sum.Suggestion)
}

func TestEventOrderForCompletedSession(t *testing.T) {
	h := newHarness(t, Config{})
	_, err := h.c.Start(context.Background(), "1")
	require.NoError(t, err)
	h.fire(t, 60)
	waitFor(t, h.events, event.EventTypeSessionStarted)

	var seen []event.Event
	for {
		e := <-h.events
		seen = append(seen, e)
		if e.Type == event.EventTypeSuggestion {
			break
		}
	}
	require.Len(t, seen, 62)
	assert.Equal(t, 60, countType(seen, event.EventTypeTick))
	assert.Equal(t, event.EventTypeSessionCompleted, seen[60].Type)
	assert.Equal(t, event.ReasonCompleted, seen[60].Reason)
	assert.Equal(t, 59, seen[58].ElapsedSeconds)
	assert.Equal(t, 1, seen[58].RemainingSeconds)
	for _, e := range seen {
		assert.Equal(t, "alice", e.UserID)
		assert.NotEmpty(t, e.SessionID)
	}
}

func TestUserStop(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	_, err := h.c.Start(ctx, "25")
	require.NoError(t, err)
	h.fire(t, 5)

	st, err := h.c.Stop(ctx)
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Equal(t, 5, st.ElapsedSeconds)
	assert.Equal(t, event.ReasonUser, st.LastReason)
	require.NotNil(t, st.LastSuggestion)
	assert.Equal(t, "short", st.LastSuggestion.Bucket)

	tk := h.ticks.Last()
	assert.True(t, tk.Stopped())
	assert.False(t, tk.Fire(50*time.Millisecond))
	assert.Equal(t, 5, h.status(t).ElapsedSeconds)

	stopped := waitFor(t, h.events, event.EventTypeSessionStopped)
	assert.Equal(t, event.ReasonUser, stopped.Reason)
	<-h.summaries

	// idle stop is a no-op
	st, err = h.c.Stop(ctx)
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Equal(t, 0, countType(drain(h.events), event.EventTypeSessionStopped))
}

func TestTooManyDistractions(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	_, err := h.c.Start(ctx, "120")
	require.NoError(t, err)
	h.fire(t, 5)

	for i := 0; i < 3; i++ {
		h.c.Signal(true)
		h.c.Signal(false)
	}

	stopped := waitFor(t, h.events, event.EventTypeSessionStopped)
	assert.Equal(t, event.ReasonTooDistracted, stopped.Reason)
	assert.Equal(t, 3, stopped.Interruptions)
	assert.Equal(t, 5, stopped.ElapsedSeconds)

	sugg := waitFor(t, h.events, event.EventTypeSuggestion)
	require.NotNil(t, sugg.Suggestion)
	assert.Equal(t, "distraction", sugg.Suggestion.Bucket)
	assert.Equal(t, "Mindful Breaks", sugg.Suggestion.Top())

	st := h.status(t)
	assert.False(t, st.Running)
	assert.Equal(t, 3, st.Interruptions)
	assert.Equal(t, event.ReasonTooDistracted, st.LastReason)

	sum := <-h.summaries
	assert.True(t, *sum.WasInterrupted)
	assert.Equal(t, 3, *sum.TabSwitchCount)
}

func TestInterruptionsBelowThresholdKeepRunning(t *testing.T) {
	h := newHarness(t, Config{})
	_, err := h.c.Start(context.Background(), "25")
	require.NoError(t, err)

	h.c.Signal(true)
	e := waitFor(t, h.events, event.EventTypeInterruption)
	assert.Equal(t, 1, e.Interruptions)
	assert.Equal(t, "counted", e.Notes)

	h.c.Signal(false)
	h.c.Signal(true)
	e = waitFor(t, h.events, event.EventTypeInterruption)
	assert.Equal(t, 2, e.Interruptions)

	st := h.status(t)
	assert.True(t, st.Running)
	assert.Equal(t, 2, st.Interruptions)

	h.fire(t, 1)
	_, err = h.c.Stop(context.Background())
	require.NoError(t, err)
	sum := <-h.summaries
	assert.True(t, *sum.WasInterrupted)
	assert.Equal(t, 2, *sum.TabSwitchCount)
}

func TestTerminateOnHidden(t *testing.T) {
	h := newHarness(t, Config{TerminateOnHidden: true})
	_, err := h.c.Start(context.Background(), "25")
	require.NoError(t, err)
	h.fire(t, 2)

	h.c.Signal(true)
	stopped := waitFor(t, h.events, event.EventTypeSessionStopped)
	assert.Equal(t, event.ReasonInterrupted, stopped.Reason)
	assert.Equal(t, 1, stopped.Interruptions)

	sugg := waitFor(t, h.events, event.EventTypeSuggestion)
	assert.Equal(t, "distraction", sugg.Suggestion.Bucket)
}

func TestHiddenWhileIdleIsIgnored(t *testing.T) {
	h := newHarness(t, Config{TerminateOnHidden: true})
	assert.Equal(t, 0, h.c.Watchers())
	h.c.Signal(true)

	st, err := h.c.Start(context.Background(), "10")
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, 0, st.Interruptions)
	assert.True(t, h.status(t).Running)
}

func TestInvalidInput(t *testing.T) {
	h := newHarness(t, Config{MaxMinutes: 240})
	ctx := context.Background()

	for _, input := range []string{"", "abc", "0", "-5", "2.5", "241"} {
		st, err := h.c.Start(ctx, input)
		assert.ErrorIs(t, err, ErrInvalidDuration, "input %q", input)
		assert.False(t, st.Running)

		notice := waitFor(t, h.events, event.EventTypeNotice)
		assert.NotEmpty(t, notice.Notes)
	}
	assert.Equal(t, 0, h.ticks.Count(), "the clock was never started")
	assert.Equal(t, 0, h.c.Watchers())

	st, err := h.c.Start(ctx, " 240 ")
	require.NoError(t, err)
	assert.Equal(t, 240*60, st.PlannedSeconds)
}

func TestStartWhileRunningIsGuarded(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	first, err := h.c.Start(ctx, "25")
	require.NoError(t, err)
	h.fire(t, 3)

	second, err := h.c.Start(ctx, "5")
	assert.ErrorIs(t, err, ErrSessionActive)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, 25*60, second.PlannedSeconds)
	assert.Equal(t, 3, second.ElapsedSeconds)
	assert.Equal(t, 1, h.ticks.Count())
}

func TestRepeatedCyclesDoNotLeakSubscriptions(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := h.c.Start(ctx, "25")
		require.NoError(t, err)
		assert.Equal(t, 1, h.c.Watchers())

		h.fire(t, 1)
		_, err = h.c.Stop(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, h.c.Watchers())
		<-h.summaries
	}
	assert.Equal(t, 5, h.ticks.Count())
}

func TestFeedback(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	e, err := h.c.Feedback(ctx, "2-Minute Rule", true)
	require.NoError(t, err)
	assert.Equal(t, feedback.Entry{Likes: 1}, e)

	e, err = h.c.Feedback(ctx, "2-Minute Rule", false)
	require.NoError(t, err)
	assert.Equal(t, feedback.Entry{Likes: 1, Dislikes: 1}, e)

	_, err = h.c.Feedback(ctx, "Juggling", true)
	assert.ErrorIs(t, err, ErrUnknownTechnique)
	_, err = h.c.Feedback(ctx, "  ", true)
	assert.ErrorIs(t, err, feedback.ErrEmptyTechnique)

	snap := h.c.FeedbackSnapshot(ctx)
	assert.Equal(t, feedback.Entry{Likes: 1, Dislikes: 1}, snap.Get("2-Minute Rule"))
	assert.Len(t, snap, 1)

	fb := waitFor(t, h.events, event.EventTypeFeedback)
	assert.Equal(t, "2-Minute Rule", fb.Tag)
	assert.Equal(t, "like", fb.Notes)
}

func TestFeedbackSteersSuggestion(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	_, err := h.c.Feedback(ctx, "2-Minute Rule", false)
	require.NoError(t, err)

	_, err = h.c.Start(ctx, "5")
	require.NoError(t, err)
	h.fire(t, 2)
	st, err := h.c.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Eat the Frog", st.LastSuggestion.Top())
}

func TestShutdownStopsRunningSession(t *testing.T) {
	h := newHarness(t, Config{})
	_, err := h.c.Start(context.Background(), "25")
	require.NoError(t, err)
	h.fire(t, 4)

	h.cancel()
	<-h.c.Done()

	sum := <-h.summaries
	assert.Equal(t, "alice", sum.UserID)

	_, err = h.c.Status(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = h.c.Start(context.Background(), "5")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestParseMinutes(t *testing.T) {
	tests := []struct {
		input string
		want  int
		ok    bool
	}{
		{"25", 25, true},
		{" 1 ", 1, true},
		{"240", 240, true},
		{"241", 0, false},
		{"0", 0, false},
		{"-3", 0, false},
		{"1e2", 0, false},
		{"ten", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMinutes(tt.input, 240)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrInvalidDuration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	n, err := ParseMinutes("1000", 0)
	require.NoError(t, err)
	assert.Equal(t, 1000, n, "no cap when max is 0")
}
