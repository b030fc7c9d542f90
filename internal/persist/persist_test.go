package persist

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusift/internal/event"
	"focusift/internal/storage/sqlite"
)

func summary(user string) event.SessionSummary {
	start := time.Date(2026, 5, 6, 9, 0, 0, 0, time.UTC)
	interrupted := true
	count := 2
	sugg := "Mindful Breaks"
	return event.SessionSummary{
		UserID:         user,
		StartTime:      start,
		EndTime:        start.Add(12 * time.Minute),
		WasInterrupted: &interrupted,
		TabSwitchCount: &count,
		Suggestion:     &sugg,
	}
}

func TestStorePersister(t *testing.T) {
	store := sqlite.NewSQLiteStore(filepath.Join(t.TempDir(), "focusift.db"), nil)
	require.NoError(t, store.Init(context.Background()))
	defer store.Close()

	p := NewStorePersister(store)
	ctx := context.Background()

	rec, err := p.Persist(ctx, summary("alice"))
	require.NoError(t, err)
	assert.Greater(t, rec.ID, int64(0))
	assert.Equal(t, 2, rec.TabSwitchCount)

	_, err = p.Persist(ctx, event.SessionSummary{})
	assert.ErrorIs(t, err, event.ErrInvalidSummary)

	got, err := store.GetSessions(ctx, "alice", rec.StartTime.Add(-time.Hour), rec.StartTime.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Mindful Breaks", got[0].Suggestion)
}

func TestHTTPPersister(t *testing.T) {
	var received event.SessionSummary
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/session", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(received.Record())
	}))
	defer ts.Close()

	p := NewHTTPPersister(ts.URL+"/", "secret", time.Second)
	rec, err := p.Persist(context.Background(), summary("bob"))
	require.NoError(t, err)
	assert.Equal(t, "bob", received.UserID)
	assert.Equal(t, "bob", rec.UserID)
	assert.True(t, rec.WasInterrupted)
	assert.Equal(t, "remote", p.Name())
}

func TestHTTPPersisterErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := NewHTTPPersister(ts.URL, "", time.Second).Persist(context.Background(), summary("bob"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	_, err = NewHTTPPersister(slow.URL, "", 50*time.Millisecond).Persist(context.Background(), summary("bob"))
	assert.Error(t, err, "the timeout bounds the hand-off")
}

type fakePersister struct {
	mu    sync.Mutex
	calls []event.SessionSummary
	err   error
	delay time.Duration
}

func (f *fakePersister) Name() string { return "fake" }

func (f *fakePersister) Persist(ctx context.Context, s event.SessionSummary) (event.SessionRecord, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return event.SessionRecord{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
	if f.err != nil {
		return event.SessionRecord{}, f.err
	}
	return s.Record(), nil
}

func TestDispatcherIsFireAndForget(t *testing.T) {
	fp := &fakePersister{delay: 100 * time.Millisecond}
	var ok []event.SessionRecord
	var mu sync.Mutex
	d := NewDispatcher(fp, OnSuccess(func(rec event.SessionRecord) {
		mu.Lock()
		ok = append(ok, rec)
		mu.Unlock()
	}))

	start := time.Now()
	d.Dispatch(summary("alice"))
	d.Dispatch(summary("bob"))
	assert.Less(t, time.Since(start), 50*time.Millisecond, "Dispatch must not wait for the persister")

	d.Wait()
	assert.Len(t, fp.calls, 2)
	assert.Len(t, ok, 2)
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	fp := &fakePersister{err: errors.New("unavailable")}
	var failures []string
	var mu sync.Mutex
	d := NewDispatcher(fp, OnFailure(func(name string) {
		mu.Lock()
		failures = append(failures, name)
		mu.Unlock()
	}))

	assert.NotPanics(t, func() { d.Dispatch(summary("alice")) })
	d.Wait()
	assert.Equal(t, []string{"fake"}, failures)
	assert.Len(t, fp.calls, 1, "no retry")
}

func TestDispatcherTimeout(t *testing.T) {
	fp := &fakePersister{delay: time.Second}
	failed := make(chan string, 1)
	d := NewDispatcher(fp, WithTimeout(20*time.Millisecond), OnFailure(func(name string) { failed <- name }))

	d.Dispatch(summary("alice"))
	d.Wait()
	assert.Equal(t, "fake", <-failed)
}
