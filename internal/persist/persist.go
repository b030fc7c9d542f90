// Package persist hands finished-session summaries to the persistence
// collaborator, either the local store or a remote focusift server.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sourcegraph/conc"

	"focusift/internal/event"
	"focusift/internal/storage"
)

const DefaultTimeout = 5 * time.Second

type Persister interface {
	Name() string
	Persist(ctx context.Context, s event.SessionSummary) (event.SessionRecord, error)
}

// StorePersister writes summaries to the local storage.
type StorePersister struct {
	store storage.Storage
}

func NewStorePersister(store storage.Storage) *StorePersister {
	return &StorePersister{store: store}
}

func (p *StorePersister) Name() string { return "local" }

func (p *StorePersister) Persist(ctx context.Context, s event.SessionSummary) (event.SessionRecord, error) {
	if err := s.Validate(); err != nil {
		return event.SessionRecord{}, err
	}
	return p.store.SaveSession(ctx, s.Record())
}

// HTTPPersister posts summaries to a remote POST /api/session endpoint.
type HTTPPersister struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPPersister(endpoint, apiKey string, timeout time.Duration) *HTTPPersister {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPPersister{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *HTTPPersister) Name() string { return "remote" }

func (p *HTTPPersister) Persist(ctx context.Context, s event.SessionSummary) (event.SessionRecord, error) {
	var rec event.SessionRecord

	body, err := json.Marshal(s)
	if err != nil {
		return rec, fmt.Errorf("marshal summary: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/api/session", bytes.NewReader(body))
	if err != nil {
		return rec, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return rec, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return rec, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return rec, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &rec); err != nil {
			return rec, fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return rec, nil
}

// Dispatcher runs every hand-off on its own goroutine. Failures are logged
// and counted but never retried and never reach the caller.
type Dispatcher struct {
	persister Persister
	timeout   time.Duration
	logger    *slog.Logger
	onFailure func(persister string)
	onSuccess func(rec event.SessionRecord)

	wg conc.WaitGroup
}

type DispatcherOption func(*Dispatcher)

func WithTimeout(d time.Duration) DispatcherOption {
	return func(ds *Dispatcher) { ds.timeout = d }
}

func WithLogger(l *slog.Logger) DispatcherOption {
	return func(ds *Dispatcher) { ds.logger = l }
}

// OnFailure is called with the persister name after a failed hand-off.
func OnFailure(fn func(persister string)) DispatcherOption {
	return func(ds *Dispatcher) { ds.onFailure = fn }
}

func OnSuccess(fn func(rec event.SessionRecord)) DispatcherOption {
	return func(ds *Dispatcher) { ds.onSuccess = fn }
}

func NewDispatcher(p Persister, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		persister: p,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch returns immediately.
func (d *Dispatcher) Dispatch(s event.SessionSummary) {
	d.wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		rec, err := d.persister.Persist(ctx, s)
		if err != nil {
			d.logger.Warn("failed to persist session summary",
				"persister", d.persister.Name(),
				"user", s.UserID,
				"error", err)
			if d.onFailure != nil {
				d.onFailure(d.persister.Name())
			}
			return
		}
		d.logger.Debug("session summary persisted", "persister", d.persister.Name(), "id", rec.ID)
		if d.onSuccess != nil {
			d.onSuccess(rec)
		}
	})
}

// Wait blocks until every dispatched hand-off has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
