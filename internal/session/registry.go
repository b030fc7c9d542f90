package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/sourcegraph/conc"

	"focusift/internal/feedback"
)

// Registry creates one Controller per user on first use and runs its loop
// until Close.
type Registry struct {
	cfg     Config
	deps    Deps
	backend feedback.Backend
	opts    []Option
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu          sync.Mutex
	controllers map[string]*Controller
	closed      bool
}

// NewRegistry returns a registry whose controllers store feedback in
// backend under a per-user key. deps.Feedback is ignored.
func NewRegistry(cfg Config, deps Deps, backend feedback.Backend, opts ...Option) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:         cfg,
		deps:        deps,
		backend:     backend,
		opts:        opts,
		logger:      deps.Logger,
		ctx:         ctx,
		cancel:      cancel,
		controllers: make(map[string]*Controller),
	}
}

// Get returns the controller for userID, starting it if needed. It returns
// ErrClosed after Close and ErrTooManyUsers once cfg.MaxUsers controllers
// exist.
func (r *Registry) Get(userID string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if c, ok := r.controllers[userID]; ok {
		return c, nil
	}
	if r.cfg.MaxUsers > 0 && len(r.controllers) >= r.cfg.MaxUsers {
		r.logger.Warn("refusing new session controller, user limit reached", "user", userID, "max_users", r.cfg.MaxUsers)
		return nil, ErrTooManyUsers
	}

	deps := r.deps
	deps.Feedback = feedback.NewStore(r.backend, feedback.KeyFor(userID), r.logger)
	c := New(userID, r.cfg, deps, r.opts...)
	r.controllers[userID] = c
	r.wg.Go(func() { c.Run(r.ctx) })

	r.logger.Info("session controller started", "user", userID)
	return c, nil
}

// Users lists the users with a controller, sorted.
func (r *Registry) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]string, 0, len(r.controllers))
	for u := range r.controllers {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// Close stops every controller and waits for their loops to return. Running
// sessions are stopped and their summaries handed to the summary func.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}
