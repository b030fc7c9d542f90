// Package session runs one focus timer per user. A Controller owns a clock,
// a distraction monitor and a feedback store, and every state change happens
// on its Run goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"focusift/internal/broadcast"
	"focusift/internal/catalog"
	"focusift/internal/clock"
	"focusift/internal/event"
	"focusift/internal/feedback"
	"focusift/internal/monitor"
	"focusift/internal/suggest"
)

// DefaultMaxMinutes caps a single session.
const DefaultMaxMinutes = 240

var (
	ErrInvalidDuration  = errors.New("invalid session duration")
	ErrSessionActive    = errors.New("a session is already running")
	ErrUnknownTechnique = errors.New("unknown technique")
	ErrClosed           = errors.New("session controller is not running")
	ErrTooManyUsers     = errors.New("too many active users")
)

// ParseMinutes validates user input for a session length.
func ParseMinutes(input string, max int) (int, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0, fmt.Errorf("%w: please enter a number of minutes", ErrInvalidDuration)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a whole number of minutes", ErrInvalidDuration, s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: minutes must be positive", ErrInvalidDuration)
	}
	if max > 0 && n > max {
		return 0, fmt.Errorf("%w: at most %d minutes", ErrInvalidDuration, max)
	}
	return n, nil
}

// SummaryFunc receives the summary of every finished session. It must not
// block; the persistence dispatcher satisfies this.
type SummaryFunc func(event.SessionSummary)

type Config struct {
	MaxMinutes        int
	MaxUsers          int // Registry cap on controllers; 0 means unlimited
	Threshold         int
	TerminateOnHidden bool
}

type Deps struct {
	Catalog  *catalog.Catalog
	Engine   *suggest.Engine
	Feedback *feedback.Store
	Summary  SummaryFunc
	Logger   *slog.Logger
}

type Option func(*Controller)

func WithTicker(f clock.TickerFunc) Option {
	return func(c *Controller) { c.clockOpts = append(c.clockOpts, clock.WithTicker(f)) }
}

func WithNow(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
		c.clockOpts = append(c.clockOpts, clock.WithNow(now))
	}
}

// WithObserver registers a callback that sees every event after it is
// published. It runs on the controller goroutine.
func WithObserver(fn func(event.Event)) Option {
	return func(c *Controller) { c.observer = fn }
}

// --- Command Types ---
type startCmd struct {
	input string
	reply chan startReply
}

type startReply struct {
	status event.Status
	err    error
}

type stopCmd struct{ reply chan event.Status }

type statusCmd struct{ reply chan event.Status }

type feedbackCmd struct {
	name  string
	liked bool
	reply chan feedbackReply
}

type feedbackReply struct {
	entry feedback.Entry
	err   error
}

type Controller struct {
	userID string
	cfg    Config

	catalog  *catalog.Catalog
	engine   *suggest.Engine
	feedback *feedback.Store
	summary  SummaryFunc
	observer func(event.Event)
	logger   *slog.Logger
	now      func() time.Time

	clockOpts  []clock.Option
	clock      *clock.Clock
	monitor    *monitor.Monitor
	visibility *broadcast.Hub[bool]
	events     *broadcast.Hub[event.Event]

	cmdChan chan interface{}
	done    chan struct{}

	// owned by the Run goroutine
	runCtx         context.Context
	current        *event.Session
	lastReason     event.StopReason
	lastSuggestion *event.Suggestion
}

func New(userID string, cfg Config, deps Deps, opts ...Option) *Controller {
	if cfg.MaxMinutes <= 0 {
		cfg.MaxMinutes = DefaultMaxMinutes
	}
	c := &Controller{
		userID:     userID,
		cfg:        cfg,
		catalog:    deps.Catalog,
		engine:     deps.Engine,
		feedback:   deps.Feedback,
		summary:    deps.Summary,
		logger:     deps.Logger,
		now:        time.Now,
		monitor:    monitor.New(cfg.Threshold, cfg.TerminateOnHidden),
		visibility: broadcast.NewHub[bool](),
		events:     broadcast.NewHub[event.Event](),
		cmdChan:    make(chan interface{}, 10),
		done:       make(chan struct{}),
		runCtx:     context.Background(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("user", userID)
	if c.engine == nil {
		c.engine = suggest.NewEngine(nil, c.catalog)
	}
	if c.feedback == nil {
		c.feedback = feedback.NewStore(memoryBackend{}, feedback.KeyFor(userID), c.logger)
	}
	c.clock = clock.New(c.onClockEvent, c.clockOpts...)
	return c
}

func (c *Controller) UserID() string { return c.userID }

// Run processes commands, ticks and visibility signals until ctx is done.
// A session still running at that point is stopped with reason "user".
func (c *Controller) Run(ctx context.Context) {
	c.runCtx = ctx
	defer close(c.done)
	defer c.logger.Debug("session loop stopped")

	for {
		select {
		case <-ctx.Done():
			c.runCtx = context.WithoutCancel(ctx)
			c.clock.Stop(event.ReasonUser)
			c.monitor.Detach()
			c.visibility.Close()
			c.events.Close()
			return

		case cmd := <-c.cmdChan:
			c.handleCommand(cmd)

		case <-c.clock.Ticks():
			c.clock.Tick()

		case hidden, ok := <-c.monitor.Signals():
			if !ok {
				c.monitor.Detach()
				continue
			}
			c.handleVisibility(hidden)
		}
	}
}

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Start parses input as minutes and begins a session.
func (c *Controller) Start(ctx context.Context, input string) (event.Status, error) {
	reply := make(chan startReply, 1)
	if err := c.send(ctx, startCmd{input: input, reply: reply}); err != nil {
		return event.Status{}, err
	}
	select {
	case r := <-reply:
		return r.status, r.err
	case <-c.done:
		return event.Status{}, ErrClosed
	case <-ctx.Done():
		return event.Status{}, ctx.Err()
	}
}

// Stop ends the running session with reason "user". It is a no-op while
// idle. No tick is applied after Stop returns.
func (c *Controller) Stop(ctx context.Context) (event.Status, error) {
	reply := make(chan event.Status, 1)
	if err := c.send(ctx, stopCmd{reply: reply}); err != nil {
		return event.Status{}, err
	}
	return c.awaitStatus(ctx, reply)
}

func (c *Controller) Status(ctx context.Context) (event.Status, error) {
	reply := make(chan event.Status, 1)
	if err := c.send(ctx, statusCmd{reply: reply}); err != nil {
		return event.Status{}, err
	}
	return c.awaitStatus(ctx, reply)
}

// Feedback records a like or dislike for a catalog technique.
func (c *Controller) Feedback(ctx context.Context, name string, liked bool) (feedback.Entry, error) {
	reply := make(chan feedbackReply, 1)
	if err := c.send(ctx, feedbackCmd{name: name, liked: liked, reply: reply}); err != nil {
		return feedback.Entry{}, err
	}
	select {
	case r := <-reply:
		return r.entry, r.err
	case <-c.done:
		return feedback.Entry{}, ErrClosed
	case <-ctx.Done():
		return feedback.Entry{}, ctx.Err()
	}
}

func (c *Controller) FeedbackSnapshot(ctx context.Context) feedback.Snapshot {
	return c.feedback.Load(ctx)
}

// Signal publishes a visibility change. Safe from any goroutine; it is
// dropped when no session is listening.
func (c *Controller) Signal(hidden bool) {
	c.visibility.Publish(hidden)
}

// Subscribe returns a stream of every event the controller publishes. The
// channel is closed by cancel or when Run returns.
func (c *Controller) Subscribe(buf int) (<-chan event.Event, func()) {
	return c.events.Subscribe(buf)
}

// Watchers is the number of live visibility subscriptions.
func (c *Controller) Watchers() int { return c.visibility.Len() }

func (c *Controller) send(ctx context.Context, cmd interface{}) error {
	select {
	case c.cmdChan <- cmd:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) awaitStatus(ctx context.Context, reply chan event.Status) (event.Status, error) {
	select {
	case st := <-reply:
		return st, nil
	case <-c.done:
		return event.Status{}, ErrClosed
	case <-ctx.Done():
		return event.Status{}, ctx.Err()
	}
}

func (c *Controller) handleCommand(cmd interface{}) {
	switch cm := cmd.(type) {
	case startCmd:
		st, err := c.start(cm.input)
		cm.reply <- startReply{status: st, err: err}

	case stopCmd:
		if !c.clock.Stop(event.ReasonUser) {
			c.logger.Debug("stop requested while idle")
		}
		cm.reply <- c.status()

	case statusCmd:
		cm.reply <- c.status()

	case feedbackCmd:
		entry, err := c.recordFeedback(cm.name, cm.liked)
		cm.reply <- feedbackReply{entry: entry, err: err}

	default:
		c.logger.Warn("unknown command", "type", fmt.Sprintf("%T", cm))
	}
}

func (c *Controller) start(input string) (event.Status, error) {
	if c.clock.Running() {
		return c.status(), ErrSessionActive
	}
	minutes, err := ParseMinutes(input, c.cfg.MaxMinutes)
	if err != nil {
		c.publish(event.Event{Timestamp: c.now(), Type: event.EventTypeNotice, Notes: err.Error()})
		return c.status(), err
	}

	c.current = &event.Session{
		ID:             uuid.NewString(),
		UserID:         c.userID,
		PlannedSeconds: minutes * 60,
	}
	c.monitor.Attach(c.visibility)
	if !c.clock.Start(minutes) {
		c.monitor.Detach()
		c.current = nil
		return c.status(), fmt.Errorf("%w: clock refused %d minutes", ErrInvalidDuration, minutes)
	}
	c.logger.Info("session started", "session", c.current.ID, "minutes", minutes)
	return c.status(), nil
}

func (c *Controller) handleVisibility(hidden bool) {
	if !c.clock.Running() {
		return
	}
	verdict := c.monitor.Observe(hidden)
	if verdict == monitor.VerdictIgnored {
		return
	}

	st := c.clock.State()
	c.publish(event.Event{
		Timestamp:        c.now(),
		Type:             event.EventTypeInterruption,
		ElapsedSeconds:   st.ElapsedSeconds,
		RemainingSeconds: st.RemainingSeconds,
		Interruptions:    c.monitor.Count(),
		Notes:            verdict.String(),
	})

	switch verdict {
	case monitor.VerdictTooManyDistractions:
		c.clock.Stop(event.ReasonTooDistracted)
	case monitor.VerdictTerminate:
		c.clock.Stop(event.ReasonInterrupted)
	}
}

// onClockEvent runs synchronously inside clock calls made by the loop.
func (c *Controller) onClockEvent(e event.Event) {
	if c.current != nil && e.Type == event.EventTypeSessionStarted {
		c.current.StartTime = e.Timestamp
	}
	e.Interruptions = c.monitor.Count()
	c.publish(e)

	switch e.Type {
	case event.EventTypeSessionCompleted, event.EventTypeSessionStopped:
		c.finish(e)
	}
}

func (c *Controller) finish(e event.Event) {
	s := c.current
	if s == nil {
		return
	}
	c.current = nil
	c.monitor.Detach()

	s.EndTime = e.Timestamp
	s.ElapsedSeconds = e.ElapsedSeconds
	s.InterruptionCount = c.monitor.Count()
	s.WasInterrupted = c.monitor.Interrupted()
	s.Reason = e.Reason

	sugg := c.engine.Suggest(*s, c.feedback.Load(c.runCtx))
	c.lastReason = s.Reason
	c.lastSuggestion = &sugg

	notes := "no suggestion available"
	if top := sugg.Top(); top != "" {
		notes = top
	}
	c.publishFor(s.ID, event.Event{
		Timestamp:      c.now(),
		Type:           event.EventTypeSuggestion,
		ElapsedSeconds: s.ElapsedSeconds,
		Interruptions:  s.InterruptionCount,
		Reason:         s.Reason,
		Tag:            sugg.Bucket,
		Notes:          notes,
		Suggestion:     &sugg,
	})

	c.logger.Info("session ended",
		"session", s.ID,
		"reason", s.Reason,
		"elapsed", s.Elapsed(),
		"interruptions", s.InterruptionCount,
		"suggestion", sugg.Top())

	if c.summary != nil {
		c.summary(event.SummaryFromSession(*s, sugg))
	}
}

func (c *Controller) recordFeedback(name string, liked bool) (feedback.Entry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return feedback.Entry{}, feedback.ErrEmptyTechnique
	}
	if c.catalog != nil {
		if _, ok := c.catalog.Lookup(name); !ok {
			return feedback.Entry{}, fmt.Errorf("%w: %s", ErrUnknownTechnique, name)
		}
	}
	entry, err := c.feedback.Record(c.runCtx, name, liked)
	if err != nil {
		return feedback.Entry{}, err
	}
	vote := "dislike"
	if liked {
		vote = "like"
	}
	c.publish(event.Event{Timestamp: c.now(), Type: event.EventTypeFeedback, Tag: name, Notes: vote})
	return entry, nil
}

func (c *Controller) status() event.Status {
	st := c.clock.State()
	out := event.Status{
		UserID:           c.userID,
		Running:          st.Running,
		StartTime:        st.StartTime,
		PlannedSeconds:   st.PlannedSeconds,
		ElapsedSeconds:   st.ElapsedSeconds,
		RemainingSeconds: st.RemainingSeconds,
		Interruptions:    c.monitor.Count(),
		LastReason:       c.lastReason,
		LastSuggestion:   c.lastSuggestion,
	}
	if c.current != nil {
		out.SessionID = c.current.ID
	}
	return out
}

func (c *Controller) publish(e event.Event) {
	id := ""
	if c.current != nil {
		id = c.current.ID
	}
	c.publishFor(id, e)
}

func (c *Controller) publishFor(sessionID string, e event.Event) {
	e.UserID = c.userID
	if e.SessionID == "" {
		e.SessionID = sessionID
	}
	if c.observer != nil {
		c.observer(e)
	}
	c.events.Publish(e)
}

// memoryBackend keeps nothing; it backs controllers built without a store.
type memoryBackend struct{}

func (memoryBackend) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (memoryBackend) Put(context.Context, string, []byte) error         { return nil }
