// Package clock implements the session countdown. A Clock owns its ticker
// exclusively; it does not run a goroutine of its own. The owner selects on
// Ticks() and calls Tick() for every value received, which keeps every state
// change on the owner's goroutine.
package clock

import (
	"time"

	"focusift/internal/event"
)

// Period is the fixed tick interval.
const Period = time.Second

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type State struct {
	Running          bool
	StartTime        time.Time
	PlannedSeconds   int
	ElapsedSeconds   int
	RemainingSeconds int
}

type Clock struct {
	newTicker TickerFunc
	now       func() time.Time
	emit      func(event.Event)

	ticker    Ticker
	running   bool
	startTime time.Time
	planned   int
	elapsed   int
}

type Option func(*Clock)

func WithTicker(f TickerFunc) Option {
	return func(c *Clock) { c.newTicker = f }
}

func WithNow(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

// New returns an idle clock. emit receives session_started, tick,
// session_completed and session_stopped events; it may be nil.
func New(emit func(event.Event), opts ...Option) *Clock {
	c := &Clock{
		newTicker: NewRealTicker,
		now:       time.Now,
		emit:      emit,
	}
	for _, o := range opts {
		o(c)
	}
	if c.emit == nil {
		c.emit = func(event.Event) {}
	}
	return c
}

// Start begins a countdown of minutes*60 seconds. It returns false, leaving
// the clock untouched, when minutes is not positive or a countdown is
// already running.
func (c *Clock) Start(minutes int) bool {
	if c.running || minutes <= 0 {
		return false
	}
	c.running = true
	c.startTime = c.now()
	c.planned = minutes * 60
	c.elapsed = 0
	c.ticker = c.newTicker(Period)

	c.emit(c.event(event.EventTypeSessionStarted, event.ReasonNone))
	return true
}

// Ticks returns the channel of the running ticker, or nil while idle.
func (c *Clock) Ticks() <-chan time.Time {
	if !c.running || c.ticker == nil {
		return nil
	}
	return c.ticker.C()
}

// Tick advances the countdown by one second. Ticks arriving while idle are
// discarded. Reaching zero stops the clock and emits session_completed once.
func (c *Clock) Tick() {
	if !c.running {
		return
	}
	c.elapsed++
	c.emit(c.event(event.EventTypeTick, event.ReasonNone))

	if c.elapsed >= c.planned {
		c.halt()
		c.emit(c.event(event.EventTypeSessionCompleted, event.ReasonCompleted))
	}
}

// Stop cancels the ticker and ends the countdown. It is a no-op while idle.
func (c *Clock) Stop(reason event.StopReason) bool {
	if !c.running {
		return false
	}
	c.halt()
	c.emit(c.event(event.EventTypeSessionStopped, reason))
	return true
}

func (c *Clock) Running() bool { return c.running }

func (c *Clock) State() State {
	return State{
		Running:          c.running,
		StartTime:        c.startTime,
		PlannedSeconds:   c.planned,
		ElapsedSeconds:   c.elapsed,
		RemainingSeconds: c.planned - c.elapsed,
	}
}

func (c *Clock) halt() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	c.running = false
}

func (c *Clock) event(t event.EventType, reason event.StopReason) event.Event {
	return event.Event{
		Timestamp:        c.now(),
		Type:             t,
		ElapsedSeconds:   c.elapsed,
		RemainingSeconds: c.planned - c.elapsed,
		Reason:           reason,
	}
}
