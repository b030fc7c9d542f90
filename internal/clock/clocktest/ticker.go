// Package clocktest provides a manually driven ticker for deterministic
// timer tests.
package clocktest

import (
	"sync"
	"time"

	"focusift/internal/clock"
)

type Ticker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *Ticker) C() <-chan time.Time { return t.ch }

func (t *Ticker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *Ticker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Fire delivers one tick. The channel is unbuffered, so Fire returns true
// only once the owner has received the tick. It gives up after wait.
func (t *Ticker) Fire(wait time.Duration) bool {
	select {
	case t.ch <- time.Now():
		return true
	case <-time.After(wait):
		return false
	}
}

// Factory hands out manual tickers and remembers them.
type Factory struct {
	mu      sync.Mutex
	tickers []*Ticker
}

func (f *Factory) New(time.Duration) clock.Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &Ticker{ch: make(chan time.Time)}
	f.tickers = append(f.tickers, t)
	return t
}

// Last returns the most recently created ticker, or nil.
func (f *Factory) Last() *Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tickers) == 0 {
		return nil
	}
	return f.tickers[len(f.tickers)-1]
}

func (f *Factory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}
