// Package collector turns desktop focus into visibility signals for the
// distraction monitor.
package collector

import (
	"context"
	"strings"
	"time"
)

// FocusInfo describes the foreground window.
type FocusInfo struct {
	AppName string
	Title   string
}

// Visibility is one change of the focus target's visibility.
type Visibility struct {
	Timestamp time.Time
	Hidden    bool
	Focus     FocusInfo
}

// Collector defines the interface for desktop visibility sources
type Collector interface {
	Start(ctx context.Context, interval time.Duration, output chan<- Visibility) error
	Stop() error
	// Current samples the foreground window now, classified like Start does.
	Current() (Visibility, error)
}

// Tracker classifies focus samples and reports only changes. The focus
// target is visible while the foreground app is one of the focus apps.
type Tracker struct {
	apps  map[string]struct{}
	known bool
	last  bool
}

func NewTracker(focusApps []string) *Tracker {
	apps := make(map[string]struct{}, len(focusApps))
	for _, a := range focusApps {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			apps[a] = struct{}{}
		}
	}
	return &Tracker{apps: apps}
}

// Hidden reports whether f counts as the focus target being hidden. With no
// focus apps configured nothing is ever hidden.
func (t *Tracker) Hidden(f FocusInfo) bool {
	if len(t.apps) == 0 {
		return false
	}
	_, ok := t.apps[strings.ToLower(strings.TrimSpace(f.AppName))]
	return !ok
}

// Update records a sample and returns the new state and whether it differs
// from the previous one. The first sample only establishes a baseline unless
// it is hidden.
func (t *Tracker) Update(f FocusInfo) (hidden bool, changed bool) {
	hidden = t.Hidden(f)
	if !t.known {
		t.known = true
		t.last = hidden
		return hidden, hidden
	}
	if hidden == t.last {
		return hidden, false
	}
	t.last = hidden
	return hidden, true
}

func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	// Try to truncate at a space if possible near the end
	if idx := strings.LastIndex(s[:maxLen-3], " "); idx > maxLen/2 {
		return s[:idx] + "..."
	}
	return s[:maxLen-3] + "..."
}
