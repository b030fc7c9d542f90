// Package monitor counts visibility losses during a focus session and decides
// when the session must be cut short.
package monitor

// DefaultThreshold is the number of interruptions that ends a session.
const DefaultThreshold = 3

// Source delivers host visibility signals: true means hidden/backgrounded.
type Source interface {
	Subscribe(buf int) (<-chan bool, func())
}

type Verdict int

const (
	// VerdictIgnored: not a visible->hidden transition.
	VerdictIgnored Verdict = iota
	// VerdictCounted: an interruption was recorded, the session continues.
	VerdictCounted
	// VerdictTerminate: the session must stop as interrupted.
	VerdictTerminate
	// VerdictTooManyDistractions: the threshold was reached.
	VerdictTooManyDistractions
)

func (v Verdict) String() string {
	switch v {
	case VerdictCounted:
		return "counted"
	case VerdictTerminate:
		return "terminate"
	case VerdictTooManyDistractions:
		return "too_many_distractions"
	default:
		return "ignored"
	}
}

type Monitor struct {
	threshold         int
	terminateOnHidden bool

	signals <-chan bool
	cancel  func()

	hidden      bool
	count       int
	interrupted bool
}

// New returns a detached monitor. A threshold below 1 falls back to
// DefaultThreshold. With terminateOnHidden every counted interruption ends
// the session immediately.
func New(threshold int, terminateOnHidden bool) *Monitor {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	return &Monitor{threshold: threshold, terminateOnHidden: terminateOnHidden}
}

// Attach subscribes to src and resets the counters for a new session.
func (m *Monitor) Attach(src Source) {
	m.Detach()
	m.hidden = false
	m.count = 0
	m.interrupted = false
	if src != nil {
		m.signals, m.cancel = src.Subscribe(8)
	}
}

// Detach drops the current subscription, if any. Counters are kept so the
// finished session can still be read.
func (m *Monitor) Detach() {
	if m.cancel != nil {
		m.cancel()
	}
	m.signals = nil
	m.cancel = nil
}

// Signals returns the subscribed channel, or nil while detached.
func (m *Monitor) Signals() <-chan bool { return m.signals }

func (m *Monitor) Attached() bool { return m.signals != nil }

// Observe applies one visibility signal.
func (m *Monitor) Observe(hidden bool) Verdict {
	wasHidden := m.hidden
	m.hidden = hidden
	if !hidden || wasHidden {
		return VerdictIgnored
	}

	m.count++
	m.interrupted = true
	switch {
	case m.count >= m.threshold:
		return VerdictTooManyDistractions
	case m.terminateOnHidden:
		return VerdictTerminate
	default:
		return VerdictCounted
	}
}

func (m *Monitor) Count() int        { return m.count }
func (m *Monitor) Interrupted() bool { return m.interrupted }
func (m *Monitor) Threshold() int    { return m.threshold }
