package event

import "time"

type EventType string

const (
	EventTypeSessionStarted   EventType = "session_started"
	EventTypeTick             EventType = "tick"
	EventTypeSessionCompleted EventType = "session_completed"
	EventTypeSessionStopped   EventType = "session_stopped"
	EventTypeInterruption     EventType = "interruption"
	EventTypeSuggestion       EventType = "suggestion"
	EventTypeFeedback         EventType = "feedback"
	EventTypeNotice           EventType = "notice"
	EventTypeAppStart         EventType = "app_start"
	EventTypeAppStop          EventType = "app_stop"
)

// StopReason tells the suggestion step how a session ended.
type StopReason string

const (
	ReasonNone          StopReason = ""
	ReasonCompleted     StopReason = "completed"
	ReasonUser          StopReason = "user"
	ReasonInterrupted   StopReason = "interrupted"
	ReasonTooDistracted StopReason = "too_many_distractions"
)

// Forced reports whether the session was ended by the distraction monitor.
func (r StopReason) Forced() bool {
	return r == ReasonInterrupted || r == ReasonTooDistracted
}

// Event is both the live stream record pushed to subscribers and the row
// stored in the activity log.
type Event struct {
	ID               int64       `db:"id" json:"id,omitempty"`
	Timestamp        time.Time   `db:"timestamp" json:"timestamp"`
	Type             EventType   `db:"type" json:"type"`
	UserID           string      `db:"user_id" json:"userId,omitempty"`
	SessionID        string      `db:"session_id" json:"sessionId,omitempty"`
	ElapsedSeconds   int         `db:"elapsed_seconds" json:"elapsedSeconds"`
	RemainingSeconds int         `db:"remaining_seconds" json:"remainingSeconds"`
	Interruptions    int         `db:"interruptions" json:"interruptions"`
	Reason           StopReason  `db:"reason" json:"reason,omitempty"`
	Tag              string      `db:"tag" json:"tag,omitempty"`     // technique, category or level
	Notes            string      `db:"notes" json:"notes,omitempty"` // human readable message
	Suggestion       *Suggestion `db:"-" json:"suggestion,omitempty"`
}

// Session is one timed focus interval. It is mutated only by the clock and
// the distraction monitor while active and frozen once it ends.
type Session struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	StartTime         time.Time  `json:"startTime"`
	EndTime           time.Time  `json:"endTime,omitempty"`
	PlannedSeconds    int        `json:"plannedSeconds"`
	ElapsedSeconds    int        `json:"elapsedSeconds"`
	InterruptionCount int        `json:"interruptionCount"`
	WasInterrupted    bool       `json:"wasInterrupted"`
	Reason            StopReason `json:"reason,omitempty"`
}

func (s Session) PlannedMinutes() int { return s.PlannedSeconds / 60 }

func (s Session) Elapsed() time.Duration {
	return time.Duration(s.ElapsedSeconds) * time.Second
}

// Suggestion is the output of the suggestion engine for one finished session.
type Suggestion struct {
	Policy     string   `json:"policy"`
	Bucket     string   `json:"bucket"` // category or level that was matched
	Techniques []string `json:"techniques"`
	None       bool     `json:"none"`
}

// Top returns the first suggested technique or "" when there is none.
func (s Suggestion) Top() string {
	if s.None || len(s.Techniques) == 0 {
		return ""
	}
	return s.Techniques[0]
}

// Status is the externally observable timer state.
type Status struct {
	UserID           string      `json:"userId"`
	Running          bool        `json:"running"`
	SessionID        string      `json:"sessionId,omitempty"`
	StartTime        time.Time   `json:"startTime,omitempty"`
	PlannedSeconds   int         `json:"plannedSeconds"`
	ElapsedSeconds   int         `json:"elapsedSeconds"`
	RemainingSeconds int         `json:"remainingSeconds"`
	Interruptions    int         `json:"interruptions"`
	LastReason       StopReason  `json:"lastReason,omitempty"`
	LastSuggestion   *Suggestion `json:"lastSuggestion,omitempty"`
}

// Identity is the signed-in user as supplied by the identity provider.
type Identity struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}
