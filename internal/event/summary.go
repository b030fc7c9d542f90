package event

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSummary is returned by SessionSummary.Validate.
var ErrInvalidSummary = errors.New("invalid session summary")

// SessionSummary is the request handed to the persistence collaborator when
// a session ends. Optional fields are pointers so that "absent" and "zero"
// stay distinguishable on the wire.
type SessionSummary struct {
	UserID         string    `json:"userId"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
	WasInterrupted *bool     `json:"wasInterrupted,omitempty"`
	TabSwitchCount *int      `json:"tabSwitchCount,omitempty"`
	Suggestion     *string   `json:"suggestion,omitempty"`
}

// SessionRecord is a stored session summary with defaults applied.
type SessionRecord struct {
	ID             int64     `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"userId"`
	StartTime      time.Time `db:"start_time" json:"startTime"`
	EndTime        time.Time `db:"end_time" json:"endTime"`
	WasInterrupted bool      `db:"was_interrupted" json:"wasInterrupted"`
	TabSwitchCount int       `db:"tab_switch_count" json:"tabSwitchCount"`
	Suggestion     string    `db:"suggestion" json:"suggestion,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

func (r SessionRecord) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// SummaryFromSession builds the persistence request for a finished session.
func SummaryFromSession(s Session, suggestion Suggestion) SessionSummary {
	interrupted := s.WasInterrupted
	count := s.InterruptionCount
	sum := SessionSummary{
		UserID:         s.UserID,
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
		WasInterrupted: &interrupted,
		TabSwitchCount: &count,
	}
	if top := suggestion.Top(); top != "" {
		sum.Suggestion = &top
	}
	return sum
}

func (s SessionSummary) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidSummary)
	}
	if s.StartTime.IsZero() {
		return fmt.Errorf("%w: startTime is required", ErrInvalidSummary)
	}
	if s.EndTime.IsZero() {
		return fmt.Errorf("%w: endTime is required", ErrInvalidSummary)
	}
	if s.EndTime.Before(s.StartTime) {
		return fmt.Errorf("%w: endTime precedes startTime", ErrInvalidSummary)
	}
	if s.TabSwitchCount != nil && *s.TabSwitchCount < 0 {
		return fmt.Errorf("%w: tabSwitchCount must not be negative", ErrInvalidSummary)
	}
	return nil
}

// Record applies the defaulting rules: absent wasInterrupted is false,
// absent tabSwitchCount is 0, absent suggestion is empty.
func (s SessionSummary) Record() SessionRecord {
	rec := SessionRecord{
		UserID:    s.UserID,
		StartTime: s.StartTime.UTC(),
		EndTime:   s.EndTime.UTC(),
	}
	if s.WasInterrupted != nil {
		rec.WasInterrupted = *s.WasInterrupted
	}
	if s.TabSwitchCount != nil {
		rec.TabSwitchCount = *s.TabSwitchCount
	}
	if s.Suggestion != nil {
		rec.Suggestion = *s.Suggestion
	}
	return rec
}
