package storage

import (
	"context"
	"time"

	"focusift/internal/event"
)

type Storage interface {
	Init(ctx context.Context) error
	Ping(ctx context.Context) error

	// Session summaries handed over by the persistence collaborator.
	SaveSession(ctx context.Context, rec event.SessionRecord) (event.SessionRecord, error)
	GetSessions(ctx context.Context, userID string, start, end time.Time) ([]event.SessionRecord, error)

	// Activity log.
	SaveEvent(ctx context.Context, e event.Event) (int64, error)
	GetEvents(ctx context.Context, start, end time.Time, eventTypes ...event.EventType) ([]event.Event, error)

	// Whole-value key-value state, used by the feedback store.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error

	Close() error
}
