// Package feedback keeps per-technique like/dislike counts. The whole mapping
// is stored as JSON text under a single key and is rewritten on every vote.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// StorageKey is the key the mapping is stored under.
const StorageKey = "focusift.technique_feedback"

// KeyFor scopes the storage key to one user.
func KeyFor(userID string) string {
	if userID == "" {
		return StorageKey
	}
	return StorageKey + ":" + userID
}

type Entry struct {
	Likes    int `json:"likes"`
	Dislikes int `json:"dislikes"`
}

// Score is likes minus dislikes.
func (e Entry) Score() int { return e.Likes - e.Dislikes }

// Snapshot maps technique name to its counts.
type Snapshot map[string]Entry

// Get returns the entry for name, or a zero entry when none was recorded.
func (s Snapshot) Get(name string) Entry { return s[name] }

func (s Snapshot) Score(name string) int { return s[name].Score() }

// Backend is a whole-value key-value store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

var ErrEmptyTechnique = errors.New("technique name is required")

type Store struct {
	mu      sync.Mutex
	backend Backend
	key     string
	logger  *slog.Logger
}

func NewStore(backend Backend, key string, logger *slog.Logger) *Store {
	if key == "" {
		key = StorageKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, key: key, logger: logger}
}

// Load returns the current mapping. Missing, unreadable or corrupt data
// yields an empty mapping.
func (s *Store) Load(ctx context.Context) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Record increments likes or dislikes for name and writes the full mapping
// back immediately.
func (s *Store) Record(ctx context.Context, name string, liked bool) (Entry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Entry{}, ErrEmptyTechnique
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.load(ctx)
	e := snap[name]
	if liked {
		e.Likes++
	} else {
		e.Dislikes++
	}
	snap[name] = e

	data, err := json.Marshal(snap)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode feedback: %w", err)
	}
	if err := s.backend.Put(ctx, s.key, data); err != nil {
		return Entry{}, fmt.Errorf("failed to persist feedback: %w", err)
	}
	return e, nil
}

func (s *Store) load(ctx context.Context) Snapshot {
	data, ok, err := s.backend.Get(ctx, s.key)
	if err != nil {
		s.logger.Warn("feedback unreadable, starting empty", "key", s.key, "error", err)
		return Snapshot{}
	}
	if !ok || len(data) == 0 {
		return Snapshot{}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil || snap == nil {
		s.logger.Warn("feedback corrupt, starting empty", "key", s.key, "error", err)
		return Snapshot{}
	}
	for name, e := range snap {
		if e.Likes < 0 || e.Dislikes < 0 {
			s.logger.Warn("feedback has negative counts, starting empty", "key", s.key, "technique", name)
			return Snapshot{}
		}
	}
	return snap
}
