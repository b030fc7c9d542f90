package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"focusift/internal/event"
	"focusift/internal/storage"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{dbPath: dbPath, logger: logger}
}

var _ storage.Storage = (*SQLiteStore)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	was_interrupted INTEGER NOT NULL DEFAULT 0,
	tab_switch_count INTEGER NOT NULL DEFAULT 0,
	suggestion TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_start ON sessions (user_id, start_time);

CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	type TEXT NOT NULL,
	user_id TEXT,
	session_id TEXT,
	elapsed_seconds INTEGER,
	remaining_seconds INTEGER,
	interruptions INTEGER,
	reason TEXT,
	tag TEXT,
	notes TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events (timestamp);
CREATE INDEX IF NOT EXISTS idx_events_type ON events (type);

CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	updated_at DATETIME NOT NULL
);
`

func (s *SQLiteStore) Init(ctx context.Context) error {
	dir := filepath.Dir(s.dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create db directory %s: %w", dir, err)
	}

	s.logger.Info("initializing sqlite database", "path", s.dbPath)
	db, err := sql.Open("sqlite3", s.dbPath+"?_journal=WAL&_timeout=5000&_fk=true")
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	s.db = db

	// single writer
	s.db.SetMaxOpenConns(1)
	s.db.SetMaxIdleConns(1)
	s.db.SetConnMaxLifetime(time.Minute * 5)

	if err := s.db.PingContext(ctx); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("database not initialized")
	}
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) SaveSession(ctx context.Context, rec event.SessionRecord) (event.SessionRecord, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO sessions (user_id, start_time, end_time, was_interrupted, tab_switch_count, suggestion, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, rec.UserID, rec.StartTime.UTC(), rec.EndTime.UTC(),
		rec.WasInterrupted, rec.TabSwitchCount, rec.Suggestion, rec.CreatedAt.UTC())
	if err != nil {
		return rec, fmt.Errorf("failed to insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return rec, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	rec.ID = id
	return rec, nil
}

// GetSessions returns the sessions of userID that started within
// [start, end]. An empty userID matches every user.
func (s *SQLiteStore) GetSessions(ctx context.Context, userID string, start, end time.Time) ([]event.SessionRecord, error) {
	query := `SELECT id, user_id, start_time, end_time, was_interrupted, tab_switch_count, suggestion, created_at
	          FROM sessions
	          WHERE start_time >= ? AND start_time <= ?`
	args := []interface{}{start.UTC(), end.UTC()}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY start_time ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []event.SessionRecord
	for rows.Next() {
		var r event.SessionRecord
		var suggestion sql.NullString
		if err := rows.Scan(&r.ID, &r.UserID, &r.StartTime, &r.EndTime, &r.WasInterrupted,
			&r.TabSwitchCount, &suggestion, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		r.Suggestion = suggestion.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) SaveEvent(ctx context.Context, e event.Event) (int64, error) {
	query := `INSERT INTO events (timestamp, type, user_id, session_id, elapsed_seconds, remaining_seconds, interruptions, reason, tag, notes)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, e.Timestamp.UTC(), e.Type, e.UserID, e.SessionID,
		e.ElapsedSeconds, e.RemainingSeconds, e.Interruptions, e.Reason, e.Tag, e.Notes)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) GetEvents(ctx context.Context, start, end time.Time, eventTypes ...event.EventType) ([]event.Event, error) {
	query := `SELECT id, timestamp, type, user_id, session_id, elapsed_seconds, remaining_seconds, interruptions, reason, tag, notes
	          FROM events
	          WHERE timestamp >= ? AND timestamp <= ?`
	args := []interface{}{start.UTC(), end.UTC()}

	if len(eventTypes) > 0 {
		placeholders := strings.Repeat("?,", len(eventTypes)-1) + "?"
		query += fmt.Sprintf(" AND type IN (%s)", placeholders)
		for _, et := range eventTypes {
			args = append(args, et)
		}
	}

	query += " ORDER BY timestamp ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var e event.Event
		var userID, sessionID, reason, tag, notes sql.NullString
		var elapsed, remaining, interruptions sql.NullInt64

		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Type, &userID, &sessionID,
			&elapsed, &remaining, &interruptions, &reason, &tag, &notes); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.UserID = userID.String
		e.SessionID = sessionID.String
		e.ElapsedSeconds = int(elapsed.Int64)
		e.RemainingSeconds = int(remaining.Int64)
		e.Interruptions = int(interruptions.Int64)
		e.Reason = event.StopReason(reason.String)
		e.Tag = tag.String
		e.Notes = notes.String
		events = append(events, e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		s.logger.Info("closing database connection")
		return s.db.Close()
	}
	return nil
}
