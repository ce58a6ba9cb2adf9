package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver registered as "sqlite"

	"github.com/zhouzirui/voice-agent/backend/internal/model/chat"
)

// SQLiteStore persists sessions as JSON documents in SQLite so calls survive
// a restart. All methods are safe for concurrent use.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string, ttl time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	// SQLite 只允许单写，连接池收敛到 1 以避免 database is locked。
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, ttl: ttl, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate session database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS call_sessions (
		session_key TEXT PRIMARY KEY,
		payload     TEXT NOT NULL,
		version     INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_call_sessions_updated_at ON call_sessions (updated_at);
	`
	_, err := s.db.Exec(ddl)
	return err
}

// Load decodes the stored session for key.
func (s *SQLiteStore) Load(ctx context.Context, key string) (*chat.Session, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM call_sessions WHERE session_key = ?`, key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", key, err)
	}

	var session chat.Session
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", key, err)
	}
	return &session, nil
}

// Save inserts a new session (Version 0) or updates an existing one whose
// stored version still matches.
func (s *SQLiteStore) Save(ctx context.Context, session *chat.Session) error {
	next := *session
	next.Version = session.Version + 1
	payload, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.Key, err)
	}
	updatedAt := session.UpdatedAt.UnixNano()

	var res sql.Result
	if session.Version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO call_sessions (session_key, payload, version, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (session_key) DO NOTHING`,
			session.Key, string(payload), next.Version, updatedAt,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE call_sessions SET payload = ?, version = ?, updated_at = ?
			 WHERE session_key = ? AND version = ?`,
			string(payload), next.Version, updatedAt, session.Key, session.Version,
		)
	}
	if err != nil {
		return fmt.Errorf("save session %s: %w", session.Key, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save session %s: %w", session.Key, err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	session.Version = next.Version
	return nil
}

// Delete removes the session; missing keys are ignored.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM call_sessions WHERE session_key = ?`, key); err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	return nil
}

// Purge drops sessions whose last update is older than the TTL.
func (s *SQLiteStore) Purge(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}

	cutoff := s.now().Add(-s.ttl).UnixNano()
	res, err := s.db.ExecContext(ctx, `DELETE FROM call_sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return int(n), nil
}
