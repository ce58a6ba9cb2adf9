package chat

import (
	"context"
	"errors"

	"github.com/zhouzirui/voice-agent/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrVersionConflict is returned by Save when the stored session changed
	// since it was loaded.
	ErrVersionConflict = errors.New("session version conflict")
)

// Store persists call sessions by key. Save increments Version on success and
// rejects writes based on a stale Version.
type Store interface {
	Load(ctx context.Context, key string) (*chat.Session, error)
	Save(ctx context.Context, session *chat.Session) error
	Delete(ctx context.Context, key string) error
	// Purge removes sessions idle for longer than the store's TTL and reports
	// how many were removed.
	Purge(ctx context.Context) (int, error)
}
