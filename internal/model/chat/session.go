package chat

import (
	"time"

	"github.com/zhouzirui/voice-agent/backend/internal/model/order"
)

// DefaultHistoryLimit bounds how many messages a session keeps.
const DefaultHistoryLimit = 10

// Session captures the persisted state of one ongoing call.
type Session struct {
	Key          string         `json:"key"`
	CustomerName string         `json:"customerName,omitempty"`
	Orders       []order.Record `json:"orders,omitempty"`
	OrdersLoaded bool           `json:"ordersLoaded"`
	Messages     []Message      `json:"messages"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	// Version increases on every save and backs optimistic concurrency checks.
	Version int64 `json:"version"`
}

// NewSession creates an empty session for key.
func NewSession(key string, now time.Time) *Session {
	return &Session{
		Key:       key,
		Messages:  make([]Message, 0, DefaultHistoryLimit),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsNew reports whether the session has no conversation yet.
func (s *Session) IsNew() bool {
	return s == nil || len(s.Messages) == 0
}

// Append adds messages and evicts the oldest ones beyond limit.
func (s *Session) Append(limit int, messages ...Message) {
	s.Messages = append(s.Messages, messages...)
	s.Truncate(limit)
}

// Truncate keeps only the most recent limit messages.
func (s *Session) Truncate(limit int) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if len(s.Messages) <= limit {
		return
	}
	kept := make([]Message, limit)
	copy(kept, s.Messages[len(s.Messages)-limit:])
	s.Messages = kept
}

// Expired reports whether the session was last touched more than ttl ago.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(s.UpdatedAt) > ttl
}

// Clone returns a deep copy so stores never share slices with callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	c.Orders = append([]order.Record(nil), s.Orders...)
	return &c
}
