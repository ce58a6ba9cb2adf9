// Package chat manages call sessions: loading, locking, order caching and
// persistence of conversation history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/voice-agent/backend/internal/model/chat"
	"github.com/zhouzirui/voice-agent/backend/internal/model/order"
)

// OrderFetcher loads a caller's orders from the CRM.
type OrderFetcher interface {
	FetchOrderSummary(ctx context.Context, phoneNumber string) (*order.Summary, error)
}

// Service serialises turns per session key on top of a Store.
type Service struct {
	store        Store
	orders       OrderFetcher
	ttl          time.Duration
	historyLimit int
	logger       *slog.Logger
	now          func() time.Time
	locks        keyLocks
}

// Option customises a Service.
type Option func(*Service)

// WithTTL sets how long an idle session stays valid.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// WithHistoryLimit sets how many messages a session keeps.
func WithHistoryLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the session store with an optional order fetcher; a nil
// fetcher leaves every session without cached orders.
func NewService(store Store, orders OrderFetcher, opts ...Option) *Service {
	s := &Service{
		store:        store,
		orders:       orders,
		ttl:          24 * time.Hour,
		historyLimit: chat.DefaultHistoryLimit,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Turn is an exclusive handle on one session for the duration of a request.
// Callers must Release it, typically with defer.
type Turn struct {
	Session *chat.Session
	// New is true when the session had no prior conversation.
	New bool

	svc    *Service
	unlock func()
}

// Begin locks key, loads (or creates) its session and caches the caller's
// orders the first time the session is seen.
func (s *Service) Begin(ctx context.Context, key, caller string) (*Turn, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("session key is required")
	}

	unlock, err := s.locks.lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lock session %s: %w", key, err)
	}

	session, err := s.load(ctx, key)
	if err != nil {
		unlock()
		return nil, err
	}

	turn := &Turn{
		Session: session,
		New:     session.IsNew(),
		svc:     s,
		unlock:  unlock,
	}
	if !session.OrdersLoaded {
		s.loadOrders(ctx, session, caller)
	}
	return turn, nil
}

func (s *Service) load(ctx context.Context, key string) (*chat.Session, error) {
	now := s.now().UTC()

	session, err := s.store.Load(ctx, key)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return chat.NewSession(key, now), nil
	case err != nil:
		return nil, fmt.Errorf("load session %s: %w", key, err)
	}

	if session.Expired(now, s.ttl) {
		s.logger.Info("session expired, starting over", "session", key, "updated_at", session.UpdatedAt)
		if err := s.store.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("drop expired session %s: %w", key, err)
		}
		return chat.NewSession(key, now), nil
	}
	return session, nil
}

// loadOrders fetches orders at most once per session. Failures are logged
// and the session continues without cached orders.
func (s *Service) loadOrders(ctx context.Context, session *chat.Session, caller string) {
	session.OrdersLoaded = true

	caller = strings.TrimSpace(caller)
	if s.orders == nil || caller == "" {
		return
	}

	summary, err := s.orders.FetchOrderSummary(ctx, caller)
	if err != nil {
		s.logger.Warn("fetch order summary failed", "session", session.Key, "error", err)
		return
	}
	if summary == nil {
		return
	}
	session.CustomerName = summary.CustomerName
	session.Orders = append([]order.Record(nil), summary.Records...)
	s.logger.Info("orders cached for session", "session", session.Key, "orders", len(session.Orders))
}

// Append adds messages to the session, evicting the oldest beyond the limit.
func (t *Turn) Append(messages ...chat.Message) {
	t.Session.Append(t.svc.historyLimit, messages...)
}

// Commit persists the session.
func (t *Turn) Commit(ctx context.Context) error {
	t.Session.Truncate(t.svc.historyLimit)
	t.Session.UpdatedAt = t.svc.now().UTC()
	if err := t.svc.store.Save(ctx, t.Session); err != nil {
		return fmt.Errorf("save session %s: %w", t.Session.Key, err)
	}
	return nil
}

// Release unlocks the session key. It is safe to call more than once.
func (t *Turn) Release() {
	if t != nil && t.unlock != nil {
		t.unlock()
	}
}

// Get returns a snapshot of the session without taking the turn lock.
func (s *Service) Get(ctx context.Context, key string) (*chat.Session, error) {
	session, err := s.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if session.Expired(s.now(), s.ttl) {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Reset deletes the session so the next request starts a fresh conversation.
func (s *Service) Reset(ctx context.Context, key string) error {
	unlock, err := s.locks.lock(ctx, key)
	if err != nil {
		return fmt.Errorf("lock session %s: %w", key, err)
	}
	defer unlock()
	return s.store.Delete(ctx, key)
}

// Purge removes expired sessions from the store.
func (s *Service) Purge(ctx context.Context) (int, error) {
	return s.store.Purge(ctx)
}

// RunJanitor purges expired sessions every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	if wg != nil {
		wg.Add(1)
	}
	go func() {
		if wg != nil {
			defer wg.Done()
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.Purge(ctx)
				if err != nil {
					s.logger.Warn("session purge failed", "error", err)
					continue
				}
				if n > 0 {
					s.logger.Info("purged expired sessions", "count", n)
				}
			}
		}
	}()
}
