package chat_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	modelchat "github.com/zhouzirui/voice-agent/backend/internal/model/chat"
	"github.com/zhouzirui/voice-agent/backend/internal/model/order"
	chat "github.com/zhouzirui/voice-agent/backend/internal/service/chat"
)

type countingFetcher struct {
	mu     sync.Mutex
	calls  int
	phones []string
	err    error
}

func (f *countingFetcher) FetchOrderSummary(_ context.Context, phone string) (*order.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.phones = append(f.phones, phone)
	if f.err != nil {
		return nil, f.err
	}
	return &order.Summary{
		CustomerName: "Asha",
		TotalOrders:  1,
		Records:      []order.Record{{OrderNumber: "O-1", Product: "Widget", Status: "Shipped"}},
	}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newService(fetcher chat.OrderFetcher, c *clock) *chat.Service {
	return chat.NewService(
		chat.NewMemoryStore(24*time.Hour),
		fetcher,
		chat.WithTTL(24*time.Hour),
		chat.WithHistoryLimit(10),
		chat.WithClock(c.Now),
		chat.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func TestBeginNewSessionLoadsOrdersOnce(t *testing.T) {
	ctx := context.Background()
	fetcher := &countingFetcher{}
	svc := newService(fetcher, &clock{now: time.Now().UTC()})

	turn, err := svc.Begin(ctx, "CA1", "+15550001111")
	if err != nil {
		t.Fatalf("Begin err: %v", err)
	}
	if !turn.New {
		t.Fatal("expected a new session")
	}
	if turn.Session.CustomerName != "Asha" || len(turn.Session.Orders) != 1 {
		t.Fatalf("orders not cached: %+v", turn.Session)
	}
	turn.Append(modelchat.NewMessage(modelchat.RoleAssistant, "greeting"))
	if err := turn.Commit(ctx); err != nil {
		t.Fatalf("Commit err: %v", err)
	}
	turn.Release()

	again, err := svc.Begin(ctx, "CA1", "+15550001111")
	if err != nil {
		t.Fatalf("Begin err: %v", err)
	}
	defer again.Release()

	if again.New {
		t.Fatal("expected existing session")
	}
	if fetcher.calls != 1 {
		t.Fatalf("orders fetched %d times, want 1", fetcher.calls)
	}
	if len(again.Session.Orders) != 1 {
		t.Fatalf("cached orders lost: %+v", again.Session)
	}
}

func TestBeginOrderFetchFailureIsNotRetried(t *testing.T) {
	ctx := context.Background()
	fetcher := &countingFetcher{err: errors.New("crm down")}
	svc := newService(fetcher, &clock{now: time.Now().UTC()})

	turn, err := svc.Begin(ctx, "CA1", "+1555")
	if err != nil {
		t.Fatalf("Begin err: %v", err)
	}
	if len(turn.Session.Orders) != 0 || !turn.Session.OrdersLoaded {
		t.Fatalf("unexpected session after failed fetch: %+v", turn.Session)
	}
	turn.Append(modelchat.NewMessage(modelchat.RoleAssistant, "hi"))
	if err := turn.Commit(ctx); err != nil {
		t.Fatalf("Commit err: %v", err)
	}
	turn.Release()

	next, _ := svc.Begin(ctx, "CA1", "+1555")
	next.Release()
	if fetcher.calls != 1 {
		t.Fatalf("expected a single fetch attempt, got %d", fetcher.calls)
	}
}

func TestBeginWithoutFetcherOrCaller(t *testing.T) {
	svc := newService(nil, &clock{now: time.Now()})

	turn, err := svc.Begin(context.Background(), "CA1", "")
	if err != nil {
		t.Fatalf("Begin err: %v", err)
	}
	defer turn.Release()
	if !turn.Session.OrdersLoaded || len(turn.Session.Orders) != 0 {
		t.Fatalf("unexpected session: %+v", turn.Session)
	}

	if _, err := svc.Begin(context.Background(), " ", "x"); err == nil {
		t.Fatal("expected error for blank key")
	}
}

func TestExpiredSessionStartsOver(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	fetcher := &countingFetcher{}
	svc := newService(fetcher, c)

	turn, _ := svc.Begin(ctx, "CA1", "+1555")
	turn.Append(modelchat.NewMessage(modelchat.RoleAssistant, "hi"))
	if err := turn.Commit(ctx); err != nil {
		t.Fatalf("Commit err: %v", err)
	}
	turn.Release()

	c.Advance(25 * time.Hour)

	if _, err := svc.Get(ctx, "CA1"); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected expired session to be hidden, got %v", err)
	}

	fresh, err := svc.Begin(ctx, "CA1", "+1555")
	if err != nil {
		t.Fatalf("Begin err: %v", err)
	}
	defer fresh.Release()
	if !fresh.New || len(fresh.Session.Messages) != 0 {
		t.Fatalf("expected fresh session, got %+v", fresh.Session)
	}
	if fetcher.calls != 2 {
		t.Fatalf("expected orders refetched for the new session, got %d calls", fetcher.calls)
	}
	fresh.Append(modelchat.NewMessage(modelchat.RoleAssistant, "hello again"))
	if err := fresh.Commit(ctx); err != nil {
		t.Fatalf("Commit after expiry err: %v", err)
	}
}

func TestCommitTruncatesHistory(t *testing.T) {
	ctx := context.Background()
	svc := newService(nil, &clock{now: time.Now()})

	turn, _ := svc.Begin(ctx, "CA1", "")
	for i := 0; i < 11; i++ {
		turn.Append(modelchat.NewMessage(modelchat.RoleUser, "msg"))
	}
	if err := turn.Commit(ctx); err != nil {
		t.Fatalf("Commit err: %v", err)
	}
	turn.Release()

	session, err := svc.Get(ctx, "CA1")
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if len(session.Messages) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(session.Messages))
	}
}

func TestResetDeletesSession(t *testing.T) {
	ctx := context.Background()
	svc := newService(nil, &clock{now: time.Now()})

	turn, _ := svc.Begin(ctx, "CA1", "")
	turn.Append(modelchat.NewMessage(modelchat.RoleAssistant, "hi"))
	_ = turn.Commit(ctx)
	turn.Release()

	if err := svc.Reset(ctx, "CA1"); err != nil {
		t.Fatalf("Reset err: %v", err)
	}
	if _, err := svc.Get(ctx, "CA1"); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestConcurrentTurnsSerialise(t *testing.T) {
	ctx := context.Background()
	svc := newService(nil, &clock{now: time.Now()})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			turn, err := svc.Begin(ctx, "CA1", "")
			if err != nil {
				t.Errorf("Begin err: %v", err)
				return
			}
			defer turn.Release()
			turn.Append(modelchat.NewMessage(modelchat.RoleUser, "hello"))
			if err := turn.Commit(ctx); err != nil {
				t.Errorf("Commit err: %v", err)
			}
		}()
	}
	wg.Wait()

	session, err := svc.Get(ctx, "CA1")
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if len(session.Messages) != 5 || session.Version != 5 {
		t.Fatalf("lost updates: messages=%d version=%d", len(session.Messages), session.Version)
	}
}

func TestJanitorPurges(t *testing.T) {
	store := chat.NewMemoryStore(time.Nanosecond)
	svc := chat.NewService(store, nil, chat.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	ctx, cancel := context.WithCancel(context.Background())
	turn, _ := svc.Begin(ctx, "CA1", "")
	turn.Append(modelchat.NewMessage(modelchat.RoleAssistant, "hi"))
	_ = turn.Commit(ctx)
	turn.Release()

	var wg sync.WaitGroup
	svc.RunJanitor(ctx, 5*time.Millisecond, &wg)

	deadline := time.Now().Add(time.Second)
	for store.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	wg.Wait()

	if store.Len() != 0 {
		t.Fatalf("expected janitor to purge, %d sessions left", store.Len())
	}
}
