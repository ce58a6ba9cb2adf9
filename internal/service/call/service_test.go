package call

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zhouzirui/voice-agent/backend/internal/metrics"
	"github.com/zhouzirui/voice-agent/backend/internal/model/chat"
	"github.com/zhouzirui/voice-agent/backend/internal/model/order"
	speechmodel "github.com/zhouzirui/voice-agent/backend/internal/model/speech"
	"github.com/zhouzirui/voice-agent/backend/internal/service/agent"
	chatservice "github.com/zhouzirui/voice-agent/backend/internal/service/chat"
)

type fakeOrders struct{ calls int }

func (f *fakeOrders) FetchOrderSummary(context.Context, string) (*order.Summary, error) {
	f.calls++
	return &order.Summary{
		CustomerName: "Asha",
		TotalOrders:  2,
		Records: []order.Record{
			{OrderNumber: "O-1", Product: "Widget", Quantity: 2, Status: "Shipped", OrderDate: "Jan 1, 2024"},
			{OrderNumber: "O-2", Product: "Gadget", Quantity: 1, Status: "Processing", OrderDate: "Mar 15, 2024"},
		},
	}, nil
}

type fakePrompter struct{}

func (fakePrompter) Greeting(name string) string {
	if name == "" {
		name = "there"
	}
	return "Hi " + name
}

func (fakePrompter) BuildConversation(_ context.Context, session *chat.Session) ([]*schema.Message, error) {
	out := []*schema.Message{schema.SystemMessage("system")}
	return append(out, chat.SchemaMessages(session.Messages)...), nil
}

type fakeAgent struct {
	mu      sync.Mutex
	answer  string
	err     error
	delay   time.Duration
	history [][]*schema.Message
}

func (a *fakeAgent) Run(ctx context.Context, conv []*schema.Message) (*agent.Result, error) {
	a.mu.Lock()
	a.history = append(a.history, conv)
	a.mu.Unlock()

	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, &agent.ModelInvocationError{Err: ctx.Err()}
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	return &agent.Result{Answer: a.answer}, nil
}

type fixture struct {
	svc      *Service
	sessions *chatservice.Service
	orders   *fakeOrders
	agent    *fakeAgent
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, ag *fakeAgent, opts ...Option) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orders := &fakeOrders{}
	sessions := chatservice.NewService(chatservice.NewMemoryStore(time.Hour), orders, chatservice.WithLogger(logger))
	m := metrics.New("test")

	opts = append([]Option{WithLogger(logger), WithMetrics(m)}, opts...)
	var a Agent
	if ag != nil {
		a = ag
	}
	return &fixture{
		svc:      NewService(sessions, fakePrompter{}, a, opts...),
		sessions: sessions,
		orders:   orders,
		agent:    ag,
		metrics:  m,
	}
}

func webhook(speech string) speechmodel.WebhookRequest {
	return speechmodel.WebhookRequest{From: "+15550001111", CallSid: "CA1", SpeechResult: speech}
}

func TestGreetNewAndExistingSession(t *testing.T) {
	f := newFixture(t, &fakeAgent{answer: "ok"})
	ctx := context.Background()

	reply, err := f.svc.Greet(ctx, webhook(""))
	if err != nil {
		t.Fatalf("Greet err: %v", err)
	}
	if reply.Text != "Hi Asha" || reply.SessionKey != "CA1" || reply.Path != metrics.PathGreeting {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	again, err := f.svc.Greet(ctx, webhook(""))
	if err != nil {
		t.Fatalf("Greet err: %v", err)
	}
	if again.Text != "" || again.Path != metrics.PathRearm {
		t.Fatalf("expected silent re-arm, got %+v", again)
	}

	session, _ := f.sessions.Get(ctx, "CA1")
	if len(session.Messages) != 1 || session.Messages[0].Role != chat.RoleAssistant {
		t.Fatalf("expected single greeting in history, got %+v", session.Messages)
	}
	if f.orders.calls != 1 {
		t.Fatalf("orders fetched %d times, want 1", f.orders.calls)
	}
	if got := testutil.ToFloat64(f.metrics.SessionsStarted); got != 1 {
		t.Fatalf("sessions started = %v, want 1", got)
	}
}

func TestRespondOnNewSessionGreets(t *testing.T) {
	f := newFixture(t, &fakeAgent{answer: "ok"})

	reply, err := f.svc.Respond(context.Background(), webhook("what are my orders"))
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}
	if reply.Text != "Hi Asha" || reply.Path != metrics.PathGreeting {
		t.Fatalf("expected greeting, got %+v", reply)
	}
	if len(f.agent.history) != 0 {
		t.Fatal("agent should not run for a new session")
	}
}

func TestRespondShortcut(t *testing.T) {
	f := newFixture(t, &fakeAgent{answer: "model"})
	ctx := context.Background()
	_, _ = f.svc.Greet(ctx, webhook(""))

	reply, err := f.svc.Respond(ctx, webhook("What is my recent order?"))
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}
	want := "Your most recent order is: Gadget, Quantity: 1, Status: Processing, Ordered on: Mar 15, 2024."
	if reply.Text != want || reply.Path != metrics.PathShortcut {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if len(f.agent.history) != 0 {
		t.Fatal("agent should not run when the shortcut answers")
	}

	session, _ := f.sessions.Get(ctx, "CA1")
	if n := len(session.Messages); n != 3 || session.Messages[n-1].Content != want {
		t.Fatalf("unexpected history: %+v", session.Messages)
	}
}

func TestRespondAgentPath(t *testing.T) {
	f := newFixture(t, &fakeAgent{answer: "Your case is closed."})
	ctx := context.Background()
	_, _ = f.svc.Greet(ctx, webhook(""))

	reply, err := f.svc.Respond(ctx, webhook("what's the status of case 1026"))
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}
	if reply.Text != "Your case is closed." || reply.Path != metrics.PathAgent {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	conv := f.agent.history[0]
	last := conv[len(conv)-1]
	if last.Role != schema.User || last.Content != "what's the status of case 1026" {
		t.Fatalf("agent did not see the user turn last: %+v", last)
	}
}

func TestRespondEmptyTranscriptReprompts(t *testing.T) {
	f := newFixture(t, &fakeAgent{answer: "x"})
	ctx := context.Background()
	_, _ = f.svc.Greet(ctx, webhook(""))

	reply, err := f.svc.Respond(ctx, webhook("   "))
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}
	if reply.Text != RepromptMessage || reply.Path != metrics.PathReprompt {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	session, _ := f.sessions.Get(ctx, "CA1")
	if len(session.Messages) != 1 {
		t.Fatalf("reprompt should not change history, got %d messages", len(session.Messages))
	}
}

func TestRespondFallbacks(t *testing.T) {
	cases := map[string]*fakeAgent{
		"model error":  {err: &agent.ModelInvocationError{Err: errors.New("boom")}},
		"empty answer": {answer: "  "},
		"timeout":      {answer: "late", delay: time.Second},
	}
	for name, ag := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, ag, WithTurnTimeout(20*time.Millisecond))
			ctx := context.Background()
			_, _ = f.svc.Greet(ctx, webhook(""))

			reply, err := f.svc.Respond(ctx, webhook("tell me a joke"))
			if err != nil {
				t.Fatalf("Respond err: %v", err)
			}
			if reply.Text != FallbackMessage || reply.Path != metrics.PathFallback {
				t.Fatalf("unexpected reply: %+v", reply)
			}
			session, _ := f.sessions.Get(ctx, "CA1")
			if last := session.Messages[len(session.Messages)-1]; last.Content != FallbackMessage {
				t.Fatalf("fallback not persisted: %+v", last)
			}
		})
	}
}

func TestRespondWithoutAgent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, _ = f.svc.Greet(ctx, webhook(""))

	reply, err := f.svc.Respond(ctx, webhook("hello"))
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}
	if reply.Text != FallbackMessage {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestSessionKeyMintedWhenMissing(t *testing.T) {
	f := newFixture(t, &fakeAgent{answer: "x"})
	f.svc.newToken = func() string { return "minted" }

	reply, err := f.svc.Greet(context.Background(), speechmodel.WebhookRequest{})
	if err != nil {
		t.Fatalf("Greet err: %v", err)
	}
	if reply.SessionKey != "minted" || !strings.HasPrefix(reply.Text, "Hi there") {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if f.orders.calls != 0 {
		t.Fatal("orders should not be fetched without a caller number")
	}
}

func TestHistoryCappedAcrossTurns(t *testing.T) {
	f := newFixture(t, &fakeAgent{answer: "sure"})
	ctx := context.Background()
	_, _ = f.svc.Greet(ctx, webhook(""))

	for i := 0; i < 8; i++ {
		if _, err := f.svc.Respond(ctx, webhook("hello there")); err != nil {
			t.Fatalf("Respond err: %v", err)
		}
	}

	session, _ := f.sessions.Get(ctx, "CA1")
	if len(session.Messages) != chat.DefaultHistoryLimit {
		t.Fatalf("expected %d messages, got %d", chat.DefaultHistoryLimit, len(session.Messages))
	}
}
