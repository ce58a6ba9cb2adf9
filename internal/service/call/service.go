// Package call orchestrates one webhook turn: session lookup, the local
// intent shortcut, the tool-calling agent and persistence.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/zhouzirui/voice-agent/backend/internal/analysis/intent"
	"github.com/zhouzirui/voice-agent/backend/internal/metrics"
	"github.com/zhouzirui/voice-agent/backend/internal/model/chat"
	speechmodel "github.com/zhouzirui/voice-agent/backend/internal/model/speech"
	"github.com/zhouzirui/voice-agent/backend/internal/service/agent"
	chatservice "github.com/zhouzirui/voice-agent/backend/internal/service/chat"
)

const (
	// RepromptMessage is spoken when no speech was recognised.
	RepromptMessage = "Sorry, I didn't catch that. Could you please repeat?"
	// FallbackMessage is spoken when the model cannot answer in time.
	FallbackMessage = agent.FallbackAnswer

	// DefaultTurnTimeout bounds the model part of a turn.
	DefaultTurnTimeout = 15 * time.Second

	endpointIncoming = "incoming_call"
	endpointRespond  = "respond"
)

// Prompter builds greetings and model conversations for a session.
type Prompter interface {
	Greeting(customerName string) string
	BuildConversation(ctx context.Context, session *chat.Session) ([]*schema.Message, error)
}

// Agent runs a tool-calling model turn.
type Agent interface {
	Run(ctx context.Context, conversation []*schema.Message) (*agent.Result, error)
}

// Reply is what the caller hears, plus the session the next turn belongs to.
type Reply struct {
	Text       string
	SessionKey string
	Path       string
}

// Service coordinates turns. The agent may be nil when no model is configured,
// in which case anything the shortcut cannot answer gets the fallback message.
type Service struct {
	sessions    *chatservice.Service
	prompts     Prompter
	agent       Agent
	metrics     *metrics.Metrics
	turnTimeout time.Duration
	logger      *slog.Logger
	newToken    func() string
}

// Option customises a Service.
type Option func(*Service)

// WithTurnTimeout overrides DefaultTurnTimeout.
func WithTurnTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.turnTimeout = d
		}
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService wires the orchestrator.
func NewService(sessions *chatservice.Service, prompts Prompter, ag Agent, opts ...Option) *Service {
	s := &Service{
		sessions:    sessions,
		prompts:     prompts,
		agent:       ag,
		turnTimeout: DefaultTurnTimeout,
		logger:      slog.Default(),
		newToken:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Greet handles the start of a call, or a redirect back after a turn. New
// sessions hear the greeting; existing ones only re-arm speech gathering.
func (s *Service) Greet(ctx context.Context, req speechmodel.WebhookRequest) (*Reply, error) {
	started := time.Now()
	key := s.sessionKey(req)

	turn, err := s.sessions.Begin(ctx, key, req.From)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}
	defer turn.Release()

	reply := &Reply{SessionKey: key, Path: metrics.PathRearm}
	if turn.New {
		reply.Text = s.greet(ctx, turn)
		reply.Path = metrics.PathGreeting
	}

	s.metrics.RecordTurn(endpointIncoming, reply.Path, time.Since(started))
	return reply, nil
}

// Respond answers one recognised utterance.
func (s *Service) Respond(ctx context.Context, req speechmodel.WebhookRequest) (*Reply, error) {
	started := time.Now()
	key := s.sessionKey(req)

	turn, err := s.sessions.Begin(ctx, key, req.From)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}
	defer turn.Release()

	reply := &Reply{SessionKey: key}
	defer func() {
		s.metrics.RecordTurn(endpointRespond, reply.Path, time.Since(started))
	}()

	// 会话首次出现时不把转写当作输入，先播放问候
	if turn.New {
		reply.Text = s.greet(ctx, turn)
		reply.Path = metrics.PathGreeting
		return reply, nil
	}

	transcript := strings.TrimSpace(req.SpeechResult)
	if transcript == "" {
		reply.Text = RepromptMessage
		reply.Path = metrics.PathReprompt
		return reply, nil
	}

	turn.Append(chat.NewMessage(chat.RoleUser, transcript))

	if answer, ok := intent.Answer(transcript, turn.Session.Orders); ok {
		reply.Text = answer
		reply.Path = metrics.PathShortcut
	} else {
		reply.Text, reply.Path = s.runAgent(ctx, turn.Session)
	}

	turn.Append(chat.NewMessage(chat.RoleAssistant, reply.Text))
	s.commit(ctx, turn)
	return reply, nil
}

func (s *Service) greet(ctx context.Context, turn *chatservice.Turn) string {
	greeting := s.prompts.Greeting(turn.Session.CustomerName)
	turn.Append(chat.NewMessage(chat.RoleAssistant, greeting))
	s.commit(ctx, turn)
	s.metrics.RecordSessionStart()
	return greeting
}

func (s *Service) runAgent(ctx context.Context, session *chat.Session) (string, string) {
	if s.agent == nil {
		s.logger.Warn("no model configured, using fallback", "session", session.Key)
		return FallbackMessage, metrics.PathFallback
	}

	turnCtx, cancel := context.WithTimeout(ctx, s.turnTimeout)
	defer cancel()

	conversation, err := s.prompts.BuildConversation(turnCtx, session)
	if err != nil {
		s.logger.Error("build conversation failed", "session", session.Key, "error", err)
		return FallbackMessage, metrics.PathFallback
	}

	result, err := s.agent.Run(turnCtx, conversation)
	if err != nil {
		var merr *agent.ModelInvocationError
		if errors.As(err, &merr) && errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("turn timed out", "session", session.Key, "timeout", s.turnTimeout)
		} else {
			s.logger.Error("agent turn failed", "session", session.Key, "error", err)
		}
		return FallbackMessage, metrics.PathFallback
	}

	answer := strings.TrimSpace(result.Answer)
	if answer == "" {
		return FallbackMessage, metrics.PathFallback
	}
	s.logger.Info("agent answered", "session", session.Key, "rounds", result.Rounds, "capped", result.Capped)
	return answer, metrics.PathAgent
}

func (s *Service) commit(ctx context.Context, turn *chatservice.Turn) {
	// 回复照常播放，持久化失败只记录日志
	if err := turn.Commit(ctx); err != nil {
		s.logger.Error("persist session failed", "session", turn.Session.Key, "error", err)
	}
}

func (s *Service) sessionKey(req speechmodel.WebhookRequest) string {
	if key := req.SessionKey(); key != "" {
		return key
	}
	return s.newToken()
}
