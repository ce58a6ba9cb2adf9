// Package agent runs one conversational turn against a tool-calling model.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/zhouzirui/voice-agent/backend/internal/service/tools"
)

const (
	// DefaultMaxRounds caps how many tool rounds one turn may take.
	DefaultMaxRounds = 5
	// FallbackAnswer is spoken when the turn cannot produce an answer.
	FallbackAnswer = "I'm sorry, I couldn't process your request."
)

// State is the executor's position within a turn.
type State int

const (
	StateThinking State = iota
	StateActingOnTools
	StateDone
)

func (s State) String() string {
	switch s {
	case StateThinking:
		return "thinking"
	case StateActingOnTools:
		return "acting_on_tools"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ModelInvocationError wraps a failure of the language model call.
type ModelInvocationError struct {
	Round int
	Err   error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("model invocation failed in round %d: %v", e.Round, e.Err)
}

func (e *ModelInvocationError) Unwrap() error { return e.Err }

// ToolInvoker resolves and runs tool calls.
type ToolInvoker interface {
	Infos() []*schema.ToolInfo
	Invoke(ctx context.Context, call schema.ToolCall) (string, error)
}

// Observer receives per-turn measurements. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveToolCall(tool, outcome string)
	ObserveRounds(rounds int, capped bool)
}

// Tool call outcomes reported to the Observer.
const (
	OutcomeOK          = "ok"
	OutcomeInvalid     = "invalid"
	OutcomeFailed      = "failed"
	OutcomeUnavailable = "unavailable"
)

// Result is the outcome of one turn.
type Result struct {
	Answer string
	// Messages holds everything the turn produced, in order: assistant tool
	// requests, tool results and the final assistant message.
	Messages []*schema.Message
	Rounds   int
	Capped   bool
}

// Executor drives the Thinking → ActingOnTools → Done loop. It never persists
// anything; callers decide what to keep from the Result.
type Executor struct {
	model     model.BaseChatModel
	tools     ToolInvoker
	maxRounds int
	logger    *slog.Logger
	observer  Observer
}

// Option customises an Executor.
type Option func(*Executor)

// WithMaxRounds overrides DefaultMaxRounds. Non-positive values are ignored.
func WithMaxRounds(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxRounds = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// NewExecutor binds the registry's tools to the model.
func NewExecutor(chatModel model.ToolCallingChatModel, invoker ToolInvoker, opts ...Option) (*Executor, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if invoker == nil {
		return nil, errors.New("tool invoker is required")
	}

	bound, err := chatModel.WithTools(invoker.Infos())
	if err != nil {
		return nil, fmt.Errorf("bind tools: %w", err)
	}

	e := &Executor{
		model:     bound,
		tools:     invoker,
		maxRounds: DefaultMaxRounds,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes one turn over the prepared conversation (system prompt first).
func (e *Executor) Run(ctx context.Context, conversation []*schema.Message) (*Result, error) {
	conv := make([]*schema.Message, 0, len(conversation)+4)
	conv = append(conv, conversation...)

	result := &Result{}
	state := StateThinking
	var pending *schema.Message
	seen := make(map[string]struct{})

	for state != StateDone {
		switch state {
		case StateThinking:
			if err := ctx.Err(); err != nil {
				return nil, &ModelInvocationError{Round: result.Rounds, Err: err}
			}

			resp, err := e.model.Generate(ctx, conv)
			if err != nil {
				return nil, &ModelInvocationError{Round: result.Rounds, Err: err}
			}
			if resp == nil {
				return nil, &ModelInvocationError{Round: result.Rounds, Err: errors.New("empty model response")}
			}

			if len(resp.ToolCalls) == 0 {
				final := schema.AssistantMessage(resp.Content, nil)
				result.Answer = resp.Content
				result.Messages = append(result.Messages, final)
				state = StateDone
				continue
			}

			if result.Rounds >= e.maxRounds {
				e.logger.Warn("tool round cap reached", "rounds", result.Rounds, "max_rounds", e.maxRounds)
				result.Capped = true
				result.Answer = FallbackAnswer
				result.Messages = append(result.Messages, schema.AssistantMessage(FallbackAnswer, nil))
				state = StateDone
				continue
			}

			pending = resp
			state = StateActingOnTools

		case StateActingOnTools:
			result.Rounds++
			request := toolRequest(pending, seen)
			conv = append(conv, request)
			result.Messages = append(result.Messages, request)

			for _, call := range request.ToolCalls {
				msg := e.invoke(ctx, call)
				conv = append(conv, msg)
				result.Messages = append(result.Messages, msg)
			}
			pending = nil
			state = StateThinking
		}
	}

	if e.observer != nil {
		e.observer.ObserveRounds(result.Rounds, result.Capped)
	}
	return result, nil
}

// toolRequest copies the model's tool-calling message. Missing call ids and
// ids already used earlier in the turn are replaced, so every result matches
// exactly one request.
func toolRequest(resp *schema.Message, seen map[string]struct{}) *schema.Message {
	calls := make([]schema.ToolCall, len(resp.ToolCalls))
	copy(calls, resp.ToolCalls)
	for i := range calls {
		if _, dup := seen[calls[i].ID]; dup || calls[i].ID == "" {
			calls[i].ID = "call_" + uuid.NewString()
		}
		seen[calls[i].ID] = struct{}{}
		if calls[i].Type == "" {
			calls[i].Type = "function"
		}
	}
	return schema.AssistantMessage(resp.Content, calls)
}

func (e *Executor) invoke(ctx context.Context, call schema.ToolCall) *schema.Message {
	name := call.Function.Name
	out, err := e.tools.Invoke(ctx, call)
	outcome := OutcomeOK
	if err != nil {
		outcome = classify(err)
		e.logger.Warn("tool call failed", "tool", name, "call_id", call.ID, "outcome", outcome, "error", err)
		out = "Error: " + err.Error()
	} else {
		e.logger.Debug("tool call completed", "tool", name, "call_id", call.ID, "bytes", len(out))
	}
	if e.observer != nil {
		e.observer.ObserveToolCall(name, outcome)
	}

	msg := schema.ToolMessage(out, call.ID)
	msg.Name = name
	return msg
}

func classify(err error) string {
	var (
		verr *tools.ValidationError
		uerr *tools.UnavailableError
	)
	switch {
	case errors.As(err, &verr):
		return OutcomeInvalid
	case errors.As(err, &uerr):
		return OutcomeUnavailable
	default:
		return OutcomeFailed
	}
}
