// Package ai prepares the model-facing conversation for a call turn.
package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/voice-agent/backend/internal/analysis/emotion"
	"github.com/zhouzirui/voice-agent/backend/internal/model/chat"
	"github.com/zhouzirui/voice-agent/backend/internal/model/persona"
)

// Service renders the system prompt and history for the active persona.
type Service struct {
	persona  persona.Persona
	builder  *PromptBuilder
	template prompt.ChatTemplate
}

// NewService resolves personaID against the store, falling back to the
// default persona.
func NewService(personas persona.Store, personaID string) (*Service, error) {
	p, ok := persona.Resolve(personas, personaID)
	if !ok {
		return nil, fmt.Errorf("no persona available for id %q", personaID)
	}

	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
	)

	return &Service{
		persona:  p,
		builder:  NewPromptBuilder(),
		template: template,
	}, nil
}

// Persona returns the active persona.
func (s *Service) Persona() persona.Persona {
	return s.persona
}

// Greeting is the first thing a caller hears.
func (s *Service) Greeting(customerName string) string {
	return s.persona.GreetingFor(customerName)
}

// BuildConversation returns the system prompt followed by the session history.
func (s *Service) BuildConversation(ctx context.Context, session *chat.Session) ([]*schema.Message, error) {
	system := s.builder.BuildSystemPrompt(s.persona, session.CustomerName, session.Orders)
	// 根据来电者最后一句话调整语气
	if guidance := emotion.Analyze(lastUserUtterance(session)).Guidance(); guidance != "" {
		system += "\n\nTone: " + guidance
	}

	input := map[string]any{
		"system":  system,
		"history": chat.SchemaMessages(session.Messages),
	}

	messages, err := s.template.Format(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to format prompt: %w", err)
	}
	return messages, nil
}

func lastUserUtterance(session *chat.Session) string {
	for i := len(session.Messages) - 1; i >= 0; i-- {
		if session.Messages[i].Role == chat.RoleUser {
			return session.Messages[i].Content
		}
	}
	return ""
}
