package chat

import (
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message persists individual turns of a call.
type Message struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	ToolCallID string    `json:"toolCallId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewMessage stamps a message with a fresh id and the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// Schema converts the message into the model wire type.
func (m Message) Schema() *schema.Message {
	switch m.Role {
	case RoleSystem:
		return schema.SystemMessage(m.Content)
	case RoleAssistant:
		return schema.AssistantMessage(m.Content, nil)
	case RoleTool:
		return schema.ToolMessage(m.Content, m.ToolCallID)
	default:
		return schema.UserMessage(m.Content)
	}
}

// FromSchema converts a model message back into a stored message. Tool call
// requests carried by assistant messages are not persisted.
func FromSchema(msg *schema.Message) Message {
	out := NewMessage(RoleUser, msg.Content)
	switch msg.Role {
	case schema.System:
		out.Role = RoleSystem
	case schema.Assistant:
		out.Role = RoleAssistant
	case schema.Tool:
		out.Role = RoleTool
		out.ToolCallID = msg.ToolCallID
	}
	return out
}

// SchemaMessages converts a stored history for a model call.
func SchemaMessages(messages []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Schema())
	}
	return out
}
