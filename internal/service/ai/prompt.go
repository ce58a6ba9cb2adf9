package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zhouzirui/voice-agent/backend/internal/model/order"
	"github.com/zhouzirui/voice-agent/backend/internal/model/persona"
)

// PromptBuilder renders persona system prompts.
type PromptBuilder struct {
	// Extra rules appended to every persona.
	SharedRules []string
}

// NewPromptBuilder returns a builder with the rules every voice persona needs.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		SharedRules: []string{
			"Use the available tools for case lookups, new cases, order summaries and delivery date changes; never invent case numbers or statuses.",
			"If a tool returns an error, apologise briefly and ask the caller for the missing or corrected detail.",
		},
	}
}

// BuildSystemPrompt combines persona, caller and cached order details.
func (b *PromptBuilder) BuildSystemPrompt(p persona.Persona, customerName string, orders []order.Record) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are a %s. Your role is to assist users with order-related queries in a %s manner.\n", p.Title, p.Tone)
	if p.PromptHint != "" {
		sb.WriteString(p.PromptHint)
		sb.WriteString("\n")
	}

	rules := append(append([]string(nil), p.Rules...), b.SharedRules...)
	if len(rules) > 0 {
		sb.WriteString("\nRules:\n")
		for _, rule := range rules {
			sb.WriteString("- ")
			sb.WriteString(rule)
			sb.WriteString("\n")
		}
	}

	if name := strings.TrimSpace(customerName); name != "" {
		fmt.Fprintf(&sb, "\nThe caller's name is %s.\n", name)
	}

	if len(orders) > 0 {
		// 订单以 JSON 形式提供，模型可以直接引用字段
		payload, err := json.Marshal(orders)
		if err == nil {
			fmt.Fprintf(&sb, "\nProvide order information from the following order details: %s\n", payload)
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}
