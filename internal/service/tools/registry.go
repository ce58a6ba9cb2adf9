// Package tools defines the CRM capabilities the model may invoke during a
// call and the registry that validates and dispatches them.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// Kind is the closed set of tool names known to the assistant.
type Kind string

const (
	KindCaseStatus         Kind = "case_status"
	KindCreateCase         Kind = "create_case"
	KindOrderSummary       Kind = "order_summary_status"
	KindUpdateDeliveryDate Kind = "update_delivery_date"
)

// Definition is the static description of a tool.
type Definition struct {
	Kind        Kind
	Description string
	Params      map[string]*schema.ParameterInfo
}

// ToolInfo converts the definition into the schema bound to the model.
func (d Definition) ToolInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        string(d.Kind),
		Desc:        d.Description,
		ParamsOneOf: schema.NewParamsOneOfByParams(d.Params),
	}
}

// Tool is an invokable capability with a declared definition.
type Tool interface {
	tool.InvokableTool
	Definition() Definition
}

// Registry maps tool names to implementations. It is populated at startup and
// only read afterwards.
type Registry struct {
	mu    sync.RWMutex
	tools map[Kind]Tool
	order []Kind
}

// NewRegistry registers the supplied tools, failing on duplicates.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[Kind]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool when its name is not in use.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool is nil")
	}
	kind := t.Definition().Kind
	if kind == "" {
		return fmt.Errorf("tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[kind]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, kind)
	}
	r.tools[kind] = t
	r.order = append(r.order, kind)
	return nil
}

// Resolve looks a tool up by name.
func (r *Registry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[Kind(name)]
	return t, ok
}

// Infos lists tool schemas in registration order.
func (r *Registry) Infos() []*schema.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]*schema.ToolInfo, 0, len(r.order))
	for _, kind := range r.order {
		infos = append(infos, r.tools[kind].Definition().ToolInfo())
	}
	return infos
}

// Invoke validates the call's arguments and runs the tool. Failures are
// returned as *UnavailableError, *ValidationError or *InvocationError.
func (r *Registry) Invoke(ctx context.Context, call schema.ToolCall) (out string, err error) {
	name := call.Function.Name
	t, ok := r.Resolve(name)
	if !ok {
		return "", &UnavailableError{Tool: name}
	}

	args, err := decodeArguments(call.Function.Arguments)
	if err != nil {
		return "", &ValidationError{Tool: name, Reason: err.Error()}
	}
	if err := Validate(args, t.Definition().Params); err != nil {
		return "", &ValidationError{Tool: name, Reason: err.Error()}
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = ""
			err = &InvocationError{Tool: name, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	out, err = t.InvokableRun(ctx, normalizeArguments(call.Function.Arguments))
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return "", err
		}
		return "", &InvocationError{Tool: name, Err: err}
	}
	return out, nil
}

func decodeArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %v", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func normalizeArguments(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "{}"
	}
	return raw
}
