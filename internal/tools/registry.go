// Package tools holds the registry of functions the language model may call.
package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/autumn-voice/gateway/internal/metrics"
)

// ErrUnknownTool is returned when the model requests a tool that was never registered.
var ErrUnknownTool = errors.New("unknown tool")

// ExecError reports a registered tool whose execution failed. It is kept
// distinct from an empty-but-successful result so the orchestrator can decide
// how to react.
type ExecError struct {
	Tool string
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Tool describes one callable function: the schema handed verbatim to the
// model, and the handler run when the model invokes it.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON-schema-shaped object describing the arguments.
	Parameters map[string]any
	Handler    func(ctx context.Context, args map[string]any) (string, error)
}

// Registry maps tool names to their schema and executor. It is populated at
// startup and read-only afterwards.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Later registrations with the same name replace earlier ones.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Describe returns all tool schemas in registration order.
func (r *Registry) Describe() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Execute runs the named tool with already-parsed arguments. An unregistered
// name yields ErrUnknownTool; a handler failure yields an ExecError carrying
// the cause. A successful empty result is just ("", nil).
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		metrics.ToolCalls.WithLabelValues(name, "unknown").Inc()
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	result, err := t.Handler(ctx, args)
	if err != nil {
		metrics.ToolCalls.WithLabelValues(name, "error").Inc()
		return "", &ExecError{Tool: name, Err: err}
	}
	metrics.ToolCalls.WithLabelValues(name, "ok").Inc()
	return result, nil
}
