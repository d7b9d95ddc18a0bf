// Package tools provides the deterministic action layer: a registry of
// schema'd tools and an executor that validates exactly one proposed call and
// dispatches it to exactly one handler. Nothing ever panics or errors across
// this boundary; every outcome is a structured Result.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/normanking/impetus/internal/logging"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TOOL DEFINITIONS
// ═══════════════════════════════════════════════════════════════════════════════

// Parameter describes a tool parameter.
type Parameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // "string", "number", "integer", "boolean"
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
	Required    bool     `json:"required"`
}

// Handler executes a validated call. Implementations perform their own
// fine-grained argument validation (ranges, reachability preconditions)
// before any side effect, and report failures through the Result rather than
// an error.
type Handler func(ctx context.Context, args map[string]any) *Result

// Tool is one registered action with its prompt-facing schema.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
}

// Call is one proposed action, as normalized by the inference client.
type Call struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Result is the outcome of one tool execution.
type Result struct {
	Success bool           `json:"success"`
	Tool    string         `json:"tool_name"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Failure builds a failure result for a tool.
func Failure(tool, format string, args ...interface{}) *Result {
	return &Result{Success: false, Tool: tool, Error: fmt.Sprintf(format, args...)}
}

// Success builds a success result for a tool.
func Ok(tool string, data map[string]any) *Result {
	return &Result{Success: true, Tool: tool, Data: data}
}

// ═══════════════════════════════════════════════════════════════════════════════
// REGISTRY & EXECUTOR
// ═══════════════════════════════════════════════════════════════════════════════

// Registry holds the tool set and executes calls against it.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	log   *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Tool),
		log:   logging.Global().WithComponent("Tools"),
	}
}

// Register adds a tool. Duplicate names are rejected.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns the registered tools sorted by name, for prompt building
// and backend tool declarations.
func (r *Registry) Schemas() []*Tool {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// Execute validates the call against its tool schema and dispatches it. An
// unknown name returns a failure enumerating every registered tool without
// invoking anything; a handler panic or error is converted to a failure
// result. No exception ever crosses this boundary.
func (r *Registry) Execute(ctx context.Context, call *Call) (result *Result) {
	if call == nil {
		return Failure("", "no call provided")
	}

	r.mu.RLock()
	tool := r.tools[call.Name]
	r.mu.RUnlock()

	if tool == nil {
		return Failure(call.Name, "unknown tool %q; available tools: %s",
			call.Name, strings.Join(r.Names(), ", "))
	}

	args, err := validateArgs(tool, call.Arguments)
	if err != nil {
		return Failure(call.Name, "invalid arguments: %v", err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("tool %s panicked: %v", call.Name, rec)
			result = Failure(call.Name, "handler panic: %v", rec)
		}
	}()

	r.log.Debug("executing %s with args %v", call.Name, args)
	result = tool.Handler(ctx, args)
	if result == nil {
		result = Failure(call.Name, "handler returned no result")
	}
	result.Tool = call.Name
	return result
}

// ═══════════════════════════════════════════════════════════════════════════════
// ARGUMENT VALIDATION & COERCION
// ═══════════════════════════════════════════════════════════════════════════════

// validateArgs checks required parameters and coerces generic string values
// to the schema's declared type where unambiguous. Unknown extra arguments
// are passed through untouched.
func validateArgs(tool *Tool, raw map[string]any) (map[string]any, error) {
	args := make(map[string]any, len(raw))
	for k, v := range raw {
		args[k] = v
	}

	for _, p := range tool.Parameters {
		v, present := args[p.Name]
		if !present || v == nil || v == "" {
			if p.Required {
				return nil, fmt.Errorf("missing required parameter %q", p.Name)
			}
			continue
		}

		coerced, err := coerceParam(p, v)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		args[p.Name] = coerced

		if len(p.Enum) > 0 {
			s := fmt.Sprintf("%v", coerced)
			if !containsString(p.Enum, s) {
				return nil, fmt.Errorf("parameter %q must be one of %v, got %q", p.Name, p.Enum, s)
			}
		}
	}

	return args, nil
}

func coerceParam(p Parameter, v any) (any, error) {
	switch p.Type {
	case "number":
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return nil, fmt.Errorf("expected number, got %q", n)
			}
			return f, nil
		}
		return nil, fmt.Errorf("expected number, got %T", v)

	case "integer":
		switch n := v.(type) {
		case float64:
			return int(n), nil
		case int:
			return n, nil
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(n))
			if err != nil {
				return nil, fmt.Errorf("expected integer, got %q", n)
			}
			return i, nil
		}
		return nil, fmt.Errorf("expected integer, got %T", v)

	case "boolean":
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(b)) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
			return nil, fmt.Errorf("expected boolean, got %q", b)
		}
		return nil, fmt.Errorf("expected boolean, got %T", v)

	default: // string
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", v), nil
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// StringArg extracts a string argument with a default.
func StringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

// NumberArg extracts a numeric argument with a default.
func NumberArg(args map[string]any, key string, def float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}
