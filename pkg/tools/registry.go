package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Registry holds the tools available to a session. Lookup misses and
// execution failures both come back as structured Results, never as
// raised errors; the payload goes into the model's context instead.
type Registry struct {
	tools map[string]Tool
	order []string
	log   *slog.Logger
}

// NewRegistry creates a registry with the given tools. Duplicate names are
// rejected.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(ts)), log: slog.Default()}
	for _, t := range ts {
		if _, ok := r.tools[t.Name()]; ok {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name())
		}
		r.tools[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return r, nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns the registered tools in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Run resolves and executes one call, converting every failure mode into a
// structured Result. args is the raw JSON argument string accumulated from
// the stream.
func (r *Registry) Run(ctx context.Context, name, args string) Result {
	tool, ok := r.Lookup(name)
	if !ok {
		r.log.Warn("model requested unknown tool", "tool", name)
		return Failure(CodeToolNotFound, fmt.Sprintf("no tool registered under %q", name))
	}

	raw := json.RawMessage(strings.TrimSpace(args))
	if len(raw) > 0 && !json.Valid(raw) {
		r.log.Warn("tool call with malformed arguments", "tool", name)
		return Failure(CodeInvalidArguments, fmt.Sprintf("arguments for %q are not valid JSON", name))
	}

	start := time.Now()
	out, err := tool.Execute(ctx, raw)
	if err != nil {
		r.log.Warn("tool execution failed",
			"tool", name, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		code := CodeExecutionError
		if strings.Contains(err.Error(), "invalid arguments") {
			code = CodeInvalidArguments
		}
		return Failure(code, err.Error())
	}

	r.log.Info("tool executed",
		"tool", name, "duration_ms", time.Since(start).Milliseconds())
	return Result{Success: true, Result: out}
}
