// Package tools provides the local tool registry used by the mid-stream
// tool-call sub-loop. Tool failures are values, not panics: every
// execution produces a structured payload that is submitted back to the
// model, so a broken or unknown tool can never abort a session.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Error codes carried in failure payloads.
const (
	CodeToolNotFound     = "tool_not_found"
	CodeInvalidArguments = "invalid_arguments"
	CodeExecutionError   = "execution_error"
)

// Tool is a locally registered function the model may call.
type Tool interface {
	Name() string
	Description() string
	// ParametersSchema returns the JSON Schema of the tool's arguments,
	// advertised to the model with the tool definition.
	ParametersSchema() *jsonschema.Schema
	// Execute runs the tool. args is the raw JSON argument object.
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// Result is the structured payload submitted back to the model for one
// call. Exactly one of Result or Error/ErrorCode is populated.
type Result struct {
	Success   bool   `json:"success"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// JSON marshals the result payload. Falls back to a minimal failure
// payload if the tool returned something unmarshalable.
func (r Result) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q,"error_code":%q}`,
			"tool result was not serializable", CodeExecutionError)
	}
	return string(data)
}

// Failure builds a failed result with the given code and message.
func Failure(code, message string) Result {
	return Result{Success: false, Error: message, ErrorCode: code}
}

// typedTool adapts a function over a concrete argument struct into a Tool,
// reflecting the parameter schema from the struct type.
type typedTool[Req any] struct {
	name        string
	description string
	fn          func(ctx context.Context, req Req) (any, error)
}

// New creates a Tool from a typed handler. The argument schema is
// reflected from Req.
func New[Req any](name, description string, fn func(ctx context.Context, req Req) (any, error)) Tool {
	return &typedTool[Req]{name: name, description: description, fn: fn}
}

func (t *typedTool[Req]) Name() string        { return t.name }
func (t *typedTool[Req]) Description() string { return t.description }

func (t *typedTool[Req]) ParametersSchema() *jsonschema.Schema {
	var req Req
	return (&jsonschema.Reflector{DoNotReference: true}).Reflect(&req)
}

func (t *typedTool[Req]) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var req Req
	if len(args) > 0 {
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("invalid arguments for tool %q: %w", t.name, err)
		}
	}
	return t.fn(ctx, req)
}
