// Package llm talks to the generative-response provider: it opens event
// streams, resubmits tool outputs, and normalizes transport failures into
// a small closed set of error kinds.
package llm

import (
	"context"

	"github.com/invopop/jsonschema"
	"github.com/loomworks/loom/pkg/stream"
)

// Streamer is the provider-facing interface for one generation attempt.
// Both methods return a channel of normalized source events; the channel
// is closed when the stream ends. Transport failures after setup are
// delivered as stream.ErrorEvent values on the channel, never as panics.
type Streamer interface {
	// Stream starts a new generation attempt.
	Stream(ctx context.Context, req Request) (<-chan stream.Event, error)

	// SubmitToolOutputs feeds tool results back to the model and returns
	// the continuation stream. Outputs must be in call-completion order.
	SubmitToolOutputs(ctx context.Context, responseID string, outputs []ToolOutput) (<-chan stream.Event, error)
}

// Request describes one generation attempt. Model, instructions, and the
// advertised tool set are service-level settings on the Streamer itself;
// they do not change per turn.
type Request struct {
	// Input is the user's message for this turn.
	Input string
	// PreviousResponseID threads the turn onto the provider-side
	// conversation. Empty for the first turn.
	PreviousResponseID string
}

// ToolSpec is a function tool definition advertised to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// ToolOutput is one executed call's structured result payload.
type ToolOutput struct {
	CallID string
	Output string // JSON payload, success or structured failure
}
