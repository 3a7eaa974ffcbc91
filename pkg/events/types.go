// Package events defines the client-facing event envelope, the bounded
// queue that carries events from the stream worker to the HTTP writer, and
// the wire framing used to pack discrete JSON frames into one long-lived
// response body.
package events

// Kind identifies the kind of client event.
type Kind string

const (
	KindTextCreated         Kind = "text_created"
	KindTextDelta           Kind = "text_delta"
	KindTextDone            Kind = "text_done"
	KindResponseDone        Kind = "response_done"
	KindReasoningStarted    Kind = "reasoning_started"
	KindReasoningInProgress Kind = "reasoning_in_progress"
	KindReasoningCompleted  Kind = "reasoning_completed"
	KindSearchStarted       Kind = "search_started"
	KindSearchInProgress    Kind = "search_in_progress"
	KindSearchCompleted     Kind = "search_completed"
	KindError               Kind = "error"
)

// ClientEvent is the discriminated envelope forwarded to the live consumer.
// Only the fields relevant to the kind are set; the rest are omitted from
// the JSON payload.
type ClientEvent struct {
	Kind         Kind       `json:"kind"`
	ResponseID   string     `json:"response_id,omitempty"`
	Delta        string     `json:"delta,omitempty"`
	Text         string     `json:"text,omitempty"`
	ItemID       string     `json:"item_id,omitempty"`
	SummaryIndex int        `json:"summary_index,omitempty"`
	Status       string     `json:"status,omitempty"`
	Error        *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo is the payload of a terminal error event: a normalized kind, a
// short user-facing message, and a suggested action. Raw provider errors
// never reach the client.
type ErrorInfo struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}
