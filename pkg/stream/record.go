package stream

import "time"

// ReasoningRecord is the consolidated record for one generation attempt.
// It is assembled at finalization and immutable afterwards.
type ReasoningRecord struct {
	SummaryParts    []string `json:"summary_parts"`
	CompleteSummary string   `json:"complete_summary"`
	// Timestamp is set only at finalization.
	Timestamp  time.Time `json:"timestamp"`
	ResponseID string    `json:"response_id"`
	// WebSearches is omitted entirely when no searches were observed;
	// never an empty list, for backward payload compatibility.
	WebSearches []WebSearchRecord `json:"web_searches,omitempty"`
	MessageData []MessageItem     `json:"message_data,omitempty"`
	Usage       *TokenUsage       `json:"usage,omitempty"`
}

// WebSearchRecord is the merged view of one web-search invocation: status
// and position from lifecycle events, content from the output item.
type WebSearchRecord struct {
	ItemID         string       `json:"item_id"`
	Status         SearchStatus `json:"status"`
	OutputIndex    int          `json:"output_index"`
	SequenceNumber int          `json:"sequence_number"`
	Timestamp      time.Time    `json:"timestamp"`
	Query          string       `json:"query,omitempty"`
	ActionType     string       `json:"action_type,omitempty"`
	Sources        []string     `json:"sources,omitempty"`
	URL            string       `json:"url,omitempty"`
	Pattern        string       `json:"pattern,omitempty"`
}

// MessageItem is a captured structured message output item.
type MessageItem struct {
	ItemID string `json:"item_id"`
	Role   string `json:"role"`
	Text   string `json:"text"`
}

// TokenUsage reports token consumption for the attempt.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// ToolCall is a fully-accumulated function call ready for execution.
type ToolCall struct {
	CallID    string
	Name      string
	Arguments string // JSON
}

// Outcome is what finalization hands back to the caller for persistence.
// Record is nil when the attempt produced no reasoning, search, or message
// data worth recording.
type Outcome struct {
	Record     *ReasoningRecord
	Text       string
	ResponseID string
}

// MergePolicy controls how lifecycle-only searches are merged into the
// record. Query synthesis compensates for the vendor sometimes omitting the
// content-bearing output item; it is configurable in case that gap closes
// upstream.
type MergePolicy struct {
	SynthesizeQueries bool
}

// DefaultMergePolicy returns the policy used in production: synthesize
// placeholder queries so search activity is never silently dropped.
func DefaultMergePolicy() MergePolicy {
	return MergePolicy{SynthesizeQueries: true}
}
