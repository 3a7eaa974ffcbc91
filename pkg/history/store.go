// Package history is the persistence collaborator: an ordered message log
// per conversation. The engine hands it one entry per finished generation
// attempt; persistence failures are reported to the caller, never
// swallowed; the in-memory record exists by then and the caller can
// retry independently.
package history

import (
	"context"
	"time"

	"github.com/loomworks/loom/pkg/stream"
)

// Role of a log entry author.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one message in a conversation's ordered log.
type Entry struct {
	Role       string                  `json:"role"`
	Content    string                  `json:"content"`
	ResponseID string                  `json:"response_id,omitempty"`
	Reasoning  *stream.ReasoningRecord `json:"reasoning,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
}

// ConversationStore appends and reads ordered conversation logs.
type ConversationStore interface {
	// Append adds one entry at the end of the conversation's log.
	Append(ctx context.Context, conversationID string, entry Entry) error

	// Entries returns the conversation's log in append order.
	Entries(ctx context.Context, conversationID string) ([]Entry, error)

	// LastResponseID returns the response id of the newest assistant
	// entry, or "" when the conversation has none. Used to thread
	// follow-up turns onto the provider-side conversation.
	LastResponseID(ctx context.Context, conversationID string) (string, error)
}
