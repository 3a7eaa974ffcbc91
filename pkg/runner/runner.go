// Package runner drives one generation turn end to end: it owns the
// stream session and the client event queue, runs the dispatch loop,
// executes local tools mid-stream, resubmits their outputs, and persists
// the consolidated record when the turn finishes.
package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/loomworks/loom/pkg/events"
	"github.com/loomworks/loom/pkg/history"
	"github.com/loomworks/loom/pkg/llm"
	"github.com/loomworks/loom/pkg/stream"
	"github.com/loomworks/loom/pkg/tools"
)

// DefaultMaxToolRounds caps chained tool-call rounds within one turn so a
// misbehaving model cannot loop forever.
const DefaultMaxToolRounds = 8

// Config tunes a Runner.
type Config struct {
	MergePolicy   stream.MergePolicy
	MaxToolRounds int
}

// Runner executes turns. One Runner serves many concurrent turns; all
// per-turn state lives in the session and queue created per call.
type Runner struct {
	streamer llm.Streamer
	registry *tools.Registry
	store    history.ConversationStore // nil disables persistence
	cfg      Config
	logger   *slog.Logger
}

// New creates a Runner. store may be nil.
func New(streamer llm.Streamer, registry *tools.Registry, store history.ConversationStore, cfg Config) *Runner {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	return &Runner{
		streamer: streamer,
		registry: registry,
		store:    store,
		cfg:      cfg,
		logger:   slog.With("component", "runner"),
	}
}

// TurnInput describes one user turn.
type TurnInput struct {
	ConversationID string
	Message        string
	// PreviousResponseID threads onto the provider-side conversation.
	// When empty the conversation log supplies it.
	PreviousResponseID string
}

// TurnResult is what a finished turn hands back for the caller. PersistErr
// is non-nil when the record could not be appended to the conversation
// log; the in-memory result is still complete and the caller may retry
// persistence independently.
type TurnResult struct {
	Record     *stream.ReasoningRecord
	Text       string
	ResponseID string
	PersistErr error
}

// RunTurn consumes the source stream for one turn, pushing client events
// onto queue as they derive. It closes the queue when the turn is over.
// The returned error is non-nil only when the stream could not be set up
// at all; mid-stream failures surface as a terminal error client event and
// still yield a partial TurnResult.
func (r *Runner) RunTurn(ctx context.Context, queue *events.Queue, in TurnInput) (*TurnResult, error) {
	defer queue.Close()

	log := r.logger.With("conversation_id", in.ConversationID)

	previousID := in.PreviousResponseID
	if previousID == "" && r.store != nil {
		id, err := r.store.LastResponseID(ctx, in.ConversationID)
		if err != nil {
			log.Warn("Failed to load previous response id, starting fresh", "error", err)
		} else {
			previousID = id
		}
	}

	r.persistUserMessage(ctx, log, in)

	ch, err := r.streamer.Stream(ctx, llm.Request{
		Input:              in.Message,
		PreviousResponseID: previousID,
	})
	if err != nil {
		kind := llm.Classify(err)
		message, suggestion := llm.UserMessage(kind)
		log.Warn("Failed to open response stream", "kind", kind, "error", err)
		if pushErr := queue.Push(ctx, events.ClientEvent{
			Kind:  events.KindError,
			Error: &events.ErrorInfo{Kind: string(kind), Message: message, Suggestion: suggestion},
		}); pushErr != nil {
			log.Warn("Failed to deliver error event", "error", pushErr)
		}
		return nil, err
	}

	session := stream.NewSession(r.cfg.MergePolicy)
	dispatcher := stream.NewDispatcher(session, queue, log)

	r.consume(ctx, log, session, dispatcher, ch)

	outcome := session.Finalize()
	result := &TurnResult{
		Record:     outcome.Record,
		Text:       outcome.Text,
		ResponseID: outcome.ResponseID,
	}
	result.PersistErr = r.persistOutcome(ctx, in.ConversationID, outcome)
	if result.PersistErr != nil {
		log.Error("Failed to persist turn record",
			"response_id", outcome.ResponseID, "error", result.PersistErr)
	}
	return result, nil
}

// consume runs the dispatch loop, including the tool-call sub-loop:
// dispatch until the stream ends, execute any completed calls, resubmit
// their outputs in call-completion order, and resume dispatching the
// continuation stream with the same session. Repeats for chained calls.
func (r *Runner) consume(
	ctx context.Context,
	log *slog.Logger,
	session *stream.Session,
	dispatcher *stream.Dispatcher,
	ch <-chan stream.Event,
) {
	rounds := 0
	for {
		for ev := range ch {
			if err := dispatcher.Handle(ctx, ev); err != nil {
				// Consumer side torn down; stop producing and keep what
				// was accumulated.
				log.Info("Dispatch stopped", "reason", err)
				return
			}
		}

		if session.Errored() {
			return
		}
		calls := session.TakeCompletedCalls()
		if len(calls) == 0 {
			if !session.Completed() {
				// Stream exhausted with no terminal event; keep the
				// partial state and finalize what arrived.
				log.Warn("Stream ended without a terminal event",
					"response_id", session.ResponseID())
			}
			return
		}

		rounds++
		if rounds > r.cfg.MaxToolRounds {
			log.Warn("Tool round limit reached, abandoning turn", "rounds", rounds)
			r.pushError(ctx, dispatcher, llm.KindGeneralError,
				"The model requested too many chained tool calls.")
			return
		}

		outputs := r.executeCalls(ctx, log, calls)

		// The session is preserved untouched across this blocking call;
		// it resumes consuming the continuation stream afterwards.
		next, err := r.streamer.SubmitToolOutputs(ctx, session.ResponseID(), outputs)
		if err != nil {
			kind := llm.Classify(err)
			message, _ := llm.UserMessage(kind)
			log.Warn("Failed to submit tool outputs", "kind", kind, "error", err)
			r.pushError(ctx, dispatcher, kind, message)
			return
		}
		ch = next
	}
}

// executeCalls runs each completed call through the registry, strictly in
// call-completion order. Unknown tools and failures become structured
// payloads for the model; nothing raises.
func (r *Runner) executeCalls(ctx context.Context, log *slog.Logger, calls []stream.ToolCall) []llm.ToolOutput {
	outputs := make([]llm.ToolOutput, 0, len(calls))
	for _, call := range calls {
		result := r.registry.Run(ctx, call.Name, call.Arguments)
		if !result.Success {
			log.Info("Tool call resolved with failure payload",
				"tool", call.Name, "call_id", call.CallID, "error_code", result.ErrorCode)
		}
		outputs = append(outputs, llm.ToolOutput{CallID: call.CallID, Output: result.JSON()})
	}
	return outputs
}

func (r *Runner) pushError(ctx context.Context, dispatcher *stream.Dispatcher, kind llm.ErrorKind, message string) {
	// Route through the dispatcher so the session is marked errored too.
	_ = dispatcher.Handle(ctx, stream.ErrorEvent{Kind: string(kind), Message: message})
}

func (r *Runner) persistUserMessage(ctx context.Context, log *slog.Logger, in TurnInput) {
	if r.store == nil {
		return
	}
	err := r.store.Append(ctx, in.ConversationID, history.Entry{
		Role:      history.RoleUser,
		Content:   in.Message,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Warn("Failed to persist user message", "error", err)
	}
}

// persistOutcome appends the assistant entry. Runs on a non-cancellable
// context: the client disconnecting must not lose a finished record.
func (r *Runner) persistOutcome(ctx context.Context, conversationID string, outcome stream.Outcome) error {
	if r.store == nil {
		return nil
	}
	if outcome.Text == "" && outcome.Record == nil {
		return nil
	}
	return r.store.Append(context.WithoutCancel(ctx), conversationID, history.Entry{
		Role:       history.RoleAssistant,
		Content:    outcome.Text,
		ResponseID: outcome.ResponseID,
		Reasoning:  outcome.Record,
		CreatedAt:  time.Now().UTC(),
	})
}
