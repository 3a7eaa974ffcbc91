package stream

import (
	"context"
	"log/slog"

	"github.com/loomworks/loom/pkg/events"
)

// Emitter is where derived client events go. *events.Queue satisfies it.
type Emitter interface {
	Push(ctx context.Context, ev events.ClientEvent) error
}

// Dispatcher routes each source event to exactly one handler by its
// concrete type. Handlers mutate the session and push zero or more client
// events, preserving the relative order of the triggering source events.
// Malformed or incomplete events are logged and skipped; unknown event
// types are silently ignored for forward compatibility. A single bad event
// never aborts the session.
type Dispatcher struct {
	session *Session
	emitter Emitter
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher bound to one session and one emitter.
// logger may be nil.
func NewDispatcher(session *Session, emitter Emitter, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{session: session, emitter: emitter, logger: logger}
}

// Handle processes one source event. The only error it returns is a push
// cancellation (consumer side torn down); everything else degrades to a
// logged no-op.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case ResponseCreatedEvent:
		return d.handleResponseCreated(ctx, e)
	case TextDeltaEvent:
		return d.handleTextDelta(ctx, e)
	case TextDoneEvent:
		return d.handleTextDone(ctx, e)
	case ReasoningPartAddedEvent:
		return d.handleReasoningPartAdded(ctx, e)
	case ReasoningPartDoneEvent:
		return d.handleReasoningPartDone(ctx, e)
	case ReasoningTextDeltaEvent:
		return d.handleReasoningTextDelta(ctx, e)
	case ReasoningTextDoneEvent:
		d.session.setFinalSummary(e.Text)
		return nil
	case SearchLifecycleEvent:
		return d.handleSearchLifecycle(ctx, e)
	case SearchItemDoneEvent:
		return d.handleSearchItemDone(e)
	case MessageItemDoneEvent:
		return d.handleMessageItemDone(e)
	case FunctionCallStartedEvent:
		return d.handleFunctionCallStarted(e)
	case FunctionCallArgsEvent:
		return d.handleFunctionCallArgs(e)
	case FunctionCallDoneEvent:
		return d.handleFunctionCallDone(e)
	case ResponseCompletedEvent:
		return d.handleResponseCompleted(ctx, e)
	case ResponseFailedEvent:
		return d.handleResponseFailed(ctx, e)
	case ErrorEvent:
		return d.handleError(ctx, e)
	default:
		// Unknown event type; the vendor adds types over time.
		return nil
	}
}

func (d *Dispatcher) handleResponseCreated(ctx context.Context, e ResponseCreatedEvent) error {
	if e.ResponseID == "" {
		d.logger.Warn("response.created without response id")
	}
	firstResponse := !d.session.createdSeen
	d.session.createdSeen = true
	d.session.setResponseID(e.ResponseID)
	if !firstResponse {
		// Tool continuation; the client already has a text_created.
		return nil
	}
	return d.emitter.Push(ctx, events.ClientEvent{
		Kind:       events.KindTextCreated,
		ResponseID: e.ResponseID,
	})
}

func (d *Dispatcher) handleTextDelta(ctx context.Context, e TextDeltaEvent) error {
	if e.Delta == "" {
		return nil
	}
	d.session.appendText(e.Delta)
	return d.emitter.Push(ctx, events.ClientEvent{
		Kind:  events.KindTextDelta,
		Delta: e.Delta,
	})
}

func (d *Dispatcher) handleTextDone(ctx context.Context, e TextDoneEvent) error {
	d.session.setFinalText(e.Text)
	return d.emitter.Push(ctx, events.ClientEvent{
		Kind: events.KindTextDone,
		Text: e.Text,
	})
}

func (d *Dispatcher) handleReasoningPartAdded(ctx context.Context, e ReasoningPartAddedEvent) error {
	if e.ItemID == "" {
		d.logger.Warn("reasoning part.added missing item id, skipping")
		return nil
	}
	first := d.session.addReasoningPart(e.ItemID, e.SummaryIndex, e.Text)
	kind := events.KindReasoningInProgress
	if first {
		kind = events.KindReasoningStarted
	}
	return d.emitter.Push(ctx, events.ClientEvent{
		Kind:         kind,
		ItemID:       e.ItemID,
		SummaryIndex: e.SummaryIndex,
	})
}

func (d *Dispatcher) handleReasoningPartDone(ctx context.Context, e ReasoningPartDoneEvent) error {
	if e.ItemID == "" {
		d.logger.Warn("reasoning part.done missing item id, skipping")
		return nil
	}
	if !d.session.completeReasoningPart(e.ItemID, e.SummaryIndex, e.Text) {
		// Already completed; one reasoning_completed per part id.
		return nil
	}
	return d.emitter.Push(ctx, events.ClientEvent{
		Kind:         events.KindReasoningCompleted,
		ItemID:       e.ItemID,
		SummaryIndex: e.SummaryIndex,
	})
}

func (d *Dispatcher) handleReasoningTextDelta(ctx context.Context, e ReasoningTextDeltaEvent) error {
	if e.Delta == "" {
		return nil
	}
	d.session.appendSummaryDelta(e.Delta)
	// Continuous "thinking" signal for the UI.
	return d.emitter.Push(ctx, events.ClientEvent{
		Kind:  events.KindReasoningInProgress,
		Delta: e.Delta,
	})
}

func (d *Dispatcher) handleSearchLifecycle(ctx context.Context, e SearchLifecycleEvent) error {
	if e.ItemID == "" {
		d.logger.Warn("web search lifecycle event missing item id, skipping",
			"status", e.Status)
		return nil
	}
	d.session.recordSearchLifecycle(e)

	var kind events.Kind
	switch e.Status {
	case SearchStatusInProgress:
		kind = events.KindSearchStarted
	case SearchStatusSearching:
		kind = events.KindSearchInProgress
	case SearchStatusCompleted, SearchStatusFailed:
		kind = events.KindSearchCompleted
	default:
		d.logger.Warn("unknown web search status, skipping",
			"item_id", e.ItemID, "status", e.Status)
		return nil
	}
	return d.emitter.Push(ctx, events.ClientEvent{
		Kind:   kind,
		ItemID: e.ItemID,
		Status: string(e.Status),
	})
}

func (d *Dispatcher) handleSearchItemDone(e SearchItemDoneEvent) error {
	if e.ItemID == "" {
		d.logger.Warn("web search output item missing item id, skipping")
		return nil
	}
	d.session.recordSearchItem(e)
	return nil
}

func (d *Dispatcher) handleMessageItemDone(e MessageItemDoneEvent) error {
	if e.ItemID == "" {
		d.logger.Warn("message output item missing item id, skipping")
		return nil
	}
	d.session.recordMessage(MessageItem{ItemID: e.ItemID, Role: e.Role, Text: e.Text})
	return nil
}

func (d *Dispatcher) handleFunctionCallStarted(e FunctionCallStartedEvent) error {
	if e.ItemID == "" || e.Name == "" {
		d.logger.Warn("function call item missing id or name, skipping",
			"item_id", e.ItemID, "name", e.Name)
		return nil
	}
	d.session.startToolCall(e.ItemID, e.CallID, e.Name, e.Arguments)
	return nil
}

func (d *Dispatcher) handleFunctionCallArgs(e FunctionCallArgsEvent) error {
	if !d.session.appendToolCallArgs(e.ItemID, e.Delta) {
		d.logger.Warn("argument fragment for unknown function call, skipping",
			"item_id", e.ItemID)
	}
	return nil
}

func (d *Dispatcher) handleFunctionCallDone(e FunctionCallDoneEvent) error {
	if _, ok := d.session.finishToolCall(e.ItemID, e.Arguments); !ok {
		d.logger.Warn("arguments.done for unknown function call, skipping",
			"item_id", e.ItemID)
	}
	return nil
}

func (d *Dispatcher) handleResponseCompleted(ctx context.Context, e ResponseCompletedEvent) error {
	d.session.setResponseID(e.ResponseID)
	d.session.recordUsage(e.InputTokens, e.OutputTokens)
	d.session.completed = true
	if len(d.session.completedCalls) > 0 {
		// The model is waiting for tool outputs; the turn is not done.
		return nil
	}
	return d.emitter.Push(ctx, events.ClientEvent{
		Kind:       events.KindResponseDone,
		ResponseID: d.session.ResponseID(),
	})
}

func (d *Dispatcher) handleResponseFailed(ctx context.Context, e ResponseFailedEvent) error {
	d.session.setResponseID(e.ResponseID)
	d.session.failed = true
	msg := e.Reason
	if msg == "" {
		msg = "the model provider reported a failed response"
	}
	return d.emitter.Push(ctx, events.ClientEvent{
		Kind: events.KindError,
		Error: &events.ErrorInfo{
			Kind:       "general_error",
			Message:    msg,
			Suggestion: "Try again; partial results were kept.",
		},
	})
}

func (d *Dispatcher) handleError(ctx context.Context, e ErrorEvent) error {
	d.session.errored = true
	d.logger.Warn("stream transport error", "kind", e.Kind, "message", e.Message)
	return d.emitter.Push(ctx, events.ClientEvent{
		Kind: events.KindError,
		Error: &events.ErrorInfo{
			Kind:    e.Kind,
			Message: e.Message,
		},
	})
}
