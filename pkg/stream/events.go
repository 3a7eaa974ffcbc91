// Package stream implements the response event correlation engine: it
// consumes the ordered, interleaved event stream of a single generation
// attempt, forwards a normalized live view to the client, and assembles one
// consolidated record for storage.
package stream

// Event is the interface for all source stream event types.
type Event interface {
	eventType() EventType
}

// EventType identifies the kind of source event.
type EventType string

const (
	EventTypeResponseCreated      EventType = "response.created"
	EventTypeTextDelta            EventType = "response.output_text.delta"
	EventTypeTextDone             EventType = "response.output_text.done"
	EventTypeReasoningPartAdded   EventType = "response.reasoning_summary_part.added"
	EventTypeReasoningPartDone    EventType = "response.reasoning_summary_part.done"
	EventTypeReasoningTextDelta   EventType = "response.reasoning_summary_text.delta"
	EventTypeReasoningTextDone    EventType = "response.reasoning_summary_text.done"
	EventTypeSearchLifecycle      EventType = "response.web_search_call"
	EventTypeSearchItemDone       EventType = "response.output_item.web_search_call.done"
	EventTypeMessageItemDone      EventType = "response.output_item.message.done"
	EventTypeFunctionCallStarted  EventType = "response.output_item.function_call.added"
	EventTypeFunctionCallArgs     EventType = "response.function_call_arguments.delta"
	EventTypeFunctionCallDone     EventType = "response.function_call_arguments.done"
	EventTypeResponseCompleted    EventType = "response.completed"
	EventTypeResponseFailed       EventType = "response.failed"
	EventTypeError                EventType = "error"
)

// SearchStatus is the lifecycle status of a web-search tool invocation.
type SearchStatus string

const (
	SearchStatusInProgress SearchStatus = "in_progress"
	SearchStatusSearching  SearchStatus = "searching"
	SearchStatusCompleted  SearchStatus = "completed"
	SearchStatusFailed     SearchStatus = "failed"
)

// ResponseCreatedEvent marks the start of a generation attempt.
type ResponseCreatedEvent struct{ ResponseID string }

// TextDeltaEvent carries an incremental piece of the answer text.
type TextDeltaEvent struct{ Delta string }

// TextDoneEvent carries the authoritative full answer text.
type TextDoneEvent struct{ Text string }

// ReasoningPartAddedEvent opens a new reasoning summary part.
type ReasoningPartAddedEvent struct {
	ItemID       string
	SummaryIndex int
	Text         string
}

// ReasoningPartDoneEvent closes a reasoning summary part.
type ReasoningPartDoneEvent struct {
	ItemID       string
	SummaryIndex int
	Text         string
}

// ReasoningTextDeltaEvent carries an incremental piece of the summary text.
type ReasoningTextDeltaEvent struct{ Delta string }

// ReasoningTextDoneEvent carries the authoritative full summary text.
// Treated as more reliable than the accumulated deltas.
type ReasoningTextDoneEvent struct{ Text string }

// SearchLifecycleEvent is a status-only notification that a web-search tool
// invocation changed state. Carries no content.
type SearchLifecycleEvent struct {
	ItemID         string
	Status         SearchStatus
	OutputIndex    int
	SequenceNumber int
}

// SearchItemDoneEvent is the content-bearing output item for a completed
// web search. The vendor omits it in some cases; lifecycle events are then
// the only trace of the search.
type SearchItemDoneEvent struct {
	ItemID     string
	Status     SearchStatus
	ActionType string // "search", "open_page", "find"
	Query      string
	URL        string
	Pattern    string
	Sources    []string
}

// MessageItemDoneEvent is the structured message output item, emitted once
// the assistant message is complete.
type MessageItemDoneEvent struct {
	ItemID string
	Role   string
	Text   string
}

// FunctionCallStartedEvent announces a function-call output item. Arguments
// follow as FunctionCallArgsEvent fragments.
type FunctionCallStartedEvent struct {
	ItemID    string
	CallID    string
	Name      string
	Arguments string // initial fragment, usually empty
}

// FunctionCallArgsEvent carries a streamed argument fragment for a call.
type FunctionCallArgsEvent struct {
	ItemID string
	Delta  string
}

// FunctionCallDoneEvent marks a function call's arguments as complete.
type FunctionCallDoneEvent struct {
	ItemID    string
	Arguments string
}

// ResponseCompletedEvent terminates the attempt successfully.
type ResponseCompletedEvent struct {
	ResponseID   string
	InputTokens  int64
	OutputTokens int64
}

// ResponseFailedEvent terminates the attempt with a provider-side failure.
type ResponseFailedEvent struct {
	ResponseID string
	Reason     string
}

// ErrorEvent signals a transport failure. Kind is one of the llm error
// kinds; the stream ends after it.
type ErrorEvent struct {
	Kind    string
	Message string
}

func (ResponseCreatedEvent) eventType() EventType     { return EventTypeResponseCreated }
func (TextDeltaEvent) eventType() EventType           { return EventTypeTextDelta }
func (TextDoneEvent) eventType() EventType            { return EventTypeTextDone }
func (ReasoningPartAddedEvent) eventType() EventType  { return EventTypeReasoningPartAdded }
func (ReasoningPartDoneEvent) eventType() EventType   { return EventTypeReasoningPartDone }
func (ReasoningTextDeltaEvent) eventType() EventType  { return EventTypeReasoningTextDelta }
func (ReasoningTextDoneEvent) eventType() EventType   { return EventTypeReasoningTextDone }
func (SearchLifecycleEvent) eventType() EventType     { return EventTypeSearchLifecycle }
func (SearchItemDoneEvent) eventType() EventType      { return EventTypeSearchItemDone }
func (MessageItemDoneEvent) eventType() EventType     { return EventTypeMessageItemDone }
func (FunctionCallStartedEvent) eventType() EventType { return EventTypeFunctionCallStarted }
func (FunctionCallArgsEvent) eventType() EventType    { return EventTypeFunctionCallArgs }
func (FunctionCallDoneEvent) eventType() EventType    { return EventTypeFunctionCallDone }
func (ResponseCompletedEvent) eventType() EventType   { return EventTypeResponseCompleted }
func (ResponseFailedEvent) eventType() EventType      { return EventTypeResponseFailed }
func (ErrorEvent) eventType() EventType               { return EventTypeError }
