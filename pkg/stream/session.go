package stream

import (
	"fmt"
	"strings"
)

// Session is the per-attempt correlation state. One session is created on
// the first response.created event of a turn and is exclusively owned by
// the worker driving that turn, so no locking is needed here. The session
// survives tool-output resubmission: the same state keeps accumulating
// against the continuation stream.
type Session struct {
	policy MergePolicy

	responseID  string
	createdSeen bool

	// Answer text: accumulated deltas plus the authoritative done text.
	textBuf   strings.Builder
	finalText string
	hasFinal  bool

	reasoning reasoningState

	// Correlation store for web searches: lifecycle notifications and
	// content-bearing output items, keyed by item id, plus first-seen
	// order across both maps.
	searchLifecycle map[string]SearchLifecycleEvent
	searchItems     map[string]SearchItemDoneEvent
	searchOrder     []string

	messages []MessageItem

	// Tool-call argument buffers keyed by output item id. A buffer exists
	// from the first argument fragment until the call is marked done, at
	// which point it moves to completedCalls (completion order) and is
	// removed, so each call resolves exactly once.
	callBuffers    map[string]*toolCallBuffer
	completedCalls []ToolCall

	usage     *TokenUsage
	completed bool
	failed    bool
	errored   bool

	outcome *Outcome // cached by Finalize for idempotence
}

type toolCallBuffer struct {
	callID string
	name   string
	args   strings.Builder
}

// reasoningState builds the ordered summary-part list and the running
// summary text. Completion is tracked per part, not per response.
type reasoningState struct {
	parts      []string
	partIndex  map[string]int // part key → index into parts
	summaryBuf strings.Builder
	finalText  string
	hasFinal   bool
	started    bool
	donePart   map[string]bool
}

func partKey(itemID string, summaryIndex int) string {
	return fmt.Sprintf("%s/%d", itemID, summaryIndex)
}

// NewSession creates an empty session with the given merge policy.
func NewSession(policy MergePolicy) *Session {
	return &Session{
		policy:          policy,
		searchLifecycle: make(map[string]SearchLifecycleEvent),
		searchItems:     make(map[string]SearchItemDoneEvent),
		callBuffers:     make(map[string]*toolCallBuffer),
		reasoning: reasoningState{
			partIndex: make(map[string]int),
			donePart:  make(map[string]bool),
		},
	}
}

// ResponseID returns the id of the response currently being consumed. Tool
// continuations update it as each response.created arrives.
func (s *Session) ResponseID() string { return s.responseID }

func (s *Session) setResponseID(id string) {
	if id != "" {
		s.responseID = id
	}
}

func (s *Session) appendText(delta string) {
	s.textBuf.WriteString(delta)
}

func (s *Session) setFinalText(text string) {
	s.finalText = text
	s.hasFinal = true
}

// Text returns the accumulated answer text, preferring the authoritative
// done text over concatenated deltas.
func (s *Session) Text() string {
	if s.hasFinal {
		return s.finalText
	}
	return s.textBuf.String()
}

// addReasoningPart appends a summary part. Returns true when this is the
// first part of the session.
func (s *Session) addReasoningPart(itemID string, summaryIndex int, text string) (first bool) {
	key := partKey(itemID, summaryIndex)
	if idx, ok := s.reasoning.partIndex[key]; ok {
		// Duplicate part.added for the same key: keep the later fragment.
		s.reasoning.parts[idx] = text
		return false
	}
	s.reasoning.partIndex[key] = len(s.reasoning.parts)
	s.reasoning.parts = append(s.reasoning.parts, text)
	first = !s.reasoning.started
	s.reasoning.started = true
	return first
}

// completeReasoningPart marks a part done, overwriting its text when the
// done event carries the authoritative version. Returns false when the
// part was already completed (no duplicate client event).
func (s *Session) completeReasoningPart(itemID string, summaryIndex int, text string) bool {
	key := partKey(itemID, summaryIndex)
	if s.reasoning.donePart[key] {
		return false
	}
	s.reasoning.donePart[key] = true
	if text != "" {
		if idx, ok := s.reasoning.partIndex[key]; ok {
			s.reasoning.parts[idx] = text
		}
	}
	return true
}

func (s *Session) appendSummaryDelta(delta string) {
	s.reasoning.summaryBuf.WriteString(delta)
}

func (s *Session) setFinalSummary(text string) {
	s.reasoning.finalText = text
	s.reasoning.hasFinal = true
}

func (s *Session) summaryText() string {
	if s.reasoning.hasFinal {
		return s.reasoning.finalText
	}
	return s.reasoning.summaryBuf.String()
}

// recordSearchLifecycle stores a lifecycle notification. Returns true when
// this is the first time the item id is seen at all.
func (s *Session) recordSearchLifecycle(ev SearchLifecycleEvent) (first bool) {
	first = s.trackSearchOrder(ev.ItemID)
	s.searchLifecycle[ev.ItemID] = ev
	return first
}

func (s *Session) recordSearchItem(ev SearchItemDoneEvent) {
	s.trackSearchOrder(ev.ItemID)
	s.searchItems[ev.ItemID] = ev
}

func (s *Session) trackSearchOrder(itemID string) (first bool) {
	_, inLifecycle := s.searchLifecycle[itemID]
	_, inItems := s.searchItems[itemID]
	if inLifecycle || inItems {
		return false
	}
	s.searchOrder = append(s.searchOrder, itemID)
	return true
}

func (s *Session) recordMessage(item MessageItem) {
	s.messages = append(s.messages, item)
}

// startToolCall opens an argument buffer for a function call.
func (s *Session) startToolCall(itemID, callID, name, initialArgs string) {
	buf := &toolCallBuffer{callID: callID, name: name}
	buf.args.WriteString(initialArgs)
	s.callBuffers[itemID] = buf
}

// appendToolCallArgs appends a streamed fragment. Returns false when no
// buffer exists for the item (malformed or out-of-order event).
func (s *Session) appendToolCallArgs(itemID, delta string) bool {
	buf, ok := s.callBuffers[itemID]
	if !ok {
		return false
	}
	buf.args.WriteString(delta)
	return true
}

// finishToolCall resolves a call buffer into a completed call. The done
// event's arguments win over the accumulated fragments when present. The
// buffer is removed so the call can never resolve twice.
func (s *Session) finishToolCall(itemID, doneArgs string) (ToolCall, bool) {
	buf, ok := s.callBuffers[itemID]
	if !ok {
		return ToolCall{}, false
	}
	delete(s.callBuffers, itemID)
	args := buf.args.String()
	if doneArgs != "" {
		args = doneArgs
	}
	call := ToolCall{CallID: buf.callID, Name: buf.name, Arguments: args}
	s.completedCalls = append(s.completedCalls, call)
	return call, true
}

// TakeCompletedCalls returns the calls completed since the last take, in
// call-completion order, and clears them. The tool sub-loop submits their
// outputs strictly in this order.
func (s *Session) TakeCompletedCalls() []ToolCall {
	calls := s.completedCalls
	s.completedCalls = nil
	return calls
}

func (s *Session) recordUsage(input, output int64) {
	if input == 0 && output == 0 {
		return
	}
	s.usage = &TokenUsage{InputTokens: input, OutputTokens: output}
}

// Completed reports whether a terminal response.completed was seen.
func (s *Session) Completed() bool { return s.completed }

// Errored reports whether the stream ended with a transport error or a
// provider-side failure. The tool sub-loop must not resubmit after this.
func (s *Session) Errored() bool { return s.errored || s.failed }
