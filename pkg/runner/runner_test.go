package runner

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/events"
	"github.com/loomworks/loom/pkg/history"
	"github.com/loomworks/loom/pkg/llm"
	"github.com/loomworks/loom/pkg/stream"
	"github.com/loomworks/loom/pkg/tools"
)

// scriptedStreamer plays back pre-written event scripts: one for the
// initial stream, then one continuation per tool-output submission. It
// records every request and submission for assertions.
type scriptedStreamer struct {
	initial       []stream.Event
	continuations [][]stream.Event
	streamErr     error
	submitErr     error

	requests    []llm.Request
	submissions []submission
}

type submission struct {
	responseID string
	outputs    []llm.ToolOutput
}

func (s *scriptedStreamer) Stream(_ context.Context, req llm.Request) (<-chan stream.Event, error) {
	s.requests = append(s.requests, req)
	if s.streamErr != nil {
		return nil, s.streamErr
	}
	return playback(s.initial), nil
}

func (s *scriptedStreamer) SubmitToolOutputs(_ context.Context, responseID string, outputs []llm.ToolOutput) (<-chan stream.Event, error) {
	s.submissions = append(s.submissions, submission{responseID: responseID, outputs: outputs})
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	if len(s.continuations) == 0 {
		return playback(nil), nil
	}
	next := s.continuations[0]
	s.continuations = s.continuations[1:]
	return playback(next), nil
}

func playback(evs []stream.Event) <-chan stream.Event {
	ch := make(chan stream.Event, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	return ch
}

// memStore is an in-memory ConversationStore.
type memStore struct {
	entries   map[string][]history.Entry
	appendErr error
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string][]history.Entry)}
}

func (m *memStore) Append(_ context.Context, conversationID string, entry history.Entry) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.entries[conversationID] = append(m.entries[conversationID], entry)
	return nil
}

func (m *memStore) Entries(_ context.Context, conversationID string) ([]history.Entry, error) {
	return m.entries[conversationID], nil
}

func (m *memStore) LastResponseID(_ context.Context, conversationID string) (string, error) {
	log := m.entries[conversationID]
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Role == history.RoleAssistant && log[i].ResponseID != "" {
			return log[i].ResponseID, nil
		}
	}
	return "", nil
}

func mustRegistry(t *testing.T, ts ...tools.Tool) *tools.Registry {
	t.Helper()
	r, err := tools.NewRegistry(ts...)
	require.NoError(t, err)
	return r
}

func echoTool() tools.Tool {
	type args struct {
		Value string `json:"value"`
	}
	return tools.New("echo", "Returns its argument.",
		func(_ context.Context, a args) (any, error) {
			return map[string]string{"echoed": a.Value}, nil
		})
}

func runTurn(t *testing.T, s *scriptedStreamer, store history.ConversationStore, cfg Config, in TurnInput) (*TurnResult, []events.ClientEvent, error) {
	t.Helper()
	r := New(s, mustRegistry(t, echoTool()), store, cfg)
	q := events.NewQueue(128)
	result, err := r.RunTurn(context.Background(), q, in)

	var clientEvents []events.ClientEvent
	for ev := range q.Events() {
		clientEvents = append(clientEvents, ev)
	}
	return result, clientEvents, err
}

func kindsOf(evs []events.ClientEvent) []events.Kind {
	out := make([]events.Kind, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Kind)
	}
	return out
}

func TestRunTurn_PlainTextTurn(t *testing.T) {
	s := &scriptedStreamer{initial: []stream.Event{
		stream.ResponseCreatedEvent{ResponseID: "resp_1"},
		stream.TextDeltaEvent{Delta: "Hel"},
		stream.TextDeltaEvent{Delta: "lo"},
		stream.TextDoneEvent{Text: "Hello"},
		stream.ResponseCompletedEvent{ResponseID: "resp_1"},
	}}
	store := newMemStore()

	result, clientEvents, err := runTurn(t, s, store, Config{}, TurnInput{
		ConversationID: "conv_1", Message: "greet me",
	})
	require.NoError(t, err)

	assert.Equal(t, []events.Kind{
		events.KindTextCreated,
		events.KindTextDelta,
		events.KindTextDelta,
		events.KindTextDone,
		events.KindResponseDone,
	}, kindsOf(clientEvents))

	assert.Equal(t, "Hello", result.Text)
	assert.Equal(t, "resp_1", result.ResponseID)
	assert.NoError(t, result.PersistErr)
	assert.Empty(t, s.submissions)

	log := store.entries["conv_1"]
	require.Len(t, log, 2)
	assert.Equal(t, history.RoleUser, log[0].Role)
	assert.Equal(t, "greet me", log[0].Content)
	assert.Equal(t, history.RoleAssistant, log[1].Role)
	assert.Equal(t, "Hello", log[1].Content)
	assert.Equal(t, "resp_1", log[1].ResponseID)
}

func TestRunTurn_ToolCallRoundTrip(t *testing.T) {
	s := &scriptedStreamer{
		initial: []stream.Event{
			stream.ResponseCreatedEvent{ResponseID: "resp_1"},
			stream.FunctionCallStartedEvent{ItemID: "fc_1", CallID: "call_1", Name: "echo"},
			stream.FunctionCallArgsEvent{ItemID: "fc_1", Delta: `{"value":`},
			stream.FunctionCallArgsEvent{ItemID: "fc_1", Delta: `"ping"}`},
			stream.FunctionCallDoneEvent{ItemID: "fc_1"},
			stream.ResponseCompletedEvent{ResponseID: "resp_1"},
		},
		continuations: [][]stream.Event{{
			stream.ResponseCreatedEvent{ResponseID: "resp_2"},
			stream.TextDoneEvent{Text: "pong"},
			stream.ResponseCompletedEvent{ResponseID: "resp_2"},
		}},
	}

	result, clientEvents, err := runTurn(t, s, nil, Config{}, TurnInput{Message: "use the tool"})
	require.NoError(t, err)

	require.Len(t, s.submissions, 1)
	sub := s.submissions[0]
	assert.Equal(t, "resp_1", sub.responseID)
	require.Len(t, sub.outputs, 1)
	assert.Equal(t, "call_1", sub.outputs[0].CallID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(sub.outputs[0].Output), &payload))
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, map[string]any{"echoed": "ping"}, payload["result"])

	// One text_created, one response_done for the whole turn.
	assert.Equal(t, []events.Kind{
		events.KindTextCreated,
		events.KindTextDone,
		events.KindResponseDone,
	}, kindsOf(clientEvents))

	assert.Equal(t, "pong", result.Text)
	assert.Equal(t, "resp_2", result.ResponseID)
}

func TestRunTurn_UnknownToolSubmitsStructuredFailure(t *testing.T) {
	s := &scriptedStreamer{
		initial: []stream.Event{
			stream.ResponseCreatedEvent{ResponseID: "resp_1"},
			stream.FunctionCallStartedEvent{ItemID: "fc_1", CallID: "call_1", Name: "nonexistent"},
			stream.FunctionCallDoneEvent{ItemID: "fc_1", Arguments: "{}"},
			stream.ResponseCompletedEvent{ResponseID: "resp_1"},
		},
		continuations: [][]stream.Event{{
			stream.ResponseCreatedEvent{ResponseID: "resp_2"},
			stream.TextDoneEvent{Text: "sorry, no such tool"},
			stream.ResponseCompletedEvent{ResponseID: "resp_2"},
		}},
	}

	result, _, err := runTurn(t, s, nil, Config{}, TurnInput{Message: "try it"})
	require.NoError(t, err)

	// The miss is submitted to the model as a payload, exactly once.
	require.Len(t, s.submissions, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(s.submissions[0].outputs[0].Output), &payload))
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, tools.CodeToolNotFound, payload["error_code"])

	assert.Equal(t, "sorry, no such tool", result.Text)
}

func TestRunTurn_MultipleCallsSubmittedInCompletionOrder(t *testing.T) {
	s := &scriptedStreamer{
		initial: []stream.Event{
			stream.ResponseCreatedEvent{ResponseID: "resp_1"},
			stream.FunctionCallStartedEvent{ItemID: "fc_a", CallID: "call_a", Name: "echo"},
			stream.FunctionCallStartedEvent{ItemID: "fc_b", CallID: "call_b", Name: "echo"},
			// fc_b completes before fc_a.
			stream.FunctionCallDoneEvent{ItemID: "fc_b", Arguments: `{"value":"b"}`},
			stream.FunctionCallDoneEvent{ItemID: "fc_a", Arguments: `{"value":"a"}`},
			stream.ResponseCompletedEvent{ResponseID: "resp_1"},
		},
		continuations: [][]stream.Event{{
			stream.ResponseCreatedEvent{ResponseID: "resp_2"},
			stream.ResponseCompletedEvent{ResponseID: "resp_2"},
		}},
	}

	_, _, err := runTurn(t, s, nil, Config{}, TurnInput{Message: "two calls"})
	require.NoError(t, err)

	require.Len(t, s.submissions, 1)
	outputs := s.submissions[0].outputs
	require.Len(t, outputs, 2)
	assert.Equal(t, "call_b", outputs[0].CallID)
	assert.Equal(t, "call_a", outputs[1].CallID)
}

func TestRunTurn_ToolRoundLimit(t *testing.T) {
	callScript := func(respID string) []stream.Event {
		return []stream.Event{
			stream.ResponseCreatedEvent{ResponseID: respID},
			stream.FunctionCallStartedEvent{ItemID: "fc_" + respID, CallID: "call_" + respID, Name: "echo"},
			stream.FunctionCallDoneEvent{ItemID: "fc_" + respID, Arguments: `{"value":"again"}`},
			stream.ResponseCompletedEvent{ResponseID: respID},
		}
	}
	s := &scriptedStreamer{
		initial: callScript("resp_1"),
		continuations: [][]stream.Event{
			callScript("resp_2"),
			callScript("resp_3"),
		},
	}

	result, clientEvents, err := runTurn(t, s, nil, Config{MaxToolRounds: 1},
		TurnInput{Message: "loop forever"})
	require.NoError(t, err)

	// Round 1 ran; the chained second round exceeds the cap.
	assert.Len(t, s.submissions, 1)
	last := clientEvents[len(clientEvents)-1]
	require.Equal(t, events.KindError, last.Kind)
	require.NotNil(t, last.Error)
	assert.Contains(t, last.Error.Message, "too many chained tool calls")
	assert.NotNil(t, result)
}

func TestRunTurn_StreamSetupFailure(t *testing.T) {
	s := &scriptedStreamer{streamErr: errors.New("dial tcp: connection refused")}

	result, clientEvents, err := runTurn(t, s, nil, Config{}, TurnInput{Message: "hi"})
	require.Error(t, err)
	assert.Nil(t, result)

	require.Len(t, clientEvents, 1)
	require.Equal(t, events.KindError, clientEvents[0].Kind)
	require.NotNil(t, clientEvents[0].Error)
	assert.Equal(t, string(llm.KindConnectionError), clientEvents[0].Error.Kind)
	assert.NotEmpty(t, clientEvents[0].Error.Suggestion)
}

func TestRunTurn_MidStreamErrorKeepsPartialResult(t *testing.T) {
	s := &scriptedStreamer{initial: []stream.Event{
		stream.ResponseCreatedEvent{ResponseID: "resp_1"},
		stream.TextDeltaEvent{Delta: "partial ans"},
		stream.ErrorEvent{Kind: string(llm.KindConnectionError), Message: "upstream dropped"},
	}}
	store := newMemStore()

	result, clientEvents, err := runTurn(t, s, store, Config{}, TurnInput{
		ConversationID: "conv_1", Message: "hi",
	})
	require.NoError(t, err)

	assert.Equal(t, events.KindError, clientEvents[len(clientEvents)-1].Kind)
	assert.Equal(t, "partial ans", result.Text)
	assert.Empty(t, s.submissions)

	// The partial answer is still persisted.
	log := store.entries["conv_1"]
	require.Len(t, log, 2)
	assert.Equal(t, "partial ans", log[1].Content)
}

func TestRunTurn_ExhaustedStreamFinalizesPartialState(t *testing.T) {
	// The stream just ends, no response.completed and no error event.
	s := &scriptedStreamer{initial: []stream.Event{
		stream.ResponseCreatedEvent{ResponseID: "resp_1"},
		stream.TextDeltaEvent{Delta: "cut "},
		stream.TextDeltaEvent{Delta: "off"},
	}}

	result, clientEvents, err := runTurn(t, s, nil, Config{}, TurnInput{Message: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "cut off", result.Text)
	assert.Equal(t, "resp_1", result.ResponseID)
	assert.Empty(t, s.submissions)
	// No terminal event arrived, so none is invented for the client.
	assert.NotContains(t, kindsOf(clientEvents), events.KindResponseDone)
}

func TestRunTurn_ErrorSuppressesToolSubLoop(t *testing.T) {
	s := &scriptedStreamer{initial: []stream.Event{
		stream.ResponseCreatedEvent{ResponseID: "resp_1"},
		stream.FunctionCallStartedEvent{ItemID: "fc_1", CallID: "call_1", Name: "echo"},
		stream.FunctionCallDoneEvent{ItemID: "fc_1", Arguments: "{}"},
		stream.ErrorEvent{Kind: string(llm.KindTimeoutError), Message: "timed out"},
	}}

	_, _, err := runTurn(t, s, nil, Config{}, TurnInput{Message: "hi"})
	require.NoError(t, err)
	assert.Empty(t, s.submissions)
}

func TestRunTurn_SubmitFailureSurfacesAsErrorEvent(t *testing.T) {
	s := &scriptedStreamer{
		initial: []stream.Event{
			stream.ResponseCreatedEvent{ResponseID: "resp_1"},
			stream.FunctionCallStartedEvent{ItemID: "fc_1", CallID: "call_1", Name: "echo"},
			stream.FunctionCallDoneEvent{ItemID: "fc_1", Arguments: `{"value":"x"}`},
			stream.ResponseCompletedEvent{ResponseID: "resp_1"},
		},
		submitErr: errors.New("dial tcp: connection refused"),
	}

	result, clientEvents, err := runTurn(t, s, nil, Config{}, TurnInput{Message: "hi"})
	require.NoError(t, err)
	require.Len(t, s.submissions, 1)

	last := clientEvents[len(clientEvents)-1]
	require.Equal(t, events.KindError, last.Kind)
	assert.Equal(t, string(llm.KindConnectionError), last.Error.Kind)
	assert.NotNil(t, result)
}

func TestRunTurn_ThreadsLastResponseIDFromStore(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Append(context.Background(), "conv_1", history.Entry{
		Role: history.RoleAssistant, Content: "earlier", ResponseID: "resp_prev",
	}))

	s := &scriptedStreamer{initial: []stream.Event{
		stream.ResponseCreatedEvent{ResponseID: "resp_1"},
		stream.ResponseCompletedEvent{ResponseID: "resp_1"},
	}}

	_, _, err := runTurn(t, s, store, Config{}, TurnInput{ConversationID: "conv_1", Message: "again"})
	require.NoError(t, err)

	require.Len(t, s.requests, 1)
	assert.Equal(t, "resp_prev", s.requests[0].PreviousResponseID)
}

func TestRunTurn_ExplicitPreviousResponseIDWins(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Append(context.Background(), "conv_1", history.Entry{
		Role: history.RoleAssistant, ResponseID: "resp_old",
	}))

	s := &scriptedStreamer{initial: []stream.Event{
		stream.ResponseCompletedEvent{ResponseID: "resp_1"},
	}}

	_, _, err := runTurn(t, s, store, Config{}, TurnInput{
		ConversationID: "conv_1", Message: "hi", PreviousResponseID: "resp_explicit",
	})
	require.NoError(t, err)
	assert.Equal(t, "resp_explicit", s.requests[0].PreviousResponseID)
}

func TestRunTurn_PersistFailureReportedNotRaised(t *testing.T) {
	store := newMemStore()
	store.appendErr = errors.New("backend down")

	s := &scriptedStreamer{initial: []stream.Event{
		stream.ResponseCreatedEvent{ResponseID: "resp_1"},
		stream.TextDoneEvent{Text: "done"},
		stream.ResponseCompletedEvent{ResponseID: "resp_1"},
	}}

	result, _, err := runTurn(t, s, store, Config{}, TurnInput{ConversationID: "conv_1", Message: "hi"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "done", result.Text)
	assert.ErrorContains(t, result.PersistErr, "backend down")
}

func TestRunTurn_EmptyTurnNotPersisted(t *testing.T) {
	store := newMemStore()
	s := &scriptedStreamer{initial: []stream.Event{
		stream.ResponseCreatedEvent{ResponseID: "resp_1"},
		stream.ResponseCompletedEvent{ResponseID: "resp_1"},
	}}

	result, _, err := runTurn(t, s, store, Config{}, TurnInput{ConversationID: "conv_1", Message: "hi"})
	require.NoError(t, err)
	assert.NoError(t, result.PersistErr)

	// Only the user message lands in the log.
	log := store.entries["conv_1"]
	require.Len(t, log, 1)
	assert.Equal(t, history.RoleUser, log[0].Role)
}
