package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/loomworks/loom/pkg/stream"
)

// streamBufferSize bounds the adapter-side channel. The engine applies its
// own backpressure on the client queue; this buffer only smooths bursts.
const streamBufferSize = 64

// OpenAIOptions configures the Responses API adapter.
type OpenAIOptions struct {
	Model        string
	Instructions string
	// Tools are the local function tools advertised with every attempt.
	Tools []ToolSpec
	// WebSearch additionally advertises the provider-hosted search tool.
	WebSearch bool
	// BaseURL and APIKey override the SDK defaults when set.
	BaseURL string
	APIKey  string
}

// OpenAIStreamer implements Streamer on top of the OpenAI Responses API,
// converting ResponseStreamEventUnion variants into the engine's source
// event union.
type OpenAIStreamer struct {
	client       responses.ResponseService
	model        shared.ResponsesModel
	instructions string
	tools        []responses.ToolUnionParam
	logger       *slog.Logger
}

// NewOpenAIStreamer builds the adapter. Tool parameter schemas are
// marshaled once, up front.
func NewOpenAIStreamer(opts OpenAIOptions) (*OpenAIStreamer, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	var reqOpts []option.RequestOption
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}

	toolParams := make([]responses.ToolUnionParam, 0, len(opts.Tools)+1)
	for _, spec := range opts.Tools {
		tp, err := convertToolSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", spec.Name, err)
		}
		toolParams = append(toolParams, tp)
	}
	if opts.WebSearch {
		toolParams = append(toolParams, responses.ToolUnionParam{
			OfWebSearch: &responses.WebSearchToolParam{Type: "web_search"},
		})
	}

	return &OpenAIStreamer{
		client:       responses.NewResponseService(reqOpts...),
		model:        shared.ResponsesModel(opts.Model),
		instructions: opts.Instructions,
		tools:        toolParams,
		logger:       slog.With("component", "openai_streamer"),
	}, nil
}

func convertToolSpec(spec ToolSpec) (responses.ToolUnionParam, error) {
	encoded, err := json.Marshal(spec.Parameters)
	if err != nil {
		return responses.ToolUnionParam{}, err
	}
	parameters := map[string]any{}
	if err := json.Unmarshal(encoded, &parameters); err != nil {
		return responses.ToolUnionParam{}, err
	}
	return responses.ToolUnionParam{
		OfFunction: &responses.FunctionToolParam{
			Name:        spec.Name,
			Description: param.NewOpt(spec.Description),
			Parameters:  parameters,
			Type:        "function",
		},
	}, nil
}

// Stream starts a new generation attempt.
func (s *OpenAIStreamer) Stream(ctx context.Context, req Request) (<-chan stream.Event, error) {
	params := responses.ResponseNewParams{
		Model: s.model,
		Tools: s.tools,
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(req.Input),
		},
	}
	if s.instructions != "" {
		params.Instructions = param.NewOpt(s.instructions)
	}
	if req.PreviousResponseID != "" {
		params.PreviousResponseID = param.NewOpt(req.PreviousResponseID)
	}
	return s.run(ctx, params)
}

// SubmitToolOutputs feeds tool results back and returns the continuation
// stream for the same turn.
func (s *OpenAIStreamer) SubmitToolOutputs(ctx context.Context, responseID string, outputs []ToolOutput) (<-chan stream.Event, error) {
	if responseID == "" {
		return nil, fmt.Errorf("response id is required to submit tool outputs")
	}
	items := make([]responses.ResponseInputItemUnionParam, 0, len(outputs))
	for _, out := range outputs {
		items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(out.CallID, out.Output))
	}
	params := responses.ResponseNewParams{
		Model:              s.model,
		Tools:              s.tools,
		PreviousResponseID: param.NewOpt(responseID),
		Input:              responses.ResponseNewParamsInputUnion{OfInputItemList: items},
	}
	if s.instructions != "" {
		params.Instructions = param.NewOpt(s.instructions)
	}
	return s.run(ctx, params)
}

func (s *OpenAIStreamer) run(ctx context.Context, params responses.ResponseNewParams) (<-chan stream.Event, error) {
	st := s.client.NewStreaming(ctx, params)

	out := make(chan stream.Event, streamBufferSize)
	go func() {
		defer close(out)
		defer st.Close()
		s.pump(ctx, st, out)
	}()
	return out, nil
}

func (s *OpenAIStreamer) pump(ctx context.Context, st *ssestream.Stream[responses.ResponseStreamEventUnion], out chan<- stream.Event) {
	emit := func(ev stream.Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for st.Next() {
		for _, ev := range convertEvent(st.Current(), s.logger) {
			if !emit(ev) {
				return
			}
		}
	}

	if err := st.Err(); err != nil {
		kind := Classify(err)
		message, _ := UserMessage(kind)
		s.logger.Warn("response stream failed", "kind", kind, "error", err)
		emit(stream.ErrorEvent{Kind: string(kind), Message: message})
	}
}

// convertEvent maps one vendor event to zero or more source events.
// Unknown variants map to nothing; the engine ignores what it does not
// know.
func convertEvent(ev responses.ResponseStreamEventUnion, logger *slog.Logger) []stream.Event {
	switch v := ev.AsAny().(type) {
	case responses.ResponseCreatedEvent:
		return []stream.Event{stream.ResponseCreatedEvent{ResponseID: v.Response.ID}}

	case responses.ResponseTextDeltaEvent:
		return []stream.Event{stream.TextDeltaEvent{Delta: v.Delta}}

	case responses.ResponseTextDoneEvent:
		return []stream.Event{stream.TextDoneEvent{Text: v.Text}}

	case responses.ResponseReasoningSummaryPartAddedEvent:
		return []stream.Event{stream.ReasoningPartAddedEvent{
			ItemID:       v.ItemID,
			SummaryIndex: int(v.SummaryIndex),
			Text:         v.Part.Text,
		}}

	case responses.ResponseReasoningSummaryPartDoneEvent:
		return []stream.Event{stream.ReasoningPartDoneEvent{
			ItemID:       v.ItemID,
			SummaryIndex: int(v.SummaryIndex),
			Text:         v.Part.Text,
		}}

	case responses.ResponseReasoningSummaryTextDeltaEvent:
		return []stream.Event{stream.ReasoningTextDeltaEvent{Delta: v.Delta}}

	case responses.ResponseReasoningSummaryTextDoneEvent:
		return []stream.Event{stream.ReasoningTextDoneEvent{Text: v.Text}}

	case responses.ResponseWebSearchCallInProgressEvent:
		return []stream.Event{stream.SearchLifecycleEvent{
			ItemID:         v.ItemID,
			Status:         stream.SearchStatusInProgress,
			OutputIndex:    int(v.OutputIndex),
			SequenceNumber: int(v.SequenceNumber),
		}}

	case responses.ResponseWebSearchCallSearchingEvent:
		return []stream.Event{stream.SearchLifecycleEvent{
			ItemID:         v.ItemID,
			Status:         stream.SearchStatusSearching,
			OutputIndex:    int(v.OutputIndex),
			SequenceNumber: int(v.SequenceNumber),
		}}

	case responses.ResponseWebSearchCallCompletedEvent:
		return []stream.Event{stream.SearchLifecycleEvent{
			ItemID:         v.ItemID,
			Status:         stream.SearchStatusCompleted,
			OutputIndex:    int(v.OutputIndex),
			SequenceNumber: int(v.SequenceNumber),
		}}

	case responses.ResponseOutputItemAddedEvent:
		if v.Item.Type == "function_call" {
			fc := v.Item.AsFunctionCall()
			return []stream.Event{stream.FunctionCallStartedEvent{
				ItemID:    fc.ID,
				CallID:    fc.CallID,
				Name:      fc.Name,
				Arguments: fc.Arguments,
			}}
		}
		return nil

	case responses.ResponseFunctionCallArgumentsDeltaEvent:
		return []stream.Event{stream.FunctionCallArgsEvent{ItemID: v.ItemID, Delta: v.Delta}}

	case responses.ResponseFunctionCallArgumentsDoneEvent:
		return []stream.Event{stream.FunctionCallDoneEvent{ItemID: v.ItemID, Arguments: v.Arguments}}

	case responses.ResponseOutputItemDoneEvent:
		return convertOutputItemDone(v)

	case responses.ResponseCompletedEvent:
		return []stream.Event{stream.ResponseCompletedEvent{
			ResponseID:   v.Response.ID,
			InputTokens:  v.Response.Usage.InputTokens,
			OutputTokens: v.Response.Usage.OutputTokens,
		}}

	case responses.ResponseFailedEvent:
		return []stream.Event{stream.ResponseFailedEvent{
			ResponseID: v.Response.ID,
			Reason:     v.Response.Error.Message,
		}}

	case responses.ResponseErrorEvent:
		message, _ := UserMessage(KindGeneralError)
		logger.Warn("provider error event", "code", v.Code, "message", v.Message)
		return []stream.Event{stream.ErrorEvent{Kind: string(KindGeneralError), Message: message}}

	default:
		logger.Debug("ignoring vendor event", "type", ev.Type)
		return nil
	}
}

func convertOutputItemDone(v responses.ResponseOutputItemDoneEvent) []stream.Event {
	switch v.Item.Type {
	case "web_search_call":
		ws := v.Item.AsWebSearchCall()
		ev := stream.SearchItemDoneEvent{
			ItemID:     ws.ID,
			Status:     stream.SearchStatus(ws.Status),
			ActionType: string(ws.Action.Type),
			Query:      ws.Action.Query,
			URL:        ws.Action.URL,
			Pattern:    ws.Action.Pattern,
		}
		if ws.Action.Type == "search" {
			for _, src := range ws.Action.AsSearch().Sources {
				ev.Sources = append(ev.Sources, src.URL)
			}
		}
		return []stream.Event{ev}

	case "message":
		msg := v.Item.AsMessage()
		text := ""
		for _, content := range msg.Content {
			text += content.Text
		}
		return []stream.Event{stream.MessageItemDoneEvent{
			ItemID: msg.ID,
			Role:   string(msg.Role),
			Text:   text,
		}}

	default:
		return nil
	}
}
