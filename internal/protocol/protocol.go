// Package protocol implements the ProtocolAdapter of spec §4.5: one adapter
// per wire dialect (Anthropic, OpenAI-Chat, OpenAI-Responses), each able to
// serialize a canonical Anthropic-shape request for its dialect, parse a
// complete non-streaming response back to canonical shape, and classify one
// already-framed SSE event into a ParsedEvent. CascadeExecutor drives these
// without ever branching on dialect itself.
package protocol

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/jedarden/clasp-cascade/internal/bridge"
	"github.com/jedarden/clasp-cascade/internal/cascadeerr"
	"github.com/jedarden/clasp-cascade/internal/sse"
	"github.com/jedarden/clasp-cascade/internal/translator"
	"github.com/jedarden/clasp-cascade/pkg/models"
)

// Dialect names the three fixed wire surfaces spec §9's Open Question (a)
// settles on: a small closed set, not a plugin registry.
type Dialect string

const (
	Anthropic      Dialect = "anthropic"
	OpenAIChat     Dialect = "openai_chat"
	OpenAIResponses Dialect = "openai_responses"
)

// EventKind enumerates the ParsedEvent variants from spec §4.5.
type EventKind int

const (
	EventIgnore EventKind = iota
	EventStart
	EventTextDelta
	EventReasoningDelta
	EventToolCallDelta
	EventUsage
	EventFinishReason
	EventTerminal
)

// ParsedEvent is the dialect-neutral result of classifying one upstream SSE
// frame. Only the fields relevant to Kind are populated.
type ParsedEvent struct {
	Kind EventKind

	Text         string // EventTextDelta / EventReasoningDelta
	ToolIndex    int    // EventToolCallDelta
	ToolID       string // EventToolCallDelta, only set on the first delta for a call
	ToolName     string // EventToolCallDelta, only set on the first delta for a call
	ArgsFragment string // EventToolCallDelta

	Usage        *models.AnthropicUsage // EventUsage
	FinishReason string                 // EventFinishReason
}

// Hints carries dialect-specific serialization knobs (provider quirks for
// OpenAI-Chat, previous_response_id chaining for Responses) that don't fit
// the canonical Anthropic request shape.
type Hints struct {
	Provider           translator.ProviderType
	PreviousResponseID string
}

// Adapter is implemented once per Dialect.
type Adapter interface {
	SerializeRequest(canonical *models.AnthropicRequest, targetModel string, hints Hints) (body []byte, headers http.Header, err error)
	ParseNonStreamResponse(body []byte, targetModel string) (*models.AnthropicResponse, error)
	ParseStreamEvent(frame sse.Frame) (ParsedEvent, error)
}

// For returns the Adapter for a dialect.
func For(d Dialect) (Adapter, error) {
	switch d {
	case Anthropic:
		return anthropicAdapter{}, nil
	case OpenAIChat:
		return openAIChatAdapter{bridge: bridge.New()}, nil
	case OpenAIResponses:
		return openAIResponsesAdapter{bridge: bridge.New()}, nil
	default:
		return nil, cascadeerr.New(cascadeerr.ConfigError, "", fmt.Sprintf("unknown dialect %q", d), nil)
	}
}

func jsonHeaders() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return h
}

// --- Anthropic: canonical == wire shape, so serialize/parse are near-identity ---

type anthropicAdapter struct{}

func (anthropicAdapter) SerializeRequest(canonical *models.AnthropicRequest, targetModel string, _ Hints) ([]byte, http.Header, error) {
	reqCopy := *canonical
	reqCopy.Model = targetModel
	body, err := json.Marshal(&reqCopy)
	if err != nil {
		return nil, nil, cascadeerr.New(cascadeerr.TranslationError, "", "serializing anthropic request", err)
	}
	return body, jsonHeaders(), nil
}

func (anthropicAdapter) ParseNonStreamResponse(body []byte, _ string) (*models.AnthropicResponse, error) {
	var resp models.AnthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, cascadeerr.New(cascadeerr.TranslationError, "", "parsing anthropic response", err)
	}
	return &resp, nil
}

// ParseStreamEvent dispatches on the event: name per spec §4.5's Anthropic
// contract: "when type is absent from the data payload, the event name
// MUST be used to derive it."
func (anthropicAdapter) ParseStreamEvent(frame sse.Frame) (ParsedEvent, error) {
	if frame.IsTerminal {
		return ParsedEvent{Kind: EventTerminal}, nil
	}
	data := frame.Data
	eventType := frame.Event
	if eventType == "" {
		eventType = gjson.Get(data, "type").String()
	}

	switch eventType {
	case models.EventMessageStart:
		return ParsedEvent{Kind: EventStart}, nil
	case models.EventContentBlockStart:
		blockType := gjson.Get(data, "content_block.type").String()
		if blockType == "tool_use" {
			return ParsedEvent{
				Kind:      EventToolCallDelta,
				ToolIndex: int(gjson.Get(data, "index").Int()),
				ToolID:    gjson.Get(data, "content_block.id").String(),
				ToolName:  gjson.Get(data, "content_block.name").String(),
			}, nil
		}
		return ParsedEvent{Kind: EventIgnore}, nil
	case models.EventContentBlockDelta:
		deltaType := gjson.Get(data, "delta.type").String()
		switch deltaType {
		case "text_delta":
			return ParsedEvent{Kind: EventTextDelta, Text: gjson.Get(data, "delta.text").String()}, nil
		case "thinking_delta":
			return ParsedEvent{Kind: EventReasoningDelta, Text: gjson.Get(data, "delta.thinking").String()}, nil
		case "input_json_delta":
			return ParsedEvent{
				Kind:         EventToolCallDelta,
				ToolIndex:    int(gjson.Get(data, "index").Int()),
				ArgsFragment: gjson.Get(data, "delta.partial_json").String(),
			}, nil
		}
		return ParsedEvent{Kind: EventIgnore}, nil
	case models.EventContentBlockStop:
		return ParsedEvent{Kind: EventIgnore}, nil
	case models.EventMessageDelta:
		ev := ParsedEvent{Kind: EventFinishReason, FinishReason: gjson.Get(data, "delta.stop_reason").String()}
		if out := gjson.Get(data, "usage.output_tokens"); out.Exists() {
			ev.Usage = &models.AnthropicUsage{OutputTokens: int(out.Int())}
		}
		return ev, nil
	case models.EventMessageStop:
		return ParsedEvent{Kind: EventTerminal}, nil
	case models.EventPing:
		return ParsedEvent{Kind: EventIgnore}, nil
	default:
		return ParsedEvent{Kind: EventIgnore}, nil
	}
}

// --- OpenAI-Chat: data-only frames, dispatch on choices[0] ---

type openAIChatAdapter struct{ bridge *bridge.Bridge }

func (a openAIChatAdapter) SerializeRequest(canonical *models.AnthropicRequest, targetModel string, hints Hints) ([]byte, http.Header, error) {
	req, err := a.bridge.AnthropicToOpenAIChat(canonical, targetModel, hints.Provider)
	if err != nil {
		return nil, nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, cascadeerr.New(cascadeerr.TranslationError, "", "serializing openai-chat request", err)
	}
	return body, jsonHeaders(), nil
}

func (a openAIChatAdapter) ParseNonStreamResponse(body []byte, targetModel string) (*models.AnthropicResponse, error) {
	return a.bridge.ChatCompletionToAnthropic(body, targetModel)
}

// ParseStreamEvent implements spec §4.5's OpenAI-Chat contract: "a frame
// with empty choices and non-empty usage is treated as a pre-terminal
// usage update."
func (openAIChatAdapter) ParseStreamEvent(frame sse.Frame) (ParsedEvent, error) {
	if frame.IsTerminal {
		return ParsedEvent{Kind: EventTerminal}, nil
	}
	data := frame.Data

	choices := gjson.Get(data, "choices")
	if !choices.Exists() || len(choices.Array()) == 0 {
		if usage := gjson.Get(data, "usage"); usage.Exists() {
			return ParsedEvent{
				Kind: EventUsage,
				Usage: &models.AnthropicUsage{
					InputTokens:  int(usage.Get("prompt_tokens").Int()),
					OutputTokens: int(usage.Get("completion_tokens").Int()),
				},
			}, nil
		}
		return ParsedEvent{Kind: EventIgnore}, nil
	}

	choice := choices.Array()[0]
	if fr := choice.Get("finish_reason").String(); fr != "" {
		return ParsedEvent{Kind: EventFinishReason, FinishReason: fr}, nil
	}

	delta := choice.Get("delta")
	if role := delta.Get("role").String(); role != "" && !delta.Get("content").Exists() {
		return ParsedEvent{Kind: EventStart}, nil
	}
	if content := delta.Get("content"); content.Exists() {
		return ParsedEvent{Kind: EventTextDelta, Text: content.String()}, nil
	}
	if reasoning := delta.Get("reasoning"); reasoning.Exists() {
		return ParsedEvent{Kind: EventReasoningDelta, Text: reasoning.String()}, nil
	}
	if tc := delta.Get("tool_calls.0"); tc.Exists() {
		return ParsedEvent{
			Kind:         EventToolCallDelta,
			ToolIndex:    int(tc.Get("index").Int()),
			ToolID:       tc.Get("id").String(),
			ToolName:     tc.Get("function.name").String(),
			ArgsFragment: tc.Get("function.arguments").String(),
		}, nil
	}
	return ParsedEvent{Kind: EventIgnore}, nil
}

// --- OpenAI-Responses: event-named frames ---

type openAIResponsesAdapter struct{ bridge *bridge.Bridge }

func (a openAIResponsesAdapter) SerializeRequest(canonical *models.AnthropicRequest, targetModel string, hints Hints) ([]byte, http.Header, error) {
	req, err := a.bridge.AnthropicToResponses(canonical, targetModel, hints.PreviousResponseID)
	if err != nil {
		return nil, nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, cascadeerr.New(cascadeerr.TranslationError, "", "serializing responses request", err)
	}
	return body, jsonHeaders(), nil
}

func (a openAIResponsesAdapter) ParseNonStreamResponse(body []byte, targetModel string) (*models.AnthropicResponse, error) {
	return a.bridge.ResponsesToAnthropic(body, targetModel)
}

func (openAIResponsesAdapter) ParseStreamEvent(frame sse.Frame) (ParsedEvent, error) {
	if frame.IsTerminal {
		return ParsedEvent{Kind: EventTerminal}, nil
	}
	data := frame.Data
	eventType := frame.Event
	if eventType == "" {
		eventType = gjson.Get(data, "type").String()
	}

	switch eventType {
	case models.EventResponseCreated, models.EventResponseInProgress:
		return ParsedEvent{Kind: EventStart}, nil
	case models.EventOutputItemAdded:
		if gjson.Get(data, "item.type").String() == "function_call" {
			return ParsedEvent{
				Kind:      EventToolCallDelta,
				ToolIndex: int(gjson.Get(data, "output_index").Int()),
				ToolID:    translator.TranslateResponsesIDToAnthropic(gjson.Get(data, "item.call_id").String()),
				ToolName:  gjson.Get(data, "item.name").String(),
			}, nil
		}
		return ParsedEvent{Kind: EventIgnore}, nil
	case "response.output_text.delta":
		return ParsedEvent{Kind: EventTextDelta, Text: gjson.Get(data, "delta").String()}, nil
	case "response.reasoning_text.delta", "response.reasoning_summary_text.delta":
		return ParsedEvent{Kind: EventReasoningDelta, Text: gjson.Get(data, "delta").String()}, nil
	case "response.function_call_arguments.delta":
		return ParsedEvent{
			Kind:         EventToolCallDelta,
			ToolIndex:    int(gjson.Get(data, "output_index").Int()),
			ArgsFragment: gjson.Get(data, "delta").String(),
		}, nil
	case models.EventOutputItemDone:
		return ParsedEvent{Kind: EventIgnore}, nil
	case models.EventResponseCompleted:
		ev := ParsedEvent{Kind: EventFinishReason, FinishReason: "completed"}
		if usage := gjson.Get(data, "response.usage"); usage.Exists() {
			ev.Usage = &models.AnthropicUsage{
				InputTokens:  int(usage.Get("input_tokens").Int()),
				OutputTokens: int(usage.Get("output_tokens").Int()),
			}
		}
		return ev, nil
	case models.EventResponseFailed, models.EventResponseCancelled:
		return ParsedEvent{Kind: EventTerminal}, nil
	case models.EventRateLimitsUpdated:
		return ParsedEvent{Kind: EventIgnore}, nil
	default:
		return ParsedEvent{Kind: EventIgnore}, nil
	}
}
