// Package bridge implements the TranslationBridge of spec §4.6: pairwise
// conversion between the Anthropic, OpenAI-Chat, and OpenAI-Responses
// dialects, in both the request and response/event directions. The request
// and streaming-response directions already existed (ground truth) in
// CLASP's internal/translator package (request.go, responses_request.go,
// stream.go, responses_stream.go); this package adds the missing
// non-streaming response directions and the OpenAI-Chat-to-Anthropic
// request direction, and exposes all of them behind one facade so
// CascadeExecutor and FrontendRouter never import internal/translator
// directly.
package bridge

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedarden/clasp-cascade/internal/cascadeerr"
	"github.com/jedarden/clasp-cascade/internal/translator"
	"github.com/jedarden/clasp-cascade/pkg/models"
)

// Bridge is stateless; all methods are pure functions grouped for a
// convenient import surface.
type Bridge struct{}

func New() *Bridge { return &Bridge{} }

// --- Request direction: Anthropic -> {OpenAI-Chat, OpenAI-Responses} ---

// AnthropicToOpenAIChat serializes a canonical Anthropic-shape request into
// an OpenAI Chat Completions request, applying provider-specific tool and
// reasoning-parameter mapping.
func (b *Bridge) AnthropicToOpenAIChat(req *models.AnthropicRequest, targetModel string, dialectHints translator.ProviderType) (*models.OpenAIRequest, error) {
	out, err := translator.TransformRequestWithProvider(req, targetModel, dialectHints)
	if err != nil {
		return nil, cascadeerr.New(cascadeerr.TranslationError, "", "anthropic to openai-chat request", err)
	}
	return out, nil
}

// AnthropicToResponses serializes a canonical Anthropic-shape request into
// an OpenAI Responses API request.
func (b *Bridge) AnthropicToResponses(req *models.AnthropicRequest, targetModel, previousResponseID string) (*models.ResponsesRequest, error) {
	out, err := translator.TransformRequestToResponses(req, targetModel, previousResponseID)
	if err != nil {
		return nil, cascadeerr.New(cascadeerr.TranslationError, "", "anthropic to responses request", err)
	}
	return out, nil
}

// OpenAIChatToAnthropic converts an OpenAI Chat Completions request back
// into Anthropic-shape, the reverse leg of the round-trip property tested
// in spec §8. System content is recovered from a leading system-role
// message; tool parameter objects are carried through under
// input_schema; tool_calls become tool_use blocks and tool-role messages
// become user messages with tool_result blocks.
func (b *Bridge) OpenAIChatToAnthropic(req *models.OpenAIRequest) (*models.AnthropicRequest, error) {
	out := &models.AnthropicRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Stream:    req.Stream,
		Temperature: req.Temperature,
		TopP:      req.TopP,
	}
	if len(req.Stop) > 0 {
		out.StopSequences = req.Stop
	}

	messages := req.Messages
	if len(messages) > 0 && messages[0].Role == "system" {
		if s, ok := messages[0].Content.(string); ok {
			out.System = s
		}
		messages = messages[1:]
	}

	for _, m := range messages {
		converted, err := openAIMessageToAnthropic(m)
		if err != nil {
			return nil, cascadeerr.New(cascadeerr.TranslationError, "", "openai-chat to anthropic message", err)
		}
		if converted != nil {
			out.Messages = append(out.Messages, *converted)
		}
	}

	if len(req.Tools) > 0 {
		out.Tools = make([]models.AnthropicTool, 0, len(req.Tools))
		for _, t := range req.Tools {
			out.Tools = append(out.Tools, models.AnthropicTool{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				InputSchema: t.Function.Parameters,
			})
		}
	}
	if req.ToolChoice != nil {
		out.ToolChoice = req.ToolChoice
	}

	return out, nil
}

func openAIMessageToAnthropic(m models.OpenAIMessage) (*models.AnthropicMessage, error) {
	switch m.Role {
	case "tool":
		return &models.AnthropicMessage{
			Role: "user",
			Content: []models.ContentBlock{{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   contentToString(m.Content),
			}},
		}, nil
	case "assistant":
		var blocks []models.ContentBlock
		if text := contentToString(m.Content); text != "" {
			blocks = append(blocks, models.ContentBlock{Type: "text", Text: text})
		}
		for _, tc := range m.ToolCalls {
			var input interface{}
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
			blocks = append(blocks, models.ContentBlock{
				Type:  "tool_use",
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: input,
			})
		}
		return &models.AnthropicMessage{Role: "assistant", Content: blocks}, nil
	default: // "user"
		return &models.AnthropicMessage{Role: "user", Content: contentToString(m.Content)}, nil
	}
}

// ResponsesRequestToAnthropic converts an OpenAI Responses API request back
// into Anthropic-shape, the request-direction counterpart to
// ResponsesToAnthropic's response parsing, needed so FrontendRouter can
// accept inbound /v1/responses requests and drive them through the same
// canonical-request cascade path every other surface uses.
func (b *Bridge) ResponsesRequestToAnthropic(req *models.ResponsesRequest) (*models.AnthropicRequest, error) {
	out := &models.AnthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxOutputTokens,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if req.Instructions != "" {
		out.System = req.Instructions
	}

	for _, item := range req.Input {
		switch item.Type {
		case "function_call_output":
			out.Messages = append(out.Messages, models.AnthropicMessage{
				Role: "user",
				Content: []models.ContentBlock{{
					Type:      "tool_result",
					ToolUseID: translator.TranslateResponsesIDToAnthropic(item.CallID),
					Content:   item.Output,
				}},
			})
		case "function_call":
			var input interface{}
			_ = json.Unmarshal([]byte(item.Arguments), &input)
			out.Messages = append(out.Messages, models.AnthropicMessage{
				Role: "assistant",
				Content: []models.ContentBlock{{
					Type:  "tool_use",
					ID:    translator.TranslateResponsesIDToAnthropic(item.CallID),
					Name:  item.Name,
					Input: input,
				}},
			})
		default: // "message" (type may also be empty for bare input items)
			role := item.Role
			if role == "" {
				role = "user"
			}
			out.Messages = append(out.Messages, models.AnthropicMessage{
				Role:    role,
				Content: responsesInputContentToString(item.Content),
			})
		}
	}

	if len(req.Tools) > 0 {
		out.Tools = make([]models.AnthropicTool, 0, len(req.Tools))
		for _, t := range req.Tools {
			name, desc, params := t.Name, t.Description, t.Parameters
			if t.Function != nil {
				name, desc, params = t.Function.Name, t.Function.Description, t.Function.Parameters
			}
			out.Tools = append(out.Tools, models.AnthropicTool{Name: name, Description: desc, InputSchema: params})
		}
	}
	if req.ToolChoice != nil {
		out.ToolChoice = req.ToolChoice
	}

	return out, nil
}

// responsesInputContentToString flattens a Responses input item's content
// (a bare string, or a []ResponsesContentPart-shaped value once decoded
// through encoding/json's generic interface{} representation) down to the
// plain text Anthropic's canonical message content expects.
func responsesInputContentToString(content interface{}) string {
	switch v := content.(type) {
	case string:
		return v
	case []interface{}:
		var sb strings.Builder
		for _, part := range v {
			m, ok := part.(map[string]interface{})
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				sb.WriteString(t)
			}
		}
		return sb.String()
	default:
		return ""
	}
}

func contentToString(content interface{}) string {
	switch v := content.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// --- Non-streaming response direction: {OpenAI-Chat, Responses} -> Anthropic ---

// ChatCompletionToAnthropic parses a complete (non-streaming) OpenAI Chat
// Completions response body and converts it to Anthropic response shape.
func (b *Bridge) ChatCompletionToAnthropic(body []byte, targetModel string) (*models.AnthropicResponse, error) {
	var openAIResp struct {
		ID      string `json:"id"`
		Choices []struct {
			Message struct {
				Role      string                   `json:"role"`
				Content   string                   `json:"content"`
				ToolCalls []models.OpenAIToolCall   `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage models.Usage `json:"usage"`
	}
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return nil, cascadeerr.New(cascadeerr.TranslationError, "", "parsing chat completion body", err)
	}

	resp := &models.AnthropicResponse{
		ID:    openAIResp.ID,
		Type:  "message",
		Role:  "assistant",
		Model: targetModel,
		Usage: &models.AnthropicUsage{
			InputTokens:  openAIResp.Usage.PromptTokens,
			OutputTokens: openAIResp.Usage.CompletionTokens,
		},
	}

	if len(openAIResp.Choices) > 0 {
		choice := openAIResp.Choices[0]
		resp.StopReason = mapFinishReason(choice.FinishReason)

		if choice.Message.Content != "" {
			resp.Content = append(resp.Content, models.AnthropicContentBlock{Type: "text", Text: choice.Message.Content})
		}
		for _, tc := range choice.Message.ToolCalls {
			var input interface{}
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
			resp.Content = append(resp.Content, models.AnthropicContentBlock{
				Type: "tool_use", ID: tc.ID, Name: tc.Function.Name, Input: input,
			})
		}
	}

	return resp, nil
}

// ResponsesToAnthropic parses a complete (non-streaming) OpenAI Responses
// API response body and converts it to Anthropic response shape.
func (b *Bridge) ResponsesToAnthropic(body []byte, targetModel string) (*models.AnthropicResponse, error) {
	var responsesResp models.ResponsesResponse
	if err := json.Unmarshal(body, &responsesResp); err != nil {
		return nil, cascadeerr.New(cascadeerr.TranslationError, "", "parsing responses body", err)
	}

	resp := &models.AnthropicResponse{
		ID:    responsesResp.ID,
		Type:  "message",
		Role:  "assistant",
		Model: targetModel,
	}
	if responsesResp.Usage != nil {
		resp.Usage = &models.AnthropicUsage{
			InputTokens:  responsesResp.Usage.InputTokens,
			OutputTokens: responsesResp.Usage.OutputTokens,
		}
	}

	hasToolCalls := false
	for _, item := range responsesResp.Output {
		switch item.Type {
		case "message":
			for _, text := range extractTextParts(item.Content) {
				resp.Content = append(resp.Content, models.AnthropicContentBlock{Type: "text", Text: text})
			}
		case "function_call":
			hasToolCalls = true
			var input interface{}
			if err := json.Unmarshal([]byte(item.Arguments), &input); err != nil {
				input = map[string]interface{}{}
			}
			resp.Content = append(resp.Content, models.AnthropicContentBlock{
				Type:  "tool_use",
				ID:    translator.TranslateResponsesIDToAnthropic(item.CallID),
				Name:  item.Name,
				Input: input,
			})
		case "reasoning":
			if item.Summary != "" {
				resp.Content = append(resp.Content, models.AnthropicContentBlock{Type: "thinking", Text: item.Summary})
			}
		}
	}

	switch {
	case responsesResp.Status == "completed" && hasToolCalls:
		resp.StopReason = "tool_use"
	case responsesResp.Status == "completed":
		resp.StopReason = "end_turn"
	case responsesResp.Status == "failed":
		resp.StopReason = "end_turn"
	}

	return resp, nil
}

// --- Non-streaming response direction: Anthropic -> {OpenAI-Chat, Responses} ---
//
// These are the reverse leg ChatCompletionToAnthropic/ResponsesToAnthropic
// never needed (CLASP only ever served Claude-Code-shaped clients): a
// winning tier's canonical cascade.Result must still be re-serialized into
// whatever dialect the client asked for, same as the request direction's
// OpenAIChatToAnthropic/ResponsesRequestToAnthropic complete the round trip.

// AnthropicResponseToChatCompletion serializes a canonical Anthropic
// response into an OpenAI Chat Completions response body.
func (b *Bridge) AnthropicResponseToChatCompletion(resp *models.AnthropicResponse) ([]byte, error) {
	message := map[string]interface{}{"role": "assistant"}
	var toolCalls []map[string]interface{}
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			toolCalls = append(toolCalls, map[string]interface{}{
				"id": block.ID, "type": "function",
				"function": map[string]interface{}{"name": block.Name, "arguments": string(args)},
			})
		}
	}
	if text.Len() > 0 {
		message["content"] = text.String()
	} else {
		message["content"] = nil
	}
	if len(toolCalls) > 0 {
		message["tool_calls"] = toolCalls
	}

	usage := map[string]int{}
	if resp.Usage != nil {
		usage["prompt_tokens"] = resp.Usage.InputTokens
		usage["completion_tokens"] = resp.Usage.OutputTokens
		usage["total_tokens"] = resp.Usage.InputTokens + resp.Usage.OutputTokens
	}

	body, err := json.Marshal(map[string]interface{}{
		"id": resp.ID, "object": "chat.completion", "model": resp.Model,
		"choices": []interface{}{map[string]interface{}{
			"index": 0, "message": message,
			"finish_reason": toOpenAIFinishReasonFromAnthropic(resp.StopReason, len(toolCalls) > 0),
		}},
		"usage": usage,
	})
	if err != nil {
		return nil, cascadeerr.New(cascadeerr.TranslationError, "", "serializing chat completion response", err)
	}
	return body, nil
}

// AnthropicResponseToResponses serializes a canonical Anthropic response
// into an OpenAI Responses API response body.
func (b *Bridge) AnthropicResponseToResponses(resp *models.AnthropicResponse) ([]byte, error) {
	out := models.ResponsesResponse{
		ID: resp.ID, Object: "response", Model: resp.Model, Status: "completed",
	}
	if resp.Usage != nil {
		out.Usage = &models.ResponsesUsage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens}
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Output = append(out.Output, models.ResponsesItem{
				Type: "message", Role: "assistant",
				Content: []models.ResponsesOutputContentPart{{Type: "text", Text: block.Text}},
			})
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			out.Output = append(out.Output, models.ResponsesItem{
				Type: "function_call", CallID: toResponsesID(block.ID), Name: block.Name, Arguments: string(args),
			})
		case "thinking":
			out.Output = append(out.Output, models.ResponsesItem{Type: "reasoning", Summary: block.Text})
		}
	}
	body, err := json.Marshal(out)
	if err != nil {
		return nil, cascadeerr.New(cascadeerr.TranslationError, "", "serializing responses response", err)
	}
	return body, nil
}

// toResponsesID mints the Responses API's "fc_"-prefixed tool-call id from
// a canonical (Anthropic "toolu_"/OpenAI-Chat "call_") id -- the reverse of
// translator.TranslateResponsesIDToAnthropic. Kept local rather than
// shared with protocol.toResponsesCallID since protocol already imports
// this package and a shared helper would create an import cycle.
func toResponsesID(id string) string {
	switch {
	case strings.HasPrefix(id, "fc_"):
		return id
	case strings.HasPrefix(id, "call_"):
		return "fc_" + strings.TrimPrefix(id, "call_")
	case strings.HasPrefix(id, "toolu_"):
		return "fc_" + strings.TrimPrefix(id, "toolu_")
	default:
		return "fc_" + id
	}
}

// toOpenAIFinishReasonFromAnthropic mirrors protocol's vocabulary mapping
// for the one call site this package needs it from (no protocol import,
// same reasoning as toResponsesID).
func toOpenAIFinishReasonFromAnthropic(stopReason string, hasToolCalls bool) string {
	switch stopReason {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	case "end_turn", "stop_sequence", "":
		if hasToolCalls {
			return "tool_calls"
		}
		return "stop"
	default:
		return "stop"
	}
}

func extractTextParts(content interface{}) []string {
	switch v := content.(type) {
	case string:
		if v != "" {
			return []string{v}
		}
	case []interface{}:
		var out []string
		for _, part := range v {
			m, ok := part.(map[string]interface{})
			if !ok {
				continue
			}
			switch m["type"] {
			case "text":
				if t, ok := m["text"].(string); ok && t != "" {
					out = append(out, t)
				}
			case "refusal":
				if t, ok := m["refusal"].(string); ok && t != "" {
					out = append(out, "[Refused] "+t)
				}
			}
		}
		return out
	}
	return nil
}

func mapFinishReason(reason string) string {
	switch reason {
	case "stop":
		return "end_turn"
	case "tool_calls":
		return "tool_use"
	case "length":
		return "max_tokens"
	default:
		return "end_turn"
	}
}

// --- Streaming response direction: {OpenAI-Chat, Responses} -> Anthropic ---

// StreamChatToAnthropic incrementally decodes an OpenAI Chat Completions
// SSE body from reader (using the chunk-boundary-safe internal/sse
// decoder) and writes Anthropic SSE events to writer as they arrive.
func (b *Bridge) StreamChatToAnthropic(reader io.Reader, writer io.Writer, messageID, targetModel string) (usageIn, usageOut int, err error) {
	processor := translator.NewStreamProcessor(writer, messageID, targetModel)
	if procErr := processor.ProcessStream(reader); procErr != nil {
		return 0, 0, fmt.Errorf("streaming chat completion: %w", procErr)
	}
	in, out := processor.GetUsage()
	return in, out, nil
}

// StreamResponsesToAnthropic incrementally decodes an OpenAI Responses API
// SSE body and writes Anthropic SSE events to writer as they arrive.
func (b *Bridge) StreamResponsesToAnthropic(reader io.Reader, writer io.Writer, messageID, targetModel string) (usageIn, usageOut int, responseID string, err error) {
	processor := translator.NewResponsesStreamProcessor(writer, messageID, targetModel)
	if procErr := processor.ProcessStream(reader); procErr != nil {
		return 0, 0, "", fmt.Errorf("streaming responses: %w", procErr)
	}
	in, out := processor.GetUsage()
	return in, out, processor.GetResponseID(), nil
}
