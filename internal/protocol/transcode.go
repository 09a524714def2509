package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedarden/clasp-cascade/pkg/models"
)

// Transcoder re-emits a stream of dialect-neutral ParsedEvents (produced by
// one Adapter.ParseStreamEvent) as raw SSE bytes in a different target
// dialect, closing spec §4.7's full (tier dialect, client surface) matrix:
// the non-streaming direction already goes through every dialect pair via
// Adapter.ParseNonStreamResponse, and this gives the streaming direction
// the same any-to-any coverage instead of only the three same-dialect
// passthroughs plus "X -> Anthropic".
type Transcoder interface {
	// Emit returns the raw SSE bytes (zero or more complete "event:
	// .../data: ...\n\n" frames) that correspond to ev in the target
	// dialect. Many ParsedEvents legitimately produce no output (e.g. a
	// second EventUsage before the terminal frame).
	Emit(ev ParsedEvent) []byte
}

// NewTranscoder returns the Transcoder for re-emitting events as target's
// wire frames. messageID seeds the target dialect's id/response-id field.
func NewTranscoder(target Dialect, messageID, model string) Transcoder {
	switch target {
	case Anthropic:
		return &anthropicEmitter{messageID: messageID, model: model, blockIndex: -1}
	case OpenAIResponses:
		return &responsesEmitter{responseID: messageID, model: model}
	default: // OpenAIChat
		return &chatEmitter{messageID: messageID, model: model}
	}
}

func sseFrame(event string, payload interface{}) []byte {
	data, _ := json.Marshal(payload)
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, data))
}

func dataFrame(payload interface{}) []byte {
	data, _ := json.Marshal(payload)
	return []byte(fmt.Sprintf("data: %s\n\n", data))
}

func usageMap(u *models.AnthropicUsage) map[string]int {
	if u == nil {
		return map[string]int{"input_tokens": 0, "output_tokens": 0}
	}
	return map[string]int{"input_tokens": u.InputTokens, "output_tokens": u.OutputTokens}
}

// normalizeStopReason maps any dialect's raw finish-reason string into
// Anthropic's stop_reason vocabulary.
func normalizeStopReason(raw string, hasToolCalls bool) string {
	switch raw {
	case "end_turn", "max_tokens", "tool_use", "stop_sequence":
		return raw
	case "stop":
		return "end_turn"
	case "tool_calls":
		return "tool_use"
	case "length":
		return "max_tokens"
	case "completed":
		if hasToolCalls {
			return "tool_use"
		}
		return "end_turn"
	default:
		return "end_turn"
	}
}

// toOpenAIFinishReason maps any dialect's raw finish-reason/stop_reason
// into OpenAI Chat's finish_reason vocabulary.
func toOpenAIFinishReason(raw string, hasToolCalls bool) string {
	switch raw {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	case "completed":
		if hasToolCalls {
			return "tool_calls"
		}
		return "stop"
	case "stop", "tool_calls", "length":
		return raw
	default:
		return "stop"
	}
}

// toResponsesCallID rewrites an Anthropic/OpenAI-Chat "call_xxx"/"toolu_xxx"
// tool-call id into the Responses API's "fc_xxx" shape -- the reverse of
// translator.TranslateResponsesIDToAnthropic.
func toResponsesCallID(id string) string {
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

// --- Anthropic target ---

type anthropicEmitter struct {
	messageID, model string
	started          bool
	stopSent         bool

	blockOpen  bool
	blockType  string // "text" | "thinking" | "tool_use"
	blockIndex int
	nextIndex  int
	toolBlocks map[int]int // source tool index -> anthropic content index

	hasToolCalls bool
	pendingUsage *models.AnthropicUsage
}

func (e *anthropicEmitter) openBlock(buf *[]byte, blockType, toolID, toolName string) int {
	idx := e.nextIndex
	e.nextIndex++
	block := map[string]interface{}{"type": blockType}
	switch blockType {
	case "text":
		block["text"] = ""
	case "thinking":
		block["thinking"] = ""
	case "tool_use":
		block["id"] = toolID
		block["name"] = toolName
		block["input"] = map[string]interface{}{}
	}
	*buf = append(*buf, sseFrame("content_block_start", map[string]interface{}{
		"type": "content_block_start", "index": idx, "content_block": block,
	})...)
	e.blockOpen = true
	e.blockType = blockType
	e.blockIndex = idx
	return idx
}

func (e *anthropicEmitter) closeBlock(buf *[]byte) {
	if !e.blockOpen {
		return
	}
	*buf = append(*buf, sseFrame("content_block_stop", map[string]interface{}{
		"type": "content_block_stop", "index": e.blockIndex,
	})...)
	e.blockOpen = false
}

func (e *anthropicEmitter) ensureStarted(buf *[]byte) {
	if e.started {
		return
	}
	e.started = true
	*buf = append(*buf, sseFrame("message_start", map[string]interface{}{
		"type": "message_start",
		"message": map[string]interface{}{
			"id": e.messageID, "type": "message", "role": "assistant", "model": e.model,
			"content": []interface{}{}, "usage": usageMap(nil),
		},
	})...)
}

func (e *anthropicEmitter) Emit(ev ParsedEvent) []byte {
	var out []byte
	switch ev.Kind {
	case EventStart:
		e.ensureStarted(&out)

	case EventTextDelta:
		e.ensureStarted(&out)
		if e.blockType != "text" || !e.blockOpen {
			e.closeBlock(&out)
			e.openBlock(&out, "text", "", "")
		}
		out = append(out, sseFrame("content_block_delta", map[string]interface{}{
			"type": "content_block_delta", "index": e.blockIndex,
			"delta": map[string]string{"type": "text_delta", "text": ev.Text},
		})...)

	case EventReasoningDelta:
		e.ensureStarted(&out)
		if e.blockType != "thinking" || !e.blockOpen {
			e.closeBlock(&out)
			e.openBlock(&out, "thinking", "", "")
		}
		out = append(out, sseFrame("content_block_delta", map[string]interface{}{
			"type": "content_block_delta", "index": e.blockIndex,
			"delta": map[string]string{"type": "thinking_delta", "thinking": ev.Text},
		})...)

	case EventToolCallDelta:
		e.ensureStarted(&out)
		e.hasToolCalls = true
		if e.toolBlocks == nil {
			e.toolBlocks = make(map[int]int)
		}
		idx, known := e.toolBlocks[ev.ToolIndex]
		if !known {
			e.closeBlock(&out)
			idx = e.openBlock(&out, "tool_use", ev.ToolID, ev.ToolName)
			e.toolBlocks[ev.ToolIndex] = idx
		}
		if ev.ArgsFragment != "" {
			out = append(out, sseFrame("content_block_delta", map[string]interface{}{
				"type": "content_block_delta", "index": idx,
				"delta": map[string]string{"type": "input_json_delta", "partial_json": ev.ArgsFragment},
			})...)
		}

	case EventUsage:
		if ev.Usage != nil {
			e.pendingUsage = &models.AnthropicUsage{InputTokens: ev.Usage.InputTokens, OutputTokens: ev.Usage.OutputTokens}
		}

	case EventFinishReason:
		e.closeBlock(&out)
		usage := e.pendingUsage
		if ev.Usage != nil {
			usage = &models.AnthropicUsage{InputTokens: ev.Usage.InputTokens, OutputTokens: ev.Usage.OutputTokens}
		}
		out = append(out, sseFrame("message_delta", map[string]interface{}{
			"type":  "message_delta",
			"delta": map[string]string{"stop_reason": normalizeStopReason(ev.FinishReason, e.hasToolCalls)},
			"usage": usageMap(usage),
		})...)

	case EventTerminal:
		e.closeBlock(&out)
		if !e.stopSent {
			e.stopSent = true
			out = append(out, sseFrame("message_stop", map[string]string{"type": "message_stop"})...)
		}
	}
	return out
}

// --- OpenAI-Chat target ---

type chatEmitter struct {
	messageID, model string
	started          bool
	hasToolCalls     bool
	pendingUsage     *models.AnthropicUsage
	doneSent         bool
}

func (e *chatEmitter) chunk(delta map[string]interface{}, finishReason string) []byte {
	var fr interface{}
	if finishReason != "" {
		fr = finishReason
	}
	return dataFrame(map[string]interface{}{
		"id": e.messageID, "object": "chat.completion.chunk", "model": e.model,
		"choices": []interface{}{map[string]interface{}{"index": 0, "delta": delta, "finish_reason": fr}},
	})
}

func (e *chatEmitter) Emit(ev ParsedEvent) []byte {
	switch ev.Kind {
	case EventStart:
		if e.started {
			return nil
		}
		e.started = true
		return e.chunk(map[string]interface{}{"role": "assistant"}, "")

	case EventTextDelta:
		return e.chunk(map[string]interface{}{"content": ev.Text}, "")

	case EventReasoningDelta:
		return e.chunk(map[string]interface{}{"reasoning_content": ev.Text}, "")

	case EventToolCallDelta:
		e.hasToolCalls = true
		tc := map[string]interface{}{"index": ev.ToolIndex}
		if ev.ToolID != "" {
			tc["id"] = ev.ToolID
			tc["type"] = "function"
		}
		fn := map[string]interface{}{}
		if ev.ToolName != "" {
			fn["name"] = ev.ToolName
		}
		if ev.ArgsFragment != "" {
			fn["arguments"] = ev.ArgsFragment
		}
		if len(fn) > 0 {
			tc["function"] = fn
		}
		return e.chunk(map[string]interface{}{"tool_calls": []interface{}{tc}}, "")

	case EventUsage:
		if ev.Usage != nil {
			e.pendingUsage = &models.AnthropicUsage{InputTokens: ev.Usage.InputTokens, OutputTokens: ev.Usage.OutputTokens}
		}
		return nil

	case EventFinishReason:
		out := e.chunk(map[string]interface{}{}, toOpenAIFinishReason(ev.FinishReason, e.hasToolCalls))
		usage := e.pendingUsage
		if ev.Usage != nil {
			usage = &models.AnthropicUsage{InputTokens: ev.Usage.InputTokens, OutputTokens: ev.Usage.OutputTokens}
		}
		if usage != nil {
			out = append(out, dataFrame(map[string]interface{}{
				"id": e.messageID, "object": "chat.completion.chunk", "model": e.model,
				"choices": []interface{}{},
				"usage": map[string]int{
					"prompt_tokens": usage.InputTokens, "completion_tokens": usage.OutputTokens,
					"total_tokens": usage.InputTokens + usage.OutputTokens,
				},
			})...)
		}
		return out

	case EventTerminal:
		if e.doneSent {
			return nil
		}
		e.doneSent = true
		return []byte("data: [DONE]\n\n")
	}
	return nil
}

// --- OpenAI-Responses target ---

type responsesEmitter struct {
	responseID, model string
	started           bool
	toolNamed         map[int]bool
	pendingUsage      *models.AnthropicUsage
	completedSent     bool
}

func (e *responsesEmitter) Emit(ev ParsedEvent) []byte {
	switch ev.Kind {
	case EventStart:
		if e.started {
			return nil
		}
		e.started = true
		return sseFrame("response.created", map[string]interface{}{
			"type":     "response.created",
			"response": map[string]interface{}{"id": e.responseID, "status": "in_progress", "model": e.model},
		})

	case EventTextDelta:
		return sseFrame("response.output_text.delta", map[string]interface{}{
			"type": "response.output_text.delta", "delta": ev.Text, "output_index": 0,
		})

	case EventReasoningDelta:
		return sseFrame("response.reasoning_summary_text.delta", map[string]interface{}{
			"type": "response.reasoning_summary_text.delta", "delta": ev.Text, "output_index": 0,
		})

	case EventToolCallDelta:
		var out []byte
		if e.toolNamed == nil {
			e.toolNamed = make(map[int]bool)
		}
		if ev.ToolName != "" && !e.toolNamed[ev.ToolIndex] {
			e.toolNamed[ev.ToolIndex] = true
			out = append(out, sseFrame("response.output_item.added", map[string]interface{}{
				"type": "response.output_item.added", "output_index": ev.ToolIndex,
				"item": map[string]interface{}{"type": "function_call", "call_id": toResponsesCallID(ev.ToolID), "name": ev.ToolName},
			})...)
		}
		if ev.ArgsFragment != "" {
			out = append(out, sseFrame("response.function_call_arguments.delta", map[string]interface{}{
				"type": "response.function_call_arguments.delta", "output_index": ev.ToolIndex, "delta": ev.ArgsFragment,
			})...)
		}
		return out

	case EventUsage:
		if ev.Usage != nil {
			e.pendingUsage = &models.AnthropicUsage{InputTokens: ev.Usage.InputTokens, OutputTokens: ev.Usage.OutputTokens}
		}
		return nil

	case EventFinishReason:
		if e.completedSent {
			return nil
		}
		e.completedSent = true
		usage := e.pendingUsage
		if ev.Usage != nil {
			usage = &models.AnthropicUsage{InputTokens: ev.Usage.InputTokens, OutputTokens: ev.Usage.OutputTokens}
		}
		payload := map[string]interface{}{"id": e.responseID, "status": "completed", "model": e.model}
		if usage != nil {
			payload["usage"] = map[string]int{"input_tokens": usage.InputTokens, "output_tokens": usage.OutputTokens}
		}
		return sseFrame("response.completed", map[string]interface{}{"type": "response.completed", "response": payload})

	case EventTerminal:
		return nil
	}
	return nil
}
