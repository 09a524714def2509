// Package transformer implements the TransformerRegistry of spec §4.2: named,
// composable request/response rewriters operating on already-serialized,
// dialect-specific JSON bodies (the output of protocol.Adapter.SerializeRequest
// and the raw upstream response body). A chain applies request rewrites
// left-to-right and response rewrites in mirror (right-to-left) order.
//
// The regex-driven rewrites are grounded on CLASP's identityPatterns idiom in
// internal/translator/request.go (pre-compiled regexps run once over the
// whole payload); the structural rewrites use gjson/sjson generic JSON path
// access the same way internal/streampipe does for frame coalescing.
package transformer

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/jedarden/clasp-cascade/internal/cascadeerr"
)

// Params carries the optional parameter object a config entry may pair with
// a transformer name (e.g. max_token_cap's "limit").
type Params map[string]interface{}

// RewriteFunc is a pure operation over one JSON body. Returning the input
// unchanged is always a safe default for "not applicable to this body".
type RewriteFunc func(body []byte, params Params) ([]byte, error)

type definition struct {
	rewriteRequest  RewriteFunc
	rewriteResponse RewriteFunc
}

// Registry holds built-in and user-registered named transformers.
type Registry struct {
	entries map[string]definition
}

// NewRegistry builds a Registry pre-populated with the built-ins named in
// spec §4.2.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]definition)}
	r.Register("identity", identity, identity)
	r.Register("dialect_passthrough_anthropic", identity, identity)
	r.Register("tool_definition_normalizer", normalizeToolDefinitions, identity)
	r.Register("reasoning_extractor", identity, extractReasoningTags)
	r.Register("reasoning_content_preserver", identity, preserveReasoningContent)
	r.Register("max_token_cap", capMaxTokens, identity)
	r.Register("cache_metadata_enhancer", enhanceCacheMetadata, identity)
	r.Register("attribution_header_decorator", decorateAttribution, identity)
	return r
}

// Register adds or replaces a named transformer. A nil rewrite func defaults
// to identity on that side.
func (r *Registry) Register(name string, rewriteRequest, rewriteResponse RewriteFunc) {
	if rewriteRequest == nil {
		rewriteRequest = identity
	}
	if rewriteResponse == nil {
		rewriteResponse = identity
	}
	r.entries[name] = definition{rewriteRequest: rewriteRequest, rewriteResponse: rewriteResponse}
}

func (r *Registry) lookup(name string) (definition, bool) {
	d, ok := r.entries[name]
	return d, ok
}

// Entry is one named step in a chain, with its optional parameter object.
type Entry struct {
	Name   string
	Params Params
}

// Chain is an ordered list of transformer entries, as configured per
// provider or per model.
type Chain []Entry

// ApplyRequest runs the chain left-to-right over a serialized request body.
func (c Chain) ApplyRequest(reg *Registry, body []byte) ([]byte, error) {
	out := body
	for _, entry := range c {
		def, ok := reg.lookup(entry.Name)
		if !ok {
			return nil, cascadeerr.New(cascadeerr.ConfigError, "", "unknown transformer: "+entry.Name, nil)
		}
		next, err := def.rewriteRequest(out, entry.Params)
		if err != nil {
			return nil, cascadeerr.New(cascadeerr.TranslationError, "", "transformer "+entry.Name+" request rewrite", err)
		}
		out = next
	}
	return out, nil
}

// ApplyResponse runs the chain right-to-left (mirror order) over a raw
// upstream response body.
func (c Chain) ApplyResponse(reg *Registry, body []byte) ([]byte, error) {
	out := body
	for i := len(c) - 1; i >= 0; i-- {
		entry := c[i]
		def, ok := reg.lookup(entry.Name)
		if !ok {
			return nil, cascadeerr.New(cascadeerr.ConfigError, "", "unknown transformer: "+entry.Name, nil)
		}
		next, err := def.rewriteResponse(out, entry.Params)
		if err != nil {
			return nil, cascadeerr.New(cascadeerr.TranslationError, "", "transformer "+entry.Name+" response rewrite", err)
		}
		out = next
	}
	return out, nil
}

func identity(body []byte, _ Params) ([]byte, error) { return body, nil }

// normalizeToolDefinitions drops empty/null "parameters"/"input_schema"
// objects some providers reject outright, replacing them with an empty
// object schema instead of omitting the field (several aggregators require
// the key to be present).
func normalizeToolDefinitions(body []byte, _ Params) ([]byte, error) {
	tools := gjson.GetBytes(body, "tools")
	if !tools.Exists() {
		return body, nil
	}
	out := body
	for i, tool := range tools.Array() {
		for _, path := range []string{"parameters", "function.parameters", "input_schema"} {
			field := tool.Get(path)
			if field.Exists() && field.Type == gjson.Null {
				full := "tools." + itoa(i) + "." + path
				next, err := sjson.SetBytes(out, full, map[string]interface{}{"type": "object", "properties": map[string]interface{}{}})
				if err != nil {
					return nil, err
				}
				out = next
			}
		}
	}
	return out, nil
}

// reasoningTagPairs are the alternative reasoning-delimiter token pairs
// observed across providers, per spec §4.2's "alternative token pairs".
var reasoningTagPairs = []struct{ open, close *regexp.Regexp }{
	{regexp.MustCompile(`(?s)<think>(.*?)</think>`), nil},
	{regexp.MustCompile(`(?s)◁think▷(.*?)◁/think▷`), nil},
}

// extractReasoningTags moves inline <think>...</think> (or the
// ◁think▷...◁/think▷ variant some providers emit) out of a message's text
// content into a sibling "reasoning_content" field, leaving the visible
// text free of the delimiter.
func extractReasoningTags(body []byte, _ Params) ([]byte, error) {
	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() || content.String() == "" {
		return body, nil
	}
	text := content.String()
	var reasoning strings.Builder
	for _, pair := range reasoningTagPairs {
		for _, m := range pair.open.FindAllStringSubmatch(text, -1) {
			reasoning.WriteString(m[1])
		}
		text = pair.open.ReplaceAllString(text, "")
	}
	if reasoning.Len() == 0 {
		return body, nil
	}
	out, err := sjson.SetBytes(body, "choices.0.message.content", strings.TrimSpace(text))
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetBytes(out, "choices.0.message.reasoning_content", reasoning.String())
	if err != nil {
		return nil, err
	}
	return out, nil
}

// preserveReasoningContent is a no-op pass-through for providers (DeepSeek
// native reasoning_content, reasoning_details arrays) that already emit a
// structured reasoning field in the shape the bridge expects; it exists as
// a named, explicit chain entry so config can opt a provider out of
// extractReasoningTags without losing the field entirely.
func preserveReasoningContent(body []byte, _ Params) ([]byte, error) { return body, nil }

// capMaxTokens overlays a hard ceiling on an outgoing request's max_tokens
// (or max_completion_tokens / max_output_tokens, whichever is present),
// independent of the per-model defaults translator.TransformRequestWithProvider
// already applies. Params: {"limit": <int>}.
func capMaxTokens(body []byte, params Params) ([]byte, error) {
	limitRaw, ok := params["limit"]
	if !ok {
		return body, nil
	}
	limit, ok := asInt(limitRaw)
	if !ok || limit <= 0 {
		return body, nil
	}

	out := body
	for _, field := range []string{"max_tokens", "max_completion_tokens", "max_output_tokens"} {
		v := gjson.GetBytes(out, field)
		if v.Exists() && v.Int() > int64(limit) {
			next, err := sjson.SetBytes(out, field, limit)
			if err != nil {
				return nil, err
			}
			out = next
		}
	}
	return out, nil
}

// enhanceCacheMetadata injects an aggregator's pass-through metadata object
// (e.g. OpenRouter's "usage": {"include": true}, or a custom header-derived
// cache key) into the outgoing request body without disturbing any other
// field. Params: arbitrary key/value pairs merged at the top level under
// "metadata".
func enhanceCacheMetadata(body []byte, params Params) ([]byte, error) {
	if len(params) == 0 {
		return body, nil
	}
	out := body
	for k, v := range params {
		next, err := sjson.SetBytes(out, "metadata."+k, v)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return out, nil
}

// decorateAttribution adds aggregator-required attribution fields (e.g.
// OpenRouter's "transforms"/"route" hints, or a custom User-Agent-style
// marker embedded in the body for providers that don't expose request
// headers to the transformer stage). Params: arbitrary key/value pairs
// merged at the top level.
func decorateAttribution(body []byte, params Params) ([]byte, error) {
	if len(params) == 0 {
		return body, nil
	}
	out := body
	for k, v := range params {
		next, err := sjson.SetBytes(out, k, v)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return out, nil
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	digits := ""
	for i > 0 {
		digits = string(rune('0'+i%10)) + digits
		i /= 10
	}
	if neg {
		return "-" + digits
	}
	return digits
}
