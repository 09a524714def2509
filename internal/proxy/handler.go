// Package proxy implements the HTTP proxy server: FrontendRouter (spec §6)
// dispatches each of the three wire-compatible client surfaces through a
// shared bridge.Bridge/protocol.Adapter/cascade.Executor pipeline instead of
// hand-rolling a per-surface request/response translation, the way CLASP's
// original handler.go inlined three nearly-identical passthrough/transform
// code paths for its fixed opus/sonnet/haiku tiers.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jedarden/clasp-cascade/internal/bridge"
	"github.com/jedarden/clasp-cascade/internal/cascade"
	"github.com/jedarden/clasp-cascade/internal/cascadeerr"
	"github.com/jedarden/clasp-cascade/internal/config"
	"github.com/jedarden/clasp-cascade/internal/protocol"
	"github.com/jedarden/clasp-cascade/pkg/models"
)

// Metrics are the aggregate counters spec §6's /metrics and /metrics/prometheus
// endpoints report, grounded on CLASP's handler.go Metrics struct.
type Metrics struct {
	TotalRequests     int64
	SuccessRequests   int64
	ErrorRequests     int64
	StreamRequests    int64
	ToolCallRequests  int64
	TotalLatencyMs    int64
	CascadeExhausted  int64
	StartTime         time.Time
}

// Handler is FrontendRouter: it owns no upstream transport itself (that is
// the Executor's Invoker) and holds only what every surface needs in common.
type Handler struct {
	cfg         *config.Config
	executor    *cascade.Executor
	bridge      *bridge.Bridge
	metrics     *Metrics
	rateLimiter *RateLimiter
	costTracker *CostTracker
	version     string
}

// NewHandler builds a Handler bound to an already-constructed Executor (see
// server.go's buildExecutor, which turns config.Config.Tiers into
// cascade.TierConfig entries).
func NewHandler(cfg *config.Config, executor *cascade.Executor) *Handler {
	return &Handler{
		cfg:         cfg,
		executor:    executor,
		bridge:      bridge.New(),
		metrics:     &Metrics{StartTime: time.Now()},
		costTracker: NewCostTracker(),
	}
}

func (h *Handler) SetRateLimiter(rl *RateLimiter) { h.rateLimiter = rl }
func (h *Handler) SetVersion(v string)             { h.version = v }
func (h *Handler) GetMetrics() *Metrics            { return h.metrics }
func (h *Handler) GetCostTracker() *CostTracker    { return h.costTracker }

// requestedRouteFromQuery lets a client pin a specific tier with
// ?route=provider,model, the HTTP-level hook for spec §4.1's direct-routing
// rule; absent that, the cascade's own EWMA order decides.
func requestedRouteFromQuery(r *http.Request) string {
	return r.URL.Query().Get("route")
}

// --- /v1/messages: native Anthropic dialect ---

func (h *Handler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	h.handlePresetMessages(w, r, "")
}

// HandlePreset serves /preset/{name}/v1/messages: the preset's configured
// route (if any) is hoisted ahead of the EWMA order, same as an explicit
// ?route= query parameter, per spec §4.1's preset-table semantics.
func (h *Handler) HandlePreset(presetName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.handlePresetMessages(w, r, presetName)
	}
}

func (h *Handler) handlePresetMessages(w http.ResponseWriter, r *http.Request, presetName string) {
	body, err := readBody(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	var canonical models.AnthropicRequest
	if err := json.Unmarshal(body, &canonical); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid_request_error", "malformed JSON body: "+err.Error())
		return
	}
	route := requestedRouteFromQuery(r)
	if presetName != "" {
		if preset, ok := h.cfg.ResolvePreset(presetName); ok && preset.Route != "" {
			route = preset.Route
		}
	}
	h.dispatch(w, r, &canonical, route, protocol.Anthropic)
}

// --- /v1/chat/completions: OpenAI Chat Completions dialect ---

func (h *Handler) HandleChatCompletions(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeOpenAIError(w, http.StatusBadRequest, err.Error())
		return
	}
	var openAIReq models.OpenAIRequest
	if err := json.Unmarshal(body, &openAIReq); err != nil {
		writeOpenAIError(w, http.StatusBadRequest, "malformed JSON body: "+err.Error())
		return
	}
	canonical, err := h.bridge.OpenAIChatToAnthropic(&openAIReq)
	if err != nil {
		writeOpenAIError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.dispatch(w, r, canonical, requestedRouteFromQuery(r), protocol.OpenAIChat)
}

// --- /v1/responses: OpenAI Responses API dialect ---

func (h *Handler) HandleResponses(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeOpenAIError(w, http.StatusBadRequest, err.Error())
		return
	}
	var responsesReq models.ResponsesRequest
	if err := json.Unmarshal(body, &responsesReq); err != nil {
		writeOpenAIError(w, http.StatusBadRequest, "malformed JSON body: "+err.Error())
		return
	}
	canonical, err := h.bridge.ResponsesRequestToAnthropic(&responsesReq)
	if err != nil {
		writeOpenAIError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.dispatch(w, r, canonical, requestedRouteFromQuery(r), protocol.OpenAIResponses)
}

// dispatch is the one pipeline every surface funnels through: canonical
// request in, cascade.Executor dispatch, and response re-serialized into
// clientSurface's dialect, per spec §4.7/§6.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, canonical *models.AnthropicRequest, route string, clientSurface protocol.Dialect) {
	atomic.AddInt64(&h.metrics.TotalRequests, 1)
	if len(canonical.Tools) > 0 {
		atomic.AddInt64(&h.metrics.ToolCallRequests, 1)
	}
	started := time.Now()

	streaming := canonical.Stream && !h.cfg.ForceNonStreaming
	if streaming {
		h.dispatchStream(r.Context(), w, canonical, route, clientSurface, started)
		return
	}

	result, failures, err := h.executor.Execute(r.Context(), canonical, route)
	if err != nil {
		h.handleDispatchError(w, err, failures, clientSurface)
		return
	}

	atomic.AddInt64(&h.metrics.SuccessRequests, 1)
	atomic.AddInt64(&h.metrics.TotalLatencyMs, time.Since(started).Milliseconds())
	if result.Response.Usage != nil {
		h.costTracker.RecordUsage(result.UsedTier, canonical.Model, result.Response.Usage.InputTokens, result.Response.Usage.OutputTokens)
	}

	var out []byte
	var serErr error
	switch clientSurface {
	case protocol.OpenAIChat:
		out, serErr = h.bridge.AnthropicResponseToChatCompletion(result.Response)
	case protocol.OpenAIResponses:
		out, serErr = h.bridge.AnthropicResponseToResponses(result.Response)
	default:
		out, serErr = json.Marshal(result.Response)
	}
	if serErr != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "api_error", serErr.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Clasp-Tier", result.UsedTier)
	w.Write(out)
}

func (h *Handler) dispatchStream(ctx context.Context, w http.ResponseWriter, canonical *models.AnthropicRequest, route string, clientSurface protocol.Dialect, started time.Time) {
	atomic.AddInt64(&h.metrics.StreamRequests, 1)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorResponse(w, http.StatusInternalServerError, "api_error", "streaming unsupported by response writer")
		return
	}
	switch clientSurface {
	case protocol.OpenAIChat, protocol.OpenAIResponses:
		w.Header().Set("Content-Type", "text/event-stream")
	default:
		w.Header().Set("Content-Type", "text/event-stream")
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	messageID := generateMessageID()
	out := &flushWriter{w: w, flusher: flusher}
	outcome, err := h.executor.ExecuteStream(ctx, canonical, route, clientSurface, messageID, out)
	if err != nil {
		// Only cancellation propagates as a Go error; cascade exhaustion is
		// already framed on-wire by ExecuteStream itself (spec §4.7).
		atomic.AddInt64(&h.metrics.ErrorRequests, 1)
		return
	}
	if outcome.UsedTier == "" {
		atomic.AddInt64(&h.metrics.CascadeExhausted, 1)
		atomic.AddInt64(&h.metrics.ErrorRequests, 1)
		return
	}
	atomic.AddInt64(&h.metrics.SuccessRequests, 1)
	atomic.AddInt64(&h.metrics.TotalLatencyMs, time.Since(started).Milliseconds())
}

func (h *Handler) handleDispatchError(w http.ResponseWriter, err error, failures []cascade.TierFailure, clientSurface protocol.Dialect) {
	atomic.AddInt64(&h.metrics.ErrorRequests, 1)
	if cascadeerr.CascadeExhausted == errKind(err) {
		atomic.AddInt64(&h.metrics.CascadeExhausted, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write(cascade.ExhaustedBody(failures))
		return
	}
	writeErrorResponse(w, http.StatusBadGateway, "api_error", err.Error())
}

func errKind(err error) cascadeerr.Kind {
	var cerr *cascadeerr.Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return ""
}

// --- Read-only discovery surfaces (spec §6) ---

// HandlePresets lists the configured preset names for /v1/presets.
func (h *Handler) HandlePresets(w http.ResponseWriter, r *http.Request) {
	type presetInfo struct {
		Name  string `json:"name"`
		Route string `json:"route,omitempty"`
	}
	names := h.cfg.PresetNames()
	out := make([]presetInfo, 0, len(names))
	for _, name := range names {
		p, _ := h.cfg.ResolvePreset(name)
		out = append(out, presetInfo{Name: name, Route: p.Route})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"presets": out})
}

// HandleModels lists every configured tier's (provider, model) pair for
// /v1/models, in the OpenAI-compatible "object: list" shape clients expect.
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	type modelEntry struct {
		ID       string `json:"id"`
		Object   string `json:"object"`
		OwnedBy  string `json:"owned_by"`
		Dialect  string `json:"dialect"`
	}
	data := make([]modelEntry, 0, len(h.executor.Tiers))
	for _, t := range h.executor.Tiers {
		data = append(data, modelEntry{ID: t.RouteLabel(), Object: "model", OwnedBy: t.ProviderName, Dialect: string(t.Dialect)})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"object": "list", "data": data})
}

// HandleLatencies exposes the EWMA tracker's per-tier state for
// /v1/latencies, spec §4.4's read-only display surface.
func (h *Handler) HandleLatencies(w http.ResponseWriter, r *http.Request) {
	type tierLatency struct {
		Tier                string `json:"tier"`
		EWMAMillis          float64 `json:"ewma_ms"`
		SampleCount         int64   `json:"sample_count"`
		ConsecutiveFailures int64   `json:"consecutive_failures"`
		RateLimited         bool    `json:"rate_limited"`
		QuotaExhausted      bool    `json:"quota_exhausted"`
	}
	now := time.Now()
	snapshots := h.executor.Tracker.AllSnapshots()
	out := make([]tierLatency, 0, len(snapshots))
	for _, s := range snapshots {
		out = append(out, tierLatency{
			Tier:                s.Label,
			EWMAMillis:          s.EWMAMillis,
			SampleCount:         s.SampleCount,
			ConsecutiveFailures: s.ConsecutiveFailures,
			RateLimited:         !s.RateLimitUntil.IsZero() && s.RateLimitUntil.After(now),
			QuotaExhausted:      !s.QuotaExhaustedUntil.IsZero() && s.QuotaExhaustedUntil.After(now),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"tiers": out})
}

// HandleUsage reports accumulated cost/token usage for /v1/usage.
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.costTracker.GetSummary())
}

// HandleCosts is the pre-existing /costs surface, kept as an alias of
// /v1/usage for backward compatibility with CLASP-era dashboards, with the
// same POST ?action=reset affordance.
func (h *Handler) HandleCosts(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost && r.URL.Query().Get("action") == "reset" {
		h.costTracker.Reset()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "message": "usage data has been reset"})
		return
	}
	h.HandleUsage(w, r)
}

// HandleHealth reports liveness for /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"version": h.versionOrUnknown(),
		"uptime":  time.Since(h.metrics.StartTime).String(),
		"tiers":   len(h.executor.Tiers),
	})
}

func (h *Handler) versionOrUnknown() string {
	if h.version == "" {
		return "unknown"
	}
	return h.version
}

// HandleMetrics reports the JSON metrics surface for /metrics.
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	total := atomic.LoadInt64(&h.metrics.TotalRequests)
	success := atomic.LoadInt64(&h.metrics.SuccessRequests)
	totalLatency := atomic.LoadInt64(&h.metrics.TotalLatencyMs)
	var avgLatency float64
	if success > 0 {
		avgLatency = float64(totalLatency) / float64(success)
	}
	response := map[string]interface{}{
		"total_requests":    total,
		"success_requests":  success,
		"error_requests":    atomic.LoadInt64(&h.metrics.ErrorRequests),
		"stream_requests":   atomic.LoadInt64(&h.metrics.StreamRequests),
		"tool_call_requests": atomic.LoadInt64(&h.metrics.ToolCallRequests),
		"cascade_exhausted": atomic.LoadInt64(&h.metrics.CascadeExhausted),
		"avg_latency_ms":    avgLatency,
		"uptime_seconds":    time.Since(h.metrics.StartTime).Seconds(),
	}
	if h.rateLimiter != nil {
		allowed, denied := h.rateLimiter.Stats()
		response["rate_limit"] = map[string]int64{"allowed": allowed, "denied": denied}
	}
	response["costs"] = h.costTracker.GetSummary()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// HandleRoot handles root path requests.
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"name":    "clasp-cascade",
		"version": h.versionOrUnknown(),
		"status":  "running",
		"endpoints": map[string]string{
			"messages":         "/v1/messages",
			"chat_completions": "/v1/chat/completions",
			"responses":        "/v1/responses",
			"presets":          "/v1/presets",
			"models":           "/v1/models",
			"latencies":        "/v1/latencies",
			"usage":            "/v1/usage",
			"health":           "/health",
			"metrics":          "/metrics",
			"metrics_prometheus": "/metrics/prometheus",
		},
	})
}

// --- shared helpers ---

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

// flushWriter wraps http.ResponseWriter to auto-flush after each write.
type flushWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if fw.flusher != nil {
		fw.flusher.Flush()
	}
	return n, err
}

// generateMessageID mints a cascade-wide unique message id using
// google/uuid rather than the teacher's hand-rolled crypto/rand hex string.
func generateMessageID() string {
	return fmt.Sprintf("msg_%s", strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func writeErrorResponse(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"type": "error",
		"error": map[string]string{
			"type":    errType,
			"message": message,
		},
	})
}

func writeOpenAIError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"message": message,
			"type":    "invalid_request_error",
		},
	})
}
