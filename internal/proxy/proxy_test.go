// Package proxy implements unit tests for the HTTP proxy server components.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jedarden/clasp-cascade/internal/cascade"
	"github.com/jedarden/clasp-cascade/internal/config"
	"github.com/jedarden/clasp-cascade/internal/protocol"
	"github.com/jedarden/clasp-cascade/internal/transformer"
	"github.com/jedarden/clasp-cascade/pkg/models"
)

// testConfig returns a minimal single-tier Config for handler dispatch
// tests; the tier itself is never actually dialed since tests substitute
// a fakeInvoker at the cascade.Executor level.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Tiers = []config.TierSpec{{Provider: "test", Model: "model", Dialect: "anthropic"}}
	return cfg
}

// ===== Rate Limiter Tests =====

func TestRateLimiter(t *testing.T) {
	t.Run("Allow permits requests up to burst", func(t *testing.T) {
		rl := NewRateLimiterFromRPS(1, 5)
		for i := 0; i < 5; i++ {
			if !rl.Allow() {
				t.Errorf("expected request %d to be allowed", i)
			}
		}
	})

	t.Run("Allow denies after burst exhausted", func(t *testing.T) {
		rl := NewRateLimiterFromRPS(1, 2)
		for i := 0; i < 2; i++ {
			rl.Allow()
		}
		if rl.Allow() {
			t.Error("expected request to be denied after burst exhausted")
		}
	})

	t.Run("Stats tracks allowed and denied", func(t *testing.T) {
		rl := NewRateLimiterFromRPS(1, 2)
		rl.Allow()
		rl.Allow()
		rl.Allow() // denied

		allowed, denied := rl.Stats()
		if allowed != 2 || denied != 1 {
			t.Errorf("expected 2 allowed/1 denied, got %d/%d", allowed, denied)
		}
	})

	t.Run("WaitTime returns 0 when tokens available", func(t *testing.T) {
		rl := NewRateLimiterFromRPS(60, 10)
		if wait := rl.WaitTime(); wait != 0 {
			t.Errorf("expected 0 wait time, got %v", wait)
		}
	})

	t.Run("NewRateLimiter derives RPS from requests/window", func(t *testing.T) {
		rl := NewRateLimiter(60, 60, 1)
		if !rl.Allow() {
			t.Error("expected first request to be allowed")
		}
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("passes through non-API endpoints", func(t *testing.T) {
		rl := NewRateLimiterFromRPS(1, 1)
		rl.Allow() // exhaust

		handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("GET", "/health", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected /health to pass through, got %d", rr.Code)
		}
	})

	t.Run("rate limits /v1/messages endpoint", func(t *testing.T) {
		rl := NewRateLimiterFromRPS(1, 1)
		rl.Allow() // exhaust

		handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("POST", "/v1/messages", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusTooManyRequests {
			t.Errorf("expected 429, got %d", rr.Code)
		}
	})

	t.Run("rate limits every client-facing surface", func(t *testing.T) {
		for _, path := range []string{"/v1/chat/completions", "/v1/responses", "/preset/fast/v1/messages"} {
			if !isLimitedPath(path) {
				t.Errorf("expected %s to be rate-limited", path)
			}
		}
		for _, path := range []string{"/v1/presets", "/v1/models", "/v1/latencies", "/v1/usage", "/metrics"} {
			if isLimitedPath(path) {
				t.Errorf("expected %s to be exempt from rate limiting", path)
			}
		}
	})
}

// ===== Auth Middleware Tests =====

func TestAuthMiddleware(t *testing.T) {
	t.Run("passes through when auth disabled", func(t *testing.T) {
		config := &AuthConfig{Enabled: false}
		handler := AuthMiddleware(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("POST", "/v1/messages", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected 200 when auth disabled, got %d", rr.Code)
		}
	})

	t.Run("allows anonymous health when configured", func(t *testing.T) {
		config := &AuthConfig{Enabled: true, APIKey: "secret", AllowAnonymousHealth: true}
		handler := AuthMiddleware(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("GET", "/health", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected 200 for /health, got %d", rr.Code)
		}
	})

	t.Run("allows anonymous metrics when configured", func(t *testing.T) {
		config := &AuthConfig{Enabled: true, APIKey: "secret", AllowAnonymousMetrics: true}
		handler := AuthMiddleware(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("GET", "/metrics", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected 200 for /metrics, got %d", rr.Code)
		}
	})

	t.Run("rejects missing API key", func(t *testing.T) {
		config := &AuthConfig{Enabled: true, APIKey: "secret"}
		handler := AuthMiddleware(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("POST", "/v1/messages", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401 for missing key, got %d", rr.Code)
		}
	})

	t.Run("accepts valid x-api-key header", func(t *testing.T) {
		config := &AuthConfig{Enabled: true, APIKey: "secret-key"}
		handler := AuthMiddleware(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("POST", "/v1/messages", nil)
		req.Header.Set("x-api-key", "secret-key")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected 200 for valid key, got %d", rr.Code)
		}
	})

	t.Run("accepts valid Bearer token", func(t *testing.T) {
		config := &AuthConfig{Enabled: true, APIKey: "secret-key"}
		handler := AuthMiddleware(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("POST", "/v1/messages", nil)
		req.Header.Set("Authorization", "Bearer secret-key")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected 200 for valid Bearer token, got %d", rr.Code)
		}
	})
}

// ===== Cost Tracker Tests =====

func TestCostTracker(t *testing.T) {
	t.Run("NewCostTracker initializes correctly", func(t *testing.T) {
		ct := NewCostTracker()
		if ct.providerCosts == nil || ct.modelCosts == nil {
			t.Error("expected cost maps to be initialized")
		}
	})

	t.Run("RecordUsage tracks costs correctly", func(t *testing.T) {
		ct := NewCostTracker()
		ct.RecordUsage("openai", "gpt-4o", 1000, 500)

		summary := ct.GetSummary()
		if summary.TotalRequests != 1 {
			t.Errorf("expected 1 request, got %d", summary.TotalRequests)
		}
		if summary.TotalInputTokens != 1000 || summary.TotalOutputTokens != 500 {
			t.Errorf("expected 1000/500 tokens, got %d/%d", summary.TotalInputTokens, summary.TotalOutputTokens)
		}
	})

	t.Run("Reset clears all data", func(t *testing.T) {
		ct := NewCostTracker()
		ct.RecordUsage("openai", "gpt-4o", 1000, 500)
		ct.Reset()

		if ct.GetSummary().TotalRequests != 0 {
			t.Error("expected 0 requests after reset")
		}
	})
}

// ===== Handler dispatch tests =====

// fakeInvoker serves every dispatch from an in-memory canned response,
// standing in for cascade.Executor's *http.Client Invoker boundary.
type fakeInvoker struct {
	status int
	body   string
}

func (f fakeInvoker) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(bytes.NewBufferString(f.body)),
		Header:     make(http.Header),
	}, nil
}

func testExecutor(t *testing.T, dialect protocol.Dialect, status int, body string) *cascade.Executor {
	t.Helper()
	tiers := []cascade.TierConfig{{
		Label:        "test,model",
		ProviderName: "test",
		Model:        "model",
		Dialect:      dialect,
		BaseURL:      "http://upstream.invalid/v1",
	}}
	return cascade.New(tiers, fakeInvoker{status: status, body: body}, transformer.NewRegistry(), 500, false)
}

func TestHandleMessages_AnthropicPassthrough(t *testing.T) {
	respBody := `{"id":"msg_1","type":"message","role":"assistant","model":"model","content":[{"type":"text","text":"hi"}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`
	executor := testExecutor(t, protocol.Anthropic, http.StatusOK, respBody)
	h := NewHandler(testConfig(), executor)

	reqBody, _ := json.Marshal(models.AnthropicRequest{Model: "model", Messages: []models.AnthropicMessage{{Role: "user", Content: "hi"}}})
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(reqBody)).WithContext(context.Background())
	rr := httptest.NewRecorder()

	h.HandleMessages(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var got models.AnthropicResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.ID != "msg_1" {
		t.Errorf("expected id msg_1, got %s", got.ID)
	}
}

func TestHandleChatCompletions_TranslatesToAnthropicUpstream(t *testing.T) {
	respBody := `{"id":"msg_2","type":"message","role":"assistant","model":"model","content":[{"type":"text","text":"hello"}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`
	executor := testExecutor(t, protocol.Anthropic, http.StatusOK, respBody)
	h := NewHandler(testConfig(), executor)

	reqBody, _ := json.Marshal(models.OpenAIRequest{Model: "model", Messages: []models.OpenAIMessage{{Role: "user", Content: "hello"}}})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(reqBody))
	rr := httptest.NewRecorder()

	h.HandleChatCompletions(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var got map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got["object"] != "chat.completion" {
		t.Errorf("expected chat.completion object, got %v", got["object"])
	}
}

func TestHandleResponses_TranslatesToAnthropicUpstream(t *testing.T) {
	respBody := `{"id":"msg_3","type":"message","role":"assistant","model":"model","content":[{"type":"text","text":"hey"}],"stop_reason":"end_turn"}`
	executor := testExecutor(t, protocol.Anthropic, http.StatusOK, respBody)
	h := NewHandler(testConfig(), executor)

	reqBody, _ := json.Marshal(models.ResponsesRequest{Model: "model", Input: []models.ResponsesInput{{Type: "message", Role: "user", Content: "hey"}}})
	req := httptest.NewRequest(http.MethodPost, "/v1/responses", bytes.NewReader(reqBody))
	rr := httptest.NewRecorder()

	h.HandleResponses(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var got map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got["object"] != "response" {
		t.Errorf("expected response object, got %v", got["object"])
	}
}

func TestDispatch_CascadeExhaustedReturns503(t *testing.T) {
	executor := testExecutor(t, protocol.Anthropic, http.StatusInternalServerError, `{"error":"boom"}`)
	h := NewHandler(testConfig(), executor)

	reqBody, _ := json.Marshal(models.AnthropicRequest{Model: "model", Messages: []models.AnthropicMessage{{Role: "user", Content: "hi"}}})
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(reqBody))
	rr := httptest.NewRecorder()

	h.HandleMessages(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on cascade exhaustion, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	executor := testExecutor(t, protocol.Anthropic, http.StatusOK, `{}`)
	h := NewHandler(testConfig(), executor)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.HandleHealth(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestHandleModelsAndPresets(t *testing.T) {
	executor := testExecutor(t, protocol.Anthropic, http.StatusOK, `{}`)
	h := NewHandler(testConfig(), executor)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rr := httptest.NewRecorder()
	h.HandleModels(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var modelsResp map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &modelsResp); err != nil {
		t.Fatalf("decoding /v1/models: %v", err)
	}
	data, ok := modelsResp["data"].([]interface{})
	if !ok || len(data) != 1 {
		t.Errorf("expected 1 model entry, got %v", modelsResp["data"])
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/presets", nil)
	rr = httptest.NewRecorder()
	h.HandlePresets(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestHandleLatencies(t *testing.T) {
	executor := testExecutor(t, protocol.Anthropic, http.StatusOK, `{}`)
	h := NewHandler(testConfig(), executor)

	req := httptest.NewRequest(http.MethodGet, "/v1/latencies", nil)
	rr := httptest.NewRecorder()
	h.HandleLatencies(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding /v1/latencies: %v", err)
	}
	tiers, ok := out["tiers"].([]interface{})
	if !ok || len(tiers) != 1 {
		t.Errorf("expected 1 tier latency entry, got %v", out["tiers"])
	}
}
