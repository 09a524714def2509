// Package cascade implements the CascadeExecutor of spec §4.7: it drives a
// canonical request through an ordered tier list to a terminal outcome,
// applying per-tier retry policy, EWMA-scaled exponential backoff, 429/5xx/4xx
// dispatch rules, and cancellation. Grounded on CLASP's proxy/handler.go
// fallback-provider loop (the tier/fallback concept already existed, just
// fixed at three hard-coded tiers) and proxy/queue.go's CircuitBreaker state
// machine idiom, generalized to an arbitrary ordered tier list per spec §4.1.
package cascade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/jedarden/clasp-cascade/internal/cascadeerr"
	"github.com/jedarden/clasp-cascade/internal/ewma"
	"github.com/jedarden/clasp-cascade/internal/protocol"
	"github.com/jedarden/clasp-cascade/internal/transformer"
	"github.com/jedarden/clasp-cascade/pkg/models"
)

// TierConfig is the immutable (provider, model) pair bound to a cascade
// position, per spec §3 "Tier".
type TierConfig struct {
	Label             string
	ProviderName      string
	Model             string
	Dialect           protocol.Dialect
	BaseURL           string
	APIKey            string
	AuthHeader        string // defaults to "Authorization" with "Bearer " prefix when empty
	MaxRetries        int
	BaseBackoffMillis int64
	BackoffMultiplier float64
	MaxBackoffMillis  int64
	Transformers      transformer.Chain
}

// RouteLabel returns the "providerName,modelId" route string spec §4.1
// resolves direct-routing requests against.
func (t TierConfig) RouteLabel() string { return t.ProviderName + "," + t.Model }

// Invoker is the abstract "upstream HTTP invoker" spec §1 names at the
// system boundary. *http.Client satisfies it directly.
type Invoker interface {
	Do(req *http.Request) (*http.Response, error)
}

// Executor drives the per-tier attempt loop.
type Executor struct {
	Tiers           []TierConfig
	Tracker         *ewma.Tracker
	Transformers    *transformer.Registry
	Invoker         Invoker
	BaselineMillis  float64
	IgnoreDirectRouting bool

	byLabel map[string]TierConfig
}

// New builds an Executor. baselineMillis seeds both the EWMA tracker's
// baseline and the backoff scaling baseline (spec §4.7 step 3).
func New(tiers []TierConfig, invoker Invoker, registry *transformer.Registry, baselineMillis float64, ignoreDirectRouting bool) *Executor {
	labels := make([]string, 0, len(tiers))
	byLabel := make(map[string]TierConfig, len(tiers))
	for _, t := range tiers {
		labels = append(labels, t.Label)
		byLabel[t.Label] = t
	}
	return &Executor{
		Tiers:               tiers,
		Tracker:             ewma.NewTracker(labels, baselineMillis),
		Transformers:        registry,
		Invoker:             invoker,
		BaselineMillis:      baselineMillis,
		IgnoreDirectRouting: ignoreDirectRouting,
		byLabel:             byLabel,
	}
}

// tierBackoff implements backoff.BackOff per spec §4.7 step 3:
// delay(n) = min(base*mult^n, max) * max(1.0, ewma_ms/baseline_ms).
type tierBackoff struct {
	tier    TierConfig
	scale   float64
	attempt int
}

func newTierBackoff(tier TierConfig, snapshot ewma.State, baseline float64) *tierBackoff {
	scale := 1.0
	if baseline > 0 && snapshot.EWMAMillis > baseline {
		scale = snapshot.EWMAMillis / baseline
	}
	return &tierBackoff{tier: tier, scale: scale}
}

func (b *tierBackoff) NextBackOff() time.Duration {
	n := b.attempt
	b.attempt++
	delay := float64(b.tier.BaseBackoffMillis) * math.Pow(b.tier.BackoffMultiplier, float64(n))
	if delay > float64(b.tier.MaxBackoffMillis) {
		delay = float64(b.tier.MaxBackoffMillis)
	}
	delay *= b.scale
	return time.Duration(delay) * time.Millisecond
}

// attemptOutcome classifies one dispatch per spec §4.7 steps d-g.
type attemptOutcome int

const (
	outcomeSuccess attemptOutcome = iota
	outcomeRateLimited
	outcomeRetryableFailure // 5xx / transport / timeout
	outcomeFatalForTier     // 4xx non-429
	outcomeCancelled
)

// TierFailure records why a tier was abandoned, for the final 503 body.
type TierFailure struct {
	Tier   string
	Reason string
}

// Result is a successful non-streaming cascade outcome.
type Result struct {
	Response  *models.AnthropicResponse
	UsedTier  string
	RawBody   []byte
	StatusCode int
}

// Execute runs the non-streaming path: attempts tiers in EWMATracker order
// until one returns 2xx, translating the winning response to Anthropic
// canonical shape via the tier's ProtocolAdapter.
func (e *Executor) Execute(ctx context.Context, canonical *models.AnthropicRequest, requestedRoute string) (*Result, []TierFailure, error) {
	var failures []TierFailure
	retriedCascade := false

	for {
		order := e.Tracker.Order(requestedRoute, e.IgnoreDirectRouting)
		anyAttempted := false

		for _, label := range order {
			tier, ok := e.byLabel[label]
			if !ok {
				continue
			}
			if ctx.Err() != nil {
				return nil, failures, cascadeerr.New(cascadeerr.CancellationError, label, "context cancelled", ctx.Err())
			}

			state, _ := e.Tracker.Snapshot(label)
			if state.Throttled(time.Now()) {
				continue
			}

			result, outcome, reason, err := e.attemptTier(ctx, tier, canonical)
			anyAttempted = true

			switch outcome {
			case outcomeSuccess:
				return result, failures, nil
			case outcomeCancelled:
				return nil, failures, err
			default:
				failures = append(failures, TierFailure{Tier: label, Reason: reason})
			}
		}

		if anyAttempted || retriedCascade {
			break
		}

		// All tiers were skipped for throttling: wait for the earliest
		// rate_limit_until, then retry the cascade exactly once.
		earliest, ok := e.Tracker.EarliestRateLimitUntil()
		if !ok {
			break
		}
		wait := time.Until(earliest)
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, failures, cascadeerr.New(cascadeerr.CancellationError, "", "context cancelled while waiting on rate limit", ctx.Err())
			}
		}
		retriedCascade = true
	}

	lastReason := "no tier available"
	if len(failures) > 0 {
		lastReason = failures[len(failures)-1].Reason
	}
	return nil, failures, cascadeerr.New(cascadeerr.CascadeExhausted, "", lastReason, nil)
}

// attemptTier runs the full per-tier retry loop (spec §4.7 steps 1-2) for one
// tier and returns either a success Result or the terminal outcome/reason
// for that tier.
func (e *Executor) attemptTier(ctx context.Context, tier TierConfig, canonical *models.AnthropicRequest) (*Result, attemptOutcome, string, error) {
	adapter, err := protocol.For(tier.Dialect)
	if err != nil {
		return nil, outcomeFatalForTier, err.Error(), nil
	}

	var bo *tierBackoff
	lastReason := ""

	for n := 0; n <= tier.MaxRetries; n++ {
		if ctx.Err() != nil {
			return nil, outcomeCancelled, "cancelled", cascadeerr.New(cascadeerr.CancellationError, tier.Label, "context cancelled", ctx.Err())
		}

		body, headers, err := adapter.SerializeRequest(canonical, tier.Model, protocol.Hints{})
		if err != nil {
			return nil, outcomeFatalForTier, err.Error(), nil
		}
		if e.Transformers != nil {
			body, err = tier.Transformers.ApplyRequest(e.Transformers, body)
			if err != nil {
				return nil, outcomeFatalForTier, err.Error(), nil
			}
		}

		timer := e.Tracker.BeginAttempt(tier.Label)
		httpResp, dispatchErr := e.dispatch(ctx, tier, headers, body)
		if dispatchErr != nil {
			timer.Failure()
			lastReason = dispatchErr.Error()
			if n < tier.MaxRetries {
				e.sleepBackoff(ctx, tier, &bo)
				continue
			}
			return nil, outcomeRetryableFailure, lastReason, nil
		}

		respBody, readErr := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		if readErr != nil {
			timer.Failure()
			lastReason = readErr.Error()
			if n < tier.MaxRetries {
				e.sleepBackoff(ctx, tier, &bo)
				continue
			}
			return nil, outcomeRetryableFailure, lastReason, nil
		}

		switch {
		case httpResp.StatusCode == http.StatusTooManyRequests:
			timer.Discard()
			retryAfter := parseRetryAfter(httpResp.Header)
			e.Tracker.MarkRateLimited(tier.Label, retryAfter)
			return nil, outcomeRateLimited, fmt.Sprintf("rate limited: %s", string(respBody)), nil

		case httpResp.StatusCode >= 500:
			timer.Failure()
			lastReason = fmt.Sprintf("upstream %d: %s", httpResp.StatusCode, string(respBody))
			if n < tier.MaxRetries {
				e.sleepBackoff(ctx, tier, &bo)
				continue
			}
			return nil, outcomeRetryableFailure, lastReason, nil

		case httpResp.StatusCode >= 400:
			// Non-429 client error: fatal for this tier, no retry, no EWMA
			// penalty (spec §9 Open Question b).
			timer.Discard()
			return nil, outcomeFatalForTier, fmt.Sprintf("upstream %d: %s", httpResp.StatusCode, string(respBody)), nil

		default:
			timer.Success()
			e.Tracker.MarkSuccess(tier.Label)
			if e.Transformers != nil {
				respBody, err = tier.Transformers.ApplyResponse(e.Transformers, respBody)
				if err != nil {
					return nil, outcomeFatalForTier, err.Error(), nil
				}
			}
			canonicalResp, err := adapter.ParseNonStreamResponse(respBody, canonical.Model)
			if err != nil {
				return nil, outcomeFatalForTier, err.Error(), nil
			}
			return &Result{Response: canonicalResp, UsedTier: tier.Label, RawBody: respBody, StatusCode: httpResp.StatusCode}, outcomeSuccess, "", nil
		}
	}

	return nil, outcomeRetryableFailure, lastReason, nil
}

func (e *Executor) sleepBackoff(ctx context.Context, tier TierConfig, bo **tierBackoff) {
	if *bo == nil {
		snapshot, _ := e.Tracker.Snapshot(tier.Label)
		*bo = newTierBackoff(tier, snapshot, e.BaselineMillis)
	}
	delay := (*bo).NextBackOff()
	if delay <= 0 {
		return
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

func (e *Executor) dispatch(ctx context.Context, tier TierConfig, headers http.Header, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tier.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, cascadeerr.New(cascadeerr.UpstreamTransport, tier.Label, "building request", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if tier.APIKey != "" {
		headerName := tier.AuthHeader
		if headerName == "" {
			req.Header.Set("Authorization", "Bearer "+tier.APIKey)
		} else {
			req.Header.Set(headerName, tier.APIKey)
		}
	}
	resp, err := e.Invoker.Do(req)
	if err != nil {
		return nil, cascadeerr.New(cascadeerr.UpstreamTransport, tier.Label, "dispatching request", err)
	}
	return resp, nil
}

// parseRetryAfter reads the Retry-After header (delta-seconds or HTTP date)
// per spec §4.7 step d, falling back to a 30s default.
func parseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// exhaustedBody builds the §7 "User-visible failure behavior" JSON body for
// non-streaming cascade exhaustion.
func ExhaustedBody(failures []TierFailure) []byte {
	reason := "cascade exhausted"
	if len(failures) > 0 {
		reason = failures[len(failures)-1].Reason
	}
	body, _ := json.Marshal(map[string]interface{}{
		"error": map[string]string{
			"message": reason,
			"type":    "cascade_exhausted",
		},
	})
	return body
}

// backoffRetry is kept to document the intended use of cenkalti/backoff/v5's
// driver loop for a single tier's retries; the executor above inlines the
// loop itself because it needs to interleave HTTP status inspection (429 vs
// 5xx vs 4xx) between attempts, which backoff.Retry's single-function
// contract doesn't expose. tierBackoff still implements backoff.BackOff so
// it can be swapped into backoff.Retry by a caller that only needs uniform
// retry-until-success semantics (e.g. a future warm-up health check).
var _ backoff.BackOff = (*tierBackoff)(nil)
