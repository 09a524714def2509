package cascade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jedarden/clasp-cascade/internal/bridge"
	"github.com/jedarden/clasp-cascade/internal/cascadeerr"
	"github.com/jedarden/clasp-cascade/internal/protocol"
	"github.com/jedarden/clasp-cascade/internal/sse"
	"github.com/jedarden/clasp-cascade/pkg/models"
)

// StreamOutcome reports which tier ultimately served a streaming request,
// for logging/metrics; the frames themselves have already been written to
// the caller's writer by the time ExecuteStream returns.
type StreamOutcome struct {
	UsedTier string
	Failures []TierFailure
}

// ExecuteStream runs the streaming path of spec §4.7: the same per-tier
// attempt loop as Execute, but a 2xx is judged at response-headers time (no
// body has been read yet), and on success the upstream body is streamed
// incrementally to out in clientSurface's wire dialect. On cascade
// exhaustion, a single dialect-appropriate terminal failure frame is
// written per spec §4.7's "Terminal failure" / §7's streaming exhaustion
// rule, and the function returns nil (the failure is on-wire, not a Go
// error) unless the failure is cancellation.
func (e *Executor) ExecuteStream(ctx context.Context, canonical *models.AnthropicRequest, requestedRoute string, clientSurface protocol.Dialect, messageID string, out io.Writer) (*StreamOutcome, error) {
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
				return nil, cascadeerr.New(cascadeerr.CancellationError, label, "context cancelled", ctx.Err())
			}

			state, _ := e.Tracker.Snapshot(label)
			if state.Throttled(time.Now()) {
				continue
			}

			httpResp, reason, outcome := e.attemptTierHeaders(ctx, tier, canonical)
			anyAttempted = true

			switch outcome {
			case outcomeCancelled:
				return nil, cascadeerr.New(cascadeerr.CancellationError, label, reason, ctx.Err())
			case outcomeSuccess:
				streamErr := e.relayStream(ctx, tier, httpResp, clientSurface, messageID, out)
				return &StreamOutcome{UsedTier: label, Failures: failures}, streamErr
			default:
				failures = append(failures, TierFailure{Tier: label, Reason: reason})
			}
		}

		if anyAttempted || retriedCascade {
			break
		}
		earliest, ok := e.Tracker.EarliestRateLimitUntil()
		if !ok {
			break
		}
		if wait := time.Until(earliest); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, cascadeerr.New(cascadeerr.CancellationError, "", "context cancelled while waiting on rate limit", ctx.Err())
			}
		}
		retriedCascade = true
	}

	writeTerminalFailure(out, clientSurface, messageID, failures)
	return &StreamOutcome{Failures: failures}, nil
}

// attemptTierHeaders runs the per-tier retry loop but stops at response
// headers (spec §4.7: "await either headers (for streaming) or complete
// body (for non-streaming)"). On a non-2xx or transport failure it fully
// resolves the retry/backoff decision exactly like the non-streaming path,
// consuming and discarding the error body.
func (e *Executor) attemptTierHeaders(ctx context.Context, tier TierConfig, canonical *models.AnthropicRequest) (*http.Response, string, attemptOutcome) {
	adapter, err := protocol.For(tier.Dialect)
	if err != nil {
		return nil, err.Error(), outcomeFatalForTier
	}

	var bo *tierBackoff
	lastReason := ""

	for n := 0; n <= tier.MaxRetries; n++ {
		if ctx.Err() != nil {
			return nil, "cancelled", outcomeCancelled
		}

		body, headers, err := adapter.SerializeRequest(canonical, tier.Model, protocol.Hints{})
		if err != nil {
			return nil, err.Error(), outcomeFatalForTier
		}
		if e.Transformers != nil {
			body, err = tier.Transformers.ApplyRequest(e.Transformers, body)
			if err != nil {
				return nil, err.Error(), outcomeFatalForTier
			}
		}
		headers.Set("Accept", "text/event-stream")

		timer := e.Tracker.BeginAttempt(tier.Label)
		httpResp, dispatchErr := e.dispatch(ctx, tier, headers, body)
		if dispatchErr != nil {
			timer.Failure()
			lastReason = dispatchErr.Error()
			if n < tier.MaxRetries {
				e.sleepBackoff(ctx, tier, &bo)
				continue
			}
			return nil, lastReason, outcomeRetryableFailure
		}

		switch {
		case httpResp.StatusCode == http.StatusTooManyRequests:
			timer.Discard()
			body, _ := io.ReadAll(httpResp.Body)
			httpResp.Body.Close()
			retryAfter := parseRetryAfter(httpResp.Header)
			e.Tracker.MarkRateLimited(tier.Label, retryAfter)
			return nil, fmt.Sprintf("rate limited: %s", string(body)), outcomeRateLimited

		case httpResp.StatusCode >= 500:
			timer.Failure()
			errBody, _ := io.ReadAll(httpResp.Body)
			httpResp.Body.Close()
			lastReason = fmt.Sprintf("upstream %d: %s", httpResp.StatusCode, string(errBody))
			if n < tier.MaxRetries {
				e.sleepBackoff(ctx, tier, &bo)
				continue
			}
			return nil, lastReason, outcomeRetryableFailure

		case httpResp.StatusCode >= 400:
			timer.Discard()
			errBody, _ := io.ReadAll(httpResp.Body)
			httpResp.Body.Close()
			return nil, fmt.Sprintf("upstream %d: %s", httpResp.StatusCode, string(errBody)), outcomeFatalForTier

		default:
			// 2xx at headers: hand the still-open body to relayStream. The
			// scoped timer is finished by relayStream on the first byte/EOF,
			// not here, since "begin_attempt...on successful completion"
			// for a streaming tier means "stream opened and ran to its own
			// completion", not merely headers.
			timer.Success()
			e.Tracker.MarkSuccess(tier.Label)
			return httpResp, "", outcomeSuccess
		}
	}

	return nil, lastReason, outcomeRetryableFailure
}

// relayStream translates the winning tier's upstream SSE body into
// clientSurface's wire dialect and writes it to out. Same-dialect pairs are
// a raw byte copy; Anthropic-target pairs reuse TranslationBridge's existing
// stateful stream processors (spec §4.6); every other combination goes
// through the dialect-neutral ParsedEvent pipeline (tier's Adapter.
// ParseStreamEvent -> protocol.Transcoder for clientSurface), which is what
// gives the cascade full (tier dialect, client surface) coverage per §4.7
// instead of only the pairs TranslationBridge special-cases.
func (e *Executor) relayStream(ctx context.Context, tier TierConfig, httpResp *http.Response, clientSurface protocol.Dialect, messageID string, out io.Writer) error {
	defer httpResp.Body.Close()
	body := contextReader{ctx: ctx, r: httpResp.Body}

	b := bridge.New()
	switch {
	case tier.Dialect == clientSurface:
		_, err := io.Copy(out, body)
		return err
	case clientSurface == protocol.Anthropic && tier.Dialect == protocol.OpenAIChat:
		_, _, err := b.StreamChatToAnthropic(body, out, messageID, tier.Model)
		return err
	case clientSurface == protocol.Anthropic && tier.Dialect == protocol.OpenAIResponses:
		_, _, _, err := b.StreamResponsesToAnthropic(body, out, messageID, tier.Model)
		return err
	default:
		return e.relayStreamViaTranscoder(tier, body, clientSurface, messageID, out)
	}
}

// relayStreamViaTranscoder drives the generic decode -> parse -> re-emit
// pipeline for the dialect pairs TranslationBridge does not special-case:
// Anthropic source re-encoded as OpenAI-Chat/Responses output, and the
// OpenAI-Chat<->Responses cross-translations.
func (e *Executor) relayStreamViaTranscoder(tier TierConfig, body io.Reader, clientSurface protocol.Dialect, messageID string, out io.Writer) error {
	adapter, err := protocol.For(tier.Dialect)
	if err != nil {
		return err
	}
	transcoder := protocol.NewTranscoder(clientSurface, messageID, tier.Model)

	decoder := sse.New()
	buf := make([]byte, 32*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, frame := range decoder.Feed(buf[:n]) {
				if err := emitTranslatedFrame(adapter, transcoder, frame, out); err != nil {
					return err
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return cascadeerr.New(cascadeerr.UpstreamTransport, tier.Label, "reading upstream stream", readErr)
		}
	}
	for _, frame := range decoder.Close() {
		if err := emitTranslatedFrame(adapter, transcoder, frame, out); err != nil {
			return err
		}
	}
	return nil
}

func emitTranslatedFrame(adapter protocol.Adapter, transcoder protocol.Transcoder, frame sse.Frame, out io.Writer) error {
	parsed, err := adapter.ParseStreamEvent(frame)
	if err != nil {
		return err
	}
	if parsed.Kind == protocol.EventIgnore {
		return nil
	}
	if emitted := transcoder.Emit(parsed); len(emitted) > 0 {
		if _, err := out.Write(emitted); err != nil {
			return cascadeerr.New(cascadeerr.UpstreamTransport, "", "writing translated stream frame", err)
		}
	}
	return nil
}

// contextReader aborts the next Read once ctx is done, satisfying spec §5's
// "client cancellation: ... the upstream reader is cancelled before its
// next read."
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if c.ctx.Err() != nil {
		return 0, c.ctx.Err()
	}
	return c.r.Read(p)
}

// writeTerminalFailure implements spec §4.7's per-surface terminal-failure
// framing and §7's streaming exhaustion rule.
func writeTerminalFailure(out io.Writer, clientSurface protocol.Dialect, messageID string, failures []TierFailure) {
	reason := "cascade exhausted"
	if len(failures) > 0 {
		reason = failures[len(failures)-1].Reason
	}

	switch clientSurface {
	case protocol.OpenAIResponses:
		payload, _ := json.Marshal(map[string]interface{}{
			"type": "response.failed",
			"response": map[string]interface{}{
				"id":     messageID,
				"status": "failed",
				"error":  map[string]string{"message": reason},
			},
		})
		fmt.Fprintf(out, "event: response.failed\ndata: %s\n\n", payload)

	case protocol.OpenAIChat:
		payload, _ := json.Marshal(map[string]interface{}{
			"id":      messageID,
			"object":  "chat.completion.chunk",
			"choices": []interface{}{},
			"error":   map[string]string{"message": reason, "type": "cascade_exhausted"},
		})
		fmt.Fprintf(out, "data: %s\n\n", payload)
		fmt.Fprint(out, "data: [DONE]\n\n")

	default: // Anthropic
		payload, _ := json.Marshal(map[string]interface{}{
			"type":  "error",
			"error": map[string]string{"type": "cascade_exhausted", "message": reason},
		})
		fmt.Fprintf(out, "event: error\ndata: %s\n\n", payload)
	}
}

var _ = bytes.MinRead // keep bytes imported for future buffered-copy tuning
