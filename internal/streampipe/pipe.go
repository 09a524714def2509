// Package streampipe implements the bounded-queue glue of spec §4.8: a
// fixed-capacity queue of already-serialized SSE frames sitting between the
// translator (producer, writing one frame per io.Writer.Write call) and the
// client writer (consumer), with lifecycle-never-drop / delta-coalesce
// backpressure. The queue shape is adapted from CLASP's
// internal/proxy/queue.go RequestQueue (container/list + sync.Cond).
package streampipe

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// errPipeClosed is returned by Write after a normal Close.
var errPipeClosed = errors.New("streampipe: closed")

// errQueueFullTimeout is returned by Write (and surfaces as CloseWithError's
// cause) when a non-coalescable frame could not be enqueued before the
// configured timeout.
var errQueueFullTimeout = errors.New("streampipe: queue full, enqueue timeout exceeded")

// kind classifies a frame for the never-drop / may-coalesce policy.
type kind int

const (
	kindLifecycle kind = iota
	kindTextDelta
	kindReasoningDelta
	kindToolArgsDelta
)

// lifecycle event names across all three dialects (spec glossary:
// "Lifecycle event"): loss of any of these would break stream-level
// semantics.
var lifecycleEvents = map[string]bool{
	"message_start":             true,
	"content_block_start":       true,
	"content_block_stop":        true,
	"message_delta":             true,
	"message_stop":              true,
	"ping":                      true,
	"response.created":          true,
	"response.in_progress":      true,
	"response.output_item.added": true,
	"response.output_item.done":  true,
	"response.completed":         true,
	"response.failed":            true,
	"response.cancelled":         true,
}

type queuedFrame struct {
	raw       []byte
	kind      kind
	toolIndex int // meaningful only for kindToolArgsDelta
}

// classify inspects one fully-serialized "event: X\ndata: Y\n\n" (or
// "data: Y\n\n") frame and determines its coalescing kind. It never
// returns an error: anything it cannot positively identify as a delta is
// treated conservatively as lifecycle (never dropped/coalesced).
func classify(raw []byte) queuedFrame {
	s := string(raw)
	eventName, data := splitFrame(s)

	if data == "[DONE]" {
		return queuedFrame{raw: raw, kind: kindLifecycle}
	}
	if eventName != "" && lifecycleEvents[eventName] {
		// A lifecycle-named event may still carry a delta payload
		// (content_block_delta is not itself in the lifecycle set, so
		// this branch only matches true lifecycle markers).
		return queuedFrame{raw: raw, kind: kindLifecycle}
	}

	switch eventName {
	case "content_block_delta":
		deltaType := gjson.Get(data, "delta.type").String()
		index := int(gjson.Get(data, "index").Int())
		switch deltaType {
		case "text_delta":
			return queuedFrame{raw: raw, kind: kindTextDelta, toolIndex: index}
		case "thinking_delta":
			return queuedFrame{raw: raw, kind: kindReasoningDelta, toolIndex: index}
		case "input_json_delta":
			return queuedFrame{raw: raw, kind: kindToolArgsDelta, toolIndex: index}
		}
	case "response.output_text.delta":
		return queuedFrame{raw: raw, kind: kindTextDelta, toolIndex: int(gjson.Get(data, "index").Int())}
	case "response.reasoning_text.delta":
		return queuedFrame{raw: raw, kind: kindReasoningDelta, toolIndex: int(gjson.Get(data, "index").Int())}
	case "response.function_call_arguments.delta":
		return queuedFrame{raw: raw, kind: kindToolArgsDelta, toolIndex: int(gjson.Get(data, "index").Int())}
	}

	// Data-only OpenAI-Chat dialect: no event: line, dispatch on choices[0].
	if eventName == "" {
		if gjson.Get(data, "choices.0.delta.content").Exists() {
			return queuedFrame{raw: raw, kind: kindTextDelta, toolIndex: 0}
		}
		if gjson.Get(data, "choices.0.delta.reasoning").Exists() {
			return queuedFrame{raw: raw, kind: kindReasoningDelta, toolIndex: 0}
		}
		if tc := gjson.Get(data, "choices.0.delta.tool_calls.0"); tc.Exists() {
			return queuedFrame{raw: raw, kind: kindToolArgsDelta, toolIndex: int(tc.Get("index").Int())}
		}
	}

	return queuedFrame{raw: raw, kind: kindLifecycle}
}

func splitFrame(s string) (event, data string) {
	for _, line := range splitLines(s) {
		switch {
		case len(line) >= 7 && line[:7] == "event: ":
			event = line[7:]
		case len(line) >= 6 && line[:6] == "data: ":
			data = line[6:]
		case len(line) >= 5 && line[:5] == "data:":
			data = line[5:]
		}
	}
	return event, data
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// coalesce merges `next` into `trailing` (both must be the same kind and
// tool index) by appending next's textual fragment into trailing's, per
// spec §4.8: "appending the new fragment to the trailing queued delta ...
// no data is discarded, only event count is reduced." Returns the merged
// frame and true on success; false if the JSON shape was unexpected (in
// which case the caller must not coalesce and should treat the queue as
// genuinely full).
func coalesce(trailing, next queuedFrame) (queuedFrame, bool) {
	if trailing.kind != next.kind || trailing.toolIndex != next.toolIndex {
		return queuedFrame{}, false
	}

	tEvent, tData := splitFrame(string(trailing.raw))
	_, nData := splitFrame(string(next.raw))

	var path string
	switch trailing.kind {
	case kindTextDelta:
		if gjson.Get(tData, "delta.text").Exists() {
			path = "delta.text"
		} else {
			path = "choices.0.delta.content"
		}
	case kindReasoningDelta:
		if gjson.Get(tData, "delta.thinking").Exists() {
			path = "delta.thinking"
		} else {
			path = "choices.0.delta.reasoning"
		}
	case kindToolArgsDelta:
		if gjson.Get(tData, "delta.partial_json").Exists() {
			path = "delta.partial_json"
		} else {
			path = "choices.0.delta.tool_calls.0.function.arguments"
		}
	default:
		return queuedFrame{}, false
	}

	merged := gjson.Get(tData, path).String() + gjson.Get(nData, path).String()
	out, err := sjson.Set(tData, path, merged)
	if err != nil {
		return queuedFrame{}, false
	}

	raw := rebuildFrame(tEvent, out)
	return queuedFrame{raw: raw, kind: trailing.kind, toolIndex: trailing.toolIndex}, true
}

func rebuildFrame(event, data string) []byte {
	if event != "" {
		return []byte("event: " + event + "\ndata: " + data + "\n\n")
	}
	return []byte("data: " + data + "\n\n")
}

// Pipe is a bounded FIFO of serialized SSE frames. Producers call Write
// (satisfying io.Writer, so it can be handed directly to
// translator.NewStreamProcessor / NewResponsesStreamProcessor); consumers
// call Next in a loop until it reports closed.
type Pipe struct {
	mu           sync.Mutex
	notEmpty     *sync.Cond
	notFull      *sync.Cond
	queue        *list.List
	capacity     int
	closed       bool
	closeErr     error
	ctx          context.Context
	cancel       context.CancelFunc
	enqueueDelay time.Duration

	// Backpressure metric, incremented once per "queue full" occurrence.
	BackpressureEvents func()
}

// New creates a Pipe with the given frame capacity (spec's SSE_BUFFER_SIZE)
// and enqueue timeout (how long a non-coalescable enqueue may block before
// StreamPipe aborts the upstream reader and synthesizes a terminal failure).
func New(parent context.Context, capacity int, enqueueTimeout time.Duration) *Pipe {
	if capacity <= 0 {
		capacity = 64
	}
	ctx, cancel := context.WithCancel(parent)
	p := &Pipe{
		queue:        list.New(),
		capacity:     capacity,
		ctx:          ctx,
		cancel:       cancel,
		enqueueDelay: enqueueTimeout,
	}
	p.notEmpty = sync.NewCond(&p.mu)
	p.notFull = sync.NewCond(&p.mu)
	return p
}

// Write implements io.Writer. Each call is expected to carry exactly one
// serialized SSE frame, matching how StreamProcessor/ResponsesStreamProcessor
// call writer.Write once per emitted event.
func (p *Pipe) Write(b []byte) (int, error) {
	frame := classify(append([]byte(nil), b...))

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, p.closeErrLocked()
	}

	if p.queue.Len() < p.capacity {
		p.queue.PushBack(frame)
		p.notEmpty.Signal()
		return len(b), nil
	}

	// Queue full: try to coalesce into the trailing frame.
	if frame.kind != kindLifecycle {
		back := p.queue.Back()
		trailing := back.Value.(queuedFrame)
		if merged, ok := coalesce(trailing, frame); ok {
			back.Value = merged
			return len(b), nil
		}
	}

	if p.BackpressureEvents != nil {
		p.BackpressureEvents()
	}

	// Cannot coalesce (lifecycle frame, or shape mismatch) and the queue
	// is full: block until space frees or the enqueue timeout elapses, per
	// spec §4.8's "blocks or aborts; it does not drop."
	var timedOut bool
	if p.enqueueDelay > 0 {
		timer := time.AfterFunc(p.enqueueDelay, func() {
			p.mu.Lock()
			timedOut = true
			p.notFull.Broadcast()
			p.mu.Unlock()
		})
		defer timer.Stop()
	}
	for p.queue.Len() >= p.capacity && !p.closed && !timedOut {
		p.notFull.Wait()
	}
	if timedOut && p.queue.Len() >= p.capacity && !p.closed {
		p.abortLocked()
		return 0, errQueueFullTimeout
	}
	if p.closed {
		return 0, p.closeErrLocked()
	}
	p.queue.PushBack(frame)
	p.notEmpty.Signal()
	return len(b), nil
}

// Next blocks until a frame is available, the pipe is closed (returns
// ok=false), or ctx is cancelled (returns ok=false).
func (p *Pipe) Next(ctx context.Context) (raw []byte, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.queue.Len() == 0 && !p.closed {
		if ctx.Err() != nil {
			return nil, false
		}
		p.notEmpty.Wait()
	}
	if p.queue.Len() == 0 {
		return nil, false
	}
	front := p.queue.Front()
	p.queue.Remove(front)
	p.notFull.Signal()
	return front.Value.(queuedFrame).raw, true
}

// Close closes the pipe normally (end of stream, [DONE] observed).
func (p *Pipe) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.cancel()
	p.notEmpty.Broadcast()
	p.notFull.Broadcast()
}

// CloseWithError aborts the pipe: the upstream reader should stop (ctx is
// cancelled) and the client side should synthesize a terminal failure
// frame and close.
func (p *Pipe) CloseWithError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.closeErr = err
	p.cancel()
	p.notEmpty.Broadcast()
	p.notFull.Broadcast()
}

// Context is cancelled when the pipe closes for any reason; the upstream
// reader goroutine should select on it to stop promptly on client
// disconnect (spec §4.8, §5: "cancelled promptly, within one outstanding
// upstream read").
func (p *Pipe) Context() context.Context { return p.ctx }

func (p *Pipe) abortLocked() {
	p.closed = true
	p.closeErr = errQueueFullTimeout
	p.cancel()
	p.notEmpty.Broadcast()
	p.notFull.Broadcast()
}

func (p *Pipe) closeErrLocked() error {
	if p.closeErr != nil {
		return p.closeErr
	}
	return errPipeClosed
}
