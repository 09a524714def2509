// Package ewma implements the adaptive per-tier latency tracker described
// in spec §4.4: an exponentially-weighted moving average over attempt
// latency, rate-limit/quota bookkeeping, and stable tier reordering.
package ewma

import (
	"sort"
	"sync"
	"time"
)

// Alpha is the EWMA smoothing factor recommended by the spec.
const Alpha = 0.2

// PromotionThreshold is the minimum sample_count before a tier's position
// may be reordered by observed latency.
const PromotionThreshold = 3

// State is the mutable, concurrent per-tier record described in spec §3.
type State struct {
	Label               string
	EWMAMillis          float64
	SampleCount         int64
	RateLimitUntil      time.Time
	QuotaExhaustedUntil time.Time
	ConsecutiveFailures int64
}

func (s *State) rateLimited(now time.Time) bool {
	return !s.RateLimitUntil.IsZero() && s.RateLimitUntil.After(now)
}

func (s *State) quotaExhausted(now time.Time) bool {
	return !s.QuotaExhaustedUntil.IsZero() && s.QuotaExhaustedUntil.After(now)
}

// Throttled reports whether the tier must currently be skipped by the
// cascade executor.
func (s *State) Throttled(now time.Time) bool {
	return s.rateLimited(now) || s.quotaExhausted(now)
}

type tierEntry struct {
	state    *State
	position int // configured order, for stable tie-breaking
	mu       sync.Mutex
}

// Tracker holds one State per configured tier and implements the ordering,
// timer, and mark_* operations of spec §4.4. BaselineMillis is the "baseline
// latency" used by the failure-penalty and backoff-scaling formulas; it is
// typically the fastest tier's nominal latency or a fixed constant from
// configuration.
type Tracker struct {
	mu             sync.RWMutex
	order          []string // configured tier labels, in configured order
	entries        map[string]*tierEntry
	baselineMillis float64
}

// NewTracker seeds a tracker for the given ordered tier labels.
func NewTracker(tierLabels []string, baselineMillis float64) *Tracker {
	if baselineMillis <= 0 {
		baselineMillis = 500
	}
	t := &Tracker{
		order:          append([]string(nil), tierLabels...),
		entries:        make(map[string]*tierEntry, len(tierLabels)),
		baselineMillis: baselineMillis,
	}
	for i, label := range tierLabels {
		t.entries[label] = &tierEntry{state: &State{Label: label}, position: i}
	}
	return t
}

func (t *Tracker) entry(tier string) *tierEntry {
	t.mu.RLock()
	e := t.entries[tier]
	t.mu.RUnlock()
	return e
}

// Snapshot returns a copy of a tier's current state, for read-only display
// (e.g. the /v1/latencies endpoint).
func (t *Tracker) Snapshot(tier string) (State, bool) {
	e := t.entry(tier)
	if e == nil {
		return State{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.state, true
}

// AllSnapshots returns a copy of every tier's state in configured order.
func (t *Tracker) AllSnapshots() []State {
	t.mu.RLock()
	labels := append([]string(nil), t.order...)
	t.mu.RUnlock()

	out := make([]State, 0, len(labels))
	for _, label := range labels {
		if s, ok := t.Snapshot(label); ok {
			out = append(out, s)
		}
	}
	return out
}

// Order returns a permutation of the configured tier list per spec §4.4:
// tiers with sample_count >= PromotionThreshold are sorted by ewma_ms
// ascending; tiers below the threshold keep their configured relative
// position. Tiers that are currently throttled are moved to the back
// (still eligible -- the executor decides whether to skip them). If
// requestedLabel is non-empty and ignoreDirectRouting is false, that tier
// is hoisted to the front.
func (t *Tracker) Order(requestedLabel string, ignoreDirectRouting bool) []string {
	now := time.Now()

	t.mu.RLock()
	labels := append([]string(nil), t.order...)
	t.mu.RUnlock()

	type ranked struct {
		label     string
		position  int
		eligible  bool // sample_count >= threshold
		ewma      float64
		throttled bool
	}

	ranks := make([]ranked, 0, len(labels))
	for i, label := range labels {
		e := t.entry(label)
		e.mu.Lock()
		s := e.state
		ranks = append(ranks, ranked{
			label:     label,
			position:  i,
			eligible:  s.SampleCount >= PromotionThreshold,
			ewma:      s.EWMAMillis,
			throttled: s.Throttled(now),
		})
		e.mu.Unlock()
	}

	// Stable merge: a ranked-but-not-eligible tier keeps its configured
	// position relative to all other tiers (eligible or not); eligible
	// tiers are additionally compared to one another by EWMA. We achieve
	// this with a stable sort whose comparator only orders two eligible
	// entries by latency, and otherwise falls back to configured position.
	sort.SliceStable(ranks, func(i, j int) bool {
		a, b := ranks[i], ranks[j]
		if a.throttled != b.throttled {
			return !a.throttled // non-throttled first
		}
		if a.eligible && b.eligible {
			return a.ewma < b.ewma
		}
		return a.position < b.position
	})

	result := make([]string, len(ranks))
	for i, r := range ranks {
		result[i] = r.label
	}

	if requestedLabel != "" && !ignoreDirectRouting {
		result = hoist(result, requestedLabel)
	}
	return result
}

func hoist(labels []string, target string) []string {
	idx := -1
	for i, l := range labels {
		if l == target {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return labels
	}
	out := make([]string, 0, len(labels))
	out = append(out, target)
	for i, l := range labels {
		if i != idx {
			out = append(out, l)
		}
	}
	return out
}

// Timer is returned by BeginAttempt; callers must call exactly one of
// Success or Failure.
type Timer struct {
	tracker *Tracker
	tier    string
	started time.Time
	done    bool
}

// BeginAttempt starts a scoped timer for an attempt against tier.
func (t *Tracker) BeginAttempt(tier string) *Timer {
	return &Timer{tracker: t, tier: tier, started: time.Now()}
}

// Success records a successful completion, updating EWMA with the elapsed
// time using ewma := alpha*sample + (1-alpha)*ewma.
func (tm *Timer) Success() {
	if tm.done {
		return
	}
	tm.done = true
	elapsed := float64(time.Since(tm.started).Milliseconds())
	tm.tracker.update(tm.tier, elapsed)
}

// Failure records a failed/aborted attempt, applying the penalty update
// ewma := alpha*(2*max(ewma, baseline)) + (1-alpha)*ewma instead of the raw
// elapsed time, so a fast timeout cannot look like a fast success.
func (tm *Timer) Failure() {
	if tm.done {
		return
	}
	tm.done = true
	e := tm.tracker.entry(tm.tier)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	baseline := tm.tracker.baselineMillis
	penalty := 2 * max(e.state.EWMAMillis, baseline)
	if e.state.SampleCount == 0 {
		e.state.EWMAMillis = penalty
	} else {
		e.state.EWMAMillis = Alpha*penalty + (1-Alpha)*e.state.EWMAMillis
	}
	e.state.SampleCount++
	e.state.ConsecutiveFailures++
}

// Discard abandons the timer without recording any EWMA sample, for
// outcomes that are neither a success nor a latency-relevant failure (per
// spec §9 Open Question b: client-caused 4xx errors never update a tier's
// EWMA, and a 429 rate-limit is bookkept via MarkRateLimited instead).
func (tm *Timer) Discard() {
	tm.done = true
}

func (t *Tracker) update(tier string, sampleMillis float64) {
	e := t.entry(tier)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.SampleCount == 0 {
		e.state.EWMAMillis = sampleMillis
	} else {
		e.state.EWMAMillis = Alpha*sampleMillis + (1-Alpha)*e.state.EWMAMillis
	}
	e.state.SampleCount++
}

// MarkRateLimited sets rate_limit_until to now+retryAfter (or a dialect
// default of 30s when retryAfter is zero) and increments a counter.
func (t *Tracker) MarkRateLimited(tier string, retryAfter time.Duration) {
	e := t.entry(tier)
	if e == nil {
		return
	}
	if retryAfter <= 0 {
		retryAfter = 30 * time.Second
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.RateLimitUntil = time.Now().Add(retryAfter)
}

// MarkQuotaExhausted sets quota_exhausted_until to resetAt.
func (t *Tracker) MarkQuotaExhausted(tier string, resetAt time.Time) {
	e := t.entry(tier)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.QuotaExhaustedUntil = resetAt
}

// MarkSuccess clears rate_limit_until and resets consecutive_failures.
func (t *Tracker) MarkSuccess(tier string) {
	e := t.entry(tier)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.RateLimitUntil = time.Time{}
	e.state.ConsecutiveFailures = 0
}

// EarliestRateLimitUntil returns the smallest future rate_limit_until
// across all tiers, used when every tier is currently in backoff.
func (t *Tracker) EarliestRateLimitUntil() (time.Time, bool) {
	now := time.Now()
	var earliest time.Time
	found := false
	for _, label := range t.order {
		e := t.entry(label)
		e.mu.Lock()
		until := e.state.RateLimitUntil
		e.mu.Unlock()
		if until.IsZero() || !until.After(now) {
			continue
		}
		if !found || until.Before(earliest) {
			earliest = until
			found = true
		}
	}
	return earliest, found
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
