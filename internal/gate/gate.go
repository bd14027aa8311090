// Package gate implements the Decision Gate (C3): confidence decay, a
// three-tier cooldown, and a spam budget, unified behind one mutex-guarded
// Gate the way the teacher guards a single state struct with one lock
// rather than splitting the concern across several independently-locked
// collaborators.
package gate

import (
	"fmt"
	"sync"
	"time"

	"github.com/nourivex/orbit/internal/intent"
	"github.com/nourivex/orbit/internal/snapshot"
)

// ConfidenceThreshold is the minimum decayed confidence required for
// approval. Rejection is strict "<" — exactly 0.70 passes.
const ConfidenceThreshold = 0.70

// Thresholds bundles every tunable cooldown/spam value the Gate consults.
// Two constructors are provided: ProductionThresholds (the compiled-in
// default) and TestingThresholds (the original project's fast-iteration
// values, used by tests and by cmd/orbit when the gate profile is
// "testing").
type Thresholds struct {
	PerKindCooldown  time.Duration
	GlobalCooldown   time.Duration
	DismissCooldown  time.Duration
	MaxPopupsPerHour int
	SameKindWindow   time.Duration
}

// ProductionThresholds returns the release-grade cooldown/spam values.
func ProductionThresholds() Thresholds {
	return Thresholds{
		PerKindCooldown:  180 * time.Second,
		GlobalCooldown:   60 * time.Second,
		DismissCooldown:  600 * time.Second,
		MaxPopupsPerHour: 5,
		SameKindWindow:   900 * time.Second,
	}
}

// TestingThresholds returns the fast-iteration values used by the original
// project during development. Tests use it to exercise cooldown/spam
// transitions without waiting on real-world durations; cmd/orbit selects it
// only when the configured gate profile is "testing".
func TestingThresholds() Thresholds {
	return Thresholds{
		PerKindCooldown:  10 * time.Second,
		GlobalCooldown:   5 * time.Second,
		DismissCooldown:  600 * time.Second,
		MaxPopupsPerHour: 100,
		SameKindWindow:   15 * time.Second,
	}
}

const spamHistoryWindow = time.Hour

// lastSeenContext is the shallow projection of a Snapshot that the decay
// policy compares across calls to detect a "significant" context change.
type lastSeenContext struct {
	valid     bool
	activeApp string
	isIdle    bool
}

// Gate is the Decision Gate. All ledgers it owns (cooldown, spam, dismissal
// counters, last-seen context) are mutated only through its methods, which
// are safe for concurrent use, though the orchestrator's tick loop is in
// practice the sole caller.
type Gate struct {
	mu sync.Mutex

	thresholds Thresholds

	lastIntentTime map[intent.Kind]time.Time
	lastPopupTime  time.Time
	lastDismissTime time.Time

	popupHistory  []time.Time
	intentHistory map[intent.Kind][]time.Time

	dismissCount map[intent.Kind]int
	lastContext  lastSeenContext
}

// New returns a Gate configured with the given thresholds.
func New(thresholds Thresholds) *Gate {
	return &Gate{
		thresholds:     thresholds,
		lastIntentTime: make(map[intent.Kind]time.Time),
		intentHistory:  make(map[intent.Kind][]time.Time),
		dismissCount:   make(map[intent.Kind]int),
	}
}

// Evaluate runs the full Decision Gate pipeline on a proposed Intent. The
// caller must not invoke this for an Intent of kind None — callers
// short-circuit before reaching the Gate, per the spec's evaluation
// contract.
func (g *Gate) Evaluate(in intent.Intent, snap snapshot.Snapshot, ageSeconds float64) intent.Decision {
	if ageSeconds < 0 {
		ageSeconds = 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()

	decayed := g.applyDecayLocked(in, snap, ageSeconds)

	if decayed < ConfidenceThreshold {
		return intent.Decision{
			Approved: false,
			Intent:   in,
			Reason:   fmt.Sprintf("confidence too low: %.2f < %.2f", decayed, ConfidenceThreshold),
		}
	}

	if reason, nextAllowed, blocked := g.cooldownCheckLocked(in.Kind, now); blocked {
		return intent.Decision{
			Approved:        false,
			Intent:          in,
			Reason:          "cooldown: " + reason,
			NextAllowedTime: nextAllowed,
		}
	}

	if reason, spam := g.spamCheckLocked(in.Kind, now); spam {
		return intent.Decision{
			Approved: false,
			Intent:   in,
			Reason:   "spam filter: " + reason,
		}
	}

	g.recordPopupLocked(in.Kind, now)

	return intent.Decision{
		Approved:        true,
		Intent:          in,
		Reason:          "all checks passed",
		NextAllowedTime: g.nextAllowedLocked(in.Kind, now),
	}
}

// applyDecayLocked computes the decayed confidence and unconditionally
// records snap as the new "previous" context, matching the source's
// always-update-context-even-on-rejection behavior.
func (g *Gate) applyDecayLocked(in intent.Intent, snap snapshot.Snapshot, ageSeconds float64) float64 {
	confidence := in.Confidence

	if count := g.dismissCount[in.Kind]; count > 0 {
		confidence -= 0.10 * float64(count)
	}

	if g.lastContext.valid {
		if g.lastContext.activeApp != snap.ActiveApp || g.lastContext.isIdle != snap.IsIdle {
			confidence -= 0.15
		}
	}

	if ageSeconds > 60 {
		timeDecay := (ageSeconds / 300) * 0.20
		if timeDecay > 0.20 {
			timeDecay = 0.20
		}
		confidence -= timeDecay
	}

	g.lastContext = lastSeenContext{
		valid:     true,
		activeApp: snap.ActiveApp,
		isIdle:    snap.IsIdle,
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

// cooldownCheckLocked checks dismiss, global, then per-kind cooldowns in
// that priority order, returning the first blocking reason.
func (g *Gate) cooldownCheckLocked(kind intent.Kind, now time.Time) (reason string, nextAllowed time.Time, blocked bool) {
	if !g.lastDismissTime.IsZero() {
		if elapsed := now.Sub(g.lastDismissTime); elapsed < g.thresholds.DismissCooldown {
			remaining := g.thresholds.DismissCooldown - elapsed
			return fmt.Sprintf("user dismissed recently (wait %ds)", remainingSeconds(remaining)),
				g.lastDismissTime.Add(g.thresholds.DismissCooldown), true
		}
	}

	if !g.lastPopupTime.IsZero() {
		if elapsed := now.Sub(g.lastPopupTime); elapsed < g.thresholds.GlobalCooldown {
			remaining := g.thresholds.GlobalCooldown - elapsed
			return fmt.Sprintf("global cooldown active (wait %ds)", remainingSeconds(remaining)),
				g.lastPopupTime.Add(g.thresholds.GlobalCooldown), true
		}
	}

	if last, ok := g.lastIntentTime[kind]; ok {
		if elapsed := now.Sub(last); elapsed < g.thresholds.PerKindCooldown {
			remaining := g.thresholds.PerKindCooldown - elapsed
			return fmt.Sprintf("intent cooldown active (wait %ds)", remainingSeconds(remaining)),
				last.Add(g.thresholds.PerKindCooldown), true
		}
	}

	return "", time.Time{}, false
}

func remainingSeconds(d time.Duration) int64 {
	s := int64(d / time.Second)
	if s < 0 {
		return 0
	}
	return s
}

// spamCheckLocked trims history older than the rolling window, then checks
// the hourly cap and the same-kind repetition window.
func (g *Gate) spamCheckLocked(kind intent.Kind, now time.Time) (reason string, spam bool) {
	g.cleanupHistoryLocked(now)

	if len(g.popupHistory) >= g.thresholds.MaxPopupsPerHour {
		return fmt.Sprintf("max popups/hour reached (%d)", g.thresholds.MaxPopupsPerHour), true
	}

	if history, ok := g.intentHistory[kind]; ok {
		for _, t := range history {
			if now.Sub(t) < g.thresholds.SameKindWindow {
				return fmt.Sprintf("same intent shown recently (<%s)", g.thresholds.SameKindWindow), true
			}
		}
	}

	return "", false
}

func (g *Gate) cleanupHistoryLocked(now time.Time) {
	cutoff := now.Add(-spamHistoryWindow)

	g.popupHistory = trimBefore(g.popupHistory, cutoff)

	for k, history := range g.intentHistory {
		trimmed := trimBefore(history, cutoff)
		if len(trimmed) == 0 {
			delete(g.intentHistory, k)
		} else {
			g.intentHistory[k] = trimmed
		}
	}
}

func trimBefore(ts []time.Time, cutoff time.Time) []time.Time {
	out := ts[:0:0]
	for _, t := range ts {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// recordPopupLocked stamps the approval into both the cooldown ledger and
// the spam ledger. The Gate performs this atomically with approval from the
// caller's perspective — no caller-visible window exists between the two.
func (g *Gate) recordPopupLocked(kind intent.Kind, now time.Time) {
	g.lastPopupTime = now
	g.lastIntentTime[kind] = now
	g.popupHistory = append(g.popupHistory, now)
	g.intentHistory[kind] = append(g.intentHistory[kind], now)
}

// nextAllowedLocked returns the furthest-out cooldown deadline across all
// three tiers for kind, or the zero Time if none is active.
func (g *Gate) nextAllowedLocked(kind intent.Kind, now time.Time) time.Time {
	var next time.Time
	consider := func(t time.Time) {
		if t.After(now) && t.After(next) {
			next = t
		}
	}
	if !g.lastDismissTime.IsZero() {
		consider(g.lastDismissTime.Add(g.thresholds.DismissCooldown))
	}
	if !g.lastPopupTime.IsZero() {
		consider(g.lastPopupTime.Add(g.thresholds.GlobalCooldown))
	}
	if last, ok := g.lastIntentTime[kind]; ok {
		consider(last.Add(g.thresholds.PerKindCooldown))
	}
	return next
}

// RecordDismiss stamps the dismiss timestamp, arming the dismiss cooldown.
func (g *Gate) RecordDismiss() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastDismissTime = time.Now()
}

// RecordKindDismiss increments the per-kind dismissal counter consulted by
// the confidence decay policy.
func (g *Gate) RecordKindDismiss(kind intent.Kind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dismissCount[kind]++
}

// Stats returns a point-in-time snapshot of gate bookkeeping, useful for a
// status endpoint or log line.
type Stats struct {
	CooldownActive  bool
	PopupsLastHour  int
	DismissCounts   map[string]int
}

func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cleanupHistoryLocked(time.Now())
	counts := make(map[string]int, len(g.dismissCount))
	for k, v := range g.dismissCount {
		counts[k.String()] = v
	}
	return Stats{
		CooldownActive: !g.lastPopupTime.IsZero(),
		PopupsLastHour: len(g.popupHistory),
		DismissCounts:  counts,
	}
}

// Reset clears all ledgers and counters. Intended for tests.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastIntentTime = make(map[intent.Kind]time.Time)
	g.lastPopupTime = time.Time{}
	g.lastDismissTime = time.Time{}
	g.popupHistory = nil
	g.intentHistory = make(map[intent.Kind][]time.Time)
	g.dismissCount = make(map[intent.Kind]int)
	g.lastContext = lastSeenContext{}
}
