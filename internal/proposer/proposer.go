// Package proposer implements the Intent Proposer (C2): given a context
// snapshot, it proposes an Intent either via an LLM client or via a
// deterministic rule plus variety-pool fallback, with graceful
// LLM-unhealthy degradation.
package proposer

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/nourivex/orbit/internal/intent"
	"github.com/nourivex/orbit/internal/snapshot"
)

// Mode selects which path(s) the Proposer is allowed to use.
type Mode int

const (
	// Auto tries the LLM first and falls back to the rule/variety-pool
	// path on failure or while the LLM is marked unhealthy.
	Auto Mode = iota
	// Ollama uses the LLM exclusively; a failure yields intent.None rather
	// than silently degrading to the fallback path.
	Ollama
	// Dummy never calls the LLM and always uses the fallback path.
	Dummy
)

func (m Mode) String() string {
	switch m {
	case Ollama:
		return "ollama"
	case Dummy:
		return "dummy"
	default:
		return "auto"
	}
}

// ModeFromString parses the config's ai_mode key; an unrecognised value
// falls back to Auto.
func ModeFromString(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ollama":
		return Ollama
	case "dummy":
		return Dummy
	default:
		return Auto
	}
}

// fallback rule thresholds (spec.md §4.2).
const (
	fallbackIdleThresholdSeconds = 300
	fallbackIdleMediumSeconds    = 180
	baseConfidence               = 0.70
	maxConfidence                = 0.90
	confidenceNoise              = 0.03
)

var fallbackAppSubstrings = []string{"code", "studio", "python"}

// MinSuggestIntervalProduction/Testing are the minimum interval between
// fallback-path suggest_help proposals (the Python dummy pool's 15-minute
// cooldown, reduced to 30s for v0.2 testing per spec.md §4.2).
const (
	MinSuggestIntervalProduction = 900 * time.Second
	MinSuggestIntervalTesting    = 30 * time.Second
)

// Stats exposes call-path counters for introspection/testing.
type Stats struct {
	LLMCalls      int
	FallbackCalls int
	Failures      int
	TotalIntents  int
}

// Proposer is the C2 component. Safe for concurrent use.
type Proposer struct {
	mu sync.Mutex

	mode   Mode
	llm    LLMClient
	health llmHealth
	pool   *VarietyPool

	minSuggestInterval time.Duration
	lastSuggestTime    time.Time

	now  func() time.Time
	rand *rand.Rand

	stats Stats
}

// New returns a Proposer. llm may be nil if mode is Dummy (or if no LLM
// endpoint is configured under Auto — the proposer degrades to fallback
// immediately in that case).
func New(mode Mode, llm LLMClient, pool *VarietyPool, minSuggestInterval time.Duration) *Proposer {
	if pool == nil {
		pool = NewVarietyPool(Responses{})
	}
	if minSuggestInterval <= 0 {
		minSuggestInterval = MinSuggestIntervalProduction
	}
	return &Proposer{
		mode:                mode,
		llm:                 llm,
		pool:                pool,
		minSuggestInterval:  minSuggestInterval,
		now:                 time.Now,
		rand:                rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Propose maps a Snapshot to an Intent. The returned Intent always has
// Reasoning already stripped — it never crosses this boundary.
func (p *Proposer) Propose(ctx context.Context, snap snapshot.Snapshot) intent.Intent {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.TotalIntents++

	if p.mode != Dummy && p.llm != nil {
		attemptLLM := p.mode == Ollama || p.health.healthy()
		if !attemptLLM && p.llm.CheckHealth(ctx) {
			// The LLM was marked unhealthy, but a direct probe shows it has
			// recovered: reopen the circuit for this attempt, the way the
			// original brain re-probes availability on every call while
			// it's down rather than waiting out a fixed cooldown.
			p.health.recordSuccess()
			attemptLLM = true
		}

		if attemptLLM {
			fields := PromptFields{
				ActiveApp:         snap.ActiveApp,
				IdleSeconds:       snap.IdleSeconds,
				RecentFileChanges: snap.RecentFileChanges,
				Hour:              p.now().Hour(),
			}
			in, err := p.llm.GenerateIntent(ctx, fields)
			if err == nil {
				p.health.recordSuccess()
				p.stats.LLMCalls++
				log.Printf("proposer: intent via llm: %s (conf %.2f)", in.Kind, in.Confidence)
				return in.Stripped()
			}

			p.health.recordFailure()
			p.stats.Failures++
			log.Printf("proposer: llm generation failed, falling back: %v", err)

			if p.mode == Ollama {
				return intent.Intent{Kind: intent.None, CreatedAt: p.now()}
			}
		}
	}

	return p.fallbackLocked(snap)
}

func (p *Proposer) fallbackLocked(snap snapshot.Snapshot) intent.Intent {
	p.stats.FallbackCalls++

	if !p.idleInCodingAppLocked(snap) {
		return intent.Intent{Kind: intent.None, CreatedAt: p.now()}
	}

	now := p.now()
	if !p.lastSuggestTime.IsZero() && now.Sub(p.lastSuggestTime) < p.minSuggestInterval {
		return intent.Intent{Kind: intent.None, CreatedAt: now}
	}

	message := p.pool.Message(snap.IdleSeconds, snap.ErrorCount)
	if message == "" {
		return intent.Intent{Kind: intent.None, CreatedAt: now}
	}

	p.lastSuggestTime = now
	confidence := p.fallbackConfidenceLocked(snap)

	log.Printf("proposer: intent via fallback: suggest_help (conf %.2f)", confidence)
	return intent.Intent{
		Kind:       intent.SuggestHelp,
		Confidence: confidence,
		Message:    message,
		CreatedAt:  now,
	}
}

func (p *Proposer) idleInCodingAppLocked(snap snapshot.Snapshot) bool {
	if snap.IdleSeconds < fallbackIdleThresholdSeconds {
		return false
	}
	app := strings.ToLower(snap.ActiveApp)
	for _, s := range fallbackAppSubstrings {
		if strings.Contains(app, s) {
			return true
		}
	}
	return false
}

func (p *Proposer) fallbackConfidenceLocked(snap snapshot.Snapshot) float64 {
	confidence := baseConfidence
	switch {
	case snap.IdleSeconds >= fallbackIdleThresholdSeconds:
		confidence += 0.10
	case snap.IdleSeconds >= fallbackIdleMediumSeconds:
		confidence += 0.05
	}
	if snap.ErrorCount > 0 {
		confidence += 0.05
	}
	confidence += (p.rand.Float64()*2 - 1) * confidenceNoise

	if confidence > maxConfidence {
		confidence = maxConfidence
	}
	if confidence < baseConfidence {
		confidence = baseConfidence
	}
	return confidence
}

// Stats returns a copy of the call-path counters.
func (p *Proposer) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// LLMHealthy reports whether the LLM path is currently considered healthy.
func (p *Proposer) LLMHealthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.health.healthy()
}
