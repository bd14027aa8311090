package proposer

import (
	"math/rand"
	"time"
)

// morningStart/afternoonStart/eveningStart bound the time-of-day mood
// partitions used by VarietyPool's pool selection.
const (
	morningStart   = 5
	afternoonStart = 12
	eveningStart   = 17

	// longIdleMoodSeconds selects the long_idle sub-pool instead of the
	// time-of-day mood when idle has been sustained this long.
	longIdleMoodSeconds = 600
)

// Responses is the variety-pool data loaded from a JSON responses file (or
// the built-in fallback if none is configured): a base pool plus optional
// mood and context sub-pools.
type Responses struct {
	SuggestHelp []string            `json:"suggest_help"`
	Moods       map[string][]string `json:"moods"`
	Contexts    map[string][]string `json:"contexts"`
}

func fallbackResponses() Responses {
	return Responses{
		SuggestHelp: []string{
			"Butuh bantuan?",
			"Mau aku bantu?",
			"Lagi stuck nih?",
			"Ada yang bisa ku bantu?",
			"Mau diskusi masalahnya?",
		},
	}
}

// VarietyPool picks a non-repeating, least-used-weighted message for
// suggest_help intents, partitioned by time-of-day mood and by
// error/long-idle sub-context, matching the dummy-mode gacha selection.
// Not safe for concurrent use without external locking; Proposer serializes
// access to it.
type VarietyPool struct {
	responses   Responses
	lastMessage string
	usageCount  map[string]int
	now         func() time.Time
	rand        *rand.Rand
}

// NewVarietyPool returns a pool seeded with resp, or the built-in fallback
// pool if resp has no suggest_help entries.
func NewVarietyPool(resp Responses) *VarietyPool {
	if len(resp.SuggestHelp) == 0 {
		resp = fallbackResponses()
	}
	return &VarietyPool{
		responses:  resp,
		usageCount: make(map[string]int),
		now:        time.Now,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Message returns the next variety-pool message for the given context
// (idle seconds, error count). It never returns the same message twice in
// a row unless the pool has exactly one candidate.
func (p *VarietyPool) Message(idleSeconds int, errorCount int64) string {
	pool := p.selectPool(idleSeconds, errorCount)
	if len(pool) == 0 {
		pool = p.responses.SuggestHelp
	}
	if len(pool) == 0 {
		return ""
	}

	available := make([]string, 0, len(pool))
	for _, m := range pool {
		if m != p.lastMessage {
			available = append(available, m)
		}
	}
	if len(available) == 0 {
		available = pool
	}

	weights := make([]float64, len(available))
	total := 0.0
	for i, m := range available {
		w := 1.0 / float64(p.usageCount[m]+1)
		weights[i] = w
		total += w
	}

	pick := p.rand.Float64() * total
	chosen := available[len(available)-1]
	running := 0.0
	for i, w := range weights {
		running += w
		if pick <= running {
			chosen = available[i]
			break
		}
	}

	p.lastMessage = chosen
	p.usageCount[chosen]++
	return chosen
}

func (p *VarietyPool) selectPool(idleSeconds int, errorCount int64) []string {
	if errorCount > 0 && p.responses.Contexts != nil {
		if m := p.responses.Contexts["error_detected"]; len(m) > 0 {
			return m
		}
	}
	if idleSeconds >= longIdleMoodSeconds && p.responses.Contexts != nil {
		if m := p.responses.Contexts["long_idle"]; len(m) > 0 {
			return m
		}
	}
	if p.responses.Moods != nil {
		hour := p.now().Hour()
		var mood []string
		switch {
		case hour >= morningStart && hour < afternoonStart:
			mood = p.responses.Moods["morning"]
		case hour >= afternoonStart && hour < eveningStart:
			mood = p.responses.Moods["afternoon"]
		case hour >= eveningStart && hour < 22:
			mood = p.responses.Moods["evening"]
		default:
			mood = p.responses.Moods["night"]
		}
		if len(mood) > 0 {
			combined := make([]string, 0, len(mood)+len(p.responses.SuggestHelp))
			combined = append(combined, mood...)
			combined = append(combined, p.responses.SuggestHelp...)
			return combined
		}
	}
	return p.responses.SuggestHelp
}
