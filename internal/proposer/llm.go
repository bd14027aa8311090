package proposer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nourivex/orbit/internal/intent"
)

// systemPrompt is the fixed persona/instruction prompt sent as the Ollama
// request's "system" field.
const systemPrompt = `Kamu adalah Luna, AI assistant untuk ORBIT.
Kepribadian: Ramah, informatif, dan pendukung.
Gaya bahasa: Santai namun profesional dalam Bahasa Indonesia.
Suara: Tenang dan meyakinkan.

Tugasmu: Mengamati konteks user dan memberikan saran HANYA jika benar-benar dibutuhkan.
Jangan mengganggu atau spam. Bersikap humble dan tidak memaksa.`

// LLMClient proposes an Intent from raw context fields. Implementations may
// call out to a real language model; DefaultLLMClient speaks the Ollama
// HTTP contract.
type LLMClient interface {
	GenerateIntent(ctx context.Context, fields PromptFields) (intent.Intent, error)
	// CheckHealth probes the backing LLM service directly, independent of
	// any call-failure bookkeeping. The Proposer uses it to re-probe a
	// service marked unhealthy so the circuit can reopen once it recovers.
	CheckHealth(ctx context.Context) bool
}

// PromptFields is the fixed set of context values the LLM prompt is built
// from (spec.md's "active app, idle seconds, file-change count, clock
// hour").
type PromptFields struct {
	ActiveApp         string
	IdleSeconds       int
	RecentFileChanges int
	Hour              int
}

// DefaultLLMClient implements LLMClient against an Ollama-compatible HTTP
// endpoint, following the request/response contract literally: POST
// {model, prompt, system, stream:false, format:"json", options:
// {temperature:0.7, timeout}}, response body's "response" field holding a
// JSON-encoded {intent, confidence, message, reasoning} record.
type DefaultLLMClient struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	HTTP    *http.Client

	modelOnce     sync.Once
	resolvedModel string
}

// NewDefaultLLMClient returns a client targeting baseURL (e.g.
// "http://localhost:11434") using model, with the given request timeout.
func NewDefaultLLMClient(baseURL, model string, timeout time.Duration) *DefaultLLMClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DefaultLLMClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Timeout: timeout,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// preferredModelFallbacks is the fallback chain consulted when the
// configured model isn't present in Ollama's listing endpoint: try
// llama3.1:8b, then gemma3:4b, then give up and use whatever is first.
var preferredModelFallbacks = []string{"llama3.1:8b", "gemma3:4b"}

type ollamaModelEntry struct {
	Name string `json:"name"`
}

type ollamaTagsResponse struct {
	Models []ollamaModelEntry `json:"models"`
}

// ListModels queries Ollama's listing endpoint for the names of locally
// available models.
func (c *DefaultLLMClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("build ollama tags request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama tags request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags returned status %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode ollama tags: %w", err)
	}

	names := make([]string, len(tags.Models))
	for i, m := range tags.Models {
		names[i] = m.Name
	}
	return names, nil
}

// CheckHealth implements LLMClient. It probes the listing endpoint; a
// reachable, 200-status response is considered healthy regardless of
// whether any particular model is present.
func (c *DefaultLLMClient) CheckHealth(ctx context.Context) bool {
	_, err := c.ListModels(ctx)
	return err == nil
}

// resolveModel autodetects the model name to send on the first call: if
// the configured model isn't present in the listing endpoint, it falls
// back through preferredModelFallbacks and finally to the first model
// listed. Resolution happens once; a listing failure leaves the
// configured name untouched.
func (c *DefaultLLMClient) resolveModel(ctx context.Context) string {
	c.modelOnce.Do(func() {
		c.resolvedModel = c.Model
		names, err := c.ListModels(ctx)
		if err != nil || len(names) == 0 {
			return
		}

		have := make(map[string]bool, len(names))
		for _, n := range names {
			have[n] = true
		}
		if have[c.Model] {
			return
		}

		log.Printf("proposer: configured model %q not found in listing", c.Model)
		for _, fb := range preferredModelFallbacks {
			if have[fb] {
				log.Printf("proposer: autodetected fallback model %q", fb)
				c.resolvedModel = fb
				return
			}
		}
		log.Printf("proposer: autodetected first-listed model %q", names[0])
		c.resolvedModel = names[0]
	})
	return c.resolvedModel
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system"`
	Stream  bool                   `json:"stream"`
	Format  string                 `json:"format"`
	Options map[string]interface{} `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

type llmIntentPayload struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Message    string  `json:"message"`
	Reasoning  string  `json:"reasoning"`
}

// GenerateIntent implements LLMClient.
func (c *DefaultLLMClient) GenerateIntent(ctx context.Context, fields PromptFields) (intent.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	reqBody := ollamaGenerateRequest{
		Model:  c.resolveModel(ctx),
		Prompt: buildPrompt(fields),
		System: systemPrompt,
		Stream: false,
		Format: "json",
		Options: map[string]interface{}{
			"temperature": 0.7,
			"timeout":     c.Timeout.Seconds(),
		},
	}

	buf, err := json.Marshal(reqBody)
	if err != nil {
		return intent.Intent{}, fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/generate", bytes.NewReader(buf))
	if err != nil {
		return intent.Intent{}, fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return intent.Intent{}, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return intent.Intent{}, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var envelope ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return intent.Intent{}, fmt.Errorf("decode ollama envelope: %w", err)
	}

	var payload llmIntentPayload
	if err := json.Unmarshal([]byte(envelope.Response), &payload); err != nil {
		return intent.Intent{}, fmt.Errorf("parse llm json payload: %w", err)
	}

	kind := intent.KindFromString(strings.ToLower(strings.TrimSpace(payload.Intent)))
	confidence := payload.Confidence
	if math.IsNaN(confidence) {
		confidence = 0
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return intent.Intent{
		Kind:       kind,
		Confidence: confidence,
		Message:    payload.Message,
		Reasoning:  payload.Reasoning, // internal only; stripped by the caller before it leaves the proposer
		CreatedAt:  time.Now(),
	}, nil
}

func buildPrompt(f PromptFields) string {
	return fmt.Sprintf(`Analisis konteks user berikut:

Context:
- Active window: %s
- Idle time: %d seconds
- Recent file changes: %d
- Time of day: %02d:00

Based on this context, decide on ONE action:
1. "suggest_help" - User might need assistance
2. "none" - No action needed (user is focused)

ALLOWED INTENTS (v0.2): suggest_help, none ONLY

Respond in JSON:
{
  "intent": "suggest_help",
  "confidence": 0.85,
  "reasoning": "User idle 5min in coding app, might be stuck",
  "message": "Kamu lagi stuck? Mau aku bantu debug atau cari solusi?"
}

Field "reasoning" is strictly internal and never surfaced to UI or persisted.
Keep message in Bahasa Indonesia, casual tone, max 80 chars.`,
		orUnknown(f.ActiveApp), f.IdleSeconds, f.RecentFileChanges, f.Hour)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// llmHealth tracks consecutive failures of the LLM path. Three consecutive
// failures marks it unhealthy until recordSuccess resets the count, which
// Proposer.Propose does after a successful call or a successful
// CheckHealth probe.
type llmHealth struct {
	consecutiveFailures int
}

const llmUnhealthyThreshold = 3

func (h *llmHealth) recordSuccess() {
	h.consecutiveFailures = 0
}

func (h *llmHealth) recordFailure() {
	h.consecutiveFailures++
}

func (h *llmHealth) healthy() bool {
	return h.consecutiveFailures < llmUnhealthyThreshold
}
