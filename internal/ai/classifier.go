package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"text/template"
	"time"

	"golang.org/x/time/rate"

	"github.com/amishk599/rolecall/internal/model"
)

const (
	temperature = 0.3
	maxTokens   = 500
)

// ErrMalformedOutput marks a model reply that cannot be read as a triage result.
var ErrMalformedOutput = errors.New("malformed triage output")

// NeutralResult is returned whenever the model's output cannot be used.
var NeutralResult = model.TriageResult{
	Score:          50,
	Recommendation: model.Maybe,
	Reasoning:      "Could not automatically evaluate this job. Please review it manually.",
}

// ClassifierOptions bound each classification call.
type ClassifierOptions struct {
	Timeout           time.Duration // per call; zero means no extra deadline
	RequestsPerSecond float64       // outbound call rate; zero means unlimited
}

// TriageClassifier implements model.Classifier on top of an LLMProvider.
type TriageClassifier struct {
	provider LLMProvider
	tmpl     *template.Template
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *slog.Logger
}

// NewTriageClassifier creates a classifier that renders TriageTemplate for every call.
func NewTriageClassifier(provider LLMProvider, opts ClassifierOptions, logger *slog.Logger) *TriageClassifier {
	c := &TriageClassifier{
		provider: provider,
		tmpl:     TriageTemplate,
		timeout:  opts.Timeout,
		logger:   logger,
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c
}

// Classify scores a listing against a profile. Malformed model output yields
// NeutralResult with a nil error; transport failures and timeouts are returned.
func (c *TriageClassifier) Classify(ctx context.Context, in model.TriageInput) (model.TriageResult, error) {
	var promptBuf bytes.Buffer
	if err := c.tmpl.Execute(&promptBuf, in); err != nil {
		return model.TriageResult{}, fmt.Errorf("render prompt: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return model.TriageResult{}, fmt.Errorf("wait for llm rate limit: %w", err)
		}
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := c.provider.Complete(callCtx, triageSystemPrompt, strings.TrimSpace(promptBuf.String()))
	if err != nil {
		if errors.Is(err, ErrMalformedOutput) {
			c.logger.Warn("ai triage produced no usable output, using neutral result", "title", in.JobTitle, "error", err)
			return NeutralResult, nil
		}
		return model.TriageResult{}, fmt.Errorf("llm complete: %w", err)
	}

	result, err := parseTriage(raw)
	if err != nil {
		c.logger.Warn("ai triage output malformed, using neutral result", "title", in.JobTitle, "error", err)
		return NeutralResult, nil
	}
	return result, nil
}

// rawTriage is the JSON shape returned by the LLM (matches triageSchema).
type rawTriage struct {
	Score          *float64 `json:"score"`
	Recommendation string   `json:"recommendation"`
	Reasoning      *string  `json:"reasoning"`
}

// parseTriage validates a model reply. The recommendation is derived from the
// score band so a disagreeing label cannot put a low score in "recommended".
func parseTriage(raw string) (model.TriageResult, error) {
	raw = stripCodeFence(raw)
	if raw == "" {
		return model.TriageResult{}, fmt.Errorf("%w: empty reply", ErrMalformedOutput)
	}

	var rt rawTriage
	if err := json.Unmarshal([]byte(raw), &rt); err != nil {
		return model.TriageResult{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if rt.Score == nil || math.IsNaN(*rt.Score) || *rt.Score < 0 || *rt.Score > 100 {
		return model.TriageResult{}, fmt.Errorf("%w: score missing or outside 0-100", ErrMalformedOutput)
	}
	rec := model.Recommendation(rt.Recommendation)
	if !rec.Valid() {
		return model.TriageResult{}, fmt.Errorf("%w: unknown recommendation %q", ErrMalformedOutput, rt.Recommendation)
	}
	if rt.Reasoning == nil {
		return model.TriageResult{}, fmt.Errorf("%w: reasoning missing", ErrMalformedOutput)
	}

	score := int(math.Round(*rt.Score))
	return model.TriageResult{
		Score:          score,
		Recommendation: model.RecommendationForScore(score),
		Reasoning:      strings.TrimSpace(*rt.Reasoning),
	}, nil
}

// stripCodeFence removes a surrounding ```json fence. OpenAI structured outputs
// never add one; Anthropic replies sometimes do.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
