package triage

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/warden/internal/apperr"
	"github.com/linnemanlabs/warden/internal/knowledge"
)

var (
	// "Confidence Level: High", "**Confidence Level**: **Low**", "Confidence - medium"
	confidenceLabelRe = regexp.MustCompile(`(?i)confidence(?:\s+level)?[\s*_]*[:\-]?[\s*_]*(high|medium|low)\b`)
	// "high confidence"
	confidencePhraseRe = regexp.MustCompile(`(?i)\b(high|medium|low)\s+confidence\b`)
)

// Suggester generates runbook-grounded triage advice through a Provider.
type Suggester struct {
	provider    Provider
	maxTokens   int
	temperature float64
	logger      log.Logger
	hooks       EngineHooks
}

// NewSuggester returns a Suggester using the generation settings.
func NewSuggester(provider Provider, settings Settings, logger log.Logger, hooks EngineHooks) *Suggester {
	if logger == nil {
		logger = log.Nop()
	}
	settings = settings.withDefaults()
	return &Suggester{
		provider:    provider,
		maxTokens:   settings.MaxTokens,
		temperature: settings.Temperature,
		logger:      logger,
		hooks:       hooks,
	}
}

// Generate prompts the provider with the alert and the retrieved sections.
// An empty results slice is valid and swaps in the NoContext sentinel.
// Provider failures and empty output are ExternalServiceErrors.
func (s *Suggester) Generate(ctx context.Context, a *ParsedAlert, results []knowledge.SearchResult) (*Suggestion, error) {
	resp, err := send(ctx, s.provider, s.hooks, StageGenerate, &LLMRequest{
		System:      systemPrompt,
		Prompt:      buildSuggestionPrompt(a, results),
		MaxTokens:   s.maxTokens,
		Temperature: Float(s.temperature),
	})
	if err != nil {
		return nil, apperr.External("generation", "generate", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, apperr.External("generation", "generate", errors.New("empty completion"))
	}

	sources := make([]string, len(results))
	for i, r := range results {
		sources[i] = r.SourceFile
	}

	return &Suggestion{
		Text:           text,
		Confidence:     ExtractConfidence(text),
		RunbookSources: sources,
		Model:          resp.Model,
		Usage:          resp.Usage,
	}, nil
}

// ExtractConfidence reads the confidence level the model attached to its
// answer. A labelled value wins over a free "X confidence" phrase; Medium is
// the default.
func ExtractConfidence(text string) Confidence {
	if m := confidenceLabelRe.FindStringSubmatch(text); m != nil {
		return confidenceOf(m[1])
	}
	if m := confidencePhraseRe.FindStringSubmatch(text); m != nil {
		return confidenceOf(m[1])
	}
	return ConfidenceMedium
}

func confidenceOf(s string) Confidence {
	switch strings.ToLower(s) {
	case "high":
		return ConfidenceHigh
	case "low":
		return ConfidenceLow
	default:
		return ConfidenceMedium
	}
}
