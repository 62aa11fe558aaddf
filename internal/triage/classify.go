package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

// MaxTitleLen bounds a title derived from the raw message.
const MaxTitleLen = 100

// classification mirrors the JSON object the classifier is asked for.
type classification struct {
	AlertType         *string `json:"alert_type"`
	Severity          *string `json:"severity"`
	Title             *string `json:"title"`
	AffectedComponent *string `json:"affected_component"`
	SourceSystem      *string `json:"source_system"`
}

// Classifier turns a raw alert message into a ParsedAlert using a Provider.
// It never fails: any provider or parse error yields the fallback alert.
type Classifier struct {
	provider    Provider
	maxTokens   int
	temperature float64
	logger      log.Logger
	hooks       EngineHooks
	now         func() time.Time
}

// NewClassifier returns a Classifier using the classification settings.
func NewClassifier(provider Provider, settings Settings, logger log.Logger, hooks EngineHooks) *Classifier {
	if logger == nil {
		logger = log.Nop()
	}
	settings = settings.withDefaults()
	return &Classifier{
		provider:    provider,
		maxTokens:   settings.ClassifyMaxTokens,
		temperature: settings.ClassifyTemperature,
		logger:      logger,
		hooks:       hooks,
		now:         time.Now,
	}
}

// Classify asks the provider to classify raw and parses the answer.
func (c *Classifier) Classify(ctx context.Context, raw string) *ParsedAlert {
	now := c.now().UTC()

	resp, err := send(ctx, c.provider, c.hooks, StageClassify, &LLMRequest{
		Prompt:      buildClassificationPrompt(raw),
		MaxTokens:   c.maxTokens,
		Temperature: Float(c.temperature),
	})
	if err != nil {
		c.logger.Warn(ctx, "classification call failed, using fallback", "err", err)
		return FallbackAlert(raw, now)
	}

	a, err := ParseClassification(raw, resp.Text, now)
	if err != nil {
		c.logger.Warn(ctx, "unusable classification, using fallback", "err", err)
	}
	return a
}

// ParseClassification decodes classifier output for raw. On any problem it
// returns the fallback alert together with the reason; the alert is never nil.
// Missing fields take their defaults, unrecognized enum values do not.
func ParseClassification(raw, text string, now time.Time) (*ParsedAlert, error) {
	var c classification
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &c); err != nil {
		return FallbackAlert(raw, now), fmt.Errorf("decode classification: %w", err)
	}

	alertType := AlertUnknown
	if c.AlertType != nil {
		alertType = AlertType(strings.ToLower(strings.TrimSpace(*c.AlertType)))
	}
	severity := SeverityMedium
	if c.Severity != nil {
		severity = Severity(strings.ToLower(strings.TrimSpace(*c.Severity)))
	}
	if !alertType.Valid() {
		return FallbackAlert(raw, now), fmt.Errorf("unrecognized alert_type %q", alertType)
	}
	if !severity.Valid() {
		return FallbackAlert(raw, now), fmt.Errorf("unrecognized severity %q", severity)
	}

	title := ""
	if c.Title != nil {
		title = truncate(strings.TrimSpace(*c.Title), MaxTitleLen)
	}
	if title == "" {
		title = truncate(raw, MaxTitleLen)
	}

	return &ParsedAlert{
		RawMessage:        raw,
		AlertType:         alertType,
		Severity:          severity,
		Title:             title,
		Description:       raw,
		SourceSystem:      optional(c.SourceSystem),
		AffectedComponent: optional(c.AffectedComponent),
		Timestamp:         now,
	}, nil
}

// FallbackAlert is the ParsedAlert used whenever classification fails.
func FallbackAlert(raw string, now time.Time) *ParsedAlert {
	return &ParsedAlert{
		RawMessage:  raw,
		AlertType:   AlertUnknown,
		Severity:    SeverityMedium,
		Title:       truncate(raw, MaxTitleLen),
		Description: raw,
		Timestamp:   now,
	}
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// optional drops empty and "null"-like strings the model sometimes emits.
func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	switch strings.ToLower(v) {
	case "", "null", "none", "unknown", "n/a":
		return nil
	}
	return &v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// send calls the provider inside an llm.call span and reports the call to
// hooks.
func send(ctx context.Context, p Provider, hooks EngineHooks, stage Stage, req *LLMRequest) (*LLMResponse, error) {
	if p == nil {
		return nil, errors.New("no provider configured")
	}

	ctx, span := tracer.Start(ctx, "llm.call", trace.WithAttributes(
		attribute.String("gen_ai.operation.name", "llm.call"),
		attribute.String("warden.triage.stage", string(stage)),
		attribute.Int("gen_ai.request.max_tokens", req.MaxTokens),
	))
	defer span.End()

	start := time.Now()
	resp, err := p.Send(ctx, req)
	if err == nil && resp == nil {
		err = errors.New("provider returned no response")
	}

	var in, out int
	if err == nil {
		in, out = resp.Usage.InputTokens, resp.Usage.OutputTokens
		span.SetAttributes(
			attribute.String("gen_ai.response.model", resp.Model),
			attribute.Int("gen_ai.usage.input_tokens", in),
			attribute.Int("gen_ai.usage.output_tokens", out),
		)
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if hooks.OnLLMCall != nil {
		hooks.OnLLMCall(stage, in, out, time.Since(start).Seconds(), err)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}
