package triage

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/warden/internal/knowledge"
)

var tracer = otel.Tracer("github.com/linnemanlabs/warden/internal/triage")

// Settings are the immutable tunables of the pipeline. A MinScore of 0
// disables the threshold; a negative MinScore selects the default.
type Settings struct {
	SearchLimit         int
	MinScore            float64
	MaxTokens           int
	Temperature         float64
	ClassifyMaxTokens   int
	ClassifyTemperature float64
}

// DefaultSettings returns the stock pipeline settings.
func DefaultSettings() Settings {
	return Settings{
		SearchLimit:         knowledge.DefaultSearchLimit,
		MinScore:            knowledge.DefaultMinScore,
		MaxTokens:           1024,
		Temperature:         0.3,
		ClassifyMaxTokens:   256,
		ClassifyTemperature: 0.1,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.SearchLimit <= 0 {
		s.SearchLimit = d.SearchLimit
	}
	if s.MinScore < 0 {
		s.MinScore = d.MinScore
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = d.MaxTokens
	}
	if s.ClassifyMaxTokens <= 0 {
		s.ClassifyMaxTokens = d.ClassifyMaxTokens
	}
	return s
}

// EngineHooks receives pipeline events. Nil fields are skipped.
type EngineHooks struct {
	OnLLMCall  func(stage Stage, inputTokens, outputTokens int, duration float64, err error)
	OnStage    func(stage Stage, duration float64, err error)
	OnComplete func(o *Outcome)
}

// Engine runs the per-alert pipeline: classify, retrieve, generate. Stages
// run strictly in sequence; each reads the previous stage's output.
type Engine struct {
	classifier *Classifier
	retriever  *Retriever
	suggester  *Suggester
	logger     log.Logger
	hooks      EngineHooks
}

// NewEngine wires the three pipeline adapters around one provider and one
// searcher.
func NewEngine(provider Provider, searcher Searcher, settings Settings, logger log.Logger, hooks EngineHooks) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{
		classifier: NewClassifier(provider, settings, logger, hooks),
		retriever:  NewRetriever(searcher, settings),
		suggester:  NewSuggester(provider, settings, logger, hooks),
		logger:     logger,
		hooks:      hooks,
	}
}

// Run takes raw through classification, retrieval and generation. The
// returned Outcome is never nil; it ends in StateSuggested on success or
// StateFailed when an external service failed, with Err set.
func (e *Engine) Run(ctx context.Context, raw string) *Outcome {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "triage.Run")
	defer span.End()

	out := &Outcome{State: StateReceived}
	defer func() {
		out.Duration = time.Since(start).Seconds()
		span.SetAttributes(attribute.String("triage.state", string(out.State)))
		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Err.Error())
		}
		if e.hooks.OnComplete != nil {
			e.hooks.OnComplete(out)
		}
	}()

	// classify never fails; the fallback alert stands in for bad output
	e.stage(ctx, StageClassify, func(ctx context.Context) error {
		out.Alert = e.classifier.Classify(ctx, raw)
		return nil
	})
	out.advance(StateClassified)

	L := e.logger.With(
		"alert_type", out.Alert.AlertType,
		"severity", out.Alert.Severity,
	)
	span.SetAttributes(
		attribute.String("triage.alert_type", string(out.Alert.AlertType)),
		attribute.String("triage.severity", string(out.Alert.Severity)),
	)

	err := e.stage(ctx, StageRetrieve, func(ctx context.Context) error {
		results, err := e.retriever.Retrieve(ctx, out.Alert, 0, UseDefaultMinScore)
		out.Results = results
		return err
	})
	if err != nil {
		L.Error(ctx, err, "runbook retrieval failed")
		out.fail(StageRetrieve, err)
		return out
	}
	out.advance(StateRetrieved)
	if len(out.Results) == 0 {
		L.Info(ctx, "no runbook sections above threshold, generating without context")
	}

	err = e.stage(ctx, StageGenerate, func(ctx context.Context) error {
		s, err := e.suggester.Generate(ctx, out.Alert, out.Results)
		out.Suggestion = s
		return err
	})
	if err != nil {
		L.Error(ctx, err, "suggestion generation failed")
		out.fail(StageGenerate, err)
		return out
	}
	out.advance(StateSuggested)

	L.Info(ctx, "triage suggestion ready",
		"confidence", out.Suggestion.Confidence,
		"sources", len(out.Suggestion.RunbookSources),
		"duration", time.Since(start).String(),
	)
	return out
}

func (e *Engine) stage(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "triage."+string(stage), trace.WithAttributes(
		attribute.String("triage.stage", string(stage)),
	))
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if e.hooks.OnStage != nil {
		e.hooks.OnStage(stage, time.Since(start).Seconds(), err)
	}
	return err
}
