package triage

import (
	"context"
	"fmt"
	"strings"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/warden/internal/apperr"
)

// Request is one alert submitted for full triage.
type Request struct {
	Message string `json:"message"`
	Origin  Origin `json:"origin"`
}

// PipelineError reports the stage in which an alert stopped. It unwraps to
// the underlying ExternalServiceError or store error.
type PipelineError struct {
	Stage   Stage
	Outcome *Outcome
	Err     error
}

func (e *PipelineError) Error() string { return fmt.Sprintf("triage %s: %v", e.Stage, e.Err) }

func (e *PipelineError) Unwrap() error { return e.Err }

// ServiceHooks receives hand-off and notification events. Nil fields are
// skipped.
type ServiceHooks struct {
	OnHandOff func(err error)
	OnNotify  func(err error)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithNotifiers posts a summary to every route after each successful
// hand-off.
func WithNotifiers(ns Notifiers) ServiceOption { return func(s *Service) { s.notifiers = ns } }

// WithServiceHooks installs hand-off hooks, typically Metrics.ServiceHooks().
func WithServiceHooks(h ServiceHooks) ServiceOption { return func(s *Service) { s.hooks = h } }

// Service is the business boundary for triage operations.
type Service struct {
	store     Store
	engine    *Engine
	notifiers Notifiers
	hooks     ServiceHooks
	logger    log.Logger
}

// NewService creates a new triage service.
func NewService(store Store, engine *Engine, logger log.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Service{
		store:  store,
		engine: engine,
		logger: logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Triage runs the full pipeline for one alert and hands the result to the
// Store. Concurrent calls for identical messages are independent. A
// notification follows the hand-off; its failure is logged, not returned.
func (s *Service) Triage(ctx context.Context, req Request) (*Record, error) {
	if err := validateMessage(req.Message); err != nil {
		return nil, err
	}
	if err := req.Origin.Validate(); err != nil {
		return nil, err
	}

	out := s.engine.Run(ctx, req.Message)
	if out.Err != nil {
		return nil, &PipelineError{Stage: out.FailedStage, Outcome: out, Err: out.Err}
	}

	id, err := s.store.CreateRecord(ctx, out.Alert, out.Suggestion, req.Origin)
	if s.hooks.OnHandOff != nil {
		s.hooks.OnHandOff(err)
	}
	if err != nil {
		return nil, &PipelineError{Stage: StageHandOff, Outcome: out, Err: fmt.Errorf("create record: %w", err)}
	}
	out.advance(StateHandedOff)

	L := s.logger.With("triage_id", id, "alert_type", out.Alert.AlertType, "severity", out.Alert.Severity)
	L.Info(ctx, "triage handed off",
		"confidence", out.Suggestion.Confidence,
		"sources", len(out.Suggestion.RunbookSources),
		"duration", out.Duration,
	)

	rec, ok, err := s.store.Get(ctx, id)
	if err != nil || !ok {
		// the hand-off succeeded; fall back to what was handed over
		rec = &Record{ID: id, Alert: *out.Alert, Suggestion: *out.Suggestion, Origin: req.Origin}
	}

	s.notify(ctx, L, rec)
	return rec, nil
}

// QuickTriage runs classification, retrieval and generation without
// touching the Store, for exploratory queries.
func (s *Service) QuickTriage(ctx context.Context, message string) (*Outcome, error) {
	if err := validateMessage(message); err != nil {
		return nil, err
	}
	out := s.engine.Run(ctx, message)
	if out.Err != nil {
		return out, &PipelineError{Stage: out.FailedStage, Outcome: out, Err: out.Err}
	}
	return out, nil
}

// Retriage reruns the pipeline on a stored record's raw message and replaces
// its suggestion. The original classification is kept on the record.
func (s *Service) Retriage(ctx context.Context, id string) (*Record, error) {
	rec, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	out, err := s.QuickTriage(ctx, rec.Alert.RawMessage)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateSuggestion(ctx, id, out.Suggestion); err != nil {
		return nil, fmt.Errorf("update suggestion: %w", err)
	}

	s.logger.Info(ctx, "record re-triaged",
		"triage_id", id,
		"confidence", out.Suggestion.Confidence,
		"sources", len(out.Suggestion.RunbookSources),
	)

	updated, ok, err := s.store.Get(ctx, id)
	if err != nil || !ok {
		rec.Suggestion = *out.Suggestion
		return rec, nil
	}
	return updated, nil
}

// Get retrieves a triage record by ID.
func (s *Service) Get(ctx context.Context, id string) (*Record, bool, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) notify(ctx context.Context, L log.Logger, rec *Record) {
	if len(s.notifiers) == 0 {
		return
	}
	summary, body := FormatNotification(rec)
	err := s.notifiers.Notify(ctx, rec.Origin, summary, body)
	if s.hooks.OnNotify != nil {
		s.hooks.OnNotify(err)
	}
	if err != nil {
		L.Warn(ctx, "triage notification failed", "err", err)
	}
}

func validateMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return apperr.Invalid("message", msg, "must not be empty")
	}
	return nil
}
