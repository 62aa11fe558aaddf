// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/warden/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/warden/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists triage records in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New applies the schema on pool and returns a ready Store. The pool is
// owned by the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool, now: time.Now}, nil
}

const recordColumns = `id, raw_message, alert_type, severity, title, description,
	source_system, affected_component, alert_timestamp, suggestion, confidence,
	runbook_sources, model, tokens_in, tokens_out, platform, channel_id, message_id,
	created_at, updated_at`

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// CreateRecord inserts a new record under a fresh ULID.
func (s *Store) CreateRecord(ctx context.Context, a *triage.ParsedAlert, sg *triage.Suggestion, origin triage.Origin) (string, error) {
	ctx, span := startSpan(ctx, "pgstore.CreateRecord", "INSERT")
	defer span.End()

	id := ulid.Make().String()
	now := s.now().UTC()
	sources := sg.RunbookSources
	if sources == nil {
		sources = []string{}
	}

	_, err := s.pool.Exec(ctx, `INSERT INTO triage_records (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$19)`,
		id, a.RawMessage, string(a.AlertType), string(a.Severity), a.Title, a.Description,
		a.SourceSystem, a.AffectedComponent, a.Timestamp, sg.Text, string(sg.Confidence),
		sources, sg.Model, sg.Usage.InputTokens, sg.Usage.OutputTokens,
		origin.Platform, origin.ChannelID, origin.MessageID, now,
	)
	if err != nil {
		return "", fail(span, fmt.Errorf("insert record: %w", err))
	}
	span.SetAttributes(attribute.String("warden.triage.id", id))
	return id, nil
}

// UpdateSuggestion replaces the suggestion columns of an existing record.
func (s *Store) UpdateSuggestion(ctx context.Context, id string, sg *triage.Suggestion) error {
	ctx, span := startSpan(ctx, "pgstore.UpdateSuggestion", "UPDATE")
	defer span.End()

	sources := sg.RunbookSources
	if sources == nil {
		sources = []string{}
	}
	tag, err := s.pool.Exec(ctx, `UPDATE triage_records SET
			suggestion      = $2,
			confidence      = $3,
			runbook_sources = $4,
			model           = $5,
			tokens_in       = $6,
			tokens_out      = $7,
			updated_at      = $8
		WHERE id = $1`,
		id, sg.Text, string(sg.Confidence), sources, sg.Model,
		sg.Usage.InputTokens, sg.Usage.OutputTokens, s.now().UTC(),
	)
	if err != nil {
		return fail(span, fmt.Errorf("update suggestion: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", triage.ErrNotFound, id)
	}
	return nil
}

// Get retrieves a triage record by ID.
func (s *Store) Get(ctx context.Context, id string) (*triage.Record, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	r, err := scanRecord(s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM triage_records WHERE id = $1`, id))
	if err != nil {
		return nil, false, fail(span, err)
	}
	if r == nil {
		return nil, false, nil
	}
	return r, true, nil
}

// scanRecord scans one row. Returns (nil, nil) when no row is found.
func scanRecord(row pgx.Row) (*triage.Record, error) {
	var (
		r                         triage.Record
		alertType, severity, conf string
	)
	err := row.Scan(
		&r.ID, &r.Alert.RawMessage, &alertType, &severity, &r.Alert.Title, &r.Alert.Description,
		&r.Alert.SourceSystem, &r.Alert.AffectedComponent, &r.Alert.Timestamp, &r.Suggestion.Text, &conf,
		&r.Suggestion.RunbookSources, &r.Suggestion.Model, &r.Suggestion.Usage.InputTokens, &r.Suggestion.Usage.OutputTokens,
		&r.Origin.Platform, &r.Origin.ChannelID, &r.Origin.MessageID, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}
	r.Alert.AlertType = triage.AlertType(alertType)
	r.Alert.Severity = triage.Severity(severity)
	r.Suggestion.Confidence = triage.Confidence(conf)
	return &r, nil
}
