// Package pgvector provides a PostgreSQL + pgvector implementation of
// knowledge.Index.
package pgvector

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/linnemanlabs/warden/internal/apperr"
	"github.com/linnemanlabs/warden/internal/knowledge"
)

var tracer = otel.Tracer("github.com/linnemanlabs/warden/internal/knowledge/pgvector")

// DefaultTable is the chunk table used when Config.Table is empty.
const DefaultTable = "runbook_chunks"

// Config selects the table and the embedding dimension.
type Config struct {
	Table     string
	Dimension int
}

// Store keeps runbook chunks in a table with a vector column and an HNSW
// cosine index.
type Store struct {
	pool  *pgxpool.Pool
	table string // sanitized identifier
	name  string
	dim   int
}

// New ensures the vector extension, table and indexes exist on the pool and
// returns a ready Store. The pool is owned by the caller.
func New(ctx context.Context, pool *pgxpool.Pool, cfg Config) (*Store, error) {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("pgvector: dimension must be > 0, got %d", cfg.Dimension)
	}

	s := &Store{
		pool:  pool,
		table: pgx.Identifier{cfg.Table}.Sanitize(),
		name:  cfg.Table,
		dim:   cfg.Dimension,
	}
	if _, err := pool.Exec(ctx, s.schema()); err != nil {
		return nil, fmt.Errorf("apply pgvector schema: %w", err)
	}
	return s, nil
}

// Table returns the unquoted table name.
func (s *Store) Table() string { return s.name }

func (s *Store) schema() string {
	hnsw := pgx.Identifier{s.name + "_embedding_idx"}.Sanitize()
	byType := pgx.Identifier{s.name + "_doc_type_idx"}.Sanitize()
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS %[1]s (
    id          TEXT PRIMARY KEY,
    source      TEXT NOT NULL,
    section     TEXT NOT NULL,
    part        INTEGER NOT NULL DEFAULT 0,
    doc_type    TEXT NOT NULL,
    content     TEXT NOT NULL,
    embedding   vector(%[2]d) NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS %[3]s ON %[1]s USING hnsw (embedding vector_cosine_ops);
CREATE INDEX IF NOT EXISTS %[4]s ON %[1]s (doc_type);
`, s.table, s.dim, hnsw, byType)
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return apperr.External("index", op, err)
}

// Upsert inserts or replaces entries in one transaction.
func (s *Store) Upsert(ctx context.Context, entries []knowledge.Entry) error {
	ctx, span := startSpan(ctx, "pgvector.Upsert", "UPSERT")
	defer span.End()
	span.SetAttributes(attribute.Int("knowledge.entries", len(entries)))

	for _, e := range entries {
		if len(e.Vector) != s.dim {
			return fail(span, "upsert", fmt.Errorf("entry %s has dimension %d, table has %d", e.ID, len(e.Vector), s.dim))
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fail(span, "upsert", fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmt := `INSERT INTO ` + s.table + ` (id, source, section, part, doc_type, content, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source, section = EXCLUDED.section, part = EXCLUDED.part,
			doc_type = EXCLUDED.doc_type, content = EXCLUDED.content,
			embedding = EXCLUDED.embedding, updated_at = now()`

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(stmt, e.ID, e.Metadata.Source, e.Metadata.Section, e.Metadata.Part,
			e.Metadata.Type, e.Text, pgv.NewVector(e.Vector))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fail(span, "upsert", fmt.Errorf("upsert chunks: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fail(span, "upsert", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Query orders by cosine distance, takes the nearest k and drops rows
// scoring below minScore.
//
// pgvector applies WHERE clauses after the HNSW scan, which only yields
// hnsw.ef_search candidates, so a typed query could come back short once
// other types crowd the neighbourhood. Typed queries therefore run with
// index scans disabled: the planner filters on doc_type first and ranks the
// survivors exactly.
func (s *Store) Query(ctx context.Context, vector []float32, k int, typeFilter string, minScore float64) ([]knowledge.SearchResult, error) {
	ctx, span := startSpan(ctx, "pgvector.Query", "SELECT")
	defer span.End()
	span.SetAttributes(attribute.Bool("knowledge.exact", typeFilter != ""))

	if k <= 0 {
		return nil, nil
	}
	if len(vector) != s.dim {
		return nil, fail(span, "query", fmt.Errorf("query has dimension %d, table has %d", len(vector), s.dim))
	}

	if typeFilter == "" {
		results, err := s.nearest(ctx, s.pool, vector, k, typeFilter, minScore)
		if err != nil {
			return nil, fail(span, "query", err)
		}
		span.SetAttributes(attribute.Int("knowledge.results", len(results)))
		return results, nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fail(span, "query", fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SET LOCAL enable_indexscan = off"); err != nil {
		return nil, fail(span, "query", fmt.Errorf("disable index scan: %w", err))
	}
	results, err := s.nearest(ctx, tx, vector, k, typeFilter, minScore)
	if err != nil {
		return nil, fail(span, "query", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fail(span, "query", fmt.Errorf("commit: %w", err))
	}
	span.SetAttributes(attribute.Int("knowledge.results", len(results)))
	return results, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *Store) nearest(ctx context.Context, q querier, vector []float32, k int, typeFilter string, minScore float64) ([]knowledge.SearchResult, error) {
	query := `SELECT id, source, section, part, doc_type, content, score FROM (
			SELECT id, source, section, part, doc_type, content,
				GREATEST(0, LEAST(1, 1 - (embedding <=> $1))) AS score
			FROM ` + s.table + `
			WHERE $2::text = '' OR doc_type = $2::text
			ORDER BY embedding <=> $1
			LIMIT $3
		) nearest
		WHERE score >= $4
		ORDER BY score DESC, id`

	rows, err := q.Query(ctx, query, pgv.NewVector(vector), typeFilter, k, minScore)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var results []knowledge.SearchResult
	for rows.Next() {
		var (
			id string
			r  knowledge.SearchResult
		)
		if err := rows.Scan(&id, &r.Metadata.Source, &r.Metadata.Section, &r.Metadata.Part,
			&r.Metadata.Type, &r.Content, &r.Score); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		r.SourceFile = r.Metadata.Source
		r.Section = r.Metadata.Section
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return results, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	ctx, span := startSpan(ctx, "pgvector.Count", "SELECT")
	defer span.End()

	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM `+s.table).Scan(&n); err != nil {
		return 0, fail(span, "count", err)
	}
	return n, nil
}

// Clear truncates the chunk table.
func (s *Store) Clear(ctx context.Context) error {
	ctx, span := startSpan(ctx, "pgvector.Clear", "TRUNCATE")
	defer span.End()

	if _, err := s.pool.Exec(ctx, `TRUNCATE `+s.table); err != nil {
		return fail(span, "clear", err)
	}
	return nil
}
