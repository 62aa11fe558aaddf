package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/warden/internal/apperr"
)

var tracer = otel.Tracer("github.com/linnemanlabs/warden/internal/knowledge")

const (
	DefaultSearchLimit = 5
	DefaultMinScore    = 0.5
	defaultBatchSize   = 32
)

// Hooks receives indexing and search events. Nil fields are skipped.
type Hooks struct {
	OnEmbed   func(texts int, duration float64)
	OnIndexed func(r *IndexReport, duration float64, err error)
	OnSearch  func(results int, duration float64, err error)
}

// IndexReport summarises an indexing run.
type IndexReport struct {
	Files   int      `json:"files"`
	Chunks  int      `json:"chunks"`
	Skipped []string `json:"skipped,omitempty"`
}

// Stats describes the current index contents.
type Stats struct {
	Chunks       int    `json:"chunks"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
	Collection   string `json:"collection,omitempty"`
}

// Base ties a Chunker, an Embedder and an Index together: it indexes
// runbook directories and answers natural-language searches.
type Base struct {
	chunker    *Chunker
	embedder   Embedder
	index      Index
	logger     log.Logger
	hooks      Hooks
	batchSize  int
	collection string
}

// Option configures a Base.
type Option func(*Base)

// WithHooks installs event hooks, typically Metrics.Hooks().
func WithHooks(h Hooks) Option { return func(b *Base) { b.hooks = h } }

// WithBatchSize sets how many chunks are embedded per Embed call.
func WithBatchSize(n int) Option {
	return func(b *Base) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithCollection names the backing collection in Stats.
func WithCollection(name string) Option { return func(b *Base) { b.collection = name } }

// NewBase returns a Base. A nil logger is replaced with a no-op logger.
func NewBase(chunker *Chunker, embedder Embedder, index Index, logger log.Logger, opts ...Option) *Base {
	if logger == nil {
		logger = log.Nop()
	}
	b := &Base{
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		logger:    logger,
		batchSize: defaultBatchSize,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// IndexDir chunks, embeds and upserts every *.md file under root. When
// force is set the index is cleared first. Unreadable files are skipped and
// reported; embedding or index failures abort the run.
func (b *Base) IndexDir(ctx context.Context, root string, force bool) (_ *IndexReport, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "knowledge.IndexDir", trace.WithAttributes(
		attribute.String("knowledge.root", root),
		attribute.Bool("knowledge.force", force),
	))
	report := &IndexReport{}
	defer func() {
		span.SetAttributes(
			attribute.Int("knowledge.files", report.Files),
			attribute.Int("knowledge.chunks", report.Chunks),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if b.hooks.OnIndexed != nil {
			b.hooks.OnIndexed(report, time.Since(start).Seconds(), err)
		}
	}()

	info, err := os.Stat(root)
	if err != nil {
		return nil, apperr.Invalid("path", root, err.Error())
	}
	if !info.IsDir() {
		return nil, apperr.Invalid("path", root, "not a directory")
	}

	paths, err := markdownFiles(root)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	if force {
		if err := b.index.Clear(ctx); err != nil {
			return nil, apperr.External("index", "clear", err)
		}
		b.logger.Info(ctx, "cleared knowledge index for reindex")
	}

	var chunks []Chunk
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			b.logger.Warn(ctx, "skipping unreadable runbook", "path", path, "err", err)
			report.Skipped = append(report.Skipped, path)
			continue
		}
		c := b.chunker.Chunk(string(content), relSource(root, path))
		chunks = append(chunks, c...)
		report.Files++
	}

	if len(chunks) == 0 {
		b.logger.Warn(ctx, "no runbook chunks found", "root", root, "files", report.Files)
		return report, nil
	}

	if err := b.embedAndUpsert(ctx, chunks); err != nil {
		return nil, err
	}
	report.Chunks = len(chunks)

	b.logger.Info(ctx, "indexed runbooks",
		"root", root,
		"files", report.Files,
		"chunks", report.Chunks,
		"skipped", len(report.Skipped),
		"duration", time.Since(start).String(),
	)
	return report, nil
}

// IndexFile indexes a single file. sourceFile is the name recorded in
// chunk metadata, usually the path relative to the runbook root.
func (b *Base) IndexFile(ctx context.Context, path, sourceFile string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, apperr.Invalid("path", path, err.Error())
	}
	if sourceFile == "" {
		sourceFile = filepath.ToSlash(filepath.Base(path))
	}
	return b.IndexDocument(ctx, string(content), sourceFile)
}

// IndexDocument chunks and indexes in-memory markdown content.
func (b *Base) IndexDocument(ctx context.Context, content, sourceFile string) (int, error) {
	ctx, span := tracer.Start(ctx, "knowledge.IndexDocument", trace.WithAttributes(
		attribute.String("knowledge.source", sourceFile),
	))
	defer span.End()

	chunks := b.chunker.Chunk(content, sourceFile)
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := b.embedAndUpsert(ctx, chunks); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	span.SetAttributes(attribute.Int("knowledge.chunks", len(chunks)))
	return len(chunks), nil
}

func (b *Base) embedAndUpsert(ctx context.Context, chunks []Chunk) error {
	for lo := 0; lo < len(chunks); lo += b.batchSize {
		hi := min(lo+b.batchSize, len(chunks))
		batch := chunks[lo:hi]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := b.embed(ctx, texts)
		if err != nil {
			return err
		}

		entries := make([]Entry, len(batch))
		for i, c := range batch {
			entries[i] = Entry{
				ID:       ChunkID(c),
				Vector:   vectors[i],
				Text:     c.Content,
				Metadata: c.Metadata,
			}
		}
		if err := b.index.Upsert(ctx, entries); err != nil {
			return apperr.External("index", "upsert", err)
		}
	}
	return nil
}

func (b *Base) embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := b.embedder.Embed(ctx, texts)
	if b.hooks.OnEmbed != nil {
		b.hooks.OnEmbed(len(texts), time.Since(start).Seconds())
	}
	if err != nil {
		return nil, apperr.External("embedding", "embed", err)
	}
	if len(vectors) != len(texts) {
		return nil, apperr.External("embedding", "embed",
			fmt.Errorf("got %d vectors for %d inputs", len(vectors), len(texts)))
	}
	return vectors, nil
}

// Search embeds query and returns at most limit results with score at or
// above minScore, optionally restricted to one document type. The filter is
// validated before any external call.
func (b *Base) Search(ctx context.Context, query string, limit int, typeFilter string, minScore float64) (_ []SearchResult, err error) {
	if err := ValidateType(typeFilter); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Invalid("query", query, "must not be empty")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	start := time.Now()
	ctx, span := tracer.Start(ctx, "knowledge.Search", trace.WithAttributes(
		attribute.Int("knowledge.limit", limit),
		attribute.String("knowledge.type_filter", typeFilter),
		attribute.Float64("knowledge.min_score", minScore),
	))
	var results []SearchResult
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("knowledge.results", len(results)))
		span.End()
		if b.hooks.OnSearch != nil {
			b.hooks.OnSearch(len(results), time.Since(start).Seconds(), err)
		}
	}()

	vectors, err := b.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	results, err = b.index.Query(ctx, vectors[0], limit, typeFilter, minScore)
	if err != nil {
		return nil, apperr.External("index", "query", err)
	}
	return results, nil
}

// Stats reports the number of indexed chunks and the chunking settings.
func (b *Base) Stats(ctx context.Context) (*Stats, error) {
	n, err := b.index.Count(ctx)
	if err != nil {
		return nil, apperr.External("index", "count", err)
	}
	cfg := b.chunker.Config()
	return &Stats{
		Chunks:       n,
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		Collection:   b.collection,
	}, nil
}

func markdownFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

func relSource(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
