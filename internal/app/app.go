// Package app assembles warden's components from a Config. The server and
// the wardenctl CLI share it so both run the same index, store and
// pipeline.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/warden/internal/cfg"
	"github.com/linnemanlabs/warden/internal/knowledge"
	"github.com/linnemanlabs/warden/internal/knowledge/memindex"
	"github.com/linnemanlabs/warden/internal/knowledge/pgvector"
	"github.com/linnemanlabs/warden/internal/llm/claude"
	"github.com/linnemanlabs/warden/internal/llm/langchain"
	"github.com/linnemanlabs/warden/internal/notify/slack"
	"github.com/linnemanlabs/warden/internal/notify/webex"
	"github.com/linnemanlabs/warden/internal/postgres"
	"github.com/linnemanlabs/warden/internal/triage"
	"github.com/linnemanlabs/warden/internal/triage/memstore"
	"github.com/linnemanlabs/warden/internal/triage/pgstore"
)

// App holds the wired components.
type App struct {
	Knowledge *knowledge.Base
	// Service is nil when the App was built WithoutTriage.
	Service *triage.Service

	EmbeddingModel string
	ProviderName   string

	pool *pgxpool.Pool
}

type options struct {
	reg         prometheus.Registerer
	embedder    knowledge.Embedder
	provider    triage.Provider
	notifiers   triage.Notifiers
	skipTriage  bool
	hasNotifier bool
}

// Option customizes New.
type Option func(*options)

// WithRegisterer registers knowledge and triage metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.reg = reg }
}

// WithEmbedder replaces the Ollama embedder.
func WithEmbedder(e knowledge.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithProvider replaces the configured LLM provider.
func WithProvider(p triage.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithNotifiers replaces the notifiers derived from the config. Nil
// disables notifications.
func WithNotifiers(ns triage.Notifiers) Option {
	return func(o *options) {
		o.notifiers = ns
		o.hasNotifier = true
	}
}

// WithoutTriage builds only the knowledge base, for commands that never
// call a language model.
func WithoutTriage() Option {
	return func(o *options) { o.skipTriage = true }
}

// New wires the knowledge base and, unless WithoutTriage is given, the
// triage service. With a database URL both the index and the record store
// live in PostgreSQL on one shared pool; otherwise both are in memory.
func New(ctx context.Context, c *cfg.Config, logger log.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = log.Nop()
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	a := &App{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if c.DatabaseURL != "" {
		a.pool, err = postgres.NewPool(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres pool: %w", err)
		}
	}

	index, err := a.newIndex(ctx, c)
	if err != nil {
		return nil, err
	}

	embedder := o.embedder
	if embedder == nil {
		e := langchain.NewOllamaEmbedder(c.OllamaURL, c.EmbeddingModel)
		embedder = e
		a.EmbeddingModel = e.Model()
	}

	baseOpts := []knowledge.Option{knowledge.WithBatchSize(c.EmbedBatchSize)}
	if a.pool != nil {
		baseOpts = append(baseOpts, knowledge.WithCollection(c.IndexTable))
	}
	var triageMetrics *triage.Metrics
	if o.reg != nil {
		baseOpts = append(baseOpts, knowledge.WithHooks(knowledge.NewMetrics(o.reg).Hooks()))
		if !o.skipTriage {
			triageMetrics = triage.NewMetrics(o.reg)
		}
	}
	a.Knowledge = knowledge.NewBase(knowledge.NewChunker(c.ChunkerConfig()), embedder, index, logger, baseOpts...)

	if o.skipTriage {
		return a, nil
	}

	provider := o.provider
	a.ProviderName = "custom"
	if provider == nil {
		provider, a.ProviderName, err = NewProvider(c)
		if err != nil {
			return nil, err
		}
	}

	store, err := a.newStore(ctx)
	if err != nil {
		return nil, err
	}

	var engineHooks triage.EngineHooks
	var svcOpts []triage.ServiceOption
	if triageMetrics != nil {
		engineHooks = triageMetrics.Hooks()
		svcOpts = append(svcOpts, triage.WithServiceHooks(triageMetrics.ServiceHooks()))
	}

	notifiers := o.notifiers
	if !o.hasNotifier {
		notifiers = NewNotifiers(c, logger)
	}
	if len(notifiers) > 0 {
		svcOpts = append(svcOpts, triage.WithNotifiers(notifiers))
	}

	engine := triage.NewEngine(provider, a.Knowledge, c.TriageSettings(), logger, engineHooks)
	a.Service = triage.NewService(store, engine, logger, svcOpts...)
	return a, nil
}

func (a *App) newIndex(ctx context.Context, c *cfg.Config) (knowledge.Index, error) {
	if a.pool == nil {
		return memindex.New(), nil
	}
	idx, err := pgvector.New(ctx, a.pool, pgvector.Config{Table: c.IndexTable, Dimension: c.EmbeddingDimension})
	if err != nil {
		return nil, fmt.Errorf("pgvector init: %w", err)
	}
	return idx, nil
}

func (a *App) newStore(ctx context.Context) (triage.Store, error) {
	if a.pool == nil {
		return memstore.New(), nil
	}
	s, err := pgstore.New(ctx, a.pool)
	if err != nil {
		return nil, fmt.Errorf("pgstore init: %w", err)
	}
	return s, nil
}

// Persistent reports whether the index and records live in PostgreSQL.
func (a *App) Persistent() bool { return a.pool != nil }

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

// NewProvider returns the generation backend selected by LLMProvider and
// its name.
func NewProvider(c *cfg.Config) (triage.Provider, string, error) {
	switch c.LLMProvider {
	case cfg.ProviderClaude:
		return claude.New(c.ClaudeAPIKey, c.ClaudeModel), cfg.ProviderClaude, nil
	case cfg.ProviderGroq:
		p, err := langchain.NewGroq(c.GroqAPIKey, c.GroqModel)
		if err != nil {
			return nil, "", fmt.Errorf("groq provider: %w", err)
		}
		return p, cfg.ProviderGroq, nil
	case cfg.ProviderOllama:
		p, err := langchain.NewOllama(c.OllamaURL, c.OllamaModel)
		if err != nil {
			return nil, "", fmt.Errorf("ollama provider: %w", err)
		}
		return p, cfg.ProviderOllama, nil
	}
	return nil, "", fmt.Errorf("unknown llm provider %q", c.LLMProvider)
}

// NewNotifiers returns a route per chat platform enabled by the config, or
// nil when none is.
func NewNotifiers(c *cfg.Config, logger log.Logger) triage.Notifiers {
	var ns triage.Notifiers
	if c.SlackBotToken != "" {
		ns = append(ns, triage.Route{
			Platform: triage.PlatformSlack,
			Notifier: slack.New(c.SlackBotToken, c.SlackChannel, logger),
		})
	}
	if c.WebexBotToken != "" {
		ns = append(ns, triage.Route{
			Platform: triage.PlatformWebex,
			Notifier: webex.New(c.WebexBotToken, c.WebexRoomID, logger),
		})
	}
	return ns
}
