package cfg

import (
	"errors"
	"flag"
	"fmt"

	"github.com/linnemanlabs/warden/internal/knowledge"
	"github.com/linnemanlabs/warden/internal/triage"
)

// LLM provider names accepted by -llm-provider.
const (
	ProviderClaude = "claude"
	ProviderGroq   = "groq"
	ProviderOllama = "ollama"
)

// Config holds warden's application settings. Each field maps to a flag and
// to a WARDEN_ environment variable.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	RunbooksPath       string
	IndexOnStart       bool
	ChunkSize          int
	ChunkOverlap       int
	SearchLimit        int
	MinScore           float64
	OllamaURL          string
	EmbeddingModel     string
	EmbeddingDimension int
	EmbedBatchSize     int
	IndexTable         string

	LLMProvider         string
	ClaudeAPIKey        string
	ClaudeModel         string
	GroqAPIKey          string
	GroqModel           string
	OllamaModel         string
	Temperature         float64
	MaxTokens           int
	ClassifyTemperature float64
	ClassifyMaxTokens   int

	DatabaseURL string

	SlackBotToken string
	SlackChannel  string
	WebexBotToken string
	WebexRoomID   string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on /api routes")

	fs.StringVar(&c.RunbooksPath, "runbooks-path", "runbooks", "directory of markdown runbooks to index")
	fs.BoolVar(&c.IndexOnStart, "index-on-start", false, "index the runbooks directory when the server starts")
	fs.IntVar(&c.ChunkSize, "chunk-size", knowledge.DefaultChunkSize, "maximum chunk body length in characters")
	fs.IntVar(&c.ChunkOverlap, "chunk-overlap", knowledge.DefaultChunkOverlap, "characters of trailing sentences carried into the next chunk")
	fs.IntVar(&c.SearchLimit, "search-limit", knowledge.DefaultSearchLimit, "runbook sections retrieved per alert (1..50)")
	fs.Float64Var(&c.MinScore, "min-score", knowledge.DefaultMinScore, "minimum similarity score for retrieved sections (0..1)")
	fs.StringVar(&c.OllamaURL, "ollama-url", "http://localhost:11434", "Ollama server URL for embeddings and the ollama provider")
	fs.StringVar(&c.EmbeddingModel, "embedding-model", "nomic-embed-text", "Ollama embedding model")
	fs.IntVar(&c.EmbeddingDimension, "embedding-dimension", 768, "embedding vector dimension (pgvector column size)")
	fs.IntVar(&c.EmbedBatchSize, "embed-batch-size", 32, "chunks embedded per call while indexing")
	fs.StringVar(&c.IndexTable, "index-table", "runbook_chunks", "pgvector table holding runbook chunks")

	fs.StringVar(&c.LLMProvider, "llm-provider", ProviderClaude, "text generation backend: claude, groq or ollama")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude provider")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.StringVar(&c.GroqAPIKey, "groq-api-key", "", "API key for the Groq provider")
	fs.StringVar(&c.GroqModel, "groq-model", "llama-3.3-70b-versatile", "Groq model to use")
	fs.StringVar(&c.OllamaModel, "ollama-model", "llama3.1", "Ollama chat model to use")
	fs.Float64Var(&c.Temperature, "temperature", 0.3, "sampling temperature for suggestions (0..1)")
	fs.IntVar(&c.MaxTokens, "max-tokens", 1024, "maximum tokens per suggestion")
	fs.Float64Var(&c.ClassifyTemperature, "classify-temperature", 0.1, "sampling temperature for classification (0..1)")
	fs.IntVar(&c.ClassifyMaxTokens, "classify-max-tokens", 256, "maximum tokens per classification")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory record store and index)")

	fs.StringVar(&c.SlackBotToken, "slack-bot-token", "", "Slack bot token for triage notifications")
	fs.StringVar(&c.SlackChannel, "slack-channel", "", "default Slack channel for notifications")
	fs.StringVar(&c.WebexBotToken, "webex-bot-token", "", "Webex bot token for triage notifications")
	fs.StringVar(&c.WebexRoomID, "webex-room-id", "", "default Webex room for notifications")
}

// Validate checks every field the server needs.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// API routes are never served unauthenticated
	if c.APIToken == "" {
		errs = append(errs, errors.New("API_TOKEN is required"))
	}

	errs = append(errs, c.ValidateKnowledge(), c.ValidateLLM())
	return errors.Join(errs...)
}

// ValidateKnowledge checks the chunking, embedding and search settings.
func (c *Config) ValidateKnowledge() error {
	var errs []error

	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("invalid CHUNK_SIZE %d (must be > 0)", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || (c.ChunkSize > 0 && c.ChunkOverlap >= c.ChunkSize) {
		errs = append(errs, fmt.Errorf("invalid CHUNK_OVERLAP %d (must be 0..CHUNK_SIZE-1)", c.ChunkOverlap))
	}
	if c.SearchLimit <= 0 || c.SearchLimit > 50 {
		errs = append(errs, fmt.Errorf("invalid SEARCH_LIMIT %d (must be 1..50)", c.SearchLimit))
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		errs = append(errs, fmt.Errorf("invalid MIN_SCORE %g (must be 0..1)", c.MinScore))
	}
	if c.EmbeddingModel == "" {
		errs = append(errs, errors.New("EMBEDDING_MODEL is required"))
	}
	if c.EmbeddingDimension <= 0 {
		errs = append(errs, fmt.Errorf("invalid EMBEDDING_DIMENSION %d (must be > 0)", c.EmbeddingDimension))
	}
	if c.EmbedBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("invalid EMBED_BATCH_SIZE %d (must be > 0)", c.EmbedBatchSize))
	}
	if c.RunbooksPath == "" {
		errs = append(errs, errors.New("RUNBOOKS_PATH is required"))
	}

	return errors.Join(errs...)
}

// ValidateLLM checks the generation settings for the selected provider.
func (c *Config) ValidateLLM() error {
	var errs []error

	switch c.LLMProvider {
	case ProviderClaude:
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required"))
		}
		if c.ClaudeModel == "" {
			errs = append(errs, errors.New("CLAUDE_MODEL is required"))
		}
	case ProviderGroq:
		if c.GroqAPIKey == "" {
			errs = append(errs, errors.New("GROQ_API_KEY is required"))
		}
	case ProviderOllama:
		if c.OllamaURL == "" {
			errs = append(errs, errors.New("OLLAMA_URL is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid LLM_PROVIDER %q (must be claude, groq or ollama)", c.LLMProvider))
	}

	if c.Temperature < 0 || c.Temperature > 1 {
		errs = append(errs, fmt.Errorf("invalid TEMPERATURE %g (must be 0..1)", c.Temperature))
	}
	if c.ClassifyTemperature < 0 || c.ClassifyTemperature > 1 {
		errs = append(errs, fmt.Errorf("invalid CLASSIFY_TEMPERATURE %g (must be 0..1)", c.ClassifyTemperature))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("invalid MAX_TOKENS %d (must be > 0)", c.MaxTokens))
	}
	if c.ClassifyMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("invalid CLASSIFY_MAX_TOKENS %d (must be > 0)", c.ClassifyMaxTokens))
	}

	return errors.Join(errs...)
}

// ChunkerConfig derives the chunker settings.
func (c *Config) ChunkerConfig() knowledge.ChunkerConfig {
	return knowledge.ChunkerConfig{ChunkSize: c.ChunkSize, ChunkOverlap: c.ChunkOverlap}
}

// TriageSettings derives the pipeline settings.
func (c *Config) TriageSettings() triage.Settings {
	return triage.Settings{
		SearchLimit:         c.SearchLimit,
		MinScore:            c.MinScore,
		MaxTokens:           c.MaxTokens,
		Temperature:         c.Temperature,
		ClassifyMaxTokens:   c.ClassifyMaxTokens,
		ClassifyTemperature: c.ClassifyTemperature,
	}
}
