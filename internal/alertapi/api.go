// Package alertapi exposes triage, runbook search and indexing over HTTP.
package alertapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/warden/internal/apperr"
	"github.com/linnemanlabs/warden/internal/authmw"
	"github.com/linnemanlabs/warden/internal/knowledge"
	"github.com/linnemanlabs/warden/internal/triage"
)

const maxBodyBytes = 64 << 10

// TriageService defines the business operations alertapi needs.
type TriageService interface {
	Triage(ctx context.Context, req triage.Request) (*triage.Record, error)
	QuickTriage(ctx context.Context, message string) (*triage.Outcome, error)
	Retriage(ctx context.Context, id string) (*triage.Record, error)
	Get(ctx context.Context, id string) (*triage.Record, bool, error)
}

// KnowledgeBase is the runbook index as seen by the API.
type KnowledgeBase interface {
	Search(ctx context.Context, query string, limit int, typeFilter string, minScore float64) ([]knowledge.SearchResult, error)
	IndexDir(ctx context.Context, root string, force bool) (*knowledge.IndexReport, error)
	Stats(ctx context.Context) (*knowledge.Stats, error)
}

// Option configures an API.
type Option func(*API)

// WithToken requires "Authorization: Bearer <token>" on every /api route.
// An empty token leaves the routes open.
func WithToken(token string) Option { return func(a *API) { a.token = token } }

// WithRunbooksPath sets the directory POST /api/v1/index walks.
func WithRunbooksPath(path string) Option { return func(a *API) { a.runbooksPath = path } }

// WithEmbeddingModel names the embedding model reported by index stats.
func WithEmbeddingModel(model string) Option { return func(a *API) { a.embeddingModel = model } }

// WithSearchDefaults sets the limit and minimum score used when a search
// request leaves them out.
func WithSearchDefaults(limit int, minScore float64) Option {
	return func(a *API) {
		a.searchLimit = limit
		a.minScore = minScore
	}
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger         log.Logger
	svc            TriageService
	kb             KnowledgeBase
	token          string
	runbooksPath   string
	embeddingModel string
	searchLimit    int
	minScore       float64

	// serializes reindex runs; a second request gets 409
	indexMu sync.Mutex
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService, kb KnowledgeBase, opts ...Option) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	if kb == nil {
		panic(xerrors.New("knowledge base is required"))
	}
	a := &API{
		logger:      logger,
		svc:         svc,
		kb:          kb,
		searchLimit: knowledge.DefaultSearchLimit,
		minScore:    knowledge.DefaultMinScore,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		if a.token != "" {
			r.Use(authmw.BearerToken(a.token))
		}

		r.Post("/alerts", a.handleTriageAlert)
		r.Post("/triage", a.handleQuickTriage)
		r.Get("/records/{id}", a.handleGetRecord)
		r.Post("/records/{id}/retriage", a.handleRetriage)

		r.Get("/search", a.handleSearch)
		r.Post("/index", a.handleIndex)
		r.Get("/index/stats", a.handleIndexStats)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

// writeError maps the error taxonomy onto status codes: validation 400,
// missing record 404, external backend 502, anything else 500.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	resp := errorResponse{Error: err.Error()}

	var pe *triage.PipelineError
	if errors.As(err, &pe) {
		resp.Stage = string(pe.Stage)
	}

	var status int
	switch {
	case apperr.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, triage.ErrNotFound):
		status = http.StatusNotFound
	case apperr.IsExternal(err):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
		resp.Error = "internal error"
	}

	if status >= http.StatusInternalServerError {
		a.logger.Error(r.Context(), err, msg, "status", status, "stage", resp.Stage)
	}
	writeJSON(w, status, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Invalid("body", "", err.Error())
	}
	return nil
}
