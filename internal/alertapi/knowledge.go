package alertapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/linnemanlabs/warden/internal/apperr"
	"github.com/linnemanlabs/warden/internal/knowledge"
)

const maxSearchLimit = 50

type searchResponse struct {
	Query   string                   `json:"query"`
	Type    string                   `json:"type,omitempty"`
	Results []knowledge.SearchResult `json:"results"`
}

type statsResponse struct {
	*knowledge.Stats
	RunbooksPath   string `json:"runbooks_path,omitempty"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	typeFilter := q.Get("type")

	limit := a.searchLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxSearchLimit {
			a.writeError(w, r, apperr.Invalid("limit", s, "must be an integer between 1 and 50"), "bad search")
			return
		}
		limit = n
	}

	minScore := a.minScore
	if s := q.Get("min_score"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 0 || f > 1 {
			a.writeError(w, r, apperr.Invalid("min_score", s, "must be a number between 0 and 1"), "bad search")
			return
		}
		minScore = f
	}

	results, err := a.kb.Search(r.Context(), query, limit, typeFilter, minScore)
	if err != nil {
		a.writeError(w, r, err, "search failed")
		return
	}
	if results == nil {
		results = []knowledge.SearchResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: query, Type: typeFilter, Results: results})
}

func (a *API) handleIndex(w http.ResponseWriter, r *http.Request) {
	if a.runbooksPath == "" {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no runbooks path configured"})
		return
	}

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	if !a.indexMu.TryLock() {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "indexing already in progress"})
		return
	}
	defer a.indexMu.Unlock()

	report, err := a.kb.IndexDir(r.Context(), a.runbooksPath, force)
	if err != nil {
		a.writeError(w, r, err, "indexing failed")
		return
	}

	a.logger.Info(r.Context(), "runbooks indexed via api",
		"files", report.Files,
		"chunks", report.Chunks,
		"force", force,
	)
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleIndexStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.kb.Stats(r.Context())
	if err != nil {
		a.writeError(w, r, err, "index stats failed")
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Stats:          stats,
		RunbooksPath:   a.runbooksPath,
		EmbeddingModel: a.embeddingModel,
	})
}
