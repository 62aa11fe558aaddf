package triage

import (
	"context"

	"github.com/linnemanlabs/warden/internal/apperr"
	"github.com/linnemanlabs/warden/internal/knowledge"
)

// Searcher answers natural-language runbook queries. knowledge.Base
// implements it.
type Searcher interface {
	Search(ctx context.Context, query string, limit int, typeFilter string, minScore float64) ([]knowledge.SearchResult, error)
}

// UseDefaultMinScore asks Retrieve for the configured threshold. Zero is a
// real threshold that keeps every result.
const UseDefaultMinScore = -1.0

// Retriever finds runbook sections relevant to a classified alert.
type Retriever struct {
	searcher Searcher
	limit    int
	minScore float64
}

// NewRetriever returns a Retriever with the search defaults from settings.
func NewRetriever(searcher Searcher, settings Settings) *Retriever {
	settings = settings.withDefaults()
	return &Retriever{
		searcher: searcher,
		limit:    settings.SearchLimit,
		minScore: settings.MinScore,
	}
}

// Retrieve searches with the alert's title and description. Alerts of
// unknown type search across every document type. A non-positive limit or a
// negative minScore uses the configured default. No results is not an error.
func (r *Retriever) Retrieve(ctx context.Context, a *ParsedAlert, limit int, minScore float64) ([]knowledge.SearchResult, error) {
	if limit <= 0 {
		limit = r.limit
	}
	if minScore < 0 {
		minScore = r.minScore
	}

	results, err := r.searcher.Search(ctx, SearchQuery(a), limit, TypeFilter(a), minScore)
	if err != nil {
		if apperr.IsValidation(err) {
			return nil, err
		}
		return nil, apperr.External("index", "search", err)
	}
	return results, nil
}

// SearchQuery builds the retrieval query text for an alert.
func SearchQuery(a *ParsedAlert) string {
	return a.Title + " " + a.Description
}

// TypeFilter maps an alert type onto a document type filter. Unknown maps to
// no filter.
func TypeFilter(a *ParsedAlert) string {
	if a.AlertType == AlertUnknown || !a.AlertType.Valid() {
		return ""
	}
	return string(a.AlertType)
}
