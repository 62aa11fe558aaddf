// Package memindex provides an in-memory implementation of knowledge.Index.
package memindex

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/linnemanlabs/warden/internal/apperr"
	"github.com/linnemanlabs/warden/internal/knowledge"
)

// Index holds entries in memory and scores queries by brute-force cosine
// similarity. Suitable for dev/testing and small runbook sets.
type Index struct {
	mu      sync.RWMutex
	entries map[string]knowledge.Entry
	dim     int
}

// New initializes an empty Index.
func New() *Index {
	return &Index{entries: make(map[string]knowledge.Entry)}
}

// Upsert stores copies of the entries, replacing any with the same id.
// All vectors in the index must share one dimension.
func (x *Index) Upsert(_ context.Context, entries []knowledge.Entry) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	dim := x.dim
	if len(x.entries) == 0 {
		dim = 0
	}
	for _, e := range entries {
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim || dim == 0 {
			return apperr.External("index", "upsert",
				fmt.Errorf("entry %s has dimension %d, index has %d", e.ID, len(e.Vector), dim))
		}
	}

	for _, e := range entries {
		e.Vector = slices.Clone(e.Vector)
		x.entries[e.ID] = e
	}
	x.dim = dim
	return nil
}

// Query returns the top k entries by cosine similarity, then drops those
// scoring below minScore.
func (x *Index) Query(_ context.Context, vector []float32, k int, typeFilter string, minScore float64) ([]knowledge.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.entries) == 0 {
		return nil, nil
	}
	if len(vector) != x.dim {
		return nil, apperr.External("index", "query",
			fmt.Errorf("query has dimension %d, index has %d", len(vector), x.dim))
	}

	type scored struct {
		id    string
		score float64
	}
	candidates := make([]scored, 0, len(x.entries))
	for id, e := range x.entries {
		if typeFilter != "" && e.Metadata.Type != typeFilter {
			continue
		}
		candidates = append(candidates, scored{id: id, score: Similarity(vector, e.Vector)})
	}

	slices.SortFunc(candidates, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]knowledge.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		if c.score < minScore {
			continue
		}
		e := x.entries[c.id]
		results = append(results, knowledge.SearchResult{
			Content:    e.Text,
			SourceFile: e.Metadata.Source,
			Section:    e.Metadata.Section,
			Score:      c.score,
			Metadata:   e.Metadata,
		})
	}
	return results, nil
}

// Count returns the number of stored entries.
func (x *Index) Count(_ context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries), nil
}

// Clear removes every entry.
func (x *Index) Clear(_ context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = make(map[string]knowledge.Entry)
	x.dim = 0
	return nil
}

// Similarity returns 1 - cosine distance between a and b, clamped to
// [0, 1]. Zero vectors and vectors with NaN or infinite components score 0.
func Similarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(s) {
		return 0
	}
	return math.Max(0, math.Min(1, s))
}
