package memindex

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/linnemanlabs/warden/internal/apperr"
	"github.com/linnemanlabs/warden/internal/knowledge"
)

func entry(id, typ string, vec ...float32) knowledge.Entry {
	return knowledge.Entry{
		ID:     id,
		Vector: vec,
		Text:   "text " + id,
		Metadata: knowledge.Metadata{
			Source:  id + ".md",
			Section: "Section " + id,
			Type:    typ,
		},
	}
}

func TestUpsert_Idempotent(t *testing.T) {
	t.Parallel()

	x := New()
	ctx := context.Background()
	e := entry("a", knowledge.TypeGeneral, 1, 0)

	for i := 0; i < 2; i++ {
		if err := x.Upsert(ctx, []knowledge.Entry{e}); err != nil {
			t.Fatalf("Upsert #%d: %v", i, err)
		}
	}
	n, _ := x.Count(ctx)
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestUpsert_ReplacesInPlace(t *testing.T) {
	t.Parallel()

	x := New()
	ctx := context.Background()
	_ = x.Upsert(ctx, []knowledge.Entry{entry("a", knowledge.TypeGeneral, 1, 0)})

	updated := entry("a", knowledge.TypeGeneral, 0, 1)
	updated.Text = "new text"
	if err := x.Upsert(ctx, []knowledge.Entry{updated}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := x.Query(ctx, []float32{0, 1}, 5, "", 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].Content != "new text" {
		t.Errorf("Query = %+v, want replaced entry", got)
	}
}

func TestUpsert_CopiesVector(t *testing.T) {
	t.Parallel()

	x := New()
	ctx := context.Background()
	vec := []float32{1, 0}
	_ = x.Upsert(ctx, []knowledge.Entry{{ID: "a", Vector: vec}})
	vec[0], vec[1] = 0, 1

	got, _ := x.Query(ctx, []float32{1, 0}, 1, "", 0.99)
	if len(got) != 1 {
		t.Fatal("stored vector was mutated through the caller's slice")
	}
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	t.Parallel()

	x := New()
	ctx := context.Background()
	_ = x.Upsert(ctx, []knowledge.Entry{entry("a", knowledge.TypeGeneral, 1, 0)})

	err := x.Upsert(ctx, []knowledge.Entry{entry("b", knowledge.TypeGeneral, 1, 0, 0)})
	if !apperr.IsExternal(err) {
		t.Errorf("err = %v, want ExternalServiceError", err)
	}
	if _, err := x.Query(ctx, []float32{1, 0, 0}, 1, "", 0); !apperr.IsExternal(err) {
		t.Errorf("query err = %v, want ExternalServiceError", err)
	}
}

func TestQuery_RoundTrip(t *testing.T) {
	t.Parallel()

	x := New()
	ctx := context.Background()
	_ = x.Upsert(ctx, []knowledge.Entry{
		entry("a", knowledge.TypeGeneral, 0.2, 0.9, 0.1),
		entry("b", knowledge.TypeGeneral, 0.9, 0.1, 0.3),
		entry("c", knowledge.TypeGeneral, 0.5, 0.5, 0.5),
	})

	got, err := x.Query(ctx, []float32{0.9, 0.1, 0.3}, 3, "", 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) == 0 || got[0].SourceFile != "b.md" {
		t.Fatalf("first result = %+v, want b", got)
	}
	if math.Abs(got[0].Score-1) > 1e-6 {
		t.Errorf("Score = %v, want ~1.0", got[0].Score)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("results not in descending score order: %v > %v", got[i].Score, got[i-1].Score)
		}
	}
	if got[0].Section != "Section b" || got[0].Metadata.Source != "b.md" {
		t.Errorf("result metadata = %+v", got[0])
	}
}

func TestQuery_TypeFilter(t *testing.T) {
	t.Parallel()

	x := New()
	ctx := context.Background()
	_ = x.Upsert(ctx, []knowledge.Entry{
		entry("infra", knowledge.TypeInfrastructure, 1, 0),
		entry("app", knowledge.TypeApplication, 1, 0.01),
		entry("mon", knowledge.TypeMonitoring, 0.9, 0.1),
	})

	got, err := x.Query(ctx, []float32{1, 0}, 10, knowledge.TypeInfrastructure, 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	for _, r := range got {
		if r.Metadata.Type != knowledge.TypeInfrastructure {
			t.Errorf("got type %q with infrastructure filter", r.Metadata.Type)
		}
	}
}

func TestQuery_Threshold(t *testing.T) {
	t.Parallel()

	x := New()
	ctx := context.Background()
	_ = x.Upsert(ctx, []knowledge.Entry{
		entry("near", knowledge.TypeGeneral, 1, 0.1),
		entry("mid", knowledge.TypeGeneral, 1, 1),
		entry("far", knowledge.TypeGeneral, 0, 1),
	})

	got, err := x.Query(ctx, []float32{1, 0}, 5, "", 0.9)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1 (fewer than k)", len(got))
	}
	for _, r := range got {
		if r.Score < 0.9 {
			t.Errorf("score %v below threshold", r.Score)
		}
	}
}

func TestQuery_NaNVectorBelowThreshold(t *testing.T) {
	t.Parallel()

	x := New()
	ctx := context.Background()
	_ = x.Upsert(ctx, []knowledge.Entry{
		entry("broken", knowledge.TypeGeneral, float32(math.NaN()), 1),
	})

	got, err := x.Query(ctx, []float32{1, 0}, 5, "", 0.5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("results = %+v, want none above 0.5", got)
	}
}

func TestQuery_TopKBeforeThreshold(t *testing.T) {
	t.Parallel()

	x := New()
	ctx := context.Background()
	_ = x.Upsert(ctx, []knowledge.Entry{
		entry("a", knowledge.TypeGeneral, 1, 0),
		entry("b", knowledge.TypeGeneral, 1, 0.05),
		entry("c", knowledge.TypeGeneral, 1, 0.1),
	})

	got, _ := x.Query(ctx, []float32{1, 0}, 2, "", 0)
	if len(got) != 2 {
		t.Fatalf("len = %d, want k=2", len(got))
	}
	if got[0].SourceFile != "a.md" || got[1].SourceFile != "b.md" {
		t.Errorf("order = %s, %s", got[0].SourceFile, got[1].SourceFile)
	}
}

func TestQuery_EmptyIndex(t *testing.T) {
	t.Parallel()

	got, err := New().Query(context.Background(), []float32{1, 0}, 5, "", 0.5)
	if err != nil || len(got) != 0 {
		t.Errorf("Query on empty index = %v, %v; want no results, nil", got, err)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	x := New()
	ctx := context.Background()
	_ = x.Upsert(ctx, []knowledge.Entry{entry("a", knowledge.TypeGeneral, 1, 0)})
	if err := x.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n, _ := x.Count(ctx); n != 0 {
		t.Errorf("Count = %d after Clear, want 0", n)
	}
	// a new dimension is accepted once the index is empty
	if err := x.Upsert(ctx, []knowledge.Entry{entry("b", knowledge.TypeGeneral, 1, 0, 0)}); err != nil {
		t.Errorf("Upsert after Clear: %v", err)
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite clamps to zero", []float32{1, 0}, []float32{-1, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"nan component", []float32{float32(math.NaN()), 1}, []float32{1, 0}, 0},
		{"infinite component", []float32{float32(math.Inf(1)), 1}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: Similarity = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	x := New()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = x.Upsert(ctx, []knowledge.Entry{entry(fmt.Sprintf("e-%d", i), knowledge.TypeGeneral, 1, float32(i))})
		}()
		go func() {
			defer wg.Done()
			_, _ = x.Query(ctx, []float32{1, 0}, 5, "", 0)
		}()
	}
	wg.Wait()

	if n, _ := x.Count(ctx); n != 50 {
		t.Errorf("Count = %d, want 50", n)
	}
}
