package postgres

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestShortenFuncName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"full path", "github.com/linnemanlabs/warden/internal/triage/pgstore.(*Store).Get", "(*Store).Get"},
		{"already short", "(*Store).Get", "Get"},
		{"empty string", "", ""},
		{"no dots", "main", "main"},
		{"no slashes", "pgvector.(*Store).Query", "(*Store).Query"},
		{"single segment", "foo.Bar", "Bar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := shortenFuncName(tt.in)
			if got != tt.want {
				t.Errorf("shortenFuncName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestReqDBStats_AddQuery(t *testing.T) {
	t.Parallel()

	s := &ReqDBStats{}

	s.AddQuery(10*time.Millisecond, nil)
	s.AddQuery(20*time.Millisecond, errors.New("timeout"))
	s.AddQuery(5*time.Millisecond, nil)

	if s.QueryCount != 3 {
		t.Errorf("QueryCount = %d, want 3", s.QueryCount)
	}
	if s.TotalDuration != 35*time.Millisecond {
		t.Errorf("TotalDuration = %v, want 35ms", s.TotalDuration)
	}
	if s.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", s.ErrorCount)
	}
}

func TestReqDBStatsFromContext_Missing(t *testing.T) {
	t.Parallel()

	if _, ok := ReqDBStatsFromContext(context.Background()); ok {
		t.Error("expected ok=false for plain context")
	}
}

func TestQueryLabels(t *testing.T) {
	t.Parallel()

	method, route := queryLabels(context.Background())
	if method != "NONE" || route != "background" {
		t.Errorf("labels = %q/%q, want NONE/background", method, route)
	}

	var gotMethod, gotRoute string
	r := chi.NewRouter()
	r.Use(HTTPMethodMiddleware)
	r.Get("/api/v1/records/{id}", func(_ http.ResponseWriter, req *http.Request) {
		gotMethod, gotRoute = queryLabels(req.Context())
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/records/abc", http.NoBody))

	if gotMethod != http.MethodGet {
		t.Errorf("method = %q, want GET", gotMethod)
	}
	if gotRoute != "/api/v1/records/{id}" {
		t.Errorf("route = %q, want route pattern", gotRoute)
	}
}

type recordingTracer struct {
	starts, ends int
}

func (r *recordingTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryStartData) context.Context {
	r.starts++
	return ctx
}

func (r *recordingTracer) TraceQueryEnd(_ context.Context, _ *pgx.Conn, _ pgx.TraceQueryEndData) {
	r.ends++
}

func TestLoggingTracer_ObservesAndCounts(t *testing.T) {
	// Not parallel: swaps the global query observer.
	defer SetQueryObserver(nil)

	var outcomes []string
	SetQueryObserver(QueryObserverFunc(func(_ context.Context, method, route, outcome string, _ time.Duration) {
		outcomes = append(outcomes, method+" "+route+" "+outcome)
	}))

	inner := &recordingTracer{}
	tr := wrapQueryTracer(inner)
	ctx := NewReqDBStatsContext(context.Background())

	qctx := tr.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	tr.TraceQueryEnd(qctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("SELECT 1")})

	qctx = tr.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT broken"})
	tr.TraceQueryEnd(qctx, nil, pgx.TraceQueryEndData{Err: errors.New("syntax error")})

	if inner.starts != 2 || inner.ends != 2 {
		t.Errorf("inner starts/ends = %d/%d, want 2/2", inner.starts, inner.ends)
	}
	stats, _ := ReqDBStatsFromContext(ctx)
	if stats.QueryCount != 2 || stats.ErrorCount != 1 {
		t.Errorf("stats = %d queries / %d errors, want 2/1", stats.QueryCount, stats.ErrorCount)
	}
	if len(outcomes) != 2 || outcomes[0] != "NONE background ok" || outcomes[1] != "NONE background error" {
		t.Errorf("outcomes = %v", outcomes)
	}
}

func TestSetQueryObserver(t *testing.T) {
	// Not parallel: swaps the global query observer.
	defer SetQueryObserver(nil)

	called := false
	SetQueryObserver(QueryObserverFunc(func(_ context.Context, _, _, _ string, _ time.Duration) {
		called = true
	}))
	got := getQueryObserver()
	if got == nil {
		t.Fatal("expected non-nil observer after Set")
	}
	got.ObserveQuery(context.Background(), "GET", "/test", "ok", time.Millisecond)
	if !called {
		t.Error("observer was not called")
	}

	SetQueryObserver(nil)
	if getQueryObserver() != nil {
		t.Error("expected nil observer after Set(nil)")
	}
}

func TestRequestStatsMiddleware_AttachesStats(t *testing.T) {
	t.Parallel()

	var sawStats bool
	h := RequestStatsMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		s, ok := ReqDBStatsFromContext(r.Context())
		sawStats = ok
		if ok {
			s.AddQuery(5*time.Millisecond, nil)
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/records/x", http.NoBody))

	if !sawStats {
		t.Error("handler context has no ReqDBStats")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
