package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/warden/internal/alertapi"
	"github.com/linnemanlabs/warden/internal/postgres"
)

const (
	healthPath = "/-/healthy"
	readyPath  = "/-/ready"

	// alert messages are short; 64KB leaves room for pasted log excerpts
	maxRequestBody = 64 << 10
)

// newRouter builds the chi router for the public listener: health probes
// plus the /api/v1 routes.
func newRouter(api *alertapi.API, healthz, readyz http.HandlerFunc) chi.Router {
	r := chi.NewRouter()

	// responses are JSON only
	r.Use(middleware.Compress(5, "application/json"))

	// names the logger and span after the matched chi pattern
	r.Use(httpmw.AnnotateHTTPRoute)

	// db query metrics are labelled with the request method
	r.Use(postgres.HTTPMethodMiddleware)
	r.Use(postgres.RequestStatsMiddleware)

	r.Use(httpmw.AccessLog())

	// 413 above the limit
	r.Use(httpmw.MaxBody(maxRequestBody))

	r.Get(healthPath, healthz)
	r.Get(readyPath, readyz)

	api.RegisterRoutes(r)
	return r
}

// wrapHandler applies the outer middleware. Each wrapper added later sits
// further out: security headers see every response, request-scoped logging
// sits innermost so it sees the trace and route.
func wrapHandler(h http.Handler, L log.Logger, trustedHops int, metricsMW func(http.Handler) http.Handler) http.Handler {
	h = httpmw.WithLogger(L)(h)

	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)

	h = otelhttp.NewHandler(h, "http.server",
		// probes are not traced
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != healthPath && r.URL.Path != readyPath
		}),
		// renamed to the route pattern by AnnotateHTTPRoute
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(_ *http.Request) bool { return true }),
	)

	h = metricsMW(h)

	// resolved before anything downstream reads the client ip
	h = httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{TrustedHops: trustedHops})(h)

	h = httpmw.RequestID("X-Request-Id")(h)

	h = httpmw.Recover(L, nil)(h)

	return httpmw.SecurityHeaders(h)
}

type stopFn struct {
	name string
	fn   func(context.Context) error
}

// shutdown stops components in order. Each gets an equal slice of budget
// and a failure does not stop the rest.
func shutdown(L log.Logger, budget time.Duration, stops []stopFn) {
	if len(stops) == 0 {
		return
	}
	perComponent := budget / time.Duration(len(stops))
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	for _, s := range stops {
		if s.fn == nil {
			continue
		}
		cctx, ccancel := context.WithTimeout(ctx, perComponent)
		if err := s.fn(cctx); err != nil {
			L.Error(context.Background(), err, s.name+" shutdown")
		}
		ccancel()
	}
}
