package alertapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/warden/internal/knowledge"
	"github.com/linnemanlabs/warden/internal/triage"
)

type triageRequest struct {
	Message string        `json:"message"`
	Origin  triage.Origin `json:"origin"`
}

// quickTriageResponse is the outcome of a triage that was not persisted.
type quickTriageResponse struct {
	State      triage.State             `json:"state"`
	Alert      *triage.ParsedAlert      `json:"alert"`
	Suggestion *triage.Suggestion       `json:"suggestion"`
	Results    []knowledge.SearchResult `json:"results"`
	Duration   float64                  `json:"duration_seconds"`
}

func (a *API) handleTriageAlert(w http.ResponseWriter, r *http.Request) {
	var req triageRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.writeError(w, r, err, "decode alert")
		return
	}

	rec, err := a.svc.Triage(r.Context(), triage.Request{Message: req.Message, Origin: req.Origin})
	if err != nil {
		a.writeError(w, r, err, "triage failed")
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("warden.triage.id", rec.ID),
		attribute.String("warden.alert.type", string(rec.Alert.AlertType)),
		attribute.String("warden.alert.severity", string(rec.Alert.Severity)),
	)

	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) handleQuickTriage(w http.ResponseWriter, r *http.Request) {
	var req triageRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.writeError(w, r, err, "decode alert")
		return
	}

	out, err := a.svc.QuickTriage(r.Context(), req.Message)
	if err != nil {
		a.writeError(w, r, err, "quick triage failed")
		return
	}

	results := out.Results
	if results == nil {
		results = []knowledge.SearchResult{}
	}
	writeJSON(w, http.StatusOK, quickTriageResponse{
		State:      out.State,
		Alert:      out.Alert,
		Suggestion: out.Suggestion,
		Results:    results,
		Duration:   out.Duration,
	})
}

func (a *API) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("warden.triage.id", id))

	rec, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "failed to get triage record")
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}

	span.SetAttributes(attribute.String("warden.suggestion.confidence", string(rec.Suggestion.Confidence)))
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleRetriage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("warden.triage.id", id))

	rec, err := a.svc.Retriage(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "retriage failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
