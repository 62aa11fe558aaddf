package triage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/warden/internal/apperr"
	"github.com/linnemanlabs/warden/internal/knowledge"
	"github.com/linnemanlabs/warden/internal/knowledge/memindex"
)

// mockProvider returns preconfigured responses in sequence and records the
// requests it saw.
type mockProvider struct {
	mu        sync.Mutex
	responses []*LLMResponse
	errs      []error
	requests  []*LLMRequest
	callIdx   int
}

const testModel = "claude-sonnet-4-20250514"

func (m *mockProvider) Send(_ context.Context, req *LLMRequest) (*LLMResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.callIdx
	m.callIdx++
	m.requests = append(m.requests, req)

	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx < len(m.responses) && m.responses[idx] != nil {
		return m.responses[idx], nil
	}
	// fallback: plain suggestion
	return &LLMResponse{
		Text:  "fallback",
		Model: testModel,
		Usage: Usage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

func (m *mockProvider) sent() []*LLMRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*LLMRequest(nil), m.requests...)
}

const infraClassification = `{"alert_type":"infrastructure","severity":"critical","title":"Disk full on web-01","affected_component":"web-01","source_system":"prometheus"}`

func TestRun_HappyPath(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*LLMResponse{
		{Text: infraClassification, Model: testModel},
		{Text: "1. **Summary**: disk full\n5. **Confidence Level**: High", Model: testModel},
	}}
	searcher := &mockSearcher{results: []knowledge.SearchResult{{SourceFile: "infrastructure/disk.md", Score: 0.9, Content: "clean"}}}
	engine := NewEngine(provider, searcher, DefaultSettings(), log.Nop(), EngineHooks{})

	out := engine.Run(context.Background(), "Disk usage at 95% on web-01")

	if out.Err != nil {
		t.Fatalf("Err = %v", out.Err)
	}
	if out.State != StateSuggested {
		t.Errorf("State = %q, want %q", out.State, StateSuggested)
	}
	if out.Alert.AlertType != AlertInfrastructure {
		t.Errorf("AlertType = %q", out.Alert.AlertType)
	}
	if searcher.filter != "infrastructure" {
		t.Errorf("search filter = %q, want infrastructure", searcher.filter)
	}
	if out.Suggestion.Confidence != ConfidenceHigh {
		t.Errorf("Confidence = %q, want High", out.Suggestion.Confidence)
	}
	if len(out.Suggestion.RunbookSources) != 1 || out.Suggestion.RunbookSources[0] != "infrastructure/disk.md" {
		t.Errorf("RunbookSources = %v", out.Suggestion.RunbookSources)
	}
	if out.Duration <= 0 {
		t.Error("Duration not recorded")
	}
}

func TestRun_ClassificationGarbageDegrades(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*LLMResponse{{Text: "not json"}}}
	searcher := &mockSearcher{}
	engine := NewEngine(provider, searcher, DefaultSettings(), log.Nop(), EngineHooks{})

	out := engine.Run(context.Background(), "something odd happened")

	if out.State != StateSuggested {
		t.Fatalf("State = %q, want %q (err %v)", out.State, StateSuggested, out.Err)
	}
	if out.Alert.AlertType != AlertUnknown {
		t.Errorf("AlertType = %q, want unknown", out.Alert.AlertType)
	}
	if searcher.filter != "" {
		t.Errorf("filter = %q, want unfiltered search for unknown type", searcher.filter)
	}
}

func TestRun_RetrievalFailure(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*LLMResponse{{Text: infraClassification}}}
	searcher := &mockSearcher{err: errors.New("embedding model offline")}
	engine := NewEngine(provider, searcher, DefaultSettings(), log.Nop(), EngineHooks{})

	out := engine.Run(context.Background(), "disk alert")

	if out.State != StateFailed || out.FailedStage != StageRetrieve {
		t.Errorf("State/FailedStage = %q/%q, want failed/retrieve", out.State, out.FailedStage)
	}
	if !apperr.IsExternal(out.Err) {
		t.Errorf("Err = %v, want ExternalServiceError", out.Err)
	}
	if n := len(provider.sent()); n != 1 {
		t.Errorf("provider calls = %d, want 1 (no generation after failed retrieval)", n)
	}
}

func TestRun_GenerationFailure(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		responses: []*LLMResponse{{Text: infraClassification}},
		errs:      []error{nil, errors.New("overloaded")},
	}
	engine := NewEngine(provider, &mockSearcher{}, DefaultSettings(), log.Nop(), EngineHooks{})

	out := engine.Run(context.Background(), "disk alert")

	if out.State != StateFailed || out.FailedStage != StageGenerate {
		t.Errorf("State/FailedStage = %q/%q, want failed/generate", out.State, out.FailedStage)
	}
	if !apperr.IsExternal(out.Err) {
		t.Errorf("Err = %v, want ExternalServiceError", out.Err)
	}
	if out.Suggestion != nil {
		t.Error("Suggestion should be nil after generation failure")
	}
}

func TestRun_Hooks(t *testing.T) {
	t.Parallel()

	var (
		mu        sync.Mutex
		llmStages []Stage
		stages    []Stage
		completed []State
		tokensIn  int
	)
	hooks := EngineHooks{
		OnLLMCall: func(stage Stage, in, _ int, _ float64, _ error) {
			mu.Lock()
			defer mu.Unlock()
			llmStages = append(llmStages, stage)
			tokensIn += in
		},
		OnStage: func(stage Stage, _ float64, _ error) {
			mu.Lock()
			defer mu.Unlock()
			stages = append(stages, stage)
		},
		OnComplete: func(o *Outcome) {
			mu.Lock()
			defer mu.Unlock()
			completed = append(completed, o.State)
		},
	}
	provider := &mockProvider{responses: []*LLMResponse{
		{Text: infraClassification, Usage: Usage{InputTokens: 40}},
		{Text: "ok", Usage: Usage{InputTokens: 400}},
	}}
	engine := NewEngine(provider, &mockSearcher{}, DefaultSettings(), log.Nop(), hooks)
	engine.Run(context.Background(), "disk alert")

	if len(llmStages) != 2 || llmStages[0] != StageClassify || llmStages[1] != StageGenerate {
		t.Errorf("llm stages = %v", llmStages)
	}
	if tokensIn != 440 {
		t.Errorf("tokensIn = %d, want 440", tokensIn)
	}
	if len(stages) != 3 || stages[0] != StageClassify || stages[1] != StageRetrieve || stages[2] != StageGenerate {
		t.Errorf("stages = %v", stages)
	}
	if len(completed) != 1 || completed[0] != StateSuggested {
		t.Errorf("completed = %v", completed)
	}
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to State
		want     bool
	}{
		{StateReceived, StateClassified, true},
		{StateClassified, StateRetrieved, true},
		{StateRetrieved, StateSuggested, true},
		{StateSuggested, StateHandedOff, true},
		{StateClassified, StateFailed, true},
		{StateRetrieved, StateFailed, true},
		{StateReceived, StateFailed, false},
		{StateReceived, StateRetrieved, false},
		{StateSuggested, StateRetrieved, false},
		{StateHandedOff, StateFailed, false},
		{StateFailed, StateSuggested, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	for _, s := range []State{StateHandedOff, StateFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

// constantEmbedder maps every text to the same vector, so only the type
// filter separates candidates.
var constantEmbedder = knowledge.EmbedderFunc(func(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.6, 0.8}
	}
	return out, nil
})

func indexedBase(t *testing.T) *knowledge.Base {
	t.Helper()
	base := knowledge.NewBase(knowledge.NewChunker(knowledge.ChunkerConfig{}), constantEmbedder, memindex.New(), log.Nop())
	ctx := context.Background()
	if _, err := base.IndexDocument(ctx, "## Disk Full\n\nClean /var/log and rotate.", "infrastructure/disk.md"); err != nil {
		t.Fatal(err)
	}
	if _, err := base.IndexDocument(ctx, "## Disk Quota\n\nRaise the app volume quota.", "application/storage.md"); err != nil {
		t.Fatal(err)
	}
	return base
}

func TestRun_InfrastructureAlertRetrievesOnlyInfrastructureChunks(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*LLMResponse{{Text: infraClassification}}}
	engine := NewEngine(provider, indexedBase(t), DefaultSettings(), log.Nop(), EngineHooks{})

	out := engine.Run(context.Background(), "Disk usage at 95% on web-01")
	if out.Err != nil {
		t.Fatalf("Err = %v", out.Err)
	}
	if len(out.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(out.Results))
	}
	if out.Results[0].Metadata.Type != knowledge.TypeInfrastructure {
		t.Errorf("result type = %q, want infrastructure", out.Results[0].Metadata.Type)
	}
}

func TestRun_ZeroResultsStillSuggestsWithMediumConfidence(t *testing.T) {
	t.Parallel()

	// monitoring has no indexed chunks
	provider := &mockProvider{responses: []*LLMResponse{
		{Text: `{"alert_type":"monitoring","severity":"low","title":"Scrape slow"}`},
		{Text: "1. **Summary**: scrape latency is up.\n2. **Immediate Actions**: check the exporter."},
	}}
	engine := NewEngine(provider, indexedBase(t), DefaultSettings(), log.Nop(), EngineHooks{})

	out := engine.Run(context.Background(), "prometheus scrape duration high")
	if out.Err != nil {
		t.Fatalf("Err = %v", out.Err)
	}
	if len(out.Results) != 0 {
		t.Fatalf("results = %d, want 0", len(out.Results))
	}
	if out.Suggestion == nil || out.Suggestion.Text == "" {
		t.Fatal("expected a non-empty suggestion")
	}
	if out.Suggestion.Confidence != ConfidenceMedium {
		t.Errorf("Confidence = %q, want Medium", out.Suggestion.Confidence)
	}
}

func TestRun_CreatesSpans(t *testing.T) {
	// Not parallel: swaps the global OTel tracer provider.

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	provider := &mockProvider{responses: []*LLMResponse{
		{Text: infraClassification, Model: testModel, Usage: Usage{InputTokens: 50, OutputTokens: 20}},
		{Text: "ok", Model: testModel, Usage: Usage{InputTokens: 500, OutputTokens: 200}},
	}}
	engine := NewEngine(provider, &mockSearcher{}, DefaultSettings(), log.Nop(), EngineHooks{})
	engine.Run(context.Background(), "disk alert")

	counts := make(map[string]int)
	for _, s := range exporter.GetSpans() {
		counts[s.Name]++

		if s.Name != "llm.call" {
			continue
		}
		attrs := make(map[string]any)
		for _, a := range s.Attributes {
			attrs[string(a.Key)] = a.Value.AsInterface()
		}
		if v := attrs["gen_ai.response.model"]; v != testModel {
			t.Errorf("llm.call gen_ai.response.model = %v, want %s", v, testModel)
		}
	}

	for name, want := range map[string]int{
		"triage.Run":      1,
		"triage.classify": 1,
		"triage.retrieve": 1,
		"triage.generate": 1,
		"llm.call":        2,
	} {
		if counts[name] != want {
			t.Errorf("%s spans = %d, want %d", name, counts[name], want)
		}
	}
}
