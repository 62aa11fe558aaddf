package triage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/warden/internal/apperr"
	"github.com/linnemanlabs/warden/internal/knowledge"
)

func testParsedAlert() *ParsedAlert {
	src := "prometheus"
	return &ParsedAlert{
		RawMessage:   "Disk usage at 95% on web-01 /var",
		AlertType:    AlertInfrastructure,
		Severity:     SeverityCritical,
		Title:        "Disk full on web-01",
		Description:  "Disk usage at 95% on web-01 /var",
		SourceSystem: &src,
		Timestamp:    testNow,
	}
}

func TestExtractConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want Confidence
	}{
		{"5. **Confidence Level**: High", ConfidenceHigh},
		{"**Confidence Level:** Low - logs are missing", ConfidenceLow},
		{"Confidence: medium", ConfidenceMedium},
		{"confidence level - HIGH", ConfidenceHigh},
		{"I have high confidence this is disk pressure.", ConfidenceHigh},
		{"Low confidence: more data needed.", ConfidenceLow},
		{"High CPU load. Root cause unclear.", ConfidenceMedium},
		{"Restart the service.", ConfidenceMedium},
		{"", ConfidenceMedium},
	}
	for _, tt := range tests {
		if got := ExtractConfidence(tt.text); got != tt.want {
			t.Errorf("ExtractConfidence(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestFormatContext(t *testing.T) {
	t.Parallel()

	if got := FormatContext(nil); got != NoContext {
		t.Errorf("FormatContext(nil) = %q, want sentinel", got)
	}

	got := FormatContext([]knowledge.SearchResult{
		{SourceFile: "infrastructure/disk.md", Score: 0.874, Content: "## Disk Full\n\nClean logs."},
		{SourceFile: "general/oncall.md", Score: 0.5, Content: "## Escalation\n\nPage SRE."},
	})
	want := "### Source 1: infrastructure/disk.md (Relevance: 87%)\n## Disk Full\n\nClean logs.\n" +
		"\n" +
		"### Source 2: general/oncall.md (Relevance: 50%)\n## Escalation\n\nPage SRE.\n"
	if got != want {
		t.Errorf("FormatContext =\n%q\nwant\n%q", got, want)
	}
}

func TestGenerate_NoResultsUsesSentinelAndDefaultsMedium(t *testing.T) {
	t.Parallel()

	p := &mockProvider{responses: []*LLMResponse{{
		Text:  "1. **Summary**: the disk is full.\n2. **Immediate Actions**: clean /var/log.",
		Model: "test-model",
		Usage: Usage{InputTokens: 300, OutputTokens: 90},
	}}}
	s := NewSuggester(p, DefaultSettings(), log.Nop(), EngineHooks{})

	got, err := s.Generate(context.Background(), testParsedAlert(), nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got.Text == "" {
		t.Error("suggestion text is empty")
	}
	if got.Confidence != ConfidenceMedium {
		t.Errorf("Confidence = %q, want Medium", got.Confidence)
	}
	if len(got.RunbookSources) != 0 {
		t.Errorf("RunbookSources = %v, want empty", got.RunbookSources)
	}
	if got.Model != "test-model" || got.Usage.OutputTokens != 90 {
		t.Errorf("Model/Usage = %q/%+v", got.Model, got.Usage)
	}

	req := p.sent()[0]
	if !strings.Contains(req.Prompt, NoContext) {
		t.Error("prompt missing no-context sentinel")
	}
	for _, section := range []string{"## Alert Information", "## Relevant Runbook Sections",
		"**Summary**", "**Immediate Actions**", "**Root Cause Hypothesis**",
		"**Escalation Recommendation**", "**Confidence Level**"} {
		if !strings.Contains(req.Prompt, section) {
			t.Errorf("prompt missing %q", section)
		}
	}
	if !strings.Contains(req.Prompt, "**Source System:** prometheus") {
		t.Error("prompt missing source system")
	}
	if req.System == "" {
		t.Error("system prompt is empty")
	}
	if req.Temperature == nil || *req.Temperature != 0.3 {
		t.Errorf("Temperature = %v, want 0.3", req.Temperature)
	}
	if req.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d, want 1024", req.MaxTokens)
	}
}

func TestGenerate_SourcesInRankOrder(t *testing.T) {
	t.Parallel()

	p := &mockProvider{responses: []*LLMResponse{{Text: "Confidence Level: High"}}}
	s := NewSuggester(p, DefaultSettings(), log.Nop(), EngineHooks{})

	results := []knowledge.SearchResult{
		{SourceFile: "b.md", Score: 0.9},
		{SourceFile: "a.md", Score: 0.8},
		{SourceFile: "b.md", Score: 0.7},
	}
	got, err := s.Generate(context.Background(), testParsedAlert(), results)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := []string{"b.md", "a.md", "b.md"}
	if strings.Join(got.RunbookSources, ",") != strings.Join(want, ",") {
		t.Errorf("RunbookSources = %v, want %v", got.RunbookSources, want)
	}
	if got.Confidence != ConfidenceHigh {
		t.Errorf("Confidence = %q, want High", got.Confidence)
	}
}

func TestGenerate_UnknownSourceSystem(t *testing.T) {
	t.Parallel()

	p := &mockProvider{}
	s := NewSuggester(p, DefaultSettings(), log.Nop(), EngineHooks{})
	a := testParsedAlert()
	a.SourceSystem = nil

	if _, err := s.Generate(context.Background(), a, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(p.sent()[0].Prompt, "**Source System:** Unknown") {
		t.Error("prompt should render a missing source system as Unknown")
	}
}

func TestGenerate_ProviderFailure(t *testing.T) {
	t.Parallel()

	p := &mockProvider{errs: []error{errors.New("503 from upstream")}}
	s := NewSuggester(p, DefaultSettings(), log.Nop(), EngineHooks{})

	_, err := s.Generate(context.Background(), testParsedAlert(), nil)
	if !apperr.IsExternal(err) {
		t.Fatalf("err = %v, want ExternalServiceError", err)
	}
}

func TestGenerate_EmptyCompletion(t *testing.T) {
	t.Parallel()

	p := &mockProvider{responses: []*LLMResponse{{Text: "  \n"}}}
	s := NewSuggester(p, DefaultSettings(), log.Nop(), EngineHooks{})

	if _, err := s.Generate(context.Background(), testParsedAlert(), nil); !apperr.IsExternal(err) {
		t.Errorf("err = %v, want ExternalServiceError", err)
	}
}
