package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/linnemanlabs/warden/internal/triage"
)

func testAlert() *triage.ParsedAlert {
	return &triage.ParsedAlert{
		RawMessage: "Disk usage at 95% on web-01",
		AlertType:  triage.AlertInfrastructure,
		Severity:   triage.SeverityCritical,
		Title:      "Disk full on web-01",
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	sg := &triage.Suggestion{Text: "rotate logs", Confidence: triage.ConfidenceHigh, RunbookSources: []string{"disk.md"}}
	id, err := s.CreateRecord(ctx, testAlert(), sg, triage.Origin{ChannelID: "C1"})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if len(id) != 26 {
		t.Errorf("id = %q, want a 26-char ULID", id)
	}

	got, ok, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected record to be found")
	}
	if got.Alert.Title != "Disk full on web-01" {
		t.Errorf("Title = %q", got.Alert.Title)
	}
	if got.Suggestion.Confidence != triage.ConfidenceHigh {
		t.Errorf("Confidence = %q, want High", got.Suggestion.Confidence)
	}
	if got.Origin.ChannelID != "C1" {
		t.Errorf("ChannelID = %q, want C1", got.Origin.ChannelID)
	}
	if got.CreatedAt.IsZero() || !got.CreatedAt.Equal(got.UpdatedAt) {
		t.Errorf("CreatedAt = %v, UpdatedAt = %v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()

	s := New()
	_, ok, err := s.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing ID")
	}
}

func TestStore_UpdateSuggestion(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	id, _ := s.CreateRecord(ctx, testAlert(), &triage.Suggestion{Text: "v1"}, triage.Origin{})

	if err := s.UpdateSuggestion(ctx, id, &triage.Suggestion{Text: "v2", Confidence: triage.ConfidenceLow}); err != nil {
		t.Fatalf("UpdateSuggestion: %v", err)
	}
	got, _, _ := s.Get(ctx, id)
	if got.Suggestion.Text != "v2" {
		t.Errorf("Text = %q, want v2", got.Suggestion.Text)
	}
	if got.Alert.RawMessage != testAlert().RawMessage {
		t.Error("alert changed on suggestion update")
	}
}

func TestStore_UpdateMissing(t *testing.T) {
	t.Parallel()

	err := New().UpdateSuggestion(context.Background(), "nope", &triage.Suggestion{})
	if !errors.Is(err, triage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_ReturnsCopy(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	sources := []string{"a.md"}
	id, _ := s.CreateRecord(ctx, testAlert(), &triage.Suggestion{RunbookSources: sources}, triage.Origin{})
	sources[0] = "mutated"

	got, _, _ := s.Get(ctx, id)
	got.Suggestion.RunbookSources[0] = "also mutated"

	again, _, _ := s.Get(ctx, id)
	if again.Suggestion.RunbookSources[0] != "a.md" {
		t.Errorf("RunbookSources[0] = %q, want a.md", again.Suggestion.RunbookSources[0])
	}
}

func TestStore_AlertPointersNotShared(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	source, component := "prometheus", "web-01"
	a := testAlert()
	a.SourceSystem, a.AffectedComponent = &source, &component

	id, _ := s.CreateRecord(ctx, a, &triage.Suggestion{}, triage.Origin{})
	source, component = "mutated", "mutated"

	got, _, _ := s.Get(ctx, id)
	*got.Alert.SourceSystem = "also mutated"
	*got.Alert.AffectedComponent = "also mutated"

	again, _, _ := s.Get(ctx, id)
	if *again.Alert.SourceSystem != "prometheus" {
		t.Errorf("SourceSystem = %q, want prometheus", *again.Alert.SourceSystem)
	}
	if *again.Alert.AffectedComponent != "web-01" {
		t.Errorf("AffectedComponent = %q, want web-01", *again.Alert.AffectedComponent)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id, err := s.CreateRecord(ctx, testAlert(), &triage.Suggestion{Text: fmt.Sprintf("s-%d", n)}, triage.Origin{})
			if err != nil {
				t.Errorf("CreateRecord: %v", err)
				return
			}
			_, _, _ = s.Get(ctx, id)
		}(i)
	}
	wg.Wait()

	if s.Len() != 50 {
		t.Errorf("Len = %d, want 50", s.Len())
	}
}
