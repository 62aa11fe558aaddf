// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/warden/internal/triage"
)

// Store holds triage records in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	records map[string]*triage.Record
	now     func() time.Time
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		records: make(map[string]*triage.Record),
		now:     time.Now,
	}
}

// CreateRecord stores a copy of the alert and suggestion under a new ULID.
func (s *Store) CreateRecord(_ context.Context, alert *triage.ParsedAlert, sg *triage.Suggestion, origin triage.Origin) (string, error) {
	id := ulid.Make().String()
	now := s.now().UTC()

	rec := &triage.Record{
		ID:         id,
		Alert:      copyAlert(alert),
		Suggestion: copySuggestion(sg),
		Origin:     origin,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = rec
	return id, nil
}

// UpdateSuggestion replaces the suggestion on an existing record.
func (s *Store) UpdateSuggestion(_ context.Context, id string, sg *triage.Suggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", triage.ErrNotFound, id)
	}
	r.Suggestion = copySuggestion(sg)
	r.UpdatedAt = s.now().UTC()
	return nil
}

// Get retrieves a triage record by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*triage.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	cp.Alert = copyAlert(&r.Alert)
	cp.Suggestion = copySuggestion(&r.Suggestion)
	return &cp, true, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func copyAlert(a *triage.ParsedAlert) triage.ParsedAlert {
	cp := *a
	cp.SourceSystem = copyString(a.SourceSystem)
	cp.AffectedComponent = copyString(a.AffectedComponent)
	return cp
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copySuggestion(sg *triage.Suggestion) triage.Suggestion {
	cp := *sg
	cp.RunbookSources = append([]string(nil), sg.RunbookSources...)
	return cp
}
