package triage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("triage record not found")

// Store is the persistence hand-off for completed triages. The Service does
// not retry failed calls.
type Store interface {
	// CreateRecord persists a new record and returns its id.
	CreateRecord(ctx context.Context, alert *ParsedAlert, s *Suggestion, origin Origin) (string, error)
	// UpdateSuggestion replaces the suggestion of an existing record. It
	// returns an error wrapping ErrNotFound for an unknown id.
	UpdateSuggestion(ctx context.Context, id string, s *Suggestion) error
	Get(ctx context.Context, id string) (*Record, bool, error)
}

// Notifier posts a triage summary to a chat channel. An empty channelID
// selects the notifier's default channel; threadParentID may be empty.
type Notifier interface {
	Notify(ctx context.Context, channelID, summary, body, threadParentID string) error
}

// Route binds a Notifier to the chat platform whose ids it understands.
type Route struct {
	Platform string
	Notifier Notifier
}

// Notifiers fans a notification out to every route and joins their errors.
type Notifiers []Route

// Notify posts to every route. Only the route whose platform matches the
// origin receives the origin's channel and thread; the others post to their
// default channel unthreaded. An origin without a platform is only trusted
// when a single route is configured.
func (ns Notifiers) Notify(ctx context.Context, origin Origin, summary, body string) error {
	var errs []error
	for _, r := range ns {
		var channel, thread string
		if ns.owns(r, origin) {
			channel, thread = origin.ChannelID, origin.MessageID
		}
		if err := r.Notifier.Notify(ctx, channel, summary, body, thread); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (ns Notifiers) owns(r Route, origin Origin) bool {
	if origin.Platform == "" {
		return len(ns) == 1
	}
	return origin.Platform == r.Platform
}
