package triage

import (
	"time"

	"github.com/linnemanlabs/warden/internal/apperr"
	"github.com/linnemanlabs/warden/internal/knowledge"
)

// AlertType is the coarse category assigned by the classifier.
type AlertType string

const (
	AlertInfrastructure AlertType = "infrastructure"
	AlertApplication    AlertType = "application"
	AlertMonitoring     AlertType = "monitoring"
	AlertUnknown        AlertType = "unknown"
)

// Valid reports whether t is one of the recognized alert types.
func (t AlertType) Valid() bool {
	switch t {
	case AlertInfrastructure, AlertApplication, AlertMonitoring, AlertUnknown:
		return true
	}
	return false
}

// Severity ranks the urgency of an alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Valid reports whether s is one of the recognized severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// Confidence is the coarse label derived from generated suggestion text.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// ParsedAlert is the classified form of a raw alert message. It is
// created once by the Classifier and not modified afterwards.
type ParsedAlert struct {
	RawMessage        string    `json:"raw_message"`
	AlertType         AlertType `json:"alert_type"`
	Severity          Severity  `json:"severity"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	SourceSystem      *string   `json:"source_system"`
	AffectedComponent *string   `json:"affected_component"`
	Timestamp         time.Time `json:"timestamp"`
}

// Suggestion is the generated triage advice for one alert.
type Suggestion struct {
	Text           string     `json:"text"`
	Confidence     Confidence `json:"confidence"`
	RunbookSources []string   `json:"runbook_sources"`
	Model          string     `json:"model,omitempty"`
	Usage          Usage      `json:"usage"`
}

// Chat platforms an alert can arrive from.
const (
	PlatformSlack = "slack"
	PlatformWebex = "webex"
)

// Origin identifies where an alert came from, so replies can be threaded.
// ChannelID and MessageID are only meaningful on Platform.
type Origin struct {
	Platform  string `json:"platform,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// Validate rejects platforms no notifier understands. An empty platform is
// accepted.
func (o Origin) Validate() error {
	switch o.Platform {
	case "", PlatformSlack, PlatformWebex:
		return nil
	}
	return apperr.Invalid("origin.platform", o.Platform, "must be slack or webex")
}

// Record is the persisted result of a full triage.
type Record struct {
	ID         string      `json:"id"`
	Alert      ParsedAlert `json:"alert"`
	Suggestion Suggestion  `json:"suggestion"`
	Origin     Origin      `json:"origin"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// State tracks where an alert is in the pipeline.
type State string

const (
	// StateReceived means the raw message was accepted
	StateReceived State = "received"

	// StateClassified means a ParsedAlert exists (possibly the fallback)
	StateClassified State = "classified"

	// StateRetrieved means runbook retrieval finished, possibly empty
	StateRetrieved State = "retrieved"

	// StateSuggested means a Suggestion was generated
	StateSuggested State = "suggested"

	// StateHandedOff means the record was passed to the Store
	StateHandedOff State = "handed_off"

	// StateFailed means an external service failed; absorbing
	StateFailed State = "failed"
)

var transitions = map[State][]State{
	StateReceived:   {StateClassified},
	StateClassified: {StateRetrieved, StateFailed},
	StateRetrieved:  {StateSuggested, StateFailed},
	StateSuggested:  {StateHandedOff},
}

// CanTransition reports whether the pipeline may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool { return len(transitions[s]) == 0 }

// Stage names a pipeline step for logs, metrics and errors.
type Stage string

const (
	StageClassify Stage = "classify"
	StageRetrieve Stage = "retrieve"
	StageGenerate Stage = "generate"
	StageHandOff  Stage = "handoff"
)

// Outcome is the result of running the pipeline for one alert.
type Outcome struct {
	State       State                    `json:"state"`
	Alert       *ParsedAlert             `json:"alert,omitempty"`
	Results     []knowledge.SearchResult `json:"results"`
	Suggestion  *Suggestion              `json:"suggestion,omitempty"`
	FailedStage Stage                    `json:"failed_stage,omitempty"`
	Err         error                    `json:"-"`
	Duration    float64                  `json:"duration_seconds"`
}

func (o *Outcome) advance(next State) {
	if !o.State.CanTransition(next) {
		panic("triage: invalid state transition " + string(o.State) + " -> " + string(next))
	}
	o.State = next
}

func (o *Outcome) fail(stage Stage, err error) {
	o.advance(StateFailed)
	o.FailedStage = stage
	o.Err = err
}
