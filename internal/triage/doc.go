// Package triage provides the business boundary for Warden's alert triage.
// It defines the Engine (per-alert classify, retrieve, generate state
// machine), the Service (hand-off to persistence and notification, quick
// triage, re-triage), the Store and Notifier interfaces, and domain models.
package triage
