package triage

import (
	"fmt"
	"strings"
)

// MaxNotifySources caps the runbook references listed in a notification.
const MaxNotifySources = 3

var severityEmoji = map[Severity]string{
	SeverityCritical: "🔴",
	SeverityHigh:     "🟠",
	SeverityMedium:   "🟡",
	SeverityLow:      "🟢",
	SeverityInfo:     "🔵",
}

// FormatNotification renders a record as a one-line summary and a markdown
// body for chat notifiers.
func FormatNotification(rec *Record) (summary, body string) {
	emoji, ok := severityEmoji[rec.Alert.Severity]
	if !ok {
		emoji = "⚪"
	}

	summary = fmt.Sprintf("%s [%s] %s", emoji, strings.ToUpper(string(rec.Alert.Severity)), rec.Alert.Title)

	var b strings.Builder
	fmt.Fprintf(&b, "%s **Alert Triage: %s**\n\n", emoji, rec.Alert.Title)
	fmt.Fprintf(&b, "**Type:** %s | **Severity:** %s | **Confidence:** %s\n",
		rec.Alert.AlertType, rec.Alert.Severity, rec.Suggestion.Confidence)
	if rec.ID != "" {
		fmt.Fprintf(&b, "**Record:** %s\n", rec.ID)
	}
	b.WriteString("\n")
	b.WriteString(rec.Suggestion.Text)
	b.WriteString("\n")

	if srcs := rec.Suggestion.RunbookSources; len(srcs) > 0 {
		b.WriteString("\n**Runbook references:**\n")
		for _, s := range srcs[:min(len(srcs), MaxNotifySources)] {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	return summary, b.String()
}
