package triage

import (
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/warden/internal/knowledge"
)

// NoContext replaces the runbook block when retrieval found nothing.
const NoContext = "No relevant runbook sections found. Please use general troubleshooting practices."

const systemPrompt = `You are Warden, an SRE assistant helping on-call engineers triage production incidents.
For every alert you:
1. Assess severity and user impact
2. Suggest immediate actions, citing runbook procedures where they apply
3. Identify likely root causes
4. Recommend whether and where to escalate

Be concise and operational. Prefer numbered steps and exact commands.
Call out actions that protect system stability first.`

const suggestionTemplate = `## Alert Information
**Title:** %s
**Type:** %s
**Severity:** %s
**Description:** %s
**Source System:** %s
**Timestamp:** %s

## Relevant Runbook Sections
%s

## Task
Using the alert and the runbook sections above, write a triage response with:

1. **Summary** (1-2 sentences): what is happening and why it matters.

2. **Immediate Actions** (numbered, highest priority first): specific steps or commands to run now.

3. **Root Cause Hypothesis**: the most likely cause.

4. **Escalation Recommendation**: whether to escalate, to whom, and what information to include.

5. **Confidence Level**: High, Medium or Low.

Keep it short and focused on what needs to happen now.`

const classificationTemplate = `Classify this production alert.

Alert text:
%s

Reply with ONLY a JSON object in exactly this shape, no other text:
{
    "alert_type": "infrastructure|application|monitoring",
    "severity": "critical|high|medium|low|info",
    "title": "short descriptive title, at most 100 characters",
    "affected_component": "component name, or null if unknown",
    "source_system": "source system name, or null if unknown"
}

alert_type:
- "infrastructure": servers, network, disk, memory, CPU
- "application": HTTP errors, exceptions, crashes, timeouts
- "monitoring": threshold breaches, metric anomalies

severity:
- "critical": service down or data at risk, act immediately
- "high": significant degradation affecting many users
- "medium": noticeable impact, needs attention soon
- "low": minor, can be scheduled
- "info": informational only`

func buildClassificationPrompt(raw string) string {
	return fmt.Sprintf(classificationTemplate, raw)
}

func buildSuggestionPrompt(a *ParsedAlert, results []knowledge.SearchResult) string {
	source := "Unknown"
	if a.SourceSystem != nil && *a.SourceSystem != "" {
		source = *a.SourceSystem
	}
	return fmt.Sprintf(suggestionTemplate,
		a.Title,
		a.AlertType,
		a.Severity,
		a.Description,
		source,
		a.Timestamp.UTC().Format(time.RFC3339),
		FormatContext(results),
	)
}

// FormatContext renders retrieved runbook sections as numbered blocks with
// their relevance, or NoContext when results is empty.
func FormatContext(results []knowledge.SearchResult) string {
	if len(results) == 0 {
		return NoContext
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("### Source %d: %s (Relevance: %.0f%%)\n%s\n",
			i+1, r.SourceFile, r.Score*100, r.Content)
	}
	return strings.Join(parts, "\n")
}
