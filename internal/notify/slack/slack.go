// Package slack posts triage notifications with the Slack Web API
// (chat.postMessage), threading replies under the originating message.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

const (
	DefaultAPIURL = "https://slack.com/api"

	maxSectionLen = 3000
	maxHeaderLen  = 150
	httpTimeout   = 10 * time.Second
)

// Notifier implements triage.Notifier for Slack.
type Notifier struct {
	token          string
	defaultChannel string
	apiURL         string
	client         *http.Client
	logger         log.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithAPIURL overrides the Slack API base URL.
func WithAPIURL(u string) Option { return func(n *Notifier) { n.apiURL = strings.TrimRight(u, "/") } }

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(n *Notifier) { n.client = c } }

// New creates a Slack notifier authenticated with a bot token. defaultChannel
// is used when Notify is called without a channel.
func New(token, defaultChannel string, logger log.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	n := &Notifier{
		token:          token,
		defaultChannel: defaultChannel,
		apiURL:         DefaultAPIURL,
		client:         &http.Client{Timeout: httpTimeout},
		logger:         logger,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

type postMessage struct {
	Channel  string           `json:"channel"`
	Text     string           `json:"text"`
	Blocks   []map[string]any `json:"blocks,omitempty"`
	ThreadTS string           `json:"thread_ts,omitempty"`
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	TS    string `json:"ts,omitempty"`
}

// Notify posts summary and body to channelID (or the default channel),
// threaded under threadParentID when set.
func (n *Notifier) Notify(ctx context.Context, channelID, summary, body, threadParentID string) error {
	if channelID == "" {
		channelID = n.defaultChannel
	}
	if channelID == "" {
		return errors.New("slack: no channel configured")
	}

	msg := postMessage{
		Channel:  channelID,
		Text:     summary,
		Blocks:   buildBlocks(summary, body),
		ThreadTS: threadParentID,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiURL+"/chat.postMessage", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.client.Do(req) //nolint:gosec // G704: apiURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack: chat.postMessage returned %d: %s", resp.StatusCode, string(raw))
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("slack: decode response: %w", err)
	}
	if !out.OK {
		return fmt.Errorf("slack: chat.postMessage: %s", out.Error)
	}

	n.logger.Info(ctx, "slack notification sent", "channel", channelID, "ts", out.TS, "threaded", threadParentID != "")
	return nil
}

func buildBlocks(summary, body string) []map[string]any {
	return []map[string]any{
		{
			"type": "header",
			"text": map[string]any{
				"type": "plain_text",
				"text": truncate(summary, maxHeaderLen),
			},
		},
		{"type": "divider"},
		{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": truncate(toMrkdwn(body), maxSectionLen),
			},
		},
	}
}

// toMrkdwn converts markdown bold to Slack's single-asterisk form.
func toMrkdwn(s string) string {
	return strings.ReplaceAll(s, "**", "*")
}

// truncate cuts s to at most limit runes, marking the cut with "...".
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
