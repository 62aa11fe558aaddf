// Package webex posts triage notifications to Webex rooms through the
// Messages API.
package webex

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
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"
)

const (
	DefaultAPIURL = "https://webexapis.com/v1"

	// Webex rejects message bodies above 7439 bytes.
	maxMarkdownBytes = 7000
	httpTimeout      = 10 * time.Second
)

// Notifier implements triage.Notifier for Webex.
type Notifier struct {
	botToken    string
	defaultRoom string
	apiURL      string
	client      *http.Client
	logger      log.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithAPIURL overrides the Webex API base URL.
func WithAPIURL(u string) Option { return func(n *Notifier) { n.apiURL = strings.TrimRight(u, "/") } }

// New creates a Webex notifier that posts as the given bot.
func New(botToken, defaultRoom string, logger log.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	n := &Notifier{
		botToken:    botToken,
		defaultRoom: defaultRoom,
		apiURL:      DefaultAPIURL,
		client:      &http.Client{Timeout: httpTimeout},
		logger:      logger,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

type message struct {
	RoomID   string `json:"roomId"`
	Text     string `json:"text"`
	Markdown string `json:"markdown,omitempty"`
	ParentID string `json:"parentId,omitempty"`
}

// Notify posts body as markdown to roomID (or the default room), with
// summary as the plain-text fallback. threadParentID threads the reply.
func (n *Notifier) Notify(ctx context.Context, roomID, summary, body, threadParentID string) error {
	if roomID == "" {
		roomID = n.defaultRoom
	}
	if roomID == "" {
		return errors.New("webex: no room configured")
	}

	payload, err := json.Marshal(message{
		RoomID:   roomID,
		Text:     summary,
		Markdown: truncateBytes(body, maxMarkdownBytes),
		ParentID: threadParentID,
	})
	if err != nil {
		return fmt.Errorf("webex: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webex: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.botToken)

	resp, err := n.client.Do(req) //nolint:gosec // G704: apiURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("webex: post message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webex: messages returned %d: %s", resp.StatusCode, string(raw))
	}

	var out struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	n.logger.Info(ctx, "webex notification sent", "room", roomID, "message_id", out.ID, "threaded", threadParentID != "")
	return nil
}

// truncateBytes cuts s to at most limit bytes without splitting a rune.
func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
