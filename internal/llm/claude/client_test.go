package claude

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/warden/internal/triage"
)

const messageJSON = `{
  "id": "msg_01",
  "type": "message",
  "role": "assistant",
  "model": "claude-sonnet-4-20250514",
  "stop_reason": "end_turn",
  "content": [
    {"type": "text", "text": "1. **Summary**: disk full."},
    {"type": "text", "text": " Confidence: High"}
  ],
  "usage": {"input_tokens": 120, "output_tokens": 45}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("test-key", "", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
}

func TestSend_RequestAndResponse(t *testing.T) {
	t.Parallel()

	var body map[string]any
	var apiKey string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("X-Api-Key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(messageJSON))
	})

	resp, err := c.Send(context.Background(), &triage.LLMRequest{
		System:      "you are an SRE",
		Prompt:      "disk alert",
		MaxTokens:   1024,
		Temperature: triage.Float(0.3),
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if apiKey != "test-key" {
		t.Errorf("api key = %q, want test-key", apiKey)
	}
	if body["model"] != DefaultModel {
		t.Errorf("model = %v, want %s", body["model"], DefaultModel)
	}
	if body["max_tokens"] != float64(1024) {
		t.Errorf("max_tokens = %v, want 1024", body["max_tokens"])
	}
	if body["temperature"] != 0.3 {
		t.Errorf("temperature = %v, want 0.3", body["temperature"])
	}
	if sys, _ := json.Marshal(body["system"]); !strings.Contains(string(sys), "you are an SRE") {
		t.Errorf("system = %s", sys)
	}

	if resp.Text != "1. **Summary**: disk full. Confidence: High" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.StopReason != "end_turn" {
		t.Errorf("StopReason = %q, want end_turn", resp.StopReason)
	}
	if resp.Usage.InputTokens != 120 || resp.Usage.OutputTokens != 45 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestSend_OmitsUnsetTemperatureAndSystem(t *testing.T) {
	t.Parallel()

	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(messageJSON))
	})

	if _, err := c.Send(context.Background(), &triage.LLMRequest{Prompt: "x", MaxTokens: 10}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, ok := body["temperature"]; ok {
		t.Error("temperature sent although unset")
	}
	if _, ok := body["system"]; ok {
		t.Error("system sent although empty")
	}
}

func TestSend_APIError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	})

	_, err := c.Send(context.Background(), &triage.LLMRequest{Prompt: "x", MaxTokens: 10})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
}

func TestNew_ModelOverride(t *testing.T) {
	t.Parallel()

	if got := New("k", "").Model(); got != DefaultModel {
		t.Errorf("Model() = %q, want %q", got, DefaultModel)
	}
	if got := New("k", "claude-haiku").Model(); got != "claude-haiku" {
		t.Errorf("Model() = %q, want claude-haiku", got)
	}
}
