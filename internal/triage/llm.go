package triage

import "context"

// Provider is the interface for any text-generation backend. Classification
// and suggestion generation both go through it.
type Provider interface {
	Send(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
}

// LLMRequest is a single-turn prompt with an optional system instruction.
// A nil Temperature leaves the backend default in place.
type LLMRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature *float64
}

// LLMResponse is the generated text plus backend accounting.
type LLMResponse struct {
	Text       string
	Model      string
	StopReason string
	Usage      Usage
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Float returns a pointer to v, for LLMRequest.Temperature.
func Float(v float64) *float64 { return &v }
