// Package langchain adapts langchaingo models to warden's provider and
// embedder interfaces, covering Groq (OpenAI-compatible) and Ollama.
package langchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/linnemanlabs/warden/internal/triage"
)

const (
	GroqBaseURL      = "https://api.groq.com/openai/v1"
	DefaultGroqModel = "llama-3.3-70b-versatile"

	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llama3.1"
)

// Provider implements triage.Provider on any langchaingo chat model.
type Provider struct {
	model llms.Model
	name  string
}

// NewProvider wraps an existing langchaingo model. name is reported as the
// response model.
func NewProvider(model llms.Model, name string) *Provider {
	return &Provider{model: model, name: name}
}

// NewGroq returns a Provider backed by Groq's OpenAI-compatible endpoint.
func NewGroq(apiKey, model string) (*Provider, error) {
	if model == "" {
		model = DefaultGroqModel
	}
	m, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithBaseURL(GroqBaseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("groq client: %w", err)
	}
	return NewProvider(m, model), nil
}

// NewOllama returns a Provider backed by a local Ollama server.
func NewOllama(serverURL, model string) (*Provider, error) {
	if serverURL == "" {
		serverURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	m, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(serverURL))
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}
	return NewProvider(m, model), nil
}

// Send implements triage.Provider.
func (p *Provider) Send(ctx context.Context, req *triage.LLMRequest) (*triage.LLMResponse, error) {
	var msgs []llms.MessageContent
	if req.System != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	var opts []llms.CallOption
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*req.Temperature))
	}

	resp, err := p.model.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("empty response from model")
	}

	choice := resp.Choices[0]
	return &triage.LLMResponse{
		Text:       choice.Content,
		Model:      p.name,
		StopReason: choice.StopReason,
		Usage: triage.Usage{
			InputTokens:  tokenCount(choice.GenerationInfo, "PromptTokens"),
			OutputTokens: tokenCount(choice.GenerationInfo, "CompletionTokens"),
		},
	}, nil
}

func tokenCount(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
