// Package generation wraps the upstream natural-language generation service.
// The engine treats it as an external collaborator: any failure propagates as
// a fatal request error, with no retry and no cached fallback answer.
package generation

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/miragesec/mirage/pkg/config"
)

// Generator produces the clean answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OpenAIGenerator calls an OpenAI-compatible chat-completions endpoint.
// Groq is the default provider; anything speaking the same wire format works
// by pointing MIRAGE_LLM_BASE_URL elsewhere.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	systemRole  string
	temperature float32
	maxTokens   int
	topP        float32
}

// NewOpenAIGenerator builds a generator from gateway config.
func NewOpenAIGenerator(cfg *config.Config) (*OpenAIGenerator, error) {
	if cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("generation API key not configured (set MIRAGE_LLM_API_KEY)")
	}

	clientCfg := openai.DefaultConfig(cfg.LLMAPIKey)
	if cfg.LLMBaseURL != "" {
		clientCfg.BaseURL = cfg.LLMBaseURL
	}

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.LLMModel,
		systemRole:  cfg.LLMSystemRole,
		temperature: float32(cfg.LLMTemperature),
		maxTokens:   cfg.LLMMaxTokens,
		topP:        float32(cfg.LLMTopP),
	}, nil
}

// Generate sends the raw prompt to the upstream model and returns the
// trimmed completion. Context cancellation abandons the in-flight call.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: g.systemRole},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		TopP:        g.topP,
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generation call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generation returned no choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
