package ai

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultMaxTokens   = 4000
	defaultTemperature = 0.7
)

// AnthropicGenerator calls the Anthropic messages API with a single user turn
// and fixed sampling parameters.
type AnthropicGenerator struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewAnthropicGenerator builds an Anthropic-backed TextGenerator. Zero
// maxTokens/temperature fall back to the generation defaults (4000 tokens,
// temperature 0.7).
func NewAnthropicGenerator(apiKey, model string, maxTokens int, temperature float64) (*AnthropicGenerator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("anthropic generation model required")
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	return &AnthropicGenerator{
		client:      anthropic.NewClient(aoption.WithAPIKey(apiKey)),
		model:       strings.TrimSpace(model),
		maxTokens:   maxTokens,
		temperature: temperature,
	}, nil
}

// GenerateText implements TextGenerator.
func (g *AnthropicGenerator) GenerateText(ctx context.Context, userPrompt string) (string, error) {
	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   int64(g.maxTokens),
		Temperature: anthropic.Float(g.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic request: %w", err)
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("empty response from anthropic api")
	}
	return out, nil
}
