package advisory

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClassifier asks a Claude model through the Messages API.
type AnthropicClassifier struct {
	client *anthropic.Client
	config BackendConfig
}

// NewAnthropicClassifier creates a backend from config.
func NewAnthropicClassifier(config BackendConfig) (*AnthropicClassifier, error) {
	config = config.withDefaults(ProviderAnthropic)
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := anthropic.NewClient(opts...)
	return &AnthropicClassifier{client: &client, config: config}, nil
}

// Advise implements Classifier.
func (c *AnthropicClassifier) Advise(ctx context.Context, req Request) (*Recommendation, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.config.Model),
		MaxTokens:   int64(c.config.MaxTokens),
		Temperature: anthropic.Float(c.config.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: SystemPrompt()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(UserPrompt(req))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic advise: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(b.Text)
		}
	}
	return ParseRecommendation(text.String())
}
