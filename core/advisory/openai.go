package advisory

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

// OpenAIClassifier asks an OpenAI model through the Responses API.
type OpenAIClassifier struct {
	client *openai.Client
	config BackendConfig
}

// NewOpenAIClassifier creates a backend from config.
func NewOpenAIClassifier(config BackendConfig) (*OpenAIClassifier, error) {
	config = config.withDefaults(ProviderOpenAI)
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

	client := openai.NewClient(opts...)
	return &OpenAIClassifier{client: &client, config: config}, nil
}

// Advise implements Classifier.
func (c *OpenAIClassifier) Advise(ctx context.Context, req Request) (*Recommendation, error) {
	params := responses.ResponseNewParams{
		Model:        shared.ResponsesModel(c.config.Model),
		Instructions: openai.String(SystemPrompt()),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(UserPrompt(req)),
		},
		MaxOutputTokens: openai.Int(int64(c.config.MaxTokens)),
	}

	result, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai advise: %w", err)
	}
	return ParseRecommendation(result.OutputText())
}
