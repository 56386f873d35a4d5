package advisory

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiClassifier asks a Gemini model through the GenerateContent API.
type GeminiClassifier struct {
	client *genai.Client
	config BackendConfig
}

// NewGeminiClassifier creates a backend from config.
func NewGeminiClassifier(ctx context.Context, config BackendConfig) (*GeminiClassifier, error) {
	config = config.withDefaults(ProviderGemini)
	if err := config.Validate(); err != nil {
		return nil, err
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiClassifier{client: client, config: config}, nil
}

// Advise implements Classifier.
func (c *GeminiClassifier) Advise(ctx context.Context, req Request) (*Recommendation, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, genai.Text(UserPrompt(req)), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt(), genai.RoleUser),
		Temperature:       genai.Ptr(float32(c.config.Temperature)),
		MaxOutputTokens:   int32(c.config.MaxTokens),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini advise: %w", err)
	}
	return ParseRecommendation(resp.Text())
}
