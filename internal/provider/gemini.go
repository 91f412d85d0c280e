package provider

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient serves the Gemini and Gemma families through the Gemini API.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates the genai-backed client.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

// Romance and affection routinely trip medium-severity filters, so all
// categories run at BLOCK_ONLY_HIGH.
func safetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
		})
	}
	return settings
}

func (g *GeminiClient) generateConfig(params GenerateParams) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:    ptr(float32(params.Temperature)),
		SafetySettings: safetySettings(),
	}
	if params.TopP > 0 {
		config.TopP = ptr(float32(params.TopP))
	}
	if params.TopK > 0 {
		config.TopK = ptr(float32(params.TopK))
	}
	if params.MaxTokens > 0 {
		config.MaxOutputTokens = int32(params.MaxTokens)
	}
	if params.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(params.SystemInstruction, "system")
	}
	return config
}

// Generate runs a single-shot call.
func (g *GeminiClient) Generate(ctx context.Context, params GenerateParams) (string, error) {
	if g == nil || g.client == nil {
		return "", fmt.Errorf("gemini client not configured")
	}
	if strings.TrimSpace(params.Prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	resp, err := g.client.Models.GenerateContent(ctx, params.Model, genai.Text(params.Prompt), g.generateConfig(params))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("empty generation response")
	}
	return text, nil
}

// GenerateStream emits chunks as they arrive. An emit error stops the stream
// and propagates unchanged.
func (g *GeminiClient) GenerateStream(ctx context.Context, params GenerateParams, emit func(Chunk) error) error {
	if g == nil || g.client == nil {
		return fmt.Errorf("gemini client not configured")
	}

	for resp, err := range g.client.Models.GenerateContentStream(ctx, params.Model, genai.Text(params.Prompt), g.generateConfig(params)) {
		if err != nil {
			return fmt.Errorf("generate content stream: %w", err)
		}
		if text := responseText(resp); text != "" {
			if err := emit(Chunk{Text: text}); err != nil {
				return err
			}
		}
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func ptr[T any](v T) *T {
	return &v
}
