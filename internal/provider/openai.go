package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIClient serves any OpenAI-compatible endpoint (xAI, OpenRouter, ...),
// selected via base URL.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates an OpenAI-compatible client. baseURL may be empty
// for the default endpoint.
func NewOpenAIClient(apiKey, baseURL string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIClient{client: &client}, nil
}

func (o *OpenAIClient) chatParams(params GenerateParams) openai.ChatCompletionNewParams {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if params.SystemInstruction != "" {
		messages = append(messages, openai.SystemMessage(params.SystemInstruction))
	}
	messages = append(messages, openai.UserMessage(params.Prompt))

	p := openai.ChatCompletionNewParams{
		Model:       params.Model,
		Messages:    messages,
		Temperature: openai.Float(params.Temperature),
	}
	if params.TopP > 0 {
		p.TopP = openai.Float(params.TopP)
	}
	if params.MaxTokens > 0 {
		p.MaxTokens = openai.Int(int64(params.MaxTokens))
	}
	return p
}

// Generate runs a single-shot chat completion.
func (o *OpenAIClient) Generate(ctx context.Context, params GenerateParams) (string, error) {
	if o == nil || o.client == nil {
		return "", fmt.Errorf("openai client not configured")
	}

	resp, err := o.client.Chat.Completions.New(ctx, o.chatParams(params))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty chat completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream emits delta chunks as they arrive.
func (o *OpenAIClient) GenerateStream(ctx context.Context, params GenerateParams, emit func(Chunk) error) error {
	if o == nil || o.client == nil {
		return fmt.Errorf("openai client not configured")
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, o.chatParams(params))
	defer func() {
		_ = stream.Close()
	}()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if err := emit(Chunk{Text: delta}); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("chat completion stream: %w", err)
	}
	return nil
}
