package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

func newClient(apiKey, baseURL string) openai.Client {
	if baseURL != "" {
		return openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
		)
	}
	return openai.NewClient(
		option.WithAPIKey(apiKey),
	)
}

type OpenAIGenerator struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

func NewOpenAIGenerator(opts OpenAIOptions) *OpenAIGenerator {
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	return &OpenAIGenerator{
		client:      newClient(opts.APIKey, opts.BaseURL),
		model:       opts.Model,
		maxTokens:   maxTokens,
		temperature: opts.Temperature,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, messages []Message) (Completion, error) {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			params = append(params, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			params = append(params, openai.AssistantMessage(msg.Content))
		default:
			params = append(params, openai.UserMessage(msg.Content))
		}
	}

	response, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       g.model,
		Messages:    params,
		Temperature: openai.Float(g.temperature),
		MaxTokens:   openai.Int(g.maxTokens),
	})
	if err != nil {
		return Completion{}, fmt.Errorf("failed to get AI response: %w", err)
	}
	if len(response.Choices) == 0 {
		return Completion{}, fmt.Errorf("no response from AI")
	}

	return Completion{
		Text:       response.Choices[0].Message.Content,
		TokensUsed: int(response.Usage.TotalTokens),
	}, nil
}

type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
}

func NewOpenAIEmbedder(apiKey, baseURL, model string, dimension int) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client:    newClient(apiKey, baseURL),
		model:     model,
		dimension: dimension,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	response, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(response.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}

	raw := response.Data[0].Embedding
	vector := make([]float32, len(raw))
	for i, v := range raw {
		vector[i] = float32(v)
	}
	if len(vector) != e.dimension {
		return nil, fmt.Errorf("embedding model %s returned %d dimensions, expected %d", e.model, len(vector), e.dimension)
	}
	return vector, nil
}

func (e *OpenAIEmbedder) Model() string {
	return e.model
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}
