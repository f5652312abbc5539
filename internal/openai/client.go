// Package openai adapts the OpenAI API to the engine's Embedder and
// Generator contracts.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/cloo-solutions/obsidian/internal/embedding"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the vector size of text-embedding-3-small
	DefaultEmbeddingDimensions = 1536
	// DefaultChatModel answers queries from retrieved context.
	DefaultChatModel = openai.GPT4o

	systemPrompt = "You are a secure offline assistant. Answer strictly using the provided context. " +
		"Include numbered citations like [1], [2] referencing the source passages. " +
		"If the context does not contain relevant information, say so clearly. Be precise and professional."
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoAPIKey is returned when no OpenAI API key is configured
	ErrNoAPIKey = errors.New("OpenAI API key not set")
	// ErrEmptyCompletion is returned when the chat model returns no choices
	ErrEmptyCompletion = errors.New("completion returned no choices")
)

// API is the subset of the OpenAI API the client calls.
type API interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
	CreateChatCompletion(ctx context.Context, system, user string) (string, error)
}

// Adapter calls the OpenAI API through go-openai.
type Adapter struct {
	client         *openai.Client
	embeddingModel openai.EmbeddingModel
	chatModel      string
}

// NewAdapter builds a go-openai client for cfg. BaseURL, when set, points it
// at an OpenAI-compatible endpoint instead of api.openai.com.
func NewAdapter(cfg Config) *Adapter {
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Adapter{
		client:         openai.NewClientWithConfig(clientConfig),
		embeddingModel: embeddingModel,
		chatModel:      chatModel,
	}
}

// CreateEmbeddings calls the OpenAI API to create embeddings
func (a *Adapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.embeddingModel,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

// CreateChatCompletion sends one system and one user message.
func (a *Adapter) CreateChatCompletion(ctx context.Context, system, user string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	ChatModel           string
	// RequestsPerSecond caps calls to the API; zero means unlimited.
	RequestsPerSecond float64
}

// Client embeds text and generates answers. It implements embedding.Embedder.
type Client struct {
	api        API
	dimensions int
	limiter    *rate.Limiter
}

// NewClient creates a client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	return newClient(NewAdapter(cfg), cfg.EmbeddingDimensions, cfg.RequestsPerSecond), nil
}

func newClient(api API, dimensions int, rps float64) *Client {
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
	return &Client{
		api:        api,
		dimensions: dimensions,
		limiter:    limiter,
	}
}

// Embed implements embedding.Embedder. Empty text and vectors of the wrong
// size are EMBEDDING_ERRORs tied to the input. API and transport failures
// are EMBEDDER_UNAVAILABLE so ingestion and rebuilds stop instead of
// skipping every chunk.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, domain.EmbeddingError(ErrEmptyText)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	vec, err := c.api.CreateEmbeddings(ctx, text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.EmbedderUnavailable(fmt.Errorf("failed to create embedding: %w", err))
	}

	if len(vec) != c.dimensions {
		return nil, domain.EmbeddingError(fmt.Errorf("%w: expected %d, got %d", ErrWrongDimensions, c.dimensions, len(vec)))
	}

	return vec, nil
}

func (c *Client) Dimension() int {
	return c.dimensions
}

func (c *Client) Metric() embedding.Metric {
	return embedding.MetricCosine
}

// Generate answers query from the numbered context block.
func (c *Client) Generate(ctx context.Context, query, contextBlock string, _ []domain.Citation) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	user := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextBlock, query)
	answer, err := c.api.CreateChatCompletion(ctx, systemPrompt, user)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return answer, nil
}
