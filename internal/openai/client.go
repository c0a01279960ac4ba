// Package openai wraps the OpenAI API for query embeddings and chunk-mode
// chat generation.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for query embeddings
	DefaultEmbeddingModel = openai.AdaEmbeddingV2
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from ada-002
	DefaultEmbeddingDimensions = 1536
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when an embedding has unexpected dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoAPIKey is returned when the OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
	// ErrNoChoices is returned when a completion contains no choices
	ErrNoChoices = errors.New("completion returned no choices")
)

// ChatMessage is one turn handed to the chat API.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatParams shapes a chat completion request.
type ChatParams struct {
	Model       string
	Messages    []ChatMessage
	Temperature float32
	MaxTokens   int
}

// API defines the raw provider surface, split out so tests can fake it.
type API interface {
	CreateEmbeddings(ctx context.Context, text string, model string) ([]float32, error)
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error)
}

// ChatStream is the subset of the provider's stream object the client needs.
type ChatStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// Client wraps the OpenAI API client
type Client struct {
	api        API
	dimensions int
}

type sdkAdapter struct {
	client *openai.Client
}

func (a *sdkAdapter) CreateEmbeddings(ctx context.Context, text string, model string) ([]float32, error) {
	if model == "" {
		model = string(DefaultEmbeddingModel)
	}
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}
	return resp.Data[0].Embedding, nil
}

func (a *sdkAdapter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return a.client.CreateChatCompletion(ctx, req)
}

func (a *sdkAdapter) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error) {
	return a.client.CreateChatCompletionStream(ctx, req)
}

// NewClient creates a new OpenAI client with default embedding dimensions.
func NewClient(apiKey string) *Client {
	return &Client{
		api:        &sdkAdapter{client: openai.NewClient(apiKey)},
		dimensions: DefaultEmbeddingDimensions,
	}
}

// NewClientWithAPI creates a client around an explicit API implementation.
func NewClientWithAPI(api API, dimensions int) *Client {
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return &Client{api: api, dimensions: dimensions}
}

// NewClientFromEnv creates a new OpenAI client using OPENAI_API_KEY
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

// GenerateEmbedding generates an embedding for the given text.
func (c *Client) GenerateEmbedding(ctx context.Context, text string, model string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	embedding, err := c.api.CreateEmbeddings(ctx, text, model)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	if len(embedding) != c.dimensions {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrWrongDimensions, c.dimensions, len(embedding))
	}

	return embedding, nil
}

// Complete runs a non-streaming chat completion and returns the first choice.
// Used by the conversation summary worker.
func (c *Client) Complete(ctx context.Context, p ChatParams) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, buildRequest(p, false))
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamChat runs a streaming chat completion, invoking onToken for each
// text fragment as it arrives, and returns the accumulated text.
//
// Malformed or partial stream payloads never abort a stream that has already
// produced output: the glitch is logged and the accumulated text returned.
func (c *Client) StreamChat(ctx context.Context, p ChatParams, onToken func(string) error) (string, error) {
	stream, err := c.api.CreateChatCompletionStream(ctx, buildRequest(p, true))
	if err != nil {
		return "", fmt.Errorf("failed to open chat stream: %w", err)
	}
	defer stream.Close()

	var accumulated []byte
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(accumulated) > 0 {
				log.Printf("openai: stream ended abnormally after %d bytes: %v", len(accumulated), err)
				break
			}
			return "", fmt.Errorf("chat stream failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		accumulated = append(accumulated, delta...)
		if onToken != nil {
			if err := onToken(delta); err != nil {
				return string(accumulated), err
			}
		}
	}

	return string(accumulated), nil
}

func buildRequest(p ChatParams, stream bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       p.Model,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Stream:      stream,
	}
	for _, m := range p.Messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return req
}
