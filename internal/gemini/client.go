// Package gemini wraps the Gemini API for full-document generation: file
// uploads, server-side context caches, and streaming content generation.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"google.golang.org/genai"
)

var (
	// ErrNoAPIKey is returned when the Gemini API key is not set
	ErrNoAPIKey = errors.New("gemini api key not set")
	// ErrFileNotActive is returned when an uploaded file never becomes usable
	ErrFileNotActive = errors.New("uploaded file did not become active")
)

const (
	fileActivePollInterval = 500 * time.Millisecond
	fileActiveMaxPolls     = 20
)

// FileRef points at a provider-side file usable in generation content.
type FileRef struct {
	URI      string
	MimeType string
}

// UploadedFile is the provider-side record of an uploaded source document.
type UploadedFile struct {
	Name      string
	URI       string
	MimeType  string
	ExpiresAt time.Time
}

// CacheInfo describes a created context cache.
type CacheInfo struct {
	Handle    string
	ExpiresAt time.Time
}

// Turn is one prior conversation exchange included in a generation request.
type Turn struct {
	Role string // "user" or "model"
	Text string
}

// GenerateParams shapes a streaming generation request. Exactly one of
// CacheHandle or Files provides the document context; SystemPrompt is only
// sent when no cache is used (the cache already contains it).
type GenerateParams struct {
	Model        string
	CacheHandle  string
	Files        []FileRef
	SystemPrompt string
	History      []Turn
	Prompt       string
	Temperature  float32
	MaxTokens    int
}

// Client wraps the genai SDK client.
type Client struct {
	c *genai.Client
}

// New creates a Gemini client against the public Gemini API backend.
func New(ctx context.Context, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{c: c}, nil
}

// UploadFile pushes a source document into the provider file store and waits
// for it to become active.
func (c *Client) UploadFile(ctx context.Context, r io.Reader, mimeType, displayName string) (*UploadedFile, error) {
	file, err := c.c.Files.Upload(ctx, r, &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, fmt.Errorf("file upload failed: %w", err)
	}

	for i := 0; file.State == genai.FileStateProcessing; i++ {
		if i >= fileActiveMaxPolls {
			return nil, ErrFileNotActive
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(fileActivePollInterval):
		}
		file, err = c.c.Files.Get(ctx, file.Name, nil)
		if err != nil {
			return nil, fmt.Errorf("file state poll failed: %w", err)
		}
	}
	if file.State != genai.FileStateActive {
		return nil, fmt.Errorf("%w: state %s", ErrFileNotActive, file.State)
	}

	return &UploadedFile{
		Name:      file.Name,
		URI:       file.URI,
		MimeType:  mimeType,
		ExpiresAt: file.ExpirationTime,
	}, nil
}

// CreateCache builds a server-side context cache holding the system prompt
// followed by the file references, with the given TTL.
func (c *Client) CreateCache(ctx context.Context, model, systemPrompt string, files []FileRef, ttl time.Duration) (*CacheInfo, error) {
	parts := make([]*genai.Part, 0, len(files))
	for _, f := range files {
		parts = append(parts, genai.NewPartFromURI(f.URI, f.MimeType))
	}

	cached, err := c.c.Caches.Create(ctx, model, &genai.CreateCachedContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Contents:          []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		TTL:               ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("cache creation failed: %w", err)
	}

	return &CacheInfo{Handle: cached.Name, ExpiresAt: cached.ExpireTime}, nil
}

// historyRole maps a stored message role onto the provider's role set.
// Assistant turns become the model role; everything else is the user.
func historyRole(role string) genai.Role {
	if role == "model" || role == "assistant" {
		return genai.RoleModel
	}
	return genai.Role(genai.RoleUser)
}

// StreamGenerate drives a streaming generation, invoking onToken per fragment
// and returning the accumulated text. Empty stream chunks are skipped rather
// than treated as errors.
func (c *Client) StreamGenerate(ctx context.Context, p GenerateParams, onToken func(string) error) (string, error) {
	contents := make([]*genai.Content, 0, len(p.History)+2)
	for _, turn := range p.History {
		contents = append(contents, genai.NewContentFromText(turn.Text, historyRole(turn.Role)))
	}

	userParts := []*genai.Part{genai.NewPartFromText(p.Prompt)}
	if p.CacheHandle == "" {
		// No cache: inline the file references with the question.
		for _, f := range p.Files {
			userParts = append(userParts, genai.NewPartFromURI(f.URI, f.MimeType))
		}
	}
	contents = append(contents, genai.NewContentFromParts(userParts, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.Temperature),
		MaxOutputTokens: int32(p.MaxTokens),
	}
	if p.CacheHandle != "" {
		cfg.CachedContent = p.CacheHandle
	} else if p.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(p.SystemPrompt, genai.RoleUser)
	}

	var accumulated []byte
	for resp, err := range c.c.Models.GenerateContentStream(ctx, p.Model, contents, cfg) {
		if err != nil {
			if len(accumulated) > 0 {
				log.Printf("gemini: stream ended abnormally after %d bytes: %v", len(accumulated), err)
				break
			}
			return "", fmt.Errorf("generation stream failed: %w", err)
		}
		text := resp.Text()
		if text == "" {
			continue
		}
		accumulated = append(accumulated, text...)
		if onToken != nil {
			if err := onToken(text); err != nil {
				return string(accumulated), err
			}
		}
	}

	return string(accumulated), nil
}
