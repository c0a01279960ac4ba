package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/docsage-ai/docsage/internal/gemini"
	openaiclient "github.com/docsage-ai/docsage/internal/openai"
)

// ChatClientInterface streams chunk-grounded completions.
type ChatClientInterface interface {
	StreamChat(ctx context.Context, p openaiclient.ChatParams, onToken func(string) error) (string, error)
}

// FullDocStreamerInterface streams completions grounded in whole documents.
type FullDocStreamerInterface interface {
	StreamGenerate(ctx context.Context, p gemini.GenerateParams, onToken func(string) error) (string, error)
}

// GenerationStreamer drives both generation paths and owns the shaping of
// retrieved chunks into a bounded context block.
type GenerationStreamer struct {
	chat    ChatClientInterface
	fullDoc FullDocStreamerInterface
}

// NewGenerationStreamer creates a new GenerationStreamer instance
func NewGenerationStreamer(chat ChatClientInterface, fullDoc FullDocStreamerInterface) *GenerationStreamer {
	return &GenerationStreamer{chat: chat, fullDoc: fullDoc}
}

// StreamChunkMode generates an answer from retrieved passages, forwarding
// tokens as they arrive and returning the full answer text.
func (g *GenerationStreamer) StreamChunkMode(ctx context.Context, cfg *domain.AgentConfig, systemPrompt string, history []PromptMessage, chunkContext, query string, onToken func(string) error) (string, error) {
	messages := make([]openaiclient.ChatMessage, 0, len(history)+3)
	messages = append(messages, openaiclient.ChatMessage{Role: "system", Content: systemPrompt})
	for _, h := range history {
		role := h.Role
		if role != "user" && role != "assistant" {
			role = "user"
		}
		messages = append(messages, openaiclient.ChatMessage{Role: role, Content: h.Content})
	}
	if chunkContext != "" {
		messages = append(messages, openaiclient.ChatMessage{
			Role:    "user",
			Content: "Relevant source passages:\n\n" + chunkContext,
		})
	}
	messages = append(messages, openaiclient.ChatMessage{Role: "user", Content: query})

	return g.chat.StreamChat(ctx, openaiclient.ChatParams{
		Model:       cfg.ChunkModel,
		Messages:    messages,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}, onToken)
}

// StreamFullDoc generates an answer grounded in whole documents, via a
// context cache when one is available and inline file references otherwise.
func (g *GenerationStreamer) StreamFullDoc(ctx context.Context, cfg *domain.AgentConfig, cc *CacheContext, systemPrompt string, history []PromptMessage, query string, onToken func(string) error) (string, error) {
	turns := make([]gemini.Turn, 0, len(history))
	for _, h := range history {
		role := "user"
		if h.Role == "assistant" {
			role = "model"
		}
		turns = append(turns, gemini.Turn{Role: role, Text: h.Content})
	}

	params := gemini.GenerateParams{
		Model:       cfg.FullDocModel,
		History:     turns,
		Prompt:      query,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
	if cc.Handle != "" {
		params.CacheHandle = cc.Handle
	} else {
		params.Files = cc.Files
		params.SystemPrompt = systemPrompt
	}

	return g.fullDoc.StreamGenerate(ctx, params, onToken)
}

// FormatChunkContext renders chunks grouped by layer in priority order,
// most relevant layers first. Once adding a chunk would exceed maxChars
// the remainder is dropped whole; chunks are never split mid-text.
func FormatChunkContext(chunks []*domain.Chunk, maxChars int) string {
	byLayer := make(map[domain.Layer][]*domain.Chunk)
	for _, c := range chunks {
		byLayer[c.Layer] = append(byLayer[c.Layer], c)
	}

	var b strings.Builder
	for _, layer := range domain.LayerPriority {
		section := byLayer[layer]
		if len(section) == 0 {
			continue
		}
		header := fmt.Sprintf("## %s sources\n", layer)
		wroteHeader := false
		for _, c := range section {
			block := formatChunk(c)
			needed := len(block)
			if !wroteHeader {
				needed += len(header) + 1
			}
			if maxChars > 0 && b.Len()+needed > maxChars {
				return strings.TrimRight(b.String(), "\n")
			}
			if !wroteHeader {
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString(header)
				wroteHeader = true
			}
			b.WriteString(block)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatChunk(c *domain.Chunk) string {
	label := c.FileName
	if label == "" {
		label = c.SourceType
	}
	if c.FileID == "" {
		return fmt.Sprintf("[%s]\n%s\n\n", label, c.Content)
	}
	return fmt.Sprintf("[%s | doc=%s]\n%s\n\n", label, c.FileID, c.Content)
}
