package jobs

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/docsage-ai/docsage/internal/domain"
	openaiclient "github.com/docsage-ai/docsage/internal/openai"
)

const (
	// summaryBatchSize caps conversations summarized per poll
	summaryBatchSize = 10
	// summaryHistoryLimit caps turns fed into one summary
	summaryHistoryLimit = 30
)

// SummaryRepository defines the interface for summary persistence
type SummaryRepository interface {
	ListNeedingSummary(ctx context.Context, minMessages, limit int) ([]*domain.Conversation, error)
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error)
	UpdateSummary(ctx context.Context, conversationID, summary string) error
}

// SummaryCompleter defines the interface for generating summary text
type SummaryCompleter interface {
	Complete(ctx context.Context, p openaiclient.ChatParams) (string, error)
}

// SummaryWorker condenses long active conversations into rolling summaries
// so later prompts stay small without losing earlier context.
type SummaryWorker struct {
	repo        SummaryRepository
	completer   SummaryCompleter
	model       string
	minMessages int
}

// NewSummaryWorker creates a new SummaryWorker instance
func NewSummaryWorker(repo SummaryRepository, completer SummaryCompleter, model string, minMessages int) *SummaryWorker {
	return &SummaryWorker{
		repo:        repo,
		completer:   completer,
		model:       model,
		minMessages: minMessages,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *SummaryWorker) ProcessJobs(ctx context.Context) error {
	convs, err := w.repo.ListNeedingSummary(ctx, w.minMessages, summaryBatchSize)
	if err != nil {
		return fmt.Errorf("failed to list conversations needing summary: %w", err)
	}

	for _, conv := range convs {
		if err := w.summarize(ctx, conv); err != nil {
			log.Printf("Summary failed for conversation %s: %v", conv.ID, err)
		}
	}
	return nil
}

func (w *SummaryWorker) summarize(ctx context.Context, conv *domain.Conversation) error {
	msgs, err := w.repo.RecentMessages(ctx, conv.ID, summaryHistoryLimit)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if len(msgs) < w.minMessages {
		return nil
	}

	summary, err := w.completer.Complete(ctx, openaiclient.ChatParams{
		Model: w.model,
		Messages: []openaiclient.ChatMessage{
			{Role: "system", Content: "Summarize the following conversation in a short paragraph. Keep concrete facts, decisions and open questions; drop pleasantries."},
			{Role: "user", Content: buildTranscript(conv.Summary, msgs)},
		},
		Temperature: 0.2,
		MaxTokens:   300,
	})
	if err != nil {
		return fmt.Errorf("generate summary: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil
	}

	if err := w.repo.UpdateSummary(ctx, conv.ID, summary); err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	return nil
}

// buildTranscript renders turns chronologically, with the prior summary
// leading so rolling updates do not forget older context.
func buildTranscript(priorSummary string, msgs []*domain.Message) string {
	var b strings.Builder
	if s := strings.TrimSpace(priorSummary); s != "" {
		b.WriteString("Earlier summary: ")
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%s: %s\n", msgs[i].Role, msgs[i].Content)
	}
	return b.String()
}
