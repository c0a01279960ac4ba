package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/docsage-ai/docsage/internal/domain"
)

// PromptMessage is one prior turn shaped for a generation request.
type PromptMessage struct {
	Role    string
	Content string
}

// placeholderPattern matches unresolved template placeholders left in
// stored base prompts, e.g. {{company_name}}.
var placeholderPattern = regexp.MustCompile(`\{\{[^{}]*\}\}`)

const defaultBasePrompt = `You are a document assistant. Answer questions using only the provided sources. When the sources do not contain the answer, say so instead of guessing.`

var intentInstructions = map[string]string{
	"synthesis":      "Synthesize across all relevant sources into one coherent answer rather than summarizing each source separately.",
	"factual":        "Answer concisely with the specific fact requested. Do not pad the answer.",
	"comparison":     "Compare the relevant sources point by point and make differences explicit.",
	"citation":       "Quote the relevant passages verbatim and attribute each quote to its source document.",
	"conversational": "Keep the tone conversational and reference earlier turns where relevant.",
}

// PromptInput collects everything the system prompt is built from.
type PromptInput struct {
	Config    *domain.AgentConfig
	ProjectID string
	Intent    string
	Files     []*domain.FileInfo
}

// BuildSystemPrompt assembles the system prompt: sanitized base prompt,
// project scoping, the candidate file catalog with the citation contract,
// and an intent-specific instruction.
func BuildSystemPrompt(in PromptInput) string {
	base := strings.TrimSpace(in.Config.BasePrompt)
	if base == "" {
		base = defaultBasePrompt
	}
	base = strings.TrimSpace(placeholderPattern.ReplaceAllString(base, ""))

	var b strings.Builder
	b.WriteString(base)

	if in.ProjectID != "" {
		b.WriteString("\n\nYou are answering within project ")
		b.WriteString(in.ProjectID)
		b.WriteString(". Prefer project-scoped sources when they conflict with broader ones.")
	}

	if len(in.Files) > 0 {
		b.WriteString("\n\nAvailable source documents:\n")
		for _, f := range in.Files {
			fmt.Fprintf(&b, "- %s (id: %s, %d pages, layer: %s)\n", f.Name, f.ID, f.PageCount, f.Layer)
		}
		b.WriteString("\nWhen your answer draws on a document, cite it inline as <cite doc=\"ID\" page=\"N\">claim</cite> using the id from the list above. Never cite a document that is not listed. Do not use numbered reference lists, footnotes, or a trailing sources section; inline cite tags are the only citation format.")
	}

	if instr, ok := intentInstructions[strings.ToLower(strings.TrimSpace(in.Intent))]; ok {
		b.WriteString("\n\n")
		b.WriteString(instr)
	}

	return b.String()
}

// BuildHistory shapes prior turns for a generation request, oldest first.
// The conversation summary, when present, leads as condensed context; the
// stored first message covers conversations not yet summarized.
func BuildHistory(conv *domain.Conversation, recent []*domain.Message, limit int) []PromptMessage {
	var history []PromptMessage
	if conv != nil {
		if s := strings.TrimSpace(conv.Summary); s != "" {
			history = append(history, PromptMessage{
				Role:    "user",
				Content: "Conversation so far, summarized: " + s,
			})
		} else if f := strings.TrimSpace(conv.FirstMessage); f != "" && !containsContent(recent, f) {
			history = append(history, PromptMessage{Role: "user", Content: f})
		}
	}

	if limit > 0 && len(recent) > limit {
		recent = recent[:limit]
	}
	// recent arrives most recent first; the prompt wants chronological order.
	for i := len(recent) - 1; i >= 0; i-- {
		msg := recent[i]
		history = append(history, PromptMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return history
}

func containsContent(msgs []*domain.Message, content string) bool {
	for _, m := range msgs {
		if m.Content == content {
			return true
		}
	}
	return false
}
