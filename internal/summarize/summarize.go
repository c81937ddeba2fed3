// Package summarize derives the behavioural summary and suspicious-keyword
// list that accompany a final report. Both are best-effort oracle calls and
// degrade to empty output rather than fail the report.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lurebox/lurebox/internal/oracle"
	"github.com/lurebox/lurebox/internal/session"
	"go.uber.org/zap"
)

const maxKeywords = 10

// Summarizer condenses a conversation for reporting.
type Summarizer struct {
	client oracle.ChatClient
	model  string
	logger *zap.Logger
}

// NewSummarizer creates a new summarizer backed by the given chat client
func NewSummarizer(client oracle.ChatClient, model string, logger *zap.Logger) *Summarizer {
	return &Summarizer{client: client, model: model, logger: logger}
}

// Keywords asks the oracle for up to ten suspicious words or short phrases
// from the scammer's side of the conversation. A response that is not a
// strict JSON string array yields an empty list.
func (s *Summarizer) Keywords(ctx context.Context, history []session.Message) []string {
	transcript := renderTranscript(history, "scammer")
	if transcript == "" {
		return nil
	}

	resp, err := s.client.Chat(ctx, oracle.ChatRequest{
		Model: s.model,
		Messages: []oracle.Message{
			{Role: "system", Content: "You extract indicators from fraud conversations. Reply with ONLY a JSON array of at most 10 suspicious words or short phrases taken verbatim from the text. No prose, no code fences."},
			{Role: "user", Content: transcript},
		},
		Temperature: 0,
	})
	if err != nil {
		s.logger.Warn("Keyword extraction failed", zap.Error(err))
		return nil
	}

	var keywords []string
	content := strings.TrimSpace(resp.First().Content)
	if err := json.Unmarshal([]byte(content), &keywords); err != nil {
		s.logger.Warn("Keyword extraction returned non-JSON output", zap.String("content", content))
		return nil
	}
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	return keywords
}

// Behaviour asks the oracle for a one-sentence description of the scammer's
// approach. Returns an empty string on any failure.
func (s *Summarizer) Behaviour(ctx context.Context, history []session.Message) string {
	transcript := renderTranscript(history, "")
	if transcript == "" {
		return ""
	}

	resp, err := s.client.Chat(ctx, oracle.ChatRequest{
		Model: s.model,
		Messages: []oracle.Message{
			{Role: "system", Content: "Describe the scammer's tactic in exactly one short sentence. No preamble."},
			{Role: "user", Content: transcript},
		},
		Temperature: 0,
	})
	if err != nil {
		s.logger.Warn("Behaviour summary failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(resp.First().Content)
}

// renderTranscript flattens the message log into "sender: text" lines,
// optionally restricted to one sender.
func renderTranscript(history []session.Message, onlySender string) string {
	var b strings.Builder
	for _, m := range history {
		if onlySender != "" && m.Sender != onlySender {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Sender, m.Text)
	}
	return strings.TrimSpace(b.String())
}
