// Package report assembles and delivers the closing report for a concluded
// session. Delivery is fire-and-forget: the conversational path never waits
// on it and its failure is never caller-visible.
package report

import (
	"time"

	"github.com/lurebox/lurebox/internal/intel"
	"github.com/lurebox/lurebox/internal/session"
)

// FinalReport is the document posted to the configured callback endpoint
// once per session.
type FinalReport struct {
	SessionID                 string       `json:"sessionId"`
	ScamDetected              bool         `json:"scamDetected"`
	TotalMessagesExchanged    int          `json:"totalMessagesExchanged"`
	EngagementDurationSeconds int64        `json:"engagementDurationSeconds"`
	ExtractedIntelligence     intel.Bundle `json:"extractedIntelligence"`
	AgentNotes                string       `json:"agentNotes"`
}

// job carries a snapshot of the session at close time so the worker never
// reads mutable state after the turn returns.
type job struct {
	Session session.Session
	Reason  string
}

// NewReport builds the payload skeleton from a session snapshot. The
// suspicious-keyword list and behavioural notes are filled in by the worker
// after summarization.
func NewReport(s *session.Session, reason string) FinalReport {
	return FinalReport{
		SessionID:                 s.ID,
		ScamDetected:              s.ScamDetected,
		TotalMessagesExchanged:    len(s.History),
		EngagementDurationSeconds: int64(time.Now().UTC().Sub(s.CreatedAt).Seconds()),
		ExtractedIntelligence:     s.Intelligence,
		AgentNotes:                reason,
	}
}
