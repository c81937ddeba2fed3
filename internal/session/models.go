// Package session holds the persistent per-conversation state and the
// Redis-backed store shared by all service replicas.
package session

import (
	"time"

	"github.com/lurebox/lurebox/internal/intel"
)

// schemaVersion is bumped whenever a field is added to Session. Records
// stored by older builds carry a lower version and are filled with defaults
// at load time.
const schemaVersion = 1

// Lifecycle status values. A session is closed exactly once and never
// reopened.
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// Conversational phases. Promotion is monotonic along this order with
// CLOSED reachable from anywhere.
const (
	PhaseStart          = "START"
	PhaseConfused       = "CONFUSED"
	PhaseTrustBuilding  = "TRUST_BUILDING"
	PhaseInfoExtraction = "INFO_EXTRACTION"
	PhaseStalling       = "STALLING"
	PhaseClosed         = "CLOSED"
)

// phaseRank orders the promotable phases. CLOSED is terminal and handled
// separately.
var phaseRank = map[string]int{
	PhaseStart:          0,
	PhaseConfused:       1,
	PhaseTrustBuilding:  2,
	PhaseInfoExtraction: 3,
	PhaseStalling:       4,
}

// Message is one entry in the bounded conversation log.
type Message struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the full persisted state for one conversation identifier.
type Session struct {
	Version           int          `json:"version"`
	ID                string       `json:"id"`
	CreatedAt         time.Time    `json:"createdAt"`
	LastActiveAt      time.Time    `json:"lastActiveAt"`
	Status            string       `json:"status"`
	ScamDetected      bool         `json:"scamDetected"`
	AgentTurns        int          `json:"agentTurns"`
	History           []Message    `json:"history"`
	Phase             string       `json:"phase"`
	Summary           string       `json:"summary"`
	Language          string       `json:"language"`
	Intelligence      intel.Bundle `json:"intelligence"`
	FinalCallbackSent bool         `json:"finalCallbackSent"`
	LastTurnNotes     string       `json:"lastTurnNotes"`
}

// NewSession returns a fresh session in its initial state.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		Version:      schemaVersion,
		ID:           id,
		CreatedAt:    now,
		LastActiveAt: now,
		Status:       StatusActive,
		Phase:        PhaseStart,
		Language:     "English",
		History:      []Message{},
	}
}

// migrate fills defaults for fields absent in records written by older
// builds, so a rolling upgrade never fails a deserialization.
func (s *Session) migrate() {
	if s.Status == "" {
		s.Status = StatusActive
	}
	if s.Phase == "" {
		s.Phase = PhaseStart
	}
	if s.Language == "" {
		s.Language = "English"
	}
	if s.History == nil {
		s.History = []Message{}
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.LastActiveAt.IsZero() {
		s.LastActiveAt = s.CreatedAt
	}
	s.Version = schemaVersion
}

// IsClosed reports whether the session has reached its terminal status.
func (s *Session) IsClosed() bool {
	return s.Status == StatusClosed
}

// Close marks the session terminal. Closing an already closed session is a
// no-op.
func (s *Session) Close() {
	if s.Status == StatusClosed {
		return
	}
	s.Status = StatusClosed
	s.Phase = PhaseClosed
}

// Promote advances the phase if target ranks higher than the current phase.
// Regressions are ignored so no input sequence ever moves a session
// backwards. Closed sessions are never promoted.
func (s *Session) Promote(target string) {
	if s.Status == StatusClosed || s.Phase == PhaseClosed {
		return
	}
	current, ok := phaseRank[s.Phase]
	if !ok {
		return
	}
	next, ok := phaseRank[target]
	if !ok {
		return
	}
	if next > current {
		s.Phase = target
	}
}

// AppendMessage records a message in the conversation log, trimming the
// oldest entries beyond cap. A cap of zero or less means unbounded.
func (s *Session) AppendMessage(sender, text string, cap int) {
	s.History = append(s.History, Message{
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
	if cap > 0 && len(s.History) > cap {
		s.History = s.History[len(s.History)-cap:]
	}
}

// HistoryTail returns the most recent n messages.
func (s *Session) HistoryTail(n int) []Message {
	if n <= 0 || len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}
