// Package engage drives one conversational turn against the scammer: phase
// bookkeeping, the two-call oracle protocol with synchronous tool execution
// in between, and the termination rules that close a session.
package engage

import (
	"context"
	"fmt"
	"strings"

	"github.com/lurebox/lurebox/internal/gate"
	"github.com/lurebox/lurebox/internal/oracle"
	"github.com/lurebox/lurebox/internal/session"
	"go.uber.org/zap"
)

// Fixed replies used when no oracle output is available or wanted.
const (
	closedReply   = "Okay, thanks."
	fallbackReply = "Sir I am not understanding. What to do now?"
	benignReply   = "Sorry, can you explain?"
)

// Report reasons for the three termination paths.
const (
	reasonNotATarget    = "not a target"
	reasonLimitExceeded = "limit exceeded"
)

// Config bounds one turn.
type Config struct {
	Model           string
	MaxOutputTokens int
	MaxReplyChars   int
	TurnCeiling     int
	StopMinTurns    int
	HistoryTail     int
	HistoryCap      int
	Retry           oracle.RetryPolicy
}

// Event is one inbound message for a session.
type Event struct {
	SessionID string
	Sender    string
	Text      string
	Language  string
}

// Reporter receives the closing report for a concluded session. Dispatch
// must not block.
type Reporter interface {
	Dispatch(s *session.Session, reason string)
}

// Orchestrator handles inbound events. It is stateless between events; all
// conversation state lives in the session store.
type Orchestrator struct {
	client   oracle.ChatClient
	gate     gate.Classifier
	store    session.Store
	reporter Reporter
	cfg      Config
	logger   *zap.Logger
}

// NewOrchestrator creates a new turn orchestrator
func NewOrchestrator(client oracle.ChatClient, g gate.Classifier, store session.Store, reporter Reporter, cfg Config, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		client:   client,
		gate:     g,
		store:    store,
		reporter: reporter,
		cfg:      cfg,
		logger:   logger,
	}
}

// HandleEvent runs one full turn for the event and returns the user-facing
// reply. State mutations are persisted before returning, including on the
// error path.
func (o *Orchestrator) HandleEvent(ctx context.Context, event Event) (string, error) {
	s, err := o.store.GetOrCreate(ctx, event.SessionID)
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}

	// Closed sessions answer minimally: no oracle call, no extraction, no
	// state change beyond the timestamp refresh Save performs.
	if s.IsClosed() {
		if saveErr := o.store.Save(ctx, s); saveErr != nil {
			o.logger.Warn("Failed to refresh closed session", zap.String("session_id", s.ID), zap.Error(saveErr))
		}
		return closedReply, nil
	}

	firstMessage := len(s.History) == 0

	s.AppendMessage(event.Sender, event.Text, o.cfg.HistoryCap)
	if event.Language != "" {
		s.Language = event.Language
	}

	// The pre-gate is authoritative only on the opening message; later
	// messages never re-invoke it.
	if firstMessage {
		o.runGate(ctx, s, event.Text)
	}

	if !s.ScamDetected {
		// still a turn: the reply goes out and the final report should
		// account for it
		s.AgentTurns++
		s.AppendMessage("agent", benignReply, o.cfg.HistoryCap)
		o.closeAndReport(s, reasonNotATarget)
		if saveErr := o.store.Save(ctx, s); saveErr != nil {
			o.logger.Warn("Failed to save session", zap.String("session_id", s.ID), zap.Error(saveErr))
		}
		return benignReply, nil
	}

	advancePhase(s, event.Text)

	reply, err := o.runTurn(ctx, s, event.Text)

	if saveErr := o.store.Save(ctx, s); saveErr != nil {
		o.logger.Warn("Failed to save session", zap.String("session_id", s.ID), zap.Error(saveErr))
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

// runGate classifies the opening message. A gate failure engages anyway:
// losing a benign conversation costs one oracle turn, losing a scam costs
// the whole engagement.
func (o *Orchestrator) runGate(ctx context.Context, s *session.Session, text string) {
	verdict, err := o.gate.Classify(ctx, text)
	if err != nil {
		o.logger.Warn("Pre-gate classification failed, engaging anyway", zap.String("session_id", s.ID), zap.Error(err))
		s.ScamDetected = true
		return
	}
	s.ScamDetected = verdict.ScamDetected
	o.logger.Info("Pre-gate verdict",
		zap.String("session_id", s.ID),
		zap.Bool("scam_detected", verdict.ScamDetected),
		zap.String("label", verdict.Label),
		zap.Float64("confidence", verdict.Confidence))
}

// runTurn executes the two-call oracle protocol and returns the reply. An
// oracle outage never fails the turn: the caller still gets the fixed
// fallback utterance and the persona stays intact on the scammer-facing
// channel.
func (o *Orchestrator) runTurn(ctx context.Context, s *session.Session, inboundText string) (string, error) {
	prompt := buildPrompt(s, o.cfg.HistoryTail, o.cfg.StopMinTurns)
	messages := []oracle.Message{{Role: "user", Content: prompt}}

	first, err := o.callOracle(ctx, oracle.ChatRequest{
		Model:      o.cfg.Model,
		Messages:   messages,
		Tools:      toolset(),
		ToolChoice: "auto",
		MaxTokens:  o.cfg.MaxOutputTokens,
	})
	if err != nil {
		o.logger.Warn("First oracle call failed, using fallback reply", zap.String("session_id", s.ID), zap.Error(err))
		o.finishTurn(s, prompt, 0, fallbackReply)
		if s.AgentTurns > o.cfg.TurnCeiling {
			o.closeAndReport(s, reasonLimitExceeded)
		}
		return fallbackReply, nil
	}

	assistant := first.First()
	toolCalls := assistant.ToolCalls
	handlers := o.toolHandlers()

	if len(toolCalls) > 0 {
		messages = append(messages, assistant)
	}

	for _, call := range toolCalls {
		handler, ok := handlers[call.Function.Name]
		if !ok {
			o.logger.Warn("Oracle requested unknown tool", zap.String("session_id", s.ID), zap.String("tool", call.Function.Name))
			messages = append(messages, oracle.Message{Role: "tool", ToolCallID: call.ID, Content: `{"error":"unknown tool"}`})
			continue
		}

		outcome, err := handler(s, inboundText, call)
		if err != nil {
			return "", fmt.Errorf("tool %s failed: %w", call.Function.Name, err)
		}

		// A true stop verdict ends the turn here: no second oracle call,
		// minimal closing reply.
		if outcome.Stop {
			o.finishTurn(s, prompt, len(toolCalls), closedReply)
			o.closeAndReport(s, outcome.Reason)
			return closedReply, nil
		}

		messages = append(messages, oracle.Message{Role: "tool", ToolCallID: call.ID, Content: outcome.Output})
	}

	messages = append(messages, oracle.Message{
		Role:    "system",
		Content: "Output ONLY the victim's next message. Do NOT include extracted data or JSON.",
	})

	reply := ""
	second, err := o.callOracle(ctx, oracle.ChatRequest{
		Model:     o.cfg.Model,
		Messages:  messages,
		MaxTokens: o.cfg.MaxOutputTokens,
	})
	if err != nil {
		o.logger.Warn("Second oracle call failed, falling back to first output", zap.String("session_id", s.ID), zap.Error(err))
	} else {
		reply = strings.TrimSpace(second.First().Content)
	}
	if reply == "" {
		reply = strings.TrimSpace(assistant.Content)
	}
	if reply == "" {
		reply = fallbackReply
	}

	reply = truncate(reply, o.cfg.MaxReplyChars)
	o.finishTurn(s, prompt, len(toolCalls), reply)

	if s.AgentTurns > o.cfg.TurnCeiling {
		o.closeAndReport(s, reasonLimitExceeded)
	}

	return reply, nil
}

func (o *Orchestrator) callOracle(ctx context.Context, req oracle.ChatRequest) (*oracle.ChatResponse, error) {
	return oracle.CallWithRetry(ctx, o.cfg.Retry, func(ctx context.Context) (*oracle.ChatResponse, error) {
		return o.client.Chat(ctx, req)
	})
}

// finishTurn records the turn's bookkeeping: counter, diagnostics, and the
// agent's own message in the log.
func (o *Orchestrator) finishTurn(s *session.Session, prompt string, toolCalls int, reply string) {
	s.AgentTurns++
	s.LastTurnNotes = fmt.Sprintf("prompt_len=%d tool_calls=%d", len(prompt), toolCalls)
	s.AppendMessage("agent", reply, o.cfg.HistoryCap)
}

// closeAndReport closes the session and dispatches the final report at most
// once, guarded by the final_callback_sent flag set before dispatching.
func (o *Orchestrator) closeAndReport(s *session.Session, reason string) {
	s.Close()
	if s.FinalCallbackSent {
		return
	}
	s.FinalCallbackSent = true
	o.reporter.Dispatch(s, reason)
	o.logger.Info("Session closed", zap.String("session_id", s.ID), zap.String("reason", reason), zap.Int("agent_turns", s.AgentTurns))
}

// truncate caps the reply at max characters, not bytes.
func truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
