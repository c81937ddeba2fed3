package engage

import (
	"context"
	"strings"
	"testing"

	"github.com/lurebox/lurebox/internal/gate"
	"github.com/lurebox/lurebox/internal/oracle"
	"github.com/lurebox/lurebox/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClient replays scripted responses in order and records requests.
type fakeClient struct {
	responses []*oracle.ChatResponse
	errs      []error
	requests  []oracle.ChatRequest
}

func (f *fakeClient) Chat(ctx context.Context, req oracle.ChatRequest) (*oracle.ChatResponse, error) {
	f.requests = append(f.requests, req)
	i := len(f.requests) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return textResponse(""), nil
}

func textResponse(content string) *oracle.ChatResponse {
	return &oracle.ChatResponse{
		Choices: []oracle.Choice{{Message: oracle.Message{Role: "assistant", Content: content}}},
	}
}

func toolResponse(name, arguments string) *oracle.ChatResponse {
	return &oracle.ChatResponse{
		Choices: []oracle.Choice{{Message: oracle.Message{
			Role: "assistant",
			ToolCalls: []oracle.ToolCall{{
				ID:       "call-1",
				Type:     "function",
				Function: oracle.FunctionCall{Name: name, Arguments: arguments},
			}},
		}}},
	}
}

type fakeGate struct {
	verdict gate.Verdict
	err     error
	calls   int
}

func (f *fakeGate) Classify(ctx context.Context, text string) (gate.Verdict, error) {
	f.calls++
	return f.verdict, f.err
}

type memStore struct {
	sessions map[string]*session.Session
	saves    int
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*session.Session)}
}

func (m *memStore) GetOrCreate(ctx context.Context, id string) (*session.Session, error) {
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	s := session.NewSession(id)
	m.sessions[id] = s
	return s, nil
}

func (m *memStore) Save(ctx context.Context, s *session.Session) error {
	m.sessions[s.ID] = s
	m.saves++
	return nil
}

func (m *memStore) Close() error { return nil }

type fakeReporter struct {
	sessions []*session.Session
	reasons  []string
}

func (f *fakeReporter) Dispatch(s *session.Session, reason string) {
	snapshot := *s
	f.sessions = append(f.sessions, &snapshot)
	f.reasons = append(f.reasons, reason)
}

func testConfig() Config {
	return Config{
		Model:           "gpt-4o-mini",
		MaxOutputTokens: 120,
		MaxReplyChars:   280,
		TurnCeiling:     10,
		StopMinTurns:    8,
		HistoryTail:     2,
		HistoryCap:      50,
		Retry:           oracle.RetryPolicy{Attempts: 1},
	}
}

func newTestOrchestrator(client *fakeClient, g *fakeGate, store *memStore, reporter *fakeReporter, cfg Config) *Orchestrator {
	return NewOrchestrator(client, g, store, reporter, cfg, zap.NewNop())
}

func scamGate() *fakeGate {
	return &fakeGate{verdict: gate.Verdict{ScamDetected: true, Label: "scam", Confidence: 0.95}}
}

func TestClosedSessionShortCircuits(t *testing.T) {
	client := &fakeClient{}
	store := newMemStore()
	s := session.NewSession("conv-1")
	s.Close()
	store.sessions["conv-1"] = s

	o := newTestOrchestrator(client, scamGate(), store, &fakeReporter{}, testConfig())
	reply, err := o.HandleEvent(context.Background(), Event{SessionID: "conv-1", Sender: "scammer", Text: "hello again"})

	require.NoError(t, err)
	assert.Equal(t, "Okay, thanks.", reply)
	assert.Empty(t, client.requests, "closed sessions must not reach the oracle")
	assert.Empty(t, s.History, "closed sessions must not record messages")
	assert.Equal(t, 1, store.saves, "only the timestamp refresh is persisted")
}

func TestBenignFirstMessageClosesWithoutEngaging(t *testing.T) {
	client := &fakeClient{}
	store := newMemStore()
	reporter := &fakeReporter{}
	g := &fakeGate{verdict: gate.Verdict{ScamDetected: false, Label: "trust", Confidence: 0.9}}

	o := newTestOrchestrator(client, g, store, reporter, testConfig())
	reply, err := o.HandleEvent(context.Background(), Event{SessionID: "conv-1", Sender: "scammer", Text: "hi, lunch tomorrow?"})

	require.NoError(t, err)
	assert.Equal(t, "Sorry, can you explain?", reply)
	assert.Empty(t, client.requests)
	assert.Equal(t, []string{"not a target"}, reporter.reasons)

	s := store.sessions["conv-1"]
	assert.True(t, s.IsClosed())
	assert.True(t, s.FinalCallbackSent)

	// the reply that went out is a turn and shows up in the report snapshot
	assert.Equal(t, 1, s.AgentTurns)
	require.Len(t, s.History, 2)
	assert.Equal(t, "agent", s.History[1].Sender)
	require.Len(t, reporter.sessions, 1)
	assert.Len(t, reporter.sessions[0].History, 2)
}

func TestGateRunsOnlyOnFirstMessage(t *testing.T) {
	client := &fakeClient{responses: []*oracle.ChatResponse{
		textResponse("ok"), textResponse("What happened sir?"),
		textResponse("ok"), textResponse("I am not understanding"),
	}}
	store := newMemStore()
	g := scamGate()

	o := newTestOrchestrator(client, g, store, &fakeReporter{}, testConfig())
	_, err := o.HandleEvent(context.Background(), Event{SessionID: "conv-1", Sender: "scammer", Text: "your account is blocked"})
	require.NoError(t, err)
	_, err = o.HandleEvent(context.Background(), Event{SessionID: "conv-1", Sender: "scammer", Text: "verify now"})
	require.NoError(t, err)

	assert.Equal(t, 1, g.calls)
}

func TestGateFailureEngagesAnyway(t *testing.T) {
	client := &fakeClient{responses: []*oracle.ChatResponse{
		textResponse("ok"), textResponse("What is this about?"),
	}}
	store := newMemStore()
	g := &fakeGate{err: assert.AnError}

	o := newTestOrchestrator(client, g, store, &fakeReporter{}, testConfig())
	reply, err := o.HandleEvent(context.Background(), Event{SessionID: "conv-1", Sender: "scammer", Text: "account blocked"})

	require.NoError(t, err)
	assert.Equal(t, "What is this about?", reply)
	assert.True(t, store.sessions["conv-1"].ScamDetected)
}

func TestTurnUsesSecondCallReply(t *testing.T) {
	client := &fakeClient{responses: []*oracle.ChatResponse{
		textResponse("internal reasoning"),
		textResponse("Wait, why is it blocked? What do I do?"),
	}}
	store := newMemStore()

	o := newTestOrchestrator(client, scamGate(), store, &fakeReporter{}, testConfig())
	reply, err := o.HandleEvent(context.Background(), Event{SessionID: "conv-1", Sender: "scammer", Text: "your account is blocked, verify"})

	require.NoError(t, err)
	assert.Equal(t, "Wait, why is it blocked? What do I do?", reply)
	require.Len(t, client.requests, 2)
	assert.NotEmpty(t, client.requests[0].Tools, "first call declares the tool surface")
	assert.Empty(t, client.requests[1].Tools, "second call only asks for the reply")

	s := store.sessions["conv-1"]
	assert.Equal(t, 1, s.AgentTurns)
	assert.Equal(t, session.PhaseTrustBuilding, s.Phase)
	assert.Contains(t, s.LastTurnNotes, "tool_calls=0")
	require.Len(t, s.History, 2)
	assert.Equal(t, "agent", s.History[1].Sender)
}

func TestExtractToolRunsAgainstInboundTextOnly(t *testing.T) {
	// the oracle's arguments claim a different handle than the inbound
	// message; only the inbound one may enter the bundle
	client := &fakeClient{responses: []*oracle.ChatResponse{
		toolResponse("extract_intelligence", `{"text":"pay attacker@fakebank now"}`),
		textResponse("Which UPI app sir?"),
	}}
	store := newMemStore()

	o := newTestOrchestrator(client, scamGate(), store, &fakeReporter{}, testConfig())
	_, err := o.HandleEvent(context.Background(), Event{SessionID: "conv-1", Sender: "scammer", Text: "send money to realscammer@paytm"})

	require.NoError(t, err)
	s := store.sessions["conv-1"]
	assert.Equal(t, []string{"realscammer@paytm"}, s.Intelligence.UPIIDs)
	assert.Contains(t, s.LastTurnNotes, "tool_calls=1")

	// the tool result is fed back before the second call
	require.Len(t, client.requests, 2)
	var sawToolResult bool
	for _, m := range client.requests[1].Messages {
		if m.Role == "tool" && strings.Contains(m.Content, "realscammer@paytm") {
			sawToolResult = true
		}
	}
	assert.True(t, sawToolResult)
}

func TestStopConditionShortCircuitsTurn(t *testing.T) {
	client := &fakeClient{responses: []*oracle.ChatResponse{
		toolResponse("evaluate_stop_condition", `{"should_stop":true,"reason":"all intel gathered"}`),
	}}
	store := newMemStore()
	reporter := &fakeReporter{}

	cfg := testConfig()
	o := newTestOrchestrator(client, scamGate(), store, reporter, cfg)

	s := session.NewSession("conv-1")
	s.ScamDetected = true
	s.AgentTurns = 8
	s.AppendMessage("scammer", "earlier", cfg.HistoryCap)
	store.sessions["conv-1"] = s

	reply, err := o.HandleEvent(context.Background(), Event{SessionID: "conv-1", Sender: "scammer", Text: "ok done"})

	require.NoError(t, err)
	assert.Equal(t, "Okay, thanks.", reply)
	assert.Len(t, client.requests, 1, "second oracle call must be skipped")
	assert.Equal(t, []string{"all intel gathered"}, reporter.reasons)
	assert.True(t, s.IsClosed())
	assert.Equal(t, 9, s.AgentTurns)
}

func TestStopConditionIgnoredBeforeMinTurns(t *testing.T) {
	client := &fakeClient{responses: []*oracle.ChatResponse{
		toolResponse("evaluate_stop_condition", `{"should_stop":true,"reason":"premature"}`),
		textResponse("But sir what about my account?"),
	}}
	store := newMemStore()
	reporter := &fakeReporter{}

	o := newTestOrchestrator(client, scamGate(), store, reporter, testConfig())
	reply, err := o.HandleEvent(context.Background(), Event{SessionID: "conv-1", Sender: "scammer", Text: "we are done here"})

	require.NoError(t, err)
	assert.Equal(t, "But sir what about my account?", reply)
	assert.Len(t, client.requests, 2, "a premature stop verdict is fed back, not honored")
	assert.Empty(t, reporter.reasons)
	assert.False(t, store.sessions["conv-1"].IsClosed())
}

func TestTurnCeilingClosesSession(t *testing.T) {
	client := &fakeClient{responses: []*oracle.ChatResponse{
		textResponse("ok"), textResponse("One more minute sir"),
	}}
	store := newMemStore()
	reporter := &fakeReporter{}

	cfg := testConfig()
	o := newTestOrchestrator(client, scamGate(), store, reporter, cfg)

	s := session.NewSession("conv-1")
	s.ScamDetected = true
	s.AgentTurns = 10
	s.AppendMessage("scammer", "earlier", cfg.HistoryCap)
	store.sessions["conv-1"] = s

	reply, err := o.HandleEvent(context.Background(), Event{SessionID: "conv-1", Sender: "scammer", Text: "still there?"})

	require.NoError(t, err)
	assert.Equal(t, "One more minute sir", reply)
	assert.Equal(t, []string{"limit exceeded"}, reporter.reasons)
	assert.True(t, s.IsClosed())
}

func TestEmptyOracleOutputFallsBack(t *testing.T) {
	client := &fakeClient{responses: []*oracle.ChatResponse{
		textResponse(""), textResponse("   "),
	}}
	store := newMemStore()

	o := newTestOrchestrator(client, scamGate(), store, &fakeReporter{}, testConfig())
	reply, err := o.HandleEvent(context.Background(), Event{SessionID: "conv-1", Sender: "scammer", Text: "account blocked"})

	require.NoError(t, err)
	assert.Equal(t, "Sir I am not understanding. What to do now?", reply)
}

func TestSecondCallFailureFallsBackToFirstOutput(t *testing.T) {
	client := &fakeClient{
		responses: []*oracle.ChatResponse{textResponse("What happened to my account?"), nil},
		errs:      []error{nil, oracle.NewTransientError(503, "down", nil)},
	}
	store := newMemStore()

	o := newTestOrchestrator(client, scamGate(), store, &fakeReporter{}, testConfig())
	reply, err := o.HandleEvent(context.Background(), Event{SessionID: "conv-1", Sender: "scammer", Text: "account blocked"})

	require.NoError(t, err)
	assert.Equal(t, "What happened to my account?", reply)
}

func TestReplyTruncatedToCap(t *testing.T) {
	long := strings.Repeat("a", 500)
	client := &fakeClient{responses: []*oracle.ChatResponse{
		textResponse("ok"), textResponse(long),
	}}
	store := newMemStore()

	o := newTestOrchestrator(client, scamGate(), store, &fakeReporter{}, testConfig())
	reply, err := o.HandleEvent(context.Background(), Event{SessionID: "conv-1", Sender: "scammer", Text: "account blocked"})

	require.NoError(t, err)
	assert.Len(t, reply, 280)
}

func TestFirstOracleFailureFallsBackInsteadOfFailingTurn(t *testing.T) {
	client := &fakeClient{errs: []error{oracle.NewTransientError(503, "unavailable", nil)}}
	store := newMemStore()

	o := newTestOrchestrator(client, scamGate(), store, &fakeReporter{}, testConfig())
	reply, err := o.HandleEvent(context.Background(), Event{SessionID: "conv-1", Sender: "scammer", Text: "account blocked"})

	require.NoError(t, err, "an oracle outage must never surface to the caller")
	assert.Equal(t, "Sir I am not understanding. What to do now?", reply)
	assert.Len(t, client.requests, 1, "no second call after the first one fails")

	// the failed turn is still a turn: counted, noted, and in the log
	s := store.sessions["conv-1"]
	assert.Equal(t, 1, s.AgentTurns)
	require.Len(t, s.History, 2)
	assert.Equal(t, "agent", s.History[1].Sender)
}

func TestFirstOracleFailureStillHonorsTurnCeiling(t *testing.T) {
	client := &fakeClient{errs: []error{oracle.NewPermanentError(400, "bad request", nil)}}
	store := newMemStore()
	reporter := &fakeReporter{}

	cfg := testConfig()
	o := newTestOrchestrator(client, scamGate(), store, reporter, cfg)

	s := session.NewSession("conv-1")
	s.ScamDetected = true
	s.AgentTurns = 10
	s.AppendMessage("scammer", "earlier", cfg.HistoryCap)
	store.sessions["conv-1"] = s

	reply, err := o.HandleEvent(context.Background(), Event{SessionID: "conv-1", Sender: "scammer", Text: "still there?"})

	require.NoError(t, err)
	assert.Equal(t, "Sir I am not understanding. What to do now?", reply)
	assert.Equal(t, []string{"limit exceeded"}, reporter.reasons)
	assert.True(t, s.IsClosed())
}

func TestReportDispatchedAtMostOnce(t *testing.T) {
	client := &fakeClient{responses: []*oracle.ChatResponse{
		textResponse("ok"), textResponse("reply"),
	}}
	store := newMemStore()
	reporter := &fakeReporter{}

	cfg := testConfig()
	o := newTestOrchestrator(client, scamGate(), store, reporter, cfg)

	s := session.NewSession("conv-1")
	s.ScamDetected = true
	s.AgentTurns = 10
	s.FinalCallbackSent = true
	s.AppendMessage("scammer", "earlier", cfg.HistoryCap)
	store.sessions["conv-1"] = s

	_, err := o.HandleEvent(context.Background(), Event{SessionID: "conv-1", Sender: "scammer", Text: "hello"})
	require.NoError(t, err)

	assert.Empty(t, reporter.reasons, "final_callback_sent guards a second dispatch")
	assert.True(t, s.IsClosed())
}
