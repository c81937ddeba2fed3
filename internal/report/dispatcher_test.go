package report

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lurebox/lurebox/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func closedSession() *session.Session {
	s := session.NewSession("conv-1")
	s.ScamDetected = true
	s.AppendMessage("scammer", "send to fraud@upi", 0)
	s.AppendMessage("agent", "what is upi sir", 0)
	s.Intelligence.UPIIDs = []string{"fraud@upi"}
	s.Close()
	return s
}

func TestDispatchDeliversReport(t *testing.T) {
	received := make(chan FinalReport, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var report FinalReport
		require.NoError(t, json.NewDecoder(r.Body).Decode(&report))
		received <- report
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(DispatcherConfig{CallbackURL: server.URL, Attempts: 3, QueueSize: 4}, nil, nil, zap.NewNop())
	d.Start()

	d.Dispatch(closedSession(), "limit exceeded")
	d.Stop()

	select {
	case report := <-received:
		assert.Equal(t, "conv-1", report.SessionID)
		assert.True(t, report.ScamDetected)
		assert.Equal(t, 2, report.TotalMessagesExchanged)
		assert.Equal(t, []string{"fraud@upi"}, report.ExtractedIntelligence.UPIIDs)
		assert.Equal(t, "limit exceeded", report.AgentNotes)
	default:
		t.Fatal("report was not delivered")
	}
}

func TestDispatchRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(DispatcherConfig{CallbackURL: server.URL, Attempts: 3, QueueSize: 4}, nil, nil, zap.NewNop())
	d.Start()
	d.Dispatch(closedSession(), "stop condition")
	d.Stop()

	assert.Equal(t, int32(3), calls.Load())
}

func TestDispatchGivesUpSilently(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	d := NewDispatcher(DispatcherConfig{CallbackURL: server.URL, Attempts: 3, QueueSize: 4}, nil, nil, zap.NewNop())
	d.Start()
	d.Dispatch(closedSession(), "stop condition")
	d.Stop()

	// all attempts consumed, no panic, no error surfaced anywhere
	assert.Equal(t, int32(3), calls.Load())
}

func TestDispatchNeverBlocksWhenQueueFull(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{CallbackURL: "http://127.0.0.1:1", Attempts: 1, QueueSize: 1}, nil, nil, zap.NewNop())
	// worker not started, queue holds one job

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Dispatch(closedSession(), "reason")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}
}

func TestDispatchNoCallbackURLIsNoop(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Attempts: 3, QueueSize: 4}, nil, nil, zap.NewNop())
	d.Start()
	d.Dispatch(closedSession(), "not a target")
	d.Stop()
}
