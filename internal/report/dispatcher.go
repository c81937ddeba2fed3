package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lurebox/lurebox/internal/session"
	"github.com/lurebox/lurebox/internal/summarize"
	"go.uber.org/zap"
)

// Archiver persists delivered reports for later review. Optional.
type Archiver interface {
	Archive(ctx context.Context, r FinalReport) error
}

// DispatcherConfig represents configuration for the final-report dispatcher
type DispatcherConfig struct {
	CallbackURL string
	Timeout     time.Duration
	Attempts    int
	QueueSize   int
}

// Dispatcher delivers final reports through a single background worker fed
// by a bounded queue. A full queue drops the report rather than block a
// turn.
type Dispatcher struct {
	cfg        DispatcherConfig
	queue      chan job
	httpClient *http.Client
	summarizer *summarize.Summarizer
	archiver   Archiver
	logger     *zap.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewDispatcher creates a dispatcher. summarizer enriches the report with
// keywords and behavioural notes; archiver may be nil.
func NewDispatcher(cfg DispatcherConfig, summarizer *summarize.Summarizer, archiver Archiver, logger *zap.Logger) *Dispatcher {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &Dispatcher{
		cfg:        cfg,
		queue:      make(chan job, cfg.QueueSize),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		summarizer: summarizer,
		archiver:   archiver,
		logger:     logger,
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop closes the queue and waits for in-flight deliveries to finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

// Dispatch enqueues a closing report for the session. It never blocks: when
// the queue is full the report is dropped with a log line. The caller is
// responsible for setting final_callback_sent before calling.
func (d *Dispatcher) Dispatch(s *session.Session, reason string) {
	select {
	case d.queue <- job{Session: *s, Reason: reason}:
	default:
		d.logger.Warn("Report queue full, dropping final report", zap.String("session_id", s.ID))
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for j := range d.queue {
		d.process(j)
	}
}

func (d *Dispatcher) process(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	r := NewReport(&j.Session, j.Reason)

	if d.summarizer != nil {
		keywords := d.summarizer.Keywords(ctx, j.Session.History)
		for _, kw := range keywords {
			r.ExtractedIntelligence.SuspiciousKeywords = appendMissing(r.ExtractedIntelligence.SuspiciousKeywords, kw)
		}
		if behaviour := d.summarizer.Behaviour(ctx, j.Session.History); behaviour != "" {
			r.AgentNotes = fmt.Sprintf("%s | %s", j.Reason, behaviour)
		}
	}

	if err := d.deliver(ctx, r); err != nil {
		d.logger.Warn("Final report delivery abandoned",
			zap.String("session_id", r.SessionID),
			zap.Int("attempts", d.cfg.Attempts),
			zap.Error(err))
	}

	if d.archiver != nil {
		if err := d.archiver.Archive(ctx, r); err != nil {
			d.logger.Warn("Failed to archive final report", zap.String("session_id", r.SessionID), zap.Error(err))
		}
	}
}

// deliver posts the report, retrying a small fixed number of times and
// giving up silently on persistent failure.
func (d *Dispatcher) deliver(ctx context.Context, r FinalReport) error {
	if d.cfg.CallbackURL == "" {
		d.logger.Debug("No callback URL configured, skipping report delivery", zap.String("session_id", r.SessionID))
		return nil
	}

	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < d.cfg.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.CallbackURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			d.logger.Info("Final report delivered", zap.String("session_id", r.SessionID))
			return nil
		}
		lastErr = fmt.Errorf("callback returned %s", resp.Status)
	}
	return lastErr
}

func appendMissing(existing []string, value string) []string {
	for _, v := range existing {
		if v == value {
			return existing
		}
	}
	return append(existing, value)
}
