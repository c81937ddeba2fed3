package gate

import (
	"context"
	"fmt"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"go.uber.org/zap"
)

// HugotClassifier scores messages with a local ONNX text-classification
// model. If initialization fails the classifier reports not-ready and the
// caller falls back to the keyword gate.
type HugotClassifier struct {
	session  *hugot.Session
	pipeline *pipelines.TextClassificationPipeline
	mu       sync.RWMutex
	ready    bool

	threshold float64
	logger    *zap.Logger
}

// NewHugotClassifier loads the model at modelPath. Messages scoring at or
// above threshold are treated as scams.
func NewHugotClassifier(modelPath string, threshold float64, logger *zap.Logger) (*HugotClassifier, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("gate model path is empty")
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	pipeline, err := hugot.NewPipeline(session, hugot.TextClassificationConfig{
		ModelPath: modelPath,
		Name:      "scam-gate",
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			logger.Warn("Failed to destroy hugot session during cleanup", zap.Error(destroyErr))
		}
		return nil, fmt.Errorf("failed to create classification pipeline: %w", err)
	}

	logger.Info("Gate classifier initialized", zap.String("model_path", modelPath), zap.Float64("threshold", threshold))

	return &HugotClassifier{
		session:   session,
		pipeline:  pipeline,
		ready:     true,
		threshold: threshold,
		logger:    logger,
	}, nil
}

// IsReady reports whether the model loaded successfully.
func (h *HugotClassifier) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Classify runs a single inference over the message.
func (h *HugotClassifier) Classify(ctx context.Context, text string) (Verdict, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.ready || h.pipeline == nil {
		return Verdict{}, fmt.Errorf("gate classifier not ready")
	}

	result, err := h.pipeline.RunPipeline([]string{text})
	if err != nil {
		return Verdict{}, fmt.Errorf("gate inference failed: %w", err)
	}

	if len(result.ClassificationOutputs) == 0 || len(result.ClassificationOutputs[0]) == 0 {
		return Verdict{}, fmt.Errorf("gate returned no classification output")
	}

	out := result.ClassificationOutputs[0][0]
	verdict := Verdict{
		Label:      out.Label,
		Confidence: float64(out.Score),
	}
	verdict.ScamDetected = isScamLabel(out.Label) && verdict.Confidence >= h.threshold

	return verdict, nil
}

// Close releases the underlying ONNX session.
func (h *HugotClassifier) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ready = false
	if h.session != nil {
		if err := h.session.Destroy(); err != nil {
			return fmt.Errorf("failed to destroy hugot session: %w", err)
		}
	}
	return nil
}

// isScamLabel maps the label conventions of common fraud-detection models.
func isScamLabel(label string) bool {
	switch label {
	case "scam", "spam", "fraud", "LABEL_1":
		return true
	default:
		return false
	}
}
