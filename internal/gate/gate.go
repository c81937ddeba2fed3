// Package gate classifies the opening message of a conversation to decide
// whether the engagement pipeline should run at all. Sessions that never
// looked like a scam are closed before any oracle call is made.
package gate

import "context"

// Verdict is the gate's decision for a single message.
type Verdict struct {
	ScamDetected bool    `json:"scamDetected"`
	Confidence   float64 `json:"confidence"`
	Label        string  `json:"label"`
}

// Classifier scores a message for scam intent.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}
