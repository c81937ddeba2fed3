package gate

import (
	"context"
	"strings"
)

// scamMarkers are substrings that commonly open payment-fraud scripts.
// Matching is case-insensitive substring containment, no tokenization.
var scamMarkers = []string{
	"upi",
	"verify",
	"account blocked",
	"otp",
	"suspend",
	"link",
	"kyc",
	"refund",
	"lottery",
	"prize",
}

// KeywordClassifier is the zero-dependency fallback gate. It is used when no
// ONNX model is available and errs on the side of engaging.
type KeywordClassifier struct{}

// NewKeywordClassifier creates a new keyword-based classifier
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify flags the message when any marker appears in it.
func (k *KeywordClassifier) Classify(ctx context.Context, text string) (Verdict, error) {
	lowered := strings.ToLower(text)
	for _, marker := range scamMarkers {
		if strings.Contains(lowered, marker) {
			return Verdict{ScamDetected: true, Confidence: 0.9, Label: "scam"}, nil
		}
	}
	return Verdict{ScamDetected: false, Confidence: 0.9, Label: "benign"}, nil
}
