package engage

import (
	"strings"

	"github.com/lurebox/lurebox/internal/session"
)

// Vocabulary that promotes the conversational phase. Matching is
// case-insensitive substring containment against the latest inbound text.
var (
	verificationDemandTerms = []string{"otp", "one-time", "password", "verify", "verification", "cvv", "pin"}
	actionDemandTerms       = []string{"link", "click", "install", "download", "app", "http"}
)

// advancePhase applies the transition triggers in priority order against the
// inbound text. Each trigger only ever promotes; Promote discards
// regressions, so evaluating all of them is safe.
func advancePhase(s *session.Session, inboundText string) {
	lowered := strings.ToLower(inboundText)

	// any turn at all moves a fresh session out of START
	s.Promote(session.PhaseConfused)

	if containsAny(lowered, verificationDemandTerms) {
		s.Promote(session.PhaseTrustBuilding)
	}
	if containsAny(lowered, actionDemandTerms) {
		s.Promote(session.PhaseInfoExtraction)
	}
	if s.Intelligence.HasPaymentTarget() {
		s.Promote(session.PhaseStalling)
	}
}

func containsAny(lowered string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}
