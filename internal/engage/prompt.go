package engage

import (
	"fmt"
	"strings"

	"github.com/lurebox/lurebox/internal/intel"
	"github.com/lurebox/lurebox/internal/session"
)

const persona = "You are a real person texting on a phone in India. " +
	"You are anxious, slightly confused, not very technical. " +
	"You believe the other person is genuine support. " +
	"Never share real OTPs, passwords, CVV, or bank credentials. " +
	"Goal: keep them talking and get them to reveal payment destination (UPI/account), phone number, and links.\n" +
	"Style: short messages, casual, 1-2 sentences. No emojis.\n"

var goalByPhase = map[string]string{
	session.PhaseStart:          "Act confused; ask what happened.",
	session.PhaseConfused:       "Act confused; ask what happened.",
	session.PhaseTrustBuilding:  "Act cooperative; ask for steps/link/app.",
	session.PhaseInfoExtraction: "Ask directly for UPI/account/link to proceed.",
	session.PhaseStalling:       "Stall realistically (network/app slow) while keeping them engaged.",
}

// buildPrompt assembles the bounded per-turn context: persona, the current
// phase's objective, known intelligence, a short tail of the conversation,
// and the turn count. Nothing here is persisted.
func buildPrompt(s *session.Session, historyTail int, stopMinTurns int) string {
	goal, ok := goalByPhase[s.Phase]
	if !ok {
		goal = "Keep conversation going and extract details."
	}

	var b strings.Builder
	b.WriteString(persona)
	fmt.Fprintf(&b, "\nCurrent objective: %s\n", goal)
	fmt.Fprintf(&b, "Summary so far: %s\n", orNone(s.Summary))
	fmt.Fprintf(&b, "Known extracted intel: %s\n", renderIntel(s.Intelligence))
	fmt.Fprintf(&b, "Agent turns so far: %d\n", s.AgentTurns)
	b.WriteString("Recent conversation:\n")
	b.WriteString(renderTail(s.HistoryTail(historyTail)))

	b.WriteString("\n\nINSTRUCTIONS:\n")
	b.WriteString("1) Respond in English in a confused tone.\n")
	b.WriteString("2) Respond with the VICTIM message (1-2 short sentences).\n")
	b.WriteString("3) Do not use any emojis or special characters.\n")
	b.WriteString("4) Even though you should not share any sensitive information, make them think like you would and stall so that you extract information.\n")
	b.WriteString("5) FOLLOW THIS STRICTLY: only call the tool extract_intelligence if the scammer message includes UPI IDs, bank accounts, phone numbers, or links.\n")
	b.WriteString("6) Stall the conversation until you extract all the necessary information.\n")
	b.WriteString("7) After tool results are provided, output ONLY the victim's next message.\n")
	b.WriteString("8) Do NOT include any extracted entities, tool results, JSON, lists, or explanations.\n")
	fmt.Fprintf(&b, "9) Do not call evaluate_stop_condition before %d agent turns have passed.\n", stopMinTurns)

	return b.String()
}

// renderIntel produces the compact "category=[values]" listing of everything
// extracted so far.
func renderIntel(bundle intel.Bundle) string {
	var parts []string
	if len(bundle.UPIIDs) > 0 {
		parts = append(parts, fmt.Sprintf("upiIds=%v", bundle.UPIIDs))
	}
	if len(bundle.BankAccounts) > 0 {
		parts = append(parts, fmt.Sprintf("bankAccounts=%v", bundle.BankAccounts))
	}
	if len(bundle.PhishingLinks) > 0 {
		parts = append(parts, fmt.Sprintf("phishingLinks=%v", bundle.PhishingLinks))
	}
	if len(bundle.PhoneNumbers) > 0 {
		parts = append(parts, fmt.Sprintf("phoneNumbers=%v", bundle.PhoneNumbers))
	}
	if len(parts) == 0 {
		return "(none)"
	}
	return strings.Join(parts, ", ")
}

func renderTail(tail []session.Message) string {
	if len(tail) == 0 {
		return "(none)"
	}
	lines := make([]string, 0, len(tail))
	for _, m := range tail {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(m.Sender), m.Text))
	}
	return strings.Join(lines, "\n")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
