package intel

import (
	"regexp"
	"strings"
)

// Patterns are deliberately loose: the bundle feeds a manual review queue, so
// catching too much beats missing a real identifier.
var (
	upiPattern     = regexp.MustCompile(`(?i)\b[a-z0-9._-]{2,}@[a-z0-9]{2,}\b`)
	linkPattern    = regexp.MustCompile(`(?i)\bhttps?://[^\s]+|\bwww\.[^\s]+`)
	phonePattern   = regexp.MustCompile(`\+?\d{1,3}[\s-]?(?:\d[\s-]?){8,13}\d`)
	accountPattern = regexp.MustCompile(`\b\d{9,18}\b`)
	nonDigit       = regexp.MustCompile(`\D`)
)

// Extract scans free text for candidate identifiers: email-shaped payment
// handles, HTTP(S) or www-prefixed links, 9-18 digit runs as account numbers,
// and separator-tolerant digit sequences that normalize to 10-15 digits as
// phone numbers. It is deterministic, never fails, and returns empty
// categories for empty input. Each category is deduplicated independently;
// a digit run matching both the phone and account shapes appears in both.
func Extract(text string) Bundle {
	if strings.TrimSpace(text) == "" {
		return Bundle{}
	}

	return Bundle{
		UPIIDs:        uniqueMatches(upiPattern.FindAllString(text, -1)),
		PhishingLinks: uniqueMatches(linkPattern.FindAllString(text, -1)),
		PhoneNumbers:  extractPhones(text),
		BankAccounts:  uniqueMatches(accountPattern.FindAllString(text, -1)),
	}
}

// extractPhones normalizes candidates to bare digits and keeps only realistic
// phone lengths after stripping separators and the leading plus.
func extractPhones(text string) []string {
	var phones []string
	for _, raw := range phonePattern.FindAllString(text, -1) {
		digits := nonDigit.ReplaceAllString(raw, "")
		if len(digits) >= 10 && len(digits) <= 15 {
			phones = append(phones, digits)
		}
	}
	return uniqueMatches(phones)
}

func uniqueMatches(matches []string) []string {
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
