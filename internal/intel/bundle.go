// Package intel holds the extracted-intelligence model: the bundle of
// identifying artifacts accumulated over a session and the pure functions
// that extract and merge them.
package intel

// Bundle is the accumulated, deduplicated set of identifying artifacts for a
// session. Within each category no value repeats and ordering follows first
// discovery. A digit run may legitimately appear in both PhoneNumbers and
// BankAccounts; downstream review is manual and false positives are tolerated.
type Bundle struct {
	UPIIDs             []string `json:"upiIds"`
	BankAccounts       []string `json:"bankAccounts"`
	PhishingLinks      []string `json:"phishingLinks"`
	PhoneNumbers       []string `json:"phoneNumbers"`
	SuspiciousKeywords []string `json:"suspiciousKeywords"`
}

// IsEmpty reports whether the bundle holds no artifacts at all.
func (b *Bundle) IsEmpty() bool {
	return len(b.UPIIDs) == 0 &&
		len(b.BankAccounts) == 0 &&
		len(b.PhishingLinks) == 0 &&
		len(b.PhoneNumbers) == 0 &&
		len(b.SuspiciousKeywords) == 0
}

// HasPaymentTarget reports whether the bundle already identifies somewhere
// money could be sent - a payment handle or an account number.
func (b *Bundle) HasPaymentTarget() bool {
	return len(b.UPIIDs) > 0 || len(b.BankAccounts) > 0
}

// Merge appends every value from src that dst does not already contain,
// category by category, preserving first-seen order. Categories absent from
// src (nil slices) are treated as empty. Merging the same src twice is a
// no-op the second time.
func Merge(dst *Bundle, src Bundle) {
	dst.UPIIDs = appendUnique(dst.UPIIDs, src.UPIIDs)
	dst.BankAccounts = appendUnique(dst.BankAccounts, src.BankAccounts)
	dst.PhishingLinks = appendUnique(dst.PhishingLinks, src.PhishingLinks)
	dst.PhoneNumbers = appendUnique(dst.PhoneNumbers, src.PhoneNumbers)
	dst.SuspiciousKeywords = appendUnique(dst.SuspiciousKeywords, src.SuspiciousKeywords)
}

func appendUnique(existing []string, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}

	seen := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		seen[v] = struct{}{}
	}

	for _, v := range incoming {
		if _, ok := seen[v]; ok {
			continue
		}
		existing = append(existing, v)
		seen[v] = struct{}{}
	}

	return existing
}
