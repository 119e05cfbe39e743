// Package identity canonicalizes phone-number-like strings into the single
// form used as the ledger's lookup key. Payment webhooks and the messaging
// provider spell the same subscriber in different ways (with or without a
// plus, with or without the trunk zero, bare national numbers); every write
// goes through Normalize so both sources land on the same row.
package identity

import (
	"strings"

	"github.com/iamafoodie/buddy/internal/config"
)

// Normalizer rewrites free-form phone strings to +<countrycode><digits>.
type Normalizer struct {
	countryCode  string
	mobilePrefix string
	minDigits    int
}

func NewNormalizer(cfg config.IdentityConfig) *Normalizer {
	cc := strings.TrimSpace(cfg.DefaultCountryCode)
	if cc == "" {
		cc = "31"
	}
	prefix := strings.TrimSpace(cfg.MobilePrefix)
	if prefix == "" {
		prefix = "6"
	}
	minDigits := cfg.MinNationalDigits
	if minDigits <= 0 {
		minDigits = 9
	}
	return &Normalizer{
		countryCode:  cc,
		mobilePrefix: prefix,
		minDigits:    minDigits,
	}
}

// Normalize returns the canonical identity for raw, or false when raw
// contains no usable number. Rewrites a trunk-zero national number
// (0612345678) and a bare mobile number (612345678) to the configured
// default country.
func (n *Normalizer) Normalize(raw string) (string, bool) {
	digits := stripToDigits(raw)
	if digits == "" {
		return "", false
	}

	switch {
	case strings.HasPrefix(digits, "0") && len(digits) >= n.minDigits:
		digits = n.countryCode + digits[1:]
	case len(digits) >= n.minDigits &&
		!strings.HasPrefix(digits, n.countryCode) &&
		strings.HasPrefix(digits, n.mobilePrefix):
		digits = n.countryCode + digits
	}

	return "+" + digits, true
}

// LookupCandidates returns the canonical form plus the bounded set of
// alternate spellings older rows may have been written under. The
// alternates are for lookup only; new rows always store the canonical form.
func (n *Normalizer) LookupCandidates(canonical string) []string {
	candidates := []string{canonical}
	if !strings.HasPrefix(canonical, "+") {
		return candidates
	}

	bare := canonical[1:]
	candidates = append(candidates, bare)
	if strings.HasPrefix(bare, n.countryCode) && len(canonical) >= 11 {
		candidates = append(candidates, "0"+bare[len(n.countryCode):])
	}
	return candidates
}

func stripToDigits(raw string) string {
	s := strings.TrimSpace(raw)
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
