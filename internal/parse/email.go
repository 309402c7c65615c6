// Package parse splits email addresses into local part and domain.
package parse

import (
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// MatchesRegex reports whether re matches s starting at its first byte.
// Candidate validation accepts a prefix match, not only a full match,
// so a trailing path fragment does not rescue an address whose local
// part is malformed.
func MatchesRegex(re *regexp.Regexp, s string) bool {
	loc := re.FindStringIndex(s)
	return loc != nil && loc[0] == 0
}

// Email is the internal representation of a candidate address.
type Email struct {
	Raw    string // the original, trimmed input
	Local  string // the part before @
	Domain string // the part after @, ASCII/Punycode form (for DNS/SMTP)
	Valid  bool   // false if Raw cannot be split
}

// NewEmail splits the given address at the last @.
// If splitting fails, Valid=false but Raw is always populated.
// Internationalized domains (IDNA2008) are converted to their
// Punycode form so they can be used directly in DNS and SMTP.
func NewEmail(raw string) Email {
	raw = strings.TrimSpace(raw)

	atIdx := strings.LastIndex(raw, "@")
	if atIdx < 1 || atIdx >= len(raw)-1 {
		return Email{Raw: raw, Valid: false}
	}

	local := raw[:atIdx]
	domain := strings.ToLower(raw[atIdx+1:])

	ascii, ok := asciiDomain(domain)
	if !ok {
		return Email{Raw: raw, Valid: false}
	}

	return Email{
		Raw:    raw,
		Local:  local,
		Domain: ascii,
		Valid:  true,
	}
}

// asciiDomain converts a domain to its ASCII/Punycode form.
// Pure ASCII domains pass through unchanged; internationalized
// domains go through IDNA2008 lookup conversion.
func asciiDomain(domain string) (string, bool) {
	hasNonASCII := false
	for _, r := range domain {
		if r > 127 {
			hasNonASCII = true
			break
		}
	}

	if !hasNonASCII {
		return domain, true
	}

	a, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return "", false
	}
	return a, true
}
