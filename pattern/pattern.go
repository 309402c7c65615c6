// Package pattern synthesizes candidate email addresses from a contact's
// name and a company domain.
package pattern

import (
	"regexp"
	"sort"
	"strings"

	"github.com/bl4ckh4nd/MailBeacon/internal/parse"
)

// sanitizeNamePart removes all whitespace and lowercases.
func sanitizeNamePart(part string) string {
	return strings.ToLower(strings.Join(strings.Fields(part), ""))
}

// firstRune returns the first rune of s as a string, or "" when s is empty.
func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}

// runePrefix returns the first n runes of s.
func runePrefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) < n {
		return s
	}
	return string(runes[:n])
}

// Generate synthesizes the common local-part shapes for a name, joins
// each with the domain and keeps those matching re. The result is
// deduplicated and sorted, so repeated calls with the same inputs
// return the same list.
//
// An empty name, an empty domain or a domain without a dot yields nil.
func Generate(firstName, lastName, domain string, re *regexp.Regexp) []string {
	if firstName == "" || lastName == "" || domain == "" || !strings.Contains(domain, ".") {
		return nil
	}

	first := sanitizeNamePart(firstName)
	last := sanitizeNamePart(lastName)
	if first == "" || last == "" {
		return nil
	}

	fi := firstRune(first)
	li := firstRune(last)

	shapes := []string{
		first,              // john
		first + "." + last, // john.doe
		first + last,       // johndoe
		last + "." + first, // doe.john
		last + first,       // doejohn
		fi + last,          // jdoe
		fi + "." + last,    // j.doe
		first + li,         // johnd
		first + "." + li,   // john.d
		first + "_" + last, // john_doe
		first + "-" + last, // john-doe
		last + "_" + first, // doe_john
		last + "-" + first, // doe-john
	}
	if len([]rune(first)) >= 3 {
		shapes = append(shapes, runePrefix(first, 3)+last) // johdoe
	}
	if len([]rune(last)) >= 3 {
		shapes = append(shapes, first+runePrefix(last, 3)) // johndoe
	}

	seen := make(map[string]struct{}, len(shapes))
	emails := make([]string, 0, len(shapes))
	for _, local := range shapes {
		if local == "" {
			continue
		}
		email := local + "@" + domain
		if _, dup := seen[email]; dup {
			continue
		}
		if !parse.MatchesRegex(re, email) {
			continue
		}
		seen[email] = struct{}{}
		emails = append(emails, email)
	}

	sort.Strings(emails)
	return emails
}
