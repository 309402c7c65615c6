// Package urlutil normalizes user-supplied website strings and extracts
// bare domains from them.
package urlutil

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bl4ckh4nd/MailBeacon/types"
)

// ensureScheme prepends https:// when the input carries no HTTP scheme,
// so bare domains like "example.com" parse with a host.
func ensureScheme(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}

// NormalizeURL turns a user-supplied website string into a fetchable URL.
// Bare domains get an https:// scheme. The input is returned as-is apart
// from the scheme; no path or query rewriting happens.
func NormalizeURL(raw string) (string, error) {
	if raw == "" {
		return "", types.NewError(types.KindInsufficientInput, "website URL is empty")
	}

	withScheme := ensureScheme(raw)

	u, err := url.Parse(withScheme)
	if err != nil {
		return "", types.WrapError(types.KindURLParse, fmt.Sprintf("failed to parse normalized URL %q", withScheme), err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", types.NewError(types.KindURLParse, fmt.Sprintf("invalid URL structure after normalization: %q", withScheme))
	}
	return withScheme, nil
}

// ExtractDomain extracts the lowercase bare domain from a URL or domain
// string: port and leading "www." stripped, no scheme.
func ExtractDomain(raw string) (string, error) {
	if raw == "" {
		return "", types.NewError(types.KindDomainExtraction, "input URL string is empty")
	}

	withScheme := ensureScheme(raw)

	u, err := url.Parse(withScheme)
	if err != nil {
		return "", types.WrapError(types.KindDomainExtraction, fmt.Sprintf("could not parse URL %q", withScheme), err)
	}

	host := u.Hostname()
	if host == "" {
		return "", types.NewError(types.KindDomainExtraction, fmt.Sprintf("could not extract host from URL %q", withScheme))
	}

	domain := strings.ToLower(strings.TrimPrefix(host, "www."))
	if domain == "" {
		return "", types.NewError(types.KindDomainExtraction, fmt.Sprintf("extracted domain is empty for URL %q", raw))
	}
	return domain, nil
}
