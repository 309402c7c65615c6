// Package extract pulls email addresses out of free text and HTML
// documents.
package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bl4ckh4nd/MailBeacon/internal/parse"
	"github.com/bl4ckh4nd/MailBeacon/types"
)

// DefaultEmailPattern matches addresses as they appear in page text. The
// stray pipe inside the final character class is redundant but harmless.
const DefaultEmailPattern = `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`

// DefaultEmailRegex is the compiled DefaultEmailPattern.
var DefaultEmailRegex = regexp.MustCompile(DefaultEmailPattern)

// FromText returns the unique addresses in text that match re,
// lowercased and sorted.
func FromText(text string, re *regexp.Regexp) []string {
	if text == "" {
		return nil
	}

	seen := make(map[string]struct{})
	for _, m := range re.FindAllString(text, -1) {
		seen[strings.ToLower(m)] = struct{}{}
	}
	return sortedKeys(seen)
}

// FromHTML extracts addresses from an HTML document: the targets of
// mailto links, plus everything re finds in the visible text. Script
// and style subtrees are excluded from the text pass. The result is
// lowercased, deduplicated and sorted.
func FromHTML(htmlContent, pageURL string, re *regexp.Regexp) ([]string, error) {
	if htmlContent == "" {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, types.WrapError(types.KindHTMLParse, fmt.Sprintf("error parsing HTML from %s", pageURL), err)
	}

	found := make(map[string]struct{})

	doc.Find("a[href^='mailto:']").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.Index(addr, "?"); i >= 0 {
			addr = addr[:i]
		}
		addr = strings.TrimSpace(addr)
		if addr == "" || !parse.MatchesRegex(re, addr) {
			return
		}
		found[strings.ToLower(addr)] = struct{}{}
	})

	// Script and style bodies routinely contain address-shaped strings
	// that were never published as contacts.
	doc.Find("script, style").Remove()

	var text string
	if body := doc.Find("body"); body.Length() > 0 {
		text = body.Text()
	} else {
		text = doc.Text()
	}
	for _, addr := range FromText(text, re) {
		found[addr] = struct{}{}
	}

	return sortedKeys(found), nil
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
