// Package scrape harvests email addresses from a company website.
//
// A scrape visits the landing page and a fixed list of paths where contact
// addresses tend to live (/contact, /about, /team and so on). Individual
// page failures are tolerated; the scrape as a whole fails only when not a
// single page could be fetched.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"

	"github.com/bl4ckh4nd/MailBeacon/extract"
	"github.com/bl4ckh4nd/MailBeacon/internal/delay"
	"github.com/bl4ckh4nd/MailBeacon/internal/urlutil"
	"github.com/bl4ckh4nd/MailBeacon/types"
)

// DefaultUserAgent is a current desktop Chrome string; some sites refuse
// robotic agents outright.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36"

// DefaultCommonPages are the site paths most likely to carry contact
// addresses, including the German-language variants.
var DefaultCommonPages = []string{
	"/contact", "/contact-us", "/contactus", "/contact_us",
	"/about", "/about-us", "/aboutus", "/about_us",
	"/team", "/our-team", "/our_team", "/meet-the-team",
	"/people", "/staff", "/company", "/imprint",
	"/kontakt", "/impressum", "/ueber-uns", "/ueber_uns",
	"/karriere", "/datenschutz",
}

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxRedirects = 5

	// maxBodyBytes caps how much of a page is read.
	maxBodyBytes = 10 << 20
)

// Config controls Scraper behavior.
type Config struct {
	// UserAgent is sent on every request. Defaults to DefaultUserAgent.
	UserAgent string
	// Timeout bounds each page fetch.
	Timeout time.Duration
	// MaxRedirects caps redirect chains per page.
	MaxRedirects int
	// CommonPages are the paths tried in addition to the landing page.
	// nil means DefaultCommonPages; an empty slice means landing page only.
	CommonPages []string
	// MinSleep is the pause before each page fetch.
	MinSleep time.Duration
	// EmailRegex matches addresses in page text. Defaults to
	// extract.DefaultEmailRegex.
	EmailRegex *regexp.Regexp
	// Client overrides the HTTP client (for testing). When nil a client is
	// built from Timeout and MaxRedirects.
	Client *http.Client
	// Logger receives per-page traces. The zero value is silent.
	Logger zerolog.Logger
}

// Scraper fetches a site's likely contact pages and extracts addresses.
// It is safe for concurrent use.
type Scraper struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
}

// New creates a Scraper.
func New(cfg Config) *Scraper {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = defaultMaxRedirects
	}
	if cfg.CommonPages == nil {
		cfg.CommonPages = DefaultCommonPages
	}
	if cfg.EmailRegex == nil {
		cfg.EmailRegex = extract.DefaultEmailRegex
	}
	client := cfg.Client
	if client == nil {
		maxRedirects := cfg.MaxRedirects
		client = &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		}
	}
	return &Scraper{cfg: cfg, client: client, log: cfg.Logger}
}

// Scrape visits siteURL and its common contact pages and returns the unique
// addresses found, lowercased and sorted. Page-level failures (error status,
// non-HTML content, timeouts) are logged and skipped; an error is returned
// only when the input URL is unusable or no page at all could be fetched.
func (s *Scraper) Scrape(ctx context.Context, siteURL string) ([]string, error) {
	start := time.Now()

	base, err := urlutil.NormalizeURL(siteURL)
	if err != nil {
		return nil, err
	}
	baseU, err := url.Parse(base)
	if err != nil {
		return nil, types.WrapError(types.KindURLParse, fmt.Sprintf("invalid base URL for scraping: %s", siteURL), err)
	}
	siteHost := strings.TrimPrefix(baseU.Host, "www.")

	pages := s.pagePlan(baseU, siteHost)
	s.log.Debug().Str("site", base).Int("pages", len(pages)).Msg("starting scrape")

	found := make(map[string]struct{})
	var successful, failed int
	for _, pageURL := range pages {
		if err := delay.Sleep(ctx, s.cfg.MinSleep, s.cfg.MinSleep); err != nil {
			return nil, types.WrapError(types.KindTask, "scrape cancelled", err)
		}

		html, ok := s.fetchPage(ctx, pageURL)
		if !ok {
			failed++
			continue
		}
		emails, err := extract.FromHTML(html, pageURL, s.cfg.EmailRegex)
		if err != nil {
			s.log.Warn().Err(err).Str("url", pageURL).Msg("failed to parse page")
			failed++
			continue
		}
		successful++
		for _, e := range emails {
			found[e] = struct{}{}
		}
	}

	if successful == 0 && len(pages) > 0 {
		return nil, types.NewError(types.KindHTTPRequest,
			fmt.Sprintf("failed to scrape any pages for %s", base))
	}

	out := make([]string, 0, len(found))
	for e := range found {
		out = append(out, e)
	}
	sort.Strings(out)

	s.log.Info().
		Str("site", base).
		Int("attempted", len(pages)).
		Int("successful", successful).
		Int("failed", failed).
		Int("emails", len(out)).
		Dur("elapsed", time.Since(start)).
		Msg("scrape finished")
	return out, nil
}

// pagePlan returns the landing page followed by the configured common pages
// resolved against it, deduplicated. Pages that resolve onto a different
// domain are dropped.
func (s *Scraper) pagePlan(baseU *url.URL, siteHost string) []string {
	base := baseU.String()
	pages := make([]string, 0, 1+len(s.cfg.CommonPages))
	pages = append(pages, base)
	seen := map[string]struct{}{base: {}}

	for _, p := range s.cfg.CommonPages {
		ref, err := url.Parse(p)
		if err != nil {
			s.log.Warn().Err(err).Str("page", p).Msg("skipping unparseable page path")
			continue
		}
		full := baseU.ResolveReference(ref)
		if strings.TrimPrefix(full.Host, "www.") != siteHost {
			s.log.Debug().Str("url", full.String()).Msg("skipping page on a different domain")
			continue
		}
		fs := full.String()
		if _, ok := seen[fs]; ok {
			continue
		}
		seen[fs] = struct{}{}
		pages = append(pages, fs)
	}
	return pages
}

// fetchPage returns the page body, or ok=false when the page counts as
// failed: error status, non-HTML content, timeout or any transport error.
func (s *Scraper) fetchPage(ctx context.Context, pageURL string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("url", pageURL).Msg("building request failed")
		return "", false
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Str("url", pageURL).Msg("fetch failed")
		return "", false
	}
	defer resp.Body.Close()

	s.log.Debug().Str("url", pageURL).Int("status", resp.StatusCode).Msg("fetched page")
	if resp.StatusCode >= 400 {
		s.log.Warn().Str("url", pageURL).Int("status", resp.StatusCode).Msg("page returned error status")
		return "", false
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "html") {
		s.log.Debug().Str("url", pageURL).Str("content_type", contentType).Msg("skipping non-HTML content")
		return "", false
	}

	reader, err := charset.NewReader(resp.Body, contentType)
	if err != nil {
		s.log.Warn().Err(err).Str("url", pageURL).Msg("charset detection failed")
		return "", false
	}
	body, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes))
	if err != nil {
		s.log.Warn().Err(err).Str("url", pageURL).Msg("reading body failed")
		return "", false
	}
	return string(body), true
}
