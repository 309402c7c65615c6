package mailbeacon_test

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mailbeacon "github.com/bl4ckh4nd/MailBeacon"
	"github.com/bl4ckh4nd/MailBeacon/config"
	"github.com/bl4ckh4nd/MailBeacon/dnsx"
	"github.com/bl4ckh4nd/MailBeacon/scrape"
	"github.com/bl4ckh4nd/MailBeacon/types"
	"github.com/bl4ckh4nd/MailBeacon/verifier"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.MinSleep = 0
	cfg.MaxSleep = 0
	return cfg
}

type fakeScraper struct {
	emails []string
	err    error

	mu      sync.Mutex
	lastURL string
}

func (f *fakeScraper) Scrape(_ context.Context, siteURL string) ([]string, error) {
	f.mu.Lock()
	f.lastURL = siteURL
	f.mu.Unlock()
	return f.emails, f.err
}

func (f *fakeScraper) scrapedURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastURL
}

type fakeVerifier struct {
	outcomes map[string]verifier.Outcome
	fallback verifier.Outcome

	mu     sync.Mutex
	probed []string
}

func (f *fakeVerifier) Verify(_ context.Context, email string) verifier.Outcome {
	f.mu.Lock()
	f.probed = append(f.probed, email)
	f.mu.Unlock()
	if out, ok := f.outcomes[email]; ok {
		return out
	}
	return f.fallback
}

func (f *fakeVerifier) probedEmails() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.probed...)
}

func verifiedOutcome() verifier.Outcome {
	return verifier.Outcome{Status: types.StatusVerified, Message: "SMTP Verification OK: 250 2.1.5 Ok"}
}

func rejectedOutcome() verifier.Outcome {
	return verifier.Outcome{Status: types.StatusRejected, Message: "SMTP Rejected (User Likely Unknown): 550 5.1.1 User unknown"}
}

func inconclusiveOutcome() verifier.Outcome {
	return verifier.Outcome{Status: types.StatusInconclusive, Message: "SMTP Temp Failure/Greylisted? (4xx): 451 try again later"}
}

func catchAllOutcome() verifier.Outcome {
	return verifier.Outcome{
		Status:     types.StatusInconclusive,
		Message:    "SMTP accepted (Possible Catch-All): 250 2.1.5 Ok",
		IsCatchAll: true,
	}
}

func dnsSkippedOutcome() verifier.Outcome {
	return verifier.Outcome{
		Status:  types.StatusInconclusive,
		Message: "SMTP check skipped (DNS lookup failed)",
		Skipped: true,
	}
}

func TestDiscover_VerifiedPatternSelected(t *testing.T) {
	fv := &fakeVerifier{
		outcomes: map[string]verifier.Outcome{"john.doe@example.com": verifiedOutcome()},
		fallback: rejectedOutcome(),
	}
	b := mailbeacon.New(testConfig()).WithVerifier(fv)

	res, err := b.Discover(context.Background(), "John", "Doe", "example.com", "https://example.com")
	require.NoError(t, err)

	assert.Equal(t, "john.doe@example.com", res.MostLikelyEmail)
	assert.Equal(t, 9, res.ConfidenceScore)

	sel, ok := res.Selected()
	require.True(t, ok)
	assert.False(t, sel.IsGeneric)
	assert.Equal(t, types.StatusVerified, sel.VerificationStatus)
	assert.Equal(t, types.SourcePattern, sel.Source)

	assert.True(t, res.UsedMethod(mailbeacon.MethodPatternGeneration))
	assert.True(t, res.UsedMethod(mailbeacon.MethodSMTPVerification))
	assert.False(t, res.UsedMethod(mailbeacon.MethodWebsiteScraping))

	// Everything else was rejected outright, so only the verified hit
	// survives with positive confidence.
	assert.Len(t, res.FoundEmails, 1)
	assert.Contains(t, fv.probedEmails(), "john.doe@example.com")
	assert.Contains(t, res.VerificationLog["john.doe@example.com"], "(Took ")
}

func TestDiscover_CatchAllDomain(t *testing.T) {
	fv := &fakeVerifier{fallback: catchAllOutcome()}
	b := mailbeacon.New(testConfig()).WithVerifier(fv)

	res, err := b.Discover(context.Background(), "John", "Doe", "example.com", "https://example.com")
	require.NoError(t, err)

	// A catch-all domain gives no boost: all candidates stay at their base
	// score and none may be classified verified.
	require.NotEmpty(t, res.FoundEmails)
	for _, e := range res.FoundEmails {
		assert.Equal(t, types.StatusInconclusive, e.VerificationStatus, e.Email)
		assert.Equal(t, 4, e.Confidence, e.Email)
	}
	assert.NotEmpty(t, res.MostLikelyEmail)
	assert.Equal(t, 4, res.ConfidenceScore)
}

func TestDiscover_DNSFailureSkipsVerification(t *testing.T) {
	fv := &fakeVerifier{fallback: dnsSkippedOutcome()}
	b := mailbeacon.New(testConfig()).WithVerifier(fv)

	res, err := b.Discover(context.Background(), "John", "Doe", "nxdomain.test", "https://nxdomain.test")
	require.NoError(t, err)

	// Candidates are still generated and scored from patterns alone; the
	// skipped probe counts as plain inconclusive evidence.
	assert.True(t, res.UsedMethod(mailbeacon.MethodPatternGeneration))
	assert.False(t, res.UsedMethod(mailbeacon.MethodSMTPVerification))
	require.NotEmpty(t, res.MostLikelyEmail)
	assert.Equal(t, 5, res.ConfidenceScore)

	sel, ok := res.Selected()
	require.True(t, ok)
	assert.Equal(t, "SMTP check skipped (DNS lookup failed)", sel.VerificationMessage)
}

func TestDiscover_ScrapedNonGenericBeatsGeneric(t *testing.T) {
	fs := &fakeScraper{emails: []string{"info@acme.com", "j.smith@acme.com"}}
	fv := &fakeVerifier{fallback: inconclusiveOutcome()}
	b := mailbeacon.New(testConfig()).WithScraper(fs).WithVerifier(fv)

	res, err := b.Discover(context.Background(), "Jane", "Smith", "acme.com", "https://acme.com")
	require.NoError(t, err)

	assert.Equal(t, "https://acme.com", fs.scrapedURL())
	assert.Equal(t, "j.smith@acme.com", res.MostLikelyEmail)
	assert.Equal(t, 10, res.ConfidenceScore)

	require.NotEmpty(t, res.FoundEmails)
	top := res.FoundEmails[0]
	assert.Equal(t, "j.smith@acme.com", top.Email)
	assert.Equal(t, types.SourceScraped, top.Source)
	assert.False(t, top.IsGeneric)

	var generic *types.FoundEmail
	for i := range res.FoundEmails {
		if res.FoundEmails[i].Email == "info@acme.com" {
			generic = &res.FoundEmails[i]
		}
	}
	require.NotNil(t, generic, "generic scraped address should survive as an alternative")
	assert.True(t, generic.IsGeneric)
	assert.Equal(t, 1, generic.Confidence)

	assert.True(t, res.UsedMethod(mailbeacon.MethodWebsiteScraping))
	assert.True(t, res.UsedMethod(mailbeacon.MethodSMTPVerification))

	// Ranking is non-increasing in confidence.
	for i := 1; i < len(res.FoundEmails); i++ {
		assert.GreaterOrEqual(t, res.FoundEmails[i-1].Confidence, res.FoundEmails[i].Confidence)
	}
}

func TestDiscover_VerifiedGenericClearsGenericThreshold(t *testing.T) {
	fs := &fakeScraper{emails: []string{"info@acme.com"}}
	fv := &fakeVerifier{
		outcomes: map[string]verifier.Outcome{"info@acme.com": verifiedOutcome()},
		fallback: rejectedOutcome(),
	}
	b := mailbeacon.New(testConfig()).WithScraper(fs).WithVerifier(fv)

	res, err := b.Discover(context.Background(), "Info", "Desk", "acme.com", "https://acme.com")
	require.NoError(t, err)

	// Pattern and scraped evidence merge on the generic address (3+5+1,
	// penalized to 4) and verification adds 5. At 9 the generic top clears
	// the base threshold and the stricter generic threshold, so it wins
	// even with no non-generic survivor.
	require.Len(t, res.FoundEmails, 1)
	assert.Equal(t, "info@acme.com", res.MostLikelyEmail)
	assert.Equal(t, 9, res.ConfidenceScore)

	sel, ok := res.Selected()
	require.True(t, ok)
	assert.True(t, sel.IsGeneric)
	assert.Equal(t, types.StatusVerified, sel.VerificationStatus)
}

func TestDiscover_GenericBelowGenericThresholdUnselected(t *testing.T) {
	fs := &fakeScraper{emails: []string{"info@acme.com"}}
	fv := &fakeVerifier{
		outcomes: map[string]verifier.Outcome{"info@acme.com": inconclusiveOutcome()},
		fallback: rejectedOutcome(),
	}
	b := mailbeacon.New(testConfig()).WithScraper(fs).WithVerifier(fv)

	res, err := b.Discover(context.Background(), "Info", "Desk", "acme.com", "https://acme.com")
	require.NoError(t, err)

	// The same generic top lands at 5: past the base threshold but short
	// of the generic one, so it ranks first yet nothing is selected.
	require.NotEmpty(t, res.FoundEmails)
	top := res.FoundEmails[0]
	assert.Equal(t, "info@acme.com", top.Email)
	assert.True(t, top.IsGeneric)
	assert.Equal(t, 5, top.Confidence)

	assert.Empty(t, res.MostLikelyEmail)
	assert.Equal(t, 0, res.ConfidenceScore)
	_, ok := res.Selected()
	assert.False(t, ok)
}

func TestDiscover_DedupMergesPatternAndScrapedEvidence(t *testing.T) {
	fs := &fakeScraper{emails: []string{"John.Doe@Example.com"}}
	fv := &fakeVerifier{fallback: inconclusiveOutcome()}
	b := mailbeacon.New(testConfig()).WithScraper(fs).WithVerifier(fv)

	res, err := b.Discover(context.Background(), "John", "Doe", "example.com", "https://example.com")
	require.NoError(t, err)

	count := 0
	var merged types.FoundEmail
	for _, e := range res.FoundEmails {
		if e.Email == "john.doe@example.com" {
			count++
			merged = e
		}
	}
	require.Equal(t, 1, count, "case-insensitive duplicate must collapse to one candidate")
	assert.Equal(t, types.SourceScraped, merged.Source)
	// Pattern and scraped evidence both count: 3+5+1, inconclusive +1.
	assert.Equal(t, 10, merged.Confidence)
	assert.Equal(t, "john.doe@example.com", res.MostLikelyEmail)
}

func TestDiscover_OffDomainCandidatesFiltered(t *testing.T) {
	fs := &fakeScraper{emails: []string{"jane@other.com", "support@partner.de"}}
	fv := &fakeVerifier{fallback: inconclusiveOutcome()}
	b := mailbeacon.New(testConfig()).WithScraper(fs).WithVerifier(fv)

	res, err := b.Discover(context.Background(), "Jane", "Smith", "acme.com", "https://acme.com")
	require.NoError(t, err)

	var sawOffDomain, sawGeneric bool
	for _, e := range res.FoundEmails {
		if e.Email == "jane@other.com" {
			sawOffDomain = true
		}
		if e.Email == "support@partner.de" {
			sawGeneric = true
		}
	}
	assert.False(t, sawOffDomain, "off-domain non-generic address must be dropped")
	assert.True(t, sawGeneric, "off-domain generic role address is kept")
	assert.NotEqual(t, "support@partner.de", res.MostLikelyEmail)
}

func TestDiscover_MalformedScrapedAddressRejected(t *testing.T) {
	cfg := testConfig()
	fs := &fakeScraper{emails: []string{"bad@@acme.com"}}
	b := mailbeacon.New(cfg).WithScraper(fs)

	res, err := b.Discover(context.Background(), "Jane", "Smith", "acme.com", "https://acme.com")
	require.NoError(t, err)

	for _, e := range res.FoundEmails {
		assert.NotEqual(t, "bad@@acme.com", e.Email)
		assert.True(t, cfg.EmailRegex().MatchString(e.Email), e.Email)
	}
	_, logged := res.VerificationLog["bad@@acme.com"]
	assert.False(t, logged, "rejected formats are not assessed at all")
}

func TestDiscover_DomainlessScrapedTokenSkipped(t *testing.T) {
	t.Setenv("MAILBEACON_EMAIL_REGEX_PATTERN", `[a-z][a-z.]*`)
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	cfg.MinSleep = 0
	cfg.MaxSleep = 0

	// The permissive pattern lets the scraper hand back a bare generic
	// token with no '@' at all.
	fs := &fakeScraper{emails: []string{"contact"}}
	b := mailbeacon.New(cfg).WithScraper(fs)

	res, err := b.Discover(context.Background(), "Jane", "Smith", "acme.com", "https://acme.com")
	require.NoError(t, err)

	for _, e := range res.FoundEmails {
		assert.NotEqual(t, "contact", e.Email)
	}
	_, logged := res.VerificationLog["contact"]
	assert.False(t, logged, "a token without a domain is never assessed")
	assert.NotEmpty(t, res.FoundEmails, "patterns still carry the discovery")
}

func TestDiscover_NoVerifierWired(t *testing.T) {
	b := mailbeacon.New(testConfig())

	res, err := b.Discover(context.Background(), "John", "Doe", "example.com", "https://example.com")
	require.NoError(t, err)

	assert.False(t, res.UsedMethod(mailbeacon.MethodSMTPVerification))
	require.NotEmpty(t, res.MostLikelyEmail)
	assert.Equal(t, 4, res.ConfidenceScore)
	for _, e := range res.FoundEmails {
		assert.Equal(t, "Verification not attempted", e.VerificationMessage)
	}
}

func TestDiscover_ScrapeFailureIsNonFatal(t *testing.T) {
	fs := &fakeScraper{err: types.NewError(types.KindHTTPRequest, "failed to scrape any pages for acme.com")}
	fv := &fakeVerifier{fallback: inconclusiveOutcome()}
	b := mailbeacon.New(testConfig()).WithScraper(fs).WithVerifier(fv)

	res, err := b.Discover(context.Background(), "Jane", "Smith", "acme.com", "https://acme.com")
	require.NoError(t, err)

	assert.Contains(t, res.VerificationLog["scraping_error"], "Scraping failed:")
	assert.False(t, res.UsedMethod(mailbeacon.MethodWebsiteScraping))
	assert.NotEmpty(t, res.FoundEmails, "patterns still carry the discovery")
}

func TestDiscover_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := mailbeacon.New(testConfig())
	res, err := b.Discover(ctx, "John", "Doe", "example.com", "https://example.com")
	require.Error(t, err)
	assert.True(t, mailbeacon.IsKind(err, mailbeacon.KindTask))
	assert.Nil(t, res)
}

func TestBaseConfidence(t *testing.T) {
	tests := []struct {
		name string
		cand types.Candidate
		want int
	}{
		{"pattern with name", types.Candidate{IsPattern: true, NameInLocal: true, MatchesPrimaryDomain: true}, 4},
		{"scraped with name", types.Candidate{IsScraped: true, NameInLocal: true, MatchesPrimaryDomain: true}, 6},
		{"scraped without name", types.Candidate{IsScraped: true, MatchesPrimaryDomain: true}, 3},
		{"pattern without name", types.Candidate{IsPattern: true, MatchesPrimaryDomain: true}, 2},
		{"pattern and scraped with name", types.Candidate{IsPattern: true, IsScraped: true, NameInLocal: true, MatchesPrimaryDomain: true}, 9},
		{"off-domain scraped", types.Candidate{IsScraped: true, NameInLocal: true}, 5},
		{"generic with name floors at one", types.Candidate{IsPattern: true, NameInLocal: true, MatchesPrimaryDomain: true, IsGeneric: true}, 1},
		{"generic without name penalized", types.Candidate{IsScraped: true, MatchesPrimaryDomain: true, IsGeneric: true}, 1},
		{"generic without name below cutoff unpenalized", types.Candidate{IsPattern: true, MatchesPrimaryDomain: true, IsGeneric: true}, 2},
		{"no evidence", types.Candidate{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mailbeacon.BaseConfidence(tt.cand))
		})
	}
}

func TestBaseConfidence_GenericPenaltyIsStrict(t *testing.T) {
	full := types.Candidate{IsPattern: true, IsScraped: true, NameInLocal: true, MatchesPrimaryDomain: true}
	generic := full
	generic.IsGeneric = true

	assert.Less(t, mailbeacon.BaseConfidence(generic), mailbeacon.BaseConfidence(full))
}

// Full pipeline against real collaborators: an in-process web server for
// scraping, a stubbed DNS exchange and a scripted SMTP conversation.
func TestDiscover_FullStack(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body>
			<p>Reach our team at <a href="mailto:j.smith@acme.test">Jane</a></p>
			<p>General inquiries: info@acme.test</p>
		</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig()
	scraper := scrape.New(scrape.Config{
		CommonPages: []string{},
		Client: &http.Client{
			Transport: rewriteTransport{host: strings.TrimPrefix(srv.URL, "http://")},
			Timeout:   5 * time.Second,
		},
	})

	resolver := dnsx.NewWithExchange(
		dnsx.Config{Servers: []string{"ns.test:53"}, Timeout: time.Second},
		func(_ context.Context, m *dns.Msg, _ string) (*dns.Msg, error) {
			resp := new(dns.Msg)
			resp.SetReply(m)
			if m.Question[0].Qtype == dns.TypeMX {
				resp.Answer = append(resp.Answer, &dns.MX{
					Hdr:        dns.RR_Header{Name: m.Question[0].Name, Rrtype: dns.TypeMX, Class: dns.ClassINET, Ttl: 300},
					Preference: 10,
					Mx:         "mx.acme.test.",
				})
			}
			return resp, nil
		},
	)

	verify := verifier.New(verifier.Config{
		HeloDomain: "probe.test",
		MailFrom:   "verify@probe.test",
		Timeout:    2 * time.Second,
		Dial:       smtpAcceptOnly(t, "RCPT TO:<j.smith@acme.test>"),
	}, resolver)

	b := mailbeacon.New(cfg).WithScraper(scraper).WithVerifier(verify)
	res, err := b.Discover(context.Background(), "Jane", "Smith", "acme.test", "https://acme.test")
	require.NoError(t, err)

	assert.Equal(t, "j.smith@acme.test", res.MostLikelyEmail)
	assert.Equal(t, 10, res.ConfidenceScore)

	sel, ok := res.Selected()
	require.True(t, ok)
	assert.Equal(t, types.StatusVerified, sel.VerificationStatus)
	assert.Contains(t, sel.VerificationMessage, "SMTP Verification OK")

	assert.True(t, res.UsedMethod(mailbeacon.MethodPatternGeneration))
	assert.True(t, res.UsedMethod(mailbeacon.MethodWebsiteScraping))
	assert.True(t, res.UsedMethod(mailbeacon.MethodSMTPVerification))

	var generic bool
	for _, e := range res.FoundEmails {
		if e.Email == "info@acme.test" && e.IsGeneric {
			generic = true
		}
	}
	assert.True(t, generic, "generic scraped address should appear in the ranked list")
}

// rewriteTransport sends every request to a fixed local host, keeping the
// path, so tests can scrape a made-up domain.
type rewriteTransport struct {
	host string
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = "http"
	r.URL.Host = t.host
	return http.DefaultTransport.RoundTrip(r)
}

// smtpAcceptOnly dials an in-process SMTP server that accepts RCPT commands
// with the given prefix and rejects every other recipient with 550.
func smtpAcceptOnly(t *testing.T, acceptPrefix string) func(network, address string, timeout time.Duration) (net.Conn, error) {
	t.Helper()
	return func(_, _ string, _ time.Duration) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			defer server.Close()
			fmt.Fprint(server, "220 mx.acme.test ESMTP\r\n")
			r := bufio.NewReader(server)
			for {
				line, err := r.ReadString('\n')
				if err != nil {
					return
				}
				switch {
				case strings.HasPrefix(line, "EHLO"):
					fmt.Fprint(server, "250 mx.acme.test\r\n")
				case strings.HasPrefix(line, "MAIL FROM"):
					fmt.Fprint(server, "250 2.1.0 Ok\r\n")
				case strings.HasPrefix(line, acceptPrefix):
					fmt.Fprint(server, "250 2.1.5 Ok\r\n")
				case strings.HasPrefix(line, "RCPT TO"):
					fmt.Fprint(server, "550 5.1.1 User unknown\r\n")
				case strings.HasPrefix(line, "QUIT"):
					fmt.Fprint(server, "221 Bye\r\n")
					return
				default:
					fmt.Fprint(server, "250 Ok\r\n")
				}
			}
		}()
		return client, nil
	}
}
