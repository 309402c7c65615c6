package mailbeacon

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bl4ckh4nd/MailBeacon/config"
	"github.com/bl4ckh4nd/MailBeacon/dnsx"
	"github.com/bl4ckh4nd/MailBeacon/extract"
	"github.com/bl4ckh4nd/MailBeacon/internal/delay"
	"github.com/bl4ckh4nd/MailBeacon/internal/parse"
	"github.com/bl4ckh4nd/MailBeacon/pattern"
	"github.com/bl4ckh4nd/MailBeacon/scrape"
	"github.com/bl4ckh4nd/MailBeacon/types"
	"github.com/bl4ckh4nd/MailBeacon/verifier"
)

// SiteScraper harvests email addresses published on a website.
// *scrape.Scraper is the production implementation.
type SiteScraper interface {
	Scrape(ctx context.Context, siteURL string) ([]string, error)
}

// EmailVerifier probes a single address against its domain's mail
// exchanger. *verifier.Verifier is the production implementation.
type EmailVerifier interface {
	Verify(ctx context.Context, email string) verifier.Outcome
}

// Beacon orchestrates one discovery: pattern synthesis, website scraping,
// per-candidate scoring with optional SMTP verification, and selection of
// the most likely address. A Beacon holds no per-request state and is safe
// for concurrent use.
type Beacon struct {
	cfg      *config.Config
	scraper  SiteScraper
	verifier EmailVerifier
	log      zerolog.Logger
	generics map[string]struct{}
}

// New creates a Beacon without collaborators; discovery then runs on
// synthesized patterns alone. Wire scraping and verification with
// WithScraper and WithVerifier, or use NewFromConfig for the full pipeline.
// A nil cfg means config.Default().
func New(cfg *config.Config) *Beacon {
	if cfg == nil {
		cfg = config.Default()
	}
	generics := make(map[string]struct{}, len(cfg.GenericPrefixes))
	for _, p := range cfg.GenericPrefixes {
		generics[strings.ToLower(p)] = struct{}{}
	}
	return &Beacon{cfg: cfg, generics: generics}
}

// NewFromConfig wires the full production pipeline from cfg: a DNS
// resolver behind a TTL cache, the website scraper and the SMTP verifier.
func NewFromConfig(cfg *config.Config, log zerolog.Logger) *Beacon {
	if cfg == nil {
		cfg = config.Default()
	}
	resolver := dnsx.New(dnsx.Config{
		Servers: cfg.DNSServers,
		Timeout: cfg.DNSTimeout,
		Logger:  log,
	})
	// The cache runs lookups detached from the caller; its budget must
	// cover a failover sweep across all configured servers.
	cache := dnsx.NewCache(5*cfg.DNSTimeout, cfg.DNSCacheTTL, resolver)

	v := verifier.New(verifier.Config{
		HeloDomain:  cfg.HeloDomain,
		MailFrom:    cfg.SenderEmail,
		Timeout:     cfg.SMTPTimeout,
		MaxAttempts: cfg.MaxVerificationAttempts,
		MinSleep:    cfg.MinSleep,
		MaxSleep:    cfg.MaxSleep,
		Logger:      log,
	}, cache)

	s := scrape.New(scrape.Config{
		UserAgent:    cfg.UserAgent,
		Timeout:      cfg.RequestTimeout,
		MaxRedirects: cfg.MaxRedirects,
		CommonPages:  cfg.CommonPages,
		MinSleep:     cfg.MinSleep,
		EmailRegex:   cfg.EmailRegex(),
		Logger:       log,
	})

	return New(cfg).WithLogger(log).WithScraper(s).WithVerifier(v)
}

// WithScraper sets the website scraper used for evidence collection.
func (b *Beacon) WithScraper(s SiteScraper) *Beacon {
	b.scraper = s
	return b
}

// WithVerifier sets the SMTP verifier used to probe candidates.
func (b *Beacon) WithVerifier(v EmailVerifier) *Beacon {
	b.verifier = v
	return b
}

// WithLogger sets the logger for discovery progress.
func (b *Beacon) WithLogger(log zerolog.Logger) *Beacon {
	b.log = log
	return b
}

// BaseConfidence computes the pre-verification score for a candidate from
// its provenance flags. Name-bearing evidence scores highest, scraped
// evidence outranks synthesized patterns, a matching domain adds one, and
// generic role prefixes are penalized down to a floor of one.
func BaseConfidence(c types.Candidate) int {
	conf := 0
	if c.IsPattern && c.NameInLocal {
		conf += 3
	}
	if c.IsScraped && c.NameInLocal {
		conf += 5
	}
	if c.IsScraped && !c.NameInLocal {
		conf += 2
	}
	if c.IsPattern && !c.NameInLocal {
		conf += 1
	}
	if c.MatchesPrimaryDomain {
		conf++
	}
	if c.IsGeneric {
		if c.NameInLocal && conf > 1 {
			conf = max(1, conf-5)
		} else if !c.NameInLocal && conf > 2 {
			conf = max(1, conf-2)
		}
	}
	return conf
}

// Discover runs the full pipeline for one contact. firstName and lastName
// are the resolved name parts, domain the normalized bare domain and
// siteURL the normalized website URL; the Processor prepares all four from
// raw input. Scrape failures and mail-server quirks never abort a
// discovery, they only reduce the available evidence. The returned error
// is limited to cancellation and internal failures.
func (b *Beacon) Discover(ctx context.Context, firstName, lastName, domain, siteURL string) (*Result, error) {
	start := time.Now()
	first := strings.ToLower(strings.TrimSpace(firstName))
	last := strings.ToLower(strings.TrimSpace(lastName))
	domain = strings.ToLower(strings.TrimSpace(domain))

	b.log.Info().
		Str("first_name", first).
		Str("last_name", last).
		Str("domain", domain).
		Str("website", siteURL).
		Msg("finding email")

	if err := ctx.Err(); err != nil {
		return nil, types.WrapError(types.KindTask, "discovery cancelled", err)
	}

	re := b.cfg.EmailRegex()
	if re == nil {
		re = extract.DefaultEmailRegex
	}

	result := &Result{
		FoundEmails:     []types.FoundEmail{},
		MethodsUsed:     []string{},
		VerificationLog: map[string]string{},
	}

	patterns := pattern.Generate(first, last, domain, re)
	if len(patterns) > 0 {
		result.markMethod(types.MethodPatternGeneration)
	}
	b.log.Debug().Int("patterns", len(patterns)).Msg("pattern generation finished")

	// Scraping is best effort: failures downgrade to an absence of scraped
	// evidence. Off-domain scraped addresses are kept only when generic,
	// since role addresses on a sister domain are still plausible contact
	// points.
	var scraped []string
	if b.scraper != nil {
		raw, err := b.scraper.Scrape(ctx, siteURL)
		if err != nil {
			b.log.Warn().Err(err).Str("website", siteURL).Msg("website scraping failed, proceeding without scraped emails")
			result.VerificationLog["scraping_error"] = fmt.Sprintf("Scraping failed: %v", err)
		}
		for _, email := range raw {
			email = strings.ToLower(email)
			if strings.HasSuffix(email, "@"+domain) || b.isGeneric(email) {
				scraped = append(scraped, email)
			}
		}
		if len(scraped) > 0 {
			result.markMethod(types.MethodWebsiteScraping)
			b.log.Info().Int("count", len(scraped)).Msg("found relevant emails via scraping")
		}
	}

	ordered := orderCandidates(patterns, scraped, first, last)
	b.log.Info().Int("candidates", len(ordered)).Msg("unique candidates to assess")

	patternSet := make(map[string]struct{}, len(patterns))
	for _, p := range patterns {
		patternSet[p] = struct{}{}
	}
	scrapedSet := make(map[string]struct{}, len(scraped))
	for _, s := range scraped {
		scrapedSet[s] = struct{}{}
	}

	for _, email := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, types.WrapError(types.KindTask, "discovery cancelled", err)
		}
		if !parse.MatchesRegex(re, email) {
			b.log.Warn().Str("email", email).Msg("skipping invalid candidate format")
			continue
		}

		// The default pattern requires an '@', but a custom one may not;
		// a domainless token has nothing to score.
		at := strings.IndexByte(email, '@')
		if at < 0 {
			b.log.Warn().Str("email", email).Msg("skipping candidate without a domain part")
			continue
		}
		local, emailDomain := email[:at], email[at+1:]

		_, isPattern := patternSet[email]
		_, isScraped := scrapedSet[email]
		cand := types.Candidate{
			Email:                email,
			IsPattern:            isPattern,
			IsScraped:            isScraped,
			IsGeneric:            b.isGeneric(email),
			MatchesPrimaryDomain: emailDomain == domain,
			NameInLocal:          strings.Contains(local, first) || strings.Contains(local, last),
		}
		if !cand.MatchesPrimaryDomain && !(cand.IsScraped && cand.IsGeneric) {
			b.log.Debug().Str("email", email).Str("domain", emailDomain).Msg("skipping off-domain candidate")
			continue
		}

		conf := BaseConfidence(cand)
		b.log.Debug().
			Str("email", email).
			Int("confidence", conf).
			Bool("pattern", cand.IsPattern).
			Bool("scraped", cand.IsScraped).
			Bool("generic", cand.IsGeneric).
			Bool("name_in_local", cand.NameInLocal).
			Msg("base confidence")

		verStatus := types.StatusInconclusive
		verMessage := "Verification not attempted"
		catchAll := false

		shouldVerify := conf >= 3 || (cand.IsScraped && cand.NameInLocal && conf > 1)
		probeStart := time.Now()
		if shouldVerify && b.verifier != nil {
			out := b.verifier.Verify(ctx, email)
			verStatus = out.Status
			verMessage = out.Message
			catchAll = out.IsCatchAll
			if !out.Skipped {
				result.markMethod(types.MethodSMTPVerification)
			}
			switch out.Status {
			case types.StatusVerified:
				conf += 5
			case types.StatusRejected:
				conf = 0
			default:
				if !catchAll {
					conf++
				}
			}
		} else if !shouldVerify {
			verMessage = "Verification skipped (low initial confidence)"
		}
		result.VerificationLog[email] = fmt.Sprintf("%s (Took %.2fs)", verMessage, time.Since(probeStart).Seconds())

		if final := min(10, max(0, conf)); final > 0 {
			source := types.SourcePattern
			if cand.IsScraped {
				source = types.SourceScraped
			}
			result.FoundEmails = append(result.FoundEmails, types.FoundEmail{
				Email:               email,
				Confidence:          final,
				Source:              source,
				IsGeneric:           cand.IsGeneric,
				VerificationStatus:  verStatus,
				VerificationMessage: verMessage,
			})
		} else {
			b.log.Debug().Str("email", email).Msg("discarding candidate with zero final confidence")
		}

		if err := delay.Sleep(ctx, b.cfg.MinSleep, b.cfg.MaxSleep); err != nil {
			return nil, types.WrapError(types.KindTask, "discovery cancelled", err)
		}
	}

	rankFound(result.FoundEmails)
	b.selectBest(result)

	b.log.Info().
		Str("most_likely", result.MostLikelyEmail).
		Int("found", len(result.FoundEmails)).
		Dur("elapsed", time.Since(start)).
		Msg("discovery finished")
	return result, nil
}

// orderCandidates merges patterns and scraped addresses into the assessment
// order: name-bearing candidates first (patterns, then scraped), the rest
// after, deduplicated case-insensitively keeping the first occurrence.
func orderCandidates(patterns, scraped []string, first, last string) []string {
	nameBearing := func(email string) bool {
		local := email
		if i := strings.IndexByte(email, '@'); i >= 0 {
			local = email[:i]
		}
		return strings.Contains(local, first) || strings.Contains(local, last)
	}

	var named, other []string
	for _, p := range patterns {
		if nameBearing(p) {
			named = append(named, p)
		} else {
			other = append(other, p)
		}
	}
	for _, s := range scraped {
		if nameBearing(s) {
			named = append(named, s)
		} else {
			other = append(other, s)
		}
	}

	seen := make(map[string]struct{}, len(named)+len(other))
	ordered := make([]string, 0, len(named)+len(other))
	for _, email := range append(named, other...) {
		email = strings.ToLower(email)
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		ordered = append(ordered, email)
	}
	return ordered
}

// rankFound sorts by confidence descending, non-generic before generic,
// scraped before pattern.
func rankFound(found []types.FoundEmail) {
	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.IsGeneric != b.IsGeneric {
			return !a.IsGeneric
		}
		aScraped := a.Source == types.SourceScraped
		bScraped := b.Source == types.SourceScraped
		if aScraped != bScraped {
			return aScraped
		}
		return false
	})
}

// selectBest applies the two-stage selection rule: the first non-generic
// survivor at or above the confidence threshold wins; otherwise the top
// survivor is taken when it clears the threshold and, if generic, also the
// stricter generic threshold.
func (b *Beacon) selectBest(result *Result) {
	for _, e := range result.FoundEmails {
		if !e.IsGeneric && e.Confidence >= b.cfg.ConfidenceThreshold {
			result.MostLikelyEmail = e.Email
			result.ConfidenceScore = e.Confidence
			b.log.Info().Str("email", e.Email).Int("confidence", e.Confidence).Msg("selected best non-generic candidate")
			return
		}
	}
	if len(result.FoundEmails) == 0 {
		b.log.Info().Msg("no candidates with positive confidence")
		return
	}
	top := result.FoundEmails[0]
	if top.Confidence >= b.cfg.ConfidenceThreshold &&
		(!top.IsGeneric || top.Confidence >= b.cfg.GenericConfidenceThreshold) {
		result.MostLikelyEmail = top.Email
		result.ConfidenceScore = top.Confidence
		b.log.Info().Str("email", top.Email).Int("confidence", top.Confidence).Bool("generic", top.IsGeneric).Msg("selected top candidate")
		return
	}
	b.log.Info().Str("email", top.Email).Int("confidence", top.Confidence).Msg("top candidate below selection thresholds")
}

func (b *Beacon) isGeneric(email string) bool {
	local := strings.ToLower(email)
	if i := strings.IndexByte(local, '@'); i >= 0 {
		local = local[:i]
	}
	_, ok := b.generics[local]
	return ok
}
