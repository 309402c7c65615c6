package mailbeacon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bl4ckh4nd/MailBeacon/internal/urlutil"
	"github.com/bl4ckh4nd/MailBeacon/types"
)

// ProcessingStatus summarizes how one contact fared.
type ProcessingStatus = string

const (
	StatusFound    ProcessingStatus = "found"
	StatusNotFound ProcessingStatus = "not_found"
	StatusSkipped  ProcessingStatus = "skipped"
	StatusError    ProcessingStatus = "error"
)

// ProcessingResult is the transport-neutral envelope for one contact. The
// convenience fields project the discovery outcome so tabular consumers
// don't need to walk the full Result.
type ProcessingResult struct {
	Contact Contact `json:"contact"`

	Status     ProcessingStatus `json:"status"`
	SkipReason string           `json:"skip_reason,omitempty"`
	Error      string           `json:"error,omitempty"`

	// Err is the underlying failure when Status is skipped or error. It is
	// kept out of the serialized form; transports use it for status mapping.
	Err error `json:"-"`

	Discovery *Result `json:"email_discovery_results,omitempty"`

	Email              string   `json:"email,omitempty"`
	EmailConfidence    int      `json:"email_confidence,omitempty"`
	VerificationMethod string   `json:"email_verification_method,omitempty"`
	Alternatives       []string `json:"email_alternatives,omitempty"`

	// EmailVerificationFailed marks contacts where candidates survived
	// scoring but none cleared the selection thresholds.
	EmailVerificationFailed bool `json:"email_verification_failed"`

	ProcessingTimeMS float64 `json:"processing_time_ms"`
}

// Processor validates and normalizes raw contacts, drives the Beacon and
// shapes the outcome. It never returns an error to its caller: validation
// failures yield a skipped result and discovery failures an error result,
// so one bad record cannot take down a batch.
type Processor struct {
	beacon *Beacon
}

// NewProcessor creates a Processor on top of b.
func NewProcessor(b *Beacon) *Processor {
	return &Processor{beacon: b}
}

// ProcessContact runs discovery for a single contact.
func (p *Processor) ProcessContact(ctx context.Context, contact Contact) ProcessingResult {
	start := time.Now()
	log := p.beacon.log
	res := ProcessingResult{Contact: contact}

	first, last, err := contact.names()
	if err == nil && strings.TrimSpace(contact.Domain) == "" {
		err = types.NewError(types.KindInsufficientInput, "domain is required")
	}
	var siteURL, domain string
	if err == nil {
		siteURL, err = urlutil.NormalizeURL(contact.Domain)
	}
	if err == nil {
		domain, err = urlutil.ExtractDomain(contact.Domain)
	}
	if err != nil {
		res.Status = StatusSkipped
		res.SkipReason = fmt.Sprintf("input validation/normalization failed: %v", err)
		res.Err = err
		res.ProcessingTimeMS = msSince(start)
		log.Warn().Str("reason", res.SkipReason).Msg("skipping record")
		return res
	}

	discovery, err := p.beacon.Discover(ctx, first, last, domain, siteURL)
	res.ProcessingTimeMS = msSince(start)
	if err != nil {
		res.Status = StatusError
		res.Error = err.Error()
		res.Err = err
		log.Error().Err(err).Str("domain", domain).Msg("email discovery failed")
		return res
	}

	res.Discovery = discovery
	res.Email = discovery.MostLikelyEmail
	if discovery.MostLikelyEmail != "" {
		res.Status = StatusFound
		res.EmailConfidence = discovery.ConfidenceScore
	} else {
		res.Status = StatusNotFound
		res.EmailVerificationFailed = len(discovery.FoundEmails) > 0
	}
	res.VerificationMethod = strings.Join(discovery.MethodsUsed, ", ")
	res.Alternatives = discovery.Alternatives(p.beacon.cfg.MaxAlternatives)

	log.Info().
		Str("status", res.Status).
		Str("email", res.Email).
		Float64("processing_time_ms", res.ProcessingTimeMS).
		Msg("record processed")
	return res
}

// ProcessBatch fans contacts out across at most max_concurrency concurrent
// discoveries. Results keep the input order; one failing contact never
// affects the others.
func (p *Processor) ProcessBatch(ctx context.Context, contacts []Contact) []ProcessingResult {
	results := make([]ProcessingResult, len(contacts))
	var g errgroup.Group
	g.SetLimit(p.beacon.cfg.MaxConcurrency)
	for i, c := range contacts {
		i, c := i, c
		g.Go(func() error {
			results[i] = p.ProcessContact(ctx, c)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
