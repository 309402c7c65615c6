// Package mailbeacon discovers a person's most likely professional email
// address from their name and their company's domain or website. It combines
// three evidence sources: candidate synthesis from common local-part
// patterns, scraping of addresses published on the company site, and a live
// SMTP probe against the domain's mail exchanger, then reconciles them into
// a ranked, scored result.
//
// Basic usage:
//
//	cfg := config.Default()
//	beacon := mailbeacon.NewFromConfig(cfg, logger)
//	result, err := beacon.Discover(ctx, "john", "doe", "example.com", "https://example.com")
//
// Batch processing over a whole contact list:
//
//	proc := mailbeacon.NewProcessor(beacon)
//	results := proc.ProcessBatch(ctx, contacts)
package mailbeacon

import "github.com/bl4ckh4nd/MailBeacon/types"

// FoundEmail is a re-export from the types package so that consumers
// don't need to import the types package directly.
type FoundEmail = types.FoundEmail

// Candidate is a re-export.
type Candidate = types.Candidate

// MailServer is a re-export.
type MailServer = types.MailServer

// Verification status constants re-exported.
const (
	StatusVerified     = types.StatusVerified
	StatusRejected     = types.StatusRejected
	StatusInconclusive = types.StatusInconclusive
)

// Candidate source constants re-exported.
const (
	SourcePattern = types.SourcePattern
	SourceScraped = types.SourceScraped
)

// Discovery method constants re-exported.
const (
	MethodPatternGeneration = types.MethodPatternGeneration
	MethodWebsiteScraping   = types.MethodWebsiteScraping
	MethodSMTPVerification  = types.MethodSMTPVerification
)
