// Package types contains the shared types for mailbeacon.
// This package does not import anything from other mailbeacon packages
// to avoid circular imports.
package types

// VerificationStatus is the outcome of an SMTP probe.
type VerificationStatus = string

const (
	StatusVerified     VerificationStatus = "verified"
	StatusRejected     VerificationStatus = "rejected"
	StatusInconclusive VerificationStatus = "inconclusive"
)

// Source identifies where a candidate address came from.
type Source = string

const (
	SourcePattern Source = "pattern"
	SourceScraped Source = "scraped"
)

// Method identifies an evidence source used during a discovery.
type Method = string

const (
	MethodPatternGeneration Method = "pattern_generation"
	MethodWebsiteScraping   Method = "website_scraping"
	MethodSMTPVerification  Method = "smtp_verification"
)

// PreferenceAFallback is the sentinel MX preference assigned to a mail
// server obtained through the A-record fallback (lowest priority).
const PreferenceAFallback uint16 = 65535

// MailServer is a mail exchanger resolved for a domain.
type MailServer struct {
	Exchange   string `json:"exchange"`
	Preference uint16 `json:"preference"`
}

// AFallback reports whether this server came from the A-record fallback
// rather than an MX record.
func (m MailServer) AFallback() bool {
	return m.Preference == PreferenceAFallback
}

// Candidate is an email address under evaluation, plus its provenance flags.
type Candidate struct {
	Email                string
	IsPattern            bool
	IsScraped            bool
	IsGeneric            bool
	MatchesPrimaryDomain bool
	NameInLocal          bool
}

// FoundEmail is one scored, possibly verified, discovery hit.
type FoundEmail struct {
	Email               string             `json:"email"`
	Confidence          int                `json:"confidence"`
	Source              Source             `json:"source"`
	IsGeneric           bool               `json:"is_generic"`
	VerificationStatus  VerificationStatus `json:"verification_status"`
	VerificationMessage string             `json:"verification_message,omitempty"`
}
