package mailbeacon

import "github.com/bl4ckh4nd/MailBeacon/types"

// Error is the classified failure type used across the module, re-exported
// from the types package. Transport layers map it to an HTTP status via
// Error.HTTPStatus or HTTPStatusOf.
type Error = types.Error

// Kind classifies an Error.
type Kind = types.Kind

// Error kinds re-exported.
const (
	KindInsufficientInput = types.KindInsufficientInput
	KindURLParse          = types.KindURLParse
	KindDomainExtraction  = types.KindDomainExtraction

	KindNxDomain     = types.KindNxDomain
	KindNoDNSRecords = types.KindNoDNSRecords
	KindDNSTimeout   = types.KindDNSTimeout
	KindDNSError     = types.KindDNSError

	KindHTTPRequest = types.KindHTTPRequest
	KindHTMLParse   = types.KindHTMLParse

	KindSMTPConnect      = types.KindSMTPConnect
	KindSMTPCommand      = types.KindSMTPCommand
	KindSMTPTLS          = types.KindSMTPTLS
	KindSMTPTemporary    = types.KindSMTPTemporary
	KindSMTPPermanent    = types.KindSMTPPermanent
	KindSMTPUserUnknown  = types.KindSMTPUserUnknown
	KindSMTPInconclusive = types.KindSMTPInconclusive
	KindSMTPTimeout      = types.KindSMTPTimeout

	KindConfig   = types.KindConfig
	KindTask     = types.KindTask
	KindInternal = types.KindInternal
)

// KindOf returns the Kind carried by err, if err is or wraps an *Error.
func KindOf(err error) (Kind, bool) { return types.KindOf(err) }

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool { return types.IsKind(err, kind) }

// HTTPStatusOf returns the suggested HTTP status for err, falling back to
// 500 for unclassified errors.
func HTTPStatusOf(err error) int { return types.HTTPStatusOf(err) }
