package types

import (
	"errors"
	"net/http"
)

// Kind classifies an Error. The kind decides how a failure propagates
// through a discovery and which HTTP status an API front-end should map
// it to.
type Kind string

const (
	// Input errors.
	KindInsufficientInput Kind = "insufficient_input"
	KindURLParse          Kind = "url_parse"
	KindDomainExtraction  Kind = "domain_extraction"

	// DNS errors.
	KindNxDomain     Kind = "dns_nxdomain"
	KindNoDNSRecords Kind = "dns_no_records"
	KindDNSTimeout   Kind = "dns_timeout"
	KindDNSError     Kind = "dns_error"

	// HTTP and scraping errors.
	KindHTTPRequest Kind = "http_request"
	KindHTMLParse   Kind = "html_parse"

	// SMTP errors.
	KindSMTPConnect      Kind = "smtp_connect"
	KindSMTPCommand      Kind = "smtp_command"
	KindSMTPTLS          Kind = "smtp_tls"
	KindSMTPTemporary    Kind = "smtp_temporary"
	KindSMTPPermanent    Kind = "smtp_permanent"
	KindSMTPUserUnknown  Kind = "smtp_user_unknown"
	KindSMTPInconclusive Kind = "smtp_inconclusive"
	KindSMTPTimeout      Kind = "smtp_timeout"

	KindConfig   Kind = "config"
	KindTask     Kind = "task"
	KindInternal Kind = "internal"
)

// Error is a classified failure. It carries a suggested HTTP status so
// transport layers can map discovery failures without inspecting messages.
type Error struct {
	Kind    Kind
	Message string
	Err     error // wrapped cause, may be nil
}

// NewError creates an Error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates an Error of the given kind wrapping a cause.
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus is the suggested HTTP status code for this error kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInsufficientInput, KindURLParse, KindDomainExtraction:
		return http.StatusBadRequest
	case KindNxDomain, KindNoDNSRecords, KindSMTPUserUnknown:
		return http.StatusNotFound
	case KindDNSTimeout, KindSMTPTimeout:
		return http.StatusGatewayTimeout
	case KindHTTPRequest, KindHTMLParse:
		return http.StatusBadGateway
	case KindDNSError, KindSMTPConnect, KindSMTPCommand, KindSMTPTLS,
		KindSMTPTemporary, KindSMTPPermanent, KindSMTPInconclusive:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// KindOf returns the Kind carried by err, if err is or wraps an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// HTTPStatusOf returns the suggested HTTP status for err, falling back
// to 500 for unclassified errors.
func HTTPStatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
