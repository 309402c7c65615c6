package config

import "time"

// Defaults for everything tunable. List-valued defaults that belong to a
// component (nameservers, common pages, probe sender) live next to that
// component; this package aggregates them.
const (
	DefaultAppName    = "MailBeacon API"
	DefaultAppVersion = "0.1.0"
	DefaultAPIPrefix  = "/api/v1"
	DefaultListenAddr = ":8080"
	DefaultLogFormat  = "console"

	DefaultMaxConcurrency = 8

	DefaultRequestTimeout = 10 * time.Second
	DefaultSMTPTimeout    = 5 * time.Second
	DefaultDNSTimeout     = 5 * time.Second
	DefaultMinSleep       = 100 * time.Millisecond
	DefaultMaxSleep       = 500 * time.Millisecond

	DefaultMaxRedirects = 5
	DefaultDNSCacheTTL  = 5 * time.Minute

	DefaultMaxVerificationAttempts = 2

	DefaultConfidenceThreshold        = 4
	DefaultGenericConfidenceThreshold = 7
	DefaultMaxAlternatives            = 5
)

// DefaultGenericPrefixes are local parts that address a role or team rather
// than a person, including the German-language variants.
var DefaultGenericPrefixes = []string{
	"info", "contact", "hello", "help", "support", "admin", "office",
	"sales", "press", "media", "marketing", "jobs", "careers", "hiring",
	"privacy", "security", "legal", "membership", "team", "people",
	"general", "feedback", "enquiries", "inquiries", "mail", "email",
	"pitch", "invest", "investors", "ir", "webmaster", "newsletter",
	"apply", "partner", "partners", "ventures",
	"kontakt", "hallo", "hilfe", "buero",
	"vertrieb", "presse", "karriere", "datenschutz", "recht",
	"allgemein", "anfragen", "post",
}
