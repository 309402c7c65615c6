// Package config loads and validates MailBeacon settings from defaults, an
// optional TOML file and MAILBEACON_-prefixed environment variables, in
// rising order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	emailaddress "github.com/mcnijman/go-emailaddress"
	"github.com/spf13/viper"

	"github.com/bl4ckh4nd/MailBeacon/dnsx"
	"github.com/bl4ckh4nd/MailBeacon/extract"
	"github.com/bl4ckh4nd/MailBeacon/scrape"
	"github.com/bl4ckh4nd/MailBeacon/types"
	"github.com/bl4ckh4nd/MailBeacon/verifier"
)

// Config is the resolved MailBeacon configuration. Timeouts and sleeps are
// expressed in seconds in files and the environment and carried as
// durations here.
type Config struct {
	AppName    string
	AppVersion string
	Debug      bool
	LogFormat  string // "console" or "json"

	APIPrefix  string
	ListenAddr string

	MaxConcurrency int

	RequestTimeout time.Duration
	SMTPTimeout    time.Duration
	DNSTimeout     time.Duration
	MinSleep       time.Duration
	MaxSleep       time.Duration

	CommonPages  []string
	UserAgent    string
	MaxRedirects int

	DNSServers  []string
	DNSCacheTTL time.Duration

	SenderEmail             string
	HeloDomain              string
	MaxVerificationAttempts int

	ConfidenceThreshold        int
	GenericConfidenceThreshold int
	MaxAlternatives            int
	GenericPrefixes            []string

	EmailPattern string

	// ConfigFile is the TOML file actually loaded, empty when none was found.
	ConfigFile string
	// Warnings lists adjustments made during validation (clamped thresholds,
	// swapped sleep bounds and the like) so callers can log them once a
	// logger exists.
	Warnings []string

	emailRegex *regexp.Regexp
}

// EmailRegex returns the compiled address pattern.
func (c *Config) EmailRegex() *regexp.Regexp { return c.emailRegex }

// Load resolves the configuration. path optionally names a TOML file; when
// empty, MAILBEACON_CONFIG_FILE and then ./mailbeacon.toml, ./config.toml
// and ~/.config/mailbeacon.toml are tried in order. A missing file is not
// an error and a malformed one is skipped with a warning.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if path == "" {
		path = os.Getenv("MAILBEACON_CONFIG_FILE")
	}

	var usedFile string
	var fileWarnings []string
	for _, p := range candidatePaths(path) {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		v.SetConfigFile(p)
		if err := v.ReadInConfig(); err != nil {
			fileWarnings = append(fileWarnings, fmt.Sprintf("failed to parse config file %s, skipping: %v", p, err))
			continue
		}
		usedFile = p
		break
	}

	cfg, err := assemble(v)
	if err != nil {
		return nil, err
	}
	cfg.ConfigFile = usedFile
	cfg.Warnings = append(fileWarnings, cfg.Warnings...)
	return cfg, nil
}

// Default returns the built-in configuration, ignoring files and the
// environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := assemble(v)
	if err != nil {
		panic(err) // defaults always assemble
	}
	return cfg
}

func candidatePaths(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	paths := []string{"./mailbeacon.toml", "./config.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mailbeacon.toml"))
	}
	return paths
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", DefaultAppName)
	v.SetDefault("app.version", DefaultAppVersion)
	v.SetDefault("debug", false)
	v.SetDefault("logging.format", DefaultLogFormat)

	v.SetDefault("api.prefix", DefaultAPIPrefix)
	v.SetDefault("server.listen_addr", DefaultListenAddr)

	v.SetDefault("network.request_timeout", int(DefaultRequestTimeout/time.Second))
	v.SetDefault("network.min_sleep", DefaultMinSleep.Seconds())
	v.SetDefault("network.max_sleep", DefaultMaxSleep.Seconds())
	v.SetDefault("network.user_agent", scrape.DefaultUserAgent)

	v.SetDefault("scraping.common_pages", scrape.DefaultCommonPages)
	v.SetDefault("scraping.generic_email_prefixes", DefaultGenericPrefixes)
	v.SetDefault("scraping.max_redirects", DefaultMaxRedirects)

	v.SetDefault("dns.dns_timeout", int(DefaultDNSTimeout/time.Second))
	v.SetDefault("dns.dns_servers", dnsx.DefaultServers)
	v.SetDefault("dns.cache_ttl", DefaultDNSCacheTTL)

	v.SetDefault("smtp.smtp_timeout", int(DefaultSMTPTimeout/time.Second))
	v.SetDefault("smtp.smtp_sender_email", verifier.DefaultMailFrom)
	v.SetDefault("smtp.helo_domain", verifier.DefaultHeloDomain)
	v.SetDefault("smtp.max_verification_attempts", DefaultMaxVerificationAttempts)

	v.SetDefault("verification.confidence_threshold", DefaultConfidenceThreshold)
	v.SetDefault("verification.generic_confidence_threshold", DefaultGenericConfidenceThreshold)
	v.SetDefault("verification.max_alternatives", DefaultMaxAlternatives)
	v.SetDefault("verification.max_concurrency", DefaultMaxConcurrency)

	v.SetDefault("email_regex_pattern", extract.DefaultEmailPattern)
}

// bindEnv keeps the flat MAILBEACON_* names stable regardless of which TOML
// section a key lives in.
func bindEnv(v *viper.Viper) {
	binds := map[string]string{
		"app.name":    "MAILBEACON_APP_NAME",
		"app.version": "MAILBEACON_APP_VERSION",
		"debug":       "MAILBEACON_DEBUG",

		"logging.format": "MAILBEACON_LOG_FORMAT",

		"api.prefix":         "MAILBEACON_API_PREFIX",
		"server.listen_addr": "MAILBEACON_LISTEN_ADDR",

		"network.request_timeout": "MAILBEACON_REQUEST_TIMEOUT",
		"network.min_sleep":       "MAILBEACON_MIN_SLEEP_BETWEEN_REQUESTS",
		"network.max_sleep":       "MAILBEACON_MAX_SLEEP_BETWEEN_REQUESTS",
		"network.user_agent":      "MAILBEACON_USER_AGENT",

		"scraping.common_pages":           "MAILBEACON_COMMON_PAGES_TO_SCRAPE",
		"scraping.generic_email_prefixes": "MAILBEACON_GENERIC_EMAIL_PREFIXES",
		"scraping.max_redirects":          "MAILBEACON_MAX_REDIRECTS",

		"dns.dns_timeout": "MAILBEACON_DNS_TIMEOUT",
		"dns.dns_servers": "MAILBEACON_DNS_SERVERS",
		"dns.cache_ttl":   "MAILBEACON_DNS_CACHE_TTL",

		"smtp.smtp_timeout":              "MAILBEACON_SMTP_TIMEOUT",
		"smtp.smtp_sender_email":         "MAILBEACON_SMTP_SENDER_EMAIL",
		"smtp.helo_domain":               "MAILBEACON_SMTP_HELO_DOMAIN",
		"smtp.max_verification_attempts": "MAILBEACON_MAX_VERIFICATION_ATTEMPTS",

		"verification.confidence_threshold":         "MAILBEACON_CONFIDENCE_THRESHOLD",
		"verification.generic_confidence_threshold": "MAILBEACON_GENERIC_CONFIDENCE_THRESHOLD",
		"verification.max_alternatives":             "MAILBEACON_MAX_ALTERNATIVES",
		"verification.max_concurrency":              "MAILBEACON_MAX_CONCURRENCY",

		"email_regex_pattern": "MAILBEACON_EMAIL_REGEX_PATTERN",
	}
	for key, env := range binds {
		_ = v.BindEnv(key, env)
	}
}

func assemble(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppName:    v.GetString("app.name"),
		AppVersion: v.GetString("app.version"),
		Debug:      v.GetBool("debug"),
		LogFormat:  v.GetString("logging.format"),

		APIPrefix:  v.GetString("api.prefix"),
		ListenAddr: v.GetString("server.listen_addr"),

		MaxConcurrency: v.GetInt("verification.max_concurrency"),

		RequestTimeout: secondsInt(v, "network.request_timeout"),
		SMTPTimeout:    secondsInt(v, "smtp.smtp_timeout"),
		DNSTimeout:     secondsInt(v, "dns.dns_timeout"),
		MinSleep:       secondsFloat(v, "network.min_sleep"),
		MaxSleep:       secondsFloat(v, "network.max_sleep"),

		CommonPages:  stringList(v, "scraping.common_pages"),
		UserAgent:    v.GetString("network.user_agent"),
		MaxRedirects: v.GetInt("scraping.max_redirects"),

		DNSServers:  stringList(v, "dns.dns_servers"),
		DNSCacheTTL: v.GetDuration("dns.cache_ttl"),

		SenderEmail:             v.GetString("smtp.smtp_sender_email"),
		HeloDomain:              v.GetString("smtp.helo_domain"),
		MaxVerificationAttempts: v.GetInt("smtp.max_verification_attempts"),

		ConfidenceThreshold:        v.GetInt("verification.confidence_threshold"),
		GenericConfidenceThreshold: v.GetInt("verification.generic_confidence_threshold"),
		MaxAlternatives:            v.GetInt("verification.max_alternatives"),
		GenericPrefixes:            stringList(v, "scraping.generic_email_prefixes"),

		EmailPattern: v.GetString("email_regex_pattern"),
	}

	cfg.clamp()

	re, err := regexp.Compile(cfg.EmailPattern)
	if err != nil {
		return nil, types.WrapError(types.KindConfig, "invalid email regex pattern", err)
	}
	cfg.emailRegex = re

	if _, err := emailaddress.Parse(cfg.SenderEmail); err != nil {
		return nil, types.WrapError(types.KindConfig,
			fmt.Sprintf("invalid smtp_sender_email in config: %s", cfg.SenderEmail), err)
	}

	return cfg, nil
}

// clamp pulls out-of-range values back into range, recording a warning for
// each adjustment.
func (c *Config) clamp() {
	warnf := func(format string, args ...any) {
		c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
	}

	if c.MinSleep < 0 {
		warnf("min sleep %s is negative, using 0", c.MinSleep)
		c.MinSleep = 0
	}
	if c.MaxSleep < 0 {
		warnf("max sleep %s is negative, using 0", c.MaxSleep)
		c.MaxSleep = 0
	}
	if c.MinSleep > c.MaxSleep {
		warnf("min sleep %s greater than max sleep %s, raising max to min", c.MinSleep, c.MaxSleep)
		c.MaxSleep = c.MinSleep
	}

	if len(c.DNSServers) == 0 {
		warnf("DNS server list is empty, using default public resolvers")
		c.DNSServers = append([]string(nil), dnsx.DefaultServers...)
	}

	if c.ConfidenceThreshold > 10 {
		warnf("confidence threshold %d above 10, using 10", c.ConfidenceThreshold)
		c.ConfidenceThreshold = 10
	}
	if c.ConfidenceThreshold < 0 {
		warnf("confidence threshold %d below 0, using 0", c.ConfidenceThreshold)
		c.ConfidenceThreshold = 0
	}
	if c.GenericConfidenceThreshold > 10 {
		warnf("generic confidence threshold %d above 10, using 10", c.GenericConfidenceThreshold)
		c.GenericConfidenceThreshold = 10
	}
	if c.GenericConfidenceThreshold < 0 {
		warnf("generic confidence threshold %d below 0, using 0", c.GenericConfidenceThreshold)
		c.GenericConfidenceThreshold = 0
	}
	if c.GenericConfidenceThreshold < c.ConfidenceThreshold {
		warnf("generic confidence threshold %d below base threshold %d, raising to base",
			c.GenericConfidenceThreshold, c.ConfidenceThreshold)
		c.GenericConfidenceThreshold = c.ConfidenceThreshold
	}

	if c.MaxConcurrency < 1 {
		warnf("max concurrency %d below 1, using 1", c.MaxConcurrency)
		c.MaxConcurrency = 1
	}
	if c.RequestTimeout < time.Second {
		warnf("request timeout %s below 1s, using 1s", c.RequestTimeout)
		c.RequestTimeout = time.Second
	}
	if c.SMTPTimeout < time.Second {
		warnf("smtp timeout %s below 1s, using 1s", c.SMTPTimeout)
		c.SMTPTimeout = time.Second
	}
	if c.DNSTimeout < time.Second {
		warnf("dns timeout %s below 1s, using 1s", c.DNSTimeout)
		c.DNSTimeout = time.Second
	}
	if c.MaxVerificationAttempts < 1 {
		warnf("max verification attempts %d below 1, using 1", c.MaxVerificationAttempts)
		c.MaxVerificationAttempts = 1
	}
	if c.MaxAlternatives < 0 {
		warnf("max alternatives %d below 0, using 0", c.MaxAlternatives)
		c.MaxAlternatives = 0
	}
	if c.MaxRedirects < 1 {
		warnf("max redirects %d below 1, using default %d", c.MaxRedirects, DefaultMaxRedirects)
		c.MaxRedirects = DefaultMaxRedirects
	}
	if c.DNSCacheTTL <= 0 {
		warnf("dns cache ttl %s not positive, using default %s", c.DNSCacheTTL, DefaultDNSCacheTTL)
		c.DNSCacheTTL = DefaultDNSCacheTTL
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		warnf("unknown log format %q, using %q", c.LogFormat, DefaultLogFormat)
		c.LogFormat = DefaultLogFormat
	}
}

func secondsInt(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt(key)) * time.Second
}

func secondsFloat(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetFloat64(key) * float64(time.Second))
}

// stringList reads a key that may be a TOML array or a comma-separated
// string from the environment.
func stringList(v *viper.Viper, key string) []string {
	if s, ok := v.Get(key).(string); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return v.GetStringSlice(key)
}
