// Package verifier checks whether a mailbox accepts mail by speaking just
// enough SMTP: connect, EHLO, MAIL FROM, RCPT TO, QUIT. No message data is
// ever sent.
//
// A verification never fails outright. Network trouble and ambiguous server
// behavior surface as an inconclusive Outcome with a descriptive message, so
// callers can score the address lower instead of aborting a discovery.
package verifier

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"

	emailaddress "github.com/mcnijman/go-emailaddress"
	"github.com/rs/zerolog"

	"github.com/bl4ckh4nd/MailBeacon/internal/delay"
	"github.com/bl4ckh4nd/MailBeacon/internal/parse"
	"github.com/bl4ckh4nd/MailBeacon/types"
)

// DefaultHeloDomain is announced in EHLO when none is configured.
const DefaultHeloDomain = "localhost"

// DefaultMailFrom is the probe sender used when none is configured.
const DefaultMailFrom = "verify-probe@example.com"

const (
	defaultPort     = "25"
	defaultTimeout  = 5 * time.Second
	defaultAttempts = 2

	randomLocalLength = 12
	randomLocalChars  = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// rejectionPhrases are 5xx texts that mean the mailbox itself is missing
// rather than a policy refusal.
var rejectionPhrases = []string{
	"unknown", "no such", "unavailable", "rejected", "doesn't exist",
	"disabled", "invalid address", "recipient not found", "user unknown",
	"mailbox unavailable", "no mailbox",
}

// MailServerResolver locates the mail exchanger for a domain. Both
// *dnsx.Resolver and *dnsx.Cache satisfy it.
type MailServerResolver interface {
	ResolveMailServer(ctx context.Context, domain string) (types.MailServer, error)
}

// Outcome is the result of verifying one address.
type Outcome struct {
	Status     types.VerificationStatus
	Message    string
	IsCatchAll bool
	// Skipped is set when no probe was performed at all, for example
	// because the domain's mail server could not be resolved.
	Skipped bool
}

// Config controls Verifier behavior.
type Config struct {
	// HeloDomain is announced in EHLO.
	HeloDomain string
	// MailFrom is the envelope sender of the probe.
	MailFrom string
	// Port is the SMTP port, normally "25".
	Port string
	// Timeout bounds each network operation (dial, read, write).
	Timeout time.Duration
	// MaxAttempts is how often an inconclusive, retriable check is retried.
	MaxAttempts int
	// MinSleep and MaxSleep bound the randomized pause between attempts.
	MinSleep time.Duration
	MaxSleep time.Duration
	// Dial is injectable for testing. Defaults to net.DialTimeout.
	Dial func(network, address string, timeout time.Duration) (net.Conn, error)
	// Logger receives per-attempt traces. The zero value is silent.
	Logger zerolog.Logger
}

// Verifier probes mailboxes over SMTP. It is safe for concurrent use.
type Verifier struct {
	cfg      Config
	resolver MailServerResolver
	log      zerolog.Logger
}

// New creates a Verifier that resolves mail servers through resolver.
func New(cfg Config, resolver MailServerResolver) *Verifier {
	if cfg.HeloDomain == "" {
		cfg.HeloDomain = DefaultHeloDomain
	}
	if cfg.MailFrom == "" {
		cfg.MailFrom = DefaultMailFrom
	}
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultAttempts
	}
	if cfg.Dial == nil {
		cfg.Dial = net.DialTimeout
	}
	return &Verifier{cfg: cfg, resolver: resolver, log: cfg.Logger}
}

// Verify probes email with retries for inconclusive, retriable attempts.
// The mail server is resolved once up front; when that fails the check is
// skipped rather than failed, since a DNS hiccup says nothing about the
// mailbox.
func (v *Verifier) Verify(ctx context.Context, email string) Outcome {
	domain := parse.NewEmail(email).Domain

	server, err := v.resolver.ResolveMailServer(ctx, domain)
	if err != nil {
		v.log.Warn().Err(err).Str("domain", domain).Msg("mail server resolution failed, skipping SMTP check")
		return Outcome{Status: types.StatusInconclusive, Message: "SMTP check skipped (DNS lookup failed)", Skipped: true}
	}
	v.log.Info().
		Str("domain", domain).
		Str("exchange", server.Exchange).
		Uint16("preference", server.Preference).
		Msg("using mail server")

	outcome := Outcome{Status: types.StatusInconclusive, Message: "SMTP check did not run or complete"}
	for attempt := 1; attempt <= v.cfg.MaxAttempts; attempt++ {
		v.log.Info().
			Int("attempt", attempt).
			Int("max_attempts", v.cfg.MaxAttempts).
			Str("email", email).
			Str("exchange", server.Exchange).
			Msg("SMTP check attempt")

		res := v.attempt(email, domain, server.Exchange)
		outcome = Outcome{Status: res.status, Message: res.message, IsCatchAll: res.catchAll}

		if res.status != types.StatusInconclusive {
			v.log.Debug().Int("attempt", attempt).Str("status", res.status).Msg("SMTP check conclusive")
			break
		}
		if !res.retry {
			v.log.Warn().Int("attempt", attempt).Str("message", res.message).Msg("SMTP check not retriable, stopping")
			break
		}
		v.log.Warn().Int("attempt", attempt).Str("message", res.message).Msg("SMTP check inconclusive")

		if attempt < v.cfg.MaxAttempts {
			if err := delay.Sleep(ctx, v.cfg.MinSleep, v.cfg.MaxSleep); err != nil {
				break
			}
		}
	}

	v.log.Info().
		Str("email", email).
		Str("status", outcome.Status).
		Str("message", outcome.Message).
		Bool("catch_all", outcome.IsCatchAll).
		Msg("SMTP verification finished")
	return outcome
}

// attemptResult is the verdict of one wire conversation.
type attemptResult struct {
	status   types.VerificationStatus
	message  string
	retry    bool
	catchAll bool
}

func conclusive(exists bool, message string, catchAll bool) attemptResult {
	status := types.StatusVerified
	if !exists {
		status = types.StatusRejected
	}
	return attemptResult{status: status, message: message, catchAll: catchAll}
}

func inconclusiveRetry(message string) attemptResult {
	return attemptResult{status: types.StatusInconclusive, message: message, retry: true}
}

func inconclusiveNoRetry(message string) attemptResult {
	return attemptResult{status: types.StatusInconclusive, message: message}
}

// attempt performs one RCPT TO conversation against exchange.
func (v *Verifier) attempt(email, domain, exchange string) attemptResult {
	if _, err := emailaddress.Parse(email); err != nil {
		v.log.Warn().Str("email", email).Msg("invalid recipient email format")
		return conclusive(false, "Invalid email format", false)
	}

	address := net.JoinHostPort(exchange, v.cfg.Port)
	netConn, err := v.cfg.Dial("tcp", address, v.cfg.Timeout)
	if err != nil {
		if isBlocked(err) {
			v.log.Error().Err(err).Str("address", address).Msg("port 25 appears blocked, check firewall or ISP")
			return inconclusiveNoRetry(fmt.Sprintf("Connection failed (likely blocked): %v", err))
		}
		v.log.Warn().Err(err).Str("address", address).Msg("SMTP connection failed")
		return inconclusiveRetry(fmt.Sprintf("Connection failed: %v", err))
	}
	c := &conn{
		netConn: netConn,
		reader:  bufio.NewReader(netConn),
		writer:  bufio.NewWriter(netConn),
		timeout: v.cfg.Timeout,
	}
	defer func() {
		sendQuit(c)
		_ = netConn.Close()
	}()

	code, msg, err := c.read()
	if err != nil {
		return ioFailure(err)
	}
	if code >= 300 {
		return inconclusiveRetry(fmt.Sprintf("Connection failed: %d %s", code, msg))
	}

	code, msg, err = c.command(fmt.Sprintf("EHLO %s\r\n", v.cfg.HeloDomain))
	if err != nil {
		return ioFailure(err)
	}
	if code >= 300 {
		v.log.Warn().Int("code", code).Str("msg", msg).Str("exchange", exchange).Msg("EHLO rejected")
		return inconclusiveRetry(fmt.Sprintf("HELO/EHLO failed: %d %s", code, msg))
	}

	code, msg, err = c.command(fmt.Sprintf("MAIL FROM:<%s>\r\n", v.cfg.MailFrom))
	if err != nil {
		return ioFailure(err)
	}
	if code >= 400 {
		v.log.Error().Int("code", code).Str("msg", msg).Str("exchange", exchange).Msg("MAIL FROM rejected")
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "starttls") || (code == 530 && strings.Contains(lower, "5.7.0")) {
			return inconclusiveRetry(fmt.Sprintf("Server requires STARTTLS: %d %s", code, msg))
		}
		return inconclusiveNoRetry(fmt.Sprintf("MAIL FROM rejected: %d %s", code, msg))
	}

	code, msg, err = c.command(fmt.Sprintf("RCPT TO:<%s>\r\n", email))
	if err != nil {
		return ioFailure(err)
	}
	v.log.Info().Str("email", email).Int("code", code).Str("msg", msg).Msg("RCPT TO result")

	// A server that accepts the target might accept anything. Probe with a
	// local part that cannot plausibly exist before trusting the accept.
	catchAll := false
	if code < 400 {
		probe := randomLocalPart(randomLocalLength) + "@" + domain
		v.log.Debug().Str("probe", probe).Msg("checking for catch-all")
		probeCode, _, probeErr := c.command(fmt.Sprintf("RCPT TO:<%s>\r\n", probe))
		switch {
		case probeErr != nil:
			v.log.Warn().Err(probeErr).Str("domain", domain).Msg("catch-all probe failed, ignoring")
		case probeCode < 400:
			catchAll = true
			v.log.Warn().Str("domain", domain).Int("code", probeCode).Msg("domain appears to be a catch-all")
		default:
			v.log.Debug().Int("code", probeCode).Msg("catch-all check negative")
		}
	}

	switch {
	case code < 300:
		if catchAll {
			return attemptResult{
				status:   types.StatusInconclusive,
				message:  fmt.Sprintf("SMTP accepted (Possible Catch-All): %d %s", code, msg),
				retry:    true,
				catchAll: true,
			}
		}
		return conclusive(true, fmt.Sprintf("SMTP Verification OK: %d %s", code, msg), false)
	case code < 400:
		return inconclusiveRetry(fmt.Sprintf("SMTP Unexpected Intermediate Code: %d %s", code, msg))
	case code < 500:
		return inconclusiveRetry(fmt.Sprintf("SMTP Temp Failure/Greylisted? (4xx): %d %s", code, msg))
	default:
		if isUserUnknown(code, msg) {
			return conclusive(false, fmt.Sprintf("SMTP Rejected (User Likely Unknown): %d %s", code, msg), false)
		}
		return conclusive(false, fmt.Sprintf("SMTP Rejected (Policy/Other 5xx): %d %s", code, msg), false)
	}
}

func isUserUnknown(code int, msg string) bool {
	if code == 550 || code == 551 || code == 553 {
		return true
	}
	lower := strings.ToLower(msg)
	for _, p := range rejectionPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func ioFailure(err error) attemptResult {
	if isTimeout(err) {
		return inconclusiveRetry("SMTP operation timed out")
	}
	return inconclusiveRetry(fmt.Sprintf("Socket error: %v", err))
}

func isBlocked(err error) bool {
	if isTimeout(err) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// randomLocalPart returns a throwaway local part for catch-all probes.
func randomLocalPart(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = randomLocalChars[rand.Intn(len(randomLocalChars))]
	}
	return string(b)
}
