// Package dnsx locates the mail server responsible for a domain.
//
// MX records are preferred. A domain that publishes no MX but does have an
// A record is still deliverable per RFC 5321, so such domains fall back to
// the first A record at the lowest possible preference.
package dnsx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"

	"github.com/bl4ckh4nd/MailBeacon/types"
)

// DefaultServers are the public resolvers queried when none are configured.
var DefaultServers = []string{"8.8.8.8", "8.8.4.4", "1.1.1.1", "1.0.0.1"}

const defaultTimeout = 5 * time.Second

// Config controls Resolver behavior.
type Config struct {
	// Servers lists the nameservers to query, in order. Entries without a
	// port are normalized to port 53. Defaults to DefaultServers.
	Servers []string
	// Timeout bounds each individual DNS query.
	Timeout time.Duration
	// Logger receives debug-level query traces. The zero value is silent.
	Logger zerolog.Logger
}

// Resolver answers the question "which host accepts mail for this domain".
// It is safe for concurrent use.
type Resolver struct {
	servers []string
	log     zerolog.Logger
	// exchange is injectable for testing
	exchange func(ctx context.Context, m *dns.Msg, server string) (*dns.Msg, error)
}

// New creates a Resolver that queries cfg.Servers over UDP.
func New(cfg Config) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if len(cfg.Servers) == 0 {
		cfg.Servers = DefaultServers
	}
	client := &dns.Client{Timeout: cfg.Timeout}
	return &Resolver{
		servers: normalizeServers(cfg.Servers),
		log:     cfg.Logger,
		exchange: func(ctx context.Context, m *dns.Msg, server string) (*dns.Msg, error) {
			in, _, err := client.ExchangeContext(ctx, m, server)
			return in, err
		},
	}
}

// NewWithExchange creates a Resolver with a custom wire function (for testing).
func NewWithExchange(cfg Config, exchange func(ctx context.Context, m *dns.Msg, server string) (*dns.Msg, error)) *Resolver {
	r := New(cfg)
	r.exchange = exchange
	return r
}

// ResolveMailServer returns the host that receives mail for domain.
//
// The best MX record wins (lowest preference value, trailing dot stripped).
// A domain without MX records falls back to its first A record, reported
// with types.PreferenceAFallback so callers can tell the two cases apart.
func (r *Resolver) ResolveMailServer(ctx context.Context, domain string) (types.MailServer, error) {
	in, err := r.query(ctx, domain, dns.TypeMX)
	if err != nil {
		return types.MailServer{}, err
	}

	var mxs []*dns.MX
	for _, rr := range in.Answer {
		if mx, ok := rr.(*dns.MX); ok {
			mxs = append(mxs, mx)
		}
	}
	if len(mxs) == 0 {
		r.log.Debug().Str("domain", domain).Msg("no MX records, trying A record fallback")
		return r.aFallback(ctx, domain)
	}

	sort.Slice(mxs, func(i, j int) bool { return mxs[i].Preference < mxs[j].Preference })
	best := mxs[0]
	exchange := strings.TrimSuffix(best.Mx, ".")
	if exchange == "" {
		// Null MX (RFC 7505): the domain explicitly receives no mail.
		return types.MailServer{}, types.NewError(types.KindNoDNSRecords,
			fmt.Sprintf("no usable MX exchange for %s", domain))
	}
	r.log.Debug().
		Str("domain", domain).
		Str("exchange", exchange).
		Uint16("preference", best.Preference).
		Msg("resolved mail server")
	return types.MailServer{Exchange: exchange, Preference: best.Preference}, nil
}

func (r *Resolver) aFallback(ctx context.Context, domain string) (types.MailServer, error) {
	in, err := r.query(ctx, domain, dns.TypeA)
	if err != nil {
		return types.MailServer{}, err
	}
	for _, rr := range in.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		r.log.Debug().Str("domain", domain).Str("address", a.A.String()).Msg("using A record as mail server")
		return types.MailServer{Exchange: a.A.String(), Preference: types.PreferenceAFallback}, nil
	}
	return types.MailServer{}, types.NewError(types.KindNoDNSRecords,
		fmt.Sprintf("no MX or A records found for %s", domain))
}

// query runs one question against the configured servers in order and
// returns the first usable response. NXDOMAIN is final: the domain does
// not exist, and another server would not change that answer. Transport
// errors and server failures move on to the next nameserver.
func (r *Resolver) query(ctx context.Context, domain string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), qtype)
	m.RecursionDesired = true

	qname := dns.TypeToString[qtype]
	var lastErr error
	for _, server := range r.servers {
		in, err := r.exchange(ctx, m, server)
		if err != nil {
			if isTimeout(err) {
				lastErr = types.WrapError(types.KindDNSTimeout,
					fmt.Sprintf("DNS %s query for %s timed out", qname, domain), err)
			} else {
				lastErr = types.WrapError(types.KindDNSError,
					fmt.Sprintf("DNS %s query for %s failed", qname, domain), err)
			}
			if ctx.Err() != nil {
				return nil, lastErr
			}
			r.log.Debug().Err(err).Str("server", server).Str("domain", domain).Msg("nameserver unreachable, trying next")
			continue
		}
		switch in.Rcode {
		case dns.RcodeSuccess:
			return in, nil
		case dns.RcodeNameError:
			return nil, types.NewError(types.KindNxDomain,
				fmt.Sprintf("domain %s does not exist (NXDOMAIN)", domain))
		default:
			lastErr = types.NewError(types.KindDNSError,
				fmt.Sprintf("DNS %s query for %s failed with %s", qname, domain, dns.RcodeToString[in.Rcode]))
			r.log.Debug().
				Str("server", server).
				Str("domain", domain).
				Str("rcode", dns.RcodeToString[in.Rcode]).
				Msg("nameserver returned failure, trying next")
		}
	}
	if lastErr == nil {
		lastErr = types.NewError(types.KindDNSError, "no DNS servers configured")
	}
	return nil, lastErr
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func normalizeServers(servers []string) []string {
	out := make([]string, 0, len(servers))
	for _, s := range servers {
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		out = append(out, s)
	}
	return out
}
