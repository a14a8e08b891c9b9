// Package resolver implements blocking IPv4 hostname resolution,
// thin-wrapped over an explicit DNS exchange the way net/tcp.go
// thin-wraps net.Dial rather than hand-rolling a socket client.
package resolver

import (
	"context"
	"net"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"

	"github.com/pkopriv2/netcore/diagnostics"
)

// ErrNoSuchHost is returned when a hostname has no A record, or when the
// input is neither a resolvable hostname nor a dotted-quad literal.
var ErrNoSuchHost = errors.New("resolver: no such host")

// ErrTimeout is returned when the resolution deadline elapses before a
// server answers.
var ErrTimeout = errors.New("resolver: timeout")

// Config carries the resolver's tunables.
type Config struct {
	// Servers are "host:port" nameserver addresses tried in order.
	// DefaultConfig fills it from /etc/resolv.conf; when it is empty no
	// server is queried and every non-literal lookup fails with
	// ErrNoSuchHost.
	Servers []string

	// Timeout bounds a single exchange with a single server.
	Timeout time.Duration
}

// DefaultConfig returns a Config seeded from the system's resolver
// configuration, falling back to a well-known public resolver if that
// can't be read.
func DefaultConfig() Config {
	servers := systemServers()
	if len(servers) == 0 {
		servers = []string{"8.8.8.8:53"}
	}
	return Config{Servers: servers, Timeout: 5 * time.Second}
}

func systemServers() []string {
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || cfg == nil {
		return nil
	}
	out := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		out = append(out, net.JoinHostPort(s, cfg.Port))
	}
	return out
}

// HostResolver performs blocking A-record lookups, returning results as
// netcore's host-order uint32 address form so callers can feed them
// straight into Connect/Open.
type HostResolver struct {
	cfg  Config
	diag *diagnostics.Bus
}

// New returns a HostResolver using cfg and, if non-nil, diag for
// diagnostics about failed exchanges.
func New(cfg Config, diag *diagnostics.Bus) *HostResolver {
	return &HostResolver{cfg: cfg, diag: diag}
}

// ResolveHost resolves host to a host-order IPv4 address, blocking the
// calling goroutine for the duration of the DNS exchange. A dotted-quad
// literal is returned immediately without a network round trip.
func (r *HostResolver) ResolveHost(host string) (uint32, error) {
	return r.ResolveHostContext(context.Background(), host)
}

// ResolveHostContext is ResolveHost with caller-supplied cancellation;
// ResolveHost calls it with context.Background().
func (r *HostResolver) ResolveHostContext(ctx context.Context, host string) (uint32, error) {
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return ipToUint32(v4), nil
		}
		return 0, errors.Wrap(ErrNoSuchHost, "not an IPv4 literal")
	}

	fqdn := dns.Fqdn(host)
	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, dns.TypeA)
	msg.RecursionDesired = true

	client := &dns.Client{Timeout: r.cfg.Timeout}

	var lastErr error
	for _, server := range r.cfg.Servers {
		resp, _, err := client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			if r.diag != nil {
				r.diag.PublishFormatted(diagnostics.LevelWarning, "resolve %s via %s failed: %v", host, server, err)
			}
			if ctx.Err() != nil {
				return 0, errors.Wrap(err, ErrTimeout.Error())
			}
			continue
		}

		for _, rr := range resp.Answer {
			if a, ok := rr.(*dns.A); ok {
				if v4 := a.A.To4(); v4 != nil {
					return ipToUint32(v4), nil
				}
			}
		}

		// A well-formed answer with no A record is authoritative:
		// don't keep trying other servers for a host that doesn't exist.
		return 0, ErrNoSuchHost
	}

	if lastErr != nil {
		return 0, errors.Wrap(lastErr, ErrNoSuchHost.Error())
	}
	return 0, ErrNoSuchHost
}

func ipToUint32(v4 net.IP) uint32 {
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
}
