package resolver

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
)

// DNSResolver sends A and AAAA queries straight to one DNS server.
type DNSResolver struct {
	server string
	client *dns.Client
}

// NewDNSResolver returns a resolver querying server (host:port) over UDP.
func NewDNSResolver(server string, timeout time.Duration) *DNSResolver {
	return &DNSResolver{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}
}

// LookupNetIP returns IPv4 answers first, then IPv6 answers. It fails only
// if both queries fail.
func (r *DNSResolver) LookupNetIP(ctx context.Context, host string) ([]netip.Addr, error) {
	var v4, v6 []netip.Addr
	var err4, err6 error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v4, err4 = r.query(gctx, host, dns.TypeA)
		return nil
	})
	g.Go(func() error {
		v6, err6 = r.query(gctx, host, dns.TypeAAAA)
		return nil
	})
	_ = g.Wait()

	if err4 != nil && err6 != nil {
		return nil, err4
	}
	return append(v4, v6...), nil
}

func (r *DNSResolver) query(ctx context.Context, host string, qtype uint16) ([]netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	m.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, m, r.server)
	if err != nil {
		return nil, fmt.Errorf("dns %s %s: %w", dns.TypeToString[qtype], host, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("dns %s %s: %s", dns.TypeToString[qtype], host, dns.RcodeToString[in.Rcode])
	}

	var addrs []netip.Addr
	for _, rr := range in.Answer {
		switch rr := rr.(type) {
		case *dns.A:
			if ip, ok := netip.AddrFromSlice(rr.A); ok {
				addrs = append(addrs, ip.Unmap())
			}
		case *dns.AAAA:
			if ip, ok := netip.AddrFromSlice(rr.AAAA); ok {
				addrs = append(addrs, ip)
			}
		}
	}
	return addrs, nil
}
