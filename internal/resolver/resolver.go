package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"
)

// ErrNoAddresses is returned when a lookup succeeds but yields nothing usable.
var ErrNoAddresses = errors.New("no addresses found")

// Resolver looks up the addresses of host.
type Resolver interface {
	LookupNetIP(ctx context.Context, host string) ([]netip.Addr, error)
}

// Config selects and tunes the Resolver built by New.
type Config struct {
	// Server is a host:port DNS server to query directly. Empty uses the
	// system resolver.
	Server string
	// Timeout bounds each query to Server.
	Timeout time.Duration
	// CacheTTL enables caching of successful lookups when positive.
	CacheTTL time.Duration
}

// New builds the Resolver described by cfg.
func New(cfg Config) (Resolver, error) {
	var r Resolver = System()
	if cfg.Server != "" {
		if _, _, err := net.SplitHostPort(cfg.Server); err != nil {
			return nil, fmt.Errorf("dns server %q: %w", cfg.Server, err)
		}
		r = NewDNSResolver(cfg.Server, cfg.Timeout)
	}
	if cfg.CacheTTL > 0 {
		r = NewCached(r, cfg.CacheTTL)
	}
	return r, nil
}

// Resolve looks up host with r, short-circuiting IP literals.
func Resolve(ctx context.Context, r Resolver, host string) ([]netip.Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{ip.Unmap()}, nil
	}
	addrs, err := r.LookupNetIP(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("resolve %s: %w", host, ErrNoAddresses)
	}
	return addrs, nil
}

type systemResolver struct {
	r *net.Resolver
}

// System returns a Resolver backed by net.DefaultResolver.
func System() Resolver {
	return &systemResolver{r: net.DefaultResolver}
}

func (s *systemResolver) LookupNetIP(ctx context.Context, host string) ([]netip.Addr, error) {
	addrs, err := s.r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	for i := range addrs {
		addrs[i] = addrs[i].Unmap()
	}
	return addrs, nil
}
