package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/die-net/socksrelay/internal/dialer"
	"github.com/die-net/socksrelay/internal/resolver"
	"github.com/die-net/socksrelay/internal/socks5"
)

var (
	// ErrResolve marks a failed lookup of a domain destination.
	ErrResolve = errors.New("resolve destination")
	// ErrDial marks a destination that could not be connected to.
	ErrDial = errors.New("dial destination")
)

// Connector opens the outbound side of a CONNECT request.
type Connector struct {
	Resolver resolver.Resolver
	Dialer   dialer.Dialer
}

// NewConnector returns a Connector using cfg's resolver and dialer, falling
// back to the system resolver and a direct dialer.
func NewConnector(cfg Config) *Connector {
	c := &Connector{Resolver: cfg.Resolver, Dialer: cfg.Dialer}
	if c.Resolver == nil {
		c.Resolver = resolver.System()
	}
	if c.Dialer == nil {
		c.Dialer = dialer.NewDirectDialer(dialer.Config{KeepAlive: cfg.KeepAlive})
	}
	return c
}

// Connect resolves req's destination if it is a name and dials each address
// in turn until one answers. Errors wrap ErrResolve or ErrDial.
func (c *Connector) Connect(ctx context.Context, req *socks5.Request) (net.Conn, error) {
	addrs, err := c.destinations(ctx, req.Dst)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolve, err)
	}

	port := strconv.Itoa(int(req.Dst.Port))
	var errs []error
	for _, ip := range addrs {
		up, err := c.Dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip.String(), port))
		if err == nil {
			return up, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w %s: %w", ErrDial, req.Dst, errors.Join(errs...))
}

func (c *Connector) destinations(ctx context.Context, dst socks5.Addr) ([]netip.Addr, error) {
	if dst.IP.IsValid() {
		return []netip.Addr{dst.IP.Unmap()}, nil
	}
	if dst.Name == "" {
		return nil, errors.New("empty destination name")
	}
	return resolver.Resolve(ctx, c.Resolver, dst.Name)
}
