package proxy

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"slices"
	"sync"
	"testing"

	"github.com/die-net/socksrelay/internal/socks5"
)

// recordingDialer fails for every address in refuse and hands out one end
// of a pipe otherwise.
type recordingDialer struct {
	mu     sync.Mutex
	refuse map[string]bool
	dialed []string
}

func (d *recordingDialer) DialContext(_ context.Context, _, address string) (net.Conn, error) {
	d.mu.Lock()
	d.dialed = append(d.dialed, address)
	d.mu.Unlock()

	if d.refuse[address] {
		return nil, errors.New("connection refused")
	}
	c, other := net.Pipe()
	_ = other.Close()
	return c, nil
}

func TestConnectorFallsBackAcrossAddresses(t *testing.T) {
	d := &recordingDialer{refuse: map[string]bool{"192.0.2.1:443": true}}
	c := &Connector{
		Resolver: staticResolver{"multi.test": {netip.MustParseAddr("192.0.2.1"), netip.MustParseAddr("2001:db8::1")}},
		Dialer:   d,
	}

	up, err := c.Connect(context.Background(), &socks5.Request{
		Cmd:  socks5.CmdConnect,
		Atyp: socks5.ATYPDomain,
		Dst:  socks5.Addr{Name: "multi.test", Port: 443},
	})
	if err != nil {
		t.Fatal(err)
	}
	_ = up.Close()

	if want := []string{"192.0.2.1:443", "[2001:db8::1]:443"}; !slices.Equal(d.dialed, want) {
		t.Fatalf("dialed %v want %v", d.dialed, want)
	}
}

func TestConnectorErrors(t *testing.T) {
	tests := []struct {
		name string
		dst  socks5.Addr
		want error
	}{
		{name: "unknown name", dst: socks5.Addr{Name: "missing.test", Port: 80}, want: ErrResolve},
		{name: "empty name", dst: socks5.Addr{Port: 80}, want: ErrResolve},
		{name: "refused", dst: socks5.Addr{IP: netip.MustParseAddr("192.0.2.1"), Port: 80}, want: ErrDial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Connector{
				Resolver: staticResolver{},
				Dialer:   &recordingDialer{refuse: map[string]bool{"192.0.2.1:80": true}},
			}
			_, err := c.Connect(context.Background(), &socks5.Request{Cmd: socks5.CmdConnect, Dst: tt.dst})
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v want %v", err, tt.want)
			}
		})
	}
}

func TestConnectorIPv4MappedDestination(t *testing.T) {
	d := &recordingDialer{}
	c := &Connector{Resolver: staticResolver{}, Dialer: d}

	up, err := c.Connect(context.Background(), &socks5.Request{
		Cmd:  socks5.CmdConnect,
		Atyp: socks5.ATYPIPv6,
		Dst:  socks5.Addr{IP: netip.MustParseAddr("::ffff:127.0.0.1"), Port: 8080},
	})
	if err != nil {
		t.Fatal(err)
	}
	_ = up.Close()

	if want := []string{"127.0.0.1:8080"}; !slices.Equal(d.dialed, want) {
		t.Fatalf("dialed %v want %v", d.dialed, want)
	}
}
