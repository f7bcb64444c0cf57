package resolver

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"reflect"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
)

func startDNSServer(t *testing.T, records map[string][]netip.Addr) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)

		q := r.Question[0]
		addrs, ok := records[q.Name]
		if !ok {
			m.Rcode = dns.RcodeNameError
			_ = w.WriteMsg(m)
			return
		}
		hdr := dns.RR_Header{Name: q.Name, Rrtype: q.Qtype, Class: dns.ClassINET, Ttl: 60}
		for _, a := range addrs {
			switch {
			case q.Qtype == dns.TypeA && a.Is4():
				m.Answer = append(m.Answer, &dns.A{Hdr: hdr, A: a.AsSlice()})
			case q.Qtype == dns.TypeAAAA && a.Is6():
				m.Answer = append(m.Answer, &dns.AAAA{Hdr: hdr, AAAA: a.AsSlice()})
			}
		}
		_ = w.WriteMsg(m)
	})

	srv := &dns.Server{PacketConn: pc, Handler: handler}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestDNSResolverLookup(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	server := startDNSServer(t, map[string][]netip.Addr{
		"example.test.": {netip.MustParseAddr("192.0.2.10"), netip.MustParseAddr("2001:db8::10")},
	})

	r := NewDNSResolver(server, time.Second)
	addrs, err := r.LookupNetIP(ctx, "example.test")
	if err != nil {
		t.Fatal(err)
	}
	want := []netip.Addr{netip.MustParseAddr("192.0.2.10"), netip.MustParseAddr("2001:db8::10")}
	if !slices.Equal(addrs, want) {
		t.Fatalf("got %v want %v", addrs, want)
	}
}

func TestDNSResolverNXDomain(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	server := startDNSServer(t, nil)

	r := NewDNSResolver(server, time.Second)
	if _, err := Resolve(ctx, r, "missing.test"); err == nil {
		t.Fatal("expected error")
	}
}

func TestResolveLiteral(t *testing.T) {
	tests := []struct {
		host string
		want netip.Addr
	}{
		{host: "127.0.0.1", want: netip.MustParseAddr("127.0.0.1")},
		{host: "::1", want: netip.MustParseAddr("::1")},
		{host: "::ffff:10.0.0.1", want: netip.MustParseAddr("10.0.0.1")},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			addrs, err := Resolve(context.Background(), failingResolver{}, tt.host)
			if err != nil {
				t.Fatal(err)
			}
			if len(addrs) != 1 || addrs[0] != tt.want {
				t.Fatalf("got %v want %v", addrs, tt.want)
			}
		})
	}
}

func TestResolveEmpty(t *testing.T) {
	_, err := Resolve(context.Background(), emptyResolver{}, "nothing.test")
	if !errors.Is(err, ErrNoAddresses) {
		t.Fatalf("expected ErrNoAddresses, got %v", err)
	}
}

func TestCached(t *testing.T) {
	counter := &countingResolver{addr: netip.MustParseAddr("192.0.2.1")}
	c := NewCached(counter, time.Minute)

	for range 3 {
		addrs, err := c.LookupNetIP(context.Background(), "cached.test")
		if err != nil {
			t.Fatal(err)
		}
		if len(addrs) != 1 || addrs[0] != counter.addr {
			t.Fatalf("got %v", addrs)
		}
	}
	if n := counter.calls.Load(); n != 1 {
		t.Fatalf("underlying resolver called %d times, want 1", n)
	}

	if _, err := NewCached(failingResolver{}, time.Minute).LookupNetIP(context.Background(), "x.test"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantType any
		wantErr  bool
	}{
		{name: "system", cfg: Config{}, wantType: &systemResolver{}},
		{name: "dns server", cfg: Config{Server: "127.0.0.1:53"}, wantType: &DNSResolver{}},
		{name: "cached", cfg: Config{CacheTTL: time.Minute}, wantType: &Cached{}},
		{name: "missing port", cfg: Config{Server: "127.0.0.1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got, want := reflect.TypeOf(r), reflect.TypeOf(tt.wantType); got != want {
				t.Fatalf("got %s want %s", got, want)
			}
		})
	}
}

type failingResolver struct{}

func (failingResolver) LookupNetIP(context.Context, string) ([]netip.Addr, error) {
	return nil, errors.New("lookup failed")
}

type emptyResolver struct{}

func (emptyResolver) LookupNetIP(context.Context, string) ([]netip.Addr, error) {
	return nil, nil
}

type countingResolver struct {
	addr  netip.Addr
	calls atomic.Int32
}

func (c *countingResolver) LookupNetIP(context.Context, string) ([]netip.Addr, error) {
	c.calls.Add(1)
	return []netip.Addr{c.addr}, nil
}
