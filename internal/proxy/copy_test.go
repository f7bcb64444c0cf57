package proxy

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"net"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// tcpPair returns both ends of a loopback TCP connection.
func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	dialed, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	c, ok := <-accepted
	if !ok {
		t.Fatal("accept failed")
	}
	t.Cleanup(func() {
		_ = dialed.Close()
		_ = c.Close()
	})
	return dialed, c
}

type relayResult struct {
	stats Stats
	err   error
}

// testLinger outlasts every test that expects a half-closed relay to keep
// flowing.
const testLinger = 5 * time.Second

func startRelay(ctx context.Context, left, right net.Conn, linger time.Duration) <-chan relayResult {
	done := make(chan relayResult, 1)
	go func() {
		stats, err := CopyBidirectional(ctx, left, right, linger)
		done <- relayResult{stats: stats, err: err}
	}()
	return done
}

func waitRelay(t *testing.T, done <-chan relayResult) relayResult {
	t.Helper()

	select {
	case r := <-done:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not finish")
		return relayResult{}
	}
}

func expectEOF(t *testing.T, c net.Conn) {
	t.Helper()

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestCopyBidirectionalPingPong(t *testing.T) {
	a, left := tcpPair(t)
	right, b := tcpPair(t)

	done := startRelay(context.Background(), left, right, testLinger)

	_ = a.SetDeadline(time.Now().Add(2 * time.Second))
	_ = b.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := a.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(b, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "ping" {
		t.Fatalf("got %q want %q", buf, "ping")
	}

	if _, err := b.Write([]byte("pong")); err != nil {
		t.Fatal(err)
	}
	if _, err := io.ReadFull(a, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "pong" {
		t.Fatalf("got %q want %q", buf, "pong")
	}

	// Closing one end is passed on as EOF; closing the other finishes the relay.
	_ = a.Close()
	expectEOF(t, b)
	_ = b.Close()

	r := waitRelay(t, done)
	if r.err != nil {
		t.Fatal(r.err)
	}
	if r.stats.LeftToRight != 4 || r.stats.RightToLeft != 4 {
		t.Fatalf("stats %+v", r.stats)
	}
}

func TestCopyBidirectionalLargeTransfer(t *testing.T) {
	a, left := tcpPair(t)
	right, b := tcpPair(t)

	done := startRelay(context.Background(), left, right, testLinger)

	payload := make([]byte, 1<<20)
	if _, err := rand.Read(payload); err != nil {
		t.Fatal(err)
	}

	g := errgroup.Group{}
	g.Go(func() error {
		if _, err := a.Write(payload); err != nil {
			return err
		}
		return a.(*net.TCPConn).CloseWrite()
	})

	_ = b.SetReadDeadline(time.Now().Add(5 * time.Second))
	got, err := io.ReadAll(b)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %d bytes, want %d", len(got), len(payload))
	}

	_ = b.Close()
	r := waitRelay(t, done)
	if r.err != nil {
		t.Fatal(r.err)
	}
	if r.stats.LeftToRight != int64(len(payload)) {
		t.Fatalf("LeftToRight = %d, want %d", r.stats.LeftToRight, len(payload))
	}
}

func TestCopyBidirectionalWithoutHalfClose(t *testing.T) {
	a, left := net.Pipe()
	right, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	done := startRelay(context.Background(), left, right, testLinger)

	g := errgroup.Group{}
	g.Go(func() error {
		_, err := a.Write([]byte("ping"))
		return err
	})
	buf := make([]byte, 4)
	if _, err := io.ReadFull(b, buf); err != nil {
		t.Fatal(err)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	// A pipe can't half-close, so closing one end tears down the pair.
	_ = a.Close()
	expectEOF(t, b)

	if r := waitRelay(t, done); r.err != nil {
		t.Fatal(r.err)
	}
}

func TestCopyBidirectionalCancel(t *testing.T) {
	a, left := tcpPair(t)
	right, b := tcpPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := startRelay(ctx, left, right, testLinger)

	cancel()

	if r := waitRelay(t, done); r.err != nil {
		t.Fatal(r.err)
	}
	expectEOF(t, a)
	expectEOF(t, b)
}

func TestCopyBidirectionalReset(t *testing.T) {
	a, left := tcpPair(t)
	right, b := tcpPair(t)

	done := startRelay(context.Background(), left, right, testLinger)

	// Abortive close sends RST instead of FIN.
	_ = a.(*net.TCPConn).SetLinger(0)
	_ = a.Close()

	_ = b.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := b.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected the far side to be closed")
	}

	if r := waitRelay(t, done); r.err != nil {
		t.Fatalf("reset should end the relay without error, got %v", r.err)
	}
}

func TestCopyBidirectionalHalfCloseLinger(t *testing.T) {
	a, left := tcpPair(t)
	right, b := tcpPair(t)

	done := startRelay(context.Background(), left, right, testLinger)

	// The far side keeps sending after the near side stops writing.
	if err := a.(*net.TCPConn).CloseWrite(); err != nil {
		t.Fatal(err)
	}
	expectEOF(t, b)

	if _, err := b.Write([]byte("late")); err != nil {
		t.Fatal(err)
	}
	_ = a.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4)
	if _, err := io.ReadFull(a, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "late" {
		t.Fatalf("got %q want %q", buf, "late")
	}

	_ = b.Close()
	if r := waitRelay(t, done); r.err != nil {
		t.Fatal(r.err)
	}
}

func TestCopyBidirectionalLingerExpires(t *testing.T) {
	tests := []struct {
		name   string
		linger time.Duration
	}{
		{name: "no linger", linger: 0},
		{name: "short linger", linger: 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, left := tcpPair(t)
			right, b := tcpPair(t)

			done := startRelay(context.Background(), left, right, tt.linger)

			// b never closes; the relay must still tear down.
			_ = a.Close()

			r := waitRelay(t, done)
			if r.err != nil {
				t.Fatal(r.err)
			}

			_ = b.SetReadDeadline(time.Now().Add(2 * time.Second))
			if _, err := io.ReadAll(b); err != nil {
				t.Fatalf("expected the relay to close the far side, got %v", err)
			}
		})
	}
}
