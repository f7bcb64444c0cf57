package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/die-net/socksrelay/internal/conn"
)

// errTeardown ends a relay once one direction is done and the other may not
// continue on its own.
var errTeardown = errors.New("relay teardown")

type closeWriter interface {
	CloseWrite() error
}

// Stats counts the bytes a relay moved in each direction.
type Stats struct {
	LeftToRight int64
	RightToLeft int64
}

// CopyBidirectional relays bytes between left and right, then closes both.
//
// EOF on one side is passed on as a half-close of the other when the conn
// supports it. The opposite direction then has linger to finish before both
// conns are closed; a linger of zero closes them right away. A reset, a write
// failure, or ctx being canceled closes both conns, which stops the opposite
// direction too. Peer closures and an expired linger are normal termination
// and are not returned as errors.
func CopyBidirectional(ctx context.Context, left, right net.Conn, linger time.Duration) (Stats, error) {
	g, gctx := errgroup.WithContext(ctx)

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	// errgroup cancels gctx on the first error and Wait cancels it on
	// return; either way both conns get closed so no pump stays blocked.
	stop := context.AfterFunc(gctx, closeBoth)
	defer stop()

	var lingerOnce sync.Once
	done := func() error {
		if linger <= 0 {
			return errTeardown
		}
		lingerOnce.Do(func() {
			dl := time.Now().Add(linger)
			_ = left.SetDeadline(dl)
			_ = right.SetDeadline(dl)
		})
		return nil
	}

	var l2r, r2l atomic.Int64
	g.Go(func() error {
		if err := pump(right, left, &l2r); err != nil {
			return err
		}
		return done()
	})
	g.Go(func() error {
		if err := pump(left, right, &r2l); err != nil {
			return err
		}
		return done()
	})

	err := g.Wait()
	stats := Stats{LeftToRight: l2r.Load(), RightToLeft: r2l.Load()}
	if errors.Is(err, errTeardown) || errors.Is(err, os.ErrDeadlineExceeded) || conn.IsPeerClosed(err) {
		err = nil
	}
	return stats, err
}

// pump copies src to dst in chunks of at most relayBufferSize bytes. It
// returns nil once src reaches EOF and the end has been passed on to dst.
func pump(dst, src net.Conn, n *atomic.Int64) error {
	bp := relayBuffers.Get()
	defer relayBuffers.Put(bp)
	buf := *bp

	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			n.Add(int64(nw))
			if werr != nil {
				return werr
			}
		}
		if rerr == nil {
			continue
		}
		if !errors.Is(rerr, io.EOF) {
			return rerr
		}
		if cw, ok := dst.(closeWriter); ok {
			if err := cw.CloseWrite(); err != nil {
				return err
			}
			return nil
		}
		return errTeardown
	}
}
