package proxy

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/die-net/socksrelay/internal/socks5"
)

// SOCKS5Server serves SOCKS5 CONNECT on accepted connections.
type SOCKS5Server struct {
	ctx       context.Context
	cfg       Config
	connector *Connector

	wg sync.WaitGroup
}

// NewSOCKS5Server constructs a SOCKS5 server. Canceling ctx tears down every
// active session and makes Serve return nil once the listener is closed.
func NewSOCKS5Server(ctx context.Context, cfg Config) *SOCKS5Server {
	if ctx == nil {
		ctx = context.Background()
	}
	return &SOCKS5Server{ctx: ctx, cfg: cfg, connector: NewConnector(cfg)}
}

// Serve accepts connections on ln and handles each in its own goroutine. It
// waits for active sessions before returning.
func (s *SOCKS5Server) Serve(ln net.Listener) error {
	defer s.wg.Wait()

	for {
		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.wg.Go(func() {
			s.serveConn(c)
		})
	}
}

func (s *SOCKS5Server) serveConn(c net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("socks5: %s: panic: %v", c.RemoteAddr(), r)
		}
	}()

	if err := s.handle(c); err != nil && s.cfg.Verbose {
		log.Printf("socks5: %s: %v", c.RemoteAddr(), err)
	}
}

func (s *SOCKS5Server) handle(client net.Conn) error {
	defer client.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	if s.cfg.NegotiationTimeout > 0 {
		_ = client.SetDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}

	n := socks5.NewNegotiator(client)
	plan, err := n.Negotiate()
	if err != nil {
		return fmt.Errorf("negotiate (%s): %w", n.State(), err)
	}
	if plan.Outcome != socks5.OutcomeTCP {
		return n.Refuse(plan)
	}

	up, err := s.connect(ctx, plan.Request)
	if err != nil {
		_ = n.Reply(socks5.ReplyTo(plan.Request, socks5.RepGeneralFailure))
		return err
	}
	defer up.Close()

	if err := n.Reply(socks5.ReplyTo(plan.Request, socks5.RepSuccess)); err != nil {
		return err
	}
	_ = client.SetDeadline(time.Time{})

	if len(plan.Pending) > 0 {
		if _, err := up.Write(plan.Pending); err != nil {
			return fmt.Errorf("forward early data to %s: %w", plan.Request.Dst, err)
		}
	}

	stats, err := CopyBidirectional(ctx, client, up, s.cfg.HalfCloseTimeout)
	if s.cfg.Verbose {
		log.Printf("socks5: %s -> %s: closed, %d bytes sent, %d bytes received",
			client.RemoteAddr(), plan.Request.Dst, stats.LeftToRight+int64(len(plan.Pending)), stats.RightToLeft)
	}
	if err != nil {
		return fmt.Errorf("relay %s: %w", plan.Request.Dst, err)
	}
	return nil
}

func (s *SOCKS5Server) connect(ctx context.Context, req *socks5.Request) (net.Conn, error) {
	if s.cfg.NegotiationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.NegotiationTimeout)
		defer cancel()
	}
	return s.connector.Connect(ctx, req)
}
