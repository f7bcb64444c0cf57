package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"
)

// SSHProxyDialer reaches destinations through "direct-tcpip" channels on an
// SSH server, the way ssh -D does.
//
// One SSH transport is shared by every dial. It is opened on first use and
// reopened once when opening a channel fails for a reason other than the
// server refusing the destination.
type SSHProxyDialer struct {
	cfg     Config
	sshAddr string
	sshCfg  *ssh.ClientConfig
	direct  Dialer

	mu     sync.Mutex
	client *ssh.Client
	sf     singleflight.Group
}

// NewSSHProxyDialer returns a dialer tunneling through the SSH server at
// sshAddr. Password and key authentication are both offered when available;
// keys come from cfg.SSHKeyPath and host keys are checked against
// cfg.SSHKnownHostsPath.
func NewSSHProxyDialer(cfg Config, sshAddr, username, password string) (*SSHProxyDialer, error) {
	if username == "" {
		return nil, errors.New("ssh dialer: missing username")
	}

	signers, err := loadSSHSigners(cfg.SSHKeyPath)
	if err != nil {
		return nil, fmt.Errorf("ssh dialer: %w", err)
	}
	var auth []ssh.AuthMethod
	if len(signers) > 0 {
		auth = append(auth, ssh.PublicKeys(signers...))
	}
	if password != "" {
		auth = append(auth, ssh.Password(password))
	}
	if len(auth) == 0 {
		return nil, errors.New("ssh dialer: missing password or key")
	}

	hostKeyCallback, err := sshHostKeyCallback(cfg.SSHKnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("ssh dialer: %w", err)
	}

	return &SSHProxyDialer{
		cfg:     cfg,
		sshAddr: sshAddr,
		sshCfg: &ssh.ClientConfig{
			User:            username,
			Auth:            auth,
			HostKeyCallback: hostKeyCallback,
			Timeout:         cfg.DialTimeout,
		},
		direct: NewDirectDialer(cfg),
	}, nil
}

// DialContext opens a channel to address over the shared transport.
// Canceling ctx closes the returned conn.
func (d *SSHProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("ssh proxy dial %s %s: unsupported network", network, address)
	}

	client, err := d.getClient(ctx)
	if err != nil {
		return nil, err
	}

	c, err := client.DialContext(ctx, "tcp", address)
	if err != nil {
		// The server refused the destination; the transport is fine.
		var openErr *ssh.OpenChannelError
		if errors.As(err, &openErr) {
			return nil, fmt.Errorf("ssh proxy dial %s: %w", address, err)
		}

		d.dropClient(client)
		if client, err = d.getClient(ctx); err != nil {
			return nil, err
		}
		if c, err = client.DialContext(ctx, "tcp", address); err != nil {
			return nil, fmt.Errorf("ssh proxy dial %s: %w", address, err)
		}
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
	return &sshChannelConn{Conn: c, stop: stop}, nil
}

// Close shuts down the shared transport. Open channels are closed with it.
func (d *SSHProxyDialer) Close() error {
	d.mu.Lock()
	client := d.client
	d.client = nil
	d.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}

// getClient returns the shared transport, connecting it if needed. Concurrent
// callers share one connection attempt, which outlives any caller's ctx.
func (d *SSHProxyDialer) getClient(ctx context.Context) (*ssh.Client, error) {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client != nil {
		return client, nil
	}

	ch := d.sf.DoChan("connect", func() (any, error) {
		d.mu.Lock()
		if d.client != nil {
			c := d.client
			d.mu.Unlock()
			return c, nil
		}
		d.mu.Unlock()

		c, err := d.dialSSH(context.Background())
		if err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.client = c
		d.mu.Unlock()
		return c, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ssh.Client), nil
	}
}

func (d *SSHProxyDialer) dialSSH(ctx context.Context) (*ssh.Client, error) {
	c, err := d.direct.DialContext(ctx, "tcp", d.sshAddr)
	if err != nil {
		return nil, fmt.Errorf("ssh proxy: %w", err)
	}

	if d.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Now().Add(d.cfg.NegotiationTimeout))
	}
	cc, chans, reqs, err := ssh.NewClientConn(c, d.sshAddr, d.sshCfg)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ssh proxy handshake: %w", err)
	}
	_ = c.SetDeadline(time.Time{})

	return ssh.NewClient(cc, chans, reqs), nil
}

// dropClient forgets client if it is still the shared transport and closes
// it.
func (d *SSHProxyDialer) dropClient(client *ssh.Client) {
	d.mu.Lock()
	if d.client == client {
		d.client = nil
	}
	d.mu.Unlock()
	_ = client.Close()
}

// sshChannelConn is one channel; closing it leaves the transport open.
type sshChannelConn struct {
	net.Conn
	stop func() bool
}

func (c *sshChannelConn) Close() error {
	c.stop()
	return c.Conn.Close()
}

// CloseWrite sends EOF on the channel so relays can half-close it.
func (c *sshChannelConn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return errors.New("close write unsupported")
}
