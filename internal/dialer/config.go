package dialer

import (
	"net"
	"time"
)

// Config holds the settings shared by all dialers.
type Config struct {
	DialTimeout        time.Duration
	NegotiationTimeout time.Duration
	KeepAlive          net.KeepAliveConfig

	// SSHKeyPath is an OpenSSH private key file for ssh:// upstreams, or
	// "agent" to use the keys held by SSH_AUTH_SOCK.
	SSHKeyPath string
	// SSHKnownHostsPath verifies ssh:// upstream host keys, learning
	// unknown hosts on first use. Empty disables host key checking.
	SSHKnownHostsPath string
}
