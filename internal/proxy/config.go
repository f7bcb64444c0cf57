package proxy

import (
	"net"
	"time"

	"github.com/die-net/socksrelay/internal/dialer"
	"github.com/die-net/socksrelay/internal/resolver"
)

type Config struct {
	// NegotiationTimeout bounds the handshake and the outbound connect. Zero
	// means no limit.
	NegotiationTimeout time.Duration

	// HalfCloseTimeout is how long a relay keeps the remaining direction
	// open after one side has finished sending. Zero closes both sides as
	// soon as either finishes.
	HalfCloseTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	// Verbose enables per-connection logging.
	Verbose bool

	Dialer   dialer.Dialer
	Resolver resolver.Resolver
}
