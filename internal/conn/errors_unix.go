//go:build unix

package conn

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ENOTCONN comes back from shutdown(2) when the peer reset the stream before
// a half-close could be sent.
var peerClosedErrnos = []error{unix.ECONNRESET, unix.EPIPE, unix.ECONNABORTED, unix.ENOTCONN}

func isResetOrPipe(err error) bool {
	for _, errno := range peerClosedErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

func isAddrInUse(err error) bool {
	return errors.Is(err, unix.EADDRINUSE)
}
