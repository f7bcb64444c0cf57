package conn

import (
	"errors"
	"io"
	"net"
)

// IsPeerClosed reports whether err only says that the other end of a stream
// went away: EOF, a reset, a broken pipe, or a locally closed conn.
func IsPeerClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return isResetOrPipe(err)
}

// IsAddrInUse reports whether err is a listen failure caused by another
// socket already bound to the address.
func IsAddrInUse(err error) bool {
	return err != nil && isAddrInUse(err)
}
