package conn

import (
	"errors"

	"golang.org/x/sys/windows"
)

// Winsock reports stream teardown with its own error codes rather than the
// POSIX ones.
var peerClosedErrnos = []error{
	windows.WSAECONNRESET,
	windows.WSAECONNABORTED,
	windows.WSAENOTCONN,
	windows.WSAESHUTDOWN,
	windows.ERROR_BROKEN_PIPE,
	windows.ERROR_NETNAME_DELETED,
}

func isResetOrPipe(err error) bool {
	for _, errno := range peerClosedErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

func isAddrInUse(err error) bool {
	return errors.Is(err, windows.WSAEADDRINUSE)
}
