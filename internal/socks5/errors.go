package socks5

import (
	"errors"
	"fmt"
)

var (
	// ErrAddressTypeNotSupported is returned by ParseConnectRequest for an
	// unknown ATYP. The returned Request still carries the header fields.
	ErrAddressTypeNotSupported = errors.New("socks5: address type not supported")

	// ErrNoAcceptableMethods means the client offered no method this server
	// accepts.
	ErrNoAcceptableMethods = errors.New("socks5: no acceptable authentication methods")
)

// FormatError reports a truncated or malformed handshake frame.
type FormatError struct {
	Frame string
	Need  int
	Got   int
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("socks5: short %s frame: need %d bytes, got %d", e.Frame, e.Need, e.Got)
}

// RefusedError is returned when a request was answered with a failure reply.
type RefusedError struct {
	Cmd byte
	Rep byte
}

func (e *RefusedError) Error() string {
	return fmt.Sprintf("socks5: %s refused: %s", CommandString(e.Cmd), ReplyString(e.Rep))
}
