package socks5

import (
	txsocks5 "github.com/txthinking/socks5"
)

// MaxFrameSize bounds a single handshake read.
const MaxFrameSize = 1024

const (
	// Version is the protocol version sent by well-behaved clients. The
	// negotiator echoes whatever version the client sent.
	Version = txsocks5.Ver

	MethodNone         = txsocks5.MethodNone
	MethodGSSAPI       = txsocks5.MethodGSSAPI
	MethodUserPass     = txsocks5.MethodUsernamePassword
	MethodNoAcceptable = txsocks5.MethodUnsupportAll
)

// Greeting is the client's method-selection message.
type Greeting struct {
	Ver     byte
	Methods []byte
}

// ParseGreeting parses VER NMETHODS METHODS from b and reports how many
// bytes it consumed.
func ParseGreeting(b []byte) (Greeting, int, error) {
	if len(b) < 2 {
		return Greeting{}, 0, &FormatError{Frame: "greeting", Need: 2, Got: len(b)}
	}
	n := 2 + int(b[1])
	if len(b) < n {
		return Greeting{}, 0, &FormatError{Frame: "greeting", Need: n, Got: len(b)}
	}
	methods := make([]byte, n-2)
	copy(methods, b[2:n])
	return Greeting{Ver: b[0], Methods: methods}, n, nil
}

// SelectMethod picks "no authentication" when offered and MethodNoAcceptable
// otherwise.
func SelectMethod(methods []byte) byte {
	for _, m := range methods {
		if m == MethodNone {
			return MethodNone
		}
	}
	return MethodNoAcceptable
}

// EncodeGreetingReply returns the two byte VER METHOD reply.
func EncodeGreetingReply(ver, method byte) []byte {
	return []byte{ver, method}
}
