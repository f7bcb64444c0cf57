// Package socks5 implements the SOCKS5 (RFC 1928) handshake used by socksrelay.
//
// The frame codec (ParseGreeting, ParseConnectRequest, EncodeConnectReply and
// friends) is pure: it converts between byte slices and the Greeting, Request
// and Reply records and performs no I/O. The Negotiator drives one client
// connection through the greeting and request exchange using that codec and
// yields a Plan describing what the proxy should do next.
//
// Protocol constants come from github.com/txthinking/socks5, which is also
// used for the client side of the handshake (ClientDial) when chaining through
// an upstream SOCKS5 proxy.
package socks5
