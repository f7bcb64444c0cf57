// Package dialer provides the outbound dialers behind the SOCKS5 connector.
//
// Dialers implement a small interface (DialContext) and reach destinations
// either directly or by chaining through an upstream HTTP CONNECT, SOCKS5, or
// SSH proxy.
package dialer
