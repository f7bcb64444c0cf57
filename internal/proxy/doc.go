// Package proxy implements the socksrelay SOCKS5 server.
//
// SOCKS5Server supervises one goroutine per accepted client: it runs the
// handshake from internal/socks5, opens the destination with a Connector,
// and relays bytes with CopyBidirectional until either side is done.
package proxy
