// Package conn holds the listener-side TCP plumbing shared by socksrelay:
// keepalive-aware listeners and classification of the socket errors that
// mark a normal end of a stream or a startup bind conflict.
package conn
