// Package resolver turns destination host names into addresses for the
// SOCKS5 connector.
//
// The system resolver delegates to net.Resolver. DNSResolver queries a
// specific server directly with github.com/miekg/dns, and Cached wraps either
// one with a github.com/patrickmn/go-cache TTL cache.
package resolver
