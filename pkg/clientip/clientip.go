package clientip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Unknown is returned when no address can be read from the request.
const Unknown = "unknown"

// RealClientIP returns the peer address of r for rate limiting and request
// logs. Proxy headers are ignored: the server is reached directly, and a
// forwarded header would let any client choose its own limiter bucket.
func RealClientIP(r *http.Request) string {
	return FromRemoteAddr(r.RemoteAddr)
}

// FromRemoteAddr strips the port from addr and unmaps IPv4-in-IPv6, so
// "[::ffff:10.0.0.1]:443" and "10.0.0.1:80" share one key.
func FromRemoteAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	host = strings.Trim(host, "[]")
	if host == "" {
		return Unknown
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return ip.Unmap().String()
	}
	return host
}
