package api

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Proxy headers consulted, in order, when they are trusted.
var proxyHeaders = []string{"CF-Connecting-IP", "X-Real-IP"}

// OriginResolver derives the voter origin of a request.
type OriginResolver struct {
	trustProxy bool
}

// NewOriginResolver returns a resolver. With trustProxy set, the first hop
// of X-Forwarded-For wins, then CF-Connecting-IP, then X-Real-IP, and the
// socket address last. Without it only the socket address is used, since
// clients can set those headers to anything.
func NewOriginResolver(trustProxy bool) OriginResolver {
	return OriginResolver{trustProxy: trustProxy}
}

// Resolve returns the normalized origin address, or "" when none is usable.
func (o OriginResolver) Resolve(r *http.Request) string {
	if o.trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if addr := normalize(first); addr != "" {
				return addr
			}
		}
		for _, h := range proxyHeaders {
			if addr := normalize(r.Header.Get(h)); addr != "" {
				return addr
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return normalize(host)
}

func normalize(s string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return addr.Unmap().WithZone("").String()
}
