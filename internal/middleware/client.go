package middleware

import (
	"net"
	"net/http"
	"strings"
)

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// ClientIP keys rate limits and logs. Forwarded headers are ignored here;
// the router installs chi's RealIP in front when TRUST_PROXY_HEADERS is set,
// which rewrites RemoteAddr from them.
func ClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}

	if addr == "" {
		return "unknown"
	}
	return addr
}
