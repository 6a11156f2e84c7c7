package service

import (
	"net"
	"strings"
)

// UnknownIP is recorded when no source identity can be derived. Admission
// never fails just because the caller's address is unknowable.
const UnknownIP = "unknown"

// ClientIP derives the caller's network identity with a fixed precedence:
// first X-Forwarded-For value, then the direct connection address, then
// the "unknown" sentinel. Pure so it is testable without a live request.
func ClientIP(forwardedFor, remoteAddr string) string {
	if forwardedFor != "" {
		first := forwardedFor
		if i := strings.IndexByte(first, ','); i >= 0 {
			first = first[:i]
		}
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if remoteAddr != "" {
		if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
			return host
		}
		return remoteAddr
	}

	return UnknownIP
}
