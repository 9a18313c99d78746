package scans

import (
	"net"
	"net/netip"
	"strings"
)

// RequestMetadata is what the recorder observes of an inbound scan request.
// It is copied out of the request before the response is sent.
type RequestMetadata struct {
	// Headers are keyed by lower-cased header name.
	Headers    map[string]string
	RemoteAddr string
}

// Header returns a header value by case-insensitive name.
func (m RequestMetadata) Header(name string) string {
	return m.Headers[strings.ToLower(name)]
}

// UserAgent returns the raw User-Agent header.
func (m RequestMetadata) UserAgent() string {
	return m.Header("User-Agent")
}

// ClientIP picks the scanning client's address: the first X-Forwarded-For hop
// when trusted and parseable, otherwise the transport peer. The result is
// empty when neither yields an address.
func ClientIP(meta RequestMetadata, trustForwardedFor bool) string {
	if trustForwardedFor {
		if xff := meta.Header("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := normalizeIP(first); ip != "" {
				return ip
			}
		}
	}
	return normalizeIP(meta.RemoteAddr)
}

// normalizeIP accepts bare addresses, host:port pairs, bracketed IPv6 and
// quoted values. IPv4-mapped IPv6 addresses are unmapped.
func normalizeIP(raw string) string {
	clean := strings.Trim(strings.TrimSpace(raw), `"`)
	if clean == "" {
		return ""
	}

	if addrPort, err := netip.ParseAddrPort(clean); err == nil {
		return addrPort.Addr().Unmap().WithZone("").String()
	}

	trimmed := strings.TrimSuffix(strings.TrimPrefix(clean, "["), "]")
	if addr, err := netip.ParseAddr(trimmed); err == nil {
		return addr.Unmap().WithZone("").String()
	}

	if host, _, err := net.SplitHostPort(clean); err == nil && host != clean {
		return normalizeIP(host)
	}
	return ""
}
