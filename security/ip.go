package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the real client IP address from the request.
// X-Forwarded-For and X-Real-IP are only consulted when trustProxy is set;
// trusting them on a directly exposed server lets clients spoof their IP
// and defeat per-IP rate limiting.
//
// X-Forwarded-For format is "client, proxy1, proxy2, ...". trustedProxyCount
// specifies how many proxies to trust from the right, so the client entry is
// the one immediately left of the trusted suffix.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := extractIPFromXFF(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := extractIPFromXRealIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return extractIPFromRemoteAddr(r.RemoteAddr)
}

func extractIPFromXFF(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}

	ips := strings.Split(xff, ",")
	clientIndex := len(ips) - trustedProxyCount - 1
	if clientIndex < 0 {
		clientIndex = 0
	}

	clientIP := strings.TrimSpace(ips[clientIndex])
	if net.ParseIP(clientIP) == nil {
		return ""
	}
	return clientIP
}

func extractIPFromXRealIP(realIP string) string {
	realIP = strings.TrimSpace(realIP)
	if realIP == "" || net.ParseIP(realIP) == nil {
		return ""
	}
	return realIP
}

func extractIPFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		// RemoteAddr without a port (some test servers and unix sockets)
		return remoteAddr
	}
	return host
}
