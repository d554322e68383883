package pricewatch

import (
	"net"
	"net/url"
	"strings"
)

// ValidateTargetURL checks that a URL is safe to hand to the browser: http
// or https only, with a host that is not loopback, private or link-local.
// The browser runs inside the deployment network, so a crafted target URL
// would otherwise reach internal services.
func ValidateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	host := u.Hostname()
	if host == "" {
		return ErrInvalidURL
	}
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return ErrBlockedURL
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
			ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return ErrBlockedURL
		}
	}
	return nil
}
