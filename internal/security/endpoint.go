package security

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// ValidateWebhookURL screens an alert destination before the notifier will
// post to it. The literal host and every DNS answer must clear the address
// screen, which rejects loopback, private, link-local, and unspecified
// ranges. allowLoopback relaxes the loopback rule so a development setup
// can target a receiver on the same machine.
func ValidateWebhookURL(rawURL string, allowLoopback bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	host := u.Hostname()
	if hostBlocked(host, allowLoopback) {
		return fmt.Errorf("URL host %q is not allowed", host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return screenAddr(addr, allowLoopback)
	}
	if allowLoopback && strings.EqualFold(host, "localhost") {
		// Local receivers skip DNS entirely.
		return nil
	}

	answers, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("cannot resolve URL host: %s", host)
	}
	for _, answer := range answers {
		addr, err := netip.ParseAddr(answer)
		if err != nil {
			continue
		}
		if err := screenAddr(addr, allowLoopback); err != nil {
			return fmt.Errorf("URL host %q resolves to blocked address: %v", host, err)
		}
	}
	return nil
}

// Cloud metadata names stay blocked even when loopback is allowed.
func hostBlocked(host string, allowLoopback bool) bool {
	for _, name := range []string{"metadata.google.internal", "metadata.google"} {
		if strings.EqualFold(host, name) {
			return true
		}
	}
	return !allowLoopback && strings.EqualFold(host, "localhost")
}

func screenAddr(addr netip.Addr, allowLoopback bool) error {
	switch {
	case addr.IsLoopback():
		if allowLoopback {
			return nil
		}
		return fmt.Errorf("loopback addresses are not allowed")
	case addr.IsPrivate():
		return fmt.Errorf("private addresses are not allowed")
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return fmt.Errorf("link-local addresses are not allowed")
	case addr.IsUnspecified():
		return fmt.Errorf("unspecified addresses are not allowed")
	}
	return nil
}
