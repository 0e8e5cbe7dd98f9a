package storage

import (
	"net/url"
	"strings"
)

// NormalizeURL ensures consistent identity for listing and detail URLs:
// lowercase host, no fragment, no trailing slash.
func NormalizeURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		u.Host = strings.ToLower(u.Host)
		u.Fragment = ""
		if strings.HasSuffix(u.Path, "/") && len(u.Path) > 1 {
			u.Path = strings.TrimRight(u.Path, "/")
		}
		if u.Scheme == "" {
			u.Scheme = "https"
		}
		return u.String()
	}
	return s
}
