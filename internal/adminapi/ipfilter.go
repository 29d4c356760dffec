package adminapi

import (
	"fmt"
	"net/http"
	"net/netip"

	"github.com/0xReLogic/sensord/internal/logging"
	"github.com/0xReLogic/sensord/internal/utils"
)

// IPFilter provides IP-based access control with allow/deny lists
type IPFilter struct {
	allowList []netip.Prefix
	denyList  []netip.Prefix
}

// NewIPFilter creates a new IP filter from IP or CIDR entries
func NewIPFilter(allowList, denyList []string) (*IPFilter, error) {
	allow, err := parsePrefixes(allowList)
	if err != nil {
		return nil, fmt.Errorf("allow list: %w", err)
	}
	deny, err := parsePrefixes(denyList)
	if err != nil {
		return nil, fmt.Errorf("deny list: %w", err)
	}
	return &IPFilter{allowList: allow, denyList: deny}, nil
}

func parsePrefixes(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		if p, err := netip.ParsePrefix(entry); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid IP or CIDR %q: %w", entry, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// IsAllowed checks if the given IP address is allowed. Deny entries take
// precedence; an empty allow list admits every address not denied.
func (f *IPFilter) IsAllowed(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, p := range f.denyList {
		if p.Contains(addr) {
			return false
		}
	}
	if len(f.allowList) == 0 {
		return true
	}
	for _, p := range f.allowList {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Middleware returns an HTTP middleware that filters requests on the peer
// address.
func (f *IPFilter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := utils.RemoteIP(r)

		if !f.IsAllowed(clientIP) {
			logger := logging.WithContext(r.Context())
			logger.Warn().
				Str("client_ip", clientIP).
				Str("path", r.URL.Path).
				Msg("admin request blocked by ip filter")

			utils.WriteError(w, http.StatusForbidden, "ip address not allowed")
			return
		}

		next.ServeHTTP(w, r)
	})
}
