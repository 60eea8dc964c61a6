// Package permission implements the Permission Gate (spec.md §4.8): the
// CIDR allow-list check consulted by the Autostart Coordinator before it
// lets a client register for a project.
package permission

import (
	"net"

	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/rplog"
)

// Gate holds the configured CIDR allow-list. A nil or empty Restrict
// permits every client, matching spec.md §4.8's "If absent, permit."
type Gate struct {
	Restrict []string
}

// Allowed reports whether clientIP may use autostart. Malformed CIDRs in
// Restrict are logged and skipped (spec.md §4.8); a malformed clientIP is
// logged and denies, since there is no address to check against anything.
func (g Gate) Allowed(clientIP string) bool {
	if len(g.Restrict) == 0 {
		return true
	}

	ip := net.ParseIP(clientIP)
	if ip == nil {
		rplog.Named("permission").Sugar().Warnf("malformed client address %q, denying autostart", clientIP)
		return false
	}

	for _, cidr := range g.Restrict {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			rplog.Named("permission").Sugar().Warnf("malformed autostart_restrict entry %q: %v", cidr, err)
			continue
		}
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
