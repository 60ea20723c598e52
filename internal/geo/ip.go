package geo

import (
	"net/netip"
	"strings"
)

var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("0.0.0.0/8"),
}

// IsPrivateOrInvalid reports whether ip should be skipped for lookup: it is
// empty, unparsable, or in a private, loopback, link-local or "this network"
// range. IPv4-mapped IPv6 addresses are classified as IPv4.
func IsPrivateOrInvalid(ip string) bool {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return true
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return true
	}
	addr = addr.Unmap()

	if addr.Is4() {
		for _, p := range reservedPrefixes {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}

	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsUnspecified()
}
