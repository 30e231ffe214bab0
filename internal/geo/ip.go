package geo

import "net"

var nonRoutableNets = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"::1/128",   // IPv6 loopback
	"fc00::/7",  // IPv6 unique local
	"fe80::/10", // IPv6 link-local
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("geo: invalid CIDR " + cidr)
		}
		nets = append(nets, n)
	}
	return nets
}

// IsPublicIP reports whether ip parses and is routable on the public internet.
// Private, loopback, link-local, unspecified and malformed addresses are not.
func IsPublicIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil || ip.IsUnspecified() || ip.IsMulticast() {
		return false
	}
	for _, n := range nonRoutableNets {
		if n.Contains(ip) {
			return false
		}
	}
	return true
}
