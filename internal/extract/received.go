package extract

import (
	"net/netip"
	"regexp"
	"strings"
)

// An IP literal wrapped in [...] or (...), either a dotted quad or an
// RFC 5321 "IPv6:" address literal.
var receivedIP = regexp.MustCompile(`[\[(]\s*(?:[Ii][Pp][Vv]6:([0-9A-Fa-f:.]+)|(\d{1,3}(?:\.\d{1,3}){3}))\s*[\])]`)

var nonPublicV4 = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("0.0.0.0/8"),
}

// ReceivedChain returns the Received header values in header order,
// most recent hop first.
func ReceivedChain(headerBlock string) []string {
	return HeaderValues(headerBlock, "Received")
}

// OriginatingIP walks the Received chain from the oldest hop to the newest
// and returns the first public IP literal found.
//
// Each relay prepends its own Received line, so the hop closest to the
// sender is physically last. The chain is attacker-influenceable: a forged
// Received line below the first trusted relay can poison the result. This is
// accepted as a heuristic; no cryptographic verification is attempted.
func OriginatingIP(headerBlock string) (netip.Addr, bool) {
	chain := ReceivedChain(headerBlock)
	for i := len(chain) - 1; i >= 0; i-- {
		for _, addr := range ipLiterals(chain[i]) {
			if isPublic(addr) {
				return addr, true
			}
		}
	}
	return netip.Addr{}, false
}

// ipLiterals returns the wrapped IP literals of one Received line, left to right
func ipLiterals(line string) []netip.Addr {
	var addrs []netip.Addr
	for _, m := range receivedIP.FindAllStringSubmatch(line, -1) {
		literal := m[2]
		if literal == "" {
			literal = m[1]
		}
		addr, err := netip.ParseAddr(strings.TrimSpace(literal))
		if err != nil {
			continue
		}
		addrs = append(addrs, addr.Unmap())
	}
	return addrs
}

func isPublic(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	if addr.Is4() {
		for _, p := range nonPublicV4 {
			if p.Contains(addr) {
				return false
			}
		}
		return true
	}
	return !(addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified())
}
