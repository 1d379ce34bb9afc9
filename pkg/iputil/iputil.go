package iputil

import (
	"net"
	"net/netip"
)

// MustAddrFromSlice calls netip.AddrFromSlice and panics on error. Only
// used on slices already validated by net.ParseIP, so the panic path is
// unreachable in practice.
func MustAddrFromSlice(b []byte) netip.Addr {
	addr, ok := netip.AddrFromSlice(b)
	if !ok {
		panic("not ok when calling AddrFromSlice")
	}
	return addr
}

// rfc1918 are the private IPv4 ranges a caller on the public internet
// should never see in a peer list. This replaces the original tracker's
// is_local_ip, which only compared the first three bytes of the address
// string against "192" or "10." and so mismatched 172.16/12 entirely and
// misclassified addresses like 192.0.2.0 (public TEST-NET-1).
var rfc1918 = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

// IsPrivate reports whether ip (a dotted-quad IPv4 address) falls within
// an RFC1918 private range. ip is parsed with net.ParseIP rather than
// netip.ParseAddr so both dotted-quad and IPv4-in-IPv6 forms resolve to
// the same 4-byte representation before the range check runs.
func IsPrivate(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	v4 := parsed.To4()
	if v4 == nil {
		return false // no IPv6 range is treated as private here
	}

	addr := MustAddrFromSlice(v4)
	for _, p := range rfc1918 {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
