package blacklist

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// MaxPrefixLen is the number of bits in an IPv4 address.
const MaxPrefixLen = 32

// Key identifies a blacklist entry, and doubles as the lookup key.
//
// Addr is kept in network byte order. The kernel LPM trie compares key data
// byte by byte, so the same layout is used on both sides of the map.
type Key struct {
	PrefixLen uint32
	Addr      [4]byte
}

// Entry is a blacklisted prefix and the rule it belongs to.
type Entry struct {
	Key  Key
	Rule uint32
}

// HostKey returns the /32 key for addr.
func HostKey(addr [4]byte) Key {
	return Key{PrefixLen: MaxPrefixLen, Addr: addr}
}

// KeyFromPrefix converts p to its canonical key (host bits cleared).
func KeyFromPrefix(p netip.Prefix) (Key, error) {
	if !p.IsValid() || !p.Addr().Is4() {
		return Key{}, fmt.Errorf("%w: %s is not an IPv4 prefix", ErrInvalidPrefix, p)
	}

	p = p.Masked()

	return Key{PrefixLen: uint32(p.Bits()), Addr: p.Addr().As4()}, nil
}

// ParseKey accepts an IPv4 CIDR or a bare address (treated as /32).
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)

	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return Key{}, fmt.Errorf("%w: %v", ErrInvalidPrefix, err)
		}

		return KeyFromPrefix(p)
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidPrefix, err)
	}

	return KeyFromPrefix(netip.PrefixFrom(addr, MaxPrefixLen))
}

// Prefix returns k as a netip.Prefix. Invalid lengths give an invalid prefix.
func (k Key) Prefix() netip.Prefix {
	return netip.PrefixFrom(netip.AddrFrom4(k.Addr), int(k.PrefixLen))
}

// IPNet returns k in the form cidranger stores.
func (k Key) IPNet() net.IPNet {
	return net.IPNet{
		IP:   net.IP(k.Addr[:]).To4(),
		Mask: net.CIDRMask(int(k.PrefixLen), MaxPrefixLen),
	}
}

func (k Key) String() string {
	return k.Prefix().String()
}

// Canonical validates k and clears its host bits.
func (k Key) Canonical() (Key, error) {
	if k.PrefixLen > MaxPrefixLen {
		return Key{}, fmt.Errorf("%w: /%d", ErrInvalidPrefixLen, k.PrefixLen)
	}

	p := k.Prefix().Masked()

	return Key{PrefixLen: k.PrefixLen, Addr: p.Addr().As4()}, nil
}
