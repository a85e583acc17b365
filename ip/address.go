package ip

import (
	"net/netip"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Family is the address family a provider answers for.
type Family int

const (
	V4 Family = iota
	V6
)

func (f Family) String() string {
	switch f {
	case V4:
		return "IPv4"
	case V6:
		return "IPv6"
	default:
		return "unknown"
	}
}

// ParseFamily parses IPv4/IPv6 in the spellings used by provider tables and flags.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ipv4", "v4", "4":
		return V4, nil
	case "ipv6", "v6", "6":
		return V6, nil
	}
	return V4, errors.Errorf("unknown address family %q", s)
}

// Address is a discovered global address.
type Address struct {
	Family     Family
	Addr       netip.Addr
	Provider   string
	ObservedAt time.Time
	Latency    time.Duration
}

func (a Address) String() string {
	return a.Addr.String()
}

// parseAddr parses raw as a literal of the given family.
func parseAddr(family Family, raw string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(raw)
	if err != nil || addr.Zone() != "" {
		return netip.Addr{}, &AddrParseError{Raw: raw}
	}
	switch family {
	case V4:
		if !addr.Is4() {
			return netip.Addr{}, &AddrParseError{Raw: raw}
		}
	case V6:
		if !addr.Is6() {
			return netip.Addr{}, &AddrParseError{Raw: raw}
		}
	}
	return addr, nil
}

func newAddress(d Descriptor, addr netip.Addr, started time.Time) Address {
	now := time.Now()
	return Address{
		Family:     d.Family,
		Addr:       addr,
		Provider:   d.Name,
		ObservedAt: now.UTC(),
		Latency:    now.Sub(started),
	}
}
