// Package addr provides IPv4 address and CIDR subnet arithmetic: parsing,
// formatting, masks, containment, and overlap tests.
package addr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors, grouped by the project's error taxonomy (InvalidInput).
var (
	ErrInvalidAddress    = errors.New("addr: invalid IPv4 address")
	ErrInvalidCIDR       = errors.New("addr: invalid CIDR notation")
	ErrInvalidPrefixLen  = errors.New("addr: prefix length out of range")
)

// IPv4 represents a 32-bit IPv4 address in host byte order.
type IPv4 uint32

// ParseAddr parses a strict dotted-quad IPv4 address.
func ParseAddr(s string) (IPv4, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAddress, s)
	}
	var v uint32
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidAddress, s)
		}
		v = v<<8 | uint32(n)
	}
	return IPv4(v), nil
}

// String renders the address in canonical dotted-quad form.
func (a IPv4) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(a>>24), byte(a>>16), byte(a>>8), byte(a))
}

// MarshalText implements encoding.TextMarshaler.
func (a IPv4) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *IPv4) UnmarshalText(b []byte) error {
	v, err := ParseAddr(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Subnet is an IPv4 CIDR block: a base address with its host bits zeroed,
// plus a prefix length in [0, 32].
type Subnet struct {
	addr      IPv4
	prefixLen uint8
}

// NewSubnet constructs a canonical Subnet, masking off any host bits of addr.
func NewSubnet(a IPv4, prefixLen int) (Subnet, error) {
	if prefixLen < 0 || prefixLen > 32 {
		return Subnet{}, ErrInvalidPrefixLen
	}
	sn := Subnet{addr: a, prefixLen: uint8(prefixLen)}
	sn.addr &= sn.netMaskUnchecked()
	return sn, nil
}

// ParseSubnet parses a dotted-quad "/" prefix CIDR string, canonicalising
// the base address by zeroing its host bits.
func ParseSubnet(s string) (Subnet, error) {
	slash := strings.IndexByte(s, '/')
	if slash < 0 {
		return Subnet{}, fmt.Errorf("%w: %s", ErrInvalidCIDR, s)
	}
	a, err := ParseAddr(s[:slash])
	if err != nil {
		return Subnet{}, fmt.Errorf("%w: %s", ErrInvalidCIDR, s)
	}
	prefixLen, err := strconv.Atoi(s[slash+1:])
	if err != nil {
		return Subnet{}, fmt.Errorf("%w: %s", ErrInvalidPrefixLen, s)
	}
	return NewSubnet(a, prefixLen)
}

// String renders the subnet in canonical "a.b.c.d/p" form.
func (sn Subnet) String() string {
	return fmt.Sprintf("%s/%d", sn.addr, sn.prefixLen)
}

// Addr returns the subnet's (canonical) base address.
func (sn Subnet) Addr() IPv4 { return sn.addr }

// PrefixLen returns the subnet's prefix length.
func (sn Subnet) PrefixLen() int { return int(sn.prefixLen) }

func (sn Subnet) netMaskUnchecked() IPv4 {
	if sn.prefixLen == 0 {
		return 0
	}
	return IPv4(^uint32(0) << (32 - sn.prefixLen))
}

// NetMask returns the network mask (high bits set) for the subnet.
func (sn Subnet) NetMask() IPv4 { return sn.netMaskUnchecked() }

// HostMask returns the host mask (low bits set) for the subnet.
func (sn Subnet) HostMask() IPv4 { return ^sn.netMaskUnchecked() }

// Start returns the first (network) address of the subnet.
func (sn Subnet) Start() IPv4 { return sn.addr }

// End returns the last (broadcast) address of the subnet.
func (sn Subnet) End() IPv4 { return sn.addr | sn.HostMask() }

// HasReserved reports whether the subnet is large enough to have distinct
// network/broadcast addresses (prefixLen <= 30).
func (sn Subnet) HasReserved() bool { return sn.prefixLen <= 30 }

// Size returns the number of addresses in the subnet, minus the network and
// broadcast addresses iff excludeReserved and the subnet HasReserved.
func (sn Subnet) Size(excludeReserved bool) uint64 {
	count := uint64(1) << (32 - sn.prefixLen)
	if excludeReserved && sn.HasReserved() {
		count -= 2
	}
	return count
}

// Contains reports whether a lies within sn.
func (sn Subnet) Contains(a IPv4) bool {
	return a&sn.netMaskUnchecked() == sn.addr
}

// Overlaps reports whether sn and other share any addresses, comparing
// under the mask of whichever subnet has the shorter (less specific) prefix.
func (sn Subnet) Overlaps(other Subnet) bool {
	var mask IPv4
	if sn.prefixLen < other.prefixLen {
		mask = sn.netMaskUnchecked()
	} else {
		mask = other.netMaskUnchecked()
	}
	return sn.addr&mask == other.addr&mask
}
