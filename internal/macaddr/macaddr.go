// Package macaddr implements a 48-bit MAC address counter used to assign
// successive unicast MAC addresses to simulated interfaces.
package macaddr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAddress indicates a malformed "xx:xx:xx:xx:xx:xx" string.
var ErrInvalidAddress = errors.New("macaddr: invalid MAC address")

// ErrWrapped indicates that incrementing the counter passed ff:ff:ff:ff:ff:ff.
var ErrWrapped = errors.New("macaddr: address space exhausted (wrapped past ff:ff:ff:ff:ff:ff)")

// Addr is a 6-octet, big-endian MAC address.
type Addr [6]byte

// Parse parses a colon-separated hex MAC address.
func Parse(s string) (Addr, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return Addr{}, fmt.Errorf("%w: %s", ErrInvalidAddress, s)
	}
	var a Addr
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return Addr{}, fmt.Errorf("%w: %s", ErrInvalidAddress, s)
		}
		a[i] = byte(v)
	}
	return a, nil
}

// String renders the MAC address in canonical lowercase colon-hex form.
func (a Addr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// next increments a treated as a 48-bit big-endian integer, in place.
// Returns false iff the increment wrapped past ff:ff:ff:ff:ff:ff.
func (a *Addr) next() bool {
	for i := len(a) - 1; i >= 0; i-- {
		a[i]++
		if a[i] != 0 {
			return true
		}
	}
	return false
}

// Iter is a mutable 48-bit MAC address counter. The zero value is not
// usable; construct with NewIter, which skips the all-zeroes address since
// it is reserved and unassignable.
type Iter struct {
	next Addr
}

// NewIter constructs an Iter starting just past 00:00:00:00:00:00.
func NewIter() *Iter {
	it := &Iter{}
	it.next.next() // skip the all-zeroes address
	return it
}

// Next writes the current address into addr, advances the counter, and
// returns false iff that advance wrapped past ff:ff:ff:ff:ff:ff.
func (it *Iter) Next(addr *Addr) bool {
	*addr = it.next
	return it.next.next()
}

// NextBatch writes count consecutive addresses into buf, advancing the
// counter by count. Returns false iff any step wrapped.
func (it *Iter) NextBatch(buf []Addr) bool {
	ok := true
	for i := range buf {
		if !it.Next(&buf[i]) {
			ok = false
		}
	}
	return ok
}
