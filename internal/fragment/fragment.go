// Package fragment splits a parent IPv4 subnet into N power-of-two-sized
// fragments, absorbing any remainder with a "large" (2x) fragment size
// instead of leaving an uneven final fragment.
package fragment

import (
	"errors"
	"math/bits"

	"github.com/walexzzy/netmirage/internal/addr"
)

// ErrTooManyFragments indicates the parent subnet is smaller than the
// requested fragment count, so even a single address per fragment would not
// fit.
var ErrTooManyFragments = errors.New("fragment: parent subnet too small for requested fragment count")

// Iter produces fragmentCount non-overlapping sub-subnets of parent, using
// only two sizes: "small" (2^k for the largest k with fragmentCount*2^k <=
// |parent|) and "large" (twice small). largeRemaining fragments, placed
// first from the low end, absorb the leftover addresses that don't evenly
// divide into small-sized fragments.
//
// Next's "prepare the next fragment, the first one is prepared at
// construction" protocol mirrors ip4FragmentSubnet/ip4FragIterNext in the
// original ip.c: the first call to Next returns the first fragment without
// advancing the cursor.
type Iter struct {
	cursor         uint32 // host order
	smallIncrement uint32
	smallPrefixLen int
	largeRemaining uint64
	remaining      uint64
	first          bool
}

// New constructs an Iter producing exactly fragmentCount fragments that
// together cover a prefix of parent. Returns ErrTooManyFragments if
// parent is smaller than fragmentCount.
func New(parent addr.Subnet, fragmentCount uint64) (*Iter, error) {
	if fragmentCount == 0 {
		return nil, ErrTooManyFragments
	}
	parentSize := parent.Size(false)
	if parentSize < fragmentCount {
		return nil, ErrTooManyFragments
	}

	idealSize := parentSize / fragmentCount // floor division, toward -inf for positive operands
	smallPow2 := bits.Len64(idealSize) - 1  // floor(log2(idealSize)), idealSize >= 1
	smallSize := uint64(1) << uint(smallPow2)
	totalSmall := smallSize * fragmentCount
	leftover := parentSize - totalSmall
	// round(leftover/smallSize) to nearest, ties away from zero (matches llrint
	// on a non-negative ratio, i.e. round-half-up).
	large := (leftover + smallSize/2) / smallSize

	return &Iter{
		cursor:         uint32(parent.Start()),
		smallIncrement: uint32(smallSize),
		smallPrefixLen: 32 - smallPow2,
		largeRemaining: large,
		remaining:      fragmentCount,
		first:          true,
	}, nil
}

// Next prepares (on the first call) or advances to (on subsequent calls) the
// next fragment and reports whether one remains.
func (it *Iter) Next() bool {
	if it.remaining == 0 {
		return false
	}
	if it.first {
		it.first = false
		return true
	}
	isLarge := it.largeRemaining > 0
	if isLarge {
		it.largeRemaining--
	}
	step := it.smallIncrement
	if isLarge {
		step *= 2
	}
	it.cursor += step
	it.remaining--
	return it.remaining > 0
}

// Subnet returns the fragment current after the most recent Next call.
func (it *Iter) Subnet() addr.Subnet {
	prefixLen := it.smallPrefixLen
	if it.largeRemaining > 0 {
		prefixLen--
	}
	sn, _ := addr.NewSubnet(addr.IPv4(it.cursor), prefixLen)
	return sn
}
