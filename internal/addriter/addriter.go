// Package addriter streams host addresses out of an IPv4 subnet, skipping
// reserved addresses and an arbitrary set of avoid-subnets.
package addriter

import (
	"sort"

	"github.com/walexzzy/netmirage/internal/addr"
)

// ignoreRange is a closed, host-order [start, end] interval to skip.
type ignoreRange struct {
	start, end int64
}

// Iter enumerates the host addresses of a parent subnet in ascending host
// order, skipping any address contained in an ignore range.
//
// Construction sorts ignore ranges by start ascending, breaking ties by end
// descending (widest first) so that Next's skip-while loop can always jump
// maximally in a single step, matching the original C iterator
// (ip4NewIter/ip4IterNext in ip.c). Addresses are tracked as int64 in host
// order so that the "one before the first candidate" sentinel never
// underflows for a parent subnet starting at 0.0.0.0.
type Iter struct {
	current int64
	final   int64
	ignores []ignoreRange
	cursor  int
}

// New constructs an Iter over parent, skipping reserved (network/broadcast)
// addresses when excludeReserved is set, and any address contained in one of
// the avoid subnets.
func New(parent addr.Subnet, excludeReserved bool, avoid []addr.Subnet) *Iter {
	it := &Iter{
		current: int64(uint32(parent.Start())) - 1,
		final:   int64(uint32(parent.End())),
	}

	ignores := make([]ignoreRange, 0, len(avoid)+2)
	for _, sn := range avoid {
		ignores = append(ignores, ignoreRange{start: int64(uint32(sn.Start())), end: int64(uint32(sn.End()))})
	}
	if excludeReserved && parent.HasReserved() {
		start := int64(uint32(parent.Start()))
		end := int64(uint32(parent.End()))
		ignores = append(ignores, ignoreRange{start: start, end: start}, ignoreRange{start: end, end: end})
	}
	sort.Slice(ignores, func(i, j int) bool {
		if ignores[i].start != ignores[j].start {
			return ignores[i].start < ignores[j].start
		}
		return ignores[i].end > ignores[j].end // widest first on ties
	})
	it.ignores = ignores
	return it
}

// Next advances the iterator and returns the next unskipped address, or
// (0, false) once the parent subnet is exhausted.
func (it *Iter) Next() (addr.IPv4, bool) {
	if it.current >= it.final {
		return 0, false
	}
	it.current++

	for it.cursor < len(it.ignores) {
		r := it.ignores[it.cursor]
		if it.current > r.end {
			it.cursor++ // range lies entirely below the cursor
			continue
		}
		if it.current < r.start {
			break
		}
		it.current = r.end + 1
		for it.cursor < len(it.ignores) && it.current > it.ignores[it.cursor].end {
			it.cursor++
		}
	}

	if it.current > it.final {
		return 0, false
	}
	return addr.IPv4(uint32(it.current)), true
}
