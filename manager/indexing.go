package manager

import "fmt"

// Side selects the fluid or solid face of the coupled interface.
type Side uint8

const (
	Fluid Side = iota
	Solid
	numSides
)

func (s Side) String() string {
	switch s {
	case Fluid:
		return "fluid"
	case Solid:
		return "solid"
	}
	return fmt.Sprintf("Side(%d)", int(s))
}

// IndexRange is the inclusive [Start, Stop] block of global indices owned by
// one rank. A rank holding no physical nodes owns the degenerate range
// Stop = Start-1, which consumes no slot in the partition.
type IndexRange struct {
	Start, Stop int
}

func (r IndexRange) Len() int {
	if r.Stop < r.Start {
		return 0
	}
	return r.Stop - r.Start + 1
}

func (r IndexRange) IsEmpty() bool { return r.Stop < r.Start }

func (r IndexRange) String() string {
	if r.IsEmpty() {
		return "[empty]"
	}
	return fmt.Sprintf("[%d,%d]", r.Start, r.Stop)
}

// globalIndexing holds the per-side partition of the global index space,
// computed once from the gathered distribution vectors. The Manager owns one
// by composition and delegates GlobalIndex to it.
type globalIndexing struct {
	np     int
	ranges [numSides][]IndexRange
}

// setRanges partitions [0, total-1] by exclusive prefix sums over the
// distribution vector. Ranges increase monotonically with rank and depend
// only on the distribution, so every rank computes an identical partition
// with no further exchange.
func (gi *globalIndexing) setRanges(side Side, distribution []int) {
	var (
		start  int
		ranges = make([]IndexRange, len(distribution))
	)
	for rank, count := range distribution {
		ranges[rank] = IndexRange{Start: start, Stop: start + count - 1}
		start += count
	}
	gi.ranges[side] = ranges
}

// globalIndex is Start + localIndex with no table lookup, for callers that
// already hold a rank-relative offset into the physical node block.
func (gi *globalIndexing) globalIndex(side Side, rank, localIndex int) int {
	return gi.ranges[side][rank].Start + localIndex
}
