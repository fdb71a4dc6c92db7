// Package solver provides in-memory interface fragments implementing the
// manager.Solver surface, for drivers and tests that stand in for a real
// fluid or structural code.
package solver

import "fmt"

// Fragment is one process's piece of an interface mesh: the solver-native
// node ID at each local vertex position, plus the subset of those IDs that
// are halo copies owned by another process.
type Fragment struct {
	IDs  []int // by local vertex position
	Halo map[int]bool
}

// NewFragment builds a fragment with count sequential IDs starting at
// firstID. Halo IDs are marked afterward via MarkHalo.
func NewFragment(firstID, count int) (f *Fragment) {
	f = &Fragment{
		IDs:  make([]int, count),
		Halo: make(map[int]bool),
	}
	for i := range f.IDs {
		f.IDs[i] = firstID + i
	}
	return
}

// MarkHalo flags IDs as halo copies. The IDs must already be present in the
// fragment.
func (f *Fragment) MarkHalo(ids ...int) *Fragment {
	present := make(map[int]bool, len(f.IDs))
	for _, id := range f.IDs {
		present[id] = true
	}
	for _, id := range ids {
		if !present[id] {
			panic(fmt.Sprintf("halo ID %d not present in fragment", id))
		}
		f.Halo[id] = true
	}
	return f
}

func (f *Fragment) NodeCount() int         { return len(f.IDs) }
func (f *Fragment) PhysicalNodeCount() int { return len(f.IDs) - len(f.Halo) }
func (f *Fragment) HaloNodeIDs() map[int]bool {
	return f.Halo
}
func (f *Fragment) NodalIndex(iVertex int) int { return f.IDs[iVertex] }

// Region is one mesh sub-region of a banded fragment, e.g. a wing, flap or
// aileron surface.
type Region struct {
	Name  string
	Nodes int
}

// NewBanded lays regions out in disjoint numeric ID bands of width bandWidth:
// region k's vertices get IDs k*bandWidth .. k*bandWidth+Nodes-1, in local
// vertex position order. bandWidth must exceed every region's node count so
// the bands cannot collide. The band structure is a convention of the
// producing solver only; consumers treat the IDs as opaque keys.
func NewBanded(bandWidth int, regions ...Region) (f *Fragment) {
	f = &Fragment{Halo: make(map[int]bool)}
	for k, region := range regions {
		if region.Nodes > bandWidth {
			panic(fmt.Sprintf("region %s overflows band width %d", region.Name, bandWidth))
		}
		for i := 0; i < region.Nodes; i++ {
			f.IDs = append(f.IDs, k*bandWidth+i)
		}
	}
	return
}
