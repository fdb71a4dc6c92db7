package manager

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gofsi/comm"
	"github.com/notargets/gofsi/solver"
)

type rankSolvers struct {
	fluid, solid Solver
}

// runGroup constructs one Manager per rank over an in-memory group, one
// goroutine per rank, and requires construction to succeed everywhere.
func runGroup(t *testing.T, perRank []rankSolvers) (mgrs []*Manager) {
	t.Helper()
	np := len(perRank)
	g := comm.NewGroup(np)
	mgrs = make([]*Manager, np)
	errs := make([]error, np)
	var wg sync.WaitGroup
	for r := 0; r < np; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			mgrs[rank], errs[rank] = New(
				perRank[rank].fluid, perRank[rank].solid, 3, g.Communicator(rank))
		}(r)
	}
	wg.Wait()
	for r, err := range errs {
		require.NoError(t, err, "rank %d", r)
	}
	return
}

// checkPartition verifies the range/map invariants on one side: ranges are
// disjoint, contiguous in rank order, cover [0, total-1], and the merged map
// holds exactly total entries with distinct values.
func checkPartition(t *testing.T, m *Manager, side Side) {
	t.Helper()
	var (
		total = m.TotalPhysicalNodes(side)
		next  int
	)
	for rank, r := range m.Ranges(side) {
		assert.Equal(t, m.Distribution(side)[rank], r.Len())
		if r.IsEmpty() {
			continue
		}
		assert.Equal(t, next, r.Start, "rank %d range start", rank)
		next = r.Stop + 1
	}
	assert.Equal(t, total, next)
	indexing := m.Indexing(side)
	assert.Equal(t, total, len(indexing))
	seen := make(map[int]bool)
	for _, globalIndex := range indexing {
		assert.True(t, globalIndex >= 0 && globalIndex < total)
		assert.False(t, seen[globalIndex], "duplicate global index %d", globalIndex)
		seen[globalIndex] = true
	}
}

func TestThreeRankFluidDistribution(t *testing.T) {
	// Fluid physical counts [4, 0, 6]: rank 1 hosts a fluid fragment with no
	// interface nodes. Solid is present on rank 0 only.
	mgrs := runGroup(t, []rankSolvers{
		{fluid: solver.NewFragment(0, 4), solid: solver.NewFragment(500, 3)},
		{fluid: solver.NewFragment(0, 0)},
		{fluid: solver.NewFragment(100, 6)},
	})
	for rank, m := range mgrs {
		assert.Equal(t, 10, m.TotalPhysicalNodes(Fluid), "rank %d", rank)
		assert.Equal(t, []int{4, 0, 6}, m.Distribution(Fluid))
		assert.Equal(t, IndexRange{0, 3}, m.Range(Fluid, 0))
		assert.True(t, m.Range(Fluid, 1).IsEmpty())
		assert.Equal(t, IndexRange{4, 9}, m.Range(Fluid, 2))

		assert.Equal(t, []int{0, 1, 2}, m.SolverProcessors(Fluid))
		assert.Equal(t, []int{0, 2}, m.InterfaceProcessors(Fluid))
		assert.Equal(t, []int{0}, m.SolverProcessors(Solid))
		assert.Equal(t, []int{0}, m.InterfaceProcessors(Solid))
		assert.Equal(t, 3, m.TotalPhysicalNodes(Solid))

		checkPartition(t, m, Fluid)
		checkPartition(t, m, Solid)

		// Identical merged maps on every rank.
		assert.Equal(t, mgrs[0].Indexing(Fluid), m.Indexing(Fluid))
		assert.Equal(t, mgrs[0].Indexing(Solid), m.Indexing(Solid))
	}
	// Rank-ordered assignment in increasing vertex position order.
	indexing := mgrs[0].Indexing(Fluid)
	for i := 0; i < 4; i++ {
		assert.Equal(t, i, indexing[i])
	}
	for i := 0; i < 6; i++ {
		assert.Equal(t, 4+i, indexing[100+i])
	}
	mgrs[0].Report()
}

func TestSingleProcessAbsentSolid(t *testing.T) {
	m, err := New(solver.NewFragment(0, 4), nil, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Size())
	assert.Equal(t, IndexRange{0, 3}, m.Range(Fluid, 0))
	assert.Equal(t, 4, m.TotalPhysicalNodes(Fluid))

	assert.False(t, m.HasSolver(Solid))
	assert.Equal(t, 0, m.TotalPhysicalNodes(Solid))
	assert.Empty(t, m.SolverProcessors(Solid))
	assert.Empty(t, m.InterfaceProcessors(Solid))
	assert.Empty(t, m.Indexing(Solid))
	assert.True(t, m.Range(Solid, 0).IsEmpty())
	checkPartition(t, m, Fluid)
	checkPartition(t, m, Solid)
}

func TestHaloExclusion(t *testing.T) {
	// Rank 0 holds {10,11,12} with 12 a halo copy; rank 1 owns 12. Rank 0
	// must not contribute 12 to the merge; rank 1's partial map supplies it.
	mgrs := runGroup(t, []rankSolvers{
		{fluid: solver.NewFragment(10, 3).MarkHalo(12)},
		{fluid: &solver.Fragment{IDs: []int{12, 20}, Halo: map[int]bool{}}},
	})
	for _, m := range mgrs {
		assert.Equal(t, 4, m.TotalPhysicalNodes(Fluid))
		assert.Equal(t, 5, m.TotalNodes(Fluid))
		assert.Equal(t, map[int]bool{12: true}, m.HaloNodes(Fluid, 0))
		assert.Empty(t, m.HaloNodes(Fluid, 1))

		indexing := m.Indexing(Fluid)
		assert.Equal(t, map[int]int{10: 0, 11: 1, 12: 2, 20: 3}, indexing)
		checkPartition(t, m, Fluid)
	}
}

func TestSerialParallelDeterminism(t *testing.T) {
	// The same ID layout split over 1 or 2 ranks must produce identical
	// global index assignments.
	serial, err := New(solver.NewFragment(0, 10), nil, 3, nil)
	require.NoError(t, err)
	mgrs := runGroup(t, []rankSolvers{
		{fluid: solver.NewFragment(0, 5)},
		{fluid: solver.NewFragment(5, 5)},
	})
	assert.Equal(t, serial.Indexing(Fluid), mgrs[0].Indexing(Fluid))
	assert.Equal(t, serial.TotalPhysicalNodes(Fluid), mgrs[0].TotalPhysicalNodes(Fluid))
}

func TestGlobalIndexFormula(t *testing.T) {
	mgrs := runGroup(t, []rankSolvers{
		{fluid: solver.NewFragment(0, 3), solid: solver.NewFragment(900, 2)},
		{fluid: solver.NewFragment(50, 5), solid: solver.NewFragment(950, 4)},
		{fluid: solver.NewFragment(200, 2)},
	})
	m := mgrs[0]
	for side := Fluid; side <= Solid; side++ {
		for rank := 0; rank < m.Size(); rank++ {
			for k := 0; k < m.Distribution(side)[rank]; k++ {
				assert.Equal(t, m.Range(side, rank).Start+k, m.GlobalIndex(side, rank, k))
			}
		}
		checkPartition(t, m, side)
	}
}

func TestBandedIDsAcrossRanks(t *testing.T) {
	// Banded solver IDs (wing/flap/aileron offsets) pass through as opaque
	// keys: the merge neither interprets nor collapses the bands.
	mgrs := runGroup(t, []rankSolvers{
		{fluid: solver.NewBanded(10000,
			solver.Region{Name: "wing", Nodes: 4},
			solver.Region{Name: "flap", Nodes: 2})},
		{fluid: solver.NewFragment(20000, 3)},
	})
	indexing := mgrs[0].Indexing(Fluid)
	assert.Equal(t, 9, len(indexing))
	assert.Equal(t, 4, indexing[10000])
	assert.Equal(t, 6, indexing[20000])
	checkPartition(t, mgrs[0], Fluid)
}

// inconsistentSolver misreports its physical count.
type inconsistentSolver struct{ *solver.Fragment }

func (s inconsistentSolver) PhysicalNodeCount() int { return s.Fragment.PhysicalNodeCount() + 1 }

func TestContractViolations(t *testing.T) {
	// Physical + halo != total.
	_, err := New(inconsistentSolver{solver.NewFragment(0, 3)}, nil, 3, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fluid side")

	// Halo set referencing an ID the solver never produces.
	bad := &solver.Fragment{IDs: []int{1, 2, 3}, Halo: map[int]bool{9: true}}
	_, err = New(nil, bad, 3, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "solid side")

	// Duplicate local ID.
	dup := &solver.Fragment{IDs: []int{1, 1, 2}, Halo: map[int]bool{}}
	_, err = New(dup, nil, 3, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate local node ID")
}

func TestMergeCollisionAcrossRanks(t *testing.T) {
	// Both ranks claim ownership of ID 7: the decomposition contract is
	// broken and every rank's construction must fail.
	var (
		np   = 2
		g    = comm.NewGroup(np)
		errs = make([]error, np)
		wg   sync.WaitGroup
	)
	for r := 0; r < np; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			_, errs[rank] = New(solver.NewFragment(7, 1), nil, 3, g.Communicator(rank))
		}(r)
	}
	wg.Wait()
	for _, err := range errs {
		require.Error(t, err)
		assert.Contains(t, err.Error(), "more than one rank")
	}
}
