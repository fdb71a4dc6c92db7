package manager

import (
	"fmt"
	"log"

	"github.com/notargets/gofsi/comm"
)

// Solver is the surface the Manager needs from one side's solver fragment on
// this process. Node identifiers are the solver's own numbering and are
// treated as opaque keys: solvers that band their IDs by mesh sub-region
// (wing/flap/aileron style offsets) need no special handling here.
type Solver interface {
	NodeCount() int         // local interface nodes, halo copies included
	PhysicalNodeCount() int // local interface nodes owned by this process
	HaloNodeIDs() map[int]bool
	NodalIndex(iVertex int) int // solver-native ID at local vertex position
}

type sideState struct {
	haveSolver    bool
	haveInterface bool
	localNodes    int
	localPhysical int
	localHalo     map[int]bool

	totalNodes    int
	totalPhysical int

	solverProcs    []int
	interfaceProcs []int
	haloLists      []map[int]bool
	distribution   []int
	indexing       map[int]int
}

// Manager reconciles the two sides of a partitioned fluid-structure interface
// across the process group: which ranks host which side, which local nodes are
// halo copies, and the globally unique, rank-stable index of every physical
// interface node. It is built once with a fixed sequence of collective
// exchanges, identical on every rank, and is immutable afterward, so all
// accessors are safe for concurrent readers.
type Manager struct {
	c     *comm.Communicator
	nDim  int
	gi    globalIndexing
	sides [numSides]sideState
}

// New runs the construction protocol. Both solvers are optional on any given
// rank; a nil solver contributes absent-role sentinels and empty sets. Every
// rank in the group must call New in lockstep, with no rank skipping the call:
// the exchanges inside are blocking collectives.
//
// Errors are contract violations from the solver inputs or a corrupted
// exchange. Either one poisons the index map for the whole coupled run, so
// callers must treat them as fatal.
func New(fluid, solid Solver, nDim int, c *comm.Communicator) (m *Manager, err error) {
	var (
		myRank  = c.Rank()
		solvers = [numSides]Solver{Fluid: fluid, Solid: solid}
	)
	m = &Manager{c: c, nDim: nDim}
	m.gi.np = c.Size()

	// Local census. Count contract checked before the first exchange;
	// a violation is fatal to the whole run.
	for s := range solvers {
		st := &m.sides[s]
		st.localHalo = make(map[int]bool)
		if solvers[s] == nil {
			continue
		}
		st.haveSolver = true
		st.localNodes = solvers[s].NodeCount()
		st.localPhysical = solvers[s].PhysicalNodeCount()
		st.haveInterface = st.localNodes != 0
		for id := range solvers[s].HaloNodeIDs() {
			st.localHalo[id] = true
		}
		if st.localPhysical+len(st.localHalo) != st.localNodes {
			return nil, fmt.Errorf(
				"%s side: %d physical + %d halo nodes != %d local nodes on rank %d",
				Side(s), st.localPhysical, len(st.localHalo), st.localNodes, myRank)
		}
	}

	// Step 1: presence discovery. Four all-gathers of rank-or-(-1) sentinels
	// give every rank the same view of who holds which role.
	for s := range m.sides {
		m.sides[s].solverProcs = filterRanks(
			comm.AllGather(c, sentinel(m.sides[s].haveSolver, myRank)))
	}
	for s := range m.sides {
		m.sides[s].interfaceProcs = filterRanks(
			comm.AllGather(c, sentinel(m.sides[s].haveInterface, myRank)))
	}

	// Step 2: halo exchange, one rank-indexed list of halo sets per side.
	for s := range m.sides {
		m.sides[s].haloLists = comm.AllGather(c, m.sides[s].localHalo)
	}

	// Step 3: group-wide node totals.
	for s := range m.sides {
		m.sides[s].totalNodes = comm.AllReduceSum(c, m.sides[s].localNodes)
		m.sides[s].totalPhysical = comm.AllReduceSum(c, m.sides[s].localPhysical)
	}

	// Steps 4 and 5: gather the physical-count distribution and cut the
	// global index space into per-rank ranges by prefix sum. A distribution
	// that disagrees with the reduced total means an exchange went bad.
	for s := range m.sides {
		st := &m.sides[s]
		st.distribution = comm.AllGather(c, st.localPhysical)
		var sum int
		for _, count := range st.distribution {
			sum += count
		}
		if sum != st.totalPhysical {
			return nil, fmt.Errorf(
				"%s side: distribution sums to %d, total physical count is %d",
				Side(s), sum, st.totalPhysical)
		}
		m.gi.setRanges(Side(s), st.distribution)
	}

	// Step 6: walk local vertex positions in order, skip halo copies, and
	// hand out this rank's range to the rest. Each side's bookkeeping must
	// come out exact: a halo ID that never shows up among the local nodal
	// indices, or a duplicate local ID, lands here as a count mismatch.
	partials := [numSides]map[int]int{}
	for s := range solvers {
		var (
			st         = &m.sides[s]
			localIndex int
			skipped    int
		)
		partials[s] = make(map[int]int)
		if solvers[s] == nil {
			continue
		}
		for iVertex := 0; iVertex < st.localNodes; iVertex++ {
			nodeIndex := solvers[s].NodalIndex(iVertex)
			if st.localHalo[nodeIndex] {
				skipped++
				continue
			}
			if _, dup := partials[s][nodeIndex]; dup {
				return nil, fmt.Errorf(
					"%s side: duplicate local node ID %d on rank %d",
					Side(s), nodeIndex, myRank)
			}
			partials[s][nodeIndex] = m.gi.globalIndex(Side(s), myRank, localIndex)
			localIndex++
		}
		if localIndex != st.localPhysical || skipped != len(st.localHalo) {
			return nil, fmt.Errorf(
				"%s side: indexed %d of %d physical nodes, skipped %d of %d halo nodes on rank %d",
				Side(s), localIndex, st.localPhysical, skipped, len(st.localHalo), myRank)
		}
	}

	// Step 7: gather the partial maps and merge. Halo exclusion above makes
	// keys disjoint across ranks under the decomposition contract; a
	// collision means the decomposition lied about node ownership.
	for s := range m.sides {
		st := &m.sides[s]
		st.indexing = make(map[int]int, st.totalPhysical)
		for rank, partial := range comm.AllGather(c, partials[s]) {
			for nodeIndex, globalIndex := range partial {
				if _, dup := st.indexing[nodeIndex]; dup {
					return nil, fmt.Errorf(
						"%s side: node ID %d indexed by more than one rank (rank %d)",
						Side(s), nodeIndex, rank)
				}
				st.indexing[nodeIndex] = globalIndex
			}
		}
	}
	return m, nil
}

func sentinel(present bool, rank int) int {
	if present {
		return rank
	}
	return -1
}

func filterRanks(gathered []int) (ranks []int) {
	ranks = make([]int, 0, len(gathered))
	for _, rank := range gathered {
		if rank != -1 {
			ranks = append(ranks, rank)
		}
	}
	return
}

func (m *Manager) NDim() int { return m.nDim }

// Size is the process group size, Rank this process's rank within it.
func (m *Manager) Size() int { return m.c.Size() }
func (m *Manager) Rank() int { return m.c.Rank() }

// Comm exposes the group handle for collaborators (interface data, transfer)
// that must issue their own collectives in lockstep with the group.
func (m *Manager) Comm() *comm.Communicator { return m.c }

func (m *Manager) HasSolver(side Side) bool    { return m.sides[side].haveSolver }
func (m *Manager) HasInterface(side Side) bool { return m.sides[side].haveInterface }

// TotalNodes includes halo copies; TotalPhysicalNodes is the size of the
// global index space for the side.
func (m *Manager) TotalNodes(side Side) int         { return m.sides[side].totalNodes }
func (m *Manager) TotalPhysicalNodes(side Side) int { return m.sides[side].totalPhysical }
func (m *Manager) LocalNodes(side Side) int         { return m.sides[side].localNodes }
func (m *Manager) LocalPhysicalNodes(side Side) int { return m.sides[side].localPhysical }

// SolverProcessors and InterfaceProcessors are ordered rank sets, identical
// on every rank. A rank appears in the interface set only if its local
// interface node count is nonzero. Callers must not mutate the returned
// slices.
func (m *Manager) SolverProcessors(side Side) []int    { return m.sides[side].solverProcs }
func (m *Manager) InterfaceProcessors(side Side) []int { return m.sides[side].interfaceProcs }

// HaloNodes is rank's halo set for side; HaloLists is all of them, indexed by
// rank. Read-only.
func (m *Manager) HaloNodes(side Side, rank int) map[int]bool { return m.sides[side].haloLists[rank] }
func (m *Manager) HaloLists(side Side) []map[int]bool         { return m.sides[side].haloLists }

// Distribution is the per-rank physical node count vector for side.
func (m *Manager) Distribution(side Side) []int { return m.sides[side].distribution }

func (m *Manager) Range(side Side, rank int) IndexRange { return m.gi.ranges[side][rank] }
func (m *Manager) Ranges(side Side) []IndexRange        { return m.gi.ranges[side] }

// Indexing is the merged solver-native ID to global index map for side,
// holding exactly one entry per physical node across the whole group.
func (m *Manager) Indexing(side Side) map[int]int { return m.sides[side].indexing }

// GlobalIndex computes rank's global index for a rank-local physical node
// offset without consulting the merged map.
func (m *Manager) GlobalIndex(side Side, rank, localIndex int) int {
	return m.gi.globalIndex(side, rank, localIndex)
}

// Report logs the interface census the way a partition-quality report does.
// Rank-local values are reported for this rank only.
func (m *Manager) Report() {
	log.Printf("FSI interface census (rank %d of %d):", m.Rank(), m.Size())
	for s := Side(0); s < numSides; s++ {
		st := &m.sides[s]
		log.Printf("  %s side:", s)
		log.Printf("    Total nodes (halo included): %d", st.totalNodes)
		log.Printf("    Total physical nodes: %d", st.totalPhysical)
		log.Printf("    Local nodes: %d (%d physical, %d halo)",
			st.localNodes, st.localPhysical, len(st.localHalo))
		log.Printf("    Solver ranks: %v", st.solverProcs)
		log.Printf("    Interface ranks: %v", st.interfaceProcs)
		log.Printf("    Index ranges: %v", m.gi.ranges[s])
	}
}
