package comm

import (
	"fmt"
	"sync"
)

// Group is an in-memory process group of fixed size. Each participating rank
// holds a Communicator obtained from the same Group and drives one goroutine.
// Collectives are blocking and barrier-equivalent: no caller proceeds until
// every rank in the group has issued the matching call, and all ranks must
// issue collectives in the same relative order or the group deadlocks.
type Group struct {
	np         int
	mu         sync.Mutex
	cond       *sync.Cond
	arrived    int
	generation int
	slots      []any
	gathered   []any
}

func NewGroup(np int) (g *Group) {
	if np < 1 {
		panic(fmt.Sprintf("group size %d out of bounds", np))
	}
	g = &Group{
		np:    np,
		slots: make([]any, np),
	}
	g.cond = sync.NewCond(&g.mu)
	return
}

func (g *Group) Size() int { return g.np }

// Communicator returns the per-rank handle used to participate in collectives.
func (g *Group) Communicator(rank int) *Communicator {
	if rank < 0 || rank > g.np-1 {
		panic(fmt.Sprintf("rank %d out of bounds", rank))
	}
	return &Communicator{group: g, rank: rank}
}

// Communicator is one rank's handle on a Group. A nil Communicator is the
// serial fallback: rank 0 of a group of size 1, with every collective an
// identity operation and no synchronization performed.
type Communicator struct {
	group *Group
	rank  int
}

func (c *Communicator) Rank() int {
	if c == nil {
		return 0
	}
	return c.rank
}

func (c *Communicator) Size() int {
	if c == nil {
		return 1
	}
	return c.group.np
}

// exchange deposits v in this rank's slot, waits for the full group, then
// returns the rank-ordered contributions of the completed generation. The
// last rank to arrive publishes the slot array and releases the others.
func (g *Group) exchange(rank int, v any) (all []any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.slots[rank] = v
	gen := g.generation
	g.arrived++
	if g.arrived == g.np {
		g.gathered = g.slots
		g.slots = make([]any, g.np)
		g.arrived = 0
		g.generation++
		g.cond.Broadcast()
	} else {
		for gen == g.generation {
			g.cond.Wait()
		}
	}
	// A straggler still inside this call blocks the group from completing
	// the next generation, so gathered cannot be overwritten underneath us.
	return g.gathered
}

// AllGather collects one value from every rank into a slice indexed by rank.
// Every rank receives an identical result.
func AllGather[T any](c *Communicator, v T) (all []T) {
	if c == nil {
		return []T{v}
	}
	raw := c.group.exchange(c.rank, v)
	all = make([]T, len(raw))
	for i, val := range raw {
		all[i] = val.(T)
	}
	return
}

type Number interface {
	~int | ~int64 | ~float64
}

// AllReduceSum sums one value across all ranks; every rank receives the total.
func AllReduceSum[T Number](c *Communicator, v T) (total T) {
	for _, val := range AllGather(c, v) {
		total += val
	}
	return
}

// Barrier blocks until every rank in the group has reached it.
func Barrier(c *Communicator) {
	AllGather(c, struct{}{})
}
