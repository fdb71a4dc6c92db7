// Package data holds distributed nodal field containers for the coupled
// interface: loads, displacements and similar quantities, partitioned across
// ranks exactly like the Manager's global index ranges so downstream transfer
// and acceleration code can exchange them by global index.
package data

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gofsi/comm"
	"github.com/notargets/gofsi/manager"
)

// InterfaceData is an nDim-component nodal field over one side of the
// interface. Each rank stores only its own physical-node block; the block
// boundaries come from the Manager's index ranges, so local offset k holds
// the value of global node Range(side, rank).Start + k.
type InterfaceData struct {
	c          *comm.Communicator
	side       manager.Side
	nDim       int
	offset     int // this rank's range start
	total      int
	components []*mat.VecDense // nDim vectors of local length
}

// New allocates a zero field sized by m's partition for side.
func New(m *manager.Manager, side manager.Side) (d *InterfaceData) {
	var (
		local = m.LocalPhysicalNodes(side)
		nDim  = m.NDim()
	)
	d = &InterfaceData{
		c:          m.Comm(),
		side:       side,
		nDim:       nDim,
		total:      m.TotalPhysicalNodes(side),
		components: make([]*mat.VecDense, nDim),
	}
	d.offset = m.Range(side, m.Rank()).Start
	for i := range d.components {
		// mat.NewVecDense panics on zero length; a rank with no physical
		// nodes holds nil components and contributes nothing.
		if local > 0 {
			d.components[i] = mat.NewVecDense(local, nil)
		}
	}
	return
}

func (d *InterfaceData) Dim() int   { return d.nDim }
func (d *InterfaceData) Total() int { return d.total }
func (d *InterfaceData) LocalLen() int {
	if d.components[0] == nil {
		return 0
	}
	return d.components[0].Len()
}

func (d *InterfaceData) Set(component, iLocal int, v float64) {
	d.components[component].SetVec(iLocal, v)
}

func (d *InterfaceData) At(component, iLocal int) float64 {
	return d.components[component].AtVec(iLocal)
}

// AXPY adds alpha*other into d, component by component.
func (d *InterfaceData) AXPY(alpha float64, other *InterfaceData) {
	if d.nDim != other.nDim || d.LocalLen() != other.LocalLen() {
		panic(fmt.Sprintf("shape mismatch: %dx%d vs %dx%d",
			d.nDim, d.LocalLen(), other.nDim, other.LocalLen()))
	}
	for i, v := range d.components {
		if v != nil {
			v.AddScaledVec(v, alpha, other.components[i])
		}
	}
}

// Dot is the group-wide inner product over all components: local dot, then
// all-reduce. Collective: every rank must call it in lockstep.
func (d *InterfaceData) Dot(other *InterfaceData) float64 {
	if d.nDim != other.nDim || d.LocalLen() != other.LocalLen() {
		panic(fmt.Sprintf("shape mismatch: %dx%d vs %dx%d",
			d.nDim, d.LocalLen(), other.nDim, other.LocalLen()))
	}
	var local float64
	for i, v := range d.components {
		if v != nil {
			local += mat.Dot(v, other.components[i])
		}
	}
	return comm.AllReduceSum(d.c, local)
}

// Norm is the group-wide 2-norm. Collective.
func (d *InterfaceData) Norm() float64 {
	return math.Sqrt(d.Dot(d))
}

// Assemble gathers one component into a dense global vector ordered by global
// index, identical on every rank. Collective.
func (d *InterfaceData) Assemble(component int) (global *mat.VecDense) {
	var local []float64
	if v := d.components[component]; v != nil {
		local = v.RawVector().Data
	}
	offsets := comm.AllGather(d.c, d.offset)
	if d.total == 0 {
		return nil
	}
	global = mat.NewVecDense(d.total, nil)
	for rank, block := range comm.AllGather(d.c, local) {
		for k, v := range block {
			global.SetVec(offsets[rank]+k, v)
		}
	}
	return
}
