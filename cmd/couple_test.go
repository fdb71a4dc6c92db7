package cmd

import (
	"testing"

	"github.com/magiconair/properties/assert"

	"github.com/notargets/gofsi/InputParameters"
	"github.com/notargets/gofsi/manager"
)

func TestRunCouple(t *testing.T) {
	var (
		err error
	)
	fileInput := []byte(`
Title: Two rank flat plate
Dimensions: 3
Ranks:
  - Fluid: {Nodes: 4, FirstID: 97}
    Solid: {Nodes: 3, FirstID: 500}
  - Fluid: {Nodes: 3, FirstID: 100, Halo: [100]}
    Solid: {Nodes: 2, FirstID: 503}
`)
	var input InputParameters.CoupledParameters
	if err = input.Parse(fileInput); err != nil {
		panic(err)
	}
	input.Print()
	mgrs, err := BuildManagers(&input)
	if err != nil {
		panic(err)
	}
	// Rank 1's fluid node 100 is a halo copy, so it contributes 2 physical
	// nodes: totals are 6 fluid, 5 solid.
	assert.Equal(t, mgrs[0].TotalPhysicalNodes(manager.Fluid), 6)
	assert.Equal(t, mgrs[0].TotalPhysicalNodes(manager.Solid), 5)
	assert.Equal(t, mgrs[0].Range(manager.Fluid, 0), manager.IndexRange{Start: 0, Stop: 3})
	assert.Equal(t, mgrs[0].Range(manager.Fluid, 1), manager.IndexRange{Start: 4, Stop: 5})
	// Rank 0 owns the shared node 100; rank 1 resolves it through the merge.
	assert.Equal(t, mgrs[0].Indexing(manager.Fluid)[100], 3)
	assert.Equal(t, mgrs[1].Indexing(manager.Solid), mgrs[0].Indexing(manager.Solid))
}

func TestBuildManagersSerialDeck(t *testing.T) {
	input := &InputParameters.CoupledParameters{
		Dimensions: 2,
		Ranks: []InputParameters.RankParameters{
			{Fluid: &InputParameters.FragmentParameters{Nodes: 5}},
		},
	}
	mgrs, err := BuildManagers(input)
	if err != nil {
		panic(err)
	}
	assert.Equal(t, len(mgrs), 1)
	assert.Equal(t, mgrs[0].TotalPhysicalNodes(manager.Fluid), 5)
	assert.Equal(t, mgrs[0].TotalPhysicalNodes(manager.Solid), 0)
}
