package InputParameters

import (
	"fmt"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML coupled-run input file
type CoupledParameters struct {
	Title      string           `yaml:"Title"`
	Dimensions int              `yaml:"Dimensions"`
	BandWidth  int              `yaml:"BandWidth"` // ID band width for region-banded fragments
	Ranks      []RankParameters `yaml:"Ranks"`     // one entry per process, rank order
}

// RankParameters describes the solver fragments hosted by one rank. Either
// side may be absent.
type RankParameters struct {
	Fluid *FragmentParameters `yaml:"Fluid,omitempty"`
	Solid *FragmentParameters `yaml:"Solid,omitempty"`
}

// FragmentParameters describes one side's interface fragment on one rank:
// either a flat ID run (FirstID/Nodes) or a set of banded Regions, plus the
// IDs that are halo copies owned by another rank.
type FragmentParameters struct {
	Nodes   int                `yaml:"Nodes"`
	FirstID int                `yaml:"FirstID"`
	Regions []RegionParameters `yaml:"Regions,omitempty"`
	Halo    []int              `yaml:"Halo,omitempty"`
}

type RegionParameters struct {
	Name  string `yaml:"Name"`
	Nodes int    `yaml:"Nodes"`
}

func (cp *CoupledParameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, cp); err != nil {
		return err
	}
	if len(cp.Ranks) == 0 {
		return fmt.Errorf("input deck declares no ranks")
	}
	if cp.Dimensions == 0 {
		cp.Dimensions = 3
	}
	if cp.BandWidth == 0 {
		cp.BandWidth = 10000
	}
	return nil
}

func (cp *CoupledParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", cp.Title)
	fmt.Printf("[%d]\t\t\t= Dimensions\n", cp.Dimensions)
	fmt.Printf("[%d]\t\t\t= Ranks\n", len(cp.Ranks))
	for rank, rp := range cp.Ranks {
		fmt.Printf("Rank[%d]: fluid = %s, solid = %s\n",
			rank, describe(rp.Fluid), describe(rp.Solid))
	}
}

func describe(fp *FragmentParameters) string {
	switch {
	case fp == nil:
		return "absent"
	case len(fp.Regions) != 0:
		return fmt.Sprintf("%d regions, %d halo", len(fp.Regions), len(fp.Halo))
	default:
		return fmt.Sprintf("%d nodes from %d, %d halo", fp.Nodes, fp.FirstID, len(fp.Halo))
	}
}
