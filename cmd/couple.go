/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"sync"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/notargets/gofsi/InputParameters"
	"github.com/notargets/gofsi/comm"
	"github.com/notargets/gofsi/manager"
	"github.com/notargets/gofsi/solver"
)

type CoupledRun struct {
	DeckFile string
	Profile  bool
}

// CoupleCmd represents the couple command
var CoupleCmd = &cobra.Command{
	Use:   "couple",
	Short: "Set up the coupled interface described by a YAML deck and report the global indexing",
	Long: `Reads a YAML input deck describing the per-rank fluid and solid interface
fragments of a coupled simulation, runs the interface manager on a simulated
process group with one goroutine per rank, and reports the resulting node
census, index ranges and global indexing.`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
		)
		fmt.Println("couple called")
		cr := &CoupledRun{}
		if cr.DeckFile, err = cmd.Flags().GetString("deckFile"); err != nil {
			panic(err)
		}
		cr.Profile, _ = cmd.Flags().GetBool("profile")
		ip := processCoupleInput(cr)
		RunCouple(cr, ip)
	},
}

func init() {
	rootCmd.AddCommand(CoupleCmd)
	CoupleCmd.Flags().StringP("deckFile", "F", "", "YAML input deck describing per-rank interface fragments")
	CoupleCmd.Flags().BoolP("profile", "p", false, "write a CPU profile of the construction")
}

func processCoupleInput(cr *CoupledRun) (ip *InputParameters.CoupledParameters) {
	var (
		err error
	)
	if len(cr.DeckFile) == 0 {
		err = fmt.Errorf("must supply an input deck (-F, --deckFile) in YAML format")
		fmt.Printf("error: %s\n", err.Error())
		exampleFile := `
########################################
Title: "Static airfoil FSI"
Dimensions: 3
Ranks:
  - Fluid: {Nodes: 4, FirstID: 0}
    Solid: {Nodes: 3, FirstID: 500}
  - Fluid: {Nodes: 6, FirstID: 100}
########################################
`
		fmt.Printf("Example File:%s\n", exampleFile)
		os.Exit(1)
	}
	var data []byte
	if data, err = os.ReadFile(cr.DeckFile); err != nil {
		panic(err)
	}
	ip = &InputParameters.CoupledParameters{}
	if err = ip.Parse(data); err != nil {
		panic(err)
	}
	ip.Print()
	return
}

// RunCouple drives one Manager per deck rank over an in-memory group and
// reports from rank 0. With a single-rank deck the serial fallback is used.
func RunCouple(cr *CoupledRun, ip *InputParameters.CoupledParameters) {
	if cr.Profile {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}
	mgrs, err := BuildManagers(ip)
	if err != nil {
		panic(err)
	}
	mgrs[0].Report()
	for _, side := range []manager.Side{manager.Fluid, manager.Solid} {
		fmt.Printf("%s indexing: %d physical nodes over ranks %v\n",
			side, mgrs[0].TotalPhysicalNodes(side), mgrs[0].InterfaceProcessors(side))
	}
}

// BuildManagers constructs the per-rank Managers for a deck. Constructing on
// goroutines mirrors the lockstep execution of a real process group.
func BuildManagers(ip *InputParameters.CoupledParameters) ([]*manager.Manager, error) {
	np := len(ip.Ranks)
	if np == 1 {
		m, err := manager.New(
			buildFragment(ip.Ranks[0].Fluid, ip.BandWidth),
			buildFragment(ip.Ranks[0].Solid, ip.BandWidth),
			ip.Dimensions, nil)
		return []*manager.Manager{m}, err
	}
	var (
		g    = comm.NewGroup(np)
		mgrs = make([]*manager.Manager, np)
		errs = make([]error, np)
		wg   sync.WaitGroup
	)
	// Fragments are built before the group starts: an invalid deck must fail
	// up front, not strand the other ranks mid-collective.
	fluids := make([]manager.Solver, np)
	solids := make([]manager.Solver, np)
	for r := 0; r < np; r++ {
		fluids[r] = buildFragment(ip.Ranks[r].Fluid, ip.BandWidth)
		solids[r] = buildFragment(ip.Ranks[r].Solid, ip.BandWidth)
	}
	for r := 0; r < np; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			mgrs[rank], errs[rank] = manager.New(
				fluids[rank], solids[rank], ip.Dimensions, g.Communicator(rank))
		}(r)
	}
	wg.Wait()
	for rank, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("rank %d: %w", rank, err)
		}
	}
	return mgrs, nil
}

// buildFragment returns nil for an absent side: the manager treats a nil
// solver as "this rank does not host this side".
func buildFragment(fp *InputParameters.FragmentParameters, bandWidth int) manager.Solver {
	if fp == nil {
		return nil
	}
	var f *solver.Fragment
	if len(fp.Regions) != 0 {
		regions := make([]solver.Region, len(fp.Regions))
		for i, rp := range fp.Regions {
			regions[i] = solver.Region{Name: rp.Name, Nodes: rp.Nodes}
		}
		f = solver.NewBanded(bandWidth, regions...)
	} else {
		f = solver.NewFragment(fp.FirstID, fp.Nodes)
	}
	return f.MarkHalo(fp.Halo...)
}
