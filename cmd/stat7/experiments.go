package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stat7/internal/experiments"
)

func experimentsCmd() *cobra.Command {
	var seed int64
	var numCoords, numAnchors, numQueries, numSeeds, growMax int
	var phase1Only bool

	cmd := &cobra.Command{
		Use:   "experiments",
		Short: "run the STAT7 validation harness (EXP-01..EXP-10)",
		RunE: func(cmd *cobra.Command, args []string) error {
			scale := experiments.ScaleParameters{
				NumCoords:     numCoords,
				NumAnchors:    numAnchors,
				NumQueries:    numQueries,
				NumSeeds:      numSeeds,
				CorpusGrowMax: growMax,
			}

			var verdicts []experiments.Verdict
			if phase1Only {
				for _, e := range experiments.All() {
					if !isPhase1(e.Name) {
						continue
					}
					verdicts = append(verdicts, e.Run(seed, scale))
				}
			} else {
				verdicts = experiments.RunAll(seed, scale)
			}

			allPass := true
			for _, v := range verdicts {
				status := "PASS"
				if !v.Pass {
					status = "FAIL"
					allPass = false
				}
				fmt.Printf("%-8s %-4s %s\n", v.Name, status, v.Evidence)
				for k, m := range v.Metrics {
					fmt.Printf("           %s = %v\n", k, m)
				}
			}
			if !allPass {
				return fmt.Errorf("one or more experiments failed")
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 1, "base random seed")
	cmd.Flags().IntVar(&numCoords, "num-coords", 0, "coordinates per seed (0 = experiment default)")
	cmd.Flags().IntVar(&numAnchors, "num-anchors", 0, "anchors to build (0 = experiment default)")
	cmd.Flags().IntVar(&numQueries, "num-queries", 0, "queries per run (0 = experiment default)")
	cmd.Flags().IntVar(&numSeeds, "num-seeds", 0, "seeds to sample (0 = experiment default)")
	cmd.Flags().IntVar(&growMax, "corpus-grow-max", 0, "max irrelevant corpus size for P-SCALE (0 = experiment default)")
	cmd.Flags().BoolVar(&phase1Only, "phase1-only", false, "run only the gating EXP-01..EXP-03 experiments")

	return cmd
}

func isPhase1(name string) bool {
	for _, p := range experiments.Phase1 {
		if p == name {
			return true
		}
	}
	return false
}
