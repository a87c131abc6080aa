// Package experiments implements the Experiment Harness (C10): ten
// validation experiments, each a pure function of (seed, scale parameters)
// returning a Verdict. Phase-1 experiments (EXP-01..EXP-03) gate whether any
// production code path may run at the repo's declared scale (spec §4.10).
package experiments

import "fmt"

// Verdict is the outcome of one experiment run (spec §4.10).
type Verdict struct {
	Name     string
	Pass     bool
	Metrics  map[string]float64
	Evidence string
}

// ScaleParameters bounds the size of an experiment run. Zero values fall
// back to each experiment's own conservative default so small/quick runs
// (e.g. in unit tests) don't require callers to know every knob.
type ScaleParameters struct {
	NumCoords      int
	NumAnchors     int
	NumQueries     int
	NumSeeds       int
	CorpusGrowMax  int
}

// Experiment is a named, pure (seed, scale) -> Verdict function.
type Experiment struct {
	Name string
	Run  func(seed int64, scale ScaleParameters) Verdict
}

// Phase1 is the set of experiments that must pass before any production
// admission path is permitted to run (spec §4.10).
var Phase1 = []string{"EXP-01", "EXP-02", "EXP-03"}

// All returns the ten registered experiments in number order.
func All() []Experiment {
	return []Experiment{
		{"EXP-01", RunExp01},
		{"EXP-02", RunExp02},
		{"EXP-03", RunExp03},
		{"EXP-04", RunExp04},
		{"EXP-05", RunExp05},
		{"EXP-06", RunExp06},
		{"EXP-07", RunExp07},
		{"EXP-08", RunExp08},
		{"EXP-09", RunExp09},
		{"EXP-10", RunExp10},
	}
}

// RunAll executes every experiment with the given seed and scale, in order.
func RunAll(seed int64, scale ScaleParameters) []Verdict {
	out := make([]Verdict, 0, len(All()))
	for _, e := range All() {
		out = append(out, e.Run(seed, scale))
	}
	return out
}

// Phase1Pass reports whether every Phase-1 experiment (EXP-01..EXP-03)
// passed in verdicts.
func Phase1Pass(verdicts []Verdict) bool {
	byName := make(map[string]bool, len(verdicts))
	for _, v := range verdicts {
		byName[v.Name] = v.Pass
	}
	for _, name := range Phase1 {
		if !byName[name] {
			return false
		}
	}
	return true
}

func fail(name, reason string) Verdict {
	return Verdict{Name: name, Pass: false, Evidence: reason}
}

func passf(name string, metrics map[string]float64, evidence string, args ...any) Verdict {
	return Verdict{Name: name, Pass: true, Metrics: metrics, Evidence: fmt.Sprintf(evidence, args...)}
}
