// core/conservator.go
package core

// Conservator (C8) — bounded auto-repair for ESCAPED records (spec §4.8).
// Repairs are a data-driven registry of pure, named actions so the set of
// applied repairs is always reportable; this mirrors the teacher's
// core/anomaly_detection.go AnomalyService pattern of a small registered
// set of checks run in a fixed order, generalized from detection to repair.

import (
	"strings"
)

// RepairAction is a single named, pure coordinate/text transform. Actions
// must be idempotent: applying one twice must equal applying it once.
type RepairAction struct {
	Name  string
	Apply func(bc *BitChain) bool // returns true if it changed anything
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DefaultRepairActions is the bounded, ordered set of repairs the
// conservator may try, one pass each per attempt (spec §4.8 "bounded").
func DefaultRepairActions() []RepairAction {
	return []RepairAction{
		{
			Name: "clamp_adjacency",
			Apply: func(bc *BitChain) bool {
				clamped := clampFloat(bc.Coord.Adjacency, 0, 100)
				if clamped == bc.Coord.Adjacency {
					return false
				}
				bc.Coord.Adjacency = quantize(clamped)
				return true
			},
		},
		{
			Name: "clamp_luminosity",
			Apply: func(bc *BitChain) bool {
				clamped := clampFloat(bc.Coord.Luminosity, 0, 100)
				if clamped == bc.Coord.Luminosity {
					return false
				}
				bc.Coord.Luminosity = quantize(clamped)
				return true
			},
		},
		{
			Name: "canonicalize_polarity",
			Apply: func(bc *BitChain) bool {
				if _, ok := validPolarities[bc.Coord.Polarity]; ok {
					return false
				}
				bc.Coord.Polarity = PolarityNeutral
				return true
			},
		},
		{
			Name: "strip_whitespace_text",
			Apply: func(bc *BitChain) bool {
				trimmed := strings.TrimSpace(bc.Text)
				if trimmed == bc.Text {
					return false
				}
				bc.Text = trimmed
				return true
			},
		},
	}
}

// RepairOutcome reports what the conservator did with one ESCAPED record.
type RepairOutcome struct {
	Applied       []string
	Recovered     bool
	FinalVerdict  CollapseVerdict
	FinalReport   CollapseReport
}

// Conservator re-runs the collapse gate after applying its repair registry,
// once, to records that ESCAPED (spec §4.8: single repair pass per
// admission attempt — it never loops).
type Conservator struct {
	gate    *CollapseGate
	actions []RepairAction
}

// NewConservator wires a conservator against gate using the given repair
// action set (DefaultRepairActions if nil).
func NewConservator(gate *CollapseGate, actions []RepairAction) *Conservator {
	if actions == nil {
		actions = DefaultRepairActions()
	}
	return &Conservator{gate: gate, actions: actions}
}

// Attempt applies every registered repair action once, in order, to a copy
// of bc, then re-runs the collapse gate. If the repaired record is BOUND,
// Recovered is true and the caller should proceed with the repaired copy;
// otherwise the record is UNRECOVERABLE for this admission attempt.
func (c *Conservator) Attempt(bc BitChain) (BitChain, RepairOutcome) {
	repaired := bc
	var applied []string
	for _, action := range c.actions {
		if action.Apply(&repaired) {
			applied = append(applied, action.Name)
		}
	}

	report := c.gate.Run(repaired.ID, repaired.Coord)
	outcome := RepairOutcome{
		Applied:      applied,
		Recovered:    report.Result == Bound,
		FinalVerdict: report.Result,
		FinalReport:  report,
	}
	return repaired, outcome
}
