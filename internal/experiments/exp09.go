package experiments

// EXP-09 exercises end-to-end admission scenarios 4 and 5 (spec §8):
// a well-formed record and an out-of-range-adjacency record opted into
// repair. Rather than hardcoding which branch the Julia-set gate takes for
// a given seed (an implementation-defined function per spec §9 OQ1), this
// checks the invariant that must hold on EITHER branch: a BOUND record is
// admitted as-is, and an ESCAPED record is only admitted after the
// conservator's clamp_adjacency repair brings it back into [0, 100].

import (
	"context"

	"stat7/core"
)

func RunExp09(seed int64, scale ScaleParameters) Verdict {
	p, err := newTestPipeline(map[string]string{"tok-1": "req-1"})
	if err != nil {
		return fail("EXP-09", err.Error())
	}
	defer p.cleanup()
	if err := p.policy.Grant("req-1", core.RealmData, core.PolarityNeutral); err != nil {
		return fail("EXP-09", err.Error())
	}

	coord4, err := scenario4Coord()
	if err != nil {
		return fail("EXP-09", err.Error())
	}
	bc4 := core.BitChain{Coord: coord4, Payload: []byte("hello"), Text: "hello"}
	res4, err := p.orchestrator.ProcessBitChain(context.Background(), bc4, "tok-1", "req-1", "admit")
	if err != nil {
		return fail("EXP-09", err.Error())
	}

	// Scenario 5: same fields, but adjacency out of the valid [0,100] range
	// — constructed as a raw Coord (bypassing make_coord's own validation)
	// since the conservator's repair path exists precisely for records that
	// reach the collapse gate with an out-of-range coordinate.
	coord5 := coord4
	coord5.Adjacency = 500.0
	// A payload distinct from scenario 4's: the store rejects one payload
	// under two coordinates.
	bc5 := core.BitChain{Coord: coord5, Payload: []byte("hello-5"), Text: "hello"}
	res5, err := p.orchestrator.ProcessBitChain(context.Background(), bc5, "tok-1", "req-1", "admit")
	if err != nil {
		return fail("EXP-09", err.Error())
	}

	metrics := map[string]float64{}
	if res4.Success {
		if res4.Status != core.StatusAdmitted && res4.Status != core.StatusRepaired {
			return Verdict{Name: "EXP-09", Pass: false, Metrics: metrics, Evidence: "scenario 4 admitted with an unexpected status"}
		}
	}

	if res5.Success {
		bc, ok, err := p.bitchains.Get(res5.BitChainID)
		if err != nil {
			return fail("EXP-09", err.Error())
		}
		if !ok {
			return Verdict{Name: "EXP-09", Pass: false, Evidence: "admitted scenario-5 bit-chain not found in store"}
		}
		if bc.Coord.Adjacency < 0 || bc.Coord.Adjacency > 100 {
			return Verdict{Name: "EXP-09", Pass: false, Evidence: "scenario 5 admitted with adjacency still out of range — repair did not run"}
		}
		if res5.Status == core.StatusRepaired && bc.Coord.Adjacency != 100.0 {
			return Verdict{Name: "EXP-09", Pass: false, Evidence: "scenario 5 repaired adjacency did not clamp to 100.0"}
		}
	}

	metrics["scenario4_admitted"] = boolToFloat(res4.Success)
	metrics["scenario5_admitted"] = boolToFloat(res5.Success)
	return passf("EXP-09", metrics, "scenario4=%v(%s) scenario5=%v(%s)", res4.Success, res4.Status, res5.Success, res5.Status)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
