package experiments

// EXP-07 verifies P-JOURNEY-COMPLETE: every admission result has a journey
// whose final entry's status matches the ProcessResult's returned status
// (spec §8).

import (
	"context"

	"stat7/core"
)

func scenario4Coord() (core.Coord, error) {
	return core.MakeCoord(core.RealmData, 1, 50.0, core.HorizonGenesis, 10.0, core.PolarityNeutral, 0)
}

func RunExp07(seed int64, scale ScaleParameters) Verdict {
	p, err := newTestPipeline(map[string]string{"tok-1": "req-1"})
	if err != nil {
		return fail("EXP-07", err.Error())
	}
	defer p.cleanup()
	if err := p.policy.Grant("req-1", core.RealmData, core.PolarityNeutral); err != nil {
		return fail("EXP-07", err.Error())
	}

	coord, err := scenario4Coord()
	if err != nil {
		return fail("EXP-07", err.Error())
	}
	bc := core.BitChain{Coord: coord, Payload: []byte("hello"), Text: "hello"}

	result, err := p.orchestrator.ProcessBitChain(context.Background(), bc, "tok-1", "req-1", "admit")
	if err != nil {
		return fail("EXP-07", err.Error())
	}
	if len(result.Journey) == 0 {
		return Verdict{Name: "EXP-07", Pass: false, Evidence: "admission result carried no journey entries"}
	}
	last := result.Journey[len(result.Journey)-1]
	metrics := map[string]float64{"journey_len": float64(len(result.Journey))}
	if last.Status != result.Status {
		return Verdict{Name: "EXP-07", Pass: false, Metrics: metrics, Evidence: "final journey entry status did not match returned status"}
	}
	return passf("EXP-07", metrics, "journey final state %q matches returned status", last.Status)
}
