package experiments

// EXP-01 verifies P-UNIQUE: 100k random valid coordinates produce zero
// address collisions, across 10 seeds (spec §8 scenario 1).

import (
	"math/rand"

	"stat7/core"
)

func randomCoord(rng *rand.Rand) core.Coord {
	realms := core.AllRealms()
	horizons := core.AllHorizons()
	polarities := core.AllPolarities()

	c, err := core.MakeCoord(
		realms[rng.Intn(len(realms))],
		rng.Uint64()%1_000_000,
		rng.Float64()*100,
		horizons[rng.Intn(len(horizons))],
		rng.Float64()*100,
		polarities[rng.Intn(len(polarities))],
		rng.Uint64()%16,
	)
	if err != nil {
		panic(err) // generator only ever produces valid field combinations
	}
	return c
}

func RunExp01(seed int64, scale ScaleParameters) Verdict {
	n := scale.NumCoords
	if n <= 0 {
		n = 100_000
	}
	seeds := scale.NumSeeds
	if seeds <= 0 {
		seeds = 10
	}

	totalCollisions := 0
	for s := 0; s < seeds; s++ {
		rng := rand.New(rand.NewSource(seed + int64(s)))
		seen := make(map[[32]byte]bool, n)
		for i := 0; i < n; i++ {
			addr := core.Address(randomCoord(rng))
			if seen[addr] {
				totalCollisions++
			}
			seen[addr] = true
		}
	}

	metrics := map[string]float64{"collisions": float64(totalCollisions), "coords_per_seed": float64(n), "seeds": float64(seeds)}
	if totalCollisions > 0 {
		return Verdict{Name: "EXP-01", Pass: false, Metrics: metrics, Evidence: "address collisions observed"}
	}
	return passf("EXP-01", metrics, "zero collisions across %d seeds x %d coords", seeds, n)
}
