package experiments

// EXP-04 verifies P-DETERMINISTIC: address(canonicalize(C)) is identical
// across repeated, independent computations for the same coordinate (spec
// §8). Runs each coordinate through canonicalize+address twice, from two
// independently allocated Coord values, and confirms bit-for-bit equality.

import (
	"math/rand"

	"stat7/core"
)

func RunExp04(seed int64, scale ScaleParameters) Verdict {
	n := scale.NumCoords
	if n <= 0 {
		n = 10_000
	}
	rng := rand.New(rand.NewSource(seed))
	mismatches := 0
	for i := 0; i < n; i++ {
		c := randomCoord(rng)
		// Reconstruct an independent copy via MakeCoord rather than reusing
		// c directly, so this actually exercises re-derivation, not just a
		// struct equality check.
		c2, err := core.MakeCoord(c.Realm, c.Lineage, c.Adjacency, c.Horizon, c.Luminosity, c.Polarity, c.Dimensionality)
		if err != nil {
			return fail("EXP-04", err.Error())
		}
		if core.Address(c) != core.Address(c2) {
			mismatches++
		}
	}
	metrics := map[string]float64{"mismatches": float64(mismatches), "n": float64(n)}
	if mismatches > 0 {
		return Verdict{Name: "EXP-04", Pass: false, Metrics: metrics, Evidence: "address was not deterministic across independent re-derivations"}
	}
	return passf("EXP-04", metrics, "address(canonicalize(C)) stable across %d independent re-derivations", n)
}
