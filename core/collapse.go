// core/collapse.go
package core

// WFC Collapse Gate (C6) — a deterministic, cheap Julia-set admission test
// run against an incoming record's coordinate before the expensive
// auth/policy gate (spec §4.6). Not an authenticator: it is a topological
// sanity check on (coord, payload) coherence.

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/cmplx"
)

// CollapseVerdict is the outcome of one C6 run.
type CollapseVerdict string

const (
	Bound   CollapseVerdict = "BOUND"
	Escaped CollapseVerdict = "ESCAPED"
)

// CollapseReport is the full output of a collapse run (spec §4.6).
type CollapseReport struct {
	Result          CollapseVerdict
	Iterations      int
	FirstEscapeIter int // -1 if never escaped
	FinalMagnitude  float64
	C               complex128
	Z0              complex128
}

// velocity and density are deterministic, impl-defined normalizations of
// luminosity and adjacency respectively (spec §9 OQ1, resolved in
// SPEC_FULL.md): velocity centers luminosity around its midpoint into
// [-1,1]; density is adjacency already expressed as a [0,1] fraction.
func velocity(c Coord) float64 {
	return (c.Luminosity - 50.0) / 50.0
}

func density(c Coord) float64 {
	return c.Adjacency / 100.0
}

var polarityScalar = map[Polarity]float64{
	PolarityPositive: 1.0,
	PolarityNegative: -1.0,
	PolarityNeutral:  0.0,
}

// juliaParameter derives the complex parameter c from the coordinate (spec
// §4.6): c = (polarity_scalar · 0.5) + i · (velocity · density).
func juliaParameter(coord Coord) complex128 {
	re := polarityScalar[coord.Polarity] * 0.5
	im := velocity(coord) * density(coord)
	return complex(re, im)
}

// initialZ derives z0 from hash(bitchainID ‖ coordAddress), normalized to
// [-0.5, 0.5]^2 (spec §4.6).
func initialZ(bitchainID string, coordAddr [32]byte) complex128 {
	h := sha256.New()
	h.Write([]byte(bitchainID))
	h.Write(coordAddr[:])
	sum := h.Sum(nil)

	reBits := binary.BigEndian.Uint32(sum[0:4])
	imBits := binary.BigEndian.Uint32(sum[4:8])
	re := float64(reBits)/float64(math.MaxUint32) - 0.5
	im := float64(imBits)/float64(math.MaxUint32) - 0.5
	return complex(re, im)
}

// CollapseGate runs the §4.6 Julia-set admission test. Iterations is
// wfc_iterations from config — the spec requires this be 7 for conformance.
type CollapseGate struct {
	Iterations int
}

// NewCollapseGate constructs a gate with the given iteration depth. Per
// spec §6, iterations MUST be 7 for spec conformance; non-7 values are
// accepted (the algorithm is well-defined for any N) but deviate from the
// conformance contract.
func NewCollapseGate(iterations int) *CollapseGate {
	if iterations <= 0 {
		iterations = 7
	}
	return &CollapseGate{Iterations: iterations}
}

// Run derives (c, z0) from bitchainID and coord, then iterates z ← z²+c for
// Iterations steps. Deterministic: identical inputs always produce an
// identical report (spec §4.6 contract).
func (g *CollapseGate) Run(bitchainID string, coord Coord) CollapseReport {
	c := juliaParameter(coord)
	z := initialZ(bitchainID, Address(coord))
	z0 := z

	report := CollapseReport{FirstEscapeIter: -1, C: c, Z0: z0}
	for i := 0; i < g.Iterations; i++ {
		z = z*z + c
		mag := cmplx.Abs(z)
		report.FinalMagnitude = mag
		if mag > 2 {
			report.FirstEscapeIter = i
			break
		}
	}
	report.Iterations = g.Iterations
	if report.FirstEscapeIter == -1 {
		report.Result = Bound
	} else {
		report.Result = Escaped
	}
	return report
}
