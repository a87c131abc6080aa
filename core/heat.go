// core/heat.go
package core

import "math"

// expDecay returns exp(-lambda * dtSeconds), the multiplicative factor
// applied to heat over an idle interval (spec §4.4: heat ← heat · exp(-λ·Δt)).
func expDecay(lambda, dtSeconds float64) float64 {
	if lambda <= 0 {
		return 1
	}
	return math.Exp(-lambda * dtSeconds)
}
