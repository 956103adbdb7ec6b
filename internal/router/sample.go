package router

import (
	"math"
	"math/rand"
)

// sampleBeta draws one value from Beta(alpha, beta) using the standard
// Gamma-ratio construction: if X ~ Gamma(alpha,1) and Y ~ Gamma(beta,1)
// independently, then X/(X+Y) ~ Beta(alpha,beta).
func sampleBeta(rng *rand.Rand, alpha, beta float64) float64 {
	x := sampleGamma(rng, alpha)
	y := sampleGamma(rng, beta)
	return x / (x + y)
}

// sampleGamma draws one value from Gamma(shape, 1) via the
// Marsaglia-Tsang method, boosted for shape < 1 using the standard
// U^(1/shape) correction.
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)

	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		x2 := x * x
		if u < 1-0.0331*x2*x2 {
			return d * v
		}
		if math.Log(u) < 0.5*x2+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
