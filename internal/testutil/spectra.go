package testutil

import (
	"math"
	"math/rand"

	"github.com/cwbudde/algo-gauss/gauss"
)

// Channels returns the velocity axis start, start+step, ... with n samples.
func Channels(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

// GaussianNoise generates normally distributed noise with a fixed seed.
func GaussianNoise(seed int64, sigma float64, n int) []float64 {
	out := make([]float64, n)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = rng.NormFloat64() * sigma
	}
	return out
}

// Spectrum evaluates components on vel and adds seeded Gaussian noise of
// standard deviation sigma. sigma 0 yields the noiseless model.
func Spectrum(vel []float64, cs []gauss.Component, sigma float64, seed int64) []float64 {
	out := gauss.FromComponents(cs).Model(vel)
	if sigma > 0 {
		for i, v := range GaussianNoise(seed, sigma, len(vel)) {
			out[i] += v
		}
	}
	return out
}

// Fill returns a slice of length n filled with value.
func Fill(value float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

// ClosestMean returns the index of the component in p whose mean is nearest
// to mu, or -1 when p is empty.
func ClosestMean(p gauss.Params, mu float64) int {
	best, bestD := -1, math.Inf(1)
	for i, m := range p.Means {
		if d := math.Abs(m - mu); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}
