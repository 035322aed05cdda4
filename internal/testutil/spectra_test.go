package testutil

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-gauss/gauss"
)

func TestChannels(t *testing.T) {
	v := Channels(-2, 0.5, 5)
	RequireSliceNearlyEqual(t, v, []float64{-2, -1.5, -1, -0.5, 0}, 0)
}

func TestGaussianNoiseReproducible(t *testing.T) {
	a := GaussianNoise(42, 1, 64)
	b := GaussianNoise(42, 1, 64)
	RequireSliceNearlyEqual(t, a, b, 0)

	c := GaussianNoise(43, 1, 64)
	if d, _ := MaxAbsDiff(a, c); d == 0 {
		t.Fatal("different seeds produced identical noise")
	}
}

func TestGaussianNoiseScale(t *testing.T) {
	x := GaussianNoise(7, 0.5, 20000)
	var sum, sumSq float64
	for _, v := range x {
		sum += v
		sumSq += v * v
	}
	n := float64(len(x))
	std := math.Sqrt(sumSq/n - (sum/n)*(sum/n))
	if math.Abs(std-0.5) > 0.02 {
		t.Errorf("std = %v, want about 0.5", std)
	}
}

func TestSpectrumNoiseless(t *testing.T) {
	vel := Channels(0, 1, 21)
	y := Spectrum(vel, []gauss.Component{{Amp: 3, FWHM: 4, Mean: 10}}, 0, 1)
	RequireFinite(t, y)
	if y[10] != 3 {
		t.Errorf("peak = %v, want 3", y[10])
	}
}

func TestClosestMean(t *testing.T) {
	p := gauss.FromComponents([]gauss.Component{{Mean: 1}, {Mean: 10}, {Mean: 4}})
	if got := ClosestMean(p, 5); got != 2 {
		t.Errorf("ClosestMean = %d, want 2", got)
	}
	if got := ClosestMean(gauss.Params{}, 5); got != -1 {
		t.Errorf("ClosestMean(empty) = %d, want -1", got)
	}
}
