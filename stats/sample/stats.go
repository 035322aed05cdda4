// Package sample provides summary statistics of spectra and residuals, and
// the robust noise proxies used by the peak guesser.
package sample

import (
	"math"
	"sort"
)

// Stats holds single-pass sample statistics.
type Stats struct {
	Length   int
	Mean     float64
	Variance float64 // population variance
	Std      float64
	RMS      float64
	Energy   float64 // sum of squares
	Max      float64
	MaxPos   int
	Min      float64
	MinPos   int
}

// Calculate computes all statistics in a single pass using Welford's online
// algorithm for the variance.
func Calculate(x []float64) Stats {
	n := len(x)
	if n == 0 {
		return Stats{}
	}

	var (
		mean, m2, sumSq float64
		maxVal          = x[0]
		minVal          = x[0]
		maxPos, minPos  int
	)

	for i, v := range x {
		ni := float64(i + 1)
		delta := v - mean
		mean += delta / ni
		m2 += delta * (v - mean)

		sumSq += v * v

		if v > maxVal {
			maxVal, maxPos = v, i
		}
		if v < minVal {
			minVal, minPos = v, i
		}
	}

	nf := float64(n)
	variance := m2 / nf
	return Stats{
		Length:   n,
		Mean:     mean,
		Variance: variance,
		Std:      math.Sqrt(variance),
		RMS:      math.Sqrt(sumSq / nf),
		Energy:   sumSq,
		Max:      maxVal,
		MaxPos:   maxPos,
		Min:      minVal,
		MinPos:   minPos,
	}
}

// Std returns the population standard deviation of x.
func Std(x []float64) float64 {
	return Calculate(x).Std
}

// NoiseBelowAbsMin estimates the noise of a spectrum whose negative tail is
// assumed to be pure noise: the standard deviation of all samples strictly
// below |min(x)|. Returns NaN for an empty input.
func NoiseBelowAbsMin(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	limit := math.Abs(Calculate(x).Min)
	sel := make([]float64, 0, len(x))
	for _, v := range x {
		if v < limit {
			sel = append(sel, v)
		}
	}
	if len(sel) == 0 {
		return math.NaN()
	}
	return Std(sel)
}

// SmallestHalfStd returns the standard deviation of the int(len(x)/2) samples
// with the smallest absolute value. Ties in |x| keep index order.
func SmallestHalfStd(x []float64) float64 {
	half := len(x) / 2
	if half == 0 {
		return 0
	}
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return math.Abs(x[idx[a]]) < math.Abs(x[idx[b]]) })

	sel := make([]float64, half)
	for k := range sel {
		sel[k] = x[idx[k]]
	}
	return Std(sel)
}

// Median returns the median of x, averaging the two middle values for even
// lengths. Returns NaN for an empty input. x is not modified.
func Median(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return 0.5 * (s[n/2-1] + s[n/2])
}
