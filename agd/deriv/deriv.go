// Package deriv computes regularized derivatives of a spectrum.
//
// The data are convolved with numerical derivatives of a normalized Gaussian
// kernel whose standard deviation alpha (in channels) sets the smoothing
// scale. Two kernel families are built: an odd one on a half-sample grid for
// the 1st and 3rd derivative, and an even one on the integer grid for the
// 2nd and 4th derivative. All convolutions are periodic.
//
// Larger alpha smooths more and therefore yields fewer, broader candidate
// peaks downstream.
package deriv

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-gauss/dsp/conv"
)

// Errors returned by Kernels and Compute.
var (
	ErrAlpha   = errors.New("deriv: alpha must be positive")
	ErrSpacing = errors.New("deriv: channel spacing must be positive")
)

// minSigma is the smallest kernel sigma (in channels) used to size the
// kernel support; the support is six sigmas on each side.
const (
	minSigma      = 5
	supportFactor = 6
)

// Field holds the first four regularized derivatives of a spectrum.
type Field struct {
	U1, U2, U3, U4 []float64
}

// HalfWidth returns the kernel half width in channels for alpha.
func HalfWidth(alpha float64) int {
	s := math.Trunc(alpha)
	if s < minSigma {
		s = minSigma
	}
	return int(s) * supportFactor
}

// Kernels returns the derivative kernels for alpha and channel spacing dv.
// odd holds the 1st and 3rd derivative kernels, even the 2nd and 4th.
func Kernels(alpha, dv float64) (odd, even [2][]float64, err error) {
	if !(alpha > 0) {
		return odd, even, fmt.Errorf("%w: %v", ErrAlpha, alpha)
	}
	if !(dv > 0) {
		return odd, even, fmt.Errorf("%w: %v", ErrSpacing, dv)
	}

	dn := HalfWidth(alpha)

	// Half-sample grid: 2*dn+2 points centred between channels.
	g := gaussian(2*dn+2, -float64(dn)-0.5, alpha)
	g1 := diff(g, dv)
	g3 := diff(diff(g1, dv), dv)

	// Integer grid: 2*dn+1 points centred on a channel.
	h := gaussian(2*dn+1, -float64(dn), alpha)
	g2 := diff(diff(h, dv), dv)
	g4 := diff(diff(g2, dv), dv)

	return [2][]float64{g1, g3}, [2][]float64{g2, g4}, nil
}

// Compute returns the four regularized derivatives of data.
func Compute(data []float64, dv, alpha float64) (Field, error) {
	if len(data) == 0 {
		return Field{}, conv.ErrEmptyInput
	}
	odd, even, err := Kernels(alpha, dv)
	if err != nil {
		return Field{}, err
	}

	var f Field
	for _, k := range []struct {
		dst    *[]float64
		kernel []float64
	}{
		{&f.U1, odd[0]},
		{&f.U2, even[0]},
		{&f.U3, odd[1]},
		{&f.U4, even[1]},
	} {
		out, err := conv.Wrap(data, k.kernel)
		if err != nil {
			return Field{}, fmt.Errorf("deriv: %w", err)
		}
		*k.dst = out
	}
	return f, nil
}

// gaussian samples a unit-sum Gaussian of the given sigma on n points
// starting at x0 with unit step.
func gaussian(n int, x0, sigma float64) []float64 {
	out := make([]float64, n)
	sum := 0.0
	for i := range out {
		x := x0 + float64(i)
		out[i] = math.Exp(-x * x / 2 / (sigma * sigma))
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// diff returns the first difference of x divided by dv.
func diff(x []float64, dv float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	for i := range out {
		out[i] = (x[i+1] - x[i]) / dv
	}
	return out
}
