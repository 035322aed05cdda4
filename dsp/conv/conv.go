package conv

import (
	"errors"

	"github.com/cwbudde/algo-vecmath"
)

// Errors returned by convolution functions.
var (
	ErrEmptyInput     = errors.New("conv: empty input")
	ErrEmptyKernel    = errors.New("conv: empty kernel")
	ErrLengthMismatch = errors.New("conv: buffer length mismatch")
)

// directThreshold is the kernel length up to which Convolve stays in the
// time domain.
const directThreshold = 64

// simdThreshold is the kernel length from which DirectTo vectorizes the
// inner loop.
const simdThreshold = 16

// Direct performs direct time-domain linear convolution of a and b.
// Returns a new slice of length len(a) + len(b) - 1.
func Direct(a, b []float64) ([]float64, error) {
	if len(a) == 0 {
		return nil, ErrEmptyInput
	}
	if len(b) == 0 {
		return nil, ErrEmptyKernel
	}

	result := make([]float64, len(a)+len(b)-1)
	DirectTo(result, a, b)
	return result, nil
}

// DirectTo performs direct convolution, writing to a pre-allocated destination.
// dst must have length len(a) + len(b) - 1.
func DirectTo(dst, a, b []float64) {
	for i := range dst {
		dst[i] = 0
	}
	if len(b) >= simdThreshold {
		directToSIMD(dst, a, b)
		return
	}
	for i, ai := range a {
		if ai == 0 {
			continue
		}
		row := dst[i : i+len(b)]
		for j, bj := range b {
			row[j] += ai * bj
		}
	}
}

// directToSIMD accumulates a[i]*b into dst[i:] with vecmath block kernels.
func directToSIMD(dst, a, b []float64) {
	m := len(b)
	temp := make([]float64, m)
	for i, ai := range a {
		if ai == 0 {
			continue
		}
		vecmath.ScaleBlock(temp, b, ai)
		vecmath.AddBlockInPlace(dst[i:i+m], temp)
	}
}

// Convolve performs linear convolution with automatic algorithm selection.
// Kernels of up to 64 taps use direct convolution, longer ones the FFT path.
func Convolve(a, b []float64) ([]float64, error) {
	if len(a) == 0 {
		return nil, ErrEmptyInput
	}
	if len(b) == 0 {
		return nil, ErrEmptyKernel
	}

	// Ensure a is the longer signal
	if len(b) > len(a) {
		a, b = b, a
	}

	if len(b) <= directThreshold {
		return Direct(a, b)
	}
	return FFT(a, b)
}

// Wrap convolves signal with kernel using periodic boundary extension.
// The result has len(signal) samples; see the package documentation for the
// tap alignment.
func Wrap(signal, kernel []float64) ([]float64, error) {
	out := make([]float64, len(signal))
	if err := WrapTo(out, signal, kernel); err != nil {
		return nil, err
	}
	return out, nil
}

// WrapTo is [Wrap] writing into dst, which must have len(signal) elements.
func WrapTo(dst, signal, kernel []float64) error {
	if len(signal) == 0 {
		return ErrEmptyInput
	}
	if len(kernel) == 0 {
		return ErrEmptyKernel
	}
	if len(dst) != len(signal) {
		return ErrLengthMismatch
	}

	full, err := Convolve(signal, kernel)
	if err != nil {
		return err
	}

	// Folding the linear result modulo N yields the circular convolution.
	n := len(signal)
	circ := make([]float64, n)
	for t, v := range full {
		circ[t%n] += v
	}

	c := len(kernel) / 2
	for i := range dst {
		dst[i] = circ[(i+c)%n]
	}
	return nil
}

// nextPowerOf2 returns the next power of 2 >= n.
func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p *= 2
	}
	return p
}
