package median

import (
	"errors"
	"sort"
)

// ErrSize is returned for window sizes below one.
var ErrSize = errors.New("median: window size must be at least 1")

// Filter returns the running median of x over windows of the given size.
func Filter(x []float64, size int) ([]float64, error) {
	out := make([]float64, len(x))
	if err := FilterTo(out, x, size); err != nil {
		return nil, err
	}
	return out, nil
}

// FilterTo is [Filter] writing into dst, which must have len(x) elements.
// dst and x must not overlap.
func FilterTo(dst, x []float64, size int) error {
	if size < 1 {
		return ErrSize
	}
	if len(dst) != len(x) {
		return errors.New("median: destination length mismatch")
	}
	n := len(x)
	if n == 0 {
		return nil
	}
	if size == 1 {
		copy(dst, x)
		return nil
	}

	half := size / 2
	window := make([]float64, size)
	for i := range dst {
		start := i - half
		for j := range window {
			window[j] = x[reflect(start+j, n)]
		}
		sort.Float64s(window)
		dst[i] = window[half]
	}
	return nil
}

// reflect maps an arbitrary index onto [0, n) by half-sample symmetric
// extension with period 2n.
func reflect(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
