package conv

import (
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// FFT computes the full linear convolution of a and b by zero-padding both to
// a power-of-two length and multiplying their spectra.
//
// Spectra in the decomposition are short enough that a single transform beats
// block processing, so no overlap-add segmentation is done here.
func FFT(a, b []float64) ([]float64, error) {
	if len(a) == 0 {
		return nil, ErrEmptyInput
	}
	if len(b) == 0 {
		return nil, ErrEmptyKernel
	}

	outLen := len(a) + len(b) - 1
	size := nextPowerOf2(outLen)

	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return nil, fmt.Errorf("conv: failed to create FFT plan: %w", err)
	}

	fa := make([]complex128, size)
	fb := make([]complex128, size)
	for i, v := range a {
		fa[i] = complex(v, 0)
	}
	for i, v := range b {
		fb[i] = complex(v, 0)
	}

	if err := plan.Forward(fa, fa); err != nil {
		return nil, fmt.Errorf("conv: forward FFT failed: %w", err)
	}
	if err := plan.Forward(fb, fb); err != nil {
		return nil, fmt.Errorf("conv: forward FFT failed: %w", err)
	}
	for i := range fa {
		fa[i] *= fb[i]
	}
	if err := plan.Inverse(fa, fa); err != nil {
		return nil, fmt.Errorf("conv: inverse FFT failed: %w", err)
	}

	out := make([]float64, outLen)
	for i := range out {
		out[i] = real(fa[i])
	}
	return out, nil
}
