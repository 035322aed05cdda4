// Package conv provides the convolution routines behind the derivative
// field of the Gaussian decomposition.
//
// Two linear strategies are offered and selected automatically by [Convolve]:
//
//   - Direct convolution: O(N*M) time-domain convolution, used for short kernels
//   - FFT convolution: zero-padded single-shot FFT multiplication for long kernels
//
// # Periodic convolution
//
// [Wrap] convolves with periodic boundary extension and returns an output of
// the same length as the signal. Kernel tap k is aligned so that tap
// len(kernel)/2 sits on the output sample, which is the centring convention of
// ndimage-style "wrap" filters:
//
//	out[i] = sum_k kernel[k] * signal[(i + len(kernel)/2 - k) mod N]
//
// Kernels longer than the signal are folded around the period as often as
// needed.
//
// # Usage
//
//	full, err := conv.Convolve(signal, kernel)    // len(signal)+len(kernel)-1
//	per, err := conv.Wrap(signal, kernel)         // len(signal)
package conv
