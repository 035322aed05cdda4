// Package gauss defines the Gaussian component model shared by the
// decomposition packages.
//
// A decomposition of N components is carried as a [Params] value holding
// three parallel slices (amplitudes, FWHMs, means). The flat parameter vector
// used by the solvers is the concatenation
//
//	[amp_0 ... amp_{N-1}, fwhm_0 ... fwhm_{N-1}, mean_0 ... mean_{N-1}]
//
// and [FromVector] / [Params.Vector] convert between the two forms.
//
// # Model
//
// Every component is evaluated in its FWHM parameterization:
//
//	g(x) = amp * exp(-4 ln2 (x - mean)^2 / fwhm^2)
//
// [Params.Model] sums all components over an axis.
package gauss
