// Package guess proposes Gaussian components for a spectrum from thresholded
// regularized derivatives.
//
// A candidate sits wherever the third derivative changes sign while the raw
// intensity exceeds SNRThresh times the noise, the fourth derivative is
// positive and the second derivative is significantly negative. Widths follow
// from the curvature at the candidate, amplitudes from the data, and
// overlapping candidates are deblended with a linear least-squares solve.
package guess

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-gauss/agd/deriv"
	"github.com/cwbudde/algo-gauss/dsp/interp"
	"github.com/cwbudde/algo-gauss/gauss"
	"github.com/cwbudde/algo-gauss/stats/sample"
)

// Errors returned by InitialGuess.
var (
	ErrNonFinite = errors.New("guess: spectrum contains non-finite values")
	ErrLength    = errors.New("guess: velocity and intensity lengths differ")
)

// rmsHalfScale converts the standard deviation of the smaller half of a
// normal distribution (by absolute value) to the full standard deviation.
const rmsHalfScale = 0.377

// Options configures InitialGuess.
type Options struct {
	// Alpha is the derivative regularization scale in channels.
	Alpha float64
	// SNRThresh is the intensity threshold in units of the noise.
	SNRThresh float64
	// SNR2Thresh is the second-derivative threshold in units of its own
	// noise. Zero or negative disables the threshold.
	SNR2Thresh float64
	// Noise is the spectrum noise. Zero or NaN estimates it from the data.
	Noise float64
	// Logger receives debug output. Nil discards it.
	Logger *slog.Logger
}

// Guess is the outcome of InitialGuess.
type Guess struct {
	Params gauss.Params
	// U2 is the regularized second derivative, kept for diagnostics.
	U2 []float64
	// Noise is the noise level used for the intensity threshold.
	Noise float64
	// Thresh and Thresh2 are the intensity and second-derivative thresholds.
	Thresh, Thresh2 float64
	// Deblended reports whether the deblended amplitudes were kept.
	Deblended bool
}

// N returns the number of candidates.
func (g *Guess) N() int { return g.Params.Len() }

// InitialGuess finds candidate components in data sampled on vel.
func InitialGuess(vel, data []float64, opts Options) (*Guess, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	if len(vel) != len(data) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrLength, len(vel), len(data))
	}
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: channel %d", ErrNonFinite, i)
		}
	}
	axis, err := interp.NewAxis(vel)
	if err != nil {
		return nil, fmt.Errorf("guess: %w", err)
	}

	log.Debug("initial guess",
		slog.Float64("alpha", opts.Alpha),
		slog.Float64("snr_thresh", opts.SNRThresh),
		slog.Float64("snr2_thresh", opts.SNR2Thresh))

	field, err := deriv.Compute(data, axis.Spacing(), opts.Alpha)
	if err != nil {
		return nil, fmt.Errorf("guess: %w", err)
	}
	u2 := field.U2

	noise := opts.Noise
	if noise == 0 || math.IsNaN(noise) {
		noise = sample.NoiseBelowAbsMin(data)
	}
	thresh := opts.SNRThresh * noise

	thresh2 := 0.0
	if opts.SNR2Thresh > 0 {
		rmsd2 := sample.SmallestHalfStd(u2) / rmsHalfScale
		thresh2 = -rmsd2 * opts.SNR2Thresh
		log.Debug("second derivative threshold",
			slog.Float64("noise", rmsd2), slog.Float64("thresh2", thresh2))
	}

	g := &Guess{U2: u2, Noise: noise, Thresh: thresh, Thresh2: thresh2}

	// Sign changes of u3 between k and k+1, gated by the masks at k+1.
	var idx []int
	for k := 0; k+1 < len(data); k++ {
		if sign(field.U3[k+1]) == sign(field.U3[k]) {
			continue
		}
		j := k + 1
		if data[j] > thresh && field.U4[j] > 0 && u2[j] < thresh2 {
			idx = append(idx, k)
		}
	}
	log.Debug("components found", slog.Float64("alpha", opts.Alpha), slog.Int("n", len(idx)))
	if len(idx) == 0 {
		return g, nil
	}

	amps := make([]float64, len(idx))
	fwhms := make([]float64, len(idx))
	means := make([]float64, len(idx))
	for c, k := range idx {
		m, err := axis.At(float64(k) + 0.5)
		if err != nil {
			return nil, fmt.Errorf("guess: %w", err)
		}
		means[c] = m
		fwhms[c] = math.Sqrt(math.Abs(data[k]/u2[k])) * gauss.StdToFWHM
		amps[c] = data[k]
	}

	if deblended, ok := Deblend(amps, fwhms, means); ok {
		amps = deblended
		g.Deblended = true
	}

	g.Params, err = gauss.New(amps, fwhms, means)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Deblend corrects the amplitudes of overlapping candidates by solving
//
//	sum_j A_j exp(-(mu_i - mu_j)^2 / (2 sigma_j^2)) = amps_i
//
// in the least-squares sense. ok is false, and the input should be kept,
// unless every corrected amplitude is positive.
func Deblend(amps, fwhms, means []float64) (corrected []float64, ok bool) {
	n := len(amps)
	if n == 0 || len(fwhms) != n || len(means) != n {
		return nil, false
	}

	ff := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sigma := fwhms[j] / gauss.StdToFWHM
			d := means[i] - means[j]
			ff.Set(i, j, math.Exp(-d*d/2/(sigma*sigma)))
		}
	}

	x, ok := lstsq(ff, amps)
	if !ok {
		return nil, false
	}
	for _, a := range x {
		if !(a > 0) {
			return nil, false
		}
	}
	return x, true
}

// lstsq solves a*x = b in the least-squares sense through an SVD, discarding
// singular values below eps*max(rows, cols) relative to the largest.
func lstsq(a *mat.Dense, b []float64) ([]float64, bool) {
	r, c := a.Dims()
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, false
	}
	rank := svd.Rank(float64(max(r, c)) * eps)
	if rank == 0 {
		return nil, false
	}

	var x mat.Dense
	svd.SolveTo(&x, mat.NewDense(len(b), 1, append([]float64(nil), b...)), rank)

	out := make([]float64, c)
	for i := range out {
		out[i] = x.At(i, 0)
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return nil, false
		}
	}
	return out, true
}

// eps is the float64 machine epsilon.
var eps = math.Nextafter(1, 2) - 1

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
