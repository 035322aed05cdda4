package agd

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/algo-gauss/agd/guess"
	"github.com/cwbudde/algo-gauss/dsp/filter/median"
	"github.com/cwbudde/algo-gauss/dsp/interp"
	"github.com/cwbudde/algo-gauss/fit"
	"github.com/cwbudde/algo-gauss/gauss"
)

// fitMaskWidth is the fraction of a candidate's sigma covered by its
// intermediate fit window on each side.
const fitMaskWidth = 0.9

// Median window relation between alpha1 and the residual filter size,
// calibrated on survey data: 2 * 10^((log10(alpha1) + a) / b).
const (
	medianWindowA = 2.187
	medianWindowB = 3.859
)

// MedianWindow returns the median filter size applied to the phase-two
// residual.
func MedianWindow(alpha1 float64) int {
	w := int(2 * math.Pow(10, (math.Log10(alpha1)+medianWindowA)/medianWindowB))
	return max(w, 1)
}

// FitMask marks the channels within fitMaskWidth sigmas of every
// candidate. Windows are [int(c-d), int(c+d)) with c the fractional channel
// of the mean; negative bounds count from the end as in slice expressions
// of array languages, so a window crossing channel 0 is empty.
func FitMask(n int, centres, halfWidths []float64) []bool {
	mask := make([]bool, n)
	for i, c := range centres {
		lo := sliceIndex(int(c-halfWidths[i]), n)
		hi := sliceIndex(int(c+halfWidths[i]), n)
		for k := lo; k < hi; k++ {
			mask[k] = true
		}
	}
	return mask
}

func sliceIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	return min(max(i, 0), n)
}

// phaseResult is everything the combiner learned, for diagnostics.
type phaseResult struct {
	phase1, phase2 *guess.Guess
	intermediate   gauss.Params
	intermediateOK bool
	residual       []float64
	combined       gauss.Params
}

// guessTwoPhase produces the candidate set for the final fit.
func guessTwoPhase(ctx context.Context, sp Spectrum, errs []float64, set Settings, bounds fit.Bounds, log *slog.Logger) (*phaseResult, error) {
	vel, data := sp.Velocity, sp.Intensity
	opts := guess.Options{
		Alpha:      set.Alpha1,
		SNRThresh:  set.SNRThresh,
		SNR2Thresh: set.SNR2Thresh,
		Noise:      errs[0],
		Logger:     log,
	}
	g1, err := guess.InitialGuess(vel, data, opts)
	if err != nil {
		return nil, err
	}
	res := &phaseResult{phase1: g1, combined: g1.Params}
	if set.Phase != PhaseTwo {
		return res, nil
	}

	log.Debug("beginning phase two", slog.Int("phase1", g1.N()))
	residual := data
	if g1.N() > 0 {
		residual, err = intermediateResidual(ctx, sp, errs, g1, set, bounds, res)
		if err != nil {
			return nil, err
		}
	}
	res.residual = residual

	opts.Alpha = set.Alpha2
	g2, err := guess.InitialGuess(vel, residual, opts)
	if err != nil {
		return nil, err
	}
	res.phase2 = g2
	if g2.N() > 0 {
		res.combined = g1.Params.Append(g2.Params)
	}
	return res, nil
}

// intermediateResidual fits the phase-one candidates in the second
// derivative domain and returns the median-filtered data minus that model.
// The raw data is returned when the solver fails.
func intermediateResidual(ctx context.Context, sp Spectrum, errs []float64, g1 *guess.Guess, set Settings, bounds fit.Bounds, res *phaseResult) ([]float64, error) {
	vel, data := sp.Velocity, sp.Intensity
	axis, err := interp.NewAxis(vel)
	if err != nil {
		return nil, fmt.Errorf("agd: %w", err)
	}
	dv := axis.Spacing()

	n := g1.N()
	centres := make([]float64, n)
	widths := make([]float64, n)
	for i := 0; i < n; i++ {
		if centres[i], err = axis.Index(g1.Params.Means[i]); err != nil {
			return nil, fmt.Errorf("agd: %w", err)
		}
		widths[i] = g1.Params.FWHMs[i] / dv / gauss.StdToFWHM * fitMaskWidth
	}
	mask := FitMask(len(data), centres, widths)

	sol, err := fit.SecondDerivative(ctx, vel, data, errs, g1.U2, g1.Params, mask, bounds)
	if err != nil {
		return nil, err
	}
	res.intermediate = sol.Params
	res.intermediateOK = sol.Success
	if !sol.Success {
		return data, nil
	}

	model := sol.Params.Model(vel)
	diff := make([]float64, len(data))
	for i := range diff {
		diff[i] = data[i] - model[i]
	}
	filtered, err := median.Filter(diff, MedianWindow(set.Alpha1))
	if err != nil {
		return nil, fmt.Errorf("agd: %w", err)
	}
	return filtered, nil
}
