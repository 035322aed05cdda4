package fit

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-gauss/fit/lm"
	"github.com/cwbudde/algo-gauss/gauss"
)

// Errors returned by Data and SecondDerivative.
var (
	ErrEmptyGuess   = errors.New("fit: guess has no components")
	ErrLength       = errors.New("fit: input lengths differ")
	ErrNonPositive  = errors.New("fit: errors must be positive")
	ErrEmptyMask    = errors.New("fit: mask selects no channels")
	ErrBoundsLength = errors.New("fit: bounds length differs from parameter count")
)

// intermediateOutsideWeight down-weights the data term outside the fit mask
// of the second-derivative objective.
const intermediateOutsideWeight = 10

// Bounds constrains the fitted parameters. Amplitudes and FWHMs are never
// negative.
type Bounds struct {
	// MaxAmp bounds the amplitudes from above. Zero, NaN or +Inf leaves
	// them unbounded.
	MaxAmp float64
	// MaxFWHM bounds the widths from above in the same way.
	MaxFWHM float64
	// Min and Max optionally narrow the bounds per parameter, in parameter
	// vector layout. NaN and infinite entries are ignored.
	Min, Max []float64
}

func unset(v float64) bool { return v == 0 || math.IsNaN(v) || math.IsInf(v, 1) }

// Vectors returns the lower and upper bound vectors for n components.
func (b Bounds) Vectors(n int) (lower, upper []float64, err error) {
	if b.Min != nil && len(b.Min) != 3*n {
		return nil, nil, fmt.Errorf("%w: min %d, params %d", ErrBoundsLength, len(b.Min), 3*n)
	}
	if b.Max != nil && len(b.Max) != 3*n {
		return nil, nil, fmt.Errorf("%w: max %d, params %d", ErrBoundsLength, len(b.Max), 3*n)
	}

	lower = make([]float64, 3*n)
	upper = make([]float64, 3*n)
	for i := range lower {
		upper[i] = math.Inf(1)
	}
	for i := 2 * n; i < 3*n; i++ {
		lower[i] = math.Inf(-1)
	}
	for i := 0; i < n; i++ {
		if !unset(b.MaxAmp) {
			upper[i] = b.MaxAmp
		}
		if !unset(b.MaxFWHM) {
			upper[n+i] = b.MaxFWHM
		}
	}
	for i, v := range b.Min {
		if !math.IsNaN(v) && !math.IsInf(v, 0) && v > lower[i] {
			lower[i] = v
		}
	}
	for i, v := range b.Max {
		if !math.IsNaN(v) && !math.IsInf(v, 0) && v < upper[i] {
			upper[i] = v
		}
	}
	return lower, upper, nil
}

// Solution is the outcome of a fit.
type Solution struct {
	Params gauss.Params
	// Errors holds the standard errors in the same layout as Params.
	Errors gauss.Params
	// Success is false when the solver ran out of evaluations or hit a
	// non-finite residual.
	Success bool
	Status  lm.Status
	// Chi2 is the weighted sum of squared residuals of the objective.
	Chi2  float64
	NEval int
}

// weights returns 1/err for n channels. A single error value is broadcast.
func weights(errs []float64, n int) ([]float64, error) {
	if len(errs) != n && len(errs) != 1 {
		return nil, fmt.Errorf("%w: errors %d, channels %d", ErrLength, len(errs), n)
	}
	w := make([]float64, n)
	for i := range w {
		e := errs[0]
		if len(errs) == n {
			e = errs[i]
		}
		if !(e > 0) {
			return nil, fmt.Errorf("%w: channel %d has %v", ErrNonPositive, i, e)
		}
		w[i] = 1 / e
	}
	return w, nil
}

// Data fits guess to data sampled on vel. mask selects the channels that
// enter the objective; nil selects all.
func Data(ctx context.Context, vel, data, errs []float64, guess gauss.Params, bounds Bounds, mask []bool) (Solution, error) {
	if guess.Len() == 0 {
		return Solution{}, ErrEmptyGuess
	}
	if len(vel) != len(data) {
		return Solution{}, fmt.Errorf("%w: velocity %d, data %d", ErrLength, len(vel), len(data))
	}
	if mask != nil && len(mask) != len(data) {
		return Solution{}, fmt.Errorf("%w: mask %d, data %d", ErrLength, len(mask), len(data))
	}
	w, err := weights(errs, len(data))
	if err != nil {
		return Solution{}, err
	}

	// Restrict to the masked channels.
	var x, negY, wm []float64
	for i := range data {
		if mask != nil && !mask[i] {
			continue
		}
		x = append(x, vel[i])
		negY = append(negY, -data[i])
		wm = append(wm, w[i])
	}
	if len(x) == 0 {
		return Solution{}, ErrEmptyMask
	}

	model := make([]float64, len(x))
	residual := func(dst, v []float64) {
		p := split(v)
		p.ModelTo(model, x)
		vecmath.AddBlockInPlace(model, negY)
		vecmath.MulBlock(dst, model, wm)
	}
	return solve(ctx, residual, len(x), guess, bounds)
}

// SecondDerivative performs the intermediate fit: inside fitmask the
// discrete second derivative of the model is fitted to u2, outside it the
// model is fitted to data with weight 1/10. The objective has
// (n-2) + n residuals.
func SecondDerivative(ctx context.Context, vel, data, errs, u2 []float64, guess gauss.Params, fitmask []bool, bounds Bounds) (Solution, error) {
	n := len(data)
	if guess.Len() == 0 {
		return Solution{}, ErrEmptyGuess
	}
	if len(vel) != n || len(u2) != n || len(fitmask) != n {
		return Solution{}, fmt.Errorf("%w: velocity %d, data %d, u2 %d, mask %d",
			ErrLength, len(vel), n, len(u2), len(fitmask))
	}
	if n < 3 {
		return Solution{}, fmt.Errorf("%w: %d channels", ErrLength, n)
	}
	w, err := weights(errs, n)
	if err != nil {
		return Solution{}, err
	}

	dv := math.Abs(vel[1] - vel[0])
	inv := 1 / (dv * dv)

	// Weights carry the masks so the residual is a pair of block products.
	inner := make([]float64, n-2)
	outer := make([]float64, n)
	negU2 := make([]float64, n-2)
	negY := make([]float64, n)
	for i := 1; i < n-1; i++ {
		if fitmask[i] {
			inner[i-1] = w[i]
		}
		negU2[i-1] = -u2[i]
	}
	for i := range outer {
		if !fitmask[i] {
			outer[i] = w[i] / intermediateOutsideWeight
		}
		negY[i] = -data[i]
	}

	model := make([]float64, n)
	d2 := make([]float64, n-2)
	residual := func(dst, v []float64) {
		p := split(v)
		p.ModelTo(model, vel)
		for i := range d2 {
			d2[i] = (model[i+2] - 2*model[i+1] + model[i]) * inv
		}
		vecmath.AddBlockInPlace(d2, negU2)
		vecmath.MulBlock(dst[:n-2], d2, inner)

		vecmath.AddBlockInPlace(model, negY)
		vecmath.MulBlock(dst[n-2:], model, outer)
	}
	return solve(ctx, residual, 2*n-2, guess, bounds)
}

func solve(ctx context.Context, residual lm.Func, m int, guess gauss.Params, bounds Bounds) (Solution, error) {
	n := guess.Len()
	lower, upper, err := bounds.Vectors(n)
	if err != nil {
		return Solution{}, err
	}

	res, err := lm.Solve(ctx, lm.Problem{
		Func:  residual,
		M:     m,
		Init:  guess.Vector(),
		Lower: lower,
		Upper: upper,
	}, lm.Settings{})
	if err != nil {
		return Solution{}, fmt.Errorf("fit: %w", err)
	}

	return Solution{
		Params:  split(res.X),
		Errors:  split(res.Stderr),
		Success: res.Success,
		Status:  res.Status,
		Chi2:    res.Chi2,
		NEval:   res.NEval,
	}, nil
}

// split views a parameter vector of length 3N as Params without copying.
func split(v []float64) gauss.Params {
	n := len(v) / 3
	return gauss.Params{Amps: v[:n], FWHMs: v[n : 2*n], Means: v[2*n : 3*n]}
}
