// Package train fits the smoothing scales of a decomposition to examples
// with known components.
//
// Train maximizes the F1 score of the initial guesses against the truth by
// gradient ascent in log(alpha), using central differences and momentum.
package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/algo-gauss/agd"
	"github.com/cwbudde/algo-gauss/gauss"
	"github.com/cwbudde/algo-gauss/stats/sample"
)

// Errors returned by Train.
var (
	ErrNoExamples = errors.New("train: no examples")
	ErrOptions    = errors.New("train: invalid options")
)

// Example is a spectrum with its true components.
type Example struct {
	Spectrum agd.Spectrum
	Truth    gauss.Params
}

// Options configures Train.
type Options struct {
	// Alpha1 and Alpha2 are the starting scales. Alpha2 > 0 trains a
	// two-phase decomposition.
	Alpha1, Alpha2 float64

	SNRThresh, SNR2Thresh float64

	LearningRate float64
	// Eps is the finite difference step in log(alpha).
	Eps      float64
	Momentum float64
	// Training stops when the median absolute change of log(alpha) over
	// the last Window iterations drops below MAD.
	MAD     float64
	Window  int
	MaxIter int

	// Workers bounds concurrent decompositions; 0 uses GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// DefaultOptions returns the usual training parameters for a one-phase
// decomposition starting at alpha1.
func DefaultOptions(alpha1 float64) Options {
	return Options{
		Alpha1:       alpha1,
		SNRThresh:    5,
		SNR2Thresh:   5,
		LearningRate: 0.9,
		Eps:          0.25,
		Momentum:     0.5,
		MAD:          0.1,
		Window:       10,
		MaxIter:      500,
	}
}

func (o Options) validate() error {
	switch {
	case !(o.Alpha1 > 0):
		return fmt.Errorf("%w: alpha1 %v", ErrOptions, o.Alpha1)
	case o.Alpha2 < 0:
		return fmt.Errorf("%w: alpha2 %v", ErrOptions, o.Alpha2)
	case !(o.Eps > 0):
		return fmt.Errorf("%w: eps %v", ErrOptions, o.Eps)
	case !(o.LearningRate > 0):
		return fmt.Errorf("%w: learning rate %v", ErrOptions, o.LearningRate)
	case o.Momentum < 0 || o.Momentum >= 1:
		return fmt.Errorf("%w: momentum %v", ErrOptions, o.Momentum)
	case o.Window < 1 || o.MaxIter < 1:
		return fmt.Errorf("%w: window %d, max iterations %d", ErrOptions, o.Window, o.MaxIter)
	}
	return nil
}

func (o Options) twoPhase() bool { return o.Alpha2 > 0 }

// Step is one point of the training trace.
type Step struct {
	Alpha1 float64 `json:"alpha1"`
	Alpha2 float64 `json:"alpha2,omitempty"`
	F1     float64 `json:"f1"`
}

// Trained is the outcome of Train.
type Trained struct {
	Alpha1     float64 `json:"alpha1"`
	Alpha2     float64 `json:"alpha2,omitempty"`
	F1         float64 `json:"f1"`
	Iterations int     `json:"iterations"`
	Converged  bool    `json:"converged"`
	Trace      []Step  `json:"trace"`
}

// Settings returns decomposition settings using the trained scales.
func (t Trained) Settings(base agd.Settings) agd.Settings {
	base.Alpha1 = t.Alpha1
	if t.Alpha2 > 0 {
		base.Alpha2 = t.Alpha2
		base.Phase = agd.PhaseTwo
	}
	return base
}

// Train runs gradient ascent on the F1 score of examples.
func Train(ctx context.Context, examples []Example, opts Options) (Trained, error) {
	if len(examples) == 0 {
		return Trained{}, ErrNoExamples
	}
	if err := opts.validate(); err != nil {
		return Trained{}, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	dim := 1
	x := []float64{math.Log(opts.Alpha1)}
	if opts.twoPhase() {
		dim = 2
		x = append(x, math.Log(opts.Alpha2))
	}
	velocity := make([]float64, dim)
	history := make([][]float64, 0, opts.MaxIter)
	score := func(at []float64) (float64, error) {
		return Score(ctx, examples, opts.settings(at), opts.Workers)
	}

	var out Trained
	for it := 0; it < opts.MaxIter; it++ {
		grad := make([]float64, dim)
		for d := range dim {
			hi := append([]float64(nil), x...)
			lo := append([]float64(nil), x...)
			hi[d] += opts.Eps
			lo[d] -= opts.Eps
			fhi, err := score(hi)
			if err != nil {
				return Trained{}, err
			}
			flo, err := score(lo)
			if err != nil {
				return Trained{}, err
			}
			grad[d] = (fhi - flo) / (2 * opts.Eps)
		}

		step := make([]float64, dim)
		for d := range dim {
			velocity[d] = opts.Momentum*velocity[d] + opts.LearningRate*grad[d]
			step[d] = velocity[d]
			x[d] += step[d]
		}
		history = append(history, step)

		f, err := score(x)
		if err != nil {
			return Trained{}, err
		}
		s := opts.step(x, f)
		out.Trace = append(out.Trace, s)
		out.Iterations = it + 1
		log.Debug("training step",
			slog.Int("iteration", it),
			slog.Float64("alpha1", s.Alpha1),
			slog.Float64("alpha2", s.Alpha2),
			slog.Float64("f1", f))

		if stalled(history, opts.Window, opts.MAD) {
			out.Converged = true
			break
		}
	}

	last := out.Trace[len(out.Trace)-1]
	out.Alpha1, out.Alpha2, out.F1 = last.Alpha1, last.Alpha2, last.F1
	log.Info("training finished",
		slog.Float64("alpha1", out.Alpha1),
		slog.Float64("alpha2", out.Alpha2),
		slog.Float64("f1", out.F1),
		slog.Int("iterations", out.Iterations),
		slog.Bool("converged", out.Converged))
	return out, nil
}

// stalled reports whether the median absolute step of every coordinate
// over the last window iterations is below mad.
func stalled(history [][]float64, window int, mad float64) bool {
	if len(history) < window {
		return false
	}
	recent := history[len(history)-window:]
	buf := make([]float64, window)
	for d := range recent[0] {
		for i, s := range recent {
			buf[i] = math.Abs(s[d])
		}
		if sample.Median(buf) >= mad {
			return false
		}
	}
	return true
}

func (o Options) settings(x []float64) agd.Settings {
	opts := []agd.SettingsOption{
		agd.WithAlpha1(math.Exp(x[0])),
		agd.WithSNR(o.SNRThresh, o.SNR2Thresh),
		agd.WithoutFinalFit(),
	}
	if len(x) > 1 {
		opts = append(opts, agd.WithTwoPhase(math.Exp(x[1])))
	}
	return agd.ApplySettingsOptions(opts...)
}

func (o Options) step(x []float64, f float64) Step {
	s := Step{Alpha1: math.Exp(x[0]), F1: f}
	if len(x) > 1 {
		s.Alpha2 = math.Exp(x[1])
	}
	return s
}

// Score decomposes every example with set and returns the F1 score of the
// initial guesses over all examples: 2*matched / (guessed + true). With no
// guesses and no truth the score is 1.
func Score(ctx context.Context, examples []Example, set agd.Settings, workers int) (float64, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	type counts struct{ matched, guessed, truth int }
	per := make([]counts, len(examples))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, ex := range examples {
		g.Go(func() error {
			res, err := agd.Decompose(gctx, ex.Spectrum, set)
			if err != nil {
				return fmt.Errorf("train: example %d: %w", i, err)
			}
			per[i] = counts{
				matched: Match(res.Initial, ex.Truth),
				guessed: res.Initial.Len(),
				truth:   ex.Truth.Len(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total counts
	for _, c := range per {
		total.matched += c.matched
		total.guessed += c.guessed
		total.truth += c.truth
	}
	if total.guessed+total.truth == 0 {
		return 1, nil
	}
	return 2 * float64(total.matched) / float64(total.guessed+total.truth), nil
}

// Match counts true components with a matching guess. A guess matches when
// its mean lies within the true FWHM of the true mean and its FWHM is within
// a factor 2 of the true FWHM. Each guess matches at most once; the closest
// mean wins.
func Match(guesses, truth gauss.Params) int {
	used := make([]bool, guesses.Len())
	n := 0
	for t := 0; t < truth.Len(); t++ {
		tc := truth.Component(t)
		best, bestD := -1, math.Inf(1)
		for g := 0; g < guesses.Len(); g++ {
			if used[g] {
				continue
			}
			gc := guesses.Component(g)
			d := math.Abs(gc.Mean - tc.Mean)
			ratio := gc.FWHM / tc.FWHM
			if d < tc.FWHM && ratio >= 0.5 && ratio <= 2 && d < bestD {
				best, bestD = g, d
			}
		}
		if best >= 0 {
			used[best] = true
			n++
		}
	}
	return n
}
