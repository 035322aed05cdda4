package agd

import (
	"context"
	"log/slog"
	"math"

	"github.com/cwbudde/algo-gauss/agd/guess"
	"github.com/cwbudde/algo-gauss/agd/improve"
	"github.com/cwbudde/algo-gauss/fit"
	"github.com/cwbudde/algo-gauss/gauss"
)

// Option configures a single Decompose call.
type Option func(*runConfig)

type runConfig struct {
	log *slog.Logger
}

// WithLogger routes debug output of the decomposition to log.
func WithLogger(log *slog.Logger) Option {
	return func(c *runConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// PhaseDiagnostics describes one guessing phase.
type PhaseDiagnostics struct {
	Params  gauss.Params
	U2      []float64
	Thresh  float64
	Thresh2 float64
}

// Diagnostics holds the intermediate series of a decomposition.
type Diagnostics struct {
	Phase1 *PhaseDiagnostics
	Phase2 *PhaseDiagnostics

	// Intermediate is the second-derivative fit of phase two.
	Intermediate   gauss.Params
	IntermediateOK bool
	// Residual is the median-filtered series searched by phase two.
	Residual []float64

	// Model is the final model; RChi2 its reduced chi-square over all
	// channels.
	Model []float64
	RChi2 float64
}

func phaseDiagnostics(g *guess.Guess) *PhaseDiagnostics {
	if g == nil {
		return nil
	}
	return &PhaseDiagnostics{Params: g.Params, U2: g.U2, Thresh: g.Thresh, Thresh2: g.Thresh2}
}

// Decompose decomposes one spectrum.
//
// Errors are returned for invalid settings or spectra, non-finite data,
// cancellation and the improvement loop's own rejections. A final fit
// that does not converge is still reported as Fitted, with NaN errors.
func Decompose(ctx context.Context, sp Spectrum, set Settings, opts ...Option) (Result, error) {
	cfg := runConfig{log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	log := cfg.log.With(slog.Int("index", sp.Index))

	if err := set.Validate(); err != nil {
		return Result{}, err
	}
	if err := sp.Validate(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	errs := sp.channelErrors()
	var bounds fit.Bounds
	if set.ImproveFitting {
		bounds.MaxAmp = set.Improve.MaxAmpFactor * maxOf(sp.Intensity)
	}

	phaseBounds := bounds
	if set.ImproveFitting && set.Improve.MaxFWHM > 0 && !math.IsInf(set.Improve.MaxFWHM, 1) {
		phaseBounds.MaxFWHM = set.Improve.MaxFWHM * channelWidth(sp.Velocity)
	}
	pr, err := guessTwoPhase(ctx, sp, errs, set, phaseBounds, log)
	if err != nil {
		return Result{}, err
	}
	initial := pr.combined.SortByAmplitude()
	log.Debug("guessing finished", slog.Int("components", initial.Len()))

	res := Result{Index: sp.Index, Initial: initial}
	if set.Plot {
		res.Diagnostics = &Diagnostics{
			Phase1:         phaseDiagnostics(pr.phase1),
			Phase2:         phaseDiagnostics(pr.phase2),
			Intermediate:   pr.intermediate,
			IntermediateOK: pr.intermediateOK,
			Residual:       pr.residual,
		}
	}

	if !set.PerformFinalFit {
		res.Outcome = GuessOnly{}
		return res, nil
	}
	if initial.Len() == 0 && !set.ImproveFitting {
		res.Outcome = NoComponents{}
		return res, nil
	}

	params := initial
	fitErrs := gauss.Params{}
	if initial.Len() > 0 {
		sol, err := fit.Data(ctx, sp.Velocity, sp.Intensity, errs, initial, bounds, nil)
		if err != nil {
			return Result{}, err
		}
		if !sol.Success {
			log.Debug("final fit did not converge", slog.String("status", sol.Status.String()))
		}
		params, fitErrs = sol.Params, sol.Errors
	}

	if !set.ImproveFitting {
		res.Outcome = Fitted{Params: params, Errors: fitErrs, RChi2: reducedChi2(sp, errs, params)}
		res.fillDiagnostics(sp, errs, params)
		return res, nil
	}

	rep, err := improve.Improve(ctx, improve.Input{
		Vel:              sp.Velocity,
		Data:             sp.Intensity,
		Errors:           errs,
		Params:           params,
		SignalRanges:     sp.SignalRanges,
		NoiseSpikeRanges: sp.NoiseSpikeRanges,
		Alpha:            set.Alpha1,
		SNR2Thresh:       set.SNR2Thresh,
	}, set.Improve, log)
	if err != nil {
		return Result{}, err
	}
	if rep.N() == 0 {
		res.Outcome = NoComponents{Report: &rep}
	} else {
		res.Outcome = Improved{Params: rep.Params, Errors: rep.Errors, Report: rep}
	}
	res.fillDiagnostics(sp, errs, rep.Params)
	return res, nil
}

func (r *Result) fillDiagnostics(sp Spectrum, errs []float64, p gauss.Params) {
	if r.Diagnostics == nil {
		return
	}
	r.Diagnostics.Model = p.Model(sp.Velocity)
	r.Diagnostics.RChi2 = reducedChi2(sp, errs, p)
}

// reducedChi2 is computed over all channels with 3N free parameters.
func reducedChi2(sp Spectrum, errs []float64, p gauss.Params) float64 {
	model := p.Model(sp.Velocity)
	chi2 := 0.0
	for i, m := range model {
		d := (sp.Intensity[i] - m) / errs[i]
		chi2 += d * d
	}
	dof := max(len(model)-3*p.Len(), 1)
	return chi2 / float64(dof)
}

func maxOf(x []float64) float64 {
	m := math.Inf(-1)
	for _, v := range x {
		m = math.Max(m, v)
	}
	return m
}

func channelWidth(vel []float64) float64 {
	return math.Abs(vel[1] - vel[0])
}
