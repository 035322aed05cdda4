// Package improve refines a multi-Gaussian fit until it passes quality
// control.
//
// Improve starts from a set of fitted components and alternates between
// adding peaks found in the residual and structural repairs: components
// under a negative residual dip are split or removed, overly broad
// components are split, blended pairs are merged or thinned, and components
// that fail an F-test are dropped. Every candidate change is refitted and
// kept only if it lowers the corrected Akaike information criterion.
//
// After every refit, components failing a parameter check (mean outside the
// axis, low amplitude, width outside the allowed range, low significance,
// mean outside the signal ranges) are removed. The codes of removed
// components are reported in QualityControl.Removed.
package improve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/algo-gauss/agd/guess"
	"github.com/cwbudde/algo-gauss/dsp/interp"
	"github.com/cwbudde/algo-gauss/fit"
	"github.com/cwbudde/algo-gauss/gauss"
)

// Errors returned by Improve.
var (
	ErrInput             = errors.New("improve: invalid input")
	ErrTooManyComponents = errors.New("improve: component budget exceeded")
	ErrQualityRejected   = errors.New("improve: fit did not pass quality control")
)

// residualPeakGain is the AICc decrease required to accept residual peaks.
const residualPeakGain = 0.1

// Check names a quality check in QualityControl.Fired.
type Check string

const (
	CheckParams           Check = "params"
	CheckResidualPeak     Check = "residual_peak"
	CheckNegativeResidual Check = "neg_res_peak"
	CheckBroad            Check = "broad"
	CheckBlended          Check = "blended"
	CheckSignificance     Check = "significance"
)

// QualityControl records what the loop did.
type QualityControl struct {
	// Removed holds one removal code per component dropped by a
	// parameter check.
	Removed []int `json:"removed"`
	// Iterations counts structural loop passes.
	Iterations int `json:"iterations"`
	// Fired counts accepted changes per check.
	Fired map[Check]int `json:"fired"`
	// Converged is true when the final fit meets the chi-square and
	// p-value criteria, or the loop ended without components. A solver
	// failure on the incoming components is not converged.
	Converged bool   `json:"converged"`
	Reason    string `json:"reason"`
}

// Input is one spectrum together with the fit to improve.
type Input struct {
	Vel, Data []float64
	// Errors holds per-channel errors or a single broadcast value.
	Errors []float64
	Params gauss.Params

	SignalRanges, NoiseSpikeRanges []Interval

	// Alpha and SNR2Thresh configure the residual peak search.
	Alpha, SNR2Thresh float64
}

// Report is the outcome of Improve.
type Report struct {
	Params, Errors gauss.Params

	RChi2, AICc float64
	// PValue is the F-test p-value of the weakest component, NaN without
	// components.
	PValue float64

	NNegResPeak, NBlended int
	// Log lists the accepted changes by log code.
	Log     []int
	Quality QualityControl

	// Model and Residual are evaluated on the full axis.
	Model, Residual []float64
	// ParamsMin and ParamsMax are the bounds of the final fit.
	ParamsMin, ParamsMax []float64
	// NewFit is true when the loop changed the incoming components.
	NewFit bool
}

// N returns the final component count.
func (r *Report) N() int { return r.Params.Len() }

// candidate is a fitted parameter set with its statistics.
type candidate struct {
	params, errs    gauss.Params
	model, residual []float64
	rchi2, aicc     float64
	removed         []int
}

type state struct {
	ctx  context.Context
	in   Input
	set  Settings
	log  *slog.Logger
	axis *interp.Axis

	dv, vmin, vmax float64
	rms            float64
	mask           []bool
	nmask          int
	bounds         fit.Bounds

	qc       QualityControl
	changes  []int
	negRes   int
	blends   int
	modified bool
}

// Improve runs the improvement loop on in.
//
// A solver failure on the incoming components yields a report without
// components. ErrTooManyComponents is returned when the fit grows beyond
// MaxNComps, ErrQualityRejected when the loop ends without converging and
// RejectUnconverged is set. The report is returned alongside the rejection.
func Improve(ctx context.Context, in Input, set Settings, log *slog.Logger) (Report, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if err := set.Validate(); err != nil {
		return Report{}, err
	}
	s, err := newState(ctx, in, set, log)
	if err != nil {
		return Report{}, err
	}
	return s.run()
}

func newState(ctx context.Context, in Input, set Settings, log *slog.Logger) (*state, error) {
	n := len(in.Data)
	if len(in.Vel) != n {
		return nil, fmt.Errorf("%w: velocity %d, data %d", ErrInput, len(in.Vel), n)
	}
	if len(in.Errors) != n && len(in.Errors) != 1 {
		return nil, fmt.Errorf("%w: errors %d, data %d", ErrInput, len(in.Errors), n)
	}
	if !(in.Alpha > 0) {
		return nil, fmt.Errorf("%w: alpha %v", ErrInput, in.Alpha)
	}
	axis, err := interp.NewAxis(in.Vel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInput, err)
	}
	rms := in.Errors[0]
	if !(rms > 0) {
		return nil, fmt.Errorf("%w: noise %v", ErrInput, rms)
	}

	maxData := math.Inf(-1)
	for _, v := range in.Data {
		maxData = math.Max(maxData, v)
	}

	mask := SignalMask(n, in.SignalRanges, in.NoiseSpikeRanges)
	s := &state{
		ctx:    ctx,
		in:     in,
		set:    set,
		log:    log,
		axis:   axis,
		dv:     axis.Spacing(),
		vmin:   axis.Min(),
		vmax:   axis.Max(),
		rms:    rms,
		mask:   mask,
		nmask:  countMask(mask),
		bounds: fit.Bounds{MaxAmp: set.MaxAmpFactor * maxData},
		qc:     QualityControl{Fired: map[Check]int{}},
	}
	if s.nmask == 0 {
		return nil, fmt.Errorf("%w: no channels left for statistics", ErrInput)
	}
	return s, nil
}

// empty returns the candidate without components.
func (s *state) empty() candidate {
	model := make([]float64, len(s.in.Data))
	residual := append([]float64(nil), s.in.Data...)
	return candidate{
		model:    model,
		residual: residual,
		rchi2:    ReducedChi2(residual, s.in.Errors, s.mask, 0),
		aicc:     AICc(residual, s.mask, 0),
	}
}

// refit fits p and removes components failing a parameter check until all
// pass. ok is false when the solver failed.
func (s *state) refit(p gauss.Params) (c candidate, ok bool, err error) {
	var removed []int
	for {
		if p.Len() == 0 {
			c = s.empty()
			c.removed = removed
			return c, true, nil
		}
		sol, err := fit.Data(s.ctx, s.in.Vel, s.in.Data, s.in.Errors, p, s.bounds, nil)
		if err != nil {
			return candidate{}, false, err
		}
		if !sol.Success {
			return candidate{}, false, nil
		}
		idx, codes := s.failingComponents(sol.Params)
		if len(idx) == 0 {
			c = s.evaluate(sol.Params, sol.Errors)
			c.removed = removed
			return c, true, nil
		}
		removed = append(removed, codes...)
		p = sol.Params.Remove(idx...)
	}
}

func (s *state) evaluate(p, errs gauss.Params) candidate {
	model := p.Model(s.in.Vel)
	residual := make([]float64, len(model))
	for i := range residual {
		residual[i] = s.in.Data[i] - model[i]
	}
	k := 3 * p.Len()
	return candidate{
		params:   p.Clone(),
		errs:     errs.Clone(),
		model:    model,
		residual: residual,
		rchi2:    ReducedChi2(residual, s.in.Errors, s.mask, k),
		aicc:     AICc(residual, s.mask, k),
	}
}

// accept records a change from cur to next.
func (s *state) accept(next candidate, check Check, code int) candidate {
	s.qc.Removed = append(s.qc.Removed, next.removed...)
	s.qc.Fired[check]++
	if len(next.removed) > 0 {
		s.qc.Fired[CheckParams]++
	}
	if code > 0 {
		s.changes = append(s.changes, code)
	}
	s.modified = true
	s.log.Debug("accepted change",
		slog.String("check", string(check)),
		slog.Int("ncomps", next.params.Len()),
		slog.Float64("rchi2", next.rchi2),
		slog.Float64("aicc", next.aicc))
	return next
}

// best refits every alternative and returns the one with the lowest AICc.
func (s *state) best(alts []gauss.Params) (candidate, bool, error) {
	var (
		out   candidate
		found bool
	)
	for _, p := range alts {
		c, ok, err := s.refit(p)
		if err != nil {
			return candidate{}, false, err
		}
		if ok && (!found || c.aicc < out.aicc) {
			out, found = c, true
		}
	}
	return out, found, nil
}

func (s *state) budgetExceeded(n int) bool {
	return s.set.MaxNComps > 0 && n > s.set.MaxNComps
}

func (s *state) run() (Report, error) {
	cur, ok, err := s.refit(s.in.Params)
	if err != nil {
		return Report{}, err
	}
	if !ok {
		s.log.Debug("solver failed on incoming components")
		c := s.empty()
		s.qc.Reason = "solver failed"
		return s.report(c, math.NaN()), nil
	}
	s.qc.Removed = append(s.qc.Removed, cur.removed...)
	if len(cur.removed) > 0 {
		s.modified = true
		s.qc.Fired[CheckParams]++
	}

	if cur, err = s.residualPeaks(cur); err != nil {
		return Report{}, err
	}
	if s.budgetExceeded(cur.params.Len()) {
		return Report{}, fmt.Errorf("%w: %d > %d", ErrTooManyComponents, cur.params.Len(), s.set.MaxNComps)
	}

	exhausted := false
	for {
		if s.qc.Iterations == s.set.MaxIterations {
			exhausted = true
			break
		}
		s.qc.Iterations++

		var changed bool
		if cur, changed, err = s.structuralPass(cur); err != nil {
			return Report{}, err
		}
		if s.budgetExceeded(cur.params.Len()) {
			return Report{}, fmt.Errorf("%w: %d > %d", ErrTooManyComponents, cur.params.Len(), s.set.MaxNComps)
		}
		if !changed {
			break
		}
		if cur.rchi2 > s.set.RChi2Limit {
			if cur, err = s.residualPeaks(cur); err != nil {
				return Report{}, err
			}
		}
	}

	pvalue, _, err := s.pvalue(cur)
	if err != nil {
		return Report{}, err
	}
	n := cur.params.Len()
	s.qc.Converged = n == 0 || (cur.rchi2 <= s.set.RChi2Limit && pvalue < s.set.MinPValue)
	switch {
	case s.qc.Converged:
		s.qc.Reason = "converged"
	case exhausted:
		s.qc.Reason = "iteration budget exhausted"
	default:
		s.qc.Reason = "stable"
	}
	rep := s.report(cur, pvalue)
	if !s.qc.Converged && s.set.RejectUnconverged {
		return rep, fmt.Errorf("%w: %s (rchi2 %.3g, pvalue %.3g)", ErrQualityRejected, s.qc.Reason, cur.rchi2, pvalue)
	}
	return rep, nil
}

// residualPeaks adds peaks found in the residual while the fit is poor.
func (s *state) residualPeaks(cur candidate) (candidate, error) {
	for iter := 0; iter < s.set.MaxIterations && (cur.params.Len() == 0 || cur.rchi2 > s.set.RChi2Limit); iter++ {
		if err := s.ctx.Err(); err != nil {
			return cur, err
		}
		g, err := guess.InitialGuess(s.in.Vel, cur.residual, guess.Options{
			Alpha:      s.in.Alpha,
			SNRThresh:  s.set.SNR,
			SNR2Thresh: s.in.SNR2Thresh,
			Noise:      s.rms,
			Logger:     s.log,
		})
		if err != nil {
			return cur, err
		}

		var added []gauss.Component
		for _, c := range g.Params.Components() {
			if s.unseen(cur.params, c) {
				added = append(added, c)
			}
		}
		if len(added) == 0 {
			return cur, nil
		}

		next, ok, err := s.refit(cur.params.Append(gauss.FromComponents(added)))
		if err != nil {
			return cur, err
		}
		if !ok || next.params.Len() <= cur.params.Len() && cur.params.Len() > 0 ||
			!(next.aicc < cur.aicc-residualPeakGain) {
			return cur, nil
		}
		cur = s.accept(next, CheckResidualPeak, LogResidualPeak)
		if s.budgetExceeded(cur.params.Len()) {
			return cur, nil
		}
	}
	return cur, nil
}

// unseen reports whether c is not blended with any component of p.
func (s *state) unseen(p gauss.Params, c gauss.Component) bool {
	for i := 0; i < p.Len(); i++ {
		if s.blended(p.Component(i), c) {
			return false
		}
	}
	return true
}

// structuralPass runs each enabled repair once.
func (s *state) structuralPass(cur candidate) (candidate, bool, error) {
	changed := false
	steps := []struct {
		enabled bool
		fn      func(candidate) (candidate, bool, error)
	}{
		{s.set.RefitNegResPeak, s.negativeResidual},
		{s.set.RefitBroad, s.broad},
		{s.set.RefitBlended, s.blendedPair},
		{true, s.significance},
	}
	for _, st := range steps {
		if !st.enabled || cur.params.Len() == 0 {
			continue
		}
		if err := s.ctx.Err(); err != nil {
			return cur, false, err
		}
		next, ok, err := st.fn(cur)
		if err != nil {
			return cur, false, err
		}
		if ok {
			cur, changed = next, true
		}
	}
	return cur, changed, nil
}

// negativeResidual splits or removes the component under the deepest
// negative residual dip.
func (s *state) negativeResidual(cur candidate) (candidate, bool, error) {
	runs := s.negativeRuns(cur.residual)
	for len(runs) > 0 {
		deepest := 0
		for i, r := range runs {
			if cur.residual[r.at] < cur.residual[runs[deepest].at] {
				deepest = i
			}
		}
		run := runs[deepest]
		runs = append(runs[:deepest], runs[deepest+1:]...)

		k, ok := coveringComponent(cur.params, s.in.Vel[run.at])
		if !ok {
			continue
		}
		c := cur.params.Component(k)
		rest := cur.params.Remove(k)

		left, right := max(run.lo-1, 0), min(run.hi, len(s.in.Vel)-1)
		edges := make([]gauss.Component, 0, 2)
		for _, ch := range []int{left, right} {
			amp := s.in.Data[ch]
			if !(amp > 0) {
				amp = c.Amp / 2
			}
			edges = append(edges, gauss.Component{Amp: amp, FWHM: c.FWHM / 2, Mean: s.in.Vel[ch]})
		}

		next, found, err := s.best([]gauss.Params{rest.Append(gauss.FromComponents(edges)), rest})
		if err != nil {
			return cur, false, err
		}
		if found && next.aicc < cur.aicc {
			s.negRes++
			return s.accept(next, CheckNegativeResidual, LogNegativeResidual), true, nil
		}
	}
	return cur, false, nil
}

// broad splits the broadest component when it dominates the others.
func (s *state) broad(cur candidate) (candidate, bool, error) {
	k, ok := s.broadest(cur.params)
	if !ok {
		return cur, false, nil
	}
	halves := split(cur.params.Component(k))
	next, ok, err := s.refit(cur.params.Remove(k).Append(gauss.FromComponents(halves[:])))
	if err != nil || !ok || !(next.aicc < cur.aicc) {
		return cur, false, err
	}
	return s.accept(next, CheckBroad, LogBroad), true, nil
}

// blendedPair merges the closest blended pair or drops its weaker member.
func (s *state) blendedPair(cur candidate) (candidate, bool, error) {
	i, j, ok := s.closestBlendedPair(cur.params)
	if !ok {
		return cur, false, nil
	}
	a, b := cur.params.Component(i), cur.params.Component(j)
	rest := cur.params.Remove(i, j)
	weaker := j
	if a.Area() < b.Area() {
		weaker = i
	}

	next, found, err := s.best([]gauss.Params{
		rest.Append(gauss.FromComponents([]gauss.Component{merge(a, b)})),
		cur.params.Remove(weaker),
	})
	if err != nil || !found || !(next.aicc < cur.aicc) {
		return cur, false, err
	}
	s.blends++
	return s.accept(next, CheckBlended, LogBlended), true, nil
}

// significance drops the weakest component when the F-test finds it
// insignificant and removing it lowers the AICc.
func (s *state) significance(cur candidate) (candidate, bool, error) {
	p, without, err := s.pvalue(cur)
	if err != nil || math.IsNaN(p) || p < s.set.MinPValue || without == nil {
		return cur, false, err
	}
	if !(without.aicc <= cur.aicc) {
		return cur, false, nil
	}
	return s.accept(*without, CheckSignificance, 0), true, nil
}

// pvalue compares cur with the refit obtained by dropping its weakest
// component.
func (s *state) pvalue(cur candidate) (float64, *candidate, error) {
	n := cur.params.Len()
	if n == 0 {
		return math.NaN(), nil, nil
	}
	without, ok, err := s.refit(cur.params.Remove(weakest(cur.params)))
	if err != nil || !ok {
		return math.NaN(), nil, err
	}
	k1 := 3 * n
	k0 := 3 * without.params.Len()
	p := FTest(rss(without.residual, s.mask), rss(cur.residual, s.mask), k0, k1, s.nmask)
	return p, &without, nil
}

func (s *state) report(c candidate, pvalue float64) Report {
	rep := Report{
		Params:      c.params.Clone(),
		Errors:      c.errs.Clone(),
		RChi2:       c.rchi2,
		AICc:        c.aicc,
		PValue:      pvalue,
		NNegResPeak: s.negRes,
		NBlended:    s.blends,
		Log:         append([]int(nil), s.changes...),
		Quality:     s.qc,
		Model:       c.model,
		Residual:    c.residual,
		NewFit:      s.modified,
	}
	if n := c.params.Len(); n > 0 {
		rep.ParamsMin, rep.ParamsMax, _ = s.bounds.Vectors(n)
	}
	return rep
}
