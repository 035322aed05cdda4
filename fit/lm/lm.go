package lm

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Errors returned by Solve.
var (
	ErrNoParams     = errors.New("lm: no parameters")
	ErrNoResiduals  = errors.New("lm: residual count must be positive")
	ErrBoundsLength = errors.New("lm: bounds length differs from parameter count")
	ErrBoundsOrder  = errors.New("lm: lower bound exceeds upper bound")
)

// Func evaluates the residual vector at x into dst.
type Func func(dst, x []float64)

// Problem describes a least-squares problem.
type Problem struct {
	// Func evaluates M residuals.
	Func Func
	// M is the number of residuals.
	M int
	// Init is the starting point. It is clipped into the bounds.
	Init []float64
	// Lower and Upper are optional per-parameter bounds. Nil or infinite
	// entries leave that side unbounded.
	Lower, Upper []float64
}

// Settings controls convergence. Zero fields take the defaults.
type Settings struct {
	// FTol is the relative reduction of chi-square below which the fit has
	// converged. Default 1.5e-8.
	FTol float64
	// XTol is the relative step size below which the fit has converged.
	// Default 1.5e-8.
	XTol float64
	// GTol is the cosine between residual vector and Jacobian columns below
	// which the fit has converged. Default 0 disables the test.
	GTol float64
	// MaxEval caps residual evaluations. Default 2000*(n+1).
	MaxEval int
	// Epsfcn is the relative forward-difference step squared. Default is
	// the machine epsilon.
	Epsfcn float64
}

// DefaultSettings returns the default convergence settings.
func DefaultSettings() Settings {
	return Settings{FTol: 1.5e-8, XTol: 1.5e-8}
}

func (s Settings) withDefaults(n int) Settings {
	d := DefaultSettings()
	if s.FTol <= 0 {
		s.FTol = d.FTol
	}
	if s.XTol <= 0 {
		s.XTol = d.XTol
	}
	if s.MaxEval <= 0 {
		s.MaxEval = 2000 * (n + 1)
	}
	if s.Epsfcn <= 0 {
		s.Epsfcn = machEps
	}
	return s
}

// Status tells why Solve stopped.
type Status int

const (
	// StatusFTol: relative chi-square reduction below FTol.
	StatusFTol Status = iota + 1
	// StatusXTol: relative step below XTol.
	StatusXTol
	// StatusGTol: gradient orthogonality below GTol.
	StatusGTol
	// StatusStalled: no damping produced a downhill step.
	StatusStalled
	// StatusMaxEval: evaluation budget exhausted.
	StatusMaxEval
	// StatusNonFinite: the residual at the starting point is not finite.
	StatusNonFinite
)

func (s Status) String() string {
	switch s {
	case StatusFTol:
		return "ftol"
	case StatusXTol:
		return "xtol"
	case StatusGTol:
		return "gtol"
	case StatusStalled:
		return "stalled"
	case StatusMaxEval:
		return "max-eval"
	case StatusNonFinite:
		return "non-finite"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the outcome of Solve.
type Result struct {
	// X is the best parameter vector found.
	X []float64
	// Stderr holds the standard errors of X, NaN when the covariance is
	// singular or the fit has no degrees of freedom.
	Stderr []float64
	// Cov is the scaled external covariance, nil when unavailable.
	Cov *mat.SymDense
	// Residual holds the residuals at X.
	Residual []float64
	// Chi2 is the sum of squared residuals at X.
	Chi2 float64
	// RedChi2 is Chi2/(M-n), NaN without degrees of freedom.
	RedChi2 float64
	NEval   int
	Status  Status
	// Success is true when a convergence criterion was met.
	Success bool
}

const (
	lambdaInit = 1e-3
	lambdaUp   = 10
	lambdaDown = 10
	lambdaMax  = 1e16
)

var machEps = math.Nextafter(1, 2) - 1

// solver holds the scratch state of one Solve call.
type solver struct {
	ctx    context.Context
	prob   Problem
	set    Settings
	bounds []bound
	n, m   int
	neval  int

	x []float64 // external scratch
	r []float64 // residual scratch
}

// Solve minimizes the sum of squared residuals of prob.
//
// Context cancellation aborts with ctx.Err(). Exhausting the evaluation
// budget or starting at a non-finite residual is not an error: the result
// reports Success false.
func Solve(ctx context.Context, prob Problem, set Settings) (Result, error) {
	n := len(prob.Init)
	if n == 0 {
		return Result{}, ErrNoParams
	}
	if prob.M <= 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrNoResiduals, prob.M)
	}
	bounds, err := makeBounds(n, prob.Lower, prob.Upper)
	if err != nil {
		return Result{}, err
	}

	s := &solver{
		ctx:    ctx,
		prob:   prob,
		set:    set.withDefaults(n),
		bounds: bounds,
		n:      n,
		m:      prob.M,
		x:      make([]float64, n),
		r:      make([]float64, prob.M),
	}
	return s.run()
}

func makeBounds(n int, lower, upper []float64) ([]bound, error) {
	if lower != nil && len(lower) != n {
		return nil, fmt.Errorf("%w: lower %d, params %d", ErrBoundsLength, len(lower), n)
	}
	if upper != nil && len(upper) != n {
		return nil, fmt.Errorf("%w: upper %d, params %d", ErrBoundsLength, len(upper), n)
	}
	out := make([]bound, n)
	for i := range out {
		out[i] = bound{lo: math.Inf(-1), hi: math.Inf(1)}
		if lower != nil {
			out[i].lo = lower[i]
		}
		if upper != nil {
			out[i].hi = upper[i]
		}
		if out[i].hasLo() && out[i].hasHi() && out[i].lo > out[i].hi {
			return nil, fmt.Errorf("%w: parameter %d [%v, %v]", ErrBoundsOrder, i, out[i].lo, out[i].hi)
		}
	}
	return out, nil
}

// eval computes the residual at internal p into dst and returns chi-square.
func (s *solver) eval(dst, p []float64) float64 {
	for i, b := range s.bounds {
		s.x[i] = b.external(p[i])
	}
	s.prob.Func(dst, s.x)
	s.neval++
	return floats.Dot(dst, dst)
}

func (s *solver) external(p []float64) []float64 {
	out := make([]float64, s.n)
	for i, b := range s.bounds {
		out[i] = b.external(p[i])
	}
	return out
}

// jacobian fills jac (m x n) with forward differences around p, where r
// holds the residual at p.
func (s *solver) jacobian(jac *mat.Dense, p, r []float64) {
	step := math.Sqrt(s.set.Epsfcn)
	pp := append([]float64(nil), p...)
	col := make([]float64, s.m)
	for j := 0; j < s.n; j++ {
		h := step * math.Abs(p[j])
		if h == 0 {
			h = step
		}
		pp[j] = p[j] + h
		s.eval(col, pp)
		pp[j] = p[j]
		for i := range col {
			jac.Set(i, j, (col[i]-r[i])/h)
		}
	}
}

func (s *solver) run() (Result, error) {
	n, m := s.n, s.m

	p := make([]float64, n)
	for i, b := range s.bounds {
		p[i] = b.internal(s.prob.Init[i])
	}
	r := make([]float64, m)
	chi2 := s.eval(r, p)
	if !finite(chi2) {
		return s.result(p, r, chi2, StatusNonFinite, false), nil
	}
	if chi2 == 0 {
		return s.result(p, r, chi2, StatusFTol, true), nil
	}

	var (
		jac    = mat.NewDense(m, n, nil)
		jtj    = mat.NewSymDense(n, nil)
		damped = mat.NewSymDense(n, nil)
		grad   = mat.NewVecDense(n, nil)
		delta  = mat.NewVecDense(n, nil)
		trialP = make([]float64, n)
		trialR = make([]float64, m)
		lambda = lambdaInit
	)

	for {
		if err := s.ctx.Err(); err != nil {
			return Result{}, err
		}
		if s.neval+n > s.set.MaxEval {
			return s.result(p, r, chi2, StatusMaxEval, false), nil
		}

		s.jacobian(jac, p, r)
		jtj.SymOuterK(1, jac.T())
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))

		if s.set.GTol > 0 && gradientCosine(jac, jtj, r, chi2) <= s.set.GTol {
			return s.result(p, r, chi2, StatusGTol, true), nil
		}

		accepted := false
		for !accepted {
			if err := s.ctx.Err(); err != nil {
				return Result{}, err
			}
			if s.neval >= s.set.MaxEval {
				return s.result(p, r, chi2, StatusMaxEval, false), nil
			}
			if lambda > lambdaMax {
				return s.result(p, r, chi2, StatusStalled, true), nil
			}

			damped.CopySym(jtj)
			for j := 0; j < n; j++ {
				d := jtj.At(j, j)
				if d <= 0 {
					d = 1
				}
				damped.SetSym(j, j, jtj.At(j, j)+lambda*d)
			}
			var chol mat.Cholesky
			if !chol.Factorize(damped) {
				lambda *= lambdaUp
				continue
			}
			if err := chol.SolveVecTo(delta, grad); err != nil {
				lambda *= lambdaUp
				continue
			}

			for j := range trialP {
				trialP[j] = p[j] - delta.AtVec(j)
			}
			trialChi2 := s.eval(trialR, trialP)
			if !finite(trialChi2) || trialChi2 >= chi2 {
				lambda *= lambdaUp
				continue
			}
			accepted = true

			reduction := (chi2 - trialChi2) / chi2
			stepNorm := floats.Norm(delta.RawVector().Data, 2)
			pNorm := floats.Norm(p, 2)

			copy(p, trialP)
			copy(r, trialR)
			chi2 = trialChi2
			lambda = math.Max(lambda/lambdaDown, 1e-12)

			switch {
			case chi2 == 0 || reduction <= s.set.FTol:
				return s.result(p, r, chi2, StatusFTol, true), nil
			case stepNorm <= s.set.XTol*(pNorm+s.set.XTol):
				return s.result(p, r, chi2, StatusXTol, true), nil
			}
		}
	}
}

// gradientCosine returns the largest |cos| between the residual vector and a
// Jacobian column.
func gradientCosine(jac *mat.Dense, jtj *mat.SymDense, r []float64, chi2 float64) float64 {
	if chi2 == 0 {
		return 0
	}
	_, n := jac.Dims()
	rn := math.Sqrt(chi2)
	worst := 0.0
	for j := 0; j < n; j++ {
		cn := math.Sqrt(jtj.At(j, j))
		if cn == 0 {
			continue
		}
		c := math.Abs(floats.Dot(mat.Col(nil, j, jac), r)) / (cn * rn)
		worst = math.Max(worst, c)
	}
	return worst
}

// result packages the state at p, estimating the covariance when the fit
// has degrees of freedom.
func (s *solver) result(p, r []float64, chi2 float64, status Status, success bool) Result {
	res := Result{
		X:        s.external(p),
		Residual: append([]float64(nil), r...),
		Chi2:     chi2,
		RedChi2:  math.NaN(),
		Status:   status,
		Success:  success,
		Stderr:   nanSlice(s.n),
	}
	dof := s.m - s.n
	if dof > 0 {
		res.RedChi2 = chi2 / float64(dof)
	}
	if success && dof > 0 && finite(chi2) {
		res.Cov = s.covariance(p, r, res.RedChi2)
		if res.Cov != nil {
			for i := range res.Stderr {
				res.Stderr[i] = math.Sqrt(res.Cov.At(i, i))
			}
		}
	}
	res.NEval = s.neval
	return res
}

// covariance returns redchi * D inv(J^T J) D in external coordinates, with
// D = diag(dx/dp), or nil if J^T J is singular.
func (s *solver) covariance(p, r []float64, redchi float64) *mat.SymDense {
	jac := mat.NewDense(s.m, s.n, nil)
	s.jacobian(jac, p, r)
	jtj := mat.NewSymDense(s.n, nil)
	jtj.SymOuterK(1, jac.T())

	var chol mat.Cholesky
	if !chol.Factorize(jtj) {
		return nil
	}
	inv := mat.NewSymDense(s.n, nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil
	}

	cov := mat.NewSymDense(s.n, nil)
	for i := 0; i < s.n; i++ {
		di := s.bounds[i].scale(p[i])
		for j := i; j < s.n; j++ {
			dj := s.bounds[j].scale(p[j])
			v := inv.At(i, j) * di * dj * redchi
			if !finite(v) {
				return nil
			}
			cov.SetSym(i, j, v)
		}
	}
	return cov
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
