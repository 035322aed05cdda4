package agd

import (
	"github.com/cwbudde/algo-gauss/agd/improve"
	"github.com/cwbudde/algo-gauss/gauss"
)

// Outcome is the result of a decomposition. It is implemented by
// NoComponents, GuessOnly, Fitted and Improved only.
type Outcome interface {
	outcome()
}

// NoComponents means no component survived guessing or improvement.
type NoComponents struct {
	// Report is set when the improvement loop ran.
	Report *improve.Report
}

// GuessOnly means the final fit was disabled; Result.Initial holds the
// guesses.
type GuessOnly struct{}

// Fitted is a final fit without improvement.
type Fitted struct {
	Params gauss.Params
	// Errors are the 1-sigma uncertainties, NaN when the covariance was
	// unavailable.
	Errors gauss.Params
	RChi2  float64
}

// Improved is a fit that went through the improvement loop.
type Improved struct {
	Params, Errors gauss.Params
	Report         improve.Report
}

func (NoComponents) outcome() {}
func (GuessOnly) outcome()    {}
func (Fitted) outcome()       {}
func (Improved) outcome()     {}

// Result is the decomposition of one spectrum.
type Result struct {
	Index int
	// Initial holds the combined guesses in fit order.
	Initial gauss.Params
	Outcome Outcome
	// Diagnostics is set when Settings.Plot is.
	Diagnostics *Diagnostics
}

// NComponents returns the number of components of the outcome: the fitted
// count, or the guess count for GuessOnly.
func (r Result) NComponents() int {
	switch o := r.Outcome.(type) {
	case Fitted:
		return o.Params.Len()
	case Improved:
		return o.Params.Len()
	case GuessOnly:
		return r.Initial.Len()
	default:
		return 0
	}
}

// BestFit returns the fitted parameters and errors, if any.
func (r Result) BestFit() (params, errs gauss.Params, ok bool) {
	switch o := r.Outcome.(type) {
	case Fitted:
		return o.Params, o.Errors, true
	case Improved:
		return o.Params, o.Errors, true
	default:
		return gauss.Params{}, gauss.Params{}, false
	}
}

// Report returns the improvement report, if the loop ran.
func (r Result) Report() (*improve.Report, bool) {
	switch o := r.Outcome.(type) {
	case Improved:
		return &o.Report, true
	case NoComponents:
		return o.Report, o.Report != nil
	default:
		return nil, false
	}
}
