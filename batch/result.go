package batch

import (
	"math"

	"github.com/cwbudde/algo-gauss/agd"
	"github.com/cwbudde/algo-gauss/agd/improve"
	"github.com/cwbudde/algo-gauss/gauss"
)

// Result holds one column per output field. Every column has one entry per
// input spectrum; entries of failed spectra are nil, except IndexFit, which
// holds the spectrum's own index on success and the batch position on
// failure. The JSON layout lives in the dataset package.
type Result struct {
	IndexFit []int

	AmplitudesFit [][]float64
	FWHMsFit      [][]float64
	MeansFit      [][]float64

	NComponentsInitial []*int
	AmplitudesInitial  [][]float64
	FWHMsInitial       [][]float64
	MeansInitial       [][]float64

	AmplitudesFitErr [][]float64
	FWHMsFitErr      [][]float64
	MeansFitErr      [][]float64

	BestFitRChi2 []*float64
	BestFitAICc  []*float64

	NComponents []*int
	NNegResPeak []*int
	NBlended    []*int
	LogGplus    [][]int
	PValue      []*float64
	Quality     []*improve.QualityControl

	// Failures lists the spectra with null rows in input order.
	Failures []Failure
}

// Failure describes why a spectrum has no result.
type Failure struct {
	// Position is the index into the batch input, Index the spectrum's own
	// index.
	Position int
	Index    int
	Err      error
}

func newResult(n int) *Result {
	return &Result{
		IndexFit:           make([]int, n),
		AmplitudesFit:      make([][]float64, n),
		FWHMsFit:           make([][]float64, n),
		MeansFit:           make([][]float64, n),
		NComponentsInitial: make([]*int, n),
		AmplitudesInitial:  make([][]float64, n),
		FWHMsInitial:       make([][]float64, n),
		MeansInitial:       make([][]float64, n),
		AmplitudesFitErr:   make([][]float64, n),
		FWHMsFitErr:        make([][]float64, n),
		MeansFitErr:        make([][]float64, n),
		BestFitRChi2:       make([]*float64, n),
		BestFitAICc:        make([]*float64, n),
		NComponents:        make([]*int, n),
		NNegResPeak:        make([]*int, n),
		NBlended:           make([]*int, n),
		LogGplus:           make([][]int, n),
		PValue:             make([]*float64, n),
		Quality:            make([]*improve.QualityControl, n),
	}
}

// Len returns the number of rows.
func (r *Result) Len() int { return len(r.IndexFit) }

// Failed reports whether row i is a failure.
func (r *Result) Failed(i int) bool { return r.NComponents[i] == nil }

// set fills row i from a decomposition.
func (r *Result) set(i int, res agd.Result) {
	r.IndexFit[i] = res.Index
	r.NComponentsInitial[i] = ptr(res.Initial.Len())
	r.AmplitudesInitial[i], r.FWHMsInitial[i], r.MeansInitial[i] = columns(res.Initial)
	r.NComponents[i] = ptr(res.NComponents())

	switch o := res.Outcome.(type) {
	case agd.Fitted:
		r.setFit(i, o.Params, o.Errors)
		r.BestFitRChi2[i] = finite(o.RChi2)
	case agd.Improved:
		r.setFit(i, o.Params, o.Errors)
		r.setReport(i, &o.Report)
	case agd.NoComponents:
		if o.Report != nil {
			r.setFit(i, gauss.Params{}, gauss.Params{})
			r.setReport(i, o.Report)
		}
	}
}

func (r *Result) setFit(i int, p, errs gauss.Params) {
	r.AmplitudesFit[i], r.FWHMsFit[i], r.MeansFit[i] = columns(p)
	r.AmplitudesFitErr[i], r.FWHMsFitErr[i], r.MeansFitErr[i] = columns(errs)
}

func (r *Result) setReport(i int, rep *improve.Report) {
	r.BestFitRChi2[i] = finite(rep.RChi2)
	r.BestFitAICc[i] = finite(rep.AICc)
	r.PValue[i] = finite(rep.PValue)
	r.NNegResPeak[i] = ptr(rep.NNegResPeak)
	r.NBlended[i] = ptr(rep.NBlended)
	r.LogGplus[i] = append([]int{}, rep.Log...)
	qc := rep.Quality
	r.Quality[i] = &qc
}

// fail leaves row i null.
func (r *Result) fail(i int) { r.IndexFit[i] = i }

// columns copies the sub-vectors; empty params give empty, non-nil slices.
func columns(p gauss.Params) (amps, fwhms, means []float64) {
	return append([]float64{}, p.Amps...),
		append([]float64{}, p.FWHMs...),
		append([]float64{}, p.Means...)
}

func ptr[T any](v T) *T { return &v }

// finite maps NaN and infinities to nil.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
