// Package dataset reads spectra and writes decomposition results as JSON.
//
// Input files share one velocity axis between spectra:
//
//	{
//	  "x_values": [...],
//	  "data_list": [[...], ...],
//	  "error_spectrum": [[...], ...],
//	  "index": [...],
//	  "signal_ranges": [[[lo, hi], ...], ...],
//	  "noise_spike_ranges": [[[lo, hi], ...], ...]
//	}
//
// Training files add the true components per spectrum under "amplitudes",
// "fwhms" and "means". Non-finite values are written as null and null is
// read back as NaN.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/cwbudde/algo-gauss/agd"
	"github.com/cwbudde/algo-gauss/agd/improve"
	"github.com/cwbudde/algo-gauss/agd/train"
	"github.com/cwbudde/algo-gauss/batch"
	"github.com/cwbudde/algo-gauss/gauss"
)

// ErrFormat reports a structurally invalid file.
var ErrFormat = errors.New("dataset: invalid format")

// Float is a float64 that encodes non-finite values as null.
type Float float64

// MarshalJSON writes null for NaN and infinities.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON reads null as NaN.
func (f *Float) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

type file struct {
	XValues          []Float              `json:"x_values"`
	DataList         [][]Float            `json:"data_list"`
	ErrorSpectrum    [][]Float            `json:"error_spectrum"`
	Index            []int                `json:"index,omitempty"`
	SignalRanges     [][]improve.Interval `json:"signal_ranges,omitempty"`
	NoiseSpikeRanges [][]improve.Interval `json:"noise_spike_ranges,omitempty"`

	Amplitudes [][]Float `json:"amplitudes,omitempty"`
	FWHMs      [][]Float `json:"fwhms,omitempty"`
	Means      [][]Float `json:"means,omitempty"`
}

// ReadSpectra decodes a spectra file.
func ReadSpectra(r io.Reader) ([]agd.Spectrum, error) {
	f, err := decode(r)
	if err != nil {
		return nil, err
	}
	return f.spectra()
}

// ReadExamples decodes a training file.
func ReadExamples(r io.Reader) ([]train.Example, error) {
	f, err := decode(r)
	if err != nil {
		return nil, err
	}
	spectra, err := f.spectra()
	if err != nil {
		return nil, err
	}
	n := len(spectra)
	if len(f.Amplitudes) != n || len(f.FWHMs) != n || len(f.Means) != n {
		return nil, fmt.Errorf("%w: truth for %d/%d/%d of %d spectra",
			ErrFormat, len(f.Amplitudes), len(f.FWHMs), len(f.Means), n)
	}
	out := make([]train.Example, n)
	for i, sp := range spectra {
		truth, err := gauss.New(floats(f.Amplitudes[i]), floats(f.FWHMs[i]), floats(f.Means[i]))
		if err != nil {
			return nil, fmt.Errorf("%w: spectrum %d: %w", ErrFormat, i, err)
		}
		out[i] = train.Example{Spectrum: sp, Truth: truth}
	}
	return out, nil
}

func decode(r io.Reader) (*file, error) {
	var f file
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return &f, nil
}

func (f *file) spectra() ([]agd.Spectrum, error) {
	n := len(f.DataList)
	if len(f.ErrorSpectrum) != n {
		return nil, fmt.Errorf("%w: %d error spectra for %d spectra", ErrFormat, len(f.ErrorSpectrum), n)
	}
	for name, l := range map[string]int{
		"index":              len(f.Index),
		"signal_ranges":      len(f.SignalRanges),
		"noise_spike_ranges": len(f.NoiseSpikeRanges),
	} {
		if l != 0 && l != n {
			return nil, fmt.Errorf("%w: %s has %d entries for %d spectra", ErrFormat, name, l, n)
		}
	}

	vel := floats(f.XValues)
	out := make([]agd.Spectrum, n)
	for i := range out {
		sp := agd.Spectrum{
			Index:     i,
			Velocity:  vel,
			Intensity: floats(f.DataList[i]),
			Error:     floats(f.ErrorSpectrum[i]),
		}
		if len(f.Index) > 0 {
			sp.Index = f.Index[i]
		}
		if len(f.SignalRanges) > 0 {
			sp.SignalRanges = f.SignalRanges[i]
		}
		if len(f.NoiseSpikeRanges) > 0 {
			sp.NoiseSpikeRanges = f.NoiseSpikeRanges[i]
		}
		out[i] = sp
	}
	return out, nil
}

// WriteSpectra encodes spectra sharing the velocity axis of the first.
func WriteSpectra(w io.Writer, spectra []agd.Spectrum) error {
	var f file
	for i, sp := range spectra {
		if i == 0 {
			f.XValues = wrap(sp.Velocity)
		}
		f.DataList = append(f.DataList, wrap(sp.Intensity))
		f.ErrorSpectrum = append(f.ErrorSpectrum, wrap(sp.Error))
		f.Index = append(f.Index, sp.Index)
	}
	return encode(w, f)
}

type result struct {
	IndexFit []int `json:"index_fit"`

	AmplitudesFit [][]Float `json:"amplitudes_fit"`
	FWHMsFit      [][]Float `json:"fwhms_fit"`
	MeansFit      [][]Float `json:"means_fit"`

	NComponentsInitial []*int    `json:"N_components_initial"`
	AmplitudesInitial  [][]Float `json:"amplitudes_initial"`
	FWHMsInitial       [][]Float `json:"fwhms_initial"`
	MeansInitial       [][]Float `json:"means_initial"`

	AmplitudesFitErr [][]Float `json:"amplitudes_fit_err"`
	FWHMsFitErr      [][]Float `json:"fwhms_fit_err"`
	MeansFitErr      [][]Float `json:"means_fit_err"`

	BestFitRChi2 []*float64 `json:"best_fit_rchi2"`
	BestFitAICc  []*float64 `json:"best_fit_aicc"`

	NComponents []*int                    `json:"N_components"`
	NNegResPeak []*int                    `json:"N_neg_res_peak"`
	NBlended    []*int                    `json:"N_blended"`
	LogGplus    [][]int                   `json:"log_gplus"`
	PValue      []*float64                `json:"pvalue"`
	Quality     []*improve.QualityControl `json:"quality_control"`
}

// WriteResult encodes a batch result with the batch key set.
func WriteResult(w io.Writer, res *batch.Result) error {
	return encode(w, result{
		IndexFit:           res.IndexFit,
		AmplitudesFit:      wrapRows(res.AmplitudesFit),
		FWHMsFit:           wrapRows(res.FWHMsFit),
		MeansFit:           wrapRows(res.MeansFit),
		NComponentsInitial: res.NComponentsInitial,
		AmplitudesInitial:  wrapRows(res.AmplitudesInitial),
		FWHMsInitial:       wrapRows(res.FWHMsInitial),
		MeansInitial:       wrapRows(res.MeansInitial),
		AmplitudesFitErr:   wrapRows(res.AmplitudesFitErr),
		FWHMsFitErr:        wrapRows(res.FWHMsFitErr),
		MeansFitErr:        wrapRows(res.MeansFitErr),
		BestFitRChi2:       res.BestFitRChi2,
		BestFitAICc:        res.BestFitAICc,
		NComponents:        res.NComponents,
		NNegResPeak:        res.NNegResPeak,
		NBlended:           res.NBlended,
		LogGplus:           res.LogGplus,
		PValue:             res.PValue,
		Quality:            res.Quality,
	})
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("dataset: encode: %w", err)
	}
	return nil
}

func floats(v []Float) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func wrap(v []float64) []Float {
	if v == nil {
		return nil
	}
	out := make([]Float, len(v))
	for i, x := range v {
		out[i] = Float(x)
	}
	return out
}

// wrapRows keeps nil rows nil so they encode as null.
func wrapRows(rows [][]float64) [][]Float {
	out := make([][]Float, len(rows))
	for i, r := range rows {
		out[i] = wrap(r)
	}
	return out
}
