package dataset

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-gauss/agd"
	"github.com/cwbudde/algo-gauss/agd/improve"
	"github.com/cwbudde/algo-gauss/batch"
)

const spectraJSON = `{
  "x_values": [0, 1, 2, 3],
  "data_list": [[0.1, 0.5, null, 0], [1, 2, 3, 4]],
  "error_spectrum": [[0.1], [0.2, 0.2, 0.2, 0.2]],
  "index": [7, 9],
  "signal_ranges": [[[0, 2]], []],
  "noise_spike_ranges": [[], [[1, 3]]]
}`

func TestReadSpectra(t *testing.T) {
	got, err := ReadSpectra(strings.NewReader(spectraJSON))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 7, got[0].Index)
	assert.Equal(t, []float64{0, 1, 2, 3}, got[0].Velocity)
	assert.True(t, math.IsNaN(got[0].Intensity[2]), "null reads as NaN")
	assert.Equal(t, []float64{0.1}, got[0].Error)
	assert.Equal(t, []agd.Interval{{Lo: 0, Hi: 2}}, got[0].SignalRanges)
	assert.Equal(t, []agd.Interval{{Lo: 1, Hi: 3}}, got[1].NoiseSpikeRanges)
	assert.NoError(t, got[1].Validate())
}

func TestReadSpectraErrors(t *testing.T) {
	tests := map[string]string{
		"unknown key":   `{"x_values": [], "data_list": [], "error_spectrum": [], "extra": 1}`,
		"error count":   `{"x_values": [0], "data_list": [[1]], "error_spectrum": []}`,
		"index count":   `{"x_values": [0], "data_list": [[1]], "error_spectrum": [[1]], "index": [1, 2]}`,
		"bad interval":  `{"x_values": [0], "data_list": [[1]], "error_spectrum": [[1]], "signal_ranges": [[["a", 2]]]}`,
		"not an object": `[1, 2]`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadSpectra(strings.NewReader(in))
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestReadExamples(t *testing.T) {
	in := `{
  "x_values": [0, 1, 2],
  "data_list": [[0, 1, 0]],
  "error_spectrum": [[0.1]],
  "amplitudes": [[1]],
  "fwhms": [[2]],
  "means": [[1]]
}`
	got, err := ReadExamples(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Truth.Len())
	assert.InDelta(t, 2, got[0].Truth.FWHMs[0], 0)

	_, err = ReadExamples(strings.NewReader(spectraJSON))
	assert.ErrorIs(t, err, ErrFormat, "truth is required")
}

func TestWriteSpectraRoundTrip(t *testing.T) {
	in, err := ReadSpectra(strings.NewReader(spectraJSON))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteSpectra(&buf, in))
	out, err := ReadSpectra(&buf)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[1].Intensity, out[1].Intensity)
	assert.True(t, math.IsNaN(out[0].Intensity[2]))
}

func TestWriteResult(t *testing.T) {
	one, rchi2 := 1, 1.2
	res := &batch.Result{
		IndexFit:           []int{0, 1},
		AmplitudesFit:      [][]float64{{1}, nil},
		FWHMsFit:           [][]float64{{2}, nil},
		MeansFit:           [][]float64{{3}, nil},
		NComponentsInitial: []*int{&one, nil},
		AmplitudesInitial:  [][]float64{{1}, nil},
		FWHMsInitial:       [][]float64{{2}, nil},
		MeansInitial:       [][]float64{{3}, nil},
		AmplitudesFitErr:   [][]float64{{math.NaN()}, nil},
		FWHMsFitErr:        [][]float64{{0.1}, nil},
		MeansFitErr:        [][]float64{{0.2}, nil},
		BestFitRChi2:       []*float64{&rchi2, nil},
		BestFitAICc:        []*float64{nil, nil},
		NComponents:        []*int{&one, nil},
		NNegResPeak:        []*int{nil, nil},
		NBlended:           []*int{nil, nil},
		LogGplus:           [][]int{{}, nil},
		PValue:             []*float64{nil, nil},
		Quality:            []*improve.QualityControl{{Converged: true, Reason: "converged"}, nil},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteResult(&buf, res))

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	keys := []string{
		"index_fit", "amplitudes_fit", "fwhms_fit", "means_fit",
		"N_components_initial", "amplitudes_initial", "fwhms_initial", "means_initial",
		"amplitudes_fit_err", "fwhms_fit_err", "means_fit_err",
		"best_fit_rchi2", "best_fit_aicc", "N_components", "N_neg_res_peak",
		"N_blended", "log_gplus", "pvalue", "quality_control",
	}
	assert.Len(t, decoded, len(keys))
	for _, k := range keys {
		assert.Contains(t, decoded, k)
	}

	assert.JSONEq(t, `[[null], null]`, string(decoded["amplitudes_fit_err"]))
	assert.JSONEq(t, `[1.2, null]`, string(decoded["best_fit_rchi2"]))
	assert.JSONEq(t, `[[], null]`, string(decoded["log_gplus"]))
	assert.JSONEq(t, `[0, 1]`, string(decoded["index_fit"]))
}

func TestFloatJSON(t *testing.T) {
	data, err := json.Marshal([]Float{1.5, Float(math.Inf(1)), Float(math.NaN())})
	require.NoError(t, err)
	assert.Equal(t, "[1.5,null,null]", string(data))

	var f Float
	assert.Error(t, json.Unmarshal([]byte(`"x"`), &f))
}
