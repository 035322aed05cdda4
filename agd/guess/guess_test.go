package guess

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-gauss/dsp/interp"
	"github.com/cwbudde/algo-gauss/gauss"
	"github.com/cwbudde/algo-gauss/internal/testutil"
)

func twoLines() ([]float64, []gauss.Component) {
	vel := testutil.Channels(0, 1, 256)
	cs := []gauss.Component{
		{Amp: 1, FWHM: 10, Mean: 80.3},
		{Amp: 0.6, FWHM: 15, Mean: 170.6},
	}
	return vel, cs
}

func TestInitialGuessNoiseless(t *testing.T) {
	vel, cs := twoLines()
	data := testutil.Spectrum(vel, cs, 0, 0)

	g, err := InitialGuess(vel, data, Options{Alpha: 3, SNRThresh: 5, Noise: 0.01})
	if err != nil {
		t.Fatalf("InitialGuess: %v", err)
	}
	if g.N() != 2 {
		t.Fatalf("found %d components, want 2: %+v", g.N(), g.Params)
	}
	if !g.Deblended {
		t.Error("well separated lines should deblend to positive amplitudes")
	}
	for i, c := range cs {
		if math.Abs(g.Params.Means[i]-c.Mean) > 0.5 {
			t.Errorf("mean[%d] = %v, want %v", i, g.Params.Means[i], c.Mean)
		}
		// Smoothing broadens the curvature estimate.
		if g.Params.FWHMs[i] < c.FWHM || g.Params.FWHMs[i] > 2*c.FWHM {
			t.Errorf("fwhm[%d] = %v, true %v", i, g.Params.FWHMs[i], c.FWHM)
		}
		testutil.RequireRelative(t, g.Params.Amps[i], c.Amp, 0.02, "amp")
	}
	testutil.RequireNearlyEqual(t, g.Thresh, 0.05, 1e-15, "Thresh")
	if g.Thresh2 != 0 {
		t.Errorf("Thresh2 = %v, want 0 with the curvature threshold disabled", g.Thresh2)
	}
	if len(g.U2) != len(data) {
		t.Errorf("len(U2) = %d", len(g.U2))
	}
}

func TestInitialGuessNoisy(t *testing.T) {
	vel, cs := twoLines()
	data := testutil.Spectrum(vel, cs, 0.02, 11)

	g, err := InitialGuess(vel, data, Options{Alpha: 3, SNRThresh: 5, SNR2Thresh: 5})
	if err != nil {
		t.Fatalf("InitialGuess: %v", err)
	}
	if !(g.Noise > 0.01 && g.Noise < 0.04) {
		t.Errorf("noise estimate = %v", g.Noise)
	}
	if g.Thresh2 >= 0 {
		t.Errorf("thresh2 = %v, want negative", g.Thresh2)
	}
	if g.N() < 2 {
		t.Fatalf("found %d components, want at least 2", g.N())
	}
	for _, c := range cs {
		i := testutil.ClosestMean(g.Params, c.Mean)
		if math.Abs(g.Params.Means[i]-c.Mean) > 2 {
			t.Errorf("no candidate near %v: %v", c.Mean, g.Params.Means)
		}
	}
	for i, a := range g.Params.Amps {
		if !(a > 0) {
			t.Errorf("amp[%d] = %v, want positive", i, a)
		}
	}
}

func TestInitialGuessDeterministic(t *testing.T) {
	vel, cs := twoLines()
	data := testutil.Spectrum(vel, cs, 0.02, 3)
	opts := Options{Alpha: 2.5, SNRThresh: 5, SNR2Thresh: 5}

	a, err := InitialGuess(vel, data, opts)
	if err != nil {
		t.Fatal(err)
	}
	b, err := InitialGuess(vel, data, opts)
	if err != nil {
		t.Fatal(err)
	}
	testutil.RequireSliceNearlyEqual(t, a.Params.Vector(), b.Params.Vector(), 0)
}

func TestInitialGuessPureNoise(t *testing.T) {
	vel := testutil.Channels(0, 1, 200)
	data := testutil.GaussianNoise(5, 0.1, 200)

	g, err := InitialGuess(vel, data, Options{Alpha: 3, SNRThresh: 8, SNR2Thresh: 8})
	if err != nil {
		t.Fatalf("InitialGuess: %v", err)
	}
	if g.N() != 0 {
		t.Errorf("found %d components in pure noise", g.N())
	}
}

func TestInitialGuessDescendingVelocity(t *testing.T) {
	vel := testutil.Channels(255, -1, 256)
	cs := []gauss.Component{{Amp: 1, FWHM: 10, Mean: 100.3}}
	data := testutil.Spectrum(vel, cs, 0, 0)

	g, err := InitialGuess(vel, data, Options{Alpha: 3, SNRThresh: 5, Noise: 0.01})
	if err != nil {
		t.Fatalf("InitialGuess: %v", err)
	}
	if g.N() != 1 || math.Abs(g.Params.Means[0]-100.3) > 0.5 {
		t.Errorf("guess = %+v", g.Params)
	}
}

func TestInitialGuessErrors(t *testing.T) {
	vel := testutil.Channels(0, 1, 64)
	data := make([]float64, 64)

	nan := append([]float64(nil), data...)
	nan[10] = math.NaN()
	if _, err := InitialGuess(vel, nan, Options{Alpha: 2, SNRThresh: 5}); !errors.Is(err, ErrNonFinite) {
		t.Errorf("NaN: got %v, want ErrNonFinite", err)
	}
	if _, err := InitialGuess(vel[:10], data, Options{Alpha: 2, SNRThresh: 5}); !errors.Is(err, ErrLength) {
		t.Errorf("length: got %v, want ErrLength", err)
	}
	flat := testutil.Fill(1, 64)
	if _, err := InitialGuess(flat, data, Options{Alpha: 2, SNRThresh: 5}); !errors.Is(err, interp.ErrNotMonotonic) {
		t.Errorf("axis: got %v, want ErrNotMonotonic", err)
	}
}

func TestDeblendRecoversAmplitudes(t *testing.T) {
	means := []float64{0, 5}
	fwhms := []float64{6, 6}
	trueAmps := []float64{1, 0.5}

	observed := make([]float64, 2)
	for i := range observed {
		for j := range trueAmps {
			c := gauss.Component{Amp: trueAmps[j], FWHM: fwhms[j], Mean: means[j]}
			observed[i] += c.At(means[i])
		}
	}

	got, ok := Deblend(observed, fwhms, means)
	if !ok {
		t.Fatal("Deblend rejected a consistent system")
	}
	testutil.RequireSliceNearlyEqual(t, got, trueAmps, 1e-9)
}

func TestInitialGuessKeepsRawAmplitudes(t *testing.T) {
	// A faint narrow line on the flank of a broad one: the curvature
	// widths overestimate the broad wing, so deblending drives the faint
	// amplitude negative.
	vel := testutil.Channels(0, 1, 256)
	cs := []gauss.Component{
		{Amp: 1, FWHM: 20, Mean: 100.3},
		{Amp: 0.1, FWHM: 3, Mean: 112.3},
	}
	data := testutil.Spectrum(vel, cs, 0, 0)

	g, err := InitialGuess(vel, data, Options{Alpha: 3, SNRThresh: 5, Noise: 0.01})
	if err != nil {
		t.Fatalf("InitialGuess: %v", err)
	}
	if g.N() != 2 {
		t.Fatalf("found %d components, want 2: %+v", g.N(), g.Params)
	}
	if g.Deblended {
		t.Fatalf("deblended amplitudes kept: %v", g.Params.Amps)
	}
	if _, ok := Deblend(g.Params.Amps, g.Params.FWHMs, g.Params.Means); ok {
		t.Error("Deblend accepted the overlapping pair")
	}
	for i, m := range g.Params.Means {
		// Candidates sit half a channel after the channel they were
		// found at.
		k := int(m)
		if g.Params.Amps[i] != data[k] {
			t.Errorf("amp[%d] = %v, want data[%d] = %v", i, g.Params.Amps[i], k, data[k])
		}
		if !(g.Params.Amps[i] > 0) {
			t.Errorf("amp[%d] = %v, want positive", i, g.Params.Amps[i])
		}
	}
}

func TestDeblendRejectsNegative(t *testing.T) {
	// Nearly coincident candidates with very different heights force a
	// negative solution.
	if _, ok := Deblend([]float64{1, 0.1}, []float64{10, 10}, []float64{0, 1}); ok {
		t.Error("Deblend accepted a negative amplitude")
	}
	if _, ok := Deblend(nil, nil, nil); ok {
		t.Error("Deblend accepted an empty system")
	}
}
