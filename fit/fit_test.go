package fit

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-gauss/gauss"
	"github.com/cwbudde/algo-gauss/internal/testutil"
)

var twoComponents = []gauss.Component{
	{Amp: 1, FWHM: 8, Mean: 40},
	{Amp: 0.5, FWHM: 12, Mean: 70},
}

func perturbed() gauss.Params {
	return gauss.FromComponents([]gauss.Component{
		{Amp: 0.8, FWHM: 10, Mean: 41.5},
		{Amp: 0.6, FWHM: 9, Mean: 68},
	})
}

func TestDataRecoversComponents(t *testing.T) {
	vel := testutil.Channels(0, 1, 120)
	data := testutil.Spectrum(vel, twoComponents, 0.01, 21)

	sol, err := Data(context.Background(), vel, data, []float64{0.01}, perturbed(), Bounds{}, nil)
	if err != nil {
		t.Fatalf("Data: %v", err)
	}
	if !sol.Success {
		t.Fatalf("fit did not converge: %v", sol.Status)
	}
	for i, c := range twoComponents {
		testutil.RequireNearlyEqual(t, sol.Params.Amps[i], c.Amp, 0.03, "amp")
		testutil.RequireNearlyEqual(t, sol.Params.FWHMs[i], c.FWHM, 0.5, "fwhm")
		testutil.RequireNearlyEqual(t, sol.Params.Means[i], c.Mean, 0.3, "mean")
	}
	testutil.RequireFinite(t, sol.Errors.Vector())
	for _, e := range sol.Errors.Vector() {
		if !(e > 0) {
			t.Fatalf("stderr %v, want positive", e)
		}
	}
	// About one unit of chi-square per degree of freedom.
	if red := sol.Chi2 / float64(len(vel)-6); red < 0.6 || red > 1.5 {
		t.Errorf("reduced chi2 = %v", red)
	}
}

func TestDataMaxAmp(t *testing.T) {
	vel := testutil.Channels(0, 1, 80)
	data := testutil.Spectrum(vel, []gauss.Component{{Amp: 2, FWHM: 10, Mean: 40}}, 0, 0)
	guess := gauss.FromComponents([]gauss.Component{{Amp: 1, FWHM: 10, Mean: 40}})

	sol, err := Data(context.Background(), vel, data, []float64{0.1}, guess, Bounds{MaxAmp: 1.5}, nil)
	if err != nil {
		t.Fatalf("Data: %v", err)
	}
	if sol.Params.Amps[0] > 1.5 {
		t.Errorf("amp = %v exceeds bound", sol.Params.Amps[0])
	}
}

func TestDataMask(t *testing.T) {
	vel := testutil.Channels(0, 1, 120)
	data := testutil.Spectrum(vel, twoComponents, 0, 0)
	mask := make([]bool, len(vel))
	for i := 20; i < 50; i++ {
		mask[i] = true
	}
	guess := gauss.FromComponents([]gauss.Component{{Amp: 0.7, FWHM: 6, Mean: 38}})

	sol, err := Data(context.Background(), vel, data, []float64{0.01}, guess, Bounds{}, mask)
	if err != nil {
		t.Fatalf("Data: %v", err)
	}
	testutil.RequireNearlyEqual(t, sol.Params.Means[0], 40, 0.05, "mean")
	testutil.RequireNearlyEqual(t, sol.Params.Amps[0], 1, 0.01, "amp")
}

func TestSecondDerivativeRecoversModel(t *testing.T) {
	vel := testutil.Channels(0, 0.5, 200)
	truth := gauss.FromComponents([]gauss.Component{{Amp: 1, FWHM: 6, Mean: 50}})
	data := truth.Model(vel)

	u2 := make([]float64, len(vel))
	for i := 1; i < len(vel)-1; i++ {
		u2[i] = (data[i+1] - 2*data[i] + data[i-1]) / 0.25
	}
	fitmask := make([]bool, len(vel))
	for i := 80; i < 120; i++ {
		fitmask[i] = true
	}
	guess := gauss.FromComponents([]gauss.Component{{Amp: 0.8, FWHM: 7, Mean: 50.5}})

	sol, err := SecondDerivative(context.Background(), vel, data, []float64{0.05}, u2, guess, fitmask, Bounds{})
	if err != nil {
		t.Fatalf("SecondDerivative: %v", err)
	}
	testutil.RequireSliceNearlyEqual(t, sol.Params.Vector(), truth.Vector(), 1e-4)
}

func TestBoundsVectors(t *testing.T) {
	nan := math.NaN()
	b := Bounds{
		MaxAmp:  3,
		MaxFWHM: math.Inf(1),
		Min:     []float64{nan, 1, 2, nan, -5, nan},
		Max:     []float64{5, nan, nan, 20, nan, 9},
	}
	lower, upper, err := b.Vectors(2)
	if err != nil {
		t.Fatalf("vectors: %v", err)
	}
	inf := math.Inf(1)
	testutil.RequireSliceNearlyEqual(t, lower[:4], []float64{0, 1, 2, 0}, 0)
	if lower[4] != -5 || !math.IsInf(lower[5], -1) {
		t.Errorf("mean lower bounds = %v", lower[4:])
	}
	want := []float64{3, 3, inf, 20, inf, 9}
	for i := range want {
		if upper[i] != want[i] {
			t.Errorf("upper[%d] = %v, want %v", i, upper[i], want[i])
		}
	}
	if _, _, err := (Bounds{Min: []float64{1}}).Vectors(2); !errors.Is(err, ErrBoundsLength) {
		t.Errorf("got %v, want ErrBoundsLength", err)
	}
}

func TestErrors(t *testing.T) {
	ctx := context.Background()
	vel := testutil.Channels(0, 1, 10)
	data := make([]float64, 10)
	g := gauss.FromComponents([]gauss.Component{{Amp: 1, FWHM: 2, Mean: 5}})

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"empty guess", func() error { _, err := Data(ctx, vel, data, []float64{1}, gauss.Params{}, Bounds{}, nil); return err }(), ErrEmptyGuess},
		{"length", func() error { _, err := Data(ctx, vel[:5], data, []float64{1}, g, Bounds{}, nil); return err }(), ErrLength},
		{"errors length", func() error { _, err := Data(ctx, vel, data, []float64{1, 2}, g, Bounds{}, nil); return err }(), ErrLength},
		{"zero error", func() error { _, err := Data(ctx, vel, data, []float64{0}, g, Bounds{}, nil); return err }(), ErrNonPositive},
		{"empty mask", func() error { _, err := Data(ctx, vel, data, []float64{1}, g, Bounds{}, make([]bool, 10)); return err }(), ErrEmptyMask},
		{"u2 length", func() error {
			_, err := SecondDerivative(ctx, vel, data, []float64{1}, data[:3], g, make([]bool, 10), Bounds{})
			return err
		}(), ErrLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("got %v, want %v", tt.err, tt.want)
			}
		})
	}
}
