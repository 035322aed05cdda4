package gauss

import (
	"errors"
	"math"
	"testing"
)

func TestFromVector(t *testing.T) {
	p, err := FromVector([]float64{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}
	if p.Amps[1] != 2 || p.FWHMs[0] != 3 || p.Means[1] != 6 {
		t.Errorf("unexpected split: %+v", p)
	}

	v := p.Vector()
	for i, want := range []float64{1, 2, 3, 4, 5, 6} {
		if v[i] != want {
			t.Errorf("Vector()[%d] = %v, want %v", i, v[i], want)
		}
	}

	if _, err := FromVector([]float64{1, 2}); !errors.Is(err, ErrVectorLength) {
		t.Errorf("expected ErrVectorLength, got %v", err)
	}
}

func TestNewShapeMismatch(t *testing.T) {
	if _, err := New([]float64{1}, []float64{1, 2}, []float64{1}); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}

func TestAppendKeepsLayout(t *testing.T) {
	a := FromComponents([]Component{{Amp: 1, FWHM: 2, Mean: 3}})
	b := FromComponents([]Component{{Amp: 4, FWHM: 5, Mean: 6}, {Amp: 7, FWHM: 8, Mean: 9}})

	got := a.Append(b).Vector()
	want := []float64{1, 4, 7, 2, 5, 8, 3, 6, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Append().Vector() = %v, want %v", got, want)
		}
	}
	if a.Len() != 1 {
		t.Errorf("Append mutated receiver")
	}
}

func TestSortByAmplitudeStable(t *testing.T) {
	p := FromComponents([]Component{
		{Amp: 1, FWHM: 10, Mean: 0},
		{Amp: 3, FWHM: 11, Mean: 1},
		{Amp: 1, FWHM: 12, Mean: 2},
		{Amp: 3, FWHM: 13, Mean: 3},
	})
	s := p.SortByAmplitude()

	wantFWHM := []float64{11, 13, 10, 12}
	for i, w := range wantFWHM {
		if s.FWHMs[i] != w {
			t.Errorf("FWHMs[%d] = %v, want %v", i, s.FWHMs[i], w)
		}
	}
}

func TestRemove(t *testing.T) {
	p := FromComponents([]Component{{Amp: 1}, {Amp: 2}, {Amp: 3}})
	r := p.Remove(0, 2, 2, 7)
	if r.Len() != 1 || r.Amps[0] != 2 {
		t.Errorf("Remove() = %+v", r)
	}
}

func TestModelPeakAndHalfWidth(t *testing.T) {
	c := Component{Amp: 2, FWHM: 4, Mean: 10}
	p := FromComponents([]Component{c})
	x := []float64{10, 8, 12}
	y := p.Model(x)

	if math.Abs(y[0]-2) > 1e-12 {
		t.Errorf("peak = %v, want 2", y[0])
	}
	for _, v := range y[1:] {
		if math.Abs(v-1) > 1e-12 {
			t.Errorf("half-maximum = %v, want 1", v)
		}
	}
	if math.Abs(c.At(8)-1) > 1e-12 {
		t.Errorf("At(8) = %v, want 1", c.At(8))
	}
}

func TestAreaMatchesNumericIntegral(t *testing.T) {
	c := Component{Amp: 1.5, FWHM: 3, Mean: 0}
	sum := 0.0
	const dx = 0.01
	for x := -30.0; x <= 30; x += dx {
		sum += c.At(x) * dx
	}
	if math.Abs(sum-c.Area()) > 1e-6 {
		t.Errorf("Area() = %v, numeric %v", c.Area(), sum)
	}
	if math.Abs(c.Sigma()*StdToFWHM-3) > 1e-12 {
		t.Errorf("Sigma() inconsistent with StdToFWHM")
	}
}
