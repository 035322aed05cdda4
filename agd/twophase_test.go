package agd

import (
	"slices"
	"testing"
)

func TestMedianWindow(t *testing.T) {
	tests := []struct {
		alpha float64
		want  int
	}{
		{1, 7},
		{2.58, 9},
		{1e-6, 1},
	}
	for _, tt := range tests {
		if got := MedianWindow(tt.alpha); got != tt.want {
			t.Errorf("MedianWindow(%v) = %d, want %d", tt.alpha, got, tt.want)
		}
	}
}

func TestFitMask(t *testing.T) {
	got := FitMask(10, []float64{5}, []float64{1.5})
	want := []bool{false, false, false, true, true, true, false, false, false, false}
	if !slices.Equal(got, want) {
		t.Errorf("FitMask = %v, want %v", got, want)
	}

	// A window reaching below channel 0 starts from the end and is empty.
	got = FitMask(10, []float64{1}, []float64{2.5})
	if slices.Contains(got, true) {
		t.Errorf("wrapped window not empty: %v", got)
	}

	// The upper bound clamps at the axis end.
	got = FitMask(10, []float64{8.2}, []float64{3})
	want = []bool{false, false, false, false, false, true, true, true, true, true}
	if !slices.Equal(got, want) {
		t.Errorf("clamped window = %v, want %v", got, want)
	}
}
