package interp

import (
	"errors"
	"math"
	"testing"
)

func TestLinear2(t *testing.T) {
	if got := Linear2(0.25, 2, 6); got != 3 {
		t.Errorf("Linear2 = %v, want 3", got)
	}
}

func TestAxisRoundTrip(t *testing.T) {
	for _, name := range []string{"ascending", "descending"} {
		t.Run(name, func(t *testing.T) {
			values := make([]float64, 11)
			for i := range values {
				values[i] = -5 + 0.5*float64(i)
				if name == "descending" {
					values[i] = -values[i]
				}
			}
			ax, err := NewAxis(values)
			if err != nil {
				t.Fatalf("NewAxis: %v", err)
			}
			if ax.Spacing() != 0.5 || ax.Max()-ax.Min() != 5 {
				t.Errorf("unexpected axis summary: spacing %v min %v max %v", ax.Spacing(), ax.Min(), ax.Max())
			}
			for _, idx := range []float64{0, 0.5, 3.25, 9.99, 10} {
				v, err := ax.At(idx)
				if err != nil {
					t.Fatalf("At(%v): %v", idx, err)
				}
				back, err := ax.Index(v)
				if err != nil {
					t.Fatalf("Index(%v): %v", v, err)
				}
				if math.Abs(back-idx) > 1e-12 {
					t.Errorf("round trip %v -> %v -> %v", idx, v, back)
				}
			}
		})
	}
}

func TestAxisErrors(t *testing.T) {
	if _, err := NewAxis([]float64{1}); !errors.Is(err, ErrShortAxis) {
		t.Errorf("expected ErrShortAxis, got %v", err)
	}
	if _, err := NewAxis([]float64{1, 2, 2}); !errors.Is(err, ErrNotMonotonic) {
		t.Errorf("expected ErrNotMonotonic, got %v", err)
	}
	if _, err := NewAxis([]float64{1, 2, 1.5}); !errors.Is(err, ErrNotMonotonic) {
		t.Errorf("expected ErrNotMonotonic, got %v", err)
	}

	ax, err := NewAxis([]float64{0, 1, 2})
	if err != nil {
		t.Fatalf("NewAxis: %v", err)
	}
	if _, err := ax.At(2.5); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := ax.Index(-0.1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}
