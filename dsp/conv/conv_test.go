package conv

import (
	"errors"
	"math"
	"testing"
)

func TestDirect(t *testing.T) {
	tests := []struct {
		name     string
		a        []float64
		b        []float64
		expected []float64
	}{
		{
			name:     "simple 3x3",
			a:        []float64{1, 2, 3},
			b:        []float64{1, 1, 1},
			expected: []float64{1, 3, 6, 5, 3},
		},
		{
			name:     "impulse",
			a:        []float64{1, 2, 3, 4, 5},
			b:        []float64{1},
			expected: []float64{1, 2, 3, 4, 5},
		},
		{
			name:     "delayed impulse",
			a:        []float64{1, 2, 3, 4, 5},
			b:        []float64{0, 0, 1},
			expected: []float64{0, 0, 1, 2, 3, 4, 5},
		},
		{
			name:     "symmetric",
			a:        []float64{1, 2, 1},
			b:        []float64{1, 2, 1},
			expected: []float64{1, 4, 6, 4, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Direct(tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result) != len(tt.expected) {
				t.Fatalf("length mismatch: got %d, expected %d", len(result), len(tt.expected))
			}
			for i := range result {
				if math.Abs(result[i]-tt.expected[i]) > 1e-10 {
					t.Errorf("result[%d] = %v, expected %v", i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestDirectErrors(t *testing.T) {
	_, err := Direct([]float64{}, []float64{1, 2})
	if !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}

	_, err = Direct([]float64{1, 2}, []float64{})
	if !errors.Is(err, ErrEmptyKernel) {
		t.Errorf("expected ErrEmptyKernel, got %v", err)
	}
}

func TestFFTMatchesDirect(t *testing.T) {
	signal := make([]float64, 300)
	for i := range signal {
		signal[i] = math.Sin(2*math.Pi*float64(i)/37) + 0.1*float64(i%7)
	}
	kernel := make([]float64, 90)
	for i := range kernel {
		kernel[i] = math.Exp(-float64(i) / 15)
	}

	want, err := Direct(signal, kernel)
	if err != nil {
		t.Fatalf("direct convolution failed: %v", err)
	}
	got, err := FFT(signal, kernel)
	if err != nil {
		t.Fatalf("FFT convolution failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: %d vs %d", len(got), len(want))
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("index %d: FFT %v, direct %v", i, got[i], want[i])
		}
	}
}

// wrapReference evaluates the periodic convolution definition directly.
func wrapReference(signal, kernel []float64) []float64 {
	n := len(signal)
	c := len(kernel) / 2
	out := make([]float64, n)
	for i := range out {
		for k, w := range kernel {
			j := ((i+c-k)%n + n) % n
			out[i] += w * signal[j]
		}
	}
	return out
}

func TestWrap(t *testing.T) {
	signal := []float64{3, -1, 4, 1, -5, 9, 2, 6}

	kernels := map[string][]float64{
		"odd":        {0.25, 0.5, 0.25},
		"even":       {1, -1},
		"asymmetric": {1, 2, 3, 4, 5},
		"longer":     {1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 6},
		"long fft":   make([]float64, 130),
	}
	for i := range kernels["long fft"] {
		kernels["long fft"][i] = math.Cos(float64(i) / 9)
	}

	for name, k := range kernels {
		t.Run(name, func(t *testing.T) {
			got, err := Wrap(signal, k)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := wrapReference(signal, k)
			for i := range want {
				if math.Abs(got[i]-want[i]) > 1e-9 {
					t.Errorf("out[%d] = %v, want %v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestWrapIdentityAndShift(t *testing.T) {
	signal := []float64{1, 2, 3, 4}

	id, err := Wrap(signal, []float64{0, 1, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range signal {
		if id[i] != signal[i] {
			t.Errorf("identity[%d] = %v, want %v", i, id[i], signal[i])
		}
	}

	// A centred tap one position to the right reads the previous sample.
	shift, err := Wrap(signal, []float64{0, 0, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{4, 1, 2, 3}
	for i := range want {
		if shift[i] != want[i] {
			t.Errorf("shift[%d] = %v, want %v", i, shift[i], want[i])
		}
	}
}

func TestWrapErrors(t *testing.T) {
	if _, err := Wrap(nil, []float64{1}); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
	if _, err := Wrap([]float64{1}, nil); !errors.Is(err, ErrEmptyKernel) {
		t.Errorf("expected ErrEmptyKernel, got %v", err)
	}
	if err := WrapTo(make([]float64, 2), []float64{1, 2, 3}, []float64{1}); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestDirectVectorizedMatchesScalar(t *testing.T) {
	a := []float64{1, -2, 0, 3, 0.5, 4, -1}
	b := make([]float64, 20)
	for i := range b {
		b[i] = float64(i%5) - 1.5
	}

	got, err := Direct(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for k := range got {
		want := 0.0
		for i := range a {
			if j := k - i; j >= 0 && j < len(b) {
				want += a[i] * b[j]
			}
		}
		if math.Abs(got[k]-want) > 1e-12 {
			t.Errorf("out[%d] = %v, want %v", k, got[k], want)
		}
	}
}
