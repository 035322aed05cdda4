package interp

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Errors returned by axis construction and lookup.
var (
	ErrShortAxis    = errors.New("interp: axis needs at least two samples")
	ErrNotMonotonic = errors.New("interp: axis is not strictly monotonic")
	ErrOutOfRange   = errors.New("interp: argument outside axis range")
)

// Linear2 interpolates between x0 and x1 at fraction t.
func Linear2(t, x0, x1 float64) float64 {
	return x0 + t*(x1-x0)
}

// Axis is a strictly monotonic coordinate axis.
type Axis struct {
	values    []float64
	ascending bool
}

// NewAxis validates values and returns an axis over them. The slice is
// copied.
func NewAxis(values []float64) (*Axis, error) {
	if len(values) < 2 {
		return nil, ErrShortAxis
	}
	ascending := values[1] > values[0]
	for i := 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		if math.IsNaN(d) || d == 0 || (d > 0) != ascending {
			return nil, fmt.Errorf("%w at sample %d", ErrNotMonotonic, i)
		}
	}
	return &Axis{values: append([]float64(nil), values...), ascending: ascending}, nil
}

// Len returns the number of samples.
func (a *Axis) Len() int { return len(a.values) }

// Spacing returns |values[1] - values[0]|.
func (a *Axis) Spacing() float64 { return math.Abs(a.values[1] - a.values[0]) }

// Min returns the smallest coordinate.
func (a *Axis) Min() float64 {
	if a.ascending {
		return a.values[0]
	}
	return a.values[len(a.values)-1]
}

// Max returns the largest coordinate.
func (a *Axis) Max() float64 {
	if a.ascending {
		return a.values[len(a.values)-1]
	}
	return a.values[0]
}

// At returns the coordinate at fractional index idx.
func (a *Axis) At(idx float64) (float64, error) {
	last := float64(len(a.values) - 1)
	if math.IsNaN(idx) || idx < 0 || idx > last {
		return 0, fmt.Errorf("%w: index %v", ErrOutOfRange, idx)
	}
	i := int(idx)
	if i == len(a.values)-1 {
		return a.values[i], nil
	}
	return Linear2(idx-float64(i), a.values[i], a.values[i+1]), nil
}

// Index returns the fractional index of coordinate v.
func (a *Axis) Index(v float64) (float64, error) {
	if math.IsNaN(v) || v < a.Min() || v > a.Max() {
		return 0, fmt.Errorf("%w: coordinate %v", ErrOutOfRange, v)
	}
	n := len(a.values)
	// First sample at or beyond v in axis direction.
	k := sort.Search(n, func(j int) bool {
		if a.ascending {
			return a.values[j] >= v
		}
		return a.values[j] <= v
	})
	if k == 0 {
		return 0, nil
	}
	x0, x1 := a.values[k-1], a.values[k]
	return float64(k-1) + (v-x0)/(x1-x0), nil
}
