package gauss

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// StdToFWHM converts a Gaussian standard deviation into its full width at
// half maximum: 2*sqrt(2 ln 2).
var StdToFWHM = 2 * math.Sqrt(2*math.Ln2)

// areaFactor is sqrt(pi / (4 ln 2)), the integral of a unit-amplitude,
// unit-FWHM Gaussian.
var areaFactor = math.Sqrt(math.Pi / (4 * math.Ln2))

// Errors returned by parameter conversions.
var (
	ErrVectorLength = errors.New("gauss: parameter vector length is not a multiple of 3")
	ErrShape        = errors.New("gauss: amplitude, fwhm and mean slices differ in length")
)

// Component is a single Gaussian.
type Component struct {
	Amp  float64
	FWHM float64
	Mean float64
}

// Sigma returns the standard deviation of the component.
func (c Component) Sigma() float64 { return c.FWHM / StdToFWHM }

// Area returns the integrated intensity of the component.
func (c Component) Area() float64 { return c.Amp * c.FWHM * areaFactor }

// At evaluates the component at x.
func (c Component) At(x float64) float64 {
	d := x - c.Mean
	return c.Amp * math.Exp(-4*math.Ln2*d*d/(c.FWHM*c.FWHM))
}

// Params holds N components as three parallel slices sharing an index.
type Params struct {
	Amps  []float64
	FWHMs []float64
	Means []float64
}

// New builds Params from the three sub-vectors.
func New(amps, fwhms, means []float64) (Params, error) {
	if len(amps) != len(fwhms) || len(amps) != len(means) {
		return Params{}, fmt.Errorf("%w: %d/%d/%d", ErrShape, len(amps), len(fwhms), len(means))
	}
	return Params{
		Amps:  append([]float64(nil), amps...),
		FWHMs: append([]float64(nil), fwhms...),
		Means: append([]float64(nil), means...),
	}, nil
}

// FromVector splits a flat [amps..., fwhms..., means...] vector.
func FromVector(v []float64) (Params, error) {
	if len(v)%3 != 0 {
		return Params{}, fmt.Errorf("%w: %d", ErrVectorLength, len(v))
	}
	n := len(v) / 3
	return New(v[:n], v[n:2*n], v[2*n:])
}

// FromComponents builds Params from a list of components.
func FromComponents(cs []Component) Params {
	p := Params{
		Amps:  make([]float64, len(cs)),
		FWHMs: make([]float64, len(cs)),
		Means: make([]float64, len(cs)),
	}
	for i, c := range cs {
		p.Amps[i], p.FWHMs[i], p.Means[i] = c.Amp, c.FWHM, c.Mean
	}
	return p
}

// Len returns the component count.
func (p Params) Len() int { return len(p.Amps) }

// Component returns component i.
func (p Params) Component(i int) Component {
	return Component{Amp: p.Amps[i], FWHM: p.FWHMs[i], Mean: p.Means[i]}
}

// Components returns all components in index order.
func (p Params) Components() []Component {
	out := make([]Component, p.Len())
	for i := range out {
		out[i] = p.Component(i)
	}
	return out
}

// Vector returns the flat parameter vector.
func (p Params) Vector() []float64 {
	out := make([]float64, 0, 3*p.Len())
	out = append(out, p.Amps...)
	out = append(out, p.FWHMs...)
	return append(out, p.Means...)
}

// Clone returns a deep copy.
func (p Params) Clone() Params {
	return Params{
		Amps:  append([]float64(nil), p.Amps...),
		FWHMs: append([]float64(nil), p.FWHMs...),
		Means: append([]float64(nil), p.Means...),
	}
}

// Append concatenates q after p, sub-vector by sub-vector.
func (p Params) Append(q Params) Params {
	out := p.Clone()
	out.Amps = append(out.Amps, q.Amps...)
	out.FWHMs = append(out.FWHMs, q.FWHMs...)
	out.Means = append(out.Means, q.Means...)
	return out
}

// Remove returns a copy without the components at the given indices.
// Out-of-range and duplicate indices are ignored.
func (p Params) Remove(indices ...int) Params {
	drop := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		drop[i] = struct{}{}
	}
	out := Params{}
	for i := 0; i < p.Len(); i++ {
		if _, ok := drop[i]; ok {
			continue
		}
		out.Amps = append(out.Amps, p.Amps[i])
		out.FWHMs = append(out.FWHMs, p.FWHMs[i])
		out.Means = append(out.Means, p.Means[i])
	}
	return out
}

// SortByAmplitude returns a copy ordered by descending amplitude. The sort
// is stable: equal amplitudes keep their relative input order.
func (p Params) SortByAmplitude() Params {
	idx := make([]int, p.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return p.Amps[idx[a]] > p.Amps[idx[b]] })

	out := Params{
		Amps:  make([]float64, len(idx)),
		FWHMs: make([]float64, len(idx)),
		Means: make([]float64, len(idx)),
	}
	for k, i := range idx {
		out.Amps[k], out.FWHMs[k], out.Means[k] = p.Amps[i], p.FWHMs[i], p.Means[i]
	}
	return out
}

// Model evaluates the sum of all components at every x.
func (p Params) Model(x []float64) []float64 {
	out := make([]float64, len(x))
	p.ModelTo(out, x)
	return out
}

// ModelTo evaluates the model into dst, which must have len(x) elements.
func (p Params) ModelTo(dst, x []float64) {
	for i := range dst {
		dst[i] = 0
	}
	for k := 0; k < p.Len(); k++ {
		a, m := p.Amps[k], p.Means[k]
		w := p.FWHMs[k]
		c := -4 * math.Ln2 / (w * w)
		for i, xi := range x {
			d := xi - m
			dst[i] += a * math.Exp(c*d*d)
		}
	}
}
