package lm

import "math"

// bound maps one parameter between external and internal coordinates.
type bound struct {
	lo, hi float64
}

func (b bound) hasLo() bool { return !math.IsInf(b.lo, -1) && !math.IsNaN(b.lo) }
func (b bound) hasHi() bool { return !math.IsInf(b.hi, 1) && !math.IsNaN(b.hi) }

// external returns x(p).
func (b bound) external(p float64) float64 {
	switch {
	case b.hasLo() && b.hasHi():
		return b.lo + (math.Sin(p)+1)*(b.hi-b.lo)/2
	case b.hasLo():
		return b.lo - 1 + math.Sqrt(p*p+1)
	case b.hasHi():
		return b.hi + 1 - math.Sqrt(p*p+1)
	default:
		return p
	}
}

// internal returns p(x). x is clipped into the bounds first.
func (b bound) internal(x float64) float64 {
	switch {
	case b.hasLo() && b.hasHi():
		x = math.Max(b.lo, math.Min(b.hi, x))
		return math.Asin(2*(x-b.lo)/(b.hi-b.lo) - 1)
	case b.hasLo():
		x = math.Max(b.lo, x)
		return math.Sqrt((x-b.lo+1)*(x-b.lo+1) - 1)
	case b.hasHi():
		x = math.Min(b.hi, x)
		return math.Sqrt((b.hi-x+1)*(b.hi-x+1) - 1)
	default:
		return x
	}
}

// scale returns dx/dp at p.
func (b bound) scale(p float64) float64 {
	switch {
	case b.hasLo() && b.hasHi():
		return math.Cos(p) * (b.hi - b.lo) / 2
	case b.hasLo():
		return p / math.Sqrt(p*p+1)
	case b.hasHi():
		return -p / math.Sqrt(p*p+1)
	default:
		return 1
	}
}
