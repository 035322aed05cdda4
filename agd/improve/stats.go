package improve

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Interval is a half-open channel range [Lo, Hi).
type Interval struct {
	Lo, Hi int
}

// MarshalJSON encodes the interval as [lo, hi].
func (iv Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{iv.Lo, iv.Hi})
}

// UnmarshalJSON decodes [lo, hi].
func (iv *Interval) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("improve: interval: %w", err)
	}
	iv.Lo, iv.Hi = pair[0], pair[1]
	return nil
}

// Contains reports whether channel i lies in the interval.
func (iv Interval) Contains(i int) bool { return i >= iv.Lo && i < iv.Hi }

// SignalMask marks the channels that enter goodness-of-fit statistics: the
// signal ranges (all channels when none are given) minus the noise spikes.
// Intervals are clipped to [0, n).
func SignalMask(n int, signal, spikes []Interval) []bool {
	mask := make([]bool, n)
	if len(signal) == 0 {
		for i := range mask {
			mask[i] = true
		}
	}
	for _, iv := range signal {
		for i := max(iv.Lo, 0); i < min(iv.Hi, n); i++ {
			mask[i] = true
		}
	}
	for _, iv := range spikes {
		for i := max(iv.Lo, 0); i < min(iv.Hi, n); i++ {
			mask[i] = false
		}
	}
	return mask
}

// maskedResidual returns the residuals and errors of the masked channels.
func maskedResidual(residual, errs []float64, mask []bool) (r, e []float64) {
	for i, m := range mask {
		if !m {
			continue
		}
		r = append(r, residual[i])
		if len(errs) == 1 {
			e = append(e, errs[0])
		} else {
			e = append(e, errs[i])
		}
	}
	return r, e
}

// ReducedChi2 returns sum((r/e)^2) / (n - k) over the masked channels for a
// model with k free parameters. The denominator is clamped at 1.
func ReducedChi2(residual, errs []float64, mask []bool, k int) float64 {
	r, e := maskedResidual(residual, errs, mask)
	if len(r) == 0 {
		return math.NaN()
	}
	chi2 := 0.0
	for i := range r {
		w := r[i] / e[i]
		chi2 += w * w
	}
	dof := max(len(r)-k, 1)
	return chi2 / float64(dof)
}

// AICc returns the corrected Akaike information criterion of a least-squares
// model with k free parameters over the masked channels.
func AICc(residual []float64, mask []bool, k int) float64 {
	r, _ := maskedResidual(residual, []float64{1}, mask)
	n := len(r)
	if n == 0 {
		return math.NaN()
	}
	rss := floats.Dot(r, r)
	if rss == 0 {
		return math.Inf(-1)
	}
	nf, kf := float64(n), float64(k)
	aic := nf*math.Log(rss/nf) + 2*kf
	if n-k-1 <= 0 {
		return math.Inf(1)
	}
	return aic + 2*kf*(kf+1)/(nf-kf-1)
}

// FTest returns the p-value of the F-test comparing a restricted model
// (rss0, k0 parameters) with a fuller one (rss1, k1 > k0) on n samples. A
// small p-value means the extra parameters are significant.
func FTest(rss0, rss1 float64, k0, k1, n int) float64 {
	d1, d2 := k1-k0, n-k1
	if d1 <= 0 || d2 <= 0 || !(rss1 > 0) {
		return math.NaN()
	}
	f := ((rss0 - rss1) / float64(d1)) / (rss1 / float64(d2))
	if f <= 0 {
		return 1
	}
	return distuv.F{D1: float64(d1), D2: float64(d2)}.Survival(f)
}

// rss returns the unweighted residual sum of squares over the mask.
func rss(residual []float64, mask []bool) float64 {
	r, _ := maskedResidual(residual, []float64{1}, mask)
	return floats.Dot(r, r)
}

// countMask returns the number of selected channels.
func countMask(mask []bool) int {
	n := 0
	for _, m := range mask {
		if m {
			n++
		}
	}
	return n
}
