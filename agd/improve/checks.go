package improve

import (
	"math"

	"github.com/cwbudde/algo-gauss/gauss"
)

// Removal codes recorded in QualityControl.Removed.
const (
	RemovedMeanOutside   = 0
	RemovedLowAmp        = 1
	RemovedNarrow        = 2
	RemovedInsignificant = 3
	RemovedBroad         = 4
	RemovedOutsideSignal = 5
)

// Log codes recorded in Report.Log.
const (
	LogNegativeResidual = 1
	LogBroad            = 2
	LogBlended          = 3
	LogResidualPeak     = 4
)

// Significance returns the integrated-intensity significance of a component
// with amplitude amp and width fwhmCh (in channels) at noise rms.
func Significance(amp, fwhmCh, rms float64) float64 {
	area := gauss.Component{Amp: amp, FWHM: fwhmCh}.Area()
	return area / (math.Sqrt(2*fwhmCh) * rms)
}

// removalCode returns the first failing parameter check for component c, or
// -1 when it passes.
func (s *state) removalCode(c gauss.Component) int {
	set := s.set
	fwhmCh := c.FWHM / s.dv
	switch {
	case set.ExcludeMeansOutsideChannelRange && (c.Mean < s.vmin || c.Mean > s.vmax):
		return RemovedMeanOutside
	case c.Amp < set.SNRFit*s.rms:
		return RemovedLowAmp
	case set.RefitBroad && fwhmCh < set.MinFWHM:
		return RemovedNarrow
	case set.Significance > 0 && Significance(c.Amp, fwhmCh, s.rms) < set.Significance:
		return RemovedInsignificant
	case set.RefitBroad && set.hasMaxFWHM() && fwhmCh > set.MaxFWHM:
		return RemovedBroad
	case len(s.in.SignalRanges) > 0 && !s.inSignal(c.Mean):
		return RemovedOutsideSignal
	}
	return -1
}

func (s *state) inSignal(mean float64) bool {
	idx, err := s.axis.Index(mean)
	if err != nil {
		return false
	}
	ch := int(math.Round(idx))
	for _, iv := range s.in.SignalRanges {
		if iv.Contains(ch) {
			return true
		}
	}
	return false
}

// failingComponents returns the indices and codes of components that fail a
// parameter check.
func (s *state) failingComponents(p gauss.Params) (idx, codes []int) {
	for i := 0; i < p.Len(); i++ {
		if code := s.removalCode(p.Component(i)); code >= 0 {
			idx = append(idx, i)
			codes = append(codes, code)
		}
	}
	return idx, codes
}

// blended returns whether components a and b overlap too strongly.
func (s *state) blended(a, b gauss.Component) bool {
	return math.Abs(a.Mean-b.Mean) < s.set.SeparationFactor*math.Min(a.FWHM, b.FWHM)
}

// closestBlendedPair returns the blended pair with the smallest separation.
func (s *state) closestBlendedPair(p gauss.Params) (i, j int, ok bool) {
	best := math.Inf(1)
	for a := 0; a < p.Len(); a++ {
		for b := a + 1; b < p.Len(); b++ {
			ca, cb := p.Component(a), p.Component(b)
			if !s.blended(ca, cb) {
				continue
			}
			if d := math.Abs(ca.Mean - cb.Mean); d < best {
				best, i, j, ok = d, a, b, true
			}
		}
	}
	return i, j, ok
}

// merge replaces two components by one with the same total area, mean and
// second moment.
func merge(a, b gauss.Component) gauss.Component {
	wa, wb := a.Area(), b.Area()
	w := wa + wb
	if !(w > 0) {
		return a
	}
	mean := (wa*a.Mean + wb*b.Mean) / w
	sa, sb := a.Sigma(), b.Sigma()
	second := (wa*(sa*sa+a.Mean*a.Mean) + wb*(sb*sb+b.Mean*b.Mean)) / w
	sigma := math.Sqrt(math.Max(second-mean*mean, 0))
	fwhm := sigma * gauss.StdToFWHM
	c := gauss.Component{FWHM: fwhm, Mean: mean}
	c.Amp = w / gauss.Component{Amp: 1, FWHM: fwhm}.Area()
	return c
}

// split replaces c by two half-width components a quarter FWHM either side
// of its mean. Their sum peaks at c.Amp.
func split(c gauss.Component) [2]gauss.Component {
	q := c.FWHM / 4
	return [2]gauss.Component{
		{Amp: c.Amp, FWHM: c.FWHM / 2, Mean: c.Mean - q},
		{Amp: c.Amp, FWHM: c.FWHM / 2, Mean: c.Mean + q},
	}
}

// broadest returns the component whose FWHM exceeds FWHMFactor times that
// of every other component.
func (s *state) broadest(p gauss.Params) (int, bool) {
	if p.Len() < 2 {
		return 0, false
	}
	first, second := -1, -1
	for i, w := range p.FWHMs {
		switch {
		case first < 0 || w > p.FWHMs[first]:
			second, first = first, i
		case second < 0 || w > p.FWHMs[second]:
			second = i
		}
	}
	if p.FWHMs[first] > s.set.FWHMFactor*p.FWHMs[second] {
		return first, true
	}
	return 0, false
}

// negativeRun is a contiguous run of channels [lo, hi) where the residual is
// below the negative threshold; at is the channel of its minimum.
type negativeRun struct {
	lo, hi, at int
}

// negativeRuns returns the runs of residual < -SNRNegative*rms inside the
// signal mask.
func (s *state) negativeRuns(residual []float64) []negativeRun {
	thresh := -s.set.SNRNegative * s.rms
	var runs []negativeRun
	for i := 0; i < len(residual); {
		if !(s.mask[i] && residual[i] < thresh) {
			i++
			continue
		}
		run := negativeRun{lo: i, at: i}
		for i < len(residual) && s.mask[i] && residual[i] < thresh {
			if residual[i] < residual[run.at] {
				run.at = i
			}
			i++
		}
		run.hi = i
		runs = append(runs, run)
	}
	return runs
}

// coveringComponent returns the component whose half-maximum window
// contains velocity v, preferring the nearest mean.
func coveringComponent(p gauss.Params, v float64) (int, bool) {
	best, bestD := 0, math.Inf(1)
	for i := 0; i < p.Len(); i++ {
		d := math.Abs(p.Means[i] - v)
		if d < p.FWHMs[i]/2 && d < bestD {
			best, bestD = i, d
		}
	}
	return best, !math.IsInf(bestD, 1)
}

// weakest returns the component with the smallest area.
func weakest(p gauss.Params) int {
	idx, area := 0, math.Inf(1)
	for i := 0; i < p.Len(); i++ {
		if a := p.Component(i).Area(); a < area {
			idx, area = i, a
		}
	}
	return idx
}
