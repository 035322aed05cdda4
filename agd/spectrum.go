package agd

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-gauss/agd/improve"
	"github.com/cwbudde/algo-gauss/dsp/interp"
)

// ErrSpectrum reports a malformed spectrum.
var ErrSpectrum = errors.New("agd: invalid spectrum")

// minChannels is the shortest spectrum that has a second derivative.
const minChannels = 3

// Interval is a half-open channel range [Lo, Hi).
type Interval = improve.Interval

// Spectrum is one decomposition input.
type Spectrum struct {
	Index     int       `json:"index"`
	Velocity  []float64 `json:"velocity"`
	Intensity []float64 `json:"intensity"`
	// Error holds per-channel errors or a single broadcast value.
	Error []float64 `json:"error"`

	SignalRanges     []Interval `json:"signal_ranges,omitempty"`
	NoiseSpikeRanges []Interval `json:"noise_spike_ranges,omitempty"`
}

// Validate checks shapes, the velocity axis and the errors. NaN
// intensities are left to the guesser, which rejects them.
func (s Spectrum) Validate() error {
	n := len(s.Intensity)
	switch {
	case n < minChannels:
		return fmt.Errorf("%w: %d channels", ErrSpectrum, n)
	case len(s.Velocity) != n:
		return fmt.Errorf("%w: velocity %d, intensity %d", ErrSpectrum, len(s.Velocity), n)
	case len(s.Error) != n && len(s.Error) != 1:
		return fmt.Errorf("%w: error %d, intensity %d", ErrSpectrum, len(s.Error), n)
	}
	if _, err := interp.NewAxis(s.Velocity); err != nil {
		return fmt.Errorf("%w: %w", ErrSpectrum, err)
	}
	for i, e := range s.Error {
		if !(e > 0) || math.IsInf(e, 1) {
			return fmt.Errorf("%w: error %v at channel %d", ErrSpectrum, e, i)
		}
	}
	for _, iv := range append(append([]Interval(nil), s.SignalRanges...), s.NoiseSpikeRanges...) {
		if iv.Lo > iv.Hi {
			return fmt.Errorf("%w: interval [%d, %d)", ErrSpectrum, iv.Lo, iv.Hi)
		}
	}
	return nil
}

// channelErrors returns the per-channel errors, broadcasting a single value.
func (s Spectrum) channelErrors() []float64 {
	if len(s.Error) == len(s.Intensity) {
		return s.Error
	}
	out := make([]float64, len(s.Intensity))
	for i := range out {
		out[i] = s.Error[0]
	}
	return out
}
