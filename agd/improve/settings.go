package improve

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-gauss/gauss"
)

// ErrSettings reports an invalid Settings value.
var ErrSettings = errors.New("improve: invalid settings")

// Settings controls the improvement loop. The zero value is not useful;
// start from DefaultSettings.
type Settings struct {
	// RefitNegResPeak enables the negative-residual check.
	RefitNegResPeak bool
	// RefitBroad enables the FWHM range and broad-component checks.
	RefitBroad bool
	// RefitBlended enables the blended-component check.
	RefitBlended bool

	// MinFWHM and MaxFWHM bound accepted widths in channels. MaxFWHM 0 or
	// +Inf means unbounded.
	MinFWHM, MaxFWHM float64

	// SNR is the threshold for residual peaks, SNRFit the minimum
	// amplitude of a fitted component and SNRNegative the depth of a
	// negative residual, all in units of the noise.
	SNR, SNRFit, SNRNegative float64
	// Significance is the minimum integrated-intensity significance.
	Significance float64

	// RChi2Limit is the reduced chi-square an accepted fit must reach.
	RChi2Limit float64
	// MaxAmpFactor scales the data maximum into the amplitude bound.
	MaxAmpFactor float64
	// FWHMFactor flags the broadest component when it exceeds the next
	// broadest by this factor.
	FWHMFactor float64
	// SeparationFactor flags a pair as blended when the mean separation
	// is below this factor times the smaller FWHM.
	SeparationFactor float64

	// ExcludeMeansOutsideChannelRange drops components centred outside
	// the velocity axis.
	ExcludeMeansOutsideChannelRange bool
	// MinPValue is the F-test p-value below which the weakest component
	// counts as significant.
	MinPValue float64
	// MaxNComps caps the component count; 0 means unlimited.
	MaxNComps int

	// MaxIterations caps the structural loop.
	MaxIterations int
	// RejectUnconverged turns a fit that ends without converging, whether
	// stable or out of iterations, into ErrQualityRejected.
	RejectUnconverged bool
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	const snr = 3
	return Settings{
		RefitNegResPeak:                 true,
		RefitBroad:                      true,
		RefitBlended:                    true,
		MinFWHM:                         1,
		MaxFWHM:                         math.Inf(1),
		SNR:                             snr,
		SNRFit:                          snr / 2.0,
		SNRNegative:                     snr,
		Significance:                    5,
		RChi2Limit:                      1.5,
		MaxAmpFactor:                    1.1,
		FWHMFactor:                      2,
		SeparationFactor:                2 / gauss.StdToFWHM,
		ExcludeMeansOutsideChannelRange: true,
		MinPValue:                       0.01,
		MaxIterations:                   20,
	}
}

// Validate checks value ranges.
func (s Settings) Validate() error {
	switch {
	case s.MinFWHM < 0:
		return fmt.Errorf("%w: min_fwhm %v", ErrSettings, s.MinFWHM)
	case s.MaxFWHM < 0 || math.IsNaN(s.MaxFWHM):
		return fmt.Errorf("%w: max_fwhm %v", ErrSettings, s.MaxFWHM)
	case s.hasMaxFWHM() && s.MaxFWHM < s.MinFWHM:
		return fmt.Errorf("%w: max_fwhm %v below min_fwhm %v", ErrSettings, s.MaxFWHM, s.MinFWHM)
	case !(s.SNR > 0):
		return fmt.Errorf("%w: snr %v", ErrSettings, s.SNR)
	case s.SNRFit < 0 || s.SNRNegative < 0 || s.Significance < 0:
		return fmt.Errorf("%w: negative threshold", ErrSettings)
	case !(s.RChi2Limit > 0):
		return fmt.Errorf("%w: rchi2_limit %v", ErrSettings, s.RChi2Limit)
	case !(s.MaxAmpFactor > 0):
		return fmt.Errorf("%w: max_amp_factor %v", ErrSettings, s.MaxAmpFactor)
	case !(s.FWHMFactor > 1):
		return fmt.Errorf("%w: fwhm_factor %v", ErrSettings, s.FWHMFactor)
	case !(s.SeparationFactor > 0):
		return fmt.Errorf("%w: separation_factor %v", ErrSettings, s.SeparationFactor)
	case s.MinPValue < 0 || s.MinPValue > 1:
		return fmt.Errorf("%w: min_pvalue %v", ErrSettings, s.MinPValue)
	case s.MaxNComps < 0:
		return fmt.Errorf("%w: max_ncomps %d", ErrSettings, s.MaxNComps)
	case s.MaxIterations < 1:
		return fmt.Errorf("%w: max_iterations %d", ErrSettings, s.MaxIterations)
	}
	return nil
}

func (s Settings) hasMaxFWHM() bool { return s.MaxFWHM > 0 && !math.IsInf(s.MaxFWHM, 1) }
