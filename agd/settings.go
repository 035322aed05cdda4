package agd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cwbudde/algo-gauss/agd/improve"
)

// ErrSettings reports an invalid Settings value.
var ErrSettings = errors.New("agd: invalid settings")

// Phase selects one- or two-phase decomposition.
type Phase int

const (
	PhaseOne Phase = iota + 1
	PhaseTwo
)

func (p Phase) String() string {
	switch p {
	case PhaseOne:
		return "one"
	case PhaseTwo:
		return "two"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// ParsePhase parses "one" or "two".
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "one", "1":
		return PhaseOne, nil
	case "two", "2":
		return PhaseTwo, nil
	}
	return 0, fmt.Errorf("%w: unknown phase %q", ErrSettings, s)
}

// Settings configures Decompose.
type Settings struct {
	// Alpha1 and Alpha2 are the smoothing scales in channels of phase one
	// and phase two. Alpha2 is only used by PhaseTwo.
	Alpha1, Alpha2 float64
	Phase          Phase

	// SNRThresh and SNR2Thresh are the guessing thresholds on the data
	// and on its second derivative.
	SNRThresh, SNR2Thresh float64

	// PerformFinalFit refines the candidates by least squares. Without it
	// the result only carries the initial guesses.
	PerformFinalFit bool

	// ImproveFitting runs the improvement loop with Improve.
	ImproveFitting bool
	Improve        improve.Settings

	// Plot keeps intermediate series in Result.Diagnostics.
	Plot bool
}

// SettingsOption mutates a Settings value.
type SettingsOption func(*Settings)

// DefaultSettings returns one-phase settings with improvement enabled. The
// smoothing scales are unset; they are data dependent and come from
// training.
func DefaultSettings() Settings {
	imp := improve.DefaultSettings()
	return Settings{
		Phase:           PhaseOne,
		SNRThresh:       imp.SNR,
		SNR2Thresh:      imp.SNR,
		PerformFinalFit: true,
		ImproveFitting:  true,
		Improve:         imp,
	}
}

// WithAlpha1 sets the phase-one smoothing scale.
func WithAlpha1(alpha float64) SettingsOption {
	return func(s *Settings) {
		if alpha > 0 {
			s.Alpha1 = alpha
		}
	}
}

// WithTwoPhase enables phase two at smoothing scale alpha2.
func WithTwoPhase(alpha2 float64) SettingsOption {
	return func(s *Settings) {
		if alpha2 > 0 {
			s.Alpha2 = alpha2
			s.Phase = PhaseTwo
		}
	}
}

// WithSNR sets both guessing thresholds.
func WithSNR(snr, snr2 float64) SettingsOption {
	return func(s *Settings) {
		s.SNRThresh = snr
		s.SNR2Thresh = snr2
	}
}

// WithImprove enables the improvement loop with set.
func WithImprove(set improve.Settings) SettingsOption {
	return func(s *Settings) {
		s.ImproveFitting = true
		s.Improve = set
	}
}

// WithoutImprove disables the improvement loop.
func WithoutImprove() SettingsOption {
	return func(s *Settings) { s.ImproveFitting = false }
}

// WithoutFinalFit stops after guessing.
func WithoutFinalFit() SettingsOption {
	return func(s *Settings) { s.PerformFinalFit = false }
}

// WithPlot keeps diagnostics.
func WithPlot(enabled bool) SettingsOption {
	return func(s *Settings) { s.Plot = enabled }
}

// ApplySettingsOptions applies zero or more options to the defaults.
func ApplySettingsOptions(opts ...SettingsOption) Settings {
	s := DefaultSettings()
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// Validate checks that s can drive a decomposition.
func (s Settings) Validate() error {
	if !(s.Alpha1 > 0) {
		return fmt.Errorf("%w: alpha1 %v", ErrSettings, s.Alpha1)
	}
	switch s.Phase {
	case PhaseOne:
	case PhaseTwo:
		if !(s.Alpha2 > 0) {
			return fmt.Errorf("%w: alpha2 %v", ErrSettings, s.Alpha2)
		}
	default:
		return fmt.Errorf("%w: phase %v", ErrSettings, s.Phase)
	}
	if s.SNRThresh < 0 {
		return fmt.Errorf("%w: snr_thresh %v", ErrSettings, s.SNRThresh)
	}
	if s.ImproveFitting {
		if err := s.Improve.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrSettings, err)
		}
	}
	return nil
}
