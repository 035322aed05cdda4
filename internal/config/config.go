// Package config loads decomposition settings from YAML and the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/algo-gauss/agd"
	"github.com/cwbudde/algo-gauss/agd/improve"
)

// ErrConfig reports an unreadable or inconsistent configuration.
var ErrConfig = errors.New("config: invalid configuration")

// Config mirrors the settings file.
type Config struct {
	Alpha1   float64 `yaml:"alpha1"`
	Alpha2   float64 `yaml:"alpha2"`
	TwoPhase bool    `yaml:"two_phase"`
	// Phase is "one" or "two"; it wins over TwoPhase when set.
	Phase string `yaml:"phase"`

	// SNRThresh and SNR2Thresh default to Improve.SNR.
	SNRThresh  *float64 `yaml:"SNR_thresh"`
	SNR2Thresh *float64 `yaml:"SNR2_thresh"`

	UseNCPUs        int  `yaml:"use_ncpus"`
	Verbose         bool `yaml:"verbose"`
	Plot            bool `yaml:"plot"`
	PerformFinalFit bool `yaml:"perform_final_fit"`
	ImproveFitting  bool `yaml:"improve_fitting"`

	Improve ImproveConfig `yaml:"improve_fitting_dict"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// ImproveConfig holds the improvement loop settings. SNRFit and
// SNRNegative default to SNR/2 and SNR.
type ImproveConfig struct {
	RefitNegResPeak                 bool     `yaml:"refit_neg_res_peak"`
	RefitBroad                      bool     `yaml:"refit_broad"`
	RefitBlended                    bool     `yaml:"refit_blended"`
	MinFWHM                         float64  `yaml:"min_fwhm"`
	MaxFWHM                         *float64 `yaml:"max_fwhm"`
	SNR                             float64  `yaml:"snr"`
	SNRFit                          *float64 `yaml:"snr_fit"`
	SNRNegative                     *float64 `yaml:"snr_negative"`
	Significance                    float64  `yaml:"significance"`
	RChi2Limit                      float64  `yaml:"rchi2_limit"`
	MaxAmpFactor                    float64  `yaml:"max_amp_factor"`
	FWHMFactor                      float64  `yaml:"fwhm_factor"`
	SeparationFactor                float64  `yaml:"separation_factor"`
	ExcludeMeansOutsideChannelRange bool     `yaml:"exclude_means_outside_channel_range"`
	MinPValue                       float64  `yaml:"min_pvalue"`
	MaxNComps                       int      `yaml:"max_ncomps"`
	MaxIterations                   int      `yaml:"max_iterations"`
	RejectUnconverged               bool     `yaml:"reject_unconverged"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	imp := improve.DefaultSettings()
	return Config{
		PerformFinalFit: true,
		ImproveFitting:  true,
		Improve: ImproveConfig{
			RefitNegResPeak:                 imp.RefitNegResPeak,
			RefitBroad:                      imp.RefitBroad,
			RefitBlended:                    imp.RefitBlended,
			MinFWHM:                         imp.MinFWHM,
			SNR:                             imp.SNR,
			Significance:                    imp.Significance,
			RChi2Limit:                      imp.RChi2Limit,
			MaxAmpFactor:                    imp.MaxAmpFactor,
			FWHMFactor:                      imp.FWHMFactor,
			SeparationFactor:                imp.SeparationFactor,
			ExcludeMeansOutsideChannelRange: imp.ExcludeMeansOutsideChannelRange,
			MinPValue:                       imp.MinPValue,
			MaxIterations:                   imp.MaxIterations,
			RejectUnconverged:               imp.RejectUnconverged,
		},
		LogLevel: "info",
	}
}

// Load reads path, if non-empty, over the defaults and applies environment
// overrides. Unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes YAML over the defaults without consulting the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decode(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	floats := []struct {
		name string
		dst  *float64
	}{
		{"AGD_ALPHA1", &cfg.Alpha1},
		{"AGD_ALPHA2", &cfg.Alpha2},
	}
	for _, f := range floats {
		v := os.Getenv(f.name)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrConfig, f.name, err)
		}
		*f.dst = parsed
	}
	if v := os.Getenv("AGD_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: AGD_WORKERS: %w", ErrConfig, err)
		}
		cfg.UseNCPUs = n
	}
	if v := os.Getenv("AGD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

// Level returns the log level, debug when Verbose is set.
func (c *Config) Level() string {
	if c.Verbose {
		return "debug"
	}
	return c.LogLevel
}

// Settings converts the configuration into validated decomposition
// settings.
func (c *Config) Settings() (agd.Settings, error) {
	phase := agd.PhaseOne
	if c.TwoPhase {
		phase = agd.PhaseTwo
	}
	if strings.TrimSpace(c.Phase) != "" {
		p, err := agd.ParsePhase(c.Phase)
		if err != nil {
			return agd.Settings{}, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		phase = p
	}

	imp := c.Improve.settings()
	set := agd.Settings{
		Alpha1:          c.Alpha1,
		Alpha2:          c.Alpha2,
		Phase:           phase,
		SNRThresh:       or(c.SNRThresh, imp.SNR),
		SNR2Thresh:      or(c.SNR2Thresh, imp.SNR),
		PerformFinalFit: c.PerformFinalFit,
		ImproveFitting:  c.ImproveFitting,
		Improve:         imp,
		Plot:            c.Plot,
	}
	if err := set.Validate(); err != nil {
		return agd.Settings{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return set, nil
}

func (c ImproveConfig) settings() improve.Settings {
	return improve.Settings{
		RefitNegResPeak:                 c.RefitNegResPeak,
		RefitBroad:                      c.RefitBroad,
		RefitBlended:                    c.RefitBlended,
		MinFWHM:                         c.MinFWHM,
		MaxFWHM:                         or(c.MaxFWHM, math.Inf(1)),
		SNR:                             c.SNR,
		SNRFit:                          or(c.SNRFit, c.SNR/2),
		SNRNegative:                     or(c.SNRNegative, c.SNR),
		Significance:                    c.Significance,
		RChi2Limit:                      c.RChi2Limit,
		MaxAmpFactor:                    c.MaxAmpFactor,
		FWHMFactor:                      c.FWHMFactor,
		SeparationFactor:                c.SeparationFactor,
		ExcludeMeansOutsideChannelRange: c.ExcludeMeansOutsideChannelRange,
		MinPValue:                       c.MinPValue,
		MaxNComps:                       c.MaxNComps,
		MaxIterations:                   c.MaxIterations,
		RejectUnconverged:               c.RejectUnconverged,
	}
}

func or(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
