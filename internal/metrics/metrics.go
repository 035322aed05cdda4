// Package metrics exposes Prometheus collectors for batch decompositions.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors records per-spectrum observations. It satisfies
// batch.Observer.
type Collectors struct {
	spectra    *prometheus.CounterVec
	duration   prometheus.Histogram
	components prometheus.Counter
}

// New creates unregistered collectors.
func New() *Collectors {
	return &Collectors{
		spectra: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agd_spectra_total",
				Help: "Decomposed spectra, partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agd_spectrum_seconds",
				Help:    "Time spent decomposing one spectrum.",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
		),
		components: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agd_components_total",
				Help: "Gaussian components found since start.",
			},
		),
	}
}

// Register attaches the collectors to reg. Collectors already registered
// are skipped.
func (c *Collectors) Register(reg prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{c.spectra, c.duration, c.components} {
		if err := reg.Register(collector); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Observe records one spectrum.
func (c *Collectors) Observe(outcome string, elapsed time.Duration, components int) {
	c.spectra.WithLabelValues(outcome).Inc()
	if elapsed < 0 {
		elapsed = 0
	}
	c.duration.Observe(elapsed.Seconds())
	if components > 0 {
		c.components.Add(float64(components))
	}
}
