// Package metrics counts filter invocations in Prometheus form. procfilter
// runs once per message, so the samples are written to a textfile for the
// node exporter instead of being served.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tkingovr/procfilter/api"
)

// Recorder holds the procfilter metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	Invocations *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	ExitCodes   *prometheus.CounterVec
}

// New creates a recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		Invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procfilter_filter_invocations_total",
				Help: "Total number of filter invocations by verdict",
			},
			[]string{"filter", "verdict"},
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "procfilter_filter_duration_seconds",
				Help:    "Duration of filter invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"filter"},
		),
		ExitCodes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procfilter_filter_exit_codes_total",
				Help: "Total number of filter exits by status",
			},
			[]string{"filter", "code"},
		),
	}
}

// Write records one invocation. It satisfies the chain's recorder interface.
func (r *Recorder) Write(_ context.Context, rec *api.AuditRecord) error {
	r.Invocations.WithLabelValues(rec.Filter, string(rec.Verdict)).Inc()
	r.Duration.WithLabelValues(rec.Filter).Observe(rec.Duration.Seconds())
	if rec.ExitCode >= 0 {
		r.ExitCodes.WithLabelValues(rec.Filter, fmt.Sprint(rec.ExitCode)).Inc()
	}
	return nil
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// WriteTextfile writes all samples to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
