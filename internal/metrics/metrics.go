// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.13
//

// Package metrics exposes simulation progress as Prometheus metrics.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/mkhts/proximum"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles the run metrics. Its Observe methods match the simulation
// listener signatures and can be registered directly.
type Collector struct {
	gatherer prometheus.Gatherer

	Epochs        prometheus.Counter
	Skips         *prometheus.CounterVec
	RMSError      *prometheus.GaugeVec
	EpochDuration prometheus.Histogram
}

// NewCollector registers the run metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	epochs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "proximum_epochs_total",
		Help: "Number of completed simulation epochs.",
	})
	skips := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proximum_skips_total",
		Help: "Node updates skipped, labeled by estimator stage and reason.",
	}, []string{"stage", "reason"})
	rms := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "proximum_rms_error_meters",
		Help: "RMS position error after the latest epoch, labeled by estimate.",
	}, []string{"estimate"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "proximum_epoch_duration_seconds",
		Help:    "Wall time of one simulation epoch in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	for _, c := range []prometheus.Collector{epochs, skips, rms, duration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return &Collector{
		gatherer:      gatherer,
		Epochs:        epochs,
		Skips:         skips,
		RMSError:      rms,
		EpochDuration: duration,
	}, nil
}

// ObserveEpoch records the end of an epoch.
func (c *Collector) ObserveEpoch(ev proximum.EpochEvent) {
	if c == nil {
		return
	}
	c.Epochs.Inc()
	c.RMSError.WithLabelValues("kf").Set(ev.KFRMS)
	c.RMSError.WithLabelValues("ls").Set(ev.LSRMS)
	c.RMSError.WithLabelValues("asserted").Set(ev.AssertedRMS)
}

// ObserveSkip records one skipped node update.
func (c *Collector) ObserveSkip(ev proximum.SkipEvent) {
	if c == nil {
		return
	}
	c.Skips.WithLabelValues(string(ev.Stage), Reason(ev.Err)).Inc()
}

func (c *Collector) ObserveEpochDuration(d time.Duration) {
	if c == nil {
		return
	}
	c.EpochDuration.Observe(d.Seconds())
}

// Reason maps a skip error to a short label value.
func Reason(err error) string {
	switch {
	case errors.Is(err, proximum.ErrInsufficientCounterparts):
		return "insufficient_counterparts"
	case errors.Is(err, proximum.ErrCovarianceNotPSD):
		return "covariance_not_psd"
	case errors.Is(err, proximum.ErrTooFewMeasurements):
		return "too_few_measurements"
	case errors.Is(err, proximum.ErrSingularNormalEquations):
		return "singular_normal_equations"
	default:
		return "other"
	}
}

// WriteTextfile writes every gathered metric to path in the text exposition format.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.gatherer); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
