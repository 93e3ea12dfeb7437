// Package metrics records the result of a renewal run as a node_exporter
// textfile so an existing Prometheus setup can alert on stale certificates.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ksyq12/nascert/internal/logger"
)

const namespace = "nascert"

// Recorder holds the gauges of one run.
type Recorder struct {
	registry   *prometheus.Registry
	lastRun    prometheus.Gauge
	lastResult prometheus.Gauge
	expiry     prometheus.Gauge
	// expiry is registered on the first known value so an unknown
	// expiry is absent from the textfile rather than 0
	expiryKnown bool
}

// NewRecorder creates a Recorder with its own registry so the textfile only
// contains nascert metrics.
func NewRecorder(domain string) *Recorder {
	labels := prometheus.Labels{"domain": domain}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_run_timestamp_seconds",
			Help:        "Unix time of the last update run.",
			ConstLabels: labels,
		}),
		lastResult: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_run_success",
			Help:        "1 if the last update run installed a new certificate, 0 otherwise.",
			ConstLabels: labels,
		}),
		expiry: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "certificate_expiry_timestamp_seconds",
			Help:        "Unix time at which the installed certificate expires.",
			ConstLabels: labels,
		}),
	}
	r.registry.MustRegister(r.lastRun, r.lastResult)
	return r
}

// Observe records a run finished at finished. A zero expiry leaves the
// expiry gauge out of the registry.
func (r *Recorder) Observe(finished time.Time, success bool, expiry time.Time) {
	r.lastRun.Set(float64(finished.Unix()))
	if success {
		r.lastResult.Set(1)
	} else {
		r.lastResult.Set(0)
	}
	if expiry.IsZero() {
		return
	}
	if !r.expiryKnown {
		r.registry.MustRegister(r.expiry)
		r.expiryKnown = true
	}
	r.expiry.Set(float64(expiry.Unix()))
}

// Gatherer exposes the registry, mainly for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteFile writes the metrics to path atomically.
func (r *Recorder) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	logger.Debug("Metrics written to %s", path)
	return nil
}
