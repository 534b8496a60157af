// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vastplayer"

// Metrics holds all metrics for the VAST player. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Resolution metrics
	Resolutions     *prometheus.CounterVec
	WrapperHops     prometheus.Histogram
	ResolveDuration prometheus.Histogram

	// Tracking metrics
	TrackingEvents *prometheus.CounterVec
	Dispatches     *prometheus.CounterVec

	// Session metrics
	SessionsActive prometheus.Gauge
}

// NewMetrics creates a new metrics instance on a private registry
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.Resolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "vast_resolutions_total",
		Help:      "Total number of VAST resolutions by result",
	}, []string{"result"})

	m.WrapperHops = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "vast_wrapper_hops",
		Help:      "Number of wrapper documents followed per successful resolution",
		Buckets:   []float64{0, 1, 2, 3, 4, 5, 8},
	})

	m.ResolveDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "vast_resolve_duration_seconds",
		Help:      "Time to resolve a VAST URL into a model",
		Buckets:   prometheus.DefBuckets,
	})

	m.TrackingEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tracking_events_total",
		Help:      "Total number of tracking events fired by event name",
	}, []string{"event"})

	m.Dispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tracking_dispatches_total",
		Help:      "Total number of tracking URL dispatches by result",
	}, []string{"result"})

	m.SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "player_sessions_active",
		Help:      "Number of open playback sessions",
	})

	for _, c := range []prometheus.Collector{
		m.Resolutions,
		m.WrapperHops,
		m.ResolveDuration,
		m.TrackingEvents,
		m.Dispatches,
		m.SessionsActive,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// ObserveResolution records the outcome of one resolution.
func (m *Metrics) ObserveResolution(result string, hops int, took time.Duration) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(result).Inc()
	m.ResolveDuration.Observe(took.Seconds())
	if result == "ok" {
		m.WrapperHops.Observe(float64(hops))
	}
}

// ObserveEvent records one fired tracking event.
func (m *Metrics) ObserveEvent(event string) {
	if m == nil {
		return
	}
	m.TrackingEvents.WithLabelValues(event).Inc()
}

// ObserveDispatch records one tracking URL dispatch attempt.
func (m *Metrics) ObserveDispatch(result string) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(result).Inc()
}

// SessionOpened increments the open session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// SessionClosed decrements the open session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// GetGatherer returns the prometheus gatherer for metrics export
func (m *Metrics) GetGatherer() prometheus.Gatherer {
	if m != nil && m.registry != nil {
		return m.registry
	}
	return prometheus.DefaultGatherer
}

// GetRegisterer returns the prometheus registerer
func (m *Metrics) GetRegisterer() prometheus.Registerer {
	if m != nil && m.registry != nil {
		return m.registry
	}
	return prometheus.DefaultRegisterer
}
