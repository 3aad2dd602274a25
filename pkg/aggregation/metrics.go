// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// prometheusRegisterer is prometheus.Registerer, named locally so callers
// reading WithSelfMetrics don't need to chase the import. It lets
// WithSelfMetrics accept prometheus.DefaultRegisterer or a test-local
// prometheus.NewRegistry() interchangeably.
type prometheusRegisterer = prometheus.Registerer

// selfMetrics is the engine's own Prometheus instrumentation: how many
// series are created, how often capacity is refused, how many cycle
// boundaries are crossed and how many aggregates each boundary emits. This is the engine observing itself, distinct from any
// metric value it aggregates on behalf of a caller.
type selfMetrics struct {
	seriesCreated   *prometheus.CounterVec
	capacityRefused *prometheus.CounterVec
	cycleBoundaries *prometheus.CounterVec
	cycleAggregates *prometheus.HistogramVec
}

func newSelfMetrics(reg prometheusRegisterer) *selfMetrics {
	factory := promauto.With(reg)
	return &selfMetrics{
		seriesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ccmetricsagg",
			Name:      "series_created_total",
			Help:      "Number of series created in the directory, by metric id.",
		}, []string{"metric_id"}),
		capacityRefused: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ccmetricsagg",
			Name:      "capacity_refused_total",
			Help:      "Number of GetOrCreateSeries calls refused by a capacity limit, by metric id.",
		}, []string{"metric_id"}),
		cycleBoundaries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ccmetricsagg",
			Name:      "cycle_boundaries_total",
			Help:      "Number of StartOrCycle boundaries crossed, by cycle name.",
		}, []string{"cycle"}),
		cycleAggregates: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ccmetricsagg",
			Name:      "cycle_aggregates_emitted",
			Help:      "Number of aggregates emitted per cycle boundary, by cycle name.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"cycle"}),
	}
}

func (m *selfMetrics) observeSeriesCreated(metricID string) {
	m.seriesCreated.WithLabelValues(metricID).Inc()
}

func (m *selfMetrics) observeError(metricID string, err error) {
	if _, ok := err.(*CapacityExceededError); ok {
		m.capacityRefused.WithLabelValues(metricID).Inc()
	}
}

func (m *selfMetrics) observeCycleBoundary(cycle CycleKind, emitted int) {
	m.cycleBoundaries.WithLabelValues(cycle.String()).Inc()
	m.cycleAggregates.WithLabelValues(cycle.String()).Observe(float64(emitted))
}
