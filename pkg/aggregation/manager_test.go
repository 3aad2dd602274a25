// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregation

import (
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink collects every published aggregate for inspection.
type recordingSink struct {
	published []Aggregate
}

func (r *recordingSink) Publish(agg Aggregate) error {
	r.published = append(r.published, agg)
	return nil
}

func TestScenarioBasicMeasurement(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Track("Ducks Sold", []string{"Purple"}, &MetricRegistration{DimensionNames: []string{"Color"}}, 42))

	now := m.cycles[Default].start.Add(60 * time.Second)
	summary := m.StartOrCycle(Default, now, nil)

	require.Len(t, summary.NonPersistentAggregates, 1)
	agg := summary.NonPersistentAggregates[0]
	assert.Equal(t, "Ducks Sold", agg.MetricID)
	assert.Equal(t, "Purple", agg.Dimensions["Color"])
	assert.EqualValues(t, 1, agg.Measurement.Count)
	assert.Equal(t, 42.0, agg.Measurement.Sum)
	assert.Equal(t, 42.0, agg.Measurement.Min)
	assert.Equal(t, 42.0, agg.Measurement.Max)
	assert.Equal(t, 0.0, agg.Measurement.StdDev)
	assert.Equal(t, int64(60000), agg.PeriodDuration.Milliseconds())
}

func TestScenarioAccumulatorPersistence(t *testing.T) {
	m := NewManager()
	reg := &MetricRegistration{Config: &SeriesConfig{KernelKind: Accumulator}}
	require.NoError(t, m.Track("Items", nil, reg, 1))
	require.NoError(t, m.Track("Items", nil, reg, 1))
	require.NoError(t, m.Track("Items", nil, reg, -1))

	t0 := m.cycles[Default].start
	t1 := t0.Add(60 * time.Second)
	summary := m.StartOrCycle(Default, t1, nil)
	require.Len(t, summary.PersistentAggregates, 1)
	assert.Equal(t, 1.0, summary.PersistentAggregates[0].Accumulator.Sum)
	assert.EqualValues(t, 3, summary.PersistentAggregates[0].Accumulator.Count)

	// Cycling again with no further tracks must still report the persisted state.
	t2 := t1.Add(60 * time.Second)
	summary2 := m.StartOrCycle(Default, t2, nil)
	require.Len(t, summary2.PersistentAggregates, 1)
	assert.Equal(t, 1.0, summary2.PersistentAggregates[0].Accumulator.Sum)
	assert.EqualValues(t, 3, summary2.PersistentAggregates[0].Accumulator.Count)

	s, _, err := m.dir.GetOrCreate("Items", nil, nil)
	require.NoError(t, err)
	m.ResetAggregation(s)

	t3 := t2.Add(60 * time.Second)
	summary3 := m.StartOrCycle(Default, t3, nil)
	assert.Empty(t, summary3.PersistentAggregates, "identity-state accumulators must not be reported")
}

func TestScenarioCapacityCap(t *testing.T) {
	m := NewManager()
	reg := &MetricRegistration{Config: &SeriesConfig{SeriesCountLimit: 2}}

	s, err := m.GetOrCreateSeries("M", []string{"a"}, reg)
	require.NoError(t, err)
	s.Track(1)

	s, err = m.GetOrCreateSeries("M", []string{"b"}, reg)
	require.NoError(t, err)
	s.Track(1)

	_, err = m.GetOrCreateSeries("M", []string{"c"}, reg)
	assert.Error(t, err)

	_, exists := m.dir.Lookup("M", []string{"c"})
	assert.False(t, exists, "a refused series must not exist afterwards")
}

func TestScenarioConfigurationMismatch(t *testing.T) {
	m := NewManager()
	accReg := &MetricRegistration{Config: &SeriesConfig{KernelKind: Accumulator}}
	s, err := m.GetOrCreateSeries("X", nil, accReg)
	require.NoError(t, err)
	require.Equal(t, Accumulator, s.Config().KernelKind)

	measReg := &MetricRegistration{Config: &SeriesConfig{KernelKind: Measurement}}
	_, err = m.GetOrCreateSeries("X", nil, measReg)
	var mismatch *ConfigurationMismatchError
	assert.ErrorAs(t, err, &mismatch)

	again, err := m.GetOrCreateSeries("X", nil, nil)
	require.NoError(t, err)
	assert.Same(t, s, again)
	assert.Equal(t, Accumulator, again.Config().KernelKind)
}

func TestScenarioCustomCycleVirtualTime(t *testing.T) {
	m := NewManager()
	t0 := time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)

	empty := m.StartOrCycle(Custom, t0, nil)
	assert.Empty(t, empty.NonPersistentAggregates)
	assert.Empty(t, empty.PersistentAggregates)

	require.NoError(t, m.Track("flops", nil, nil, 11))
	require.NoError(t, m.Track("flops", nil, nil, 12))
	require.NoError(t, m.Track("flops", nil, nil, 13))

	t1 := t0.Add(60 * time.Second)
	summary := m.StartOrCycle(Custom, t1, nil)
	require.Len(t, summary.NonPersistentAggregates, 1)
	agg := summary.NonPersistentAggregates[0]
	assert.EqualValues(t, 3, agg.Measurement.Count)
	assert.Equal(t, 36.0, agg.Measurement.Sum)
	assert.Equal(t, 11.0, agg.Measurement.Min)
	assert.Equal(t, 13.0, agg.Measurement.Max)
	assert.InDelta(t, math.Sqrt(2.0/3.0), agg.Measurement.StdDev, 1e-9)
	assert.Equal(t, t0, agg.PeriodStart)
	assert.Equal(t, int64(60000), agg.PeriodDuration.Milliseconds())
}

func TestScenarioNumericClamp(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Track("noisy", nil, nil, math.NaN()))
	require.NoError(t, m.Track("noisy", nil, nil, math.Inf(1)))
	require.NoError(t, m.Track("noisy", nil, nil, math.Inf(-1)))

	now := m.cycles[Default].start.Add(time.Minute)
	summary := m.StartOrCycle(Default, now, nil)
	require.Len(t, summary.NonPersistentAggregates, 1)
	agg := summary.NonPersistentAggregates[0]
	assert.EqualValues(t, 3, agg.Measurement.Count)
	assert.Equal(t, 0.0, agg.Measurement.Sum)
	assert.Equal(t, -math.MaxFloat64, agg.Measurement.Min)
	assert.Equal(t, math.MaxFloat64, agg.Measurement.Max)
}

func TestSeriesCreatedAfterCycleActivationStillEnrolled(t *testing.T) {
	m := NewManager()
	t0 := time.Now()
	m.StartOrCycle(Custom, t0, nil)

	// Series created after the cycle is already Active must still be
	// retroactively enrolled, per the engine's registration contract.
	require.NoError(t, m.Track("late", nil, nil, 5))

	t1 := t0.Add(time.Minute)
	summary := m.StartOrCycle(Custom, t1, nil)
	require.Len(t, summary.NonPersistentAggregates, 1)
	assert.Equal(t, "late", summary.NonPersistentAggregates[0].MetricID)
}

// admitOnlyFilter admits a single metric id and otherwise rejects everything.
type admitOnlyFilter struct{ metricID string }

func (f admitOnlyFilter) Admits(s *Series) (bool, ValueFilter) {
	return s.MetricID() == f.metricID, nil
}

func TestFilterControlsCycleMembership(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Track("keep", nil, nil, 1))
	require.NoError(t, m.Track("drop", nil, nil, 1))

	t0 := time.Now()
	m.StartOrCycle(Custom, t0, admitOnlyFilter{metricID: "keep"})

	// Only tracked after the filter has enrolled "keep" into the Custom
	// cycle -- a track before enrollment has nowhere to land.
	require.NoError(t, m.Track("keep", nil, nil, 2))
	require.NoError(t, m.Track("drop", nil, nil, 2))

	t1 := t0.Add(time.Minute)
	summary := m.StartOrCycle(Custom, t1, admitOnlyFilter{metricID: "keep"})
	require.Len(t, summary.NonPersistentAggregates, 1)
	assert.Equal(t, "keep", summary.NonPersistentAggregates[0].MetricID)
}

func TestStopSnapshotsAndClearsSlots(t *testing.T) {
	m := NewManager()
	t0 := time.Now()
	m.StartOrCycle(Custom, t0, nil)
	require.NoError(t, m.Track("m", nil, nil, 7))

	t1 := t0.Add(time.Minute)
	summary := m.Stop(Custom, t1)
	require.Len(t, summary.NonPersistentAggregates, 1)

	s, _, err := m.dir.GetOrCreate("m", nil, nil)
	require.NoError(t, err)
	assert.False(t, s.hasSlot(Custom))
}

func TestWithSelfMetricsRegistersOnceAndObservesActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	// WithSelfMetrics must register its collectors on reg itself rather
	// than on prometheus.DefaultRegisterer; constructing two Managers
	// against two distinct registries must not panic either.
	m := NewManager(WithSelfMetrics(reg))
	require.NoError(t, m.Track("m", nil, nil, 1))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["ccmetricsagg_series_created_total"])

	other := prometheus.NewRegistry()
	assert.NotPanics(t, func() { NewManager(WithSelfMetrics(other)) })
}

func TestFlushCyclesActiveCycleWithItsOwnFilter(t *testing.T) {
	m := NewManager()
	t0 := time.Now()
	m.StartOrCycle(Custom, t0, admitOnlyFilter{metricID: "keep"})
	require.NoError(t, m.Track("keep", nil, nil, 1))
	require.NoError(t, m.Track("drop", nil, nil, 1))

	summary := m.Flush(Custom, t0.Add(time.Minute))
	require.Len(t, summary.NonPersistentAggregates, 1)
	assert.Equal(t, "keep", summary.NonPersistentAggregates[0].MetricID)
}

func TestFlushOnInactiveCycleIsNoop(t *testing.T) {
	m := NewManager()
	summary := m.Flush(Custom, time.Now())
	assert.Empty(t, summary.NonPersistentAggregates)
	assert.Empty(t, summary.PersistentAggregates)
}

func TestPublishSummaryHandsAggregatesToSink(t *testing.T) {
	sink := &recordingSink{}
	m := NewManager(WithSink(sink))
	require.NoError(t, m.Track("m", nil, nil, 1))

	summary := m.StartOrCycle(Default, m.cycles[Default].start.Add(time.Minute), nil)
	m.PublishSummary(summary)

	require.Len(t, sink.published, 1)
	assert.Equal(t, "m", sink.published[0].MetricID)
}
