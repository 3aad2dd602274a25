// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregation

import (
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
)

// Sink receives aggregates as they are produced by a cycle boundary.
// Manager.PublishSummary calls Publish synchronously, once per aggregate, so
// a slow Publish delays it; Publish is expected to be fast (buffer and hand
// off) the way the teacher's nats.Client.Publish is.
type Sink interface {
	Publish(agg Aggregate) error
}

// NopSink discards everything published to it. Useful as a Manager default
// and in tests that only care about the returned AggregationSummary.
type NopSink struct{}

func (NopSink) Publish(Aggregate) error { return nil }

// Manager owns a SeriesDirectory and the three cycle state machines layered
// on top of it (spec §4.4/§4.5). It is the single entry point production
// code is expected to depend on.
type Manager struct {
	dir    *SeriesDirectory
	cycles [numCycles]*cycleState
	sink   Sink
	m      *selfMetrics
}

// ManagerOption configures a Manager at construction time.
type ManagerOption func(*Manager)

// WithSink overrides the Manager's default no-op Sink.
func WithSink(sink Sink) ManagerOption {
	return func(m *Manager) { m.sink = sink }
}

// WithSelfMetrics registers the Manager's internal Prometheus
// instrumentation (series/capacity/cycle counters and a per-boundary
// emitted-aggregates histogram) on reg.
func WithSelfMetrics(reg prometheusRegisterer) ManagerOption {
	return func(m *Manager) { m.m = newSelfMetrics(reg) }
}

// NewManager returns a Manager with the Default cycle already Active(now,
// nil) -- spec §4.4: "The Default cycle begins in Active state as soon as
// the engine starts; no explicit activation call is required."
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		dir:  NewSeriesDirectory(),
		sink: NopSink{},
	}
	for i := range m.cycles {
		m.cycles[i] = &cycleState{}
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cycles[Default].active = true
	m.cycles[Default].start = time.Now()
	return m
}

// GetOrCreateSeries returns the canonical Series for (metricID, dimValues),
// creating it (and, for a brand-new metric id, its schema) if necessary. A
// newly created series is retroactively enrolled into every currently
// Active cycle whose filter admits it, so that a series created after a
// cycle has already started still participates in that cycle's next
// boundary (spec Scenario 1).
func (m *Manager) GetOrCreateSeries(metricID string, dimValues []string, reg *MetricRegistration) (*Series, error) {
	s, created, err := m.dir.GetOrCreate(metricID, dimValues, reg)
	if err != nil {
		if m.m != nil {
			m.m.observeError(metricID, err)
		}
		return nil, err
	}
	if created {
		if m.m != nil {
			m.m.observeSeriesCreated(metricID)
		}
		for i := range m.cycles {
			cs := m.cycles[i]
			cs.mu.Lock()
			active, filter := cs.active, cs.filter
			cs.mu.Unlock()
			if !active {
				continue
			}
			admitted, vf := true, ValueFilter(nil)
			if filter != nil {
				admitted, vf = filter.Admits(s)
			}
			if admitted {
				s.installIfAbsent(CycleKind(i), vf)
			}
		}
	}
	return s, nil
}

// TryTrack routes v into series identified by (metricID, dimValues),
// creating the series on first use. It reports false instead of an error
// when the series could not be created due to a capacity limit, matching
// spec §4.3's "TryTrack" contract for hot call sites that cannot afford to
// handle an error.
func (m *Manager) TryTrack(metricID string, dimValues []string, v float64) bool {
	s, err := m.GetOrCreateSeries(metricID, dimValues, nil)
	if err != nil {
		return false
	}
	s.Track(v)
	return true
}

// Track routes v into series identified by (metricID, dimValues), creating
// it (with reg, if non-nil and the series is new) on first use.
func (m *Manager) Track(metricID string, dimValues []string, reg *MetricRegistration, v float64) error {
	s, err := m.GetOrCreateSeries(metricID, dimValues, reg)
	if err != nil {
		return err
	}
	s.Track(v)
	return nil
}

// StartOrCycle is the single state-transition operation for a cycle (spec
// §4.4/§4.5), the Default cycle included: it transitions Inactive -> Active(now, filter),
// or -- if already Active -- snapshots every currently enrolled series,
// re-evaluates the (possibly new) filter against every series in the
// directory, and begins a new period with the surviving/newly admitted
// membership. now is supplied by the caller rather than taken from
// time.Now() so Custom/QuickPulse cycles are deterministically testable.
func (m *Manager) StartOrCycle(cycle CycleKind, now time.Time, filter Filter) AggregationSummary {
	cs := m.cycles[cycle]
	cs.mu.Lock()
	wasActive, start := cs.active, cs.start
	cs.active = true
	cs.start = now
	cs.filter = filter
	cs.mu.Unlock()

	var summary AggregationSummary
	if !wasActive {
		// Fresh activation: nothing to snapshot, just enroll whoever the
		// filter admits right now.
		for _, s := range m.dir.AllSeries() {
			admitted, vf := true, ValueFilter(nil)
			if filter != nil {
				admitted, vf = filter.Admits(s)
			}
			if admitted {
				s.installIfAbsent(cycle, vf)
			}
		}
		if m.m != nil {
			m.m.observeCycleBoundary(cycle, 0)
		}
		return summary
	}

	for _, s := range m.dir.AllSeries() {
		admitted, vf := true, ValueFilter(nil)
		if filter != nil {
			admitted, vf = filter.Admits(s)
		}
		agg, nonIdentity, existed := s.snapAndContinue(cycle, start, now, admitted, vf)
		if !existed {
			if admitted {
				s.installIfAbsent(cycle, vf)
			}
			continue
		}
		summary.add(agg, nonIdentity)
	}

	if m.m != nil {
		m.m.observeCycleBoundary(cycle, len(summary.NonPersistentAggregates)+len(summary.PersistentAggregates))
	}
	return summary
}

// Stop deactivates cycle, snapshotting and removing every series currently
// enrolled in it. The Default cycle is never stopped by application code in
// normal operation, but Stop accepts any CycleKind for symmetry and for
// orderly shutdown.
func (m *Manager) Stop(cycle CycleKind, now time.Time) AggregationSummary {
	cs := m.cycles[cycle]
	cs.mu.Lock()
	start := cs.start
	cs.active = false
	cs.filter = nil
	cs.mu.Unlock()

	var summary AggregationSummary
	for _, s := range m.dir.AllSeries() {
		agg, nonIdentity, existed := s.snapAndRemove(cycle, start, now)
		if existed {
			summary.add(agg, nonIdentity)
		}
	}
	return summary
}

// Flush forces a boundary on cycle at now if it is Active: it drains the
// cycle the same way StartOrCycle does, reactivating it with the same filter
// it already had, so the next period starts at now. It returns the summary
// and does not hand the aggregates to the Sink; PublishSummary does that.
// On an Inactive cycle it returns an empty summary.
func (m *Manager) Flush(cycle CycleKind, now time.Time) AggregationSummary {
	cs := m.cycles[cycle]
	cs.mu.Lock()
	active, filter := cs.active, cs.filter
	cs.mu.Unlock()
	if !active {
		return AggregationSummary{}
	}
	return m.StartOrCycle(cycle, now, filter)
}

// PublishSummary hands every aggregate in summary to the Manager's Sink, in
// non-persistent-then-persistent order. Errors from the sink are logged,
// not returned: a single failed publish must not block the others.
func (m *Manager) PublishSummary(summary AggregationSummary) {
	for _, agg := range summary.all() {
		if err := m.sink.Publish(agg); err != nil {
			cclog.Errorf("[AGGREGATOR]> sink publish failed for metric %q: %s", agg.MetricID, err.Error())
		}
	}
}

// ResetAggregation resets the Default-cycle kernel of the given series to
// its identity state. A no-op if the series has no Default-cycle kernel
// installed.
func (m *Manager) ResetAggregation(s *Series) {
	s.ResetAggregation()
}

// Directory exposes the Manager's underlying SeriesDirectory for
// introspection (httpapi) and testing.
func (m *Manager) Directory() *SeriesDirectory { return m.dir }
