// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregation

import (
	"strings"
	"sync"
	"time"
)

type cycleSlot struct {
	k  kernel
	vf ValueFilter
}

// Series is one data stream: its identity (metric id + dimension values),
// its configuration, and up to three live kernels -- one per active cycle.
// A nil kernel slot means that cycle is inactive for this series.
//
// Series is created lazily by SeriesDirectory.GetOrCreate and lives until
// the owning Manager is destroyed; it is never evicted.
type Series struct {
	metricID  string
	dimValues []string
	schema    *metricSchema

	mu    sync.RWMutex
	slots [numCycles]cycleSlot
}

// MetricID returns the series' metric id.
func (s *Series) MetricID() string { return s.metricID }

// DimensionValues returns the series' ordered dimension values. The
// returned slice must not be mutated.
func (s *Series) DimensionValues() []string { return s.dimValues }

// Config returns the frozen configuration shared by every series for this
// metric id.
func (s *Series) Config() SeriesConfig { return s.schema.cfg }

// Track routes v into every cycle currently active for this series. A
// cycle's kernel is active iff the Manager's cycle state was active and
// its filter admitted this series at the cycle's last activation/cycling
// point.
func (s *Series) Track(v float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.slots {
		slot := &s.slots[i]
		if slot.k == nil {
			continue
		}
		vv := v
		if slot.vf != nil {
			ok := false
			vv, ok = slot.vf(vv)
			if !ok {
				continue
			}
		}
		slot.k.track(vv)
	}
}

// hasSlot reports whether this series currently has a live kernel for the
// given cycle.
func (s *Series) hasSlot(cycle CycleKind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots[cycle].k != nil
}

// installIfAbsent installs a fresh kernel (of the metric's configured
// kind) for the given cycle if one is not already present, recording vf as
// its value filter.
func (s *Series) installIfAbsent(cycle CycleKind, vf ValueFilter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot := &s.slots[cycle]
	if slot.k == nil {
		slot.k = newKernel(s.schema.cfg.KernelKind)
	}
	slot.vf = vf
}

// snapAndContinue snaps the kernel currently installed for cycle over
// [start, end]. If stillAdmitted is true the series keeps participating:
// a Measurement kernel is swapped for a fresh one (it resets every
// period); an Accumulator kernel is left in place, continuing to
// accumulate (it never resets on a cycle boundary). If stillAdmitted is
// false the slot is cleared. Returns (aggregate, hadNonIdentityState,
// existed).
func (s *Series) snapAndContinue(cycle CycleKind, start, end time.Time, stillAdmitted bool, vf ValueFilter) (Aggregate, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot := &s.slots[cycle]
	if slot.k == nil {
		return Aggregate{}, false, false
	}

	agg := s.decorate(slot.k.snapshot(start, end))
	nonIdentity := hasActivity(agg)

	if stillAdmitted {
		if slot.k.kind() == Measurement {
			slot.k = newKernel(Measurement)
		}
		slot.vf = vf
	} else {
		slot.k = nil
		slot.vf = nil
	}

	return agg, nonIdentity, true
}

// snapAndRemove snaps the kernel installed for cycle over [start, end] and
// clears the slot unconditionally. Used by Manager.Stop.
func (s *Series) snapAndRemove(cycle CycleKind, start, end time.Time) (Aggregate, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot := &s.slots[cycle]
	if slot.k == nil {
		return Aggregate{}, false, false
	}

	agg := s.decorate(slot.k.snapshot(start, end))
	nonIdentity := hasActivity(agg)
	slot.k = nil
	slot.vf = nil

	return agg, nonIdentity, true
}

// ResetAggregation resets the Default-cycle kernel to its identity state.
// It is semantically meaningful for Accumulators, whose state otherwise
// persists forever; calling it on a Measurement kernel just discards
// whatever has been tracked so far this period.
func (s *Series) ResetAggregation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot := &s.slots[Default]; slot.k != nil {
		slot.k.reset()
	}
}

// CurrentUnsafe is a best-effort read of the current aggregate state of
// cycle, for introspection. It returns (Aggregate{}, false) if no kernel is
// installed for that cycle: none was installed yet, or the slot was cleared
// by Stop or by a snap that no longer admitted the series. Right after a
// snap that kept the series, it reads the fresh (or, for an Accumulator,
// the continuing) kernel. Unlike snapAndContinue/snapAndRemove it never mutates
// kernel state, so callers must treat the result as statistical rather
// than exact -- a concurrent track may land between the read and its use.
func (s *Series) CurrentUnsafe(cycle CycleKind, asOf time.Time) (Aggregate, bool) {
	s.mu.RLock()
	slot := s.slots[cycle]
	s.mu.RUnlock()
	if slot.k == nil {
		return Aggregate{}, false
	}
	return s.decorate(slot.k.snapshot(asOf, asOf)), true
}

// decorate fills in the identity fields of an Aggregate produced by a bare
// kernel.snapshot call: metric id, dimension map (split from the
// TelemetryContext.* pass-through per §6), and the advisory
// RestrictToNonnegativeIntegers flag.
func (s *Series) decorate(agg Aggregate) Aggregate {
	agg.MetricID = s.metricID
	agg.RestrictToNonnegativeIntegers = s.schema.cfg.RestrictToNonnegativeIntegers
	agg.Dimensions, agg.Context = s.schema.splitDimensions(s.dimValues)
	return agg
}

func hasActivity(agg Aggregate) bool {
	switch agg.Kind {
	case Measurement:
		return agg.Measurement != nil && agg.Measurement.Count > 0
	case Accumulator:
		return agg.Accumulator != nil && agg.Accumulator.Count > 0
	default:
		return false
	}
}

// splitDimensions maps each positional dimension value to its declared
// name, routing TelemetryContextPrefix-named dimensions into ctx instead
// of dims.
func (m *metricSchema) splitDimensions(values []string) (dims, ctx map[string]string) {
	dims = make(map[string]string, len(values))
	for i, v := range values {
		name := m.dimensionName(i)
		if strings.HasPrefix(name, TelemetryContextPrefix) {
			if ctx == nil {
				ctx = make(map[string]string)
			}
			ctx[strings.TrimPrefix(name, TelemetryContextPrefix)] = v
			continue
		}
		dims[name] = v
	}
	return dims, ctx
}
