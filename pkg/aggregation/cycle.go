// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregation

import (
	"sync"
	"time"
)

// CycleKind names one of the Manager's (at most three) concurrent
// aggregation cycles.
type CycleKind int

const (
	// Default is always active for the Manager's lifetime and is driven
	// by an external periodic invoker (nominally every 60s).
	Default CycleKind = iota
	// Custom is caller-driven and accepts a virtual `now`, enabling
	// deterministic testing.
	Custom
	// QuickPulse is semantically identical to Custom but reserved for a
	// live-metrics collaborator. Kept as a distinct named cycle rather than
	// folded into a generalized registry (see DESIGN.md Open Question).
	QuickPulse

	numCycles
)

func (c CycleKind) String() string {
	switch c {
	case Default:
		return "default"
	case Custom:
		return "custom"
	case QuickPulse:
		return "quickpulse"
	default:
		return "unknown"
	}
}

// ValueFilter is consulted per track call once a Filter has admitted a
// series into a cycle. It may drop or rewrite the tracked value.
type ValueFilter func(v float64) (float64, bool)

// Filter is consulted once per series at cycle activation/cycling time.
// If Admits returns false, the series does not participate in that cycle
// until the next activation/cycling call re-evaluates it. The returned
// ValueFilter, if non-nil, is then consulted on every subsequent track
// call for that series during the period.
type Filter interface {
	Admits(series *Series) (bool, ValueFilter)
}

// cycleState is the state machine described in spec §4.5/§5: Inactive, or
// Active(start, filter).
type cycleState struct {
	mu     sync.Mutex
	active bool
	start  time.Time
	filter Filter
}

// AggregationSummary is returned by Manager.StartOrCycle and Manager.Stop.
type AggregationSummary struct {
	// NonPersistentAggregates has one entry per (series, Measurement
	// kernel) that had at least one tracked value in the period.
	NonPersistentAggregates []Aggregate

	// PersistentAggregates has one entry per (series, Accumulator kernel)
	// that has non-identity state, regardless of whether anything was
	// tracked in this period.
	PersistentAggregates []Aggregate
}

func (s *AggregationSummary) add(agg Aggregate, nonIdentity bool) {
	if !nonIdentity {
		return
	}
	switch agg.Kind {
	case Measurement:
		s.NonPersistentAggregates = append(s.NonPersistentAggregates, agg)
	case Accumulator:
		s.PersistentAggregates = append(s.PersistentAggregates, agg)
	}
}

// all returns every aggregate in the summary, non-persistent first. Used
// by Manager.PublishSummary, which pushes them to the sink individually.
func (s AggregationSummary) all() []Aggregate {
	out := make([]Aggregate, 0, len(s.NonPersistentAggregates)+len(s.PersistentAggregates))
	out = append(out, s.NonPersistentAggregates...)
	out = append(out, s.PersistentAggregates...)
	return out
}
