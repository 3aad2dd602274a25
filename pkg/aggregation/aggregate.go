// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregation

import "time"

// Kind identifies which aggregation kernel produced an Aggregate.
type Kind int

const (
	// Measurement is the non-persistent kind: its kernel is replaced every cycle.
	Measurement Kind = iota
	// Accumulator is the persistent kind: its kernel survives across cycles.
	Accumulator
)

func (k Kind) String() string {
	switch k {
	case Measurement:
		return "measurement"
	case Accumulator:
		return "accumulator"
	default:
		return "unknown"
	}
}

// MeasurementData is the payload produced by a Measurement kernel snapshot.
type MeasurementData struct {
	Count  uint64
	Sum    float64
	Min    float64
	Max    float64
	StdDev float64
}

// AccumulatorData is the payload produced by an Accumulator kernel snapshot.
// Count is the number of track calls absorbed since the last reset.
type AccumulatorData struct {
	Sum   float64
	Min   float64
	Max   float64
	Count uint64
}

// Aggregate is an immutable snapshot produced by a kernel for a given
// period. Exactly one of Measurement or Accumulator is non-nil, matching
// Kind.
type Aggregate struct {
	MetricID string

	// Dimensions maps each dimension's name (or its "dimN" positional
	// placeholder when no name was registered) to its value, excluding
	// any dimension whose name carries the reserved "TelemetryContext."
	// prefix (those are routed into Context instead).
	Dimensions map[string]string

	// Context holds the values of reserved "TelemetryContext."-prefixed
	// dimensions, keyed by the suffix after the prefix.
	Context map[string]string

	PeriodStart    time.Time
	PeriodDuration time.Duration

	Kind Kind

	Measurement *MeasurementData
	Accumulator *AccumulatorData

	// RestrictToNonnegativeIntegers is carried through from the series
	// configuration for the sink's benefit; it does not alter storage.
	RestrictToNonnegativeIntegers bool
}

// AggregationIntervalMs is the reserved properties key carrying the period
// duration, in whole milliseconds, in the serialized wire shape (§6).
const AggregationIntervalMs = "_MS.AggregationIntervalMs"

// TelemetryContextPrefix marks a dimension name as a semantic pass-through
// into the emitted aggregate's Context map instead of an aggregation
// dimension.
const TelemetryContextPrefix = "TelemetryContext."
