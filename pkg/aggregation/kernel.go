// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregation

import (
	"math"
	"sync"
	"time"
)

// clamp maps non-finite inputs to a concrete finite value: NaN becomes 0,
// +Inf becomes +MaxFloat64, -Inf becomes -MaxFloat64. Applied once per
// track call, at the kernel boundary.
func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0.0
	}
	if math.IsInf(v, 1) {
		return math.MaxFloat64
	}
	if math.IsInf(v, -1) {
		return -math.MaxFloat64
	}
	return v
}

// kernel is the per-series state that absorbs tracked values. Snapshots
// taken at cycle boundaries must be consistent: the swap protocol in
// series.go guarantees no further track call lands in a detached kernel.
//
// Both variants use a short per-kernel lock rather than lock-free
// atomics/CAS; §9 of the design explicitly allows either, and it keeps the
// port simple without sacrificing the happened-before guarantees §5 asks
// for.
type kernel interface {
	track(v float64)
	snapshot(start, end time.Time) Aggregate
	reset()
	kind() Kind
}

// measurementKernel is the summary-statistics kernel: count, sum, sum of
// squares, min, max.
type measurementKernel struct {
	mu     sync.Mutex
	count  uint64
	sum    float64
	sumSq  float64
	min    float64
	max    float64
}

func newMeasurementKernel() *measurementKernel {
	return &measurementKernel{min: math.Inf(1), max: math.Inf(-1)}
}

func (k *measurementKernel) kind() Kind { return Measurement }

func (k *measurementKernel) track(v float64) {
	v = clamp(v)
	k.mu.Lock()
	k.count++
	k.sum += v
	k.sumSq += v * v
	if v < k.min {
		k.min = v
	}
	if v > k.max {
		k.max = v
	}
	k.mu.Unlock()
}

func (k *measurementKernel) snapshot(start, end time.Time) Aggregate {
	k.mu.Lock()
	count, sum, sumSq, min, max := k.count, k.sum, k.sumSq, k.min, k.max
	k.mu.Unlock()

	data := &MeasurementData{Count: count, Sum: sum}
	if count == 0 {
		data.Min, data.Max, data.StdDev = 0, 0, 0
	} else {
		mean := sum / float64(count)
		// The max(0, ...) floor absorbs catastrophic cancellation from the
		// two-moment form; this is the specified numeric behavior.
		variance := sumSq/float64(count) - mean*mean
		if variance < 0 {
			variance = 0
		}
		data.Min = min
		data.Max = max
		data.StdDev = math.Sqrt(variance)
	}

	return Aggregate{
		PeriodStart:    start,
		PeriodDuration: end.Sub(start),
		Kind:           Measurement,
		Measurement:    data,
	}
}

func (k *measurementKernel) reset() {
	k.mu.Lock()
	k.count, k.sum, k.sumSq = 0, 0, 0
	k.min, k.max = math.Inf(1), math.Inf(-1)
	k.mu.Unlock()
}

// accumulatorKernel is the running-accumulator kernel: sum, min, max,
// count. Values are not reset at cycle boundaries; only an explicit
// reset() (driven by Series.ResetAggregation) returns it to identity.
type accumulatorKernel struct {
	mu    sync.Mutex
	sum   float64
	min   float64
	max   float64
	count uint64
}

func newAccumulatorKernel() *accumulatorKernel {
	return &accumulatorKernel{min: math.Inf(1), max: math.Inf(-1)}
}

func (k *accumulatorKernel) kind() Kind { return Accumulator }

func (k *accumulatorKernel) track(v float64) {
	v = clamp(v)
	k.mu.Lock()
	k.sum += v
	if v < k.min {
		k.min = v
	}
	if v > k.max {
		k.max = v
	}
	k.count++
	k.mu.Unlock()
}

func (k *accumulatorKernel) snapshot(start, end time.Time) Aggregate {
	k.mu.Lock()
	sum, min, max, count := k.sum, k.min, k.max, k.count
	k.mu.Unlock()

	data := &AccumulatorData{Sum: sum, Count: count}
	if count == 0 {
		data.Min, data.Max = 0, 0
	} else {
		data.Min, data.Max = min, max
	}

	return Aggregate{
		PeriodStart:    start,
		PeriodDuration: end.Sub(start),
		Kind:           Accumulator,
		Accumulator:    data,
	}
}

func (k *accumulatorKernel) reset() {
	k.mu.Lock()
	k.sum, k.count = 0, 0
	k.min, k.max = math.Inf(1), math.Inf(-1)
	k.mu.Unlock()
}

func newKernel(kind Kind) kernel {
	if kind == Accumulator {
		return newAccumulatorKernel()
	}
	return newMeasurementKernel()
}
