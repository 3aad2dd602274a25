// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package aggregation implements a client-side metrics aggregation engine.
//
// Application code tracks numeric values against named, optionally
// multi-dimensional metrics. The engine aggregates those values in memory
// over fixed time windows (nominally one minute) and, at the end of each
// window, emits compact per-series aggregates to a downstream telemetry
// sink.
//
// The package is organized around three tightly coupled pieces:
//
//   - a concurrent, capacity-bounded [SeriesDirectory] mapping a
//     (metric id, ordered dimension values) fingerprint to a single,
//     canonical [Series];
//   - a [Manager] that drives up to three independent aggregation cycles
//     (Default, Custom, QuickPulse), each a state machine that snaps
//     kernels into immutable [Aggregate] values at window boundaries;
//   - two aggregation kernels, Measurement (count/sum/min/max/stddev,
//     reset every window) and Accumulator (sum/min/max/count, persists
//     across windows).
//
// The package performs no network I/O and does not persist state across
// process restarts; it only ever hands finished [Aggregate] values to a
// caller-supplied [Sink].
package aggregation
