// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregation

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the operations that can fail. `track` never
// fails: a value that cannot be absorbed is silently dropped.
var (
	// ErrNullArgument is returned when a required identity (metric id,
	// dimension value) is empty.
	ErrNullArgument = errors.New("[AGGREGATOR]> required identity argument is empty")

	// ErrInvalidState names an operation on a cycle in a disallowed state.
	// No operation in this package returns it; resetting a series with no
	// Default-cycle kernel, for example, is a no-op.
	ErrInvalidState = errors.New("[AGGREGATOR]> invalid state for this operation")

	// ErrInternalIntegrity is returned when the ContextCopier could not
	// bind to the host's context primitive.
	ErrInternalIntegrity = errors.New("[AGGREGATOR]> could not bind to host context primitive")
)

// DimensionArityMismatchError is returned by GetOrCreateSeries when the
// number of supplied dimension values differs from the metric's declared
// dimension count.
type DimensionArityMismatchError struct {
	MetricID string
	Want     int
	Got      int
}

func (e *DimensionArityMismatchError) Error() string {
	return fmt.Sprintf("[AGGREGATOR]> metric %q declares %d dimension(s), got %d", e.MetricID, e.Want, e.Got)
}

// ConfigurationMismatchError is returned when a metric id is re-registered
// with an explicit configuration (kernel kind, limits or integer
// restriction) that differs from what was first established for it. A
// differing dimension count is reported as DimensionArityMismatchError.
type ConfigurationMismatchError struct {
	MetricID string
	Reason   string
}

func (e *ConfigurationMismatchError) Error() string {
	return fmt.Sprintf("[AGGREGATOR]> metric %q: configuration mismatch: %s", e.MetricID, e.Reason)
}

// CapacityExceededError is returned when a series_count_limit or
// values_per_dimension_limit is reached. `TryTrack` surfaces this as
// `false` instead of propagating the error.
type CapacityExceededError struct {
	MetricID string
	Reason   string
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("[AGGREGATOR]> metric %q: capacity exceeded: %s", e.MetricID, e.Reason)
}
