// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregation

import (
	"sort"
	"strconv"

	"github.com/influxdata/line-protocol/v2/lineprotocol"
)

// EncodeLineProtocol serializes agg into the wire shape described in §6:
// name = metric id, fields = count/sum/min/max/stddev (an Accumulator maps
// onto the same fields with stddev=0, since it carries no second moment),
// and properties = the dimension map, the reserved AggregationIntervalMs
// key, and each Context entry under its TelemetryContext.-prefixed name.
//
// Mirrors the teacher's decode-side use of the same dependency in
// memorystore/lineprotocol.go, on the encode side.
func EncodeLineProtocol(agg Aggregate) ([]byte, error) {
	enc := &lineprotocol.Encoder{}
	enc.SetPrecision(lineprotocol.Nanosecond)

	enc.StartLine(agg.MetricID)

	// AddTag requires ascending lexical key order, so every tag is collected
	// first and emitted in sorted order rather than map-iteration order.
	tags := make(map[string]string, len(agg.Dimensions)+len(agg.Context)+1)
	for k, v := range agg.Dimensions {
		tags[k] = v
	}
	tags[AggregationIntervalMs] = strconv.FormatInt(agg.PeriodDuration.Milliseconds(), 10)
	for k, v := range agg.Context {
		tags[TelemetryContextPrefix+k] = v
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		enc.AddTag(k, tags[k])
	}

	switch agg.Kind {
	case Measurement:
		d := agg.Measurement
		enc.AddField("count", lineprotocol.UintValue(d.Count))
		enc.AddField("sum", lineprotocol.FloatValue(d.Sum))
		enc.AddField("min", lineprotocol.FloatValue(d.Min))
		enc.AddField("max", lineprotocol.FloatValue(d.Max))
		enc.AddField("stddev", lineprotocol.FloatValue(d.StdDev))
	case Accumulator:
		d := agg.Accumulator
		enc.AddField("count", lineprotocol.UintValue(d.Count))
		enc.AddField("sum", lineprotocol.FloatValue(d.Sum))
		enc.AddField("min", lineprotocol.FloatValue(d.Min))
		enc.AddField("max", lineprotocol.FloatValue(d.Max))
		enc.AddField("stddev", lineprotocol.FloatValue(0))
	}

	enc.EndLine(agg.PeriodStart.Add(agg.PeriodDuration))

	if err := enc.Err(); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}
