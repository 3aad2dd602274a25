// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregation

import (
	"testing"
	"time"

	"github.com/influxdata/line-protocol/v2/lineprotocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLineProtocolMeasurementRoundTrips(t *testing.T) {
	agg := Aggregate{
		MetricID:       "cpu_load",
		Dimensions:     map[string]string{"host": "node1"},
		PeriodStart:    time.Now(),
		PeriodDuration: 60 * time.Second,
		Kind:           Measurement,
		Measurement:    &MeasurementData{Count: 3, Sum: 36, Min: 11, Max: 13, StdDev: 0.8165},
	}

	data, err := EncodeLineProtocol(agg)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	dec := lineprotocol.NewDecoderWithBytes(data)
	require.True(t, dec.Next())

	measurement, err := dec.Measurement()
	require.NoError(t, err)
	assert.Equal(t, "cpu_load", string(measurement))

	tags := map[string]string{}
	for {
		key, val, err := dec.NextTag()
		require.NoError(t, err)
		if key == nil {
			break
		}
		tags[string(key)] = string(val)
	}
	assert.Equal(t, "node1", tags["host"])
	assert.Equal(t, "60000", tags[AggregationIntervalMs])

	fields := map[string]lineprotocol.Value{}
	for {
		key, val, err := dec.NextField()
		require.NoError(t, err)
		if key == nil {
			break
		}
		fields[string(key)] = val
	}
	assert.EqualValues(t, 3, fields["count"].UintV())
	assert.Equal(t, 36.0, fields["sum"].FloatV())
	assert.Equal(t, 11.0, fields["min"].FloatV())
	assert.Equal(t, 13.0, fields["max"].FloatV())
}

func TestEncodeLineProtocolManyDimensionsEncodeInSortedOrder(t *testing.T) {
	agg := Aggregate{
		MetricID:    "cpu_load",
		Dimensions:  map[string]string{"zone": "west", "host": "node1", "rack": "r3", "cluster": "prod"},
		Context:     map[string]string{"session": "abc"},
		PeriodStart: time.Now(),
		Kind:        Measurement,
		Measurement: &MeasurementData{Count: 1, Sum: 1, Min: 1, Max: 1},
	}

	data, err := EncodeLineProtocol(agg)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	dec := lineprotocol.NewDecoderWithBytes(data)
	require.True(t, dec.Next())
	_, err = dec.Measurement()
	require.NoError(t, err)

	tags := map[string]string{}
	for {
		key, val, err := dec.NextTag()
		require.NoError(t, err)
		if key == nil {
			break
		}
		tags[string(key)] = string(val)
	}
	assert.Equal(t, "node1", tags["host"])
	assert.Equal(t, "r3", tags["rack"])
	assert.Equal(t, "west", tags["zone"])
	assert.Equal(t, "prod", tags["cluster"])
	assert.Equal(t, "abc", tags[TelemetryContextPrefix+"session"])
}

func TestEncodeLineProtocolAccumulatorHasZeroStdDev(t *testing.T) {
	agg := Aggregate{
		MetricID:       "items",
		PeriodStart:    time.Now(),
		PeriodDuration: time.Minute,
		Kind:           Accumulator,
		Accumulator:    &AccumulatorData{Sum: 1, Min: -1, Max: 1, Count: 3},
	}

	data, err := EncodeLineProtocol(agg)
	require.NoError(t, err)

	dec := lineprotocol.NewDecoderWithBytes(data)
	require.True(t, dec.Next())
	_, err = dec.Measurement()
	require.NoError(t, err)
	for {
		key, _, err := dec.NextTag()
		require.NoError(t, err)
		if key == nil {
			break
		}
	}

	fields := map[string]lineprotocol.Value{}
	for {
		key, val, err := dec.NextField()
		require.NoError(t, err)
		if key == nil {
			break
		}
		fields[string(key)] = val
	}
	assert.Equal(t, 0.0, fields["stddev"].FloatV())
	assert.EqualValues(t, 3, fields["count"].UintV())
}
