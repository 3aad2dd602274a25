// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregation

import (
	"bytes"
	"encoding/json"
	"sync/atomic"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Default limits, used when a metric is registered with a nil *SeriesConfig.
const (
	DefaultSeriesCountLimit         = 1000
	DefaultValuesPerDimensionLimit  = 100
)

// SeriesConfig is a metric's configuration, attached once at first creation
// and immutable thereafter (Invariant M2).
type SeriesConfig struct {
	// SeriesCountLimit is the max total series the directory will create
	// for this metric id.
	SeriesCountLimit int
	// ValuesPerDimensionLimit is the max distinct values the directory
	// will observe at any one dimension position for this metric id.
	ValuesPerDimensionLimit int
	// KernelKind selects Measurement or Accumulator.
	KernelKind Kind
	// RestrictToNonnegativeIntegers is advisory; it is preserved for the
	// sink but does not change storage (values are always stored as
	// 64-bit floats).
	RestrictToNonnegativeIntegers bool
}

func (c SeriesConfig) withDefaults() SeriesConfig {
	if c.SeriesCountLimit <= 0 {
		c.SeriesCountLimit = DefaultSeriesCountLimit
	}
	if c.ValuesPerDimensionLimit <= 0 {
		c.ValuesPerDimensionLimit = DefaultValuesPerDimensionLimit
	}
	return c
}

// equivalent reports whether two explicit configurations describe the same
// schema for Invariant M2's re-registration check. Two nil-defaulted
// configs are always equivalent to themselves; a supplied config is only
// compared against the frozen one when it was explicitly supplied (see
// SeriesDirectory.GetOrCreate).
func (c SeriesConfig) equivalent(o SeriesConfig) bool {
	return c.SeriesCountLimit == o.SeriesCountLimit &&
		c.ValuesPerDimensionLimit == o.ValuesPerDimensionLimit &&
		c.KernelKind == o.KernelKind &&
		c.RestrictToNonnegativeIntegers == o.RestrictToNonnegativeIntegers
}

// defaultConfigHolder lets SetDefaultMeasurementConfig/
// SetDefaultAccumulatorConfig publish process-wide defaults via an atomic
// handle, so readers never observe a torn struct (§9 "Global defaults").
type defaultConfigHolder struct {
	cfg SeriesConfig
}

var (
	defaultMeasurementConfig atomic.Pointer[defaultConfigHolder]
	defaultAccumulatorConfig atomic.Pointer[defaultConfigHolder]
)

func init() {
	defaultMeasurementConfig.Store(&defaultConfigHolder{cfg: SeriesConfig{
		SeriesCountLimit:        DefaultSeriesCountLimit,
		ValuesPerDimensionLimit: DefaultValuesPerDimensionLimit,
		KernelKind:              Measurement,
	}})
	defaultAccumulatorConfig.Store(&defaultConfigHolder{cfg: SeriesConfig{
		SeriesCountLimit:        DefaultSeriesCountLimit,
		ValuesPerDimensionLimit: DefaultValuesPerDimensionLimit,
		KernelKind:              Accumulator,
	}})
}

// SetDefaultMeasurementConfig overrides the process-wide default applied
// when a metric is first registered with no explicit configuration and no
// prior schema. The override only applies to metrics registered after this
// call returns.
func SetDefaultMeasurementConfig(cfg SeriesConfig) {
	cfg.KernelKind = Measurement
	defaultMeasurementConfig.Store(&defaultConfigHolder{cfg: cfg.withDefaults()})
}

// SetDefaultAccumulatorConfig overrides the stored process-wide Accumulator
// default. SeriesDirectory.GetOrCreate does not apply it: a metric
// registered without an explicit configuration always takes the Measurement
// default, and an explicit configuration has its zero limits filled from
// DefaultSeriesCountLimit and DefaultValuesPerDimensionLimit.
func SetDefaultAccumulatorConfig(cfg SeriesConfig) {
	cfg.KernelKind = Accumulator
	defaultAccumulatorConfig.Store(&defaultConfigHolder{cfg: cfg.withDefaults()})
}

func defaultMeasurement() SeriesConfig {
	return defaultMeasurementConfig.Load().cfg
}

func defaultAccumulator() SeriesConfig {
	return defaultAccumulatorConfig.Load().cfg
}

// configSchema validates the JSON configuration surface described in
// spec §6: seriesCountLimit, valuesPerDimensionLimit and seriesConfig.
// Ported from the teacher's memorystore/configSchema.go + internal/config.Validate
// pattern: an embedded JSON-Schema document validated with jsonschema/v5
// before decoding into the Go struct.
const configSchema = `{
	"type": "object",
	"description": "Configuration for a metric registered with the aggregation engine.",
	"properties": {
		"seriesCountLimit": {
			"description": "Max total series the directory will create for this metric id. Default 1000.",
			"type": "integer",
			"minimum": 1
		},
		"valuesPerDimensionLimit": {
			"description": "Max distinct values observed at a dimension position before new series for it are refused. Default 100.",
			"type": "integer",
			"minimum": 1
		},
		"seriesConfig": {
			"description": "Kernel kind and storage hints for the metric.",
			"type": "object",
			"properties": {
				"kernelKind": {
					"type": "string",
					"enum": ["measurement", "accumulator"]
				},
				"restrictToNonnegativeIntegers": {
					"type": "boolean"
				}
			}
		}
	}
}`

// JSONConfig is the wire shape of the configuration surface (§6).
type JSONConfig struct {
	SeriesCountLimit        int  `json:"seriesCountLimit"`
	ValuesPerDimensionLimit int  `json:"valuesPerDimensionLimit"`
	SeriesConfig            struct {
		KernelKind                    string `json:"kernelKind"`
		RestrictToNonnegativeIntegers bool   `json:"restrictToNonnegativeIntegers"`
	} `json:"seriesConfig"`
}

// ParseJSONConfig validates raw against configSchema and decodes it into a
// SeriesConfig.
func ParseJSONConfig(raw json.RawMessage) (SeriesConfig, error) {
	sch, err := jsonschema.CompileString("aggregation-config.json", configSchema)
	if err != nil {
		return SeriesConfig{}, err
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return SeriesConfig{}, err
	}
	if err := sch.Validate(v); err != nil {
		return SeriesConfig{}, err
	}

	var jc JSONConfig
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&jc); err != nil {
		return SeriesConfig{}, err
	}

	cfg := SeriesConfig{
		SeriesCountLimit:              jc.SeriesCountLimit,
		ValuesPerDimensionLimit:       jc.ValuesPerDimensionLimit,
		RestrictToNonnegativeIntegers: jc.SeriesConfig.RestrictToNonnegativeIntegers,
	}
	switch jc.SeriesConfig.KernelKind {
	case "accumulator":
		cfg.KernelKind = Accumulator
	default:
		cfg.KernelKind = Measurement
	}

	cclog.Debugf("[AGGREGATOR]> parsed metric configuration: %+v", cfg)
	return cfg.withDefaults(), nil
}
