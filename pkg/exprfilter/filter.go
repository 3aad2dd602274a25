// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package exprfilter implements aggregation.Filter and aggregation.ValueFilter
// using compiled expr-lang expressions, so cycle membership and per-value
// rewriting can be configured rather than hard-coded. Ported from the
// compile-once-evaluate-many rule pattern used for job classification.
package exprfilter

import (
	"fmt"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ClusterCockpit/cc-metrics-agg/pkg/aggregation"
)

// Rule describes one admission rule: a boolean expression deciding whether
// a series is admitted into a cycle, evaluated against an environment built
// from the series' identity, and an optional value-rewrite expression
// evaluated per tracked value.
type Rule struct {
	// Admit is a boolean expression; the environment has "metric_id"
	// (string) and "dims" ([]string, the series' dimension values in
	// positional order) bound. Dimension names are not bound.
	Admit string `json:"admit"`
	// Value is an optional float64 expression rewriting the tracked value;
	// the environment additionally has "value" (float64) bound. An empty
	// string passes the value through unchanged.
	Value string `json:"value,omitempty"`
}

// Filter compiles a Rule once and implements aggregation.Filter.
type Filter struct {
	admit *vm.Program
	value *vm.Program
}

// Compile compiles r into a reusable Filter. Returns an error if either
// expression fails to compile or does not type-check to the expected
// return type.
func Compile(r Rule) (*Filter, error) {
	admit, err := expr.Compile(r.Admit, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("exprfilter: admit expression: %w", err)
	}

	f := &Filter{admit: admit}
	if r.Value != "" {
		value, err := expr.Compile(r.Value, expr.AsFloat64())
		if err != nil {
			return nil, fmt.Errorf("exprfilter: value expression: %w", err)
		}
		f.value = value
	}
	return f, nil
}

// Admits implements aggregation.Filter.
func (f *Filter) Admits(series *aggregation.Series) (bool, aggregation.ValueFilter) {
	dims := series.DimensionValues()
	env := map[string]any{
		"metric_id": series.MetricID(),
		"dims":      dims,
	}

	ok, err := expr.Run(f.admit, env)
	if err != nil {
		cclog.Errorf("[EXPRFILTER]> admit expression failed for metric %q: %s", series.MetricID(), err.Error())
		return false, nil
	}
	admitted, _ := ok.(bool)
	if !admitted || f.value == nil {
		return admitted, nil
	}

	program := f.value
	metricID := series.MetricID()
	return true, func(v float64) (float64, bool) {
		env := map[string]any{
			"metric_id": metricID,
			"dims":      dims,
			"value":     v,
		}
		out, err := expr.Run(program, env)
		if err != nil {
			cclog.Errorf("[EXPRFILTER]> value expression failed for metric %q: %s", metricID, err.Error())
			return 0, false
		}
		f, ok := out.(float64)
		return f, ok
	}
}
