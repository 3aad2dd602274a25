// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregation

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"golang.org/x/time/rate"
)

// fingerprintSeparator joins dimension values into a map key. It is a
// control character that cannot occur in a well-formed dimension value, so
// distinct value sequences never collide.
const fingerprintSeparator = "\x1f"

func fingerprint(dimValues []string) string {
	return strings.Join(dimValues, fingerprintSeparator)
}

// MetricRegistration carries the information only needed the first time a
// metric id is registered: its declared, ordered dimension names, and its
// frozen configuration. Pass nil to GetOrCreate to mean "use whatever
// schema already exists, or the process-wide Measurement default if none
// does" (spec §4.3 step 1).
type MetricRegistration struct {
	DimensionNames []string
	Config         *SeriesConfig
}

// metricSchema is the directory's per-metric-id record: declared dimension
// count, the frozen configuration, a set-per-position of distinct
// dimension values seen, and the total series count.
type metricSchema struct {
	dimensionNames []string
	cfg            SeriesConfig

	mu          sync.Mutex // not locked anywhere; valueSets/seriesCount are guarded by the directory's lock
	valueSets   []map[string]struct{}
	seriesCount int

	limiter *rate.Limiter // throttles CapacityExceeded warning logs for this metric
}

func (m *metricSchema) dimensionName(position int) string {
	if position < len(m.dimensionNames) && m.dimensionNames[position] != "" {
		return m.dimensionNames[position]
	}
	return "dim" + strconv.Itoa(position)
}

func (m *metricSchema) warnCapacity(metricID, reason string) {
	if m.limiter.Allow() {
		cclog.Warnf("[AGGREGATOR]> metric %q: capacity exceeded: %s", metricID, reason)
	}
}

// SeriesDirectory is the concurrent, capacity-bounded registry mapping a
// (metric id, ordered dimension values) fingerprint to a single, canonical
// Series. It enforces series-count and per-dimension-value caps and
// guarantees a single canonical Series per fingerprint (Invariant M1).
type SeriesDirectory struct {
	mu      sync.RWMutex
	schemas map[string]*metricSchema
	series  map[string]map[string]*Series // metricID -> fingerprint -> Series
}

// NewSeriesDirectory returns an empty directory.
func NewSeriesDirectory() *SeriesDirectory {
	return &SeriesDirectory{
		schemas: make(map[string]*metricSchema),
		series:  make(map[string]map[string]*Series),
	}
}

// GetOrCreate implements spec §4.3's algorithm. created reports whether a
// brand-new Series was allocated (vs. an existing one returned).
func (d *SeriesDirectory) GetOrCreate(metricID string, dimValues []string, reg *MetricRegistration) (s *Series, created bool, err error) {
	if strings.TrimSpace(metricID) == "" {
		return nil, false, ErrNullArgument
	}
	for _, v := range dimValues {
		if strings.TrimSpace(v) == "" {
			return nil, false, ErrNullArgument
		}
	}

	fp := fingerprint(dimValues)

	// 1. shared-lock fast path: schema must exist and be compatible, and
	// the series itself may already be registered.
	d.mu.RLock()
	schema, schemaExists := d.schemas[metricID]
	if schemaExists {
		if err := checkCompatible(metricID, schema, dimValues, reg); err != nil {
			d.mu.RUnlock()
			return nil, false, err
		}
		if byFP, ok := d.series[metricID]; ok {
			if existing, ok := byFP[fp]; ok {
				d.mu.RUnlock()
				return existing, false, nil
			}
		}
	}
	d.mu.RUnlock()

	// 2. exclusive lock: install schema if missing, double-check for a
	// racing creator, then enforce capacity and create.
	d.mu.Lock()
	defer d.mu.Unlock()

	schema, schemaExists = d.schemas[metricID]
	if !schemaExists {
		schema = newMetricSchema(dimValues, reg)
		d.schemas[metricID] = schema
		d.series[metricID] = make(map[string]*Series)
	} else if err := checkCompatible(metricID, schema, dimValues, reg); err != nil {
		return nil, false, err
	}

	byFP := d.series[metricID]
	if existing, ok := byFP[fp]; ok {
		return existing, false, nil
	}

	if schema.seriesCount >= schema.cfg.SeriesCountLimit {
		schema.warnCapacity(metricID, fmt.Sprintf("series_count_limit=%d reached", schema.cfg.SeriesCountLimit))
		return nil, false, &CapacityExceededError{MetricID: metricID, Reason: fmt.Sprintf("series_count_limit=%d reached", schema.cfg.SeriesCountLimit)}
	}

	for i, v := range dimValues {
		if _, seen := schema.valueSets[i][v]; seen {
			continue
		}
		if len(schema.valueSets[i]) >= schema.cfg.ValuesPerDimensionLimit {
			schema.warnCapacity(metricID, fmt.Sprintf("values_per_dimension_limit=%d reached at position %d", schema.cfg.ValuesPerDimensionLimit, i))
			return nil, false, &CapacityExceededError{MetricID: metricID, Reason: fmt.Sprintf("values_per_dimension_limit=%d reached at position %d", schema.cfg.ValuesPerDimensionLimit, i)}
		}
	}

	// No partial state committed until every capacity check above passed.
	for i, v := range dimValues {
		schema.valueSets[i][v] = struct{}{}
	}
	schema.seriesCount++

	s = &Series{metricID: metricID, dimValues: append([]string(nil), dimValues...), schema: schema}
	byFP[fp] = s
	return s, true, nil
}

func newMetricSchema(dimValues []string, reg *MetricRegistration) *metricSchema {
	cfg := defaultMeasurement()
	var names []string
	if reg != nil {
		names = reg.DimensionNames
		if reg.Config != nil {
			cfg = reg.Config.withDefaults()
		} else if cfg.KernelKind == Accumulator {
			cfg = defaultAccumulator()
		}
	}

	schema := &metricSchema{
		dimensionNames: names,
		cfg:            cfg,
		valueSets:      make([]map[string]struct{}, len(dimValues)),
		limiter:        rate.NewLimiter(rate.Every(0), 1), // overwritten below
	}
	for i := range schema.valueSets {
		schema.valueSets[i] = make(map[string]struct{})
	}
	// One capacity-exceeded warning per metric per 10s is plenty to notice
	// without flooding the log from a hot, saturated metric.
	schema.limiter = rate.NewLimiter(rate.Every(10e9), 1)
	return schema
}

// checkCompatible enforces Invariant M2: dimension count, kernel kind and
// any explicitly supplied configuration must match what was first
// established for this metric id. A nil reg, or a reg with a nil Config,
// matches any existing schema.
func checkCompatible(metricID string, schema *metricSchema, dimValues []string, reg *MetricRegistration) error {
	if len(dimValues) != len(schema.valueSets) {
		return &DimensionArityMismatchError{MetricID: metricID, Want: len(schema.valueSets), Got: len(dimValues)}
	}
	if reg == nil || reg.Config == nil {
		return nil
	}
	supplied := reg.Config.withDefaults()
	if !supplied.equivalent(schema.cfg) {
		return &ConfigurationMismatchError{MetricID: metricID, Reason: "kernel kind, limits or integer restriction differ from the metric's first registration"}
	}
	return nil
}

// AllSeries returns every series currently registered across every metric
// id. Iteration order is not guaranteed.
func (d *SeriesDirectory) AllSeries() []*Series {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Series, 0)
	for _, byFP := range d.series {
		for _, s := range byFP {
			out = append(out, s)
		}
	}
	return out
}

// SeriesFor returns every series registered for a single metric id.
func (d *SeriesDirectory) SeriesFor(metricID string) []*Series {
	d.mu.RLock()
	defer d.mu.RUnlock()
	byFP, ok := d.series[metricID]
	if !ok {
		return nil
	}
	out := make([]*Series, 0, len(byFP))
	for _, s := range byFP {
		out = append(out, s)
	}
	return out
}

// Lookup returns the already-registered series for (metricID, dimValues),
// if any, without creating it.
func (d *SeriesDirectory) Lookup(metricID string, dimValues []string) (*Series, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	byFP, ok := d.series[metricID]
	if !ok {
		return nil, false
	}
	s, ok := byFP[fingerprint(dimValues)]
	return s, ok
}

// DimensionValueCount returns the number of distinct values ever observed
// at the given dimension position for metricID.
func (d *SeriesDirectory) DimensionValueCount(metricID string, position int) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	schema, ok := d.schemas[metricID]
	if !ok || position < 0 || position >= len(schema.valueSets) {
		return 0
	}
	return len(schema.valueSets[position])
}

// SeriesCount returns the number of live series for metricID.
func (d *SeriesDirectory) SeriesCount(metricID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	schema, ok := d.schemas[metricID]
	if !ok {
		return 0
	}
	return schema.seriesCount
}
