// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package httpapi exposes a small introspection surface over a running
// aggregation.Manager: per-metric series counts, a health check and a
// debug dump, mirroring the teacher's memorystore debug/healthcheck
// handlers but reading from the aggregation directory instead of the
// buffer tree.
package httpapi

import (
	"encoding/json"
	"net/http"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/gorilla/mux"

	"github.com/ClusterCockpit/cc-metrics-agg/pkg/aggregation"
)

// ErrorResponse is the JSON body written on a handler error.
type ErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func writeError(rw http.ResponseWriter, status int, err error) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(ErrorResponse{Status: http.StatusText(status), Error: err.Error()})
}

// Mount registers the introspection handlers onto r, rooted at prefix
// (typically "/api").
func Mount(r *mux.Router, prefix string, m *aggregation.Manager) {
	sub := r.PathPrefix(prefix).Subrouter()
	sub.HandleFunc("/healthcheck", HandleHealthCheck(m)).Methods(http.MethodGet)
	sub.HandleFunc("/debug", HandleDebug(m)).Methods(http.MethodGet)
	sub.HandleFunc("/stats/{metricId}", HandleMetricStats(m)).Methods(http.MethodGet)
}

// HandleHealthCheck reports ok as long as the Manager has at least one
// registered series, or if no metrics have been registered yet at all (an
// idle engine is healthy, not degraded).
func HandleHealthCheck(m *aggregation.Manager) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		count := len(m.Directory().AllSeries())
		rw.Header().Set("Content-Type", "application/json")
		json.NewEncoder(rw).Encode(map[string]any{
			"status":      "ok",
			"seriesCount": count,
		})
	}
}

// seriesDump is the JSON shape of one series in the debug dump.
type seriesDump struct {
	MetricID        string   `json:"metricId"`
	DimensionValues []string `json:"dimensionValues"`
	KernelKind      string   `json:"kernelKind"`
}

// HandleDebug dumps the identity of every series currently registered. It
// does not include current kernel values: those are only observable
// through CurrentUnsafe, which is statistical rather than exact, and
// exposing it here would invite callers to rely on it for more than a
// sanity check.
func HandleDebug(m *aggregation.Manager) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		all := m.Directory().AllSeries()
		dump := make([]seriesDump, 0, len(all))
		for _, s := range all {
			dump = append(dump, seriesDump{
				MetricID:        s.MetricID(),
				DimensionValues: s.DimensionValues(),
				KernelKind:      s.Config().KernelKind.String(),
			})
		}
		rw.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(rw).Encode(dump); err != nil {
			cclog.Errorf("[AGGREGATOR]> debug dump encode failed: %s", err.Error())
		}
	}
}

// HandleMetricStats reports the series and distinct-dimension-value counts
// for one metric id.
func HandleMetricStats(m *aggregation.Manager) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		metricID := mux.Vars(r)["metricId"]
		series := m.Directory().SeriesFor(metricID)
		if len(series) == 0 {
			writeError(rw, http.StatusNotFound, errMetricNotFound(metricID))
			return
		}

		dimValueCounts := make([]int, 0)
		for i := 0; ; i++ {
			n := m.Directory().DimensionValueCount(metricID, i)
			if n == 0 {
				break
			}
			dimValueCounts = append(dimValueCounts, n)
		}

		rw.Header().Set("Content-Type", "application/json")
		json.NewEncoder(rw).Encode(map[string]any{
			"metricId":             metricID,
			"seriesCount":          len(series),
			"dimensionValueCounts": dimValueCounts,
		})
	}
}

type metricNotFoundError struct{ metricID string }

func (e metricNotFoundError) Error() string { return "unknown metric id: " + e.metricID }

func errMetricNotFound(metricID string) error { return metricNotFoundError{metricID: metricID} }
