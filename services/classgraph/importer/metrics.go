// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package importer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("classgraph.importer")

// =============================================================================
// Prometheus Metrics for Imports and the Import Cache
// =============================================================================

var (
	// importsTotal counts finished imports.
	// Labels: outcome (success, invalid_scope, failed, cancelled)
	importsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classgraph",
		Subsystem: "import",
		Name:      "imports_total",
		Help:      "Total imports by outcome",
	}, []string{"outcome"})

	// importDurationSeconds measures complete imports including linking.
	importDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "classgraph",
		Subsystem: "import",
		Name:      "duration_seconds",
		Help:      "Import duration from scope validation to published graph",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	// unitsTotal counts binary units by read outcome.
	// Labels: outcome (parsed, format_error, unsupported_version, unreadable)
	unitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classgraph",
		Subsystem: "import",
		Name:      "units_total",
		Help:      "Binary units read by outcome",
	}, []string{"outcome"})

	// resolverLookupsTotal counts dependency completion lookups.
	// Labels: outcome (found, not_found, error)
	resolverLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classgraph",
		Subsystem: "import",
		Name:      "resolver_lookups_total",
		Help:      "Class resolver lookups during dependency completion by outcome",
	}, []string{"outcome"})

	// cacheRequestsTotal counts Cache.Get calls.
	// Labels: result (strong_hit, weak_hit, miss, joined)
	cacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classgraph",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Import cache requests by result",
	}, []string{"result"})

	// cacheEvictionsTotal counts results evicted from the strong tier.
	cacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "classgraph",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Results evicted from the bounded cache tier",
	})

	// snapshotOpsTotal counts snapshot store operations.
	// Labels: op (load, save), result (hit, miss, ok, error)
	snapshotOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classgraph",
		Subsystem: "snapshot",
		Name:      "operations_total",
		Help:      "Snapshot store operations by type and result",
	}, []string{"op", "result"})
)
