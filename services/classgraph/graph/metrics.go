// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/classgraph/services/classgraph/raw"
)

var tracer = otel.Tracer("classgraph.graph")

var (
	linkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "classgraph",
		Subsystem: "linker",
		Name:      "link_duration_seconds",
		Help:      "Duration of Linker.Link",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	linkNodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classgraph",
		Subsystem: "linker",
		Name:      "nodes_total",
		Help:      "Class nodes created by origin: imported, stub, array, primitive",
	}, []string{"origin"})

	linkEdgesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "classgraph",
		Subsystem: "linker",
		Name:      "access_edges_total",
		Help:      "Access edges created",
	})

	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classgraph",
		Subsystem: "resolution",
		Name:      "resolutions_total",
		Help:      "Member resolutions by access kind and outcome: empty, single, ambiguous",
	}, []string{"kind", "outcome"})
)

func recordResolution(kind raw.AccessKind, n int) {
	outcome := "single"
	switch {
	case n == 0:
		outcome = "empty"
	case n > 1:
		outcome = "ambiguous"
	}
	resolutionsTotal.WithLabelValues(kind.String(), outcome).Inc()
}

func recordLinkMetrics(stats LinkStats, seconds float64) {
	linkDuration.Observe(seconds)
	linkNodesTotal.WithLabelValues(OriginImported.String()).Add(float64(stats.Imported))
	linkNodesTotal.WithLabelValues(OriginStub.String()).Add(float64(stats.Stubs))
	linkNodesTotal.WithLabelValues(OriginArray.String()).Add(float64(stats.Arrays))
	linkNodesTotal.WithLabelValues(OriginPrimitive.String()).Add(float64(stats.Primitives))
	linkEdgesTotal.Add(float64(stats.AccessEdges))
}

func startLinkSpan(ctx context.Context, records int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "graph.Linker.Link",
		trace.WithAttributes(attribute.Int("records", records)),
	)
}

func startPhaseSpan(ctx context.Context, phase string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "graph.Linker."+phase)
}

func setLinkSpanResult(span trace.Span, stats LinkStats, err error) {
	span.SetAttributes(
		attribute.Int("classes_imported", stats.Imported),
		attribute.Int("classes_stub", stats.Stubs),
		attribute.Int("members", stats.Members),
		attribute.Int("access_edges", stats.AccessEdges),
		attribute.Int("diagnostics", stats.Diagnostics),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
