// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export writes linked class graphs to external stores.
//
// Both writers consume graph.SerializableGraph, so they see the same
// deterministic view of classes, members and resolved accesses as the JSON
// serialization.
package export

import (
	"context"

	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/classgraph/services/classgraph/graph"
)

var tracer = otel.Tracer("classgraph.export")

// Writer stores a graph.
type Writer interface {
	Write(ctx context.Context, g *graph.Graph) (Stats, error)
}

// Stats counts what a writer stored.
type Stats struct {
	Classes  int `json:"classes"`
	Stubs    int `json:"stubs"`
	Members  int `json:"members"`
	Accesses int `json:"accesses"`
	Targets  int `json:"targets"`
}

func countStats(sg *graph.SerializableGraph) Stats {
	s := Stats{Classes: len(sg.Classes), Stubs: len(sg.Stubs), Accesses: len(sg.Accesses)}
	for _, c := range sg.Classes {
		s.Members += len(c.Members)
	}
	for _, a := range sg.Accesses {
		s.Targets += len(a.Resolved)
	}
	return s
}
