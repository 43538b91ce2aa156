// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/classgraph/services/classgraph/graph"
	"github.com/AleutianAI/classgraph/services/classgraph/raw"
)

// DefaultNeo4jBatchSize is the number of rows per UNWIND statement.
const DefaultNeo4jBatchSize = 500

// Neo4jOptions configures a Neo4jWriter.
type Neo4jOptions struct {
	// Database selects the target database; empty uses the server default.
	Database string

	// BatchSize is the number of rows per statement.
	// Default: DefaultNeo4jBatchSize
	BatchSize int

	// Clean removes previously exported classgraph nodes before writing.
	Clean bool

	Logger *slog.Logger
}

// cypherRunner executes one statement.
type cypherRunner func(ctx context.Context, cypher string, params map[string]any) error

// Neo4jWriter upserts a graph into Neo4j with batched UNWIND statements.
//
// Description:
//
//	Classes (stubs included, flagged) become :JavaClass nodes connected by
//	EXTENDS, IMPLEMENTS and NESTED_IN. Members become :JavaMember nodes
//	connected to their owner by DECLARES. Every access becomes an ACCESSES
//	relationship from the origin member to each resolved target, or to a
//	member node marked unresolved when no target was found.
//
// Thread Safety: Safe for concurrent use; the driver pools sessions.
type Neo4jWriter struct {
	run       cypherRunner
	batchSize int
	clean     bool
	logger    *slog.Logger
}

// OpenNeo4j connects to uri and verifies connectivity. The caller closes
// the driver.
func OpenNeo4j(ctx context.Context, uri, username, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j at %s: %w", uri, err)
	}
	return driver, nil
}

// NewNeo4jWriter creates a writer on driver.
func NewNeo4jWriter(driver neo4j.DriverWithContext, opts Neo4jOptions) (*Neo4jWriter, error) {
	if driver == nil {
		return nil, errors.New("neo4j driver must not be nil")
	}
	var queryOpts []neo4j.ExecuteQueryConfigurationOption
	if opts.Database != "" {
		queryOpts = append(queryOpts, neo4j.ExecuteQueryWithDatabase(opts.Database))
	}
	run := func(ctx context.Context, cypher string, params map[string]any) error {
		_, err := neo4j.ExecuteQuery(ctx, driver, cypher, params, neo4j.EagerResultTransformer, queryOpts...)
		return err
	}
	return newNeo4jWriter(run, opts), nil
}

func newNeo4jWriter(run cypherRunner, opts Neo4jOptions) *Neo4jWriter {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultNeo4jBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Neo4jWriter{run: run, batchSize: opts.BatchSize, clean: opts.Clean, logger: opts.Logger}
}

var neo4jIndexes = []string{
	"CREATE INDEX java_class_name IF NOT EXISTS FOR (n:JavaClass) ON (n.name)",
	"CREATE INDEX java_member_full_name IF NOT EXISTS FOR (n:JavaMember) ON (n.full_name)",
}

var neo4jClean = []string{
	"MATCH (n:JavaMember) DETACH DELETE n",
	"MATCH (n:JavaClass) DETACH DELETE n",
}

const (
	cypherClasses = `UNWIND $batch AS row
MERGE (c:JavaClass {name: row.name})
SET c.kind = row.kind, c.package = row.package, c.modifiers = row.modifiers,
    c.location = row.location, c.stub = row.stub`

	cypherExtends = `UNWIND $batch AS row
MATCH (c:JavaClass {name: row.class})
MATCH (s:JavaClass {name: row.super})
MERGE (c)-[:EXTENDS]->(s)`

	cypherImplements = `UNWIND $batch AS row
MATCH (c:JavaClass {name: row.class})
MATCH (i:JavaClass {name: row.interface})
MERGE (c)-[r:IMPLEMENTS]->(i)
SET r.position = row.position`

	cypherNested = `UNWIND $batch AS row
MATCH (c:JavaClass {name: row.class})
MATCH (o:JavaClass {name: row.enclosing})
MERGE (c)-[r:NESTED_IN]->(o)
SET r.nesting = row.nesting`

	cypherMembers = `UNWIND $batch AS row
MERGE (m:JavaMember {full_name: row.full_name})
SET m.kind = row.kind, m.name = row.name, m.descriptor = row.descriptor,
    m.modifiers = row.modifiers, m.first_line = row.first_line, m.unresolved = false
WITH m, row
MATCH (c:JavaClass {name: row.owner})
MERGE (c)-[:DECLARES]->(m)`

	cypherAccesses = `UNWIND $batch AS row
MATCH (o:JavaMember {full_name: row.origin})
MERGE (t:JavaMember {full_name: row.target})
ON CREATE SET t.unresolved = true
MERGE (o)-[r:ACCESSES {kind: row.kind, line: row.line, declared: row.declared}]->(t)
SET r.resolved = row.resolved`
)

// Write upserts g.
func (w *Neo4jWriter) Write(ctx context.Context, g *graph.Graph) (stats Stats, err error) {
	ctx, span := tracer.Start(ctx, "export.Neo4jWriter.Write")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	for _, q := range neo4jIndexes {
		if err := w.run(ctx, q, nil); err != nil {
			return Stats{}, fmt.Errorf("creating indexes: %w", err)
		}
	}
	if w.clean {
		for _, q := range neo4jClean {
			if err := w.run(ctx, q, nil); err != nil {
				return Stats{}, fmt.Errorf("cleaning graph: %w", err)
			}
		}
	}

	sg := g.ToSerializable()
	rows := neo4jRows(sg)
	steps := []struct {
		name   string
		cypher string
		rows   []map[string]any
	}{
		{"classes", cypherClasses, rows.classes},
		{"extends", cypherExtends, rows.extends},
		{"implements", cypherImplements, rows.implements},
		{"nested", cypherNested, rows.nested},
		{"members", cypherMembers, rows.members},
		{"accesses", cypherAccesses, rows.accesses},
	}
	for _, step := range steps {
		if err := w.batched(ctx, step.cypher, step.rows); err != nil {
			return Stats{}, fmt.Errorf("writing %s: %w", step.name, err)
		}
		w.logger.Debug("neo4j rows written", slog.String("step", step.name), slog.Int("rows", len(step.rows)))
	}

	stats = countStats(sg)
	span.SetAttributes(
		attribute.Int("classes", stats.Classes),
		attribute.Int("members", stats.Members),
		attribute.Int("accesses", stats.Accesses),
	)
	w.logger.Info("graph exported to neo4j",
		slog.Int("classes", stats.Classes),
		slog.Int("stubs", stats.Stubs),
		slog.Int("members", stats.Members),
		slog.Int("accesses", stats.Accesses),
	)
	return stats, nil
}

func (w *Neo4jWriter) batched(ctx context.Context, cypher string, rows []map[string]any) error {
	for start := 0; start < len(rows); start += w.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+w.batchSize, len(rows))
		if err := w.run(ctx, cypher, map[string]any{"batch": rows[start:end]}); err != nil {
			return err
		}
	}
	return nil
}

type neo4jRowSet struct {
	classes    []map[string]any
	extends    []map[string]any
	implements []map[string]any
	nested     []map[string]any
	members    []map[string]any
	accesses   []map[string]any
}

func neo4jRows(sg *graph.SerializableGraph) neo4jRowSet {
	var rs neo4jRowSet
	for _, c := range sg.Classes {
		rs.classes = append(rs.classes, map[string]any{
			"name":      c.Name,
			"kind":      c.Kind,
			"package":   raw.PackageOf(c.Name),
			"modifiers": c.Modifiers,
			"location":  c.Location,
			"stub":      false,
		})
		if c.Superclass != "" {
			rs.extends = append(rs.extends, map[string]any{"class": c.Name, "super": c.Superclass})
		}
		for i, iface := range c.Interfaces {
			rs.implements = append(rs.implements, map[string]any{"class": c.Name, "interface": iface, "position": i})
		}
		if c.Enclosing != "" {
			rs.nested = append(rs.nested, map[string]any{"class": c.Name, "enclosing": c.Enclosing, "nesting": c.Nesting})
		}
		for _, m := range c.Members {
			rs.members = append(rs.members, map[string]any{
				"full_name":  m.FullName,
				"owner":      c.Name,
				"kind":       m.Kind,
				"name":       m.Name,
				"descriptor": m.Descriptor,
				"modifiers":  m.Modifiers,
				"first_line": m.FirstLine,
			})
		}
	}
	for _, name := range sg.Stubs {
		rs.classes = append(rs.classes, map[string]any{
			"name":      name,
			"kind":      "stub",
			"package":   raw.PackageOf(name),
			"modifiers": []string{},
			"location":  "",
			"stub":      true,
		})
	}
	for _, a := range sg.Accesses {
		targets := a.Resolved
		resolved := true
		if len(targets) == 0 {
			targets = []string{a.Target}
			resolved = false
		}
		for _, t := range targets {
			rs.accesses = append(rs.accesses, map[string]any{
				"origin":   a.Origin,
				"target":   t,
				"declared": a.Target,
				"kind":     a.Kind,
				"line":     a.Line,
				"resolved": resolved,
			})
		}
	}
	return rs
}
