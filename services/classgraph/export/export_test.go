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
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/AleutianAI/classgraph/services/classgraph/graph"
	"github.com/AleutianAI/classgraph/services/classgraph/raw"
)

func classRecord(name, super string, interfaces ...string) *raw.ClassRecord {
	return &raw.ClassRecord{
		Name:       name,
		Kind:       raw.ClassKindClass,
		Modifiers:  raw.ModifierPublic,
		SuperName:  super,
		Interfaces: interfaces,
		Source:     raw.SourceInfo{Location: "file:/classes/" + strings.ReplaceAll(name, ".", "/") + ".class"},
	}
}

func addMethod(r *raw.ClassRecord, kind raw.MemberKind, name, desc, ret string) *raw.MemberRecord {
	m := &raw.MemberRecord{Kind: kind, Owner: r.Name, Name: name, Descriptor: desc, Modifiers: raw.ModifierPublic, ReturnType: ret}
	if kind == raw.MemberKindConstructor {
		r.Constructors = append(r.Constructors, m)
	} else {
		r.Methods = append(r.Methods, m)
	}
	return m
}

// sampleGraph links:
//
//	java.lang.Object   <init>(), toString()
//	com.acme.Base      run()
//	com.acme.Service   extends Base implements com.lib.Api (stub)
//	                   field count, go() calling Base.run, Service.toString and Api.ping
func sampleGraph(t *testing.T) *graph.Graph {
	t.Helper()
	obj := classRecord("java.lang.Object", "")
	addMethod(obj, raw.MemberKindConstructor, "<init>", "()V", "void")
	addMethod(obj, raw.MemberKindMethod, "toString", "()Ljava/lang/String;", "java.lang.String")

	base := classRecord("com.acme.Base", "java.lang.Object")
	addMethod(base, raw.MemberKindMethod, "run", "()V", "void")

	svc := classRecord("com.acme.Service", "com.acme.Base", "com.lib.Api")
	svc.Fields = append(svc.Fields, &raw.MemberRecord{Kind: raw.MemberKindField, Owner: svc.Name, Name: "count", Descriptor: "I", ReturnType: "int"})
	goMethod := addMethod(svc, raw.MemberKindMethod, "go", "()V", "void")
	goMethod.FirstLine = 10
	goMethod.Accesses = []raw.AccessRecord{
		{Kind: raw.AccessCall, Owner: "com.acme.Base", Name: "run", Descriptor: "()V", ReturnType: "void", Line: 11},
		{Kind: raw.AccessCall, Owner: "com.acme.Service", Name: "toString", Descriptor: "()Ljava/lang/String;", ReturnType: "java.lang.String", Line: 12},
		{Kind: raw.AccessCall, Owner: "com.lib.Api", Name: "ping", Descriptor: "()V", ReturnType: "void", Line: 13},
	}

	res, err := graph.NewLinker().Link(context.Background(), []*raw.ClassRecord{obj, base, svc})
	require.NoError(t, err)
	return res.Graph
}

func queryInt(t *testing.T, conn *sqlite.Conn, query string, args ...any) int64 {
	t.Helper()
	var n int64
	err := sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt64(0)
			return nil
		},
	})
	require.NoError(t, err)
	return n
}

func queryStrings(t *testing.T, conn *sqlite.Conn, query string, args ...any) []string {
	t.Helper()
	var out []string
	err := sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out = append(out, stmt.ColumnText(0))
			return nil
		},
	})
	require.NoError(t, err)
	return out
}

func TestSQLiteWriter_Write(t *testing.T) {
	g := sampleGraph(t)
	path := filepath.Join(t.TempDir(), "graph.db")
	w := NewSQLiteWriter(path, nil)

	stats, err := w.Write(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Classes)
	assert.Equal(t, len(g.Stubs()), stats.Stubs)
	assert.Equal(t, 5, stats.Members)
	assert.Equal(t, 3, stats.Accesses)
	assert.Equal(t, 2, stats.Targets)

	// A second write replaces the database.
	_, err = w.Write(context.Background(), g)
	require.NoError(t, err)

	conn, err := sqlite.OpenConn(path)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, int64(3), queryInt(t, conn, `SELECT COUNT(*) FROM classes WHERE stub = 0`))
	assert.Equal(t, int64(len(g.Stubs())), queryInt(t, conn, `SELECT COUNT(*) FROM classes WHERE stub = 1`))
	assert.Equal(t, int64(5), queryInt(t, conn, `SELECT COUNT(*) FROM members`))
	assert.Equal(t, int64(3), queryInt(t, conn, `SELECT COUNT(*) FROM accesses`))

	assert.Equal(t, []string{"com.acme.Base"}, queryStrings(t, conn, `SELECT superclass FROM classes WHERE name = ?`, "com.acme.Service"))
	assert.Equal(t, []string{"com.lib.Api"}, queryStrings(t, conn, `SELECT interface FROM interfaces WHERE class = ?`, "com.acme.Service"))
	assert.Equal(t, []string{"com.acme"}, queryStrings(t, conn, `SELECT package FROM classes WHERE name = ?`, "com.acme.Base"))

	targets := queryStrings(t, conn, `
SELECT t.target FROM access_targets t JOIN accesses a ON a.id = t.access_id
WHERE a.origin = ? ORDER BY a.line`, "com.acme.Service.go()")
	assert.Equal(t, []string{"com.acme.Base.run()", "java.lang.Object.toString()"}, targets)

	unresolved := queryStrings(t, conn, `
SELECT a.target FROM accesses a LEFT JOIN access_targets t ON a.id = t.access_id
WHERE t.access_id IS NULL`)
	assert.Equal(t, []string{"com.lib.Api.ping()"}, unresolved)
}

func TestSQLiteWriter_EmptyPath(t *testing.T) {
	_, err := NewSQLiteWriter("", nil).Write(context.Background(), sampleGraph(t))
	assert.Error(t, err)
}

// recordingRunner captures neo4j statements.
type recordingRunner struct {
	mu      sync.Mutex
	queries []string
	batches map[string]int
	rows    map[string]int
	failOn  string
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{batches: make(map[string]int), rows: make(map[string]int)}
}

func (r *recordingRunner) run(ctx context.Context, cypher string, params map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != "" && strings.Contains(cypher, r.failOn) {
		return errors.New("neo4j unavailable")
	}
	r.queries = append(r.queries, cypher)
	if batch, ok := params["batch"].([]map[string]any); ok {
		r.batches[cypher]++
		r.rows[cypher] += len(batch)
	}
	return nil
}

func TestNeo4jWriter_Write(t *testing.T) {
	g := sampleGraph(t)
	rec := newRecordingRunner()
	w := newNeo4jWriter(rec.run, Neo4jOptions{BatchSize: 2, Clean: true, Logger: nil})

	stats, err := w.Write(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Classes)

	classRows := 3 + len(g.Stubs())
	assert.Equal(t, classRows, rec.rows[cypherClasses])
	assert.Equal(t, (classRows+1)/2, rec.batches[cypherClasses])
	assert.Equal(t, 2, rec.rows[cypherExtends], "Base and Service declare superclasses")
	assert.Equal(t, 1, rec.rows[cypherImplements])
	assert.Zero(t, rec.rows[cypherNested])
	assert.Equal(t, 5, rec.rows[cypherMembers])
	assert.Equal(t, 3, rec.rows[cypherAccesses], "two resolved targets plus one unresolved declared target")

	for _, q := range append(neo4jIndexes, neo4jClean...) {
		assert.Contains(t, rec.queries, q)
	}
}

func TestNeo4jRows_Accesses(t *testing.T) {
	rs := neo4jRows(sampleGraph(t).ToSerializable())
	byTarget := make(map[string]map[string]any)
	for _, row := range rs.accesses {
		byTarget[row["target"].(string)] = row
	}
	require.Len(t, byTarget, 3)
	assert.Equal(t, true, byTarget["java.lang.Object.toString()"]["resolved"])
	assert.Equal(t, "com.acme.Service.toString()", byTarget["java.lang.Object.toString()"]["declared"])
	assert.Equal(t, false, byTarget["com.lib.Api.ping()"]["resolved"])
}

func TestNeo4jWriter_Errors(t *testing.T) {
	rec := newRecordingRunner()
	rec.failOn = "JavaMember {full_name: row.full_name}"
	w := newNeo4jWriter(rec.run, Neo4jOptions{})

	_, err := w.Write(context.Background(), sampleGraph(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writing members")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newNeo4jWriter(newRecordingRunner().run, Neo4jOptions{}).Write(ctx, sampleGraph(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewNeo4jWriter_NilDriver(t *testing.T) {
	_, err := NewNeo4jWriter(nil, Neo4jOptions{})
	assert.Error(t, err)
}
