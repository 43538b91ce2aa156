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
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/AleutianAI/classgraph/services/classgraph/graph"
	"github.com/AleutianAI/classgraph/services/classgraph/raw"
)

const sqliteSchema = `
CREATE TABLE classes (
	name        TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	package     TEXT NOT NULL,
	modifiers   TEXT,
	superclass  TEXT,
	nesting     TEXT,
	enclosing   TEXT,
	location    TEXT,
	source_file TEXT,
	stub        INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE interfaces (
	class     TEXT NOT NULL,
	interface TEXT NOT NULL,
	position  INTEGER NOT NULL
);
CREATE TABLE members (
	full_name  TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	kind       TEXT NOT NULL,
	name       TEXT NOT NULL,
	descriptor TEXT NOT NULL,
	modifiers  TEXT,
	first_line INTEGER
);
CREATE TABLE accesses (
	id         INTEGER PRIMARY KEY,
	origin     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	target     TEXT NOT NULL,
	descriptor TEXT NOT NULL,
	line       INTEGER
);
CREATE TABLE access_targets (
	access_id INTEGER NOT NULL REFERENCES accesses(id),
	target    TEXT NOT NULL
);
`

const sqliteIndexes = `
CREATE INDEX idx_members_owner ON members(owner);
CREATE INDEX idx_accesses_origin ON accesses(origin);
CREATE INDEX idx_accesses_target ON accesses(target);
CREATE INDEX idx_access_targets_target ON access_targets(target);
CREATE INDEX idx_interfaces_interface ON interfaces(interface);
`

// SQLiteWriter writes a graph into a new SQLite database file.
//
// Description:
//
//	The file is replaced on every Write. Tables: classes (stubs flagged),
//	interfaces, members, accesses and access_targets holding the resolved
//	targets of every access.
//
// Thread Safety: Not safe for concurrent Write calls on the same path.
type SQLiteWriter struct {
	path   string
	logger *slog.Logger
}

// NewSQLiteWriter creates a writer for path.
func NewSQLiteWriter(path string, logger *slog.Logger) *SQLiteWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteWriter{path: path, logger: logger}
}

// Write replaces the database with g.
func (w *SQLiteWriter) Write(ctx context.Context, g *graph.Graph) (stats Stats, err error) {
	ctx, span := tracer.Start(ctx, "export.SQLiteWriter.Write")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if w.path == "" {
		return Stats{}, errors.New("sqlite path must not be empty")
	}
	if err := os.Remove(w.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Stats{}, fmt.Errorf("removing old database: %w", err)
	}

	conn, err := sqlite.OpenConn(w.path, sqlite.OpenCreate, sqlite.OpenReadWrite, sqlite.OpenWAL)
	if err != nil {
		return Stats{}, fmt.Errorf("open sqlite: %w", err)
	}
	defer func() { _ = conn.Close() }()
	conn.SetInterrupt(ctx.Done())

	for _, pragma := range []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA journal_mode = WAL",
	} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return Stats{}, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, sqliteSchema, nil); err != nil {
		return Stats{}, fmt.Errorf("creating tables: %w", err)
	}

	sg := g.ToSerializable()
	if err := w.insertAll(conn, sg); err != nil {
		return Stats{}, err
	}
	if err := sqlitex.ExecuteScript(conn, sqliteIndexes, nil); err != nil {
		return Stats{}, fmt.Errorf("creating indexes: %w", err)
	}

	stats = countStats(sg)
	span.SetAttributes(
		attribute.Int("classes", stats.Classes),
		attribute.Int("members", stats.Members),
		attribute.Int("accesses", stats.Accesses),
	)
	w.logger.Info("graph exported to sqlite",
		slog.String("path", w.path),
		slog.Int("classes", stats.Classes),
		slog.Int("members", stats.Members),
		slog.Int("accesses", stats.Accesses),
	)
	return stats, nil
}

func (w *SQLiteWriter) insertAll(conn *sqlite.Conn, sg *graph.SerializableGraph) (err error) {
	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer endFn(&err)

	if err := insertClasses(conn, sg); err != nil {
		return err
	}
	if err := insertMembers(conn, sg.Classes); err != nil {
		return err
	}
	return insertAccesses(conn, sg.Accesses)
}

func insertClasses(conn *sqlite.Conn, sg *graph.SerializableGraph) error {
	stmt, err := conn.Prepare(`INSERT INTO classes (name, kind, package, modifiers, superclass, nesting, enclosing, location, source_file, stub) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare class insert: %w", err)
	}
	defer func() { _ = stmt.Finalize() }()
	ifaceStmt, err := conn.Prepare(`INSERT INTO interfaces (class, interface, position) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare interface insert: %w", err)
	}
	defer func() { _ = ifaceStmt.Finalize() }()

	for _, c := range sg.Classes {
		stmt.BindText(1, c.Name)
		stmt.BindText(2, c.Kind)
		stmt.BindText(3, raw.PackageOf(c.Name))
		bindTextOrNull(stmt, 4, strings.Join(c.Modifiers, " "))
		bindTextOrNull(stmt, 5, c.Superclass)
		bindTextOrNull(stmt, 6, c.Nesting)
		bindTextOrNull(stmt, 7, c.Enclosing)
		bindTextOrNull(stmt, 8, c.Location)
		bindTextOrNull(stmt, 9, c.SourceFile)
		stmt.BindInt64(10, 0)
		if _, err := stmt.Step(); err != nil {
			return fmt.Errorf("insert class %s: %w", c.Name, err)
		}
		_ = stmt.Reset()

		for i, iface := range c.Interfaces {
			ifaceStmt.BindText(1, c.Name)
			ifaceStmt.BindText(2, iface)
			ifaceStmt.BindInt64(3, int64(i))
			if _, err := ifaceStmt.Step(); err != nil {
				return fmt.Errorf("insert interface %s of %s: %w", iface, c.Name, err)
			}
			_ = ifaceStmt.Reset()
		}
	}

	for _, name := range sg.Stubs {
		stmt.BindText(1, name)
		stmt.BindText(2, "stub")
		stmt.BindText(3, raw.PackageOf(name))
		for i := 4; i <= 9; i++ {
			stmt.BindNull(i)
		}
		stmt.BindInt64(10, 1)
		if _, err := stmt.Step(); err != nil {
			return fmt.Errorf("insert stub %s: %w", name, err)
		}
		_ = stmt.Reset()
	}
	return nil
}

func insertMembers(conn *sqlite.Conn, classes []graph.SerializableClass) error {
	stmt, err := conn.Prepare(`INSERT OR IGNORE INTO members (full_name, owner, kind, name, descriptor, modifiers, first_line) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare member insert: %w", err)
	}
	defer func() { _ = stmt.Finalize() }()

	for _, c := range classes {
		for _, m := range c.Members {
			stmt.BindText(1, m.FullName)
			stmt.BindText(2, c.Name)
			stmt.BindText(3, m.Kind)
			stmt.BindText(4, m.Name)
			stmt.BindText(5, m.Descriptor)
			bindTextOrNull(stmt, 6, strings.Join(m.Modifiers, " "))
			bindIntOrNull(stmt, 7, m.FirstLine)
			if _, err := stmt.Step(); err != nil {
				return fmt.Errorf("insert member %s: %w", m.FullName, err)
			}
			_ = stmt.Reset()
		}
	}
	return nil
}

func insertAccesses(conn *sqlite.Conn, accesses []graph.SerializableAccess) error {
	stmt, err := conn.Prepare(`INSERT INTO accesses (id, origin, kind, target, descriptor, line) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare access insert: %w", err)
	}
	defer func() { _ = stmt.Finalize() }()
	targetStmt, err := conn.Prepare(`INSERT INTO access_targets (access_id, target) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare target insert: %w", err)
	}
	defer func() { _ = targetStmt.Finalize() }()

	for i, a := range accesses {
		id := int64(i + 1)
		stmt.BindInt64(1, id)
		stmt.BindText(2, a.Origin)
		stmt.BindText(3, a.Kind)
		stmt.BindText(4, a.Target)
		stmt.BindText(5, a.Descriptor)
		bindIntOrNull(stmt, 6, a.Line)
		if _, err := stmt.Step(); err != nil {
			return fmt.Errorf("insert access %s -> %s: %w", a.Origin, a.Target, err)
		}
		_ = stmt.Reset()

		for _, t := range a.Resolved {
			targetStmt.BindInt64(1, id)
			targetStmt.BindText(2, t)
			if _, err := targetStmt.Step(); err != nil {
				return fmt.Errorf("insert target %s: %w", t, err)
			}
			_ = targetStmt.Reset()
		}
	}
	return nil
}

func bindTextOrNull(stmt *sqlite.Stmt, param int, val string) {
	if val == "" {
		stmt.BindNull(param)
	} else {
		stmt.BindText(param, val)
	}
}

func bindIntOrNull(stmt *sqlite.Stmt, param, val int) {
	if val == 0 {
		stmt.BindNull(param)
	} else {
		stmt.BindInt64(param, int64(val))
	}
}
