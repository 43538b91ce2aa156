// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cft "github.com/AleutianAI/classgraph/services/classgraph/classfile/classfiletest"
)

// classDir writes com.acme.Base with run() and com.acme.App extending it
// with go() calling run().
func classDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	write := func(name string, c *cft.Class) {
		p := filepath.Join(dir, filepath.FromSlash(strings.ReplaceAll(name, ".", "/"))+".class")
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, c.Bytes(), 0o644))
	}

	base := cft.New("com.acme.Base")
	base.Method(cft.AccPublic, "run", "()V").Code().Return()
	write("com.acme.Base", base)

	app := cft.New("com.acme.App").Super("com.acme.Base")
	app.Method(cft.AccPublic, "go", "()V").Code().
		InvokeVirtual("com.acme.App", "run", "()V").
		Return()
	write("com.acme.App", app)
	return dir
}

// run executes the CLI and returns stdout and the error.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CLASSGRAPH_SNAPSHOT_ENABLED", "false")
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestRootCmd_Help(t *testing.T) {
	var stdout bytes.Buffer
	cmd := newRootCmd(&stdout, &stdout)
	cmd.SetArgs([]string{"--help"})
	require.NoError(t, cmd.Execute())
	for _, sub := range []string{"import", "resolve", "export", "serve", "watch"} {
		assert.Contains(t, stdout.String(), sub)
	}
}

func TestImportCmd(t *testing.T) {
	dir := classDir(t)

	t.Run("text", func(t *testing.T) {
		out, err := run(t, "import", dir)
		require.NoError(t, err)
		assert.Contains(t, out, "imported 2 classes from 2 units")
	})

	t.Run("json", func(t *testing.T) {
		out, err := run(t, "import", "--json", dir)
		require.NoError(t, err)
		var summary importSummary
		require.NoError(t, json.Unmarshal([]byte(out), &summary))
		assert.NotEmpty(t, summary.ID)
		assert.Equal(t, 2, summary.Stats.Link.Imported)
		assert.Empty(t, summary.Diagnostics)
	})

	t.Run("missing location", func(t *testing.T) {
		_, err := run(t, "import", filepath.Join(dir, "missing"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid location")
	})

	t.Run("no arguments", func(t *testing.T) {
		_, err := run(t, "import")
		assert.Error(t, err)
	})
}

func TestResolveCmd(t *testing.T) {
	dir := classDir(t)

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{"inherited method", []string{"--owner", "com.acme.App", "--name", "run"}, "com.acme.Base.run()\n", false},
		{"declared method", []string{"--owner", "com.acme.App", "--name", "go"}, "com.acme.App.go()\n", false},
		{"unknown", []string{"--owner", "com.acme.App", "--name", "stop"}, "no targets\n", false},
		{"stub owner", []string{"--owner", "java.lang.Object", "--name", "toString"}, "no targets\n", false},
		{"missing owner", []string{"--name", "run"}, "", true},
		{"missing name", []string{"--owner", "com.acme.App"}, "", true},
		{"bad kind", []string{"--owner", "com.acme.App", "--name", "run", "--kind", "lambda"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append(append([]string{"resolve"}, tt.args...), dir)...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestExportSQLiteCmd(t *testing.T) {
	dir := classDir(t)
	db := filepath.Join(t.TempDir(), "out.db")

	out, err := run(t, "export", "sqlite", "--out", db, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "exported to sqlite "+db+": 2 classes")
	assert.FileExists(t, db)
}

func TestExportNeo4jCmd_RequiresURI(t *testing.T) {
	t.Setenv("CLASSGRAPH_NEO4J_URI", "")
	_, err := run(t, "export", "neo4j", classDir(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uri is required")
}

func TestConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("import:\n  workers: -3\n"), 0o644))

	_, err := run(t, "--config", path, "import", classDir(t))
	assert.Error(t, err)
}

func TestUseText(t *testing.T) {
	tests := []struct {
		format string
		want   bool
	}{
		{"text", true},
		{"json", false},
		{"auto", false},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			assert.Equal(t, tt.want, useText(tt.format, &bytes.Buffer{}))
		})
	}
}
