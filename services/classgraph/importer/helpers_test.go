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
	"archive/zip"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	cft "github.com/AleutianAI/classgraph/services/classgraph/classfile/classfiletest"
	"github.com/AleutianAI/classgraph/services/classgraph/source"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func classPath(root, name string) string {
	return filepath.Join(root, filepath.FromSlash(strings.ReplaceAll(name, ".", "/"))+".class")
}

func writeBytes(t *testing.T, p string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
}

func writeClass(t *testing.T, root string, name string, c *cft.Class) {
	t.Helper()
	writeBytes(t, classPath(root, name), c.Bytes())
}

// simpleClass writes a class with the given superclass and no members.
func simpleClass(t *testing.T, root, name, super string) {
	t.Helper()
	writeClass(t, root, name, cft.New(name).Super(super))
}

func dirLocation(t *testing.T, dir string) source.Location {
	t.Helper()
	loc, err := source.DirectoryLocation(dir)
	require.NoError(t, err)
	return loc
}

func dirScope(t *testing.T, dirs ...string) ImportScope {
	t.Helper()
	locs := make([]source.Location, 0, len(dirs))
	for _, d := range dirs {
		locs = append(locs, dirLocation(t, d))
	}
	scope, err := NewImportScope(locs)
	require.NoError(t, err)
	return scope
}

func newTestImporter(opts ...Option) *Importer {
	return New(append([]Option{WithLogger(quietLogger()), WithWorkers(4)}, opts...)...)
}

func writeJar(t *testing.T, p string, entries map[string][]byte) {
	t.Helper()
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(entries[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}
