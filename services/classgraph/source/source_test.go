// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package source

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, p string, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
}

func classDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "com/acme/Foo.class"), "foo")
	writeFile(t, filepath.Join(dir, "com/acme/Foo$Inner.class"), "inner")
	writeFile(t, filepath.Join(dir, "com/acme/package-info.class"), "pkg")
	writeFile(t, filepath.Join(dir, "com/acme/generated/Gen.class"), "gen")
	writeFile(t, filepath.Join(dir, "com/acme/notes.txt"), "txt")
	writeFile(t, filepath.Join(dir, "module-info.class"), "module")
	return dir
}

func writeArchive(t *testing.T, p string, entries map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, name := range []string{"com/", "com/acme/", "com/acme/A.class", "com/acme/sub/B.class", "org/other/C.class", "META-INF/MANIFEST.MF"} {
		data, ok := entries[name]
		if !ok {
			continue
		}
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(data))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

var archiveEntries = map[string]string{
	"com/":                 "",
	"com/acme/":            "",
	"com/acme/A.class":     "a",
	"com/acme/sub/B.class": "b",
	"org/other/C.class":    "c",
	"META-INF/MANIFEST.MF": "Manifest-Version: 1.0\n",
}

func collect(t *testing.T, loc Location, filters ...Filter) []string {
	t.Helper()
	var entries []string
	for u, err := range Units(context.Background(), loc, filters...) {
		require.NoError(t, err)
		entries = append(entries, u.Entry)
	}
	return entries
}

func TestUnits_Directory(t *testing.T) {
	loc, err := DirectoryLocation(classDir(t))
	require.NoError(t, err)

	got := collect(t, loc)
	assert.Equal(t, []string{
		"com/acme/Foo$Inner.class",
		"com/acme/Foo.class",
		"com/acme/generated/Gen.class",
		"com/acme/package-info.class",
	}, got)

	// The sequence is restartable.
	assert.Equal(t, got, collect(t, loc))
}

func TestUnits_ReadAll(t *testing.T) {
	dir := classDir(t)
	loc, err := DirectoryLocation(dir)
	require.NoError(t, err)

	for u, err := range Units(context.Background(), loc, FilterFunc("foo", func(c Candidate) bool {
		return c.ClassName() == "com.acme.Foo"
	})) {
		require.NoError(t, err)
		data, err := u.ReadAll()
		require.NoError(t, err)
		assert.Equal(t, "foo", string(data))
		assert.Equal(t, "file:"+filepath.ToSlash(filepath.Join(dir, "com/acme/Foo.class")), u.URI)
	}
}

func TestUnits_Archive(t *testing.T) {
	jar := filepath.Join(t.TempDir(), "libs", "acme.jar")
	writeArchive(t, jar, archiveEntries)

	t.Run("whole archive", func(t *testing.T) {
		loc, err := ArchiveLocation(jar, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"com/acme/A.class", "com/acme/sub/B.class", "org/other/C.class"}, collect(t, loc))
	})

	t.Run("prefix", func(t *testing.T) {
		loc, err := ArchiveLocation(jar, "/com/acme")
		require.NoError(t, err)
		assert.Equal(t, "com/acme/", loc.Prefix)
		var data []string
		for u, err := range Units(context.Background(), loc) {
			require.NoError(t, err)
			b, err := u.ReadAll()
			require.NoError(t, err)
			data = append(data, string(b))
			assert.Contains(t, u.URI, "!/com/acme/")
		}
		assert.Equal(t, []string{"a", "b"}, data)
	})

	t.Run("not an archive", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.jar")
		writeFile(t, bad, "not a zip")
		loc, err := ArchiveLocation(bad, "")
		require.NoError(t, err)
		var errs []error
		for _, err := range Units(context.Background(), loc) {
			errs = append(errs, err)
		}
		require.Len(t, errs, 1)
		assert.True(t, errors.Is(errs[0], ErrInvalidLocation))
	})
}

func TestUnits_File(t *testing.T) {
	dir := classDir(t)
	loc, err := FileLocation(filepath.Join(dir, "com/acme/Foo.class"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Foo.class"}, collect(t, loc))

	missing, err := FileLocation(filepath.Join(dir, "Missing.class"))
	require.NoError(t, err)
	for _, err := range Units(context.Background(), missing) {
		assert.True(t, errors.Is(err, ErrInvalidLocation))
	}
}

func TestUnits_MissingDirectory(t *testing.T) {
	loc, err := DirectoryLocation(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	var errs []error
	for _, err := range Units(context.Background(), loc) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], ErrInvalidLocation))
}

func TestUnits_Cancelled(t *testing.T) {
	loc, err := DirectoryLocation(classDir(t))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var errs []error
	for _, err := range Units(ctx, loc) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], context.Canceled))
}

func TestUnits_EarlyBreak(t *testing.T) {
	loc, err := DirectoryLocation(classDir(t))
	require.NoError(t, err)
	n := 0
	for range Units(context.Background(), loc) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestUnits_NilFilter(t *testing.T) {
	loc, err := DirectoryLocation(classDir(t))
	require.NoError(t, err)
	for _, err := range Units(context.Background(), loc, DoNotIncludeTests, nil) {
		assert.True(t, errors.Is(err, ErrNilFilter))
	}
}

func TestFilters(t *testing.T) {
	root := t.TempDir()
	mainDir := filepath.Join(root, "target", "classes")
	testDir := filepath.Join(root, "target", "test-classes")
	gradleTestDir := filepath.Join(root, "build", "classes", "java", "test")
	writeFile(t, filepath.Join(mainDir, "com/acme/Foo.class"), "x")
	writeFile(t, filepath.Join(testDir, "com/acme/FooTest.class"), "x")
	writeFile(t, filepath.Join(gradleTestDir, "com/acme/BarTest.class"), "x")
	testJar := filepath.Join(root, "libs", "acme-tests.jar")
	writeArchive(t, testJar, archiveEntries)

	mainLoc, _ := DirectoryLocation(mainDir)
	testLoc, _ := DirectoryLocation(testDir)
	gradleLoc, _ := DirectoryLocation(gradleTestDir)
	jarLoc, _ := ArchiveLocation(testJar, "com/acme")

	tests := []struct {
		name   string
		loc    Location
		filter Filter
		want   []string
	}{
		{"main without tests", mainLoc, DoNotIncludeTests, []string{"com/acme/Foo.class"}},
		{"maven tests excluded", testLoc, DoNotIncludeTests, nil},
		{"gradle tests excluded", gradleLoc, DoNotIncludeTests, nil},
		{"test archive excluded", jarLoc, DoNotIncludeTests, nil},
		{"only tests keeps maven tests", testLoc, OnlyIncludeTests, []string{"com/acme/FooTest.class"}},
		{"only tests drops main", mainLoc, OnlyIncludeTests, nil},
		{"archives excluded", jarLoc, DoNotIncludeArchives, nil},
		{"directories kept", mainLoc, DoNotIncludeArchives, []string{"com/acme/Foo.class"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, collect(t, tt.loc, tt.filter))
		})
	}
}

func TestFilters_PackageInfoAndPatterns(t *testing.T) {
	loc, err := DirectoryLocation(classDir(t))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"com/acme/Foo$Inner.class",
		"com/acme/Foo.class",
		"com/acme/generated/Gen.class",
	}, collect(t, loc, DoNotIncludePackageInfos))

	assert.Equal(t, []string{
		"com/acme/Foo.class",
		"com/acme/package-info.class",
	}, collect(t, loc, ExcludePatterns("generated/", "*Inner.class")))

	ignoreFile := filepath.Join(t.TempDir(), ".classgraphignore")
	writeFile(t, ignoreFile, "# generated sources\ngenerated/\npackage-info.class\n")
	f, err := ExcludeFile(ignoreFile)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"com/acme/Foo$Inner.class",
		"com/acme/Foo.class",
	}, collect(t, loc, f))

	_, err = ExcludeFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestFilterKeys(t *testing.T) {
	assert.Equal(t, ExcludePatterns("a", "b").Key(), ExcludePatterns("a", "b").Key())
	assert.NotEqual(t, ExcludePatterns("a", "b").Key(), ExcludePatterns("ab").Key())
	assert.NotEqual(t, DoNotIncludeTests.Key(), OnlyIncludeTests.Key())

	f, err := NamedFilter("do-not-include-archives")
	require.NoError(t, err)
	assert.Equal(t, DoNotIncludeArchives.Key(), f.Key())
	_, err = NamedFilter("nope")
	assert.Error(t, err)
}

func TestParseLocation(t *testing.T) {
	dir := classDir(t)
	jar := filepath.Join(t.TempDir(), "acme.jar")
	writeArchive(t, jar, archiveEntries)
	class := filepath.Join(dir, "com/acme/Foo.class")

	tests := []struct {
		in         string
		wantKind   LocationKind
		wantPrefix string
		wantErr    bool
	}{
		{in: dir, wantKind: LocationDirectory},
		{in: "file:" + dir, wantKind: LocationDirectory},
		{in: jar, wantKind: LocationArchive},
		{in: jar + "!/com/acme", wantKind: LocationArchive, wantPrefix: "com/acme/"},
		{in: "jar:file:" + jar + "!/org/", wantKind: LocationArchive, wantPrefix: "org/"},
		{in: class, wantKind: LocationFile},
		{in: filepath.Join(dir, "com/acme/notes.txt"), wantErr: true},
		{in: filepath.Join(dir, "missing"), wantErr: true},
		{in: dir + "!/com", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			loc, err := ParseLocation(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidLocation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, loc.Kind)
			assert.Equal(t, tt.wantPrefix, loc.Prefix)
			assert.True(t, filepath.IsAbs(loc.Path))
		})
	}
}

func TestLocationString(t *testing.T) {
	loc := Location{Kind: LocationArchive, Path: "/libs/acme.jar", Prefix: "com/acme/"}
	assert.Equal(t, "jar:file:/libs/acme.jar!/com/acme/", loc.String())
	assert.NotEqual(t, loc.Key(), Location{Kind: LocationArchive, Path: "/libs/acme.jar"}.Key())

	dir := Location{Kind: LocationDirectory, Path: "/build/classes"}
	assert.Equal(t, "file:/build/classes", dir.String())
}
