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
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cft "github.com/AleutianAI/classgraph/services/classgraph/classfile/classfiletest"
	"github.com/AleutianAI/classgraph/services/classgraph/graph"
	"github.com/AleutianAI/classgraph/services/classgraph/raw"
	"github.com/AleutianAI/classgraph/services/classgraph/source"
)

func TestImportScope_Key(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	locA, locB := dirLocation(t, a), dirLocation(t, b)

	base := ImportScope{Locations: []source.Location{locA, locB}}

	tests := []struct {
		name  string
		other ImportScope
		equal bool
	}{
		{"identical", ImportScope{Locations: []source.Location{locA, locB}}, true},
		{"repeated location", ImportScope{Locations: []source.Location{locA, locB, locA}}, true},
		{"reversed order", ImportScope{Locations: []source.Location{locB, locA}}, false},
		{"subset", ImportScope{Locations: []source.Location{locA}}, false},
		{"with filter", ImportScope{Locations: []source.Location{locA, locB}, Filters: []source.Filter{source.DoNotIncludeTests}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.equal {
				assert.Equal(t, base.Key(), tt.other.Key())
			} else {
				assert.NotEqual(t, base.Key(), tt.other.Key())
			}
		})
	}

	t.Run("filter order and repeats", func(t *testing.T) {
		f1 := ImportScope{Locations: []source.Location{locA}, Filters: []source.Filter{source.DoNotIncludeTests, source.DoNotIncludeArchives}}
		f2 := ImportScope{Locations: []source.Location{locA}, Filters: []source.Filter{source.DoNotIncludeArchives, source.DoNotIncludeTests, source.DoNotIncludeArchives}}
		assert.Equal(t, f1.Key(), f2.Key())
	})
}

func TestImportScope_Validate(t *testing.T) {
	dir := t.TempDir()
	missing, err := source.DirectoryLocation(filepath.Join(dir, "does-not-exist"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		scope   ImportScope
		wantErr error
	}{
		{"no locations", ImportScope{}, ErrInvalidScope},
		{"nil filter", ImportScope{Locations: []source.Location{dirLocation(t, dir)}, Filters: []source.Filter{nil}}, source.ErrNilFilter},
		{"missing location", ImportScope{Locations: []source.Location{missing}}, source.ErrInvalidLocation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scope.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidScope)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, dirScope(t, dir).Validate())
	})
}

func TestImport_Directory(t *testing.T) {
	dir := t.TempDir()
	simpleClass(t, dir, "com.acme.A", "com.acme.B")
	simpleClass(t, dir, "com.acme.B", "java.lang.Object")
	writeBytes(t, filepath.Join(dir, "com/acme/Broken.class"), []byte("not a class file"))
	writeClass(t, dir, "com.acme.Future", cft.New("com.acme.Future").Version(99))

	scope := dirScope(t, dir)
	res, err := newTestImporter().Import(context.Background(), scope)
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, scope.Key(), res.ScopeKey)
	assert.Equal(t, 4, res.Stats.Units)
	assert.Equal(t, 2, res.Stats.Records)
	assert.Equal(t, 2, res.Stats.Link.Imported)
	assert.False(t, res.Stats.FromSnapshot)

	a := res.Graph.MustClass("com.acme.A")
	require.NotNil(t, a.Superclass())
	assert.Equal(t, "com.acme.B", a.Superclass().Name())
	assert.False(t, a.Unresolved())
	assert.True(t, res.Graph.MustClass("java.lang.Object").Unresolved())
	assert.False(t, res.Graph.Contains("com.acme.Future"))

	counts := raw.CountByKind(res.Diagnostics)
	assert.Equal(t, 1, counts[raw.DiagnosticFormatError])
	assert.Equal(t, 1, counts[raw.DiagnosticUnsupportedVersion])
}

func TestImport_Archive(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "lib.jar")
	writeJar(t, jar, map[string][]byte{
		"com/lib/Base.class": cft.New("com.lib.Base").Bytes(),
		"com/lib/Impl.class": cft.New("com.lib.Impl").Super("com.lib.Base").Bytes(),
	})
	loc, err := source.ArchiveLocation(jar, "")
	require.NoError(t, err)
	scope, err := NewImportScope([]source.Location{loc})
	require.NoError(t, err)

	res, err := newTestImporter().Import(context.Background(), scope)
	require.NoError(t, err)
	impl := res.Graph.MustClass("com.lib.Impl")
	assert.Equal(t, "com.lib.Base", impl.Superclass().Name())
	assert.True(t, strings.HasPrefix(impl.Source().Location, "jar:"), impl.Source().Location)
}

func TestImport_DuplicateClassLaterLocationWins(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	c1 := cft.New("com.acme.A")
	c1.Field(cft.AccPublic, "first", "I")
	writeClass(t, first, "com.acme.A", c1)
	c2 := cft.New("com.acme.A")
	c2.Field(cft.AccPublic, "second", "I")
	writeClass(t, second, "com.acme.A", c2)

	tests := []struct {
		name  string
		dirs  []string
		field string
	}{
		{"first then second", []string{first, second}, "second"},
		{"second then first", []string{second, first}, "first"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestImporter().Import(context.Background(), dirScope(t, tt.dirs...))
			require.NoError(t, err)

			a := res.Graph.MustClass("com.acme.A")
			_, ok := a.Field(tt.field)
			assert.True(t, ok, "expected field %s", tt.field)
			assert.Len(t, a.Fields(), 1)
			assert.Equal(t, 1, raw.CountByKind(res.Diagnostics)[raw.DiagnosticDuplicateClass])
		})
	}
}

func TestImport_FiltersApplyBeforeParsing(t *testing.T) {
	dir := t.TempDir()
	simpleClass(t, dir, "com.acme.A", "java.lang.Object")
	writeBytes(t, filepath.Join(dir, "com/acme/broken/Bad.class"), []byte("garbage"))

	skipBroken := source.FilterFunc("skip-broken", func(c source.Candidate) bool {
		return !strings.Contains(c.Entry, "/broken/")
	})
	scope, err := NewImportScope([]source.Location{dirLocation(t, dir)}, skipBroken)
	require.NoError(t, err)

	res, err := newTestImporter().Import(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Units)
	assert.Zero(t, raw.CountByKind(res.Diagnostics)[raw.DiagnosticFormatError])
	assert.True(t, res.Graph.Contains("com.acme.A"))
}

func TestImport_InvalidScope(t *testing.T) {
	_, err := newTestImporter().Import(context.Background(), ImportScope{})
	assert.ErrorIs(t, err, ErrInvalidScope)
}

func TestImport_Cancelled(t *testing.T) {
	dir := t.TempDir()
	simpleClass(t, dir, "com.acme.A", "java.lang.Object")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := newTestImporter().Import(ctx, dirScope(t, dir))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

// dependencyFixture writes an application directory and a library
// classpath:
//
//	com.acme.App extends com.lib.Base, has a field of type com.lib.Dep
//	com.lib.Base extends com.lib.Root
//	com.lib.Dep has a field of type com.lib.Dep2
func dependencyFixture(t *testing.T) (app, lib string) {
	t.Helper()
	app, lib = t.TempDir(), t.TempDir()

	c := cft.New("com.acme.App").Super("com.lib.Base")
	c.Field(cft.AccPrivate, "dep", "Lcom/lib/Dep;")
	writeClass(t, app, "com.acme.App", c)

	simpleClass(t, lib, "com.lib.Base", "com.lib.Root")
	simpleClass(t, lib, "com.lib.Root", "java.lang.Object")
	d := cft.New("com.lib.Dep")
	d.Field(cft.AccPrivate, "next", "Lcom/lib/Dep2;")
	writeClass(t, lib, "com.lib.Dep", d)
	simpleClass(t, lib, "com.lib.Dep2", "java.lang.Object")
	return app, lib
}

func TestImport_DependencyCompletion(t *testing.T) {
	app, lib := dependencyFixture(t)
	scope := dirScope(t, app)

	tests := []struct {
		name     string
		opts     func(r ClassResolver) []Option
		resolved []string
		stubs    []string
	}{
		{
			name:  "disabled",
			opts:  func(ClassResolver) []Option { return nil },
			stubs: []string{"com.lib.Base", "com.lib.Dep"},
		},
		{
			name:     "default limits",
			opts:     func(r ClassResolver) []Option { return []Option{WithResolver(r)} },
			resolved: []string{"com.lib.Base", "com.lib.Root", "com.lib.Dep"},
			stubs:    []string{"com.lib.Dep2"},
		},
		{
			name: "member types two levels",
			opts: func(r ClassResolver) []Option {
				return []Option{WithResolver(r), WithIterationLimit(raw.RefMemberType, 2)}
			},
			resolved: []string{"com.lib.Base", "com.lib.Root", "com.lib.Dep", "com.lib.Dep2"},
		},
		{
			name: "member types disabled",
			opts: func(r ClassResolver) []Option {
				return []Option{WithResolver(r), WithIterationLimit(raw.RefMemberType, 0)}
			},
			resolved: []string{"com.lib.Base", "com.lib.Root"},
			stubs:    []string{"com.lib.Dep"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := NewClasspathResolver(nil, quietLogger(), dirLocation(t, lib))
			defer resolver.Close()

			res, err := newTestImporter(tt.opts(resolver)...).Import(context.Background(), scope)
			require.NoError(t, err)

			for _, name := range tt.resolved {
				c, ok := res.Graph.Class(name)
				require.True(t, ok, name)
				assert.Equal(t, graph.OriginImported, c.Origin(), name)
			}
			for _, name := range tt.stubs {
				c, ok := res.Graph.Class(name)
				require.True(t, ok, name)
				assert.True(t, c.Unresolved(), name)
			}
			assert.Equal(t, len(tt.resolved), res.Stats.Resolved)
			assert.Equal(t, 1, res.Stats.Records)
		})
	}
}

func TestImport_ResolverFailure(t *testing.T) {
	app, _ := dependencyFixture(t)
	failing := ClassResolverFunc(func(ctx context.Context, name string) (*raw.ClassRecord, error) {
		if name == "com.lib.Base" {
			return nil, errors.New("classpath unavailable")
		}
		return nil, nil
	})

	res, err := newTestImporter(WithResolver(failing)).Import(context.Background(), dirScope(t, app))
	require.NoError(t, err)

	var failures []raw.Diagnostic
	for _, d := range res.Diagnostics {
		if d.Kind == raw.DiagnosticResolverFailure {
			failures = append(failures, d)
		}
	}
	require.Len(t, failures, 1)
	assert.Equal(t, "com.lib.Base", failures[0].Class)
	assert.True(t, res.Graph.MustClass("com.lib.Base").Unresolved())
}

func TestImport_Idempotent(t *testing.T) {
	dir := t.TempDir()
	simpleClass(t, dir, "com.acme.A", "com.acme.B")
	simpleClass(t, dir, "com.acme.B", "java.lang.Object")
	c := cft.New("com.acme.C").Super("com.acme.A")
	c.Method(cft.AccPublic, "run", "()V").Code().
		InvokeVirtual("com.acme.A", "toString", "()Ljava/lang/String;").
		Return()
	writeClass(t, dir, "com.acme.C", c)

	scope := dirScope(t, dir)
	im := newTestImporter()
	first, err := im.Import(context.Background(), scope)
	require.NoError(t, err)
	second, err := im.Import(context.Background(), scope)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Graph.Hash(), second.Graph.Hash())
}
