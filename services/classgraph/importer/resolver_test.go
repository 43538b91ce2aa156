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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cft "github.com/AleutianAI/classgraph/services/classgraph/classfile/classfiletest"
	"github.com/AleutianAI/classgraph/services/classgraph/source"
)

func TestClasspathResolver_Resolve(t *testing.T) {
	dir := t.TempDir()
	classes := filepath.Join(dir, "classes")
	simpleClass(t, classes, "com.lib.Shadowed", "java.lang.Object")
	simpleClass(t, classes, "com.lib.DirOnly", "java.lang.Object")
	// Declares a different class than its path implies.
	writeBytes(t, classPath(classes, "com.lib.Liar"), cft.New("com.lib.Other").Bytes())

	jar := filepath.Join(dir, "lib.jar")
	writeJar(t, jar, map[string][]byte{
		"com/lib/Shadowed.class": cft.New("com.lib.Shadowed").Super("com.lib.FromJar").Bytes(),
		"com/lib/JarOnly.class":  cft.New("com.lib.JarOnly").Bytes(),
		"org/x/Hidden.class":     cft.New("org.x.Hidden").Bytes(),
	})
	archive, err := source.ArchiveLocation(jar, "")
	require.NoError(t, err)
	prefixed, err := source.ArchiveLocation(jar, "com/")
	require.NoError(t, err)

	tests := []struct {
		name      string
		locations []source.Location
		class     string
		found     bool
		super     string
	}{
		{"directory", []source.Location{dirLocation(t, classes)}, "com.lib.DirOnly", true, "java.lang.Object"},
		{"archive", []source.Location{archive}, "com.lib.JarOnly", true, "java.lang.Object"},
		{"first location wins", []source.Location{dirLocation(t, classes), archive}, "com.lib.Shadowed", true, "java.lang.Object"},
		{"first location wins reversed", []source.Location{archive, dirLocation(t, classes)}, "com.lib.Shadowed", true, "com.lib.FromJar"},
		{"unknown class", []source.Location{dirLocation(t, classes), archive}, "com.lib.Missing", false, ""},
		{"declared name mismatch", []source.Location{dirLocation(t, classes)}, "com.lib.Liar", false, ""},
		{"outside archive prefix", []source.Location{prefixed}, "org.x.Hidden", false, ""},
		{"inside archive prefix", []source.Location{prefixed}, "com.lib.JarOnly", true, "java.lang.Object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewClasspathResolver(nil, quietLogger(), tt.locations...)
			defer r.Close()

			rec, err := r.Resolve(context.Background(), tt.class)
			require.NoError(t, err)
			if !tt.found {
				assert.Nil(t, rec)
				return
			}
			require.NotNil(t, rec)
			assert.Equal(t, tt.class, rec.Name)
			assert.Equal(t, tt.super, rec.SuperName)
		})
	}
}

func TestClasspathResolver_Closed(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "lib.jar")
	writeJar(t, jar, map[string][]byte{"a/A.class": cft.New("a.A").Bytes()})
	archive, err := source.ArchiveLocation(jar, "")
	require.NoError(t, err)

	r := NewClasspathResolver(nil, quietLogger(), archive)
	rec, err := r.Resolve(context.Background(), "a.A")
	require.NoError(t, err)
	require.NotNil(t, rec)

	require.NoError(t, r.Close())
	_, err = r.Resolve(context.Background(), "a.A")
	assert.Error(t, err)
}

func TestClasspathResolver_Cancelled(t *testing.T) {
	r := NewClasspathResolver(nil, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Resolve(ctx, "a.A")
	assert.ErrorIs(t, err, context.Canceled)
}
