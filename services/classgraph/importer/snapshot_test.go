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
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/classgraph/services/classgraph/raw"
)

func newTestStore(t *testing.T) *SnapshotStore {
	t.Helper()
	s, err := OpenSnapshotStore("", 0, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSnapshotRecords() []*raw.ClassRecord {
	return []*raw.ClassRecord{
		{
			Name:       "com.acme.A",
			SuperName:  "java.lang.Object",
			Interfaces: []string{"com.acme.I"},
			Source:     raw.SourceInfo{Location: "file:/tmp/com/acme/A.class", Digest: "abc"},
		},
		{
			Name:      "com.acme.B",
			SuperName: "com.acme.A",
			Source:    raw.SourceInfo{Location: "file:/tmp/com/acme/B.class"},
		},
	}
}

func TestNewSnapshotStore_NilDB(t *testing.T) {
	_, err := NewSnapshotStore(nil, 0, nil)
	assert.Error(t, err)
}

func TestSnapshotStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	records := sampleSnapshotRecords()
	diags := []raw.Diagnostic{{Kind: raw.DiagnosticFormatError, Severity: raw.SeverityWarning, Location: "file:/tmp/x.class", Message: "bad magic"}}

	meta, err := s.Save(ctx, "scope-1", "fp-1", 3, records, diags)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.Records)
	assert.Equal(t, 3, meta.Units)
	assert.NotEmpty(t, meta.ContentHash)
	assert.Positive(t, meta.CompressedSize)

	snap, err := s.Load(ctx, "scope-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, records, snap.Records)
	assert.Equal(t, diags, snap.Diagnostics)
	assert.Equal(t, 3, snap.Metadata.Units)
	assert.Equal(t, meta.ContentHash, snap.Metadata.ContentHash)
}

func TestSnapshotStore_Misses(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Save(ctx, "scope-1", "fp-1", 1, sampleSnapshotRecords(), nil)
	require.NoError(t, err)

	tests := []struct {
		name        string
		scope       string
		fingerprint string
	}{
		{"unknown scope", "scope-2", "fp-1"},
		{"changed locations", "scope-1", "fp-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Load(ctx, tt.scope, tt.fingerprint)
			assert.ErrorIs(t, err, ErrSnapshotNotFound)
		})
	}
}

func TestSnapshotStore_IntegrityFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Save(ctx, "scope-1", "fp-1", 1, sampleSnapshotRecords(), nil)
	require.NoError(t, err)

	require.NoError(t, s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefixSnap+"scope-1"+keySuffixData), []byte("tampered"))
	}))

	_, err = s.Load(ctx, "scope-1", "fp-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSnapshotNotFound)
	assert.Contains(t, err.Error(), "integrity check failed")
}

func TestSnapshotStore_ListDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Save(ctx, "scope-1", "fp", 1, sampleSnapshotRecords(), nil)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = s.Save(ctx, "scope-2", "fp", 1, sampleSnapshotRecords()[:1], nil)
	require.NoError(t, err)

	metas, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "scope-2", metas[0].ScopeKey)

	limited, err := s.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, s.Delete(ctx, "scope-1"))
	_, err = s.Load(ctx, "scope-1", "fp")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
	assert.NoError(t, s.Delete(ctx, "scope-1"))

	metas, err = s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, metas, 1)
}

func TestSnapshotStore_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newTestStore(t)
	_, err := s.Save(ctx, "scope", "fp", 0, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Load(ctx, "scope", "fp")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFingerprint(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	simpleClass(t, dir, "com.acme.A", "java.lang.Object")
	scope := dirScope(t, dir)

	fp1, err := Fingerprint(ctx, scope)
	require.NoError(t, err)
	fp2, err := Fingerprint(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)

	writeBytes(t, filepath.Join(dir, "notes.txt"), []byte("ignored"))
	fp3, err := Fingerprint(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp3, "non-class files do not change the fingerprint")

	simpleClass(t, dir, "com.acme.B", "java.lang.Object")
	fp4, err := Fingerprint(ctx, scope)
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp4)
}

func TestImport_SnapshotTier(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	simpleClass(t, dir, "com.acme.A", "com.acme.B")
	simpleClass(t, dir, "com.acme.B", "java.lang.Object")
	scope := dirScope(t, dir)

	im := newTestImporter(WithSnapshotStore(newTestStore(t)))

	first, err := im.Import(ctx, scope)
	require.NoError(t, err)
	assert.False(t, first.Stats.FromSnapshot)

	second, err := im.Import(ctx, scope)
	require.NoError(t, err)
	assert.True(t, second.Stats.FromSnapshot)
	assert.Equal(t, first.Stats.Units, second.Stats.Units)
	assert.Equal(t, first.Graph.Hash(), second.Graph.Hash())

	simpleClass(t, dir, "com.acme.C", "com.acme.A")
	third, err := im.Import(ctx, scope)
	require.NoError(t, err)
	assert.False(t, third.Stats.FromSnapshot)
	assert.True(t, third.Graph.Contains("com.acme.C"))
}
