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
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/classgraph/services/classgraph/raw"
	"github.com/AleutianAI/classgraph/services/classgraph/source"
)

// BadgerDB key layout for record snapshots.
const (
	keyPrefixSnap   = "classgraph:snap:"
	keySuffixData   = ":data"
	keySuffixMeta   = ":meta"
	snapshotVersion = "1"
)

// ErrSnapshotNotFound means no snapshot exists for a scope or the stored
// snapshot was taken from different location contents.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotMetadata describes a stored snapshot.
type SnapshotMetadata struct {
	// ScopeKey is ImportScope.Key of the scanned scope.
	ScopeKey string `json:"scope_key"`

	// Fingerprint is the location fingerprint the records were read from.
	Fingerprint string `json:"fingerprint"`

	// Version is the payload format version.
	Version string `json:"version"`

	CreatedAtMilli int64 `json:"created_at_milli"`
	Units          int   `json:"units"`
	Records        int   `json:"records"`
	CompressedSize int64 `json:"compressed_size"`

	// ContentHash is the SHA256 of the compressed payload.
	ContentHash string `json:"content_hash"`
}

// Snapshot is a loaded snapshot.
type Snapshot struct {
	Metadata    SnapshotMetadata
	Records     []*raw.ClassRecord
	Diagnostics []raw.Diagnostic
}

type snapshotPayload struct {
	Records     []*raw.ClassRecord `json:"records"`
	Diagnostics []raw.Diagnostic   `json:"diagnostics,omitempty"`
}

// SnapshotStore keeps scanned class records in BadgerDB.
//
// Description:
//
//	One snapshot per scope key, stored as gzip-compressed JSON next to its
//	metadata. A snapshot is only returned for the fingerprint it was saved
//	with, so changed locations are read again.
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency control.
type SnapshotStore struct {
	db     *badger.DB
	ttl    time.Duration
	owned  bool
	logger *slog.Logger
}

// NewSnapshotStore creates a store on an opened BadgerDB. The caller keeps
// ownership of db. A ttl of 0 keeps snapshots until deleted.
//
// Outputs:
//
//	*SnapshotStore - The configured store.
//	error - Non-nil if db is nil.
func NewSnapshotStore(db *badger.DB, ttl time.Duration, logger *slog.Logger) (*SnapshotStore, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStore{db: db, ttl: ttl, logger: logger}, nil
}

// OpenSnapshotStore opens a BadgerDB in dir, or in memory when dir is
// empty, and returns a store owning it. Close releases the database.
func OpenSnapshotStore(dir string, ttl time.Duration, logger *slog.Logger) (*SnapshotStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot db: %w", err)
	}
	s, err := NewSnapshotStore(db, ttl, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// Close closes the database if the store opened it.
func (s *SnapshotStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Save stores the records of a scan, replacing any earlier snapshot of the
// scope.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	scopeKey - ImportScope.Key of the scanned scope. Must not be empty.
//	fingerprint - Fingerprint of the scanned locations.
//	units - Number of units the scan read.
//	records - Records in unit order.
//	diags - Diagnostics of the scan.
//
// Key Schema:
//
//	classgraph:snap:{scopeKey}:data → gzip(JSON(records, diagnostics))
//	classgraph:snap:{scopeKey}:meta → JSON(SnapshotMetadata)
func (s *SnapshotStore) Save(ctx context.Context, scopeKey, fingerprint string, units int, records []*raw.ClassRecord, diags []raw.Diagnostic) (*SnapshotMetadata, error) {
	if scopeKey == "" {
		return nil, fmt.Errorf("scope key must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(snapshotPayload{Records: records, Diagnostics: diags})
	if err != nil {
		snapshotOpsTotal.WithLabelValues("save", "error").Inc()
		return nil, fmt.Errorf("marshaling records: %w", err)
	}

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(jsonData); err != nil {
		return nil, fmt.Errorf("compressing records: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	data := compressed.Bytes()

	meta := &SnapshotMetadata{
		ScopeKey:       scopeKey,
		Fingerprint:    fingerprint,
		Version:        snapshotVersion,
		CreatedAtMilli: time.Now().UnixMilli(),
		Units:          units,
		Records:        len(records),
		CompressedSize: int64(len(data)),
		ContentHash:    hashBytes(data),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.SetEntry(s.entry(keyPrefixSnap+scopeKey+keySuffixData, data)); err != nil {
			return fmt.Errorf("storing data: %w", err)
		}
		if err := txn.SetEntry(s.entry(keyPrefixSnap+scopeKey+keySuffixMeta, metaJSON)); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
		return nil
	})
	if err != nil {
		snapshotOpsTotal.WithLabelValues("save", "error").Inc()
		return nil, fmt.Errorf("writing snapshot to badger: %w", err)
	}
	snapshotOpsTotal.WithLabelValues("save", "ok").Inc()

	s.logger.Debug("snapshot saved",
		slog.String("scope_key", scopeKey),
		slog.Int("records", meta.Records),
		slog.Int64("compressed_size", meta.CompressedSize),
	)
	return meta, nil
}

func (s *SnapshotStore) entry(key string, value []byte) *badger.Entry {
	e := badger.NewEntry([]byte(key), value)
	if s.ttl > 0 {
		e = e.WithTTL(s.ttl)
	}
	return e
}

// Load returns the snapshot of scopeKey if it was saved with fingerprint.
//
// Outputs:
//
//	*Snapshot - Records, diagnostics and metadata.
//	error - ErrSnapshotNotFound on a miss or a stale fingerprint; other
//	errors for storage or integrity failures.
func (s *SnapshotStore) Load(ctx context.Context, scopeKey, fingerprint string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data, metaJSON []byte
	err := s.db.View(func(txn *badger.Txn) error {
		metaItem, err := txn.Get([]byte(keyPrefixSnap + scopeKey + keySuffixMeta))
		if err != nil {
			return err
		}
		if metaJSON, err = metaItem.ValueCopy(nil); err != nil {
			return err
		}
		dataItem, err := txn.Get([]byte(keyPrefixSnap + scopeKey + keySuffixData))
		if err != nil {
			return err
		}
		data, err = dataItem.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		snapshotOpsTotal.WithLabelValues("load", "miss").Inc()
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		snapshotOpsTotal.WithLabelValues("load", "error").Inc()
		return nil, fmt.Errorf("reading snapshot %s: %w", scopeKey, err)
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		snapshotOpsTotal.WithLabelValues("load", "error").Inc()
		return nil, fmt.Errorf("unmarshaling metadata for %s: %w", scopeKey, err)
	}
	if meta.Fingerprint != fingerprint || meta.Version != snapshotVersion {
		snapshotOpsTotal.WithLabelValues("load", "miss").Inc()
		return nil, ErrSnapshotNotFound
	}
	if actual := hashBytes(data); meta.ContentHash != actual {
		snapshotOpsTotal.WithLabelValues("load", "error").Inc()
		return nil, fmt.Errorf("integrity check failed for %s: expected hash %s, got %s", scopeKey, meta.ContentHash, actual)
	}

	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot %s: %w", scopeKey, err)
	}
	defer gr.Close()
	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("reading decompressed data for %s: %w", scopeKey, err)
	}
	var payload snapshotPayload
	if err := json.Unmarshal(jsonData, &payload); err != nil {
		snapshotOpsTotal.WithLabelValues("load", "error").Inc()
		return nil, fmt.Errorf("unmarshaling records for %s: %w", scopeKey, err)
	}
	snapshotOpsTotal.WithLabelValues("load", "hit").Inc()
	return &Snapshot{Metadata: meta, Records: payload.Records, Diagnostics: payload.Diagnostics}, nil
}

// List returns the metadata of all snapshots, newest first. A limit <= 0
// defaults to 100.
func (s *SnapshotStore) List(ctx context.Context, limit int) ([]*SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	var results []*SnapshotMetadata
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixSnap)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if !strings.HasSuffix(key, keySuffixMeta) {
				continue
			}
			var meta SnapshotMetadata
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &meta) }); err != nil {
				s.logger.Warn("skipping corrupt snapshot metadata", slog.String("key", key), slog.Any("error", err))
				continue
			}
			results = append(results, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAtMilli > results[j].CreatedAtMilli })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes the snapshot of scopeKey. Deleting a missing snapshot is
// not an error.
func (s *SnapshotStore) Delete(ctx context.Context, scopeKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, suffix := range []string{keySuffixData, keySuffixMeta} {
			if err := txn.Delete([]byte(keyPrefixSnap + scopeKey + suffix)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", scopeKey, err)
	}
	return nil
}

// Fingerprint hashes the size and modification time of every unit a scope
// can see, without reading any unit. Archives and single files contribute
// their own size and modification time.
func Fingerprint(ctx context.Context, scope ImportScope) (string, error) {
	h := sha256.New()
	h.Write([]byte(scope.Key()))

	locs := scope.normalized().Locations
	sort.Slice(locs, func(i, j int) bool { return locs[i].Key() < locs[j].Key() })
	for _, loc := range locs {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		h.Write([]byte("\x00" + loc.Key()))
		if loc.Kind != source.LocationDirectory {
			info, err := loc.Stat()
			if err != nil {
				return "", err
			}
			fmt.Fprintf(h, "\x00%d\x00%d", info.Size(), info.ModTime().UnixNano())
			continue
		}
		err := filepath.WalkDir(loc.Path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(p, ".class") {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			rel, _ := filepath.Rel(loc.Path, p)
			fmt.Fprintf(h, "\x00%s\x00%d\x00%d", filepath.ToSlash(rel), info.Size(), info.ModTime().UnixNano())
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("fingerprinting %s: %w", loc, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
