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
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/AleutianAI/classgraph/services/classgraph/classfile"
	"github.com/AleutianAI/classgraph/services/classgraph/raw"
	"github.com/AleutianAI/classgraph/services/classgraph/source"
)

// ClassResolver supplies records for classes an import references but does
// not contain.
//
// Resolve returns (nil, nil) when the class is unknown. A non-nil error is
// reported as a DiagnosticResolverFailure; the class then stays a stub.
//
// Thread Safety: Implementations must be safe for concurrent use.
type ClassResolver interface {
	Resolve(ctx context.Context, name string) (*raw.ClassRecord, error)
}

// ClassResolverFunc adapts a function to ClassResolver.
type ClassResolverFunc func(ctx context.Context, name string) (*raw.ClassRecord, error)

// Resolve calls f.
func (f ClassResolverFunc) Resolve(ctx context.Context, name string) (*raw.ClassRecord, error) {
	return f(ctx, name)
}

// ClasspathResolver looks classes up on a list of directories, archives and
// class files, first match wins.
//
// Thread Safety: Safe for concurrent use. Archives are opened on first use
// and kept open until Close.
type ClasspathResolver struct {
	locations []source.Location
	reader    *classfile.Reader
	logger    *slog.Logger

	mu       sync.Mutex
	archives map[string]*archiveIndex
	closed   bool
}

type archiveIndex struct {
	zr      *zip.ReadCloser
	entries map[string]*zip.File
	err     error
}

// NewClasspathResolver creates a resolver over locations. A nil reader
// uses classfile.NewReader() with digests disabled.
func NewClasspathResolver(reader *classfile.Reader, logger *slog.Logger, locations ...source.Location) *ClasspathResolver {
	if reader == nil {
		reader = classfile.NewReader(classfile.WithDigest(false))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClasspathResolver{
		locations: locations,
		reader:    reader,
		logger:    logger,
		archives:  make(map[string]*archiveIndex),
	}
}

// Resolve reads the class from the first location that contains it.
func (r *ClasspathResolver) Resolve(ctx context.Context, name string) (*raw.ClassRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry := strings.ReplaceAll(name, ".", "/") + ".class"
	for _, loc := range r.locations {
		data, uri, err := r.read(loc, entry)
		if err != nil {
			return nil, fmt.Errorf("resolving %s from %s: %w", name, loc, err)
		}
		if data == nil {
			continue
		}
		rec, err := r.reader.Read(data, uri)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
		if rec.Name != name {
			r.logger.Debug("classpath entry declares a different class",
				slog.String("entry", uri),
				slog.String("declared", rec.Name),
			)
			continue
		}
		return rec, nil
	}
	return nil, nil
}

// read returns nil data when loc has no such entry.
func (r *ClasspathResolver) read(loc source.Location, entry string) ([]byte, string, error) {
	switch loc.Kind {
	case source.LocationDirectory:
		p := filepath.Join(loc.Path, filepath.FromSlash(entry))
		data, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", nil
		}
		return data, "file:" + filepath.ToSlash(p), err
	case source.LocationFile:
		if filepath.Base(loc.Path) != filepath.Base(entry) {
			return nil, "", nil
		}
		data, err := os.ReadFile(loc.Path)
		return data, "file:" + filepath.ToSlash(loc.Path), err
	case source.LocationArchive:
		idx, err := r.archive(loc)
		if err != nil {
			return nil, "", err
		}
		f, ok := idx.entries[entry]
		if !ok || !strings.HasPrefix(f.Name, loc.Prefix) {
			return nil, "", nil
		}
		rc, err := f.Open()
		if err != nil {
			return nil, "", err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		return data, "jar:file:" + filepath.ToSlash(loc.Path) + "!/" + f.Name, err
	default:
		return nil, "", nil
	}
}

func (r *ClasspathResolver) archive(loc source.Location) (*archiveIndex, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New("classpath resolver closed")
	}
	if idx, ok := r.archives[loc.Path]; ok {
		return idx, idx.err
	}
	idx := &archiveIndex{entries: make(map[string]*zip.File)}
	idx.zr, idx.err = zip.OpenReader(loc.Path)
	if idx.err == nil {
		for _, f := range idx.zr.File {
			idx.entries[f.Name] = f
		}
	}
	r.archives[loc.Path] = idx
	return idx, idx.err
}

// Close closes every opened archive.
func (r *ClasspathResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	var errs []error
	for _, idx := range r.archives {
		if idx.zr != nil {
			errs = append(errs, idx.zr.Close())
		}
	}
	r.archives = nil
	return errors.Join(errs...)
}
