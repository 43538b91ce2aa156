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
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	classSuffix      = ".class"
	moduleInfoClass  = "module-info.class"
	packageInfoClass = "package-info.class"
)

// Candidate describes a binary unit before it is opened. Filters only see
// candidates.
type Candidate struct {
	// Location is the location the unit was found in.
	Location Location

	// Entry is the slash-separated path of the unit relative to the location
	// root, e.g. "com/acme/Foo.class". For file locations it is the base name.
	Entry string

	// URI is the full location of the unit, e.g.
	// "jar:file:/libs/acme.jar!/com/acme/Foo.class".
	URI string
}

// Archived reports whether the unit lives inside an archive.
func (c Candidate) Archived() bool {
	return c.Location.Kind == LocationArchive
}

// FullPath returns a slash-separated path combining the location path and
// the entry, used by path-based filters.
func (c Candidate) FullPath() string {
	base := filepath.ToSlash(c.Location.Path)
	if c.Location.Kind == LocationFile {
		return base
	}
	return base + "/" + c.Entry
}

// ClassName returns the class name implied by the entry path.
func (c Candidate) ClassName() string {
	name := strings.TrimSuffix(c.Entry, classSuffix)
	return strings.ReplaceAll(name, "/", ".")
}

// Unit is one binary unit.
//
// For archive locations Open is only valid until the sequence advances to the
// next unit; callers read the unit inside the loop body.
type Unit struct {
	Candidate
	open func() (io.ReadCloser, error)
}

// Open opens the unit for reading.
func (u Unit) Open() (io.ReadCloser, error) {
	return u.open()
}

// ReadAll reads the complete unit.
func (u Unit) ReadAll() ([]byte, error) {
	rc, err := u.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", u.URI, err)
	}
	return data, nil
}

// Units enumerates the binary units of a location.
//
// Description:
//
//	Returns a lazy, finite sequence. Every iteration restarts the enumeration
//	from the file system. Directory entries are visited in lexical order;
//	archive entries in archive order. module-info units are never produced.
//	Filters are applied to every candidate before it is opened; a candidate
//	is produced only if every filter includes it.
//
//	Errors are produced as (Unit{}, err) pairs. An error for the location
//	itself (missing directory, unreadable archive) ends the sequence; the
//	context error ends it as well.
//
// Inputs:
//
//	ctx - Checked between candidates.
//	loc - The location to enumerate.
//	filters - Inclusion filters. A nil filter yields ErrNilFilter.
//
// Outputs:
//
//	iter.Seq2[Unit, error] - The units.
func Units(ctx context.Context, loc Location, filters ...Filter) iter.Seq2[Unit, error] {
	return func(yield func(Unit, error) bool) {
		for _, f := range filters {
			if f == nil {
				yield(Unit{}, ErrNilFilter)
				return
			}
		}
		include := func(c Candidate) bool {
			base := path.Base(c.Entry)
			if !strings.HasSuffix(base, classSuffix) || base == moduleInfoClass {
				return false
			}
			for _, f := range filters {
				if !f.Include(c) {
					return false
				}
			}
			return true
		}

		switch loc.Kind {
		case LocationDirectory:
			directoryUnits(ctx, loc, include, yield)
		case LocationArchive:
			archiveUnits(ctx, loc, include, yield)
		case LocationFile:
			fileUnit(ctx, loc, include, yield)
		default:
			yield(Unit{}, fmt.Errorf("%w: unknown kind %d", ErrInvalidLocation, loc.Kind))
		}
	}
}

func fileOpener(p string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return os.Open(p)
	}
}

func directoryUnits(ctx context.Context, loc Location, include func(Candidate) bool, yield func(Unit, error) bool) {
	stopped := false
	err := filepath.WalkDir(loc.Path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == loc.Path {
				return err
			}
			// Unreadable subtrees are reported and skipped.
			if !yield(Unit{}, fmt.Errorf("walking %s: %w", p, err)) {
				stopped = true
				return fs.SkipAll
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(loc.Path, p)
		if err != nil {
			return nil
		}
		entry := filepath.ToSlash(rel)
		c := Candidate{Location: loc, Entry: entry, URI: "file:" + filepath.ToSlash(p)}
		if !include(c) {
			return nil
		}
		if !yield(Unit{Candidate: c, open: fileOpener(p)}, nil) {
			stopped = true
			return fs.SkipAll
		}
		return nil
	})
	if err == nil || stopped {
		return
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		yield(Unit{}, ctxErr)
		return
	}
	yield(Unit{}, fmt.Errorf("%w: %s: %v", ErrInvalidLocation, loc, err))
}

func archiveUnits(ctx context.Context, loc Location, include func(Candidate) bool, yield func(Unit, error) bool) {
	zr, err := zip.OpenReader(loc.Path)
	if err != nil {
		yield(Unit{}, fmt.Errorf("%w: %s: %v", ErrInvalidLocation, loc, err))
		return
	}
	defer zr.Close()

	archiveURI := "jar:file:" + filepath.ToSlash(loc.Path) + "!/"
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			yield(Unit{}, err)
			return
		}
		if f.FileInfo().IsDir() || !strings.HasPrefix(f.Name, loc.Prefix) {
			continue
		}
		c := Candidate{Location: loc, Entry: f.Name, URI: archiveURI + f.Name}
		if !include(c) {
			continue
		}
		if !yield(Unit{Candidate: c, open: f.Open}, nil) {
			return
		}
	}
}

func fileUnit(ctx context.Context, loc Location, include func(Candidate) bool, yield func(Unit, error) bool) {
	if err := ctx.Err(); err != nil {
		yield(Unit{}, err)
		return
	}
	if _, err := loc.Stat(); err != nil {
		yield(Unit{}, err)
		return
	}
	c := Candidate{
		Location: loc,
		Entry:    filepath.Base(loc.Path),
		URI:      "file:" + filepath.ToSlash(loc.Path),
	}
	if include(c) {
		yield(Unit{Candidate: c, open: fileOpener(loc.Path)}, nil)
	}
}
