// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package source enumerates the binary units of import locations.
//
// A location is a directory tree, an archive (optionally narrowed to an entry
// prefix) or a single class file. Units are produced lazily; inclusion filters
// are evaluated on every candidate before it is opened.
package source

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Errors returned for unusable locations.
var (
	// ErrInvalidLocation means a location string could not be interpreted or
	// does not exist.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrNilFilter means a nil filter was passed.
	ErrNilFilter = errors.New("nil filter")
)

// LocationKind distinguishes the three location shapes.
type LocationKind int

const (
	LocationDirectory LocationKind = iota
	LocationArchive
	LocationFile
)

// String returns the string representation of the LocationKind.
func (k LocationKind) String() string {
	switch k {
	case LocationDirectory:
		return "directory"
	case LocationArchive:
		return "archive"
	case LocationFile:
		return "file"
	default:
		return "unknown"
	}
}

// Location is one input location.
//
// Path is absolute and cleaned. Prefix is only used for archives and is a
// slash-separated entry prefix without leading slash, ending in "/" when set.
type Location struct {
	Kind   LocationKind `json:"kind"`
	Path   string       `json:"path"`
	Prefix string       `json:"prefix,omitempty"`
}

// DirectoryLocation returns a location for a directory of class files.
func DirectoryLocation(dir string) (Location, error) {
	return newLocation(LocationDirectory, dir, "")
}

// ArchiveLocation returns a location for an archive, optionally narrowed to
// the entries below prefix (e.g. "com/acme").
func ArchiveLocation(archive, prefix string) (Location, error) {
	return newLocation(LocationArchive, archive, prefix)
}

// FileLocation returns a location for a single class file.
func FileLocation(file string) (Location, error) {
	return newLocation(LocationFile, file, "")
}

func newLocation(kind LocationKind, p, prefix string) (Location, error) {
	if p == "" {
		return Location{}, fmt.Errorf("%w: empty path", ErrInvalidLocation)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %s: %v", ErrInvalidLocation, p, err)
	}
	loc := Location{Kind: kind, Path: abs}
	if kind == LocationArchive {
		loc.Prefix = normalizePrefix(prefix)
	}
	return loc, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(filepath.ToSlash(prefix), "/")
	if prefix == "" {
		return ""
	}
	return path.Clean(prefix) + "/"
}

// ParseLocation interprets a location string.
//
// Description:
//
//	Accepts plain paths, "file:" URIs and "jar:file:" URIs. An archive path may
//	carry an entry prefix after "!/" ("libs/acme.jar!/com/acme"). The kind of
//	a plain path is decided by the file system: directories become
//	LocationDirectory, ".jar"/".zip" files LocationArchive, ".class" files
//	LocationFile.
//
// Inputs:
//
//	s - The location string.
//
// Outputs:
//
//	Location - The parsed location.
//	error - ErrInvalidLocation if the path does not exist or has an
//	unsupported extension.
func ParseLocation(s string) (Location, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "jar:"), "file:")
	archivePath, prefix, hasPrefix := strings.Cut(raw, "!/")
	if !hasPrefix {
		archivePath, prefix, hasPrefix = strings.Cut(raw, "!")
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %s: %v", ErrInvalidLocation, s, err)
	}

	switch {
	case hasPrefix || isArchiveName(archivePath):
		if info.IsDir() || !isArchiveName(archivePath) {
			return Location{}, fmt.Errorf("%w: %s is not an archive", ErrInvalidLocation, archivePath)
		}
		return ArchiveLocation(archivePath, prefix)
	case info.IsDir():
		return DirectoryLocation(archivePath)
	case strings.HasSuffix(archivePath, classSuffix):
		return FileLocation(archivePath)
	default:
		return Location{}, fmt.Errorf("%w: %s is neither a directory, an archive nor a class file", ErrInvalidLocation, s)
	}
}

func isArchiveName(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	return ext == ".jar" || ext == ".zip"
}

// String returns the URI form of the location: "file:/abs/dir" or
// "jar:file:/abs/a.jar!/prefix/".
func (l Location) String() string {
	p := filepath.ToSlash(l.Path)
	if l.Kind == LocationArchive {
		return "jar:file:" + p + "!/" + l.Prefix
	}
	return "file:" + p
}

// Key returns a stable identity for deduplication and cache keys.
func (l Location) Key() string {
	return l.Kind.String() + ":" + l.String()
}

// Stat reports whether the location still exists.
func (l Location) Stat() (os.FileInfo, error) {
	info, err := os.Stat(l.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidLocation, l, err)
	}
	return info, nil
}
