// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package importer turns import scopes into linked class graphs.
//
// An Importer reads every binary unit of a scope in parallel, accumulates
// the records, optionally completes missing dependencies through a
// ClassResolver and links the batch into a graph.Graph. A Cache in front of
// the Importer runs at most one import per distinct scope and keeps results
// while they are referenced. A SnapshotStore persists scanned records so a
// restart can skip reading unchanged locations.
package importer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/AleutianAI/classgraph/services/classgraph/source"
)

// ErrInvalidScope means an ImportScope cannot be imported.
var ErrInvalidScope = errors.New("invalid import scope")

// ImportScope is the unit of work of an import: locations plus the filters
// every candidate must pass. Two scopes with the same Key import the same
// classes.
//
// Thread Safety: Treat as immutable once passed to Import or Cache.Get.
type ImportScope struct {
	Locations []source.Location `json:"locations"`
	Filters   []source.Filter   `json:"-"`
}

// NewImportScope returns a validated scope with duplicate locations removed.
func NewImportScope(locations []source.Location, filters ...source.Filter) (ImportScope, error) {
	s := ImportScope{Locations: locations, Filters: filters}.normalized()
	if err := s.Validate(); err != nil {
		return ImportScope{}, err
	}
	return s, nil
}

// Validate checks that the scope has locations, that every location exists
// and that no filter is nil.
func (s ImportScope) Validate() error {
	if len(s.Locations) == 0 {
		return fmt.Errorf("%w: no locations", ErrInvalidScope)
	}
	for _, f := range s.Filters {
		if f == nil {
			return fmt.Errorf("%w: %w", ErrInvalidScope, source.ErrNilFilter)
		}
	}
	for _, loc := range s.Locations {
		if _, err := loc.Stat(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidScope, err)
		}
	}
	return nil
}

// normalized returns a copy without duplicate locations, keeping the first
// occurrence.
func (s ImportScope) normalized() ImportScope {
	seen := make(map[string]bool, len(s.Locations))
	locs := make([]source.Location, 0, len(s.Locations))
	for _, loc := range s.Locations {
		if seen[loc.Key()] {
			continue
		}
		seen[loc.Key()] = true
		locs = append(locs, loc)
	}
	return ImportScope{Locations: locs, Filters: slices.Clone(s.Filters)}
}

// Key returns the hex SHA256 identity of the scope. Location order matters
// because the later location wins for duplicate classes; repeated locations
// and filter order do not.
func (s ImportScope) Key() string {
	locs := make([]string, 0, len(s.Locations))
	for _, loc := range s.normalized().Locations {
		locs = append(locs, loc.Key())
	}

	filters := make([]string, 0, len(s.Filters))
	for _, f := range s.Filters {
		if f != nil {
			filters = append(filters, f.Key())
		}
	}
	sort.Strings(filters)
	filters = slices.Compact(filters)

	h := sha256.New()
	for _, l := range locs {
		h.Write([]byte("L\x00" + l + "\x00"))
	}
	for _, f := range filters {
		h.Write([]byte("F\x00" + f + "\x00"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// String returns a short description for logs.
func (s ImportScope) String() string {
	if len(s.Locations) == 1 {
		return s.Locations[0].String()
	}
	return fmt.Sprintf("%d locations", len(s.Locations))
}
