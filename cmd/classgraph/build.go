// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/classgraph/services/classgraph/classfile"
	"github.com/AleutianAI/classgraph/services/classgraph/importer"
	"github.com/AleutianAI/classgraph/services/classgraph/source"
)

// newImporter builds an importer from the loaded configuration. The
// returned close function releases the classpath resolver and the snapshot
// store.
func (c *cli) newImporter() (*importer.Importer, func() error, error) {
	ic := c.cfg.Import
	reader := classfile.NewReader(
		classfile.WithMaxMajorVersion(ic.MaxMajorVersion),
		classfile.WithLogger(c.logger),
	)

	opts := []importer.Option{
		importer.WithReader(reader),
		importer.WithStubDiagnostics(ic.StubDiagnostics),
		importer.WithLogger(c.logger),
	}
	if ic.Workers > 0 {
		opts = append(opts, importer.WithWorkers(ic.Workers))
	}
	for cat, n := range ic.ReferenceLimits() {
		opts = append(opts, importer.WithIterationLimit(cat, n))
	}

	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	classpath, err := ic.ClasspathLocations()
	if err != nil {
		return nil, nil, err
	}
	if len(classpath) > 0 {
		resolver := importer.NewClasspathResolver(reader, c.logger, classpath...)
		closers = append(closers, resolver.Close)
		opts = append(opts, importer.WithResolver(resolver))
	}
	opts = append(opts, importer.WithDependencyResolution(ic.ResolveMissingDependencies && len(classpath) > 0))

	if c.cfg.Snapshot.Enabled {
		store, err := importer.OpenSnapshotStore(c.cfg.Snapshot.Dir, c.cfg.Snapshot.TTL, c.logger)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		closers = append(closers, store.Close)
		opts = append(opts, importer.WithSnapshotStore(store))
	}

	c.logger.Debug("importer configured",
		slog.Int("workers", ic.Workers),
		slog.Int("classpath", len(classpath)),
		slog.Bool("resolve_missing_dependencies", ic.ResolveMissingDependencies),
		slog.Bool("snapshots", c.cfg.Snapshot.Enabled),
	)
	return importer.New(opts...), closeAll, nil
}

// newCache wraps loader in an import cache sized by the configuration.
func (c *cli) newCache(loader importer.Loader) (*importer.Cache, error) {
	return importer.NewCache(loader, importer.CacheOptions{
		MaxClasses:  c.cfg.Cache.MaxClasses,
		NumCounters: c.cfg.Cache.NumCounters,
		Logger:      c.logger,
	})
}

// scope builds the import scope of the location arguments with the
// configured filters.
func (c *cli) scope(args []string) (importer.ImportScope, error) {
	if len(args) == 0 {
		return importer.ImportScope{}, errors.New("at least one location is required")
	}
	locations := make([]source.Location, 0, len(args))
	for _, arg := range args {
		loc, err := source.ParseLocation(arg)
		if err != nil {
			return importer.ImportScope{}, err
		}
		locations = append(locations, loc)
	}
	filters, err := c.cfg.Import.SourceFilters()
	if err != nil {
		return importer.ImportScope{}, err
	}
	scope, err := importer.NewImportScope(locations, filters...)
	if err != nil {
		return importer.ImportScope{}, fmt.Errorf("building scope: %w", err)
	}
	return scope, nil
}
