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
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/classgraph/services/classgraph/importer"
)

// reimporter invalidates the cache and signals that a rebuild is due.
type reimporter struct {
	cache   *importer.Cache
	changed chan struct{}
}

func (r *reimporter) Invalidate(scope importer.ImportScope) {
	r.cache.Invalidate(scope)
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

func newWatchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "watch LOCATION...",
		Short: "Import locations and re-import whenever their classes change",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := c.scope(args)
			if err != nil {
				return err
			}
			im, closeImporter, err := c.newImporter()
			if err != nil {
				return err
			}
			defer func() { _ = closeImporter() }()
			cache, err := c.newCache(im)
			if err != nil {
				return err
			}
			defer cache.Close()

			target := &reimporter{cache: cache, changed: make(chan struct{}, 1)}
			watcher, err := importer.NewWatcher(target, c.cfg.Watch.Debounce, c.logger)
			if err != nil {
				return err
			}
			defer func() { _ = watcher.Close() }()

			ctx := cmd.Context()
			res, err := cache.Get(ctx, scope)
			if err != nil {
				return err
			}
			writeImportText(c.stdout, res, false)
			if err := watcher.Watch(scope); err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return watcher.Run(gctx) })
			g.Go(func() error {
				hash := res.Graph.Hash()
				for {
					select {
					case <-gctx.Done():
						return nil
					case <-target.changed:
					}
					next, err := cache.Get(gctx, scope)
					if err != nil {
						if gctx.Err() != nil {
							return nil
						}
						c.logger.Error("re-import failed", slog.String("error", err.Error()))
						continue
					}
					if h := next.Graph.Hash(); h == hash {
						fmt.Fprintln(c.stdout, "graph unchanged")
					} else {
						hash = h
						writeImportText(c.stdout, next, false)
					}
				}
			})
			return g.Wait()
		},
	}
}
