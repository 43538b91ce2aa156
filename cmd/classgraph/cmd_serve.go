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
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/classgraph/services/classgraph/importer"
	"github.com/AleutianAI/classgraph/services/classgraph/server"
)

func newServeCmd(c *cli) *cobra.Command {
	var (
		addr  string
		debug bool
	)
	cmd := &cobra.Command{
		Use:   "serve [LOCATION...]",
		Short: "Serve the HTTP query API",
		Long: `Serve starts the HTTP API. Scopes are imported on demand through
POST /v1/classgraph/import and cached; changed files invalidate watched
scopes. Locations given as arguments are imported and watched at startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				c.cfg.Server.Addr = addr
			}
			if debug {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
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
			watcher, err := importer.NewWatcher(cache, c.cfg.Watch.Debounce, c.logger)
			if err != nil {
				return err
			}
			defer func() { _ = watcher.Close() }()

			ctx := cmd.Context()
			if len(args) > 0 {
				if err := c.preload(ctx, cache, watcher, args); err != nil {
					return err
				}
			}

			handlers, err := server.NewHandlers(cache, server.WithWatcher(watcher), server.WithLogger(c.logger))
			if err != nil {
				return err
			}
			router := server.NewRouter(handlers, debug)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return watcher.Run(gctx) })
			g.Go(func() error {
				return server.Serve(gctx, c.cfg.Server.Addr, router, c.cfg.Server.ShutdownTimeout, c.logger)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, default from configuration")
	cmd.Flags().BoolVar(&debug, "debug", false, "gin debug mode and request logging")
	return cmd
}

// preload imports and watches args before the server starts.
func (c *cli) preload(ctx context.Context, cache *importer.Cache, watcher *importer.Watcher, args []string) error {
	scope, err := c.scope(args)
	if err != nil {
		return err
	}
	res, err := cache.Get(ctx, scope)
	if err != nil {
		return err
	}
	if err := watcher.Watch(scope); err != nil {
		return err
	}
	c.logger.Info("scope preloaded",
		slog.String("graph_id", res.ID),
		slog.String("scope", scope.String()),
		slog.Int("classes", res.Stats.Link.Imported),
	)
	return nil
}
