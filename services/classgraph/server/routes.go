// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// ServiceName identifies the server in traces.
const ServiceName = "classgraph"

// RegisterRoutes registers the classgraph routes with the router.
//
// Description:
//
//	Registers all /v1/classgraph/* endpoints with the given Gin router group.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/classgraph/import - Import (or fetch the cached graph for) a scope
//	GET  /v1/classgraph/graphs/:id/classes - List classes
//	GET  /v1/classgraph/graphs/:id/classes/:name - Class detail with members
//	GET  /v1/classgraph/graphs/:id/classes/:name/accesses - Accesses from and to a class
//	GET  /v1/classgraph/graphs/:id/resolve - Resolve a member reference
//	GET  /v1/classgraph/health - Health check with cache statistics
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	cg := rg.Group("/classgraph")
	{
		cg.POST("/import", handlers.HandleImport)

		graphs := cg.Group("/graphs/:id")
		{
			graphs.GET("/classes", handlers.HandleListClasses)
			graphs.GET("/classes/:name", handlers.HandleGetClass)
			graphs.GET("/classes/:name/accesses", handlers.HandleClassAccesses)
			graphs.GET("/resolve", handlers.HandleResolve)
		}

		cg.GET("/health", handlers.HandleHealth)
	}
}

// NewRouter builds the gin engine with recovery, tracing, request IDs, the
// classgraph routes and GET /metrics.
func NewRouter(handlers *Handlers, debug bool) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(ServiceName))
	router.Use(requestIDMiddleware())
	if debug {
		router.Use(accessLogMiddleware(handlers.logger))
	}

	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

// Serve runs router on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
//
// Outputs:
//
//	error - nil after a clean shutdown, the listen error otherwise.
func Serve(ctx context.Context, addr string, router http.Handler, shutdownTimeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("classgraph server listening", slog.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listening on %s: %w", addr, err)
	case <-ctx.Done():
	}

	logger.Info("shutting down classgraph server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}
