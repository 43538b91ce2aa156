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
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/classgraph/services/classgraph/graph"
	"github.com/AleutianAI/classgraph/services/classgraph/importer"
	"github.com/AleutianAI/classgraph/services/classgraph/raw"
	"github.com/AleutianAI/classgraph/services/classgraph/source"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"

	defaultClassLimit  = 1000
	defaultAccessLimit = 500
)

// GraphCache publishes graphs. importer.Cache implements it.
type GraphCache interface {
	Get(ctx context.Context, scope importer.ImportScope) (*importer.Result, error)
	Lookup(id string) (*importer.Result, bool)
	Stats() importer.CacheStats
}

// ScopeWatcher invalidates scopes on change. importer.Watcher implements it.
type ScopeWatcher interface {
	Watch(scope importer.ImportScope) error
	Watched() int
}

// Handlers serves the classgraph HTTP API.
//
// Thread Safety: Safe for concurrent use. Graphs are immutable once published.
type Handlers struct {
	cache   GraphCache
	watcher ScopeWatcher
	logger  *slog.Logger
}

// Option configures Handlers.
type Option func(*Handlers)

// WithWatcher registers imported scopes that ask for it with w.
func WithWatcher(w ScopeWatcher) Option {
	return func(h *Handlers) { h.watcher = w }
}

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandlers creates the handlers on cache.
func NewHandlers(cache GraphCache, opts ...Option) (*Handlers, error) {
	if cache == nil {
		return nil, errors.New("graph cache must not be nil")
	}
	h := &Handlers{cache: cache, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// HandleImport handles POST /v1/classgraph/import.
//
// Description:
//
//	Builds an import scope from the request and returns the cached graph
//	for it, importing on a miss. Concurrent requests for the same scope
//	share one import.
//
// Response:
//
//	200 OK: ImportResponse
//	400 Bad Request: Malformed body, unknown filter or unusable location
//	500 Internal Server Error: Import failed
//	503 Service Unavailable: Request cancelled or timed out
func (h *Handlers) HandleImport(c *gin.Context) {
	logger := h.logger.With(slog.String("request_id", requestID(c)), slog.String("handler", "HandleImport"))

	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidRequest})
		return
	}

	scope, err := scopeFromRequest(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidScope})
		return
	}

	res, err := h.cache.Get(c.Request.Context(), scope)
	switch {
	case err == nil:
	case errors.Is(err, importer.ErrInvalidScope), errors.Is(err, source.ErrInvalidLocation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidScope})
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: CodeCancelled})
		return
	default:
		logger.Error("import failed", slog.String("scope", scope.String()), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeImportFailed})
		return
	}

	resp := ImportResponse{
		GraphID:        res.ID,
		ScopeKey:       res.ScopeKey,
		Stats:          res.Stats,
		Diagnostics:    res.Diagnostics,
		CreatedAtMilli: res.CreatedAt.UnixMilli(),
	}
	if resp.Diagnostics == nil {
		resp.Diagnostics = []raw.Diagnostic{}
	}
	if req.Watch && h.watcher != nil {
		if err := h.watcher.Watch(scope); err != nil {
			logger.Warn("watching scope failed", slog.String("error", err.Error()))
		} else {
			resp.Watching = true
		}
	}

	logger.Info("import served",
		slog.String("graph_id", res.ID),
		slog.Int("classes", res.Stats.Link.Imported),
		slog.Int("diagnostics", len(res.Diagnostics)),
	)
	c.JSON(http.StatusOK, resp)
}

func scopeFromRequest(req ImportRequest) (importer.ImportScope, error) {
	locations := make([]source.Location, 0, len(req.Locations))
	for _, s := range req.Locations {
		loc, err := source.ParseLocation(s)
		if err != nil {
			return importer.ImportScope{}, err
		}
		locations = append(locations, loc)
	}
	filters := make([]source.Filter, 0, len(req.Filters)+1)
	for _, name := range req.Filters {
		f, err := source.NamedFilter(name)
		if err != nil {
			return importer.ImportScope{}, err
		}
		filters = append(filters, f)
	}
	if len(req.Exclude) > 0 {
		filters = append(filters, source.ExcludePatterns(req.Exclude...))
	}
	return importer.NewImportScope(locations, filters...)
}

// HandleListClasses handles GET /v1/classgraph/graphs/:id/classes.
//
// Query Parameters:
//
//	package: Only classes in this package or its subpackages (optional)
//	stubs: "true" also lists unresolved classes (optional)
//	limit: Maximum entries, default 1000 (optional)
//
// Response:
//
//	200 OK: ClassListResponse
//	404 Not Found: Unknown graph
func (h *Handlers) HandleListClasses(c *gin.Context) {
	res, ok := h.resolveGraph(c)
	if !ok {
		return
	}
	pkg := c.Query("package")
	limit := queryLimit(c, defaultClassLimit)

	classes := res.Graph.Classes()
	if c.Query("stubs") == "true" {
		classes = append(classes, res.Graph.Stubs()...)
	}

	resp := ClassListResponse{GraphID: res.ID, Classes: []ClassSummary{}}
	for _, cls := range classes {
		if pkg != "" && !inPackage(cls.PackageName(), pkg) {
			continue
		}
		resp.Total++
		if len(resp.Classes) >= limit {
			resp.Truncated = true
			continue
		}
		resp.Classes = append(resp.Classes, classSummary(cls))
	}
	c.JSON(http.StatusOK, resp)
}

func inPackage(name, pkg string) bool {
	return name == pkg || strings.HasPrefix(name, pkg+".")
}

// HandleGetClass handles GET /v1/classgraph/graphs/:id/classes/:name.
//
// Response:
//
//	200 OK: ClassDetail
//	404 Not Found: Unknown graph or class
func (h *Handlers) HandleGetClass(c *gin.Context) {
	res, ok := h.resolveGraph(c)
	if !ok {
		return
	}
	cls, ok := h.resolveClass(c, res.Graph)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, classDetail(cls))
}

// HandleClassAccesses handles GET /v1/classgraph/graphs/:id/classes/:name/accesses.
//
// Description:
//
//	Returns the accesses made by the class's code units and the accesses
//	whose declared owner is the class, each with its resolved targets.
//
// Query Parameters:
//
//	limit: Maximum edges per direction, default 500 (optional)
func (h *Handlers) HandleClassAccesses(c *gin.Context) {
	res, ok := h.resolveGraph(c)
	if !ok {
		return
	}
	cls, ok := h.resolveClass(c, res.Graph)
	if !ok {
		return
	}
	limit := queryLimit(c, defaultAccessLimit)

	resp := AccessesResponse{Class: cls.Name(), Outgoing: []AccessInfo{}, Incoming: []AccessInfo{}}
	for i, e := range cls.AccessesFromSelf() {
		if i >= limit {
			resp.Truncated = true
			break
		}
		resp.Outgoing = append(resp.Outgoing, accessInfo(e))
	}
	for i, e := range cls.AccessesToSelf() {
		if i >= limit {
			resp.Truncated = true
			break
		}
		resp.Incoming = append(resp.Incoming, accessInfo(e))
	}
	c.JSON(http.StatusOK, resp)
}

// HandleResolve handles GET /v1/classgraph/graphs/:id/resolve.
//
// Query Parameters:
//
//	owner: Declared owner class (required)
//	name: Member name (required unless kind=constructor)
//	params: Comma separated parameter type names (optional)
//	kind: method (default), field or constructor
//
// Response:
//
//	200 OK: ResolveResponse; Targets is empty for unknown or stub owners
//	400 Bad Request: Missing parameter or unknown kind
//	404 Not Found: Unknown graph
func (h *Handlers) HandleResolve(c *gin.Context) {
	res, ok := h.resolveGraph(c)
	if !ok {
		return
	}
	owner := c.Query("owner")
	name := c.Query("name")
	kind := c.DefaultQuery("kind", "method")
	var params []string
	if p := c.Query("params"); p != "" {
		params = strings.Split(p, ",")
	}

	if owner == "" || (name == "" && kind != "constructor") {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "owner and name parameters are required", Code: CodeMissingParam})
		return
	}

	var targets []*graph.MemberNode
	switch kind {
	case "method":
		targets = res.Graph.ResolveMethod(owner, name, params...)
	case "field":
		targets = res.Graph.ResolveField(owner, name)
	case "constructor":
		name = "<init>"
		targets = res.Graph.ResolveConstructor(owner, params...)
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "kind must be method, field or constructor", Code: CodeInvalidRequest})
		return
	}

	resp := ResolveResponse{Owner: owner, Name: name, Kind: kind, Targets: []MemberInfo{}}
	for _, m := range targets {
		resp.Targets = append(resp.Targets, memberInfo(m))
	}
	c.JSON(http.StatusOK, resp)
}

// HandleHealth handles GET /v1/classgraph/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	resp := HealthResponse{Status: "ok", Cache: h.cache.Stats()}
	if h.watcher != nil {
		resp.Watched = h.watcher.Watched()
	}
	c.JSON(http.StatusOK, resp)
}

// resolveGraph writes a 404 and returns false when :id is not cached.
func (h *Handlers) resolveGraph(c *gin.Context) (*importer.Result, bool) {
	id := c.Param("id")
	res, ok := h.cache.Lookup(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "graph " + id + " not found", Code: CodeGraphNotFound})
		return nil, false
	}
	return res, true
}

func (h *Handlers) resolveClass(c *gin.Context, g *graph.Graph) (*graph.ClassNode, bool) {
	name := c.Param("name")
	cls, ok := g.Class(name)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "class " + name + " not found", Code: CodeClassNotFound})
		return nil, false
	}
	return cls, true
}

func queryLimit(c *gin.Context, def int) int {
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// requestIDMiddleware propagates X-Request-ID, generating one when absent.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// accessLogMiddleware logs each request at debug level.
func accessLogMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			slog.String("request_id", requestID(c)),
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
