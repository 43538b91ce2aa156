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
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/dgraph-io/ristretto/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Loader produces import results. *Importer implements it.
type Loader interface {
	Import(ctx context.Context, scope ImportScope) (*Result, error)
}

// Default cache sizing.
const (
	// DefaultCacheMaxClasses bounds the strong tier by imported class count.
	DefaultCacheMaxClasses = 500_000

	// DefaultCacheNumCounters is the ristretto admission counter count.
	DefaultCacheNumCounters = 10_000
)

// CacheOptions configures a Cache.
type CacheOptions struct {
	// MaxClasses is the strong tier budget. Each result costs the number of
	// classes it imported, at least 1.
	MaxClasses int64

	// NumCounters sizes the admission policy; about 10x the expected number
	// of cached scopes.
	NumCounters int64

	Logger *slog.Logger
}

// DefaultCacheOptions returns the default cache options.
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{
		MaxClasses:  DefaultCacheMaxClasses,
		NumCounters: DefaultCacheNumCounters,
	}
}

// CacheStats counts cache activity since creation.
type CacheStats struct {
	StrongHits int64 `json:"strong_hits"`
	WeakHits   int64 `json:"weak_hits"`
	Misses     int64 `json:"misses"`
	Joined     int64 `json:"joined"`
	Imports    int64 `json:"imports"`
	Evictions  int64 `json:"evictions"`
}

// Cache memoizes imports per scope.
//
// Description:
//
//	Concurrent Get calls for the same scope key join one in-flight import
//	and receive the same *Result. Finished results live in a bounded strong
//	tier; every result is also tracked through a weak pointer, so a result
//	evicted from the strong tier is returned again for as long as any
//	caller still holds it. Failed imports are never cached.
//
// Thread Safety:
//
//	Safe for concurrent use. Results are immutable.
type Cache struct {
	loader Loader
	logger *slog.Logger
	group  singleflight.Group
	strong *ristretto.Cache[string, *Result]

	mu    sync.Mutex
	weak  map[string]weak.Pointer[Result]
	byID  map[string]string
	gens  map[string]uint64
	epoch uint64

	strongHits atomic.Int64
	weakHits   atomic.Int64
	misses     atomic.Int64
	joined     atomic.Int64
	imports    atomic.Int64
	evictions  atomic.Int64
}

// NewCache creates a cache in front of loader.
//
// Outputs:
//
//	*Cache - The cache. Close releases the strong tier.
//	error - Non-nil if loader is nil or the strong tier cannot be created.
func NewCache(loader Loader, opts CacheOptions) (*Cache, error) {
	if loader == nil {
		return nil, fmt.Errorf("loader must not be nil")
	}
	if opts.MaxClasses <= 0 {
		opts.MaxClasses = DefaultCacheMaxClasses
	}
	if opts.NumCounters <= 0 {
		opts.NumCounters = DefaultCacheNumCounters
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Cache{
		loader: loader,
		logger: opts.Logger,
		weak:   make(map[string]weak.Pointer[Result]),
		byID:   make(map[string]string),
		gens:   make(map[string]uint64),
	}
	strong, err := ristretto.NewCache(&ristretto.Config[string, *Result]{
		NumCounters:        opts.NumCounters,
		MaxCost:            opts.MaxClasses,
		BufferItems:        64,
		IgnoreInternalCost: true,
		OnEvict: func(item *ristretto.Item[*Result]) {
			c.evictions.Add(1)
			cacheEvictionsTotal.Inc()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating strong tier: %w", err)
	}
	c.strong = strong
	return c, nil
}

// Get returns the import result of scope, importing it at most once.
//
// Description:
//
//	Looks the scope key up in the strong tier, then the weak tier. On a
//	miss the caller starts or joins the single import of the key. The
//	import itself runs detached from ctx so a cancelled caller does not
//	fail the callers it shares the import with.
//
// Inputs:
//
//	ctx - Cancels the wait of this caller only.
//	scope - The scope. Invalid scopes fail before any lookup.
//
// Outputs:
//
//	*Result - The shared result; identical for every caller of the key
//	until it is invalidated or collected.
//	error - ErrInvalidScope, the import error, or ctx.Err().
func (c *Cache) Get(ctx context.Context, scope ImportScope) (*Result, error) {
	scope = scope.normalized()
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	key := scope.Key()

	if res, tier := c.lookup(key); res != nil {
		c.countHit(tier)
		return res, nil
	}

	c.mu.Lock()
	gen, epoch := c.gens[key], c.epoch
	c.mu.Unlock()

	ch := c.group.DoChan(key, func() (any, error) {
		if res, _ := c.lookup(key); res != nil {
			return res, nil
		}
		c.imports.Add(1)
		res, err := c.loader.Import(context.WithoutCancel(ctx), scope)
		if err != nil {
			return nil, err
		}
		c.store(key, res, gen, epoch)
		return res, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Shared {
			c.joined.Add(1)
			cacheRequestsTotal.WithLabelValues("joined").Inc()
		} else {
			c.misses.Add(1)
			cacheRequestsTotal.WithLabelValues("miss").Inc()
		}
		if r.Err != nil {
			trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("classgraph.cache_failed", true))
			return nil, r.Err
		}
		return r.Val.(*Result), nil
	}
}

// Lookup returns a cached result by its import ID.
func (c *Cache) Lookup(id string) (*Result, bool) {
	c.mu.Lock()
	key, ok := c.byID[id]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	res, _ := c.lookup(key)
	if res == nil || res.ID != id {
		c.mu.Lock()
		delete(c.byID, id)
		c.mu.Unlock()
		return nil, false
	}
	return res, true
}

// Peek returns the cached result of scope without importing.
func (c *Cache) Peek(scope ImportScope) (*Result, bool) {
	res, _ := c.lookup(scope.Key())
	return res, res != nil
}

// Invalidate drops the cached result of scope. Callers already holding the
// result keep it. An import of the scope in flight is not stored, and the
// next Get starts a new import.
func (c *Cache) Invalidate(scope ImportScope) {
	key := scope.Key()
	c.mu.Lock()
	c.gens[key]++
	if wp, ok := c.weak[key]; ok {
		if res := wp.Value(); res != nil {
			delete(c.byID, res.ID)
		}
		delete(c.weak, key)
	}
	c.mu.Unlock()
	c.strong.Del(key)
	c.group.Forget(key)
	c.logger.Debug("import cache entry invalidated", slog.String("scope", scope.String()))
}

// Purge drops every cached result.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.epoch++
	for key := range c.weak {
		c.group.Forget(key)
	}
	clear(c.weak)
	clear(c.byID)
	c.mu.Unlock()
	c.strong.Clear()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		StrongHits: c.strongHits.Load(),
		WeakHits:   c.weakHits.Load(),
		Misses:     c.misses.Load(),
		Joined:     c.joined.Load(),
		Imports:    c.imports.Load(),
		Evictions:  c.evictions.Load(),
	}
}

// Close releases the strong tier. The cache must not be used afterwards.
func (c *Cache) Close() {
	c.strong.Close()
}

type cacheTier int

const (
	tierStrong cacheTier = iota
	tierWeak
)

func (c *Cache) lookup(key string) (*Result, cacheTier) {
	if res, ok := c.strong.Get(key); ok && res != nil {
		return res, tierStrong
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	wp, ok := c.weak[key]
	if !ok {
		return nil, tierWeak
	}
	res := wp.Value()
	if res == nil {
		delete(c.weak, key)
		return nil, tierWeak
	}
	return res, tierWeak
}

func (c *Cache) countHit(tier cacheTier) {
	if tier == tierStrong {
		c.strongHits.Add(1)
		cacheRequestsTotal.WithLabelValues("strong_hit").Inc()
		return
	}
	c.weakHits.Add(1)
	cacheRequestsTotal.WithLabelValues("weak_hit").Inc()
}

// store publishes res unless the key was invalidated since the import
// started.
func (c *Cache) store(key string, res *Result, gen, epoch uint64) {
	c.mu.Lock()
	if c.gens[key] != gen || c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.weak[key] = weak.Make(res)
	c.byID[res.ID] = key
	c.mu.Unlock()

	cost := int64(res.Stats.Link.Imported)
	if cost < 1 {
		cost = 1
	}
	c.strong.Set(key, res, cost)
	c.strong.Wait()
}
