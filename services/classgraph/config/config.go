// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads classgraph configuration from embedded defaults,
// an optional YAML file and CLASSGRAPH_* environment variables.
package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/classgraph/services/classgraph/raw"
	"github.com/AleutianAI/classgraph/services/classgraph/source"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// MaxYAMLFileSize bounds configuration files.
const MaxYAMLFileSize = 1 << 20

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

var tracer = otel.Tracer("classgraph.config")

// Config is the complete classgraph configuration.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type Config struct {
	Import   ImportConfig   `yaml:"import"`
	Cache    CacheConfig    `yaml:"cache"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Watch    WatchConfig    `yaml:"watch"`
	Server   ServerConfig   `yaml:"server"`
	Neo4j    Neo4jConfig    `yaml:"neo4j"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ImportConfig configures the importer.
type ImportConfig struct {
	// Workers is the parse parallelism; 0 means one per CPU.
	Workers int `yaml:"workers" validate:"gte=0,lte=1024"`

	MaxMajorVersion int  `yaml:"max_major_version" validate:"gte=45"`
	StubDiagnostics bool `yaml:"stub_diagnostics"`

	// Filters are predefined filter names, see source.NamedFilter.
	Filters []string `yaml:"filters" validate:"dive,oneof=do-not-include-tests only-include-tests do-not-include-archives do-not-include-package-infos"`

	// ExcludePatterns are gitignore-style patterns matched against entries.
	ExcludePatterns []string `yaml:"exclude_patterns" validate:"dive,required"`

	ResolveMissingDependencies bool `yaml:"resolve_missing_dependencies"`

	// Classpath lists locations searched for missing classes.
	Classpath []string `yaml:"classpath" validate:"dive,required"`

	// IterationLimits maps reference category names to completion rounds.
	IterationLimits map[string]int `yaml:"iteration_limits" validate:"dive,keys,oneof=supertype enclosing annotation generic_signature member_type access_target type_use,endkeys,gte=-1"`
}

// CacheConfig sizes the import cache.
type CacheConfig struct {
	MaxClasses  int64 `yaml:"max_classes" validate:"gt=0"`
	NumCounters int64 `yaml:"num_counters" validate:"gt=0"`
}

// SnapshotConfig configures the persistent record store.
type SnapshotConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir is the BadgerDB directory; empty keeps snapshots in memory.
	Dir string        `yaml:"dir"`
	TTL time.Duration `yaml:"ttl" validate:"gte=0"`
}

// WatchConfig configures file watching.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// Neo4jConfig configures the Neo4j exporter.
type Neo4jConfig struct {
	URI       string `yaml:"uri" validate:"omitempty,uri"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	BatchSize int    `yaml:"batch_size" validate:"gt=0,lte=100000"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Format is text, json, or auto (text on a terminal, json otherwise).
	Format string `yaml:"format" validate:"oneof=auto text json"`
}

var (
	defaultMu      sync.RWMutex
	defaultOnce    sync.Once
	cachedDefault  *Config
	defaultLoadErr error
)

// Default returns the embedded default configuration.
//
// Description:
//
//	Parses the embedded defaults on first call and caches the result. The
//	returned value is shared; use Clone before modifying it.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func Default(ctx context.Context) (*Config, error) {
	defaultMu.RLock()
	if cachedDefault != nil || defaultLoadErr != nil {
		cfg, err := cachedDefault, defaultLoadErr
		defaultMu.RUnlock()
		return cfg, err
	}
	defaultMu.RUnlock()

	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultOnce.Do(func() {
		cachedDefault, defaultLoadErr = Load(ctx, nil)
	})
	return cachedDefault, defaultLoadErr
}

// ResetDefault clears the cached default configuration for testing.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	cachedDefault = nil
	defaultLoadErr = nil
	defaultOnce = sync.Once{}
}

// Load parses data on top of the embedded defaults and validates the
// result. Keys missing from data keep their default values; empty data
// yields the defaults.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - Parse errors, or ErrInvalidConfig for validation failures.
func Load(ctx context.Context, data []byte) (*Config, error) {
	_, span := tracer.Start(ctx, "config.Load")
	defer span.End()

	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("config exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("workers", cfg.Import.Workers),
		attribute.Bool("resolve_missing_dependencies", cfg.Import.ResolveMissingDependencies),
		attribute.Bool("snapshot_enabled", cfg.Snapshot.Enabled),
	)
	return &cfg, nil
}

// LoadFile loads a YAML file on top of the defaults. An empty path yields
// the defaults.
func LoadFile(ctx context.Context, path string) (*Config, error) {
	if path == "" {
		return Load(ctx, nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("config %s exceeds maximum size (%d > %d)", path, info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Load(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	slog.Debug("config loaded", slog.String("path", path))
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Import.Filters = append([]string(nil), c.Import.Filters...)
	out.Import.ExcludePatterns = append([]string(nil), c.Import.ExcludePatterns...)
	out.Import.Classpath = append([]string(nil), c.Import.Classpath...)
	out.Import.IterationLimits = make(map[string]int, len(c.Import.IterationLimits))
	for k, v := range c.Import.IterationLimits {
		out.Import.IterationLimits[k] = v
	}
	return &out
}

// ReferenceLimits converts IterationLimits to reference categories.
// Categories without an entry are absent from the result.
func (c *ImportConfig) ReferenceLimits() map[raw.ReferenceCategory]int {
	out := make(map[raw.ReferenceCategory]int, len(c.IterationLimits))
	for _, cat := range raw.AllReferenceCategories {
		if n, ok := c.IterationLimits[cat.String()]; ok {
			out[cat] = n
		}
	}
	return out
}

// SourceFilters builds the configured unit filters.
func (c *ImportConfig) SourceFilters() ([]source.Filter, error) {
	filters := make([]source.Filter, 0, len(c.Filters)+1)
	for _, name := range c.Filters {
		f, err := source.NamedFilter(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		filters = append(filters, f)
	}
	if len(c.ExcludePatterns) > 0 {
		filters = append(filters, source.ExcludePatterns(c.ExcludePatterns...))
	}
	return filters, nil
}

// ClasspathLocations parses the classpath entries.
func (c *ImportConfig) ClasspathLocations() ([]source.Location, error) {
	locs := make([]source.Location, 0, len(c.Classpath))
	for _, entry := range c.Classpath {
		loc, err := source.ParseLocation(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: classpath: %w", ErrInvalidConfig, err)
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

// SlogLevel returns the configured level.
func (c *LoggingConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
