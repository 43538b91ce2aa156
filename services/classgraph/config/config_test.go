// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/classgraph/services/classgraph/raw"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Import.Workers)
	assert.Equal(t, 69, cfg.Import.MaxMajorVersion)
	assert.True(t, cfg.Import.StubDiagnostics)
	assert.False(t, cfg.Import.ResolveMissingDependencies)
	assert.Equal(t, int64(500000), cfg.Cache.MaxClasses)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, "127.0.0.1:8089", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 500, cfg.Neo4j.BatchSize)
	assert.Equal(t, "auto", cfg.Logging.Format)

	limits := cfg.Import.ReferenceLimits()
	assert.Len(t, limits, len(raw.AllReferenceCategories))
	assert.Equal(t, -1, limits[raw.RefSupertype])
	assert.Equal(t, 1, limits[raw.RefAccessTarget])
}

func TestDefault_Cached(t *testing.T) {
	ResetDefault()
	t.Cleanup(ResetDefault)

	a, err := Default(context.Background())
	require.NoError(t, err)
	b, err := Default(context.Background())
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestLoad_Overrides(t *testing.T) {
	data := []byte(`
import:
  workers: 8
  resolve_missing_dependencies: true
  classpath: ["/opt/libs/a.jar"]
  iteration_limits:
    member_type: 3
snapshot:
  enabled: true
  ttl: 24h
`)
	cfg, err := Load(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Import.Workers)
	assert.True(t, cfg.Import.ResolveMissingDependencies)
	assert.Equal(t, []string{"/opt/libs/a.jar"}, cfg.Import.Classpath)
	assert.Equal(t, 24*time.Hour, cfg.Snapshot.TTL)

	limits := cfg.Import.ReferenceLimits()
	assert.Equal(t, 3, limits[raw.RefMemberType])
	assert.Equal(t, -1, limits[raw.RefSupertype], "unmentioned categories keep their defaults")
	assert.Equal(t, "127.0.0.1:8089", cfg.Server.Addr, "unmentioned sections keep their defaults")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"negative workers", "import:\n  workers: -2\n", "Workers"},
		{"old class version", "import:\n  max_major_version: 12\n", "MaxMajorVersion"},
		{"unknown filter", "import:\n  filters: [no-such-filter]\n", "Filters"},
		{"unknown category", "import:\n  iteration_limits:\n    bogus: 1\n", "IterationLimits"},
		{"limit below unlimited", "import:\n  iteration_limits:\n    member_type: -5\n", "IterationLimits"},
		{"empty cache", "cache:\n  max_classes: 0\n", "MaxClasses"},
		{"bad address", "server:\n  addr: not-an-address\n", "Addr"},
		{"bad neo4j uri", "neo4j:\n  uri: '::not a uri'\n", "URI"},
		{"bad log level", "logging:\n  level: chatty\n", "Level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), []byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoad_Malformed(t *testing.T) {
	_, err := Load(context.Background(), []byte("import: [unterminated"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_TooLarge(t *testing.T) {
	data := []byte("# " + strings.Repeat("x", MaxYAMLFileSize))
	_, err := Load(context.Background(), data)
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "classgraph.yaml")
	require.NoError(t, os.WriteFile(p, []byte("logging:\n  level: debug\n"), 0o644))

	cfg, err := LoadFile(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)

	_, err = LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	def, err := LoadFile(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "info", def.Logging.Level)
}

func TestApplyEnv(t *testing.T) {
	cfg, err := Load(context.Background(), nil)
	require.NoError(t, err)

	env := map[string]string{
		"CLASSGRAPH_WORKERS":              "4",
		"CLASSGRAPH_RESOLVE_DEPENDENCIES": "true",
		"CLASSGRAPH_CLASSPATH":            "/a.jar" + string(filepath.ListSeparator) + "/b" + string(filepath.ListSeparator),
		"CLASSGRAPH_FILTERS":              "do-not-include-tests, do-not-include-package-infos",
		"CLASSGRAPH_SNAPSHOT_TTL":         "1h",
		"CLASSGRAPH_LOG_LEVEL":            "WARN",
		"CLASSGRAPH_SNAPSHOT_ENABLED":     "not-a-bool",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	require.NoError(t, ApplyEnv(cfg, lookup))

	assert.Equal(t, 4, cfg.Import.Workers)
	assert.True(t, cfg.Import.ResolveMissingDependencies)
	assert.Equal(t, []string{"/a.jar", "/b"}, cfg.Import.Classpath)
	assert.Equal(t, []string{"do-not-include-tests", "do-not-include-package-infos"}, cfg.Import.Filters)
	assert.Equal(t, time.Hour, cfg.Snapshot.TTL)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.False(t, cfg.Snapshot.Enabled, "unparseable values keep the current value")

	filters, err := cfg.Import.SourceFilters()
	require.NoError(t, err)
	assert.Len(t, filters, 2)
}

func TestApplyEnv_Invalid(t *testing.T) {
	cfg, err := Load(context.Background(), nil)
	require.NoError(t, err)
	lookup := func(key string) (string, bool) {
		if key == "CLASSGRAPH_LOG_FORMAT" {
			return "xml", true
		}
		return "", false
	}
	assert.ErrorIs(t, ApplyEnv(cfg, lookup), ErrInvalidConfig)
}

func TestImportConfig_Conversions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.jar"), []byte("PK"), 0o644))
	c := ImportConfig{
		Filters:         []string{"do-not-include-archives"},
		ExcludePatterns: []string{"**/generated/"},
		Classpath:       []string{dir, filepath.Join(dir, "lib.jar")},
	}

	filters, err := c.SourceFilters()
	require.NoError(t, err)
	assert.Len(t, filters, 2)

	locs, err := c.ClasspathLocations()
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, dir, locs[0].Path)

	c.Classpath = []string{filepath.Join(dir, "missing")}
	_, err = c.ClasspathLocations()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	c.Filters = []string{"bogus"}
	_, err = c.SourceFilters()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_Clone(t *testing.T) {
	cfg, err := Load(context.Background(), nil)
	require.NoError(t, err)
	clone := cfg.Clone()
	clone.Import.IterationLimits["member_type"] = 9
	clone.Import.Classpath = append(clone.Import.Classpath, "/x")
	assert.Equal(t, 1, cfg.Import.IterationLimits["member_type"])
	assert.Empty(t, cfg.Import.Classpath)
}

func TestLoggingConfig_SlogLevel(t *testing.T) {
	tests := map[string]string{"debug": "DEBUG", "info": "INFO", "warn": "WARN", "error": "ERROR"}
	for level, want := range tests {
		c := LoggingConfig{Level: level}
		assert.Equal(t, want, c.SlogLevel().String())
	}
}
