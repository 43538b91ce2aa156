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
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg from CLASSGRAPH_* environment variables and
// validates the result. Unparseable values are ignored.
//
// Variables:
//
//	CLASSGRAPH_WORKERS                 import.workers
//	CLASSGRAPH_RESOLVE_DEPENDENCIES    import.resolve_missing_dependencies
//	CLASSGRAPH_CLASSPATH               import.classpath, list separated like PATH
//	CLASSGRAPH_FILTERS                 import.filters, comma separated
//	CLASSGRAPH_SNAPSHOT_ENABLED        snapshot.enabled
//	CLASSGRAPH_SNAPSHOT_DIR            snapshot.dir
//	CLASSGRAPH_SNAPSHOT_TTL            snapshot.ttl
//	CLASSGRAPH_SERVER_ADDR             server.addr
//	CLASSGRAPH_NEO4J_URI               neo4j.uri
//	CLASSGRAPH_NEO4J_USERNAME          neo4j.username
//	CLASSGRAPH_NEO4J_PASSWORD          neo4j.password
//	CLASSGRAPH_NEO4J_DATABASE          neo4j.database
//	CLASSGRAPH_LOG_LEVEL               logging.level
//	CLASSGRAPH_LOG_FORMAT              logging.format
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	env := envReader{lookup: lookup}

	cfg.Import.Workers = env.int("CLASSGRAPH_WORKERS", cfg.Import.Workers)
	cfg.Import.ResolveMissingDependencies = env.bool("CLASSGRAPH_RESOLVE_DEPENDENCIES", cfg.Import.ResolveMissingDependencies)
	cfg.Import.Classpath = env.list("CLASSGRAPH_CLASSPATH", string(filepath.ListSeparator), cfg.Import.Classpath)
	cfg.Import.Filters = env.list("CLASSGRAPH_FILTERS", ",", cfg.Import.Filters)

	cfg.Snapshot.Enabled = env.bool("CLASSGRAPH_SNAPSHOT_ENABLED", cfg.Snapshot.Enabled)
	cfg.Snapshot.Dir = env.string("CLASSGRAPH_SNAPSHOT_DIR", cfg.Snapshot.Dir)
	cfg.Snapshot.TTL = env.duration("CLASSGRAPH_SNAPSHOT_TTL", cfg.Snapshot.TTL)

	cfg.Server.Addr = env.string("CLASSGRAPH_SERVER_ADDR", cfg.Server.Addr)

	cfg.Neo4j.URI = env.string("CLASSGRAPH_NEO4J_URI", cfg.Neo4j.URI)
	cfg.Neo4j.Username = env.string("CLASSGRAPH_NEO4J_USERNAME", cfg.Neo4j.Username)
	cfg.Neo4j.Password = env.string("CLASSGRAPH_NEO4J_PASSWORD", cfg.Neo4j.Password)
	cfg.Neo4j.Database = env.string("CLASSGRAPH_NEO4J_DATABASE", cfg.Neo4j.Database)

	cfg.Logging.Level = strings.ToLower(env.string("CLASSGRAPH_LOG_LEVEL", cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(env.string("CLASSGRAPH_LOG_FORMAT", cfg.Logging.Format))

	return cfg.Validate()
}

type envReader struct {
	lookup LookupFunc
}

func (e envReader) string(key, def string) string {
	val, ok := e.lookup(key)
	if !ok || val == "" {
		return def
	}
	return val
}

func (e envReader) bool(key string, def bool) bool {
	b, err := strconv.ParseBool(e.string(key, ""))
	if err != nil {
		return def
	}
	return b
}

func (e envReader) int(key string, def int) int {
	n, err := strconv.Atoi(e.string(key, ""))
	if err != nil {
		return def
	}
	return n
}

func (e envReader) duration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(e.string(key, ""))
	if err != nil {
		return def
	}
	return d
}

// list splits a separated value, dropping empty items. An unset variable
// keeps def.
func (e envReader) list(key, sep string, def []string) []string {
	val := e.string(key, "")
	if val == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(val, sep) {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
