// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command classgraph imports compiled JVM classes into a linked class graph
// and serves, resolves, exports and watches it.
//
// Usage:
//
//	classgraph import build/classes lib/guava.jar
//	classgraph resolve --owner com.acme.Service --name toString build/classes
//	classgraph export sqlite --out graph.db build/classes
//	classgraph export neo4j --uri neo4j://localhost:7687 build/classes
//	classgraph serve --addr 127.0.0.1:8089
//	classgraph watch build/classes
//
// Configuration comes from the embedded defaults, an optional --config YAML
// file and CLASSGRAPH_* environment variables, in that order.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
