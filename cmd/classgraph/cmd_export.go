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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/classgraph/services/classgraph/export"
)

func newExportCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Import locations and write the graph to a database",
	}
	cmd.AddCommand(newExportSQLiteCmd(c), newExportNeo4jCmd(c))
	return cmd
}

func newExportSQLiteCmd(c *cli) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "sqlite --out FILE LOCATION...",
		Short: "Write classes, members and accesses to a SQLite database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.importOnce(cmd, args)
			if err != nil {
				return err
			}
			stats, err := export.NewSQLiteWriter(out, c.logger).Write(cmd.Context(), res.Graph)
			if err != nil {
				return err
			}
			printExportStats(c, "sqlite "+out, stats)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "classgraph.db", "database file, replaced if it exists")
	return cmd
}

func newExportNeo4jCmd(c *cli) *cobra.Command {
	var (
		uri, username, password, database string
		batchSize                         int
		clean                             bool
	)
	cmd := &cobra.Command{
		Use:   "neo4j [--uri URI] LOCATION...",
		Short: "Upsert the graph into Neo4j",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nc := c.cfg.Neo4j
			flags := cmd.Flags()
			if flags.Changed("uri") {
				nc.URI = uri
			}
			if flags.Changed("username") {
				nc.Username = username
			}
			if flags.Changed("password") {
				nc.Password = password
			}
			if flags.Changed("database") {
				nc.Database = database
			}
			if flags.Changed("batch-size") {
				nc.BatchSize = batchSize
			}
			if nc.URI == "" {
				return errors.New("neo4j uri is required (--uri or CLASSGRAPH_NEO4J_URI)")
			}

			res, err := c.importOnce(cmd, args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			driver, err := export.OpenNeo4j(ctx, nc.URI, nc.Username, nc.Password)
			if err != nil {
				return err
			}
			defer func() { _ = driver.Close(ctx) }()

			w, err := export.NewNeo4jWriter(driver, export.Neo4jOptions{
				Database:  nc.Database,
				BatchSize: nc.BatchSize,
				Clean:     clean,
				Logger:    c.logger,
			})
			if err != nil {
				return err
			}
			stats, err := w.Write(ctx, res.Graph)
			if err != nil {
				return err
			}
			printExportStats(c, "neo4j "+nc.URI, stats)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&uri, "uri", "", "bolt or neo4j URI")
	flags.StringVar(&username, "username", "", "user name")
	flags.StringVar(&password, "password", "", "password")
	flags.StringVar(&database, "database", "", "database, empty for the server default")
	flags.IntVar(&batchSize, "batch-size", export.DefaultNeo4jBatchSize, "rows per statement")
	flags.BoolVar(&clean, "clean", false, "delete previously exported classes and members first")
	return cmd
}

func printExportStats(c *cli, target string, s export.Stats) {
	fmt.Fprintf(c.stdout, "exported to %s: %d classes, %d stubs, %d members, %d accesses, %d resolved targets\n",
		target, s.Classes, s.Stubs, s.Members, s.Accesses, s.Targets)
}
