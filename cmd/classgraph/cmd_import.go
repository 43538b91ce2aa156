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
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/classgraph/services/classgraph/importer"
	"github.com/AleutianAI/classgraph/services/classgraph/raw"
)

// importSummary is the JSON form of an import.
type importSummary struct {
	ID          string               `json:"id"`
	Scope       string               `json:"scope"`
	Stats       importer.ImportStats `json:"stats"`
	Diagnostics []raw.Diagnostic     `json:"diagnostics,omitempty"`
}

func newImportCmd(c *cli) *cobra.Command {
	var (
		asJSON      bool
		showDiags   bool
		resolveDeps bool
	)
	cmd := &cobra.Command{
		Use:   "import LOCATION...",
		Short: "Import directories, archives or class files and print a summary",
		Long: `Import reads every class in the given locations, links them into one
graph and prints what was found. Later locations win when a class appears
more than once. Locations are directories, .jar/.zip archives (optionally
"jar:lib.jar!/BOOT-INF/classes") or single .class files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("resolve-dependencies") {
				c.cfg.Import.ResolveMissingDependencies = resolveDeps
			}
			res, err := c.importOnce(cmd, args)
			if err != nil {
				return err
			}
			if asJSON {
				return writeImportJSON(c.stdout, res, showDiags)
			}
			writeImportText(c.stdout, res, showDiags)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	cmd.Flags().BoolVar(&showDiags, "diagnostics", false, "print every diagnostic")
	cmd.Flags().BoolVar(&resolveDeps, "resolve-dependencies", false, "complete missing classes from the configured classpath")
	return cmd
}

// importOnce imports args with a fresh importer.
func (c *cli) importOnce(cmd *cobra.Command, args []string) (*importer.Result, error) {
	scope, err := c.scope(args)
	if err != nil {
		return nil, err
	}
	im, closeImporter, err := c.newImporter()
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeImporter() }()
	return im.Import(cmd.Context(), scope)
}

func writeImportJSON(w io.Writer, res *importer.Result, withDiags bool) error {
	out := importSummary{ID: res.ID, Scope: res.Scope.String(), Stats: res.Stats}
	if withDiags {
		out.Diagnostics = res.Diagnostics
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeImportText(w io.Writer, res *importer.Result, withDiags bool) {
	s := res.Stats
	fmt.Fprintf(w, "imported %d classes from %d units in %dms\n", s.Link.Imported, s.Units, s.DurationMilli)
	fmt.Fprintf(w, "  stubs:      %d\n", s.Link.Stubs)
	fmt.Fprintf(w, "  members:    %d\n", s.Link.Members)
	fmt.Fprintf(w, "  accesses:   %d\n", s.Link.AccessEdges)
	if s.Resolved > 0 {
		fmt.Fprintf(w, "  resolved:   %d\n", s.Resolved)
	}
	if s.FromSnapshot {
		fmt.Fprintln(w, "  records loaded from snapshot")
	}

	counts := raw.CountByKind(res.Diagnostics)
	kinds := make([]raw.DiagnosticKind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		fmt.Fprintf(w, "  %s: %d\n", k, counts[k])
	}
	if withDiags {
		for _, d := range res.Diagnostics {
			fmt.Fprintln(w, d.String())
		}
	}
}
