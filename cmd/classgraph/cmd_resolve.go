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
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/classgraph/services/classgraph/graph"
)

func newResolveCmd(c *cli) *cobra.Command {
	var owner, name, params, kind string
	cmd := &cobra.Command{
		Use:   "resolve --owner CLASS [--name NAME] [--params T1,T2] [--kind method|field|constructor] LOCATION...",
		Short: "Resolve a member reference the way the JVM would",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch kind {
			case "method", "field", "constructor":
			default:
				return fmt.Errorf("unknown kind %q", kind)
			}
			if name == "" && kind != "constructor" {
				return fmt.Errorf("--name is required for kind %s", kind)
			}
			var paramTypes []string
			if params != "" {
				paramTypes = strings.Split(params, ",")
			}

			res, err := c.importOnce(cmd, args)
			if err != nil {
				return err
			}

			var targets []*graph.MemberNode
			switch kind {
			case "method":
				targets = res.Graph.ResolveMethod(owner, name, paramTypes...)
			case "field":
				targets = res.Graph.ResolveField(owner, name)
			case "constructor":
				targets = res.Graph.ResolveConstructor(owner, paramTypes...)
			}

			if len(targets) == 0 {
				fmt.Fprintln(c.stdout, "no targets")
				return nil
			}
			for _, m := range targets {
				fmt.Fprintln(c.stdout, m.FullName())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "declared owner class, e.g. com.acme.Service")
	cmd.Flags().StringVar(&name, "name", "", "member name")
	cmd.Flags().StringVar(&params, "params", "", "comma separated parameter types")
	cmd.Flags().StringVar(&kind, "kind", "method", "method, field or constructor")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
