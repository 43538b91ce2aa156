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
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/classgraph/services/classgraph/config"
)

// cli holds state shared by all subcommands.
type cli struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	logFormat  string
	trace      bool

	cfg             *config.Config
	logger          *slog.Logger
	shutdownTracing func(context.Context) error
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "classgraph",
		Short:         "Import and query linked JVM class graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return c.teardown(cmd.Context())
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&c.logFormat, "log-format", "", "log format: auto, text or json")
	flags.BoolVar(&c.trace, "trace", false, "print OpenTelemetry spans to stderr")

	root.AddCommand(
		newImportCmd(c),
		newResolveCmd(c),
		newExportCmd(c),
		newServeCmd(c),
		newWatchCmd(c),
	)
	return root
}

// setup loads the configuration and installs logging and tracing.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadFile(cmd.Context(), c.configPath)
	if err != nil {
		return err
	}
	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = strings.ToLower(c.logLevel)
	}
	if c.logFormat != "" {
		cfg.Logging.Format = strings.ToLower(c.logFormat)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg

	c.logger = newLogger(cfg.Logging, c.stderr)
	slog.SetDefault(c.logger)

	if c.trace {
		shutdown, err := setupTracing(c.stderr)
		if err != nil {
			return err
		}
		c.shutdownTracing = shutdown
	}
	return nil
}

func (c *cli) teardown(ctx context.Context) error {
	if c.shutdownTracing == nil {
		return nil
	}
	err := c.shutdownTracing(context.WithoutCancel(ctx))
	c.shutdownTracing = nil
	if err != nil {
		return fmt.Errorf("flushing traces: %w", err)
	}
	return nil
}

// newLogger builds the process logger. The auto format writes text to a
// terminal and JSON otherwise.
func newLogger(lc config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: lc.SlogLevel()}
	if useText(lc.Format, w) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func useText(format string, w io.Writer) bool {
	switch format {
	case "text":
		return true
	case "json":
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
