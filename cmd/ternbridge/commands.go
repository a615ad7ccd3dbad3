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
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ternbridge/pkg/logging"
	"github.com/AleutianAI/ternbridge/pkg/ux"
	"github.com/AleutianAI/ternbridge/services/bridge/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// --- Global Command Variables ---
var (
	configPath       string
	logLevel         string
	logFormat        string
	logDir           string
	projectDir       string
	personalityLevel string

	// cfg and logger are ready once PersistentPreRunE has run.
	cfg    *config.Config
	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "ternbridge",
		Short: "Bridge between editors and the Tern JavaScript analysis server",
		Long: `ternbridge runs a Tern server per JavaScript project and turns editor
commands (completion, go to definition, call tips, usages, documentation)
into Tern queries.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	// --- One-shot queries ---
	completeCmd = &cobra.Command{
		Use:   "complete",
		Short: "List completions at a position",
		RunE:  runQuery(queryComplete),
	}
	definitionCmd = &cobra.Command{
		Use:     "definition",
		Aliases: []string{"def"},
		Short:   "Show where the expression at a position is defined",
		RunE:    runQuery(queryDefinition),
	}
	calltipCmd = &cobra.Command{
		Use:   "calltip",
		Short: "Show the signature of the call enclosing a position",
		RunE:  runQuery(queryCalltip),
	}
	refsCmd = &cobra.Command{
		Use:     "refs",
		Aliases: []string{"usages"},
		Short:   "List every use of the variable at a position",
		RunE:    runQuery(queryRefs),
	}
	docCmd = &cobra.Command{
		Use:   "doc",
		Short: "Show documentation for the expression at a position",
		RunE:  runQuery(queryDoc),
	}
	projectConfigCmd = &cobra.Command{
		Use:   "project-config",
		Short: "Write the project's Tern config from the template if missing and print its path",
		RunE:  runQuery(queryProjectConfig),
	}

	// --- Long-lived bridge ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve editor requests as newline-delimited JSON on stdin/stdout",
		RunE:  runServe,
	}

	// --- Configuration ---
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Inspect and create the ternbridge configuration",
	}
	configPrintCmd = &cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration as YAML",
		RunE:  runConfigPrint,
	}
	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file if it does not exist",
		RunE:  runConfigInit,
	}
	configPathCmd = &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		RunE:  runConfigPath,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the ternbridge version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "ternbridge "+version)
		},
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (default ~/.ternbridge/ternbridge.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&logFormat, "log-format", "", "Log format on stderr: text or json")
	flags.StringVar(&logDir, "log-dir", "", "Also write JSON logs to a dated file in this directory")
	flags.StringVar(&projectDir, "project", "", "Pin the JavaScript project directory")
	flags.StringVar(&personalityLevel, "output", "",
		"Terminal output: standard, minimal, or machine (tab-separated, for scripts)")

	for _, cmd := range []*cobra.Command{completeCmd, definitionCmd, calltipCmd, refsCmd, docCmd, projectConfigCmd} {
		addPositionFlags(cmd)
		rootCmd.AddCommand(cmd)
	}

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("status-addr", "", "Serve /healthz and /metrics on this address (overrides telemetry.status_addr)")

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configPrintCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	rootCmd.AddCommand(versionCmd)
}

// setup loads the configuration, applies flag overrides, and installs the
// process logger.
func setup(cmd *cobra.Command, args []string) error {
	ux.InitPersonality(personalityLevel)

	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Logging.Level = logLevel
	}
	if logFormat != "" {
		loaded.Logging.Format = logFormat
	}
	if projectDir != "" {
		loaded.Project.Dir = projectDir
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	cfg = loaded

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  logDir,
		Service: "ternbridge",
		JSON:    cfg.Logging.Format == "json",
		Output:  os.Stderr,
	})
	slog.SetDefault(logger.Slog())
	return nil
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DefaultPath()
}
