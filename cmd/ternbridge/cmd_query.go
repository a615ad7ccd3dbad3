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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ternbridge/pkg/ux"
	"github.com/AleutianAI/ternbridge/services/bridge/commands"
	"github.com/AleutianAI/ternbridge/services/bridge/config"
	"github.com/AleutianAI/ternbridge/services/bridge/tern"
)

// errNotHandled makes a one-shot command exit non-zero when Tern had no
// answer.
var errNotHandled = errors.New("no result")

type queryFunc func(*commands.Dispatcher, context.Context, commands.Host) bool

var (
	queryComplete      queryFunc = (*commands.Dispatcher).Complete
	queryDefinition    queryFunc = (*commands.Dispatcher).GotoDefinition
	queryCalltip       queryFunc = (*commands.Dispatcher).ShowSignature
	queryRefs          queryFunc = (*commands.Dispatcher).ShowReferences
	queryDoc           queryFunc = (*commands.Dispatcher).ShowDocstring
	queryProjectConfig queryFunc = (*commands.Dispatcher).OpenProjectConfig
)

func addPositionFlags(cmd *cobra.Command) {
	cmd.Flags().String("file", "", "JavaScript file to query")
	cmd.Flags().Int("line", 1, "1-based line of the caret")
	cmd.Flags().Int("col", 1, "1-based column of the caret, counted in characters")
	cmd.Flags().Bool("stdin", false, "Read the buffer text from stdin instead of --file")
	_ = cmd.MarkFlagRequired("file")
}

// position is the parsed caret flags.
type position struct {
	file      string
	line, col int
	stdin     bool
}

func positionFlags(cmd *cobra.Command) (position, error) {
	var p position
	var err error
	if p.file, err = cmd.Flags().GetString("file"); err != nil {
		return p, err
	}
	if p.line, err = cmd.Flags().GetInt("line"); err != nil {
		return p, err
	}
	if p.col, err = cmd.Flags().GetInt("col"); err != nil {
		return p, err
	}
	if p.stdin, err = cmd.Flags().GetBool("stdin"); err != nil {
		return p, err
	}
	if p.line < 1 || p.col < 1 {
		return p, fmt.Errorf("--line and --col are 1-based, got %d:%d", p.line, p.col)
	}
	return p, nil
}

// dispatcherOptions maps the editor section onto dispatcher settings.
func dispatcherOptions(c *config.Config) commands.Options {
	return commands.Options{
		GotoTopOffset:   c.Editor.GotoTopOffset,
		CalltipLookback: c.Editor.CalltipLookback,
		CalltipDuration: c.Editor.CalltipDuration,
	}
}

// runQuery runs one dispatcher handler against a file and stops Tern.
func runQuery(q queryFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		pos, err := positionFlags(cmd)
		if err != nil {
			return err
		}

		abs, err := filepath.Abs(pos.file)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", pos.file, err)
		}
		text, err := readBuffer(abs, pos.stdin)
		if err != nil {
			return err
		}

		out := &ux.Printer{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr()}
		status := &ux.Printer{Out: cmd.ErrOrStderr(), Err: cmd.ErrOrStderr()}

		session := tern.NewSession(cfg.SessionConfig(),
			tern.WithLogger(slog.Default()),
			tern.WithNotifier(tern.NotifierFunc(func(err error) {
				out.Error("Tern: " + err.Error())
			})),
		)
		d := commands.NewDispatcher(tern.NewOperations(session), dispatcherOptions(cfg), slog.Default())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		defer func() {
			if err := d.Shutdown(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("Failed to stop tern", slog.String("error", err.Error()))
			}
		}()

		dir, ok := cfg.Finder().Find(abs)
		host := &terminalHost{
			Buffer: &commands.Buffer{
				Name:    abs,
				Content: text,
				// A single caret with no selection.
				CaretList: [][4]int{{pos.col - 1, pos.line - 1, -1, -1}},
			},
			out:         out,
			status:      status,
			in:          os.Stdin,
			interactive: !pos.stdin && ux.IsInteractive(),
			projectDir:  dir,
			hasProject:  ok,
		}

		if !q(d, ctx, host) {
			return errNotHandled
		}
		return nil
	}
}

func readBuffer(path string, fromStdin bool) (string, error) {
	if fromStdin {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
