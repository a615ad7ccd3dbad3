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
	"io"
	"time"

	"github.com/AleutianAI/ternbridge/pkg/ux"
	"github.com/AleutianAI/ternbridge/services/bridge/commands"
)

// terminalHost runs one command against a file on disk and prints the
// outcome. Results go to out, status lines to status.
//
// A jump prints "path:line:col" (1-based), the form most editors and
// terminals accept as a location.
type terminalHost struct {
	*commands.Buffer

	out    *ux.Printer
	status *ux.Printer

	// in answers Choose when interactive.
	in          io.Reader
	interactive bool

	projectDir string
	hasProject bool

	opened string
}

var _ commands.Host = (*terminalHost)(nil)

func (h *terminalHost) ProjectDir() (string, bool) {
	return h.projectDir, h.hasProject
}

func (h *terminalHost) OpenFile(path string) error {
	h.opened = path
	return nil
}

// SetTopLine is a no-op: a terminal has no view to scroll.
func (h *terminalHost) SetTopLine(int) {}

func (h *terminalHost) SetCaret(col, line int) {
	fmt.Fprintf(h.out.Out, "%s:%d:%d\n", h.opened, line+1, col+1)
}

func (h *terminalHost) ShowCompletions(items string, _, _ int) {
	h.out.Completions(items)
}

func (h *terminalHost) Status(msg string) {
	h.status.Info(msg)
}

func (h *terminalHost) Hint(msg string, _ time.Duration) {
	h.out.Info(msg)
}

func (h *terminalHost) Alert(msg string) {
	h.out.Box("", msg)
}

// Choose lets the user pick when stdin is a terminal. Otherwise it prints
// the items and cancels, so piped output lists every usage.
func (h *terminalHost) Choose(title string, items []string) (int, bool) {
	if !h.interactive {
		h.out.Menu(title, items)
		return -1, false
	}
	return h.out.Pick(h.in, title, items)
}
