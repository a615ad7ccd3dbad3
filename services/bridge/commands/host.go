// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package commands turns editor commands into tern queries and applies the
// answers back to the editor.
//
// The editor is reached only through the Host interface, so the same
// Dispatcher drives the NDJSON stdio adapter and the one-shot terminal host.
package commands

import (
	"context"
	"time"

	"github.com/AleutianAI/ternbridge/services/bridge/callsite"
)

// =============================================================================
// HOST COLLABORATORS
// =============================================================================

// Editor is the buffer and view the command runs against.
type Editor interface {
	// Filename is the buffer's file name, sent to the server as-is.
	Filename() string

	// Text is the full, possibly unsaved buffer.
	Text() string

	// Carets returns every caret as (anchorCol, anchorLine, activeCol,
	// activeLine), with activeCol -1 when nothing is selected.
	Carets() [][4]int

	// LineText returns one line without its terminator, or "" when out of range.
	LineText(line int) string

	// Tokens returns lexer tokens starting on lines first through last.
	Tokens(ctx context.Context, first, last int) ([]callsite.Token, error)

	// OpenFile opens path, or switches to it when already open.
	OpenFile(path string) error

	// SetTopLine scrolls so line is the first visible line.
	SetTopLine(line int)

	// SetCaret moves the caret, dropping any selection.
	SetCaret(col, line int)

	// ShowCompletions opens the completion list. left and right are the
	// rune counts around the caret that a chosen item replaces.
	ShowCompletions(items string, left, right int)
}

// UI shows messages and menus.
type UI interface {
	// Status shows a one-line message in the status bar.
	Status(msg string)

	// Hint shows a transient message for about d.
	Hint(msg string, d time.Duration)

	// Alert shows a message the user must dismiss.
	Alert(msg string)

	// Choose shows a menu and returns the picked index, or false on cancel.
	Choose(title string, items []string) (int, bool)
}

// Host is everything a command needs from the editor.
type Host interface {
	Editor
	UI

	// ProjectDir returns the JavaScript project directory for the buffer.
	// False means the buffer belongs to no project.
	ProjectDir() (string, bool)
}
