// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package render turns tern results into values an editor can act on.
package render

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AleutianAI/ternbridge/services/bridge/caret"
	"github.com/AleutianAI/ternbridge/services/bridge/tern"
)

// DefaultTopLineOffset is how many lines are kept above a jump target.
const DefaultTopLineOffset = 5

var (
	// ErrNoTarget indicates the definition has no file location.
	ErrNoTarget = errors.New("definition has no file location")

	// ErrMissingTargetFile indicates the rebased definition path is not a file.
	ErrMissingTargetFile = errors.New("definition file not found")
)

// =============================================================================
// COMPLETIONS
// =============================================================================

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// FormatCompletions renders completions for the editor's completion list.
//
// Each item becomes "|name|type|\tdoc" and items are joined with newlines.
// Line breaks inside a field are collapsed to spaces so one item stays on
// one line.
func FormatCompletions(items []tern.Completion) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, "|"+oneLine(item.Name)+"|"+oneLine(item.Type)+"|\t"+oneLine(item.Doc))
	}
	return strings.Join(lines, "\n")
}

func oneLine(s string) string {
	return newlines.Replace(s)
}

// ReplacementRange returns how many runes left and right of the caret a
// chosen completion replaces.
//
// The left width comes from the server's reported word start when it lies on
// the caret line before the caret, and from a word scan of line otherwise.
// The right width always comes from the word scan, so completing in the middle
// of an identifier replaces the whole identifier.
func ReplacementRange(res *tern.CompletionsResult, c caret.Caret, line string) (left, right int) {
	at := c.End()
	wordLeft, wordRight := caret.WordBoundaries(line, at.Col)

	left = wordLeft
	if res != nil && res.Start.Line == at.Line && res.Start.Ch <= at.Col && res.End.Line == at.Line {
		left = at.Col - res.Start.Ch
	}
	return left, wordRight
}

// =============================================================================
// DEFINITIONS
// =============================================================================

// Target is a resolved jump destination.
type Target struct {
	// Path is the file to open.
	Path string

	// Line and Col are the zero-based caret destination.
	Line int
	Col  int

	// TopLine is the first visible line, keeping context above Line.
	TopLine int
}

// ResolveTarget rebases a server path onto the project directory.
//
// Description:
//
//	Tern reports files relative to the directory it was started in, which is
//	the project directory rather than the directory of the open file.
//	Relative paths are joined onto projectDir; absolute paths are kept.
//
// Inputs:
//
//	projectDir - The session's project directory, or "" for none.
//	file - The file reported by the server.
//	pos - The target position in that file.
//	offset - Lines to keep above the target; negative means DefaultTopLineOffset.
//
// Outputs:
//
//	Target - The destination.
//	error - ErrNoTarget when file is empty, ErrMissingTargetFile when the
//	        rebased path is not an existing regular file.
func ResolveTarget(projectDir, file string, pos tern.Position, offset int) (Target, error) {
	if file == "" {
		return Target{}, ErrNoTarget
	}
	if offset < 0 {
		offset = DefaultTopLineOffset
	}

	path := file
	if !filepath.IsAbs(path) && projectDir != "" {
		path = filepath.Join(projectDir, path)
	}
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return Target{}, fmt.Errorf("%w: %s", ErrMissingTargetFile, path)
	}

	return Target{
		Path:    path,
		Line:    pos.Line,
		Col:     pos.Ch,
		TopLine: max(0, pos.Line-offset),
	}, nil
}

// =============================================================================
// REFERENCES
// =============================================================================

// FormatReferences renders one "file\tline" label per reference, with
// one-based line numbers for display.
func FormatReferences(refs []tern.Reference) []string {
	labels := make([]string, 0, len(refs))
	for _, ref := range refs {
		labels = append(labels, ref.File+"\t"+strconv.Itoa(ref.Start.Line+1))
	}
	return labels
}

// =============================================================================
// DOCUMENTATION
// =============================================================================

// FormatDocumentation renders a docstring with its URL and origin on
// separate lines. It returns "" when the result is empty.
func FormatDocumentation(res *tern.DocumentationResult) string {
	if res.Empty() {
		return ""
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(res.Doc))
	if res.URL != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(res.URL)
	}
	if res.Origin != "" {
		b.WriteString("\n(")
		b.WriteString(res.Origin)
		b.WriteString(")")
	}
	return b.String()
}
