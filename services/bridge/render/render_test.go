// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package render

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ternbridge/services/bridge/caret"
	"github.com/AleutianAI/ternbridge/services/bridge/tern"
)

func TestFormatCompletions(t *testing.T) {
	got := FormatCompletions([]tern.Completion{
		{Name: "length", Type: "number", Doc: "Element count."},
		{Name: "push"},
		{Name: "map", Type: "fn(f: fn())", Doc: "Creates a new array.\nCalls f once per element."},
	})

	want := "|length|number|\tElement count.\n" +
		"|push||\t\n" +
		"|map|fn(f: fn())|\tCreates a new array. Calls f once per element."
	assert.Equal(t, want, got)
}

func TestFormatCompletions_Empty(t *testing.T) {
	assert.Equal(t, "", FormatCompletions(nil))
}

func TestReplacementRange(t *testing.T) {
	line := "  arr.pu"
	c := caret.Normalize(8, 3, caret.NoSelection, caret.NoSelection)

	t.Run("server start", func(t *testing.T) {
		res := &tern.CompletionsResult{
			Start: tern.Position{Line: 3, Ch: 6},
			End:   tern.Position{Line: 3, Ch: 8},
		}
		left, right := ReplacementRange(res, c, line)
		assert.Equal(t, 2, left)
		assert.Equal(t, 0, right)
	})

	t.Run("word scan fallback", func(t *testing.T) {
		left, right := ReplacementRange(nil, c, line)
		assert.Equal(t, 2, left)
		assert.Equal(t, 0, right)
	})

	t.Run("server start on another line", func(t *testing.T) {
		res := &tern.CompletionsResult{Start: tern.Position{Line: 0, Ch: 1}}
		left, _ := ReplacementRange(res, c, line)
		assert.Equal(t, 2, left)
	})

	t.Run("mid identifier replaces the rest", func(t *testing.T) {
		mid := caret.Normalize(4, 0, caret.NoSelection, caret.NoSelection)
		res := &tern.CompletionsResult{
			Start: tern.Position{Line: 0, Ch: 0},
			End:   tern.Position{Line: 0, Ch: 4},
		}
		left, right := ReplacementRange(res, mid, "docum")
		assert.Equal(t, 4, left)
		assert.Equal(t, 1, right)
	})
}

func TestResolveTarget_RebasesOntoProject(t *testing.T) {
	proj := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(proj, "lib"), 0o755))
	file := filepath.Join(proj, "lib", "util.js")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	target, err := ResolveTarget(proj, "lib/util.js", tern.Position{Line: 12, Ch: 4}, -1)
	require.NoError(t, err)

	assert.Equal(t, file, target.Path)
	assert.Equal(t, 12, target.Line)
	assert.Equal(t, 4, target.Col)
	assert.Equal(t, 7, target.TopLine)
}

func TestResolveTarget_TopLineClampsAtZero(t *testing.T) {
	proj := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(proj, "a.js"), nil, 0o644))

	target, err := ResolveTarget(proj, "a.js", tern.Position{Line: 2}, DefaultTopLineOffset)
	require.NoError(t, err)
	assert.Equal(t, 0, target.TopLine)
}

func TestResolveTarget_AbsolutePathKept(t *testing.T) {
	file := filepath.Join(t.TempDir(), "abs.js")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	target, err := ResolveTarget("/somewhere/else", file, tern.Position{}, 0)
	require.NoError(t, err)
	assert.Equal(t, file, target.Path)
}

func TestResolveTarget_Missing(t *testing.T) {
	proj := t.TempDir()

	_, err := ResolveTarget(proj, "lib/gone.js", tern.Position{}, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingTargetFile))
	assert.Contains(t, err.Error(), filepath.Join(proj, "lib", "gone.js"))

	// A directory is not a jump target.
	require.NoError(t, os.Mkdir(filepath.Join(proj, "lib"), 0o755))
	_, err = ResolveTarget(proj, "lib", tern.Position{}, 5)
	assert.True(t, errors.Is(err, ErrMissingTargetFile))

	_, err = ResolveTarget(proj, "", tern.Position{}, 5)
	assert.True(t, errors.Is(err, ErrNoTarget))
}

func TestFormatReferences(t *testing.T) {
	got := FormatReferences([]tern.Reference{
		{File: "a.js", Start: tern.Position{Line: 0, Ch: 4}},
		{File: "lib/b.js", Start: tern.Position{Line: 11, Ch: 2}},
	})
	assert.Equal(t, []string{"a.js\t1", "lib/b.js\t12"}, got)
	assert.Empty(t, FormatReferences(nil))
}

func TestFormatDocumentation(t *testing.T) {
	assert.Equal(t, "", FormatDocumentation(nil))
	assert.Equal(t, "", FormatDocumentation(&tern.DocumentationResult{}))

	assert.Equal(t, "Adds two numbers.",
		FormatDocumentation(&tern.DocumentationResult{Doc: "Adds two numbers.\n"}))

	assert.Equal(t, "Adds two numbers.\n\nhttps://example.com/add\n(mathlib)",
		FormatDocumentation(&tern.DocumentationResult{
			Doc:    "Adds two numbers.",
			URL:    "https://example.com/add",
			Origin: "mathlib",
		}))

	assert.Equal(t, "https://developer.mozilla.org/",
		FormatDocumentation(&tern.DocumentationResult{URL: "https://developer.mozilla.org/"}))
}
