// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkfile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
}

func TestFinder_WalksUpToMarker(t *testing.T) {
	root := t.TempDir()
	mkfile(t, filepath.Join(root, "package.json"))
	file := filepath.Join(root, "src", "lib", "util.js")
	mkfile(t, file)

	dir, ok := Finder{Ceiling: filepath.Dir(root)}.Find(file)
	require.True(t, ok)
	assert.Equal(t, root, dir)
}

func TestFinder_NearestMarkerWins(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "packages", "web")
	mkfile(t, filepath.Join(nested, ".tern-project"))
	file := filepath.Join(nested, "index.js")
	mkfile(t, file)

	dir, ok := NewFinder("").Find(file)
	require.True(t, ok)
	assert.Equal(t, nested, dir)
}

func TestFinder_NoProject(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "loose.js")
	mkfile(t, file)

	_, ok := Finder{Ceiling: filepath.Dir(root)}.Find(file)
	assert.False(t, ok)

	_, ok = NewFinder("").Find("")
	assert.False(t, ok)
}

func TestFinder_OverrideWins(t *testing.T) {
	root := t.TempDir()
	mkfile(t, filepath.Join(root, "a", "package.json"))
	override := filepath.Join(root, "b")
	require.NoError(t, os.Mkdir(override, 0o755))

	dir, ok := NewFinder(override).Find(filepath.Join(root, "a", "x.js"))
	require.True(t, ok)
	assert.Equal(t, override, dir)

	_, ok = NewFinder(filepath.Join(root, "missing")).Find("x.js")
	assert.False(t, ok)
}

func TestFinder_CustomMarkers(t *testing.T) {
	root := t.TempDir()
	mkfile(t, filepath.Join(root, "workspace.cfg"))
	file := filepath.Join(root, "app", "main.js")
	mkfile(t, file)

	dir, ok := Finder{Markers: []string{"workspace.cfg"}, Ceiling: filepath.Dir(root)}.Find(file)
	require.True(t, ok)
	assert.Equal(t, root, dir)
}
