// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package project resolves the project directory a file belongs to.
package project

import (
	"os"
	"path/filepath"
)

// DefaultMarkers are the files and directories that mark a JavaScript
// project root, most specific first.
func DefaultMarkers() []string {
	return []string{".tern-project", "package.json", "jsconfig.json", ".git"}
}

// Finder resolves project directories.
//
// # Description
//
// An explicit Override always wins. Otherwise the directory tree is walked
// upward from the file's directory and the first directory holding any of
// the Markers is the project. A file outside any project has no project
// directory, which is a valid answer.
//
// # Thread Safety
//
// Safe for concurrent use; Finder holds no mutable state.
type Finder struct {
	// Override is a fixed project directory. Empty enables the marker walk.
	Override string

	// Markers are root indicators. Nil means DefaultMarkers.
	Markers []string

	// Ceiling stops the walk; the ceiling directory itself is not examined.
	// Empty walks up to the filesystem root.
	Ceiling string
}

// NewFinder creates a Finder with the default markers.
func NewFinder(override string) Finder {
	return Finder{Override: override, Markers: DefaultMarkers()}
}

// Find returns the project directory for filename.
//
// # Inputs
//
//   - filename: The open file. May be relative or empty.
//
// # Outputs
//
//   - string: The absolute project directory.
//   - bool: False when no project was found.
func (f Finder) Find(filename string) (string, bool) {
	if f.Override != "" {
		abs, err := filepath.Abs(f.Override)
		if err != nil || !isDir(abs) {
			return "", false
		}
		return abs, true
	}
	if filename == "" {
		return "", false
	}

	abs, err := filepath.Abs(filename)
	if err != nil {
		return "", false
	}

	markers := f.Markers
	if markers == nil {
		markers = DefaultMarkers()
	}
	ceiling := ""
	if f.Ceiling != "" {
		ceiling, _ = filepath.Abs(f.Ceiling)
	}

	dir := filepath.Dir(abs)
	for {
		if ceiling != "" && dir == ceiling {
			return "", false
		}
		for _, marker := range markers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
