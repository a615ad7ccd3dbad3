// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tern

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultProjectFile is the per-project config file Tern reads at startup.
const DefaultProjectFile = ".tern-project"

//go:embed default_project.json
var defaultTemplate []byte

// DefaultTemplate returns a copy of the built-in project config template.
func DefaultTemplate() []byte {
	out := make([]byte, len(defaultTemplate))
	copy(out, defaultTemplate)
	return out
}

// Provisioner writes the bridge's project config template into projects.
//
// The template is the source of truth for bridge-managed projects, so an
// existing project file is overwritten.
type Provisioner struct {
	// FileName is the project file name. Empty means DefaultProjectFile.
	FileName string

	// TemplatePath is a user template. Empty means the built-in template.
	TemplatePath string
}

// Path returns where the project file lives for dir.
func (p Provisioner) Path(dir string) string {
	name := p.FileName
	if name == "" {
		name = DefaultProjectFile
	}
	return filepath.Join(dir, name)
}

// Template returns the template bytes, read fresh on every call so edits to
// the user template take effect on the next provisioning.
func (p Provisioner) Template() ([]byte, error) {
	if p.TemplatePath == "" {
		return DefaultTemplate(), nil
	}
	data, err := os.ReadFile(p.TemplatePath)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", p.TemplatePath, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("template %s is not valid json", p.TemplatePath)
	}
	return data, nil
}

// Provision copies the template into dir.
//
// Description:
//
//	Does nothing when dir is empty or is not an existing directory. Otherwise
//	writes the template to the project file, replacing any existing one.
//
// Inputs:
//
//	dir - The project directory, or "" for no project.
//
// Outputs:
//
//	string - The written path, or "" when nothing was written.
//	error - Non-nil if the template could not be read or written.
func (p Provisioner) Provision(dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("stat project dir: %w", err)
	}
	if !info.IsDir() {
		return "", nil
	}

	data, err := p.Template()
	if err != nil {
		return "", err
	}

	path := p.Path(dir)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write project file: %w", err)
	}
	return path, nil
}
