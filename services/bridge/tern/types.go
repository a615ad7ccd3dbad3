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
	"bytes"
	"encoding/json"
	"fmt"
)

// =============================================================================
// COMPLETIONS
// =============================================================================

// Completion is one completion candidate.
//
// Missing fields decode as empty strings. Tern sends bare strings instead of
// objects when types and docs were not requested; both shapes decode here.
type Completion struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Doc    string `json:"doc"`
	URL    string `json:"url"`
	Origin string `json:"origin"`
}

// UnmarshalJSON accepts either a completion object or a bare name.
func (c *Completion) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*c = Completion{Name: name}
		return nil
	}

	type plain Completion
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("completion: %w", err)
	}
	*c = Completion(p)
	return nil
}

// CompletionsResult is the answer to a completions query.
type CompletionsResult struct {
	// Start and End delimit the word the completions replace.
	Start Position `json:"start"`
	End   Position `json:"end"`

	// IsProperty is true when completing after a dot.
	IsProperty  bool `json:"isProperty"`
	IsObjectKey bool `json:"isObjectKey"`

	Completions []Completion `json:"completions"`
}

// =============================================================================
// DEFINITION
// =============================================================================

// DefinitionResult is the answer to a definition query.
//
// File is relative to the server's project directory. It is empty when the
// definition has no source location (for example a builtin with only a URL).
type DefinitionResult struct {
	File   string   `json:"file"`
	Start  Position `json:"start"`
	End    Position `json:"end"`
	Doc    string   `json:"doc"`
	URL    string   `json:"url"`
	Origin string   `json:"origin"`
}

// HasLocation reports whether the definition points into a file.
func (d *DefinitionResult) HasLocation() bool {
	return d != nil && d.File != ""
}

// =============================================================================
// TYPE
// =============================================================================

// TypeResult is the answer to a type query.
type TypeResult struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	ExprName string `json:"exprName"`
	Guess    bool   `json:"guess"`
	Doc      string `json:"doc"`
	URL      string `json:"url"`
	Origin   string `json:"origin"`
}

// =============================================================================
// REFERENCES
// =============================================================================

// Reference is one use of a variable or property.
type Reference struct {
	File  string   `json:"file"`
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// RefsResult is the answer to a refs query.
type RefsResult struct {
	Name string      `json:"name"`
	Refs []Reference `json:"refs"`
}

// =============================================================================
// DOCUMENTATION
// =============================================================================

// DocumentationResult is the answer to a documentation query.
type DocumentationResult struct {
	Doc    string `json:"doc"`
	URL    string `json:"url"`
	Origin string `json:"origin"`
}

// Empty reports whether the server had nothing to say.
func (d *DocumentationResult) Empty() bool {
	return d == nil || (d.Doc == "" && d.URL == "")
}

// decodeResult unmarshals a raw response into v.
func decodeResult(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%w: empty body", ErrInvalidResponse)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}
