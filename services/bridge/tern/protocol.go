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
	"time"

	"github.com/AleutianAI/ternbridge/services/bridge/caret"
)

// =============================================================================
// QUERY KINDS
// =============================================================================

// QueryType names a Tern query.
type QueryType string

const (
	// QueryCompletions asks for completions at the end position.
	QueryCompletions QueryType = "completions"

	// QueryDefinition asks where the expression at the position is defined.
	QueryDefinition QueryType = "definition"

	// QueryTypeOf asks for the type of the expression, used for call tips.
	QueryTypeOf QueryType = "type"

	// QueryRefs asks for all references to the variable or property.
	QueryRefs QueryType = "refs"

	// QueryDocumentation asks for the docstring attached to the expression.
	QueryDocumentation QueryType = "documentation"
)

// FileTypeFull marks a file payload that carries the whole buffer.
const FileTypeFull = "full"

// =============================================================================
// WIRE TYPES
// =============================================================================

// Position is a Tern line/character position. Both fields are zero-based.
type Position struct {
	Line int `json:"line"`
	Ch   int `json:"ch"`
}

// PositionOf converts a caret point into a Tern position.
func PositionOf(p caret.Point) Position {
	return Position{Line: p.Line, Ch: p.Col}
}

// Point converts the position back into a caret point.
func (p Position) Point() caret.Point {
	return caret.Point{Line: p.Line, Col: p.Ch}
}

// File is a file payload sent alongside a query.
type File struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// Query is the query body of a request.
//
// ExpandWordForward is a pointer so completions can send an explicit false.
type Query struct {
	Type              QueryType `json:"type"`
	File              string    `json:"file"`
	End               Position  `json:"end"`
	Start             *Position `json:"start,omitempty"`
	LineCharPositions bool      `json:"lineCharPositions"`

	Types             bool  `json:"types,omitempty"`
	Docs              bool  `json:"docs,omitempty"`
	ExpandWordForward *bool `json:"expandWordForward,omitempty"`
	PreferFunction    bool  `json:"preferFunction,omitempty"`
}

// Request is the envelope POSTed to the server.
type Request struct {
	Query   Query  `json:"query"`
	Files   []File `json:"files"`
	Timeout int64  `json:"timeout,omitempty"`
}

// Document is the buffer a query runs against.
type Document struct {
	// Filename is sent as both the file payload name and the query file.
	Filename string

	// Text is the full, possibly unsaved buffer.
	Text string
}

// =============================================================================
// BUILDERS
// =============================================================================

// newRequest builds the shared envelope for every query kind.
func newRequest(doc Document, q Query, timeout time.Duration) Request {
	q.File = doc.Filename
	q.LineCharPositions = true
	return Request{
		Query: q,
		Files: []File{{
			Type: FileTypeFull,
			Name: doc.Filename,
			Text: doc.Text,
		}},
		Timeout: timeout.Milliseconds(),
	}
}

func startOf(c caret.Caret) *Position {
	p := PositionOf(c.Start())
	return &p
}

// NewCompletionsRequest builds a completions query at the caret.
//
// Description:
//
//	Requests types and docs with every completion. expandWordForward is
//	always sent as false so a caret in the middle of an identifier only
//	completes the prefix typed before it.
func NewCompletionsRequest(doc Document, c caret.Caret, timeout time.Duration) Request {
	expand := false
	return newRequest(doc, Query{
		Type:              QueryCompletions,
		End:               PositionOf(c.End()),
		Types:             true,
		Docs:              true,
		ExpandWordForward: &expand,
	}, timeout)
}

// NewDefinitionRequest builds a definition query over the caret.
func NewDefinitionRequest(doc Document, c caret.Caret, timeout time.Duration) Request {
	return newRequest(doc, Query{
		Type:  QueryDefinition,
		End:   PositionOf(c.End()),
		Start: startOf(c),
	}, timeout)
}

// NewTypeRequest builds a type query preferring the function type, used for
// call tips. span is normally the call target's identifier.
func NewTypeRequest(doc Document, span caret.Caret, timeout time.Duration) Request {
	return newRequest(doc, Query{
		Type:           QueryTypeOf,
		End:            PositionOf(span.End()),
		Start:          startOf(span),
		PreferFunction: true,
	}, timeout)
}

// NewRefsRequest builds a references query over the caret.
func NewRefsRequest(doc Document, c caret.Caret, timeout time.Duration) Request {
	return newRequest(doc, Query{
		Type:  QueryRefs,
		End:   PositionOf(c.End()),
		Start: startOf(c),
	}, timeout)
}

// NewDocumentationRequest builds a documentation query over the caret.
func NewDocumentationRequest(doc Document, c caret.Caret, timeout time.Duration) Request {
	return newRequest(doc, Query{
		Type:  QueryDocumentation,
		End:   PositionOf(c.End()),
		Start: startOf(c),
	}, timeout)
}
