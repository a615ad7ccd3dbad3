// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package caret normalizes raw editor selections into line/column positions.
//
// Hosts report a caret as four integers: the anchor column and line followed
// by the active column and line, where an active column of -1 means nothing is
// selected. Every position handed to the analysis server is derived from the
// normalized Caret, never from raw buffer offsets.
package caret

import "fmt"

// NoSelection is the host's active-column sentinel for "no selection".
const NoSelection = -1

// Point is a zero-based line/column coordinate. Columns count runes.
type Point struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

// Before reports whether p sorts strictly before q in source order.
func (p Point) Before(q Point) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Col < q.Col
}

// String returns "line:col" using zero-based values.
func (p Point) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Caret is a normalized selection with the active end listed first.
//
// The anchor is the position the host reports as the caret itself; queries use
// it as their end position. The active end is where a selection stretches to,
// and equals the anchor when nothing is selected.
type Caret struct {
	ActiveCol  int
	ActiveLine int
	AnchorCol  int
	AnchorLine int
}

// Normalize builds a Caret from a raw host tuple.
//
// Description:
//
//	When activeCol is NoSelection the selection collapses onto the anchor.
//	The result lists the active pair first. Normalize never fails.
//
// Inputs:
//
//	anchorCol, anchorLine - The caret position reported by the host.
//	activeCol, activeLine - The other end of the selection, or -1 for none.
//
// Outputs:
//
//	Caret - The normalized caret.
func Normalize(anchorCol, anchorLine, activeCol, activeLine int) Caret {
	if activeCol == NoSelection {
		activeCol, activeLine = anchorCol, anchorLine
	}
	return Caret{
		ActiveCol:  activeCol,
		ActiveLine: activeLine,
		AnchorCol:  anchorCol,
		AnchorLine: anchorLine,
	}
}

// FromRaw normalizes a host tuple laid out as (anchorCol, anchorLine,
// activeCol, activeLine).
func FromRaw(raw [4]int) Caret {
	return Normalize(raw[0], raw[1], raw[2], raw[3])
}

// Raw returns the caret in host tuple order so it can be fed back into
// Normalize.
func (c Caret) Raw() [4]int {
	return [4]int{c.AnchorCol, c.AnchorLine, c.ActiveCol, c.ActiveLine}
}

// End returns the anchor, used as every query's end position.
func (c Caret) End() Point {
	return Point{Line: c.AnchorLine, Col: c.AnchorCol}
}

// Start returns the active end, used as the start position of range queries.
func (c Caret) Start() Point {
	return Point{Line: c.ActiveLine, Col: c.ActiveCol}
}

// IsPoint reports whether the caret has no selection.
func (c Caret) IsPoint() bool {
	return c.ActiveCol == c.AnchorCol && c.ActiveLine == c.AnchorLine
}

// Span returns a caret covering [start, end) so a token span can be queried
// the same way a selection is.
func Span(start, end Point) Caret {
	return Caret{
		ActiveCol:  start.Col,
		ActiveLine: start.Line,
		AnchorCol:  end.Col,
		AnchorLine: end.Line,
	}
}
