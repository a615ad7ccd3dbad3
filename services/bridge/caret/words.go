// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package caret

import "unicode"

// IsWordRune reports whether r belongs to an identifier-like word.
func IsWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// WordBoundaries counts word runes immediately left and right of col.
//
// Description:
//
//	Scans left while the preceding rune is a word rune, then right under the
//	same rule. The counts size the replacement range of a completion. col is
//	a rune index into line and is clamped to the line.
//
// Inputs:
//
//	line - The text of the caret's line.
//	col - Rune column of the caret.
//
// Outputs:
//
//	left - Word runes before the caret.
//	right - Word runes at and after the caret.
//
// Example:
//
//	WordBoundaries("foo.bar", 6) // (2, 1): "ba" left, "r" right
func WordBoundaries(line string, col int) (left, right int) {
	runes := []rune(line)
	if col < 0 {
		col = 0
	}
	if col > len(runes) {
		col = len(runes)
	}

	x := col
	for x > 0 && IsWordRune(runes[x-1]) {
		x--
	}
	left = col - x

	x = col
	for x < len(runes) && IsWordRune(runes[x]) {
		x++
	}
	right = x - col

	return left, right
}
