// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package callsite finds the function call enclosing a caret in a token stream.
//
// The resolver never parses JavaScript. It walks lexical tokens backward from
// the caret counting parentheses, and the identifier reached at depth zero is
// taken as the call target. Any "(" or ")" symbol counts, whatever syntax
// surrounds it.
package callsite

import (
	"strings"

	"github.com/AleutianAI/ternbridge/services/bridge/caret"
)

// =============================================================================
// TOKENS
// =============================================================================

// Kind is a lexical token category. Only symbols and identifiers are examined.
type Kind string

const (
	// KindSymbol is punctuation such as "(", ")" and ",".
	KindSymbol Kind = "symbol"

	// KindIdentifier is a variable, function or property name.
	KindIdentifier Kind = "identifier"

	// KindOther is everything else: keywords, literals, comments.
	KindOther Kind = "other"
)

// ParseKind maps a host lexer category onto a Kind. Matching is case
// insensitive; unknown names become KindOther.
func ParseKind(name string) Kind {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "symbol", "punctuation", "operator":
		return KindSymbol
	case "identifier", "id", "property", "property_identifier":
		return KindIdentifier
	default:
		return KindOther
	}
}

// Token is one lexical unit in source order. End is exclusive.
type Token struct {
	Start caret.Point `json:"start"`
	End   caret.Point `json:"end"`
	Text  string      `json:"text"`
	Kind  Kind        `json:"kind"`
}

// Span returns the token's extent as a caret suitable for a range query.
func (t Token) Span() caret.Caret {
	return caret.Span(t.Start, t.End)
}

// encloses reports whether at lies inside the token on the token's own line,
// excluding the start column and including the end column.
func (t Token) encloses(at caret.Point) bool {
	return t.Start.Line == at.Line &&
		t.End.Line == at.Line &&
		t.Start.Col < at.Col &&
		at.Col <= t.End.Col
}

// startsAtOrAfter reports whether the token begins at or past at.
func (t Token) startsAtOrAfter(at caret.Point) bool {
	return !t.Start.Before(at)
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolve finds the identifier naming the call whose argument list contains at.
//
// Description:
//
//	Collects tokens in source order, stopping before the first token that
//	starts at or after the caret, or right after a token that encloses the
//	caret. The collected tokens are then replayed in reverse with a depth
//	counter starting at 1: "(" decrements it, ")" increments it, and the
//	first identifier seen at depth 0 is the call target.
//
// Inputs:
//
//	tokens - Tokens in source order, normally the caret's line plus a few
//	         lines before it.
//	at - The caret.
//
// Outputs:
//
//	Token - The call target identifier.
//	bool - False when the caret precedes every token or is not inside a
//	       recognizable call.
//
// Example:
//
//	// foo(1, |)
//	target, ok := Resolve(tokens, caret.Point{Line: 0, Col: 7})
//	// target.Text == "foo", ok == true
func Resolve(tokens []Token, at caret.Point) (Token, bool) {
	n := collect(tokens, at)
	if n == 0 {
		return Token{}, false
	}

	depth := 1
	for i := n - 1; i >= 0; i-- {
		tok := tokens[i]
		switch tok.Kind {
		case KindSymbol:
			switch tok.Text {
			case "(":
				depth--
			case ")":
				depth++
			}
		case KindIdentifier:
			if depth == 0 {
				return tok, true
			}
		}
	}
	return Token{}, false
}

// collect returns how many leading tokens take part in the reverse walk.
func collect(tokens []Token, at caret.Point) int {
	for i, tok := range tokens {
		if tok.startsAtOrAfter(at) {
			return i
		}
		if tok.encloses(at) {
			return i + 1
		}
	}
	return len(tokens)
}

// LabelSignature names an anonymous function signature.
//
// A type of the form "fn(a: number) -> string" becomes
// "name(a: number) -> string". Other types and an empty name are returned
// unchanged.
func LabelSignature(name, typ string) string {
	const prefix = "fn("
	if name == "" || !strings.HasPrefix(typ, prefix) {
		return typ
	}
	return name + typ[len(prefix)-1:]
}
