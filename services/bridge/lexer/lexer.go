// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lexer produces the JavaScript token stream for hosts that have no
// lexer of their own.
//
// Only the lexical leaves of the tree-sitter parse are used: the bridge needs
// token kinds and spans for the call-site resolver, nothing about program
// structure. Columns are converted from bytes to runes to match caret columns.
package lexer

import (
	"context"
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/AleutianAI/ternbridge/services/bridge/callsite"
	"github.com/AleutianAI/ternbridge/services/bridge/caret"
)

var (
	// ErrFileTooLarge indicates the source exceeds MaxFileSize.
	ErrFileTooLarge = errors.New("source too large to tokenize")

	// ErrInvalidContent indicates the source is not valid UTF-8.
	ErrInvalidContent = errors.New("source is not valid utf-8")
)

// DefaultMaxFileSize bounds the buffers the lexer accepts.
const DefaultMaxFileSize = 10 * 1024 * 1024

// identifierTypes are the leaf node types treated as identifiers.
var identifierTypes = map[string]bool{
	"identifier":                    true,
	"property_identifier":           true,
	"shorthand_property_identifier": true,
	"private_property_identifier":   true,
	"statement_identifier":          true,
}

// Lexer tokenizes JavaScript with tree-sitter.
//
// Thread Safety:
//
//	Safe for concurrent use. Each Tokenize call creates its own parser.
type Lexer struct {
	maxFileSize int
}

// New creates a Lexer. A maxFileSize of zero or less uses DefaultMaxFileSize.
func New(maxFileSize int) *Lexer {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Lexer{maxFileSize: maxFileSize}
}

// Tokenize returns every token of src in source order.
//
// Description:
//
//	Parses src and walks the tree collecting leaves. Anonymous punctuation
//	leaves become symbols, identifier leaves become identifiers, everything
//	else (keywords, literals, comments) is KindOther. Zero-width nodes
//	inserted by error recovery are skipped, so incomplete code being typed
//	still yields the tokens actually present.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	src - The buffer text.
//
// Outputs:
//
//	[]callsite.Token - Tokens with zero-based rune columns.
//	error - ErrFileTooLarge, ErrInvalidContent, or a parse failure.
func (l *Lexer) Tokenize(ctx context.Context, src []byte) ([]callsite.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("tokenize canceled: %w", err)
	}
	if len(src) > l.maxFileSize {
		return nil, ErrFileTooLarge
	}
	if !utf8.Valid(src) {
		return nil, ErrInvalidContent
	}

	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	cols := newColumnMap(src)
	tokens := make([]callsite.Token, 0, len(src)/4)
	collectLeaves(tree.RootNode(), src, cols, &tokens)
	return tokens, nil
}

// collectLeaves appends the leaves under node in source order.
func collectLeaves(node *sitter.Node, src []byte, cols *columnMap, out *[]callsite.Token) {
	if node == nil || node.IsMissing() {
		return
	}

	count := int(node.ChildCount())
	if count == 0 {
		if node.StartByte() == node.EndByte() {
			return
		}
		text := node.Content(src)
		*out = append(*out, callsite.Token{
			Start: cols.point(node.StartPoint()),
			End:   cols.point(node.EndPoint()),
			Text:  text,
			Kind:  kindOf(node, text),
		})
		return
	}

	for i := 0; i < count; i++ {
		collectLeaves(node.Child(i), src, cols, out)
	}
}

// kindOf classifies a leaf.
func kindOf(node *sitter.Node, text string) callsite.Kind {
	if identifierTypes[node.Type()] {
		return callsite.KindIdentifier
	}
	if !node.IsNamed() {
		r, _ := utf8.DecodeRuneInString(text)
		if r != utf8.RuneError && !unicode.IsLetter(r) && r != '_' && r != '$' {
			return callsite.KindSymbol
		}
	}
	return callsite.KindOther
}

// Window returns the tokens starting on lines first through last inclusive.
func Window(tokens []callsite.Token, first, last int) []callsite.Token {
	out := make([]callsite.Token, 0)
	for _, tok := range tokens {
		if tok.Start.Line >= first && tok.Start.Line <= last {
			out = append(out, tok)
		}
	}
	return out
}

// =============================================================================
// COLUMNS
// =============================================================================

// columnMap converts tree-sitter byte columns to rune columns.
type columnMap struct {
	src        []byte
	lineStarts []int
}

func newColumnMap(src []byte) *columnMap {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &columnMap{src: src, lineStarts: starts}
}

func (m *columnMap) point(p sitter.Point) caret.Point {
	row := int(p.Row)
	if row >= len(m.lineStarts) {
		return caret.Point{Line: row, Col: int(p.Column)}
	}
	start := m.lineStarts[row]
	end := start + int(p.Column)
	if end > len(m.src) {
		end = len(m.src)
	}
	return caret.Point{Line: row, Col: utf8.RuneCount(m.src[start:end])}
}
