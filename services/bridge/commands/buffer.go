// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package commands

import (
	"context"
	"strings"
	"sync"

	"github.com/AleutianAI/ternbridge/services/bridge/callsite"
	"github.com/AleutianAI/ternbridge/services/bridge/lexer"
)

// Buffer implements the read side of Editor over a text snapshot.
//
// Hosts that receive the whole buffer (the stdio adapter, the terminal host)
// embed a Buffer and add the view and UI methods. When the host supplies no
// tokens, Tokens lexes the text once with the tree-sitter lexer.
//
// Thread Safety: Safe for concurrent use after construction.
type Buffer struct {
	Name      string
	Content   string
	CaretList [][4]int

	// TokenList is the host's own token stream. Nil enables the lexer.
	TokenList []callsite.Token

	// Lexer tokenizes Content when TokenList is nil. Nil uses lexer.New(0).
	Lexer *lexer.Lexer

	linesOnce sync.Once
	lines     []string

	lexOnce sync.Once
	lexed   []callsite.Token
	lexErr  error
}

// Filename implements Editor.
func (b *Buffer) Filename() string {
	return b.Name
}

// Text implements Editor.
func (b *Buffer) Text() string {
	return b.Content
}

// Carets implements Editor.
func (b *Buffer) Carets() [][4]int {
	return b.CaretList
}

// LineText implements Editor. Line terminators, including "\r\n", are dropped.
func (b *Buffer) LineText(line int) string {
	b.linesOnce.Do(func() {
		b.lines = strings.Split(b.Content, "\n")
	})
	if line < 0 || line >= len(b.lines) {
		return ""
	}
	return strings.TrimSuffix(b.lines[line], "\r")
}

// Tokens implements Editor.
func (b *Buffer) Tokens(ctx context.Context, first, last int) ([]callsite.Token, error) {
	if b.TokenList != nil {
		return lexer.Window(b.TokenList, first, last), nil
	}
	b.lexOnce.Do(func() {
		lx := b.Lexer
		if lx == nil {
			lx = lexer.New(0)
		}
		b.lexed, b.lexErr = lx.Tokenize(ctx, []byte(b.Content))
	})
	if b.lexErr != nil {
		return nil, b.lexErr
	}
	return lexer.Window(b.lexed, first, last), nil
}
