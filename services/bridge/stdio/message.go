// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stdio

import (
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/ternbridge/services/bridge/callsite"
)

// JSONRPCVersion is stamped on every outgoing message.
const JSONRPCVersion = "2.0"

// Error codes. The first four are the JSON-RPC reserved codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeConnectionClosed answers bridge requests left pending when the
	// editor closed its end.
	CodeConnectionClosed = -32099
)

// Editor-to-bridge methods besides the command names in package commands.
const (
	MethodShutdown = "shutdown"
)

// Bridge-to-editor methods. All are notifications except MethodChoose,
// which is a request the editor must answer.
const (
	MethodShowCompletions = "showCompletions"
	MethodOpenFile        = "openFile"
	MethodSetTopLine      = "setTopLine"
	MethodSetCaret        = "setCaret"
	MethodStatus          = "status"
	MethodHint            = "hint"
	MethodAlert           = "alert"
	MethodChoose          = "choose"
)

// =============================================================================
// ENVELOPE
// =============================================================================

// Message is one line of the stream in either direction.
//
// A request has Method and ID, a notification has Method only, and a
// response has ID with either Result or Error.
type Message struct {
	// JSONRPC is the protocol version, always "2.0" when sent by the bridge.
	JSONRPC string `json:"jsonrpc,omitempty"`

	// ID correlates a request with its response. Editor ids are echoed
	// verbatim; bridge ids are UUID strings.
	ID json.RawMessage `json:"id,omitempty"`

	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

func (m *Message) isResponse() bool {
	return m.Method == "" && len(m.ID) > 0
}

func (m *Message) isNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// Error is a response error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("stdio error %d: %s", e.Code, e.Message)
}

// =============================================================================
// PARAMS
// =============================================================================

// CommandParams is the editor state sent with every command request.
type CommandParams struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`

	// Carets are (anchorCol, anchorLine, activeCol, activeLine) tuples.
	Carets [][4]int `json:"carets"`

	// Tokens is the editor's own token stream. Omit it to have the bridge
	// lex Text.
	Tokens []callsite.Token `json:"tokens,omitempty"`

	// ProjectDir is the editor's project directory. Omit it to resolve the
	// directory from Filename.
	ProjectDir string `json:"projectDir,omitempty"`
}

// normalize maps host token kinds onto the bridge's categories.
func (p *CommandParams) normalize() {
	for i := range p.Tokens {
		p.Tokens[i].Kind = callsite.ParseKind(string(p.Tokens[i].Kind))
	}
}

// CommandResult answers every command request.
type CommandResult struct {
	// Handled false tells the editor to run its own fallback.
	Handled bool `json:"handled"`
}

// CompletionsParams opens the completion list.
type CompletionsParams struct {
	Items string `json:"items"`
	Left  int    `json:"left"`
	Right int    `json:"right"`
}

// PathParams names a file.
type PathParams struct {
	Path string `json:"path"`
}

// LineParams names a line.
type LineParams struct {
	Line int `json:"line"`
}

// CaretParams places the caret.
type CaretParams struct {
	Col  int `json:"col"`
	Line int `json:"line"`
}

// TextParams carries a user-facing message.
type TextParams struct {
	Message string `json:"message"`

	// DurationMS is set for hints only.
	DurationMS int64 `json:"durationMs,omitempty"`
}

// ChooseParams asks the editor to show a menu.
type ChooseParams struct {
	Title string   `json:"title"`
	Items []string `json:"items"`
}

// ChooseResult is the editor's answer to a choose request. A nil or
// negative Index means the menu was cancelled.
type ChooseResult struct {
	Index *int `json:"index"`
}
