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
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/AleutianAI/ternbridge/services/bridge/commands"
)

// requestHost is the commands.Host for one editor request. Reads come from
// the request params; every effect is sent back to the editor as a
// notification.
type requestHost struct {
	*commands.Buffer

	ctx        context.Context
	server     *Server
	projectDir string
	hasProject bool
}

var _ commands.Host = (*requestHost)(nil)

func (h *requestHost) ProjectDir() (string, bool) {
	return h.projectDir, h.hasProject
}

func (h *requestHost) OpenFile(path string) error {
	return h.server.Notify(MethodOpenFile, PathParams{Path: path})
}

func (h *requestHost) SetTopLine(line int) {
	h.emit(MethodSetTopLine, LineParams{Line: line})
}

func (h *requestHost) SetCaret(col, line int) {
	h.emit(MethodSetCaret, CaretParams{Col: col, Line: line})
}

func (h *requestHost) ShowCompletions(items string, left, right int) {
	h.emit(MethodShowCompletions, CompletionsParams{Items: items, Left: left, Right: right})
}

func (h *requestHost) Status(msg string) {
	h.emit(MethodStatus, TextParams{Message: msg})
}

func (h *requestHost) Hint(msg string, d time.Duration) {
	h.emit(MethodHint, TextParams{Message: msg, DurationMS: d.Milliseconds()})
}

func (h *requestHost) Alert(msg string) {
	h.emit(MethodAlert, TextParams{Message: msg})
}

// Choose asks the editor for a pick and waits for its answer. A failed or
// abandoned request counts as a cancel.
func (h *requestHost) Choose(title string, items []string) (int, bool) {
	reply, err := h.server.call(h.ctx, MethodChoose, ChooseParams{Title: title, Items: items})
	if err != nil {
		h.server.logger.Debug("Choose abandoned", slog.String("error", err.Error()))
		return -1, false
	}
	if reply.Error != nil {
		h.server.logger.Debug("Choose refused", slog.String("error", reply.Error.Error()))
		return -1, false
	}

	var res ChooseResult
	if err := json.Unmarshal(reply.Result, &res); err != nil {
		h.server.logger.Warn("Malformed choose reply", slog.String("error", err.Error()))
		return -1, false
	}
	if res.Index == nil || *res.Index < 0 {
		return -1, false
	}
	return *res.Index, true
}

// emit sends a notification, logging a failed write.
func (h *requestHost) emit(method string, params interface{}) {
	if err := h.server.Notify(method, params); err != nil {
		h.server.logger.Warn("Failed to notify editor",
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
	}
}
