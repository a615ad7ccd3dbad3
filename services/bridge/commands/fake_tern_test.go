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
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ternbridge/services/bridge/caret"
	"github.com/AleutianAI/ternbridge/services/bridge/tern"
)

const fakeTernEnv = "TERNBRIDGE_FAKE_TERN"

func TestMain(m *testing.M) {
	if os.Getenv(fakeTernEnv) == "serve" {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			os.Exit(3)
		}
		fmt.Printf("Listening on port %d\n", ln.Addr().(*net.TCPAddr).Port)
		_ = http.Serve(ln, http.HandlerFunc(fakeTernHandler))
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// spanText returns the runes of the buffer between start and end on one line.
func spanText(text string, start, end tern.Position) string {
	lines := strings.Split(text, "\n")
	if end.Line >= len(lines) {
		return ""
	}
	line := []rune(lines[end.Line])
	from, to := start.Ch, end.Ch
	if start.Line != end.Line {
		from = 0
	}
	if from < 0 || to > len(line) || from > to {
		return ""
	}
	return string(line[from:to])
}

// wordAround returns the word touching ch on line.
func wordAround(text string, pos tern.Position) string {
	lines := strings.Split(text, "\n")
	if pos.Line >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	left, right := caret.WordBoundaries(line, pos.Ch)
	runes := []rune(line)
	return string(runes[pos.Ch-left : pos.Ch+right])
}

// fakeTernHandler answers like tern for a tiny imaginary project:
// lib/util.js defines add(a, b) on line 2.
func fakeTernHandler(w http.ResponseWriter, r *http.Request) {
	var req tern.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Files) == 0 {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if filepath.Base(req.Query.File) == "fail.js" {
		http.Error(w, "No type found at the given position.", http.StatusBadRequest)
		return
	}

	text := req.Files[0].Text
	end := req.Query.End
	out := map[string]interface{}{}

	switch req.Query.Type {
	case tern.QueryCompletions:
		left, _ := caret.WordBoundaries(strings.Split(text, "\n")[end.Line], end.Ch)
		start := tern.Position{Line: end.Line, Ch: end.Ch - left}
		line := []rune(strings.Split(text, "\n")[end.Line])
		out["start"] = start
		out["end"] = end
		out["isProperty"] = start.Ch > 0 && line[start.Ch-1] == '.'
		out["completions"] = []interface{}{
			map[string]string{"name": "alpha", "type": "number", "doc": "First\nletter."},
			"alpine",
		}

	case tern.QueryDefinition:
		if wordAround(text, end) == "external" {
			out["url"] = "https://developer.mozilla.org/external"
			break
		}
		out["file"] = "lib/util.js"
		out["start"] = tern.Position{Line: 2, Ch: 4}
		out["end"] = tern.Position{Line: 2, Ch: 7}

	case tern.QueryTypeOf:
		name := spanText(text, *req.Query.Start, end)
		switch name {
		case "anon":
			out["type"] = "fn(x: string)"
		case "total":
			out["name"] = name
			out["type"] = "number"
		default:
			out["name"] = name
			out["type"] = "fn(a: number, b: number) -> void"
		}

	case tern.QueryRefs:
		out["name"] = wordAround(text, end)
		out["refs"] = []tern.Reference{
			{File: "a.js", Start: tern.Position{Line: 0, Ch: 4}, End: tern.Position{Line: 0, Ch: 9}},
			{File: "lib/util.js", Start: tern.Position{Line: 7, Ch: 2}, End: tern.Position{Line: 7, Ch: 7}},
		}

	case tern.QueryDocumentation:
		if wordAround(text, end) == "nodoc" {
			break
		}
		out["doc"] = "Adds two numbers."
		out["url"] = "https://example.com/add"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// fakeSessionConfig launches this test binary as tern.
func fakeSessionConfig(t *testing.T) tern.SessionConfig {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)

	cfg := tern.DefaultSessionConfig()
	cfg.Command = exe
	cfg.Args = nil
	cfg.Env = []string{fakeTernEnv + "=serve"}
	cfg.StartupTimeout = 5 * time.Second
	cfg.RequestTimeout = 3 * time.Second
	cfg.StopTimeout = 2 * time.Second
	cfg.RestartDelay = 10 * time.Millisecond
	return cfg
}
