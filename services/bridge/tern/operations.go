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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/ternbridge/services/bridge/caret"
)

// =============================================================================
// OPERATIONS
// =============================================================================

// Operations provides typed tern queries on top of a Session.
//
// Description:
//
//	Builds the request for each query kind, sends it through the session
//	(which starts or re-targets the server as needed) and decodes the answer.
//	Every call is traced and recorded in metrics.
//
// Thread Safety:
//
//	Same as the underlying Session.
type Operations struct {
	session *Session
}

// NewOperations creates an Operations instance.
func NewOperations(session *Session) *Operations {
	return &Operations{session: session}
}

// Session returns the underlying session.
func (o *Operations) Session() *Session {
	return o.session
}

const (
	outcomeOK          = "ok"
	outcomeTimeout     = "timeout"
	outcomeConnection  = "connection"
	outcomeServerError = "server_error"
	outcomeNotRunning  = "not_running"
	outcomeThrottled   = "throttled"
	outcomeInvalid     = "invalid_response"
	outcomeError       = "error"
)

// outcomeOf classifies an error for metrics.
func outcomeOf(err error) string {
	var serverErr *ServerError
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, ErrRequestTimeout):
		return outcomeTimeout
	case errors.Is(err, ErrConnection):
		return outcomeConnection
	case errors.As(err, &serverErr):
		return outcomeServerError
	case errors.Is(err, ErrSpawnThrottled):
		return outcomeThrottled
	case errors.Is(err, ErrNotRunning):
		return outcomeNotRunning
	case errors.Is(err, ErrInvalidResponse):
		return outcomeInvalid
	default:
		return outcomeError
	}
}

// run sends req through the session and decodes the answer into out.
func (o *Operations) run(ctx context.Context, dir string, req Request, out interface{}, count func() int) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}

	ctx, span := startQuerySpan(ctx, req.Query.Type, req.Query.File)
	defer span.End()
	start := time.Now()

	raw, err := o.session.Request(ctx, dir, req)
	if err == nil {
		err = decodeResult(raw, out)
	}

	n := 0
	if err == nil {
		n = count()
		span.SetStatus(codes.Ok, "")
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	setQuerySpanResult(span, n, err == nil)
	recordQueryMetrics(ctx, req.Query.Type, time.Since(start), n, outcomeOf(err))

	if err != nil {
		slog.Debug("Tern query failed",
			slog.String("query", string(req.Query.Type)),
			slog.String("file", req.Query.File),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%s query: %w", req.Query.Type, err)
	}
	return nil
}

func (o *Operations) timeout() time.Duration {
	return o.session.Config().RequestTimeout
}

// Completions returns completions at the caret.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	dir - The caller's project directory.
//	doc - The live buffer.
//	c - The normalized caret; its end position is queried.
//
// Outputs:
//
//	*CompletionsResult - The completions with the replaced word's range.
//	error - Non-nil means no result.
func (o *Operations) Completions(ctx context.Context, dir string, doc Document, c caret.Caret) (*CompletionsResult, error) {
	var res CompletionsResult
	req := NewCompletionsRequest(doc, c, o.timeout())
	if err := o.run(ctx, dir, req, &res, func() int { return len(res.Completions) }); err != nil {
		return nil, err
	}
	return &res, nil
}

// Definition returns where the expression under the caret is defined.
func (o *Operations) Definition(ctx context.Context, dir string, doc Document, c caret.Caret) (*DefinitionResult, error) {
	var res DefinitionResult
	req := NewDefinitionRequest(doc, c, o.timeout())
	count := func() int {
		if res.HasLocation() {
			return 1
		}
		return 0
	}
	if err := o.run(ctx, dir, req, &res, count); err != nil {
		return nil, err
	}
	return &res, nil
}

// Type returns the type of the expression spanned by span, preferring the
// function type. Call tips pass the call target's identifier span.
func (o *Operations) Type(ctx context.Context, dir string, doc Document, span caret.Caret) (*TypeResult, error) {
	var res TypeResult
	req := NewTypeRequest(doc, span, o.timeout())
	count := func() int {
		if res.Type != "" {
			return 1
		}
		return 0
	}
	if err := o.run(ctx, dir, req, &res, count); err != nil {
		return nil, err
	}
	return &res, nil
}

// References returns every reference to the variable or property under the caret.
func (o *Operations) References(ctx context.Context, dir string, doc Document, c caret.Caret) (*RefsResult, error) {
	var res RefsResult
	req := NewRefsRequest(doc, c, o.timeout())
	if err := o.run(ctx, dir, req, &res, func() int { return len(res.Refs) }); err != nil {
		return nil, err
	}
	return &res, nil
}

// Documentation returns the docstring of the expression under the caret.
func (o *Operations) Documentation(ctx context.Context, dir string, doc Document, c caret.Caret) (*DocumentationResult, error) {
	var res DocumentationResult
	req := NewDocumentationRequest(doc, c, o.timeout())
	count := func() int {
		if res.Empty() {
			return 0
		}
		return 1
	}
	if err := o.run(ctx, dir, req, &res, count); err != nil {
		return nil, err
	}
	return &res, nil
}
