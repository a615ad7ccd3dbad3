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
	"errors"
	"fmt"
)

// Sentinel errors for session and query failures.
var (
	// ErrSpawnFailed indicates the server binary is missing or could not be launched.
	ErrSpawnFailed = errors.New("tern spawn failed")

	// ErrHandshakeFailed indicates the first stdout line was not a port announcement.
	ErrHandshakeFailed = errors.New("tern handshake failed")

	// ErrNotRunning indicates no server is available to answer a query.
	ErrNotRunning = errors.New("tern server not running")

	// ErrRequestTimeout indicates a query exceeded the request timeout.
	ErrRequestTimeout = errors.New("tern request timeout")

	// ErrConnection indicates the server endpoint could not be reached.
	ErrConnection = errors.New("tern connection failed")

	// ErrInvalidResponse indicates the response body was not the expected JSON.
	ErrInvalidResponse = errors.New("invalid tern response")

	// ErrSpawnThrottled indicates an automatic start was skipped by the spawn limiter.
	ErrSpawnThrottled = errors.New("tern spawn throttled")

	// ErrNoProjectDir indicates an operation needs a project directory and none was given.
	ErrNoProjectDir = errors.New("no project directory")
)

// ServerError is a query error reported by Tern.
//
// Tern answers malformed or unanswerable queries with a non-2xx status and a
// plain-text message such as "No type found at the given position.".
type ServerError struct {
	// Status is the HTTP status code.
	Status int

	// Message is the trimmed response body.
	Message string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("tern error %d: %s", e.Status, e.Message)
}

// IsNoResult reports whether err only means "nothing to show" for one query.
//
// Description:
//
//	Timeouts, connection failures, server-side query errors and a missing
//	server all degrade to an empty result in the editor. Spawn and handshake
//	failures are reported to the user separately by the Session.
func IsNoResult(err error) bool {
	if err == nil {
		return false
	}
	var serverErr *ServerError
	return errors.Is(err, ErrRequestTimeout) ||
		errors.Is(err, ErrConnection) ||
		errors.Is(err, ErrNotRunning) ||
		errors.Is(err, ErrInvalidResponse) ||
		errors.As(err, &serverErr)
}
