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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 32 << 20

// LocalHost returns the loopback host name the server is reached on.
func LocalHost() string {
	if runtime.GOOS == "windows" {
		return "127.0.0.1"
	}
	return "localhost"
}

// endpoint returns the server URL for a port.
func endpoint(port int) string {
	return "http://" + net.JoinHostPort(LocalHost(), strconv.Itoa(port)) + "/"
}

// newHTTPClient returns a client that never goes through a proxy.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:               nil,
		DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// post sends one request to the server and returns the raw JSON answer.
//
// Description:
//
//	Encodes payload as UTF-8 JSON, POSTs it to the port's endpoint and reads
//	the JSON body. The call is bounded by timeout even if ctx has no deadline.
//
// Outputs:
//
//	json.RawMessage - The response body.
//	error - ErrRequestTimeout, ErrConnection, ErrInvalidResponse or *ServerError.
func post(ctx context.Context, client *http.Client, port int, payload interface{}, timeout time.Duration) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(port), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServerError{
			Status:  resp.StatusCode,
			Message: strings.TrimSpace(string(data)),
		}
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: body is not json", ErrInvalidResponse)
	}
	return json.RawMessage(data), nil
}

// classifyTransportError maps client errors onto the package sentinels.
func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrRequestTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrRequestTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}
