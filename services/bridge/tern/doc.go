// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tern manages a Tern.js analysis server and speaks its JSON protocol.
//
// Tern scopes its whole-project index to the working directory it was started
// in, so the Session restarts the server whenever the caller's project
// directory changes. Every query carries the live buffer as a "full" file so
// Tern never analyzes stale disk contents.
//
// # Components
//
//   - Session: owns the server process, the port handshake and the project
//     config file, and performs one blocking HTTP exchange per query.
//   - Request builders: one per query kind, sharing the files/query envelope.
//   - Operations: typed query helpers with tracing and metrics.
//
// # Thread Safety
//
// A Session is driven by a single control goroutine. Snapshot is the only
// method safe to call from other goroutines.
//
// # Example
//
//	sess := tern.NewSession(tern.DefaultSessionConfig(), tern.WithNotifier(ui))
//	defer sess.Stop(context.Background())
//
//	ops := tern.NewOperations(sess)
//	res, err := ops.Completions(ctx, "/proj", doc, c)
package tern
