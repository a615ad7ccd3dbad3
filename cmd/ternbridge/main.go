// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command ternbridge connects editors to the Tern JavaScript analysis server.
//
// Usage:
//
//	# Long-lived editor bridge over NDJSON on stdin/stdout
//	ternbridge serve --status-addr 127.0.0.1:9464
//
//	# One-shot queries from a terminal (1-based line and column)
//	ternbridge complete --file src/app.js --line 12 --col 8
//	ternbridge definition --file src/app.js --line 12 --col 8
//	ternbridge calltip --file src/app.js --line 12 --col 14
//	ternbridge refs --file src/app.js --line 3 --col 7
//	ternbridge doc --file src/app.js --line 3 --col 7
//
//	# Configuration
//	ternbridge config init
//	ternbridge config print
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
