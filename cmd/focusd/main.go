// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command focusd runs the adaptive focus session server.
//
// # Usage
//
//	# Build
//	go build -o focusd ./cmd/focusd
//
//	# Run with defaults (in-memory storage, port 12230)
//	./focusd serve
//
//	# Run with a config file
//	./focusd serve --config /etc/aleutian/focus.yaml
//
//	# Show the effective configuration
//	./focusd config print --config /etc/aleutian/focus.yaml
//
// Environment overrides are listed in package config.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
