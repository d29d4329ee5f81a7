// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

import "fmt"

// Version is the release identifier. It is overridden at build time via
// -ldflags "-X github.com/parexpr/parexpr.Version=v1.2.3".
var Version = "v0.0.0-devel"

// VersionInfo returns a human-readable version line.
func VersionInfo() string {
	return fmt.Sprintf("parexpr %s", Version)
}
