// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for Depot
// binaries.
//
// Four package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- semantic version string (set manually for releases)
//
// When the ldflags injection did not happen (plain `go build`, test
// runs), the package falls back to the VCS stamp embedded by the Go
// toolchain, and to "unknown" / "0.1.0-dev" when that is absent too.
package version
