// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for spool binaries and
// the SDK version sent to the intake.
//
// [GitCommit], [GitDirty], [BuildTime] and [Version] are injected with
// -ldflags -X. When the commit is not injected, [Commit] falls back to
// the VCS revision recorded by the Go toolchain.
//
//   - [Info]: "0.1.0-dev (abc1234, 2026-02-10T...)" for --version
//   - [Full]: Info plus Go version and platform
//   - [Short]: the version number, also used as the SDK version
//   - [UserAgent]: the User-Agent header for intake requests
package version
