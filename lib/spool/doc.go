// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package spool wires storage and upload together for a host process.
//
// A [Core] owns one root directory. Each registered feature gets a
// subdirectory with its own orchestrator, an asynchronous writer for
// producers, a reader, and an upload worker with its own adaptive
// delay. Producers only ever see a [storage.Writer]; an unknown
// feature name yields a writer that discards events, so instrumented
// code never has to check whether its feature is enabled.
//
// [Core.Flush] is for teardown and tests: it persists every queued
// event and uploads every batch on disk regardless of age.
// [Core.Stop] cancels the workers and closes the writers.
package spool
