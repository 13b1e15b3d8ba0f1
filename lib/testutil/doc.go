// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for spool packages.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern. They are the only place tests wait on the wall clock; all
// other time in tests moves through clock.Fake.
//
// [Logger] routes slog output to the test log so failures show what
// the component under test reported.
//
// [ListDir] and [WriteFile] inspect and seed batch directories.
//
// All helpers call t.Fatalf on failure.
package testutil
