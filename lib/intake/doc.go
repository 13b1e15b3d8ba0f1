// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package intake builds HTTP requests for the telemetry intake.
//
// A [Builder] serves one feature: it knows the intake URL for the
// configured [Site] (or a custom endpoint) and the feature's track,
// lays events out as NDJSON or a JSON array, and optionally compresses
// the body with gzip, deflate or zstd. Every request carries the
// client token, the origin headers, a fresh request ID, and a BLAKE3
// digest of the uncompressed body that is stable across retries.
//
// Events that are not single JSON values make the whole batch
// unbuildable. The upload worker drops such batches.
package intake
