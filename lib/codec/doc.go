// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds spool's CBOR configuration.
//
// Spool draws the serialization boundary the same way everywhere:
//
//   - JSON for anything that leaves the device: event payloads are
//     stored as the JSON the intake expects, so a batch can be sent
//     without re-encoding.
//   - CBOR for device-internal data: the per-event metadata block in a
//     batch file (timestamps, sampling decisions, session identifiers)
//     that the uploader consults but never transmits.
//
// Struct types used only as metadata carry `cbor` tags. Types that are
// also printed as JSON by the inspect command carry `json` tags, which
// fxamacker/cbor reads as a fallback. Never put both on one field.
package codec
