// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides the at-rest encryption modes for batch
// records. Both [AEAD] and [Age] satisfy storage.Encryption: the
// writer seals every block payload before appending it, and the reader
// opens it before decoding.
//
//   - AEAD: XChaCha20-Poly1305 with a record key derived by HKDF-SHA256
//     from a 32-byte master key (hex in a key file). 41 bytes of
//     overhead per block.
//   - Age: filippo.io/age X25519, for deployments where batch files
//     copied off a device must be readable by an operator's key.
//
// Key material lives in secret.Buffer values throughout.
package sealed
