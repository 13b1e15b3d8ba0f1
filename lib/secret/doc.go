// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret keeps spool's key material off the Go heap.
//
// The intake client token and the at-rest encryption keys are loaded
// with [ReadFile] or [ReadHexFile] into a [Buffer]: an anonymous mmap
// region that is mlock'd, excluded from core dumps with MADV_DONTDUMP,
// and zeroed on Close.
//
// Depends on golang.org/x/sys/unix. No spool-internal dependencies.
package secret
