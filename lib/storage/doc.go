// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage persists telemetry events as batch files on local
// disk until they are uploaded.
//
// Each feature owns one directory managed by an [Orchestrator]. Files
// are named by their creation time in Unix milliseconds, so directory
// order is write order. A file accepts appends while it is younger
// than MaxFileAgeForWrite and under its size and object limits, then
// becomes readable once it is older than MinFileAgeForRead. Files
// older than MaxFileAgeForRead are deleted unread, and the oldest
// files are purged when the directory outgrows MaxDirectorySize.
//
// [FileWriter] appends on the calling goroutine; [AsyncWriter] puts a
// bounded queue in front of it. [FileReader] returns the oldest
// readable file as a [Batch] until the uploader deletes it.
//
// The on-disk format is a sequence of type-length-value blocks (see
// [Decode]). Readers skip block types they do not know, drop blocks
// that fail to decrypt, and ignore a torn trailing record.
package storage
