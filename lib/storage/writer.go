// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bureau-foundation/spool/lib/codec"
)

// Event is one stored telemetry record: an encoded payload plus
// optional encoded metadata that travels with it to the uploader.
type Event struct {
	Data     []byte
	Metadata []byte
}

// Writer accepts telemetry for persistence. Write never reports
// failure to the caller: an event that cannot be stored is logged and
// counted, then dropped.
type Writer interface {
	Write(value any, metadata any)
}

// EncodeEvent serializes a value and its metadata. The value becomes
// JSON (the intake's payload format) unless it is already encoded as
// []byte or json.RawMessage. Metadata becomes CBOR unless it is
// already []byte or codec.RawMessage. Nil metadata is omitted.
func EncodeEvent(value any, metadata any) (Event, error) {
	var event Event
	switch v := value.(type) {
	case []byte:
		event.Data = bytes.Clone(v)
	case json.RawMessage:
		event.Data = bytes.Clone(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return Event{}, fmt.Errorf("encoding event: %w", err)
		}
		event.Data = data
	}

	switch m := metadata.(type) {
	case nil:
	case []byte:
		event.Metadata = bytes.Clone(m)
	case codec.RawMessage:
		event.Metadata = bytes.Clone(m)
	default:
		encoded, err := codec.Marshal(m)
		if err != nil {
			return Event{}, fmt.Errorf("encoding event metadata: %w", err)
		}
		event.Metadata = encoded
	}
	return event, nil
}

// WriterConfig configures a FileWriter.
type WriterConfig struct {
	Orchestrator *Orchestrator

	// Encryption seals each block. Nil stores plaintext.
	Encryption Encryption

	// Compress stores event data as LZ4 blocks when that makes
	// them smaller.
	Compress bool

	// ForceNewFile puts every event in its own batch.
	ForceNewFile bool

	Logger *slog.Logger
}

// FileWriter appends events to the orchestrator's writable batch on
// the calling goroutine.
type FileWriter struct {
	orchestrator *Orchestrator
	encryption   Encryption
	compress     bool
	forceNewFile bool
	logger       *slog.Logger
	dropped      atomic.Uint64
}

// NewFileWriter returns a FileWriter. Panics if the orchestrator or
// logger is nil.
func NewFileWriter(config WriterConfig) *FileWriter {
	if config.Orchestrator == nil {
		panic("storage: NewFileWriter requires an orchestrator")
	}
	if config.Logger == nil {
		panic("storage: NewFileWriter requires a logger")
	}
	return &FileWriter{
		orchestrator: config.Orchestrator,
		encryption:   config.Encryption,
		compress:     config.Compress,
		forceNewFile: config.ForceNewFile,
		logger:       config.Logger,
	}
}

// Write encodes and stores one event.
func (w *FileWriter) Write(value any, metadata any) {
	event, err := EncodeEvent(value, metadata)
	if err != nil {
		w.drop(err)
		return
	}
	w.WriteEvent(event)
}

// WriteEvent stores an already encoded event. It reports whether the
// event reached disk.
func (w *FileWriter) WriteEvent(event Event) bool {
	record, err := encodeRecord(event, w.compress, w.encryption)
	if err != nil {
		w.drop(err)
		return false
	}

	if _, err := w.orchestrator.Append(record, w.forceNewFile); err != nil {
		w.drop(err)
		return false
	}
	return true
}

// Dropped returns how many events this writer failed to store.
func (w *FileWriter) Dropped() uint64 { return w.dropped.Load() }

func (w *FileWriter) drop(err error) {
	w.dropped.Add(1)
	w.logger.Warn("dropping telemetry event",
		"directory", w.orchestrator.Directory(),
		"error", err,
	)
}

// NOPWriter discards everything. Returned for features that are not
// registered so callers never need a nil check.
type NOPWriter struct{}

func (NOPWriter) Write(any, any) {}
