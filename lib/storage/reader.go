// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"errors"
	"io/fs"
	"log/slog"
)

// Batch is the decoded contents of one readable file. The ID is the
// file name and stays stable until the batch is deleted.
type Batch struct {
	ID     string
	Events []Event

	file *File
}

// ReaderConfig configures a FileReader.
type ReaderConfig struct {
	Orchestrator *Orchestrator

	// Encryption must match the writer's. Nil reads plaintext.
	Encryption Encryption

	Logger *slog.Logger
}

// FileReader hands out batches in creation order.
type FileReader struct {
	orchestrator *Orchestrator
	encryption   Encryption
	logger       *slog.Logger
}

// NewFileReader returns a FileReader. Panics if the orchestrator or
// logger is nil.
func NewFileReader(config ReaderConfig) *FileReader {
	if config.Orchestrator == nil {
		panic("storage: NewFileReader requires an orchestrator")
	}
	if config.Logger == nil {
		panic("storage: NewFileReader requires a logger")
	}
	return &FileReader{
		orchestrator: config.Orchestrator,
		encryption:   config.Encryption,
		logger:       config.Logger,
	}
}

// NextBatch returns the oldest readable batch, or nil when none is
// ready. It does not consume the batch: until Delete is called, the
// same batch is returned again. Files that decode to no events are
// deleted as invalid and skipped.
func (r *FileReader) NextBatch() *Batch {
	files, err := r.orchestrator.ReadableFiles()
	if err != nil {
		r.logger.Warn("listing readable batches failed",
			"directory", r.orchestrator.Directory(),
			"error", err,
		)
		return nil
	}

	for _, file := range files {
		data, err := file.ReadAll()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				r.logger.Warn("reading batch failed",
					"directory", r.orchestrator.Directory(),
					"batch", file.Name(),
					"error", err,
				)
			}
			continue
		}

		result := Decode(data, r.encryption)
		if result.Skipped > 0 || result.TrailingBytes > 0 {
			r.logger.Warn("batch partially unreadable",
				"directory", r.orchestrator.Directory(),
				"batch", file.Name(),
				"skipped_events", result.Skipped,
				"trailing_bytes", result.TrailingBytes,
			)
		}
		if len(result.Events) == 0 {
			r.remove(file, DeletedInvalid)
			continue
		}
		return &Batch{ID: file.Name(), Events: result.Events, file: file}
	}
	return nil
}

// Delete removes the batch from storage. Deleting a batch twice is
// harmless.
func (r *FileReader) Delete(batch *Batch, reason DeletionReason) {
	r.remove(batch.file, reason)
}

func (r *FileReader) remove(file *File, reason DeletionReason) {
	if err := r.orchestrator.Delete(file, reason); err != nil {
		r.logger.Warn("deleting batch failed",
			"directory", r.orchestrator.Directory(),
			"batch", file.Name(),
			"reason", string(reason),
			"error", err,
		)
	}
}
