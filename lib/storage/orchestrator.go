// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/spool/lib/clock"
	"github.com/bureau-foundation/spool/lib/hostinfo"
)

var (
	// ErrObjectTooLarge is returned for a record larger than
	// Performance.MaxObjectSize. The record is dropped.
	ErrObjectTooLarge = errors.New("storage: record exceeds max object size")

	// ErrDiskFull is returned while free space on the storage
	// filesystem is below Performance.MinFreeDiskSpace.
	ErrDiskFull = errors.New("storage: free disk space below minimum")
)

// DeletionReason records why a batch file left the directory.
type DeletionReason string

const (
	// DeletedIntakeCode: the intake answered with a final status.
	DeletedIntakeCode DeletionReason = "intake_code"
	// DeletedInvalid: the batch could not be decoded or sent at all.
	DeletedInvalid DeletionReason = "invalid"
	// DeletedFlushed: drained by a synchronous flush.
	DeletedFlushed DeletionReason = "flushed"
	// DeletedObsolete: older than MaxFileAgeForRead.
	DeletedObsolete DeletionReason = "obsolete"
	// DeletedPurged: evicted to bring the directory under its size cap.
	DeletedPurged DeletionReason = "purged"
)

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	// Directory holds the batch files. Created on first write.
	Directory string

	Performance Performance

	Clock  clock.Clock
	Logger *slog.Logger

	// FreeSpace reports bytes available on the filesystem holding a
	// path. Defaults to hostinfo.FreeDiskSpace.
	FreeSpace func(path string) (uint64, error)

	// OnDelete, if set, is called after every file removal with the
	// orchestrator lock held. It must not call back into the
	// orchestrator.
	OnDelete func(file *File, reason DeletionReason)
}

// Orchestrator owns one batch directory. It decides which file a
// writer appends to, which files a reader may consume, and when files
// are removed. All methods are safe for concurrent use.
type Orchestrator struct {
	directory   string
	performance Performance
	clock       clock.Clock
	logger      *slog.Logger
	freeSpace   func(string) (uint64, error)
	onDelete    func(*File, DeletionReason)

	mu sync.Mutex
	// current is the batch writers append to. It stays current only
	// while it is inside every write threshold.
	current        *File
	currentObjects int
	lastMillis     int64
	ignoreFileAge  bool
}

// NewOrchestrator validates the configuration and returns an
// Orchestrator. The directory is not touched until the first write.
func NewOrchestrator(config OrchestratorConfig) (*Orchestrator, error) {
	if config.Directory == "" {
		return nil, errors.New("storage: directory is required")
	}
	if config.Clock == nil {
		return nil, errors.New("storage: clock is required")
	}
	if config.Logger == nil {
		return nil, errors.New("storage: logger is required")
	}
	if err := config.Performance.Validate(); err != nil {
		return nil, fmt.Errorf("storage: invalid performance: %w", err)
	}
	freeSpace := config.FreeSpace
	if freeSpace == nil {
		freeSpace = hostinfo.FreeDiskSpace
	}
	return &Orchestrator{
		directory:   config.Directory,
		performance: config.Performance,
		clock:       config.Clock,
		logger:      config.Logger,
		freeSpace:   freeSpace,
		onDelete:    config.OnDelete,
	}, nil
}

// Directory returns the batch directory.
func (o *Orchestrator) Directory() string { return o.directory }

// Performance returns the thresholds this orchestrator enforces.
func (o *Orchestrator) Performance() Performance { return o.performance }

// Append writes record to the current batch when it still has room
// and is young enough, or to a freshly created one otherwise. With
// newBatch set the record always starts a new batch. Selecting the
// batch and writing to it happen under the orchestrator lock, so
// ReadableFiles and Delete never see a batch with an append in
// progress. A failed append seals the batch: whatever partial record
// it left is the batch's torn tail, and nothing goes after it.
func (o *Orchestrator) Append(record []byte, newBatch bool) (*File, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	file, err := o.writableLocked(int64(len(record)), newBatch)
	if err != nil {
		return nil, err
	}
	if err := file.Append(record); err != nil {
		o.current = nil
		o.currentObjects = 0
		return nil, err
	}
	return file, nil
}

func (o *Orchestrator) writableLocked(writeSize int64, newBatch bool) (*File, error) {
	if err := o.admitLocked(writeSize); err != nil {
		return nil, err
	}
	if !newBatch && o.current != nil && o.acceptsLocked(writeSize) {
		o.currentObjects++
		return o.current, nil
	}
	return o.createLocked()
}

// SealCurrent stops appending to the current batch. The next write
// creates a new one, and the sealed batch becomes readable once it
// passes the read settle age (immediately while file age is ignored).
func (o *Orchestrator) SealCurrent() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = nil
	o.currentObjects = 0
}

// SetIgnoreFileAge disables the MinFileAgeForRead check in
// ReadableFiles. Flushing turns it on so that sealed batches are
// uploaded without waiting for them to settle.
func (o *Orchestrator) SetIgnoreFileAge(ignore bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ignoreFileAge = ignore
}

// ReadableFiles returns the batches a reader may consume, oldest
// first. A batch that still accepts appends is never included. Files past
// MaxFileAgeForRead are deleted as obsolete along the way.
func (o *Orchestrator) ReadableFiles() ([]*File, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	files, err := o.listLocked()
	if err != nil {
		return nil, err
	}

	now := o.clock.Now()
	var readable []*File
	for _, file := range files {
		age := now.Sub(file.created)
		if age > o.performance.MaxFileAgeForRead {
			if err := o.deleteLocked(file, DeletedObsolete); err != nil {
				o.logger.Warn("removing obsolete batch failed",
					"directory", o.directory,
					"batch", file.name,
					"error", err,
				)
			}
			continue
		}
		if o.isOpenLocked(file, age) {
			continue
		}
		if !o.ignoreFileAge && age < o.performance.MinFileAgeForRead {
			continue
		}
		readable = append(readable, file)
	}
	return readable, nil
}

// Files lists every batch in the directory, oldest first, without
// applying any eligibility rule.
func (o *Orchestrator) Files() ([]*File, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.listLocked()
}

// Delete removes a batch. Deleting a file that is already gone is not
// an error and does not fire OnDelete.
func (o *Orchestrator) Delete(file *File, reason DeletionReason) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deleteLocked(file, reason)
}

func (o *Orchestrator) deleteLocked(file *File, reason DeletionReason) error {
	if err := os.Remove(file.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing batch %s: %w", file.name, err)
	}
	if o.current != nil && o.current.name == file.name {
		o.current = nil
		o.currentObjects = 0
	}
	o.logger.Debug("batch deleted",
		"directory", o.directory,
		"batch", file.name,
		"reason", string(reason),
	)
	if o.onDelete != nil {
		o.onDelete(file, reason)
	}
	return nil
}

// admitLocked rejects writes that can never succeed or that would fill
// the disk, and makes sure the directory exists.
func (o *Orchestrator) admitLocked(writeSize int64) error {
	if writeSize > o.performance.MaxObjectSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrObjectTooLarge, writeSize, o.performance.MaxObjectSize)
	}
	if err := os.MkdirAll(o.directory, 0o700); err != nil {
		return fmt.Errorf("creating batch directory: %w", err)
	}
	if o.performance.MinFreeDiskSpace > 0 {
		free, err := o.freeSpace(o.directory)
		if err != nil {
			return fmt.Errorf("checking free disk space: %w", err)
		}
		if free < uint64(o.performance.MinFreeDiskSpace) {
			return fmt.Errorf("%w: %d bytes available, need %d", ErrDiskFull, free, o.performance.MinFreeDiskSpace)
		}
	}
	return nil
}

// acceptsLocked reports whether the current batch can take another
// record of writeSize bytes.
func (o *Orchestrator) acceptsLocked(writeSize int64) bool {
	if o.clock.Now().Sub(o.current.created) >= o.performance.MaxFileAgeForWrite {
		return false
	}
	if o.currentObjects >= o.performance.MaxObjectsInFile {
		return false
	}
	info, err := os.Stat(o.current.path)
	if err != nil {
		// Deleted underneath us (purge, flush, or an operator).
		return false
	}
	return info.Size()+writeSize <= o.performance.MaxFileSize
}

// isOpenLocked reports whether file is the current batch and is still
// within its write age and object limits.
func (o *Orchestrator) isOpenLocked(file *File, age time.Duration) bool {
	if o.current == nil || o.current.name != file.name {
		return false
	}
	return age < o.performance.MaxFileAgeForWrite &&
		o.currentObjects < o.performance.MaxObjectsInFile
}

func (o *Orchestrator) createLocked() (*File, error) {
	o.purgeLocked()

	millis := o.clock.Now().UnixMilli()
	if millis <= o.lastMillis {
		millis = o.lastMillis + 1
	}
	for {
		file := newFile(o.directory, millis, 0)
		handle, err := os.OpenFile(file.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if errors.Is(err, fs.ErrExist) {
			// Left behind by a previous process with the same clock
			// reading. Batch names must stay unique and ordered.
			millis++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating batch %s: %w", file.name, err)
		}
		if err := handle.Close(); err != nil {
			return nil, fmt.Errorf("creating batch %s: %w", file.name, err)
		}
		o.lastMillis = millis
		o.current = file
		o.currentObjects = 1
		return file, nil
	}
}

// purgeLocked deletes the oldest batches until the directory fits
// under MaxDirectorySize.
func (o *Orchestrator) purgeLocked() {
	if o.performance.MaxDirectorySize <= 0 {
		return
	}
	files, err := o.listLocked()
	if err != nil {
		o.logger.Warn("listing batches for purge failed", "directory", o.directory, "error", err)
		return
	}
	var total int64
	for _, file := range files {
		total += file.size
	}
	for _, file := range files {
		if total <= o.performance.MaxDirectorySize {
			return
		}
		if err := o.deleteLocked(file, DeletedPurged); err != nil {
			o.logger.Warn("purging batch failed", "directory", o.directory, "batch", file.name, "error", err)
			continue
		}
		total -= file.size
	}
}

// listLocked returns every batch file in the directory sorted by
// creation time. A missing directory has no batches.
func (o *Orchestrator) listLocked() ([]*File, error) {
	entries, err := os.ReadDir(o.directory)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing batch directory: %w", err)
	}

	files := make([]*File, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		millis, ok := parseFileName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		files = append(files, newFile(o.directory, millis, info.Size()))
	}
	slices.SortFunc(files, func(a, b *File) int {
		return a.created.Compare(b.created)
	})
	return files, nil
}
