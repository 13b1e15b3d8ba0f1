// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the AsyncWriter backlog used when none is given.
const DefaultQueueSize = 1024

// AsyncWriter moves disk I/O off the caller's goroutine. Events are
// encoded synchronously (so the caller may reuse its value right
// away) and persisted in submission order by a single background
// goroutine. When the backlog is full, Write drops the event rather
// than block.
type AsyncWriter struct {
	writer *FileWriter
	logger *slog.Logger
	queue  chan asyncItem
	done   chan struct{}

	// mu guards closed against concurrent sends on queue.
	mu     sync.RWMutex
	closed bool

	dropped atomic.Uint64
}

// asyncItem is either an event to persist or a flush marker.
type asyncItem struct {
	event   Event
	flushed chan struct{}
}

// NewAsyncWriter starts the background goroutine. Call Close to stop
// it. A non-positive queueSize selects DefaultQueueSize.
func NewAsyncWriter(writer *FileWriter, queueSize int, logger *slog.Logger) *AsyncWriter {
	if writer == nil {
		panic("storage: NewAsyncWriter requires a writer")
	}
	if logger == nil {
		panic("storage: NewAsyncWriter requires a logger")
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	a := &AsyncWriter{
		writer: writer,
		logger: logger,
		queue:  make(chan asyncItem, queueSize),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// Write encodes the event and queues it for persistence.
func (a *AsyncWriter) Write(value any, metadata any) {
	event, err := EncodeEvent(value, metadata)
	if err != nil {
		a.dropped.Add(1)
		a.logger.Warn("dropping telemetry event", "error", err)
		return
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.queue <- asyncItem{event: event}:
	default:
		a.dropped.Add(1)
		a.logger.Warn("telemetry write queue full, dropping event",
			"directory", a.writer.orchestrator.Directory(),
			"capacity", cap(a.queue),
		)
	}
}

// Flush blocks until every event queued before the call has been
// written. Returns immediately after Close.
func (a *AsyncWriter) Flush() {
	flushed := make(chan struct{})

	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return
	}
	// Blocking send: the marker must not be dropped. The consumer
	// keeps draining, and Close cannot take the write lock until
	// this returns.
	a.queue <- asyncItem{flushed: flushed}
	a.mu.RUnlock()

	<-flushed
}

// Close stops accepting events, writes out the backlog, and waits for
// the background goroutine to exit. Safe to call more than once.
func (a *AsyncWriter) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}

// Dropped returns the number of events lost to encoding failures, a
// full queue, writes after Close, or storage errors.
func (a *AsyncWriter) Dropped() uint64 {
	return a.dropped.Load() + a.writer.Dropped()
}

func (a *AsyncWriter) run() {
	defer close(a.done)
	for item := range a.queue {
		if item.flushed != nil {
			close(item.flushed)
			continue
		}
		a.writer.WriteEvent(item.event)
	}
}
