// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/bureau-foundation/spool/lib/clock"
	"github.com/bureau-foundation/spool/lib/storage"
)

// BatchReader is the storage side of the worker. *storage.FileReader
// satisfies it.
type BatchReader interface {
	NextBatch() *storage.Batch
	Delete(batch *storage.Batch, reason storage.DeletionReason)
}

// State is the worker's position in its upload cycle.
type State int32

const (
	// StateIdle: woken, deciding whether to upload.
	StateIdle State = iota
	// StateUploading: a request is in flight.
	StateUploading
	// StateSleeping: waiting for the next wake-up.
	StateSleeping
	// StateCancelled: stopped for good.
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUploading:
		return "uploading"
	case StateSleeping:
		return "sleeping"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	// Feature names the data stream in logs, telemetry and metrics.
	// Required.
	Feature string

	// Reader, Uploader and Delay are required.
	Reader   BatchReader
	Uploader Uploader
	Delay    *Delay

	// Admission defaults to Conditions{MinBatteryLevel: DefaultMinBatteryLevel}.
	Admission Admission

	// ContextProvider defaults to an empty snapshot.
	ContextProvider ContextProvider

	// BackgroundTasks defaults to NOPBackgroundTaskCoordinator.
	BackgroundTasks BackgroundTaskCoordinator

	// Telemetry defaults to NOPTelemetry.
	Telemetry Telemetry

	// Metrics may be nil.
	Metrics *Metrics

	// Tracer defaults to a no-op tracer.
	Tracer trace.Tracer

	Clock  clock.Clock
	Logger *slog.Logger
}

// Worker uploads one feature's batches, one at a time, on its own
// goroutine. After each attempt it sleeps for the adaptive delay and
// tries again.
type Worker struct {
	feature         string
	reader          BatchReader
	uploader        Uploader
	delay           *Delay
	admission       Admission
	contextProvider ContextProvider
	backgroundTasks BackgroundTaskCoordinator
	telemetry       Telemetry
	metrics         *Metrics
	tracer          trace.Tracer
	clock           clock.Clock
	logger          *slog.Logger

	// ctx is cancelled by CancelSynchronously. Uploads run on a
	// detached copy so an in-flight request is not torn down.
	ctx    context.Context
	cancel context.CancelFunc

	wake          chan struct{}
	flushRequests chan chan struct{}
	done          chan struct{}

	// timerMu orders scheduling against cancellation: once cancel
	// has run under it, no new timer is armed.
	timerMu sync.Mutex
	timer   *clock.Timer

	cancelOnce sync.Once
	state      atomic.Int32
}

// NewWorker validates config, arms the first wake-up after the
// initial delay, and starts the worker goroutine.
func NewWorker(config WorkerConfig) (*Worker, error) {
	var errs []error
	if config.Feature == "" {
		errs = append(errs, errors.New("feature is required"))
	}
	if config.Reader == nil {
		errs = append(errs, errors.New("reader is required"))
	}
	if config.Uploader == nil {
		errs = append(errs, errors.New("uploader is required"))
	}
	if config.Delay == nil {
		errs = append(errs, errors.New("delay is required"))
	}
	if config.Clock == nil {
		errs = append(errs, errors.New("clock is required"))
	}
	if config.Logger == nil {
		errs = append(errs, errors.New("logger is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("upload: invalid worker config: %w", err)
	}

	if config.Admission == nil {
		config.Admission = Conditions{MinBatteryLevel: DefaultMinBatteryLevel}
	}
	if config.ContextProvider == nil {
		config.ContextProvider = StaticContext(Context{})
	}
	if config.BackgroundTasks == nil {
		config.BackgroundTasks = NOPBackgroundTaskCoordinator{}
	}
	if config.Telemetry == nil {
		config.Telemetry = NOPTelemetry{}
	}
	if config.Tracer == nil {
		config.Tracer = noop.NewTracerProvider().Tracer("spool/upload")
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		feature:         config.Feature,
		reader:          config.Reader,
		uploader:        config.Uploader,
		delay:           config.Delay,
		admission:       config.Admission,
		contextProvider: config.ContextProvider,
		backgroundTasks: config.BackgroundTasks,
		telemetry:       config.Telemetry,
		metrics:         config.Metrics,
		tracer:          config.Tracer,
		clock:           config.Clock,
		logger:          config.Logger.With("feature", config.Feature),
		ctx:             ctx,
		cancel:          cancel,
		wake:            make(chan struct{}, 1),
		flushRequests:   make(chan chan struct{}),
		done:            make(chan struct{}),
	}
	w.schedule()
	go w.run()
	return w, nil
}

// State reports where the worker is in its cycle.
func (w *Worker) State() State { return State(w.state.Load()) }

// Delay returns the interval the worker will sleep before its next
// attempt.
func (w *Worker) Delay() *Delay { return w.delay }

// FlushSynchronously uploads every batch that is readable right now,
// ignoring the delay and admission conditions, and deletes each one
// whatever the outcome. Returns when the reader has nothing left. Does
// nothing once the worker is cancelled.
func (w *Worker) FlushSynchronously() {
	flushed := make(chan struct{})
	select {
	case w.flushRequests <- flushed:
	case <-w.done:
		return
	}
	select {
	case <-flushed:
	case <-w.done:
	}
}

// CancelSynchronously stops the worker and waits for any tick in
// progress to finish. No upload starts after it returns. Safe to call
// more than once.
func (w *Worker) CancelSynchronously() {
	w.cancelOnce.Do(func() {
		w.timerMu.Lock()
		w.cancel()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.timerMu.Unlock()
	})
	<-w.done
	w.state.Store(int32(StateCancelled))
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.wake:
			w.tick()
			w.schedule()
		case flushed := <-w.flushRequests:
			w.flush()
			close(flushed)
		}
	}
}

// schedule arms the next wake-up after the current delay.
func (w *Worker) schedule() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.ctx.Err() != nil {
		return
	}
	delay := w.delay.Current()
	w.metrics.setDelay(w.feature, delay)
	w.state.Store(int32(StateSleeping))
	w.timer = w.clock.AfterFunc(delay, func() {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	})
}

func (w *Worker) tick() {
	defer w.recoverPanic("upload tick")
	if w.ctx.Err() != nil {
		return
	}
	w.state.Store(int32(StateIdle))

	uploadContext := w.contextProvider()
	if blockers := w.admission.Blockers(uploadContext); len(blockers) > 0 {
		names := make([]string, len(blockers))
		for i, blocker := range blockers {
			names[i] = string(blocker)
		}
		w.logger.Debug("upload skipped", "blockers", strings.Join(names, ","))
		w.metrics.observeBlocked(w.feature, blockers)
		w.delay.Increase()
		return
	}

	batch := w.reader.NextBatch()
	if batch == nil {
		w.delay.Increase()
		return
	}

	if w.upload(batch, uploadContext, false) {
		w.delay.Decrease()
	} else {
		w.delay.Increase()
	}
}

func (w *Worker) flush() {
	defer w.recoverPanic("flush")
	if w.ctx.Err() != nil {
		return
	}
	uploadContext := w.contextProvider()
	seen := make(map[string]bool)
	for {
		batch := w.reader.NextBatch()
		if batch == nil {
			return
		}
		if seen[batch.ID] {
			// Deleting it failed; going round again would never end.
			w.logger.Warn("flush stopped on a batch that could not be removed", "batch", batch.ID)
			return
		}
		seen[batch.ID] = true
		w.upload(batch, uploadContext, true)
	}
}

// upload sends one batch and disposes of it. It reports whether the
// intake gave a final answer, which is what speeds the worker up.
func (w *Worker) upload(batch *storage.Batch, uploadContext Context, flushing bool) bool {
	w.state.Store(int32(StateUploading))
	token := w.backgroundTasks.RegisterBackgroundTask()
	w.metrics.backgroundTaskStarted()
	defer func() {
		w.backgroundTasks.EndBackgroundTaskIfActive(token)
		w.metrics.backgroundTaskEnded()
	}()

	ctx, span := w.tracer.Start(context.WithoutCancel(w.ctx), "spool.upload",
		trace.WithAttributes(
			attribute.String("spool.feature", w.feature),
			attribute.String("spool.batch", batch.ID),
			attribute.Int("spool.events", len(batch.Events)),
			attribute.Bool("spool.flush", flushing),
		),
	)
	defer span.End()

	w.logger.Debug("uploading batch", "batch", batch.ID, "events", len(batch.Events))
	start := w.clock.Now()
	status, err := w.uploader.Upload(ctx, batch.Events, uploadContext)
	elapsed := clock.Since(w.clock, start)

	if err != nil {
		w.telemetry.Error(fmt.Sprintf("Failed to initiate '%s' data upload", w.feature), err)
		w.logger.Warn("building upload request failed, dropping batch", "batch", batch.ID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "building request failed")
		w.metrics.observeUpload(w.feature, OutcomeBuildError, 0)
		w.reader.Delete(batch, storage.DeletedInvalid)
		return false
	}

	span.SetAttributes(attribute.Int("http.response.status_code", status.ResponseCode))
	w.logger.Debug("upload finished",
		"batch", batch.ID,
		"status", status.UserDebugDescription(),
		"retry", status.NeedsRetry,
	)
	if status.Error != nil {
		span.SetStatus(codes.Error, string(status.Error.Kind))
		switch status.Error.Kind {
		case ErrorUnauthorized:
			w.logger.Error("intake rejected the client token, uploads will keep failing until it is replaced",
				"status", status.UserDebugDescription(),
			)
		case ErrorHTTP:
			w.telemetry.Error(fmt.Sprintf("Data upload finished with status code: %d", status.Error.Code), nil)
		case ErrorNetwork:
			w.telemetry.Error("Data upload finished with error", status.Error.Err)
		}
	}

	switch {
	case status.Accepted():
		w.metrics.observeUpload(w.feature, OutcomeAccepted, elapsed)
	case status.NeedsRetry:
		w.metrics.observeUpload(w.feature, OutcomeRetry, elapsed)
	default:
		w.metrics.observeUpload(w.feature, OutcomeRejected, elapsed)
	}

	switch {
	case flushing:
		w.reader.Delete(batch, storage.DeletedFlushed)
	case !status.NeedsRetry:
		w.reader.Delete(batch, storage.DeletedIntakeCode)
	}
	return !status.NeedsRetry
}

// recoverPanic keeps a failing collaborator from killing the worker.
// The worker carries on with its next tick.
func (w *Worker) recoverPanic(where string) {
	recovered := recover()
	if recovered == nil {
		return
	}
	err := fmt.Errorf("panic in %s: %v", where, recovered)
	w.telemetry.Error(fmt.Sprintf("Upload worker for '%s' recovered from a failure", w.feature), err)
	w.logger.Error("upload worker recovered from panic", "where", where, "error", err)
	w.delay.Increase()
}
