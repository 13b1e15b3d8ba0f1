// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spool

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/bureau-foundation/spool/lib/clock"
	"github.com/bureau-foundation/spool/lib/storage"
	"github.com/bureau-foundation/spool/lib/upload"
)

// ErrStopped is returned by Register after Stop.
var ErrStopped = errors.New("spool: core is stopped")

// Config holds what every feature shares.
type Config struct {
	// Directory is the root. Each feature uses Directory/<name>.
	// Required.
	Directory string

	// Performance is the default for features that do not set their
	// own.
	Performance storage.Performance

	// Encryption seals records at rest. Nil stores plaintext.
	Encryption storage.Encryption

	// Compress LZ4-compresses records before sealing.
	Compress bool

	// QueueSize bounds each feature's write queue. Zero selects
	// storage.DefaultQueueSize.
	QueueSize int

	// Admission, ContextProvider, BackgroundTasks, Telemetry, Metrics
	// and Tracer are handed to every worker. Nil values take the
	// worker defaults.
	Admission       upload.Admission
	ContextProvider upload.ContextProvider
	BackgroundTasks upload.BackgroundTaskCoordinator
	Telemetry       upload.Telemetry
	Metrics         *upload.Metrics
	Tracer          trace.Tracer

	// FreeSpace overrides the orchestrators' free-space probe.
	FreeSpace func(path string) (uint64, error)

	Clock  clock.Clock
	Logger *slog.Logger
}

// FeatureConfig describes one data stream.
type FeatureConfig struct {
	// Name identifies the feature and names its directory. Required.
	Name string

	// Uploader delivers the feature's batches. Required.
	Uploader upload.Uploader

	// Delay bounds the feature's upload interval.
	Delay upload.DelayConfig

	// Performance, if set, replaces Config.Performance.
	Performance *storage.Performance
}

// FeatureStatus is a point-in-time view of one feature, for operators.
type FeatureStatus struct {
	Name         string  `json:"name"`
	State        string  `json:"state"`
	DelaySeconds float64 `json:"delay_seconds"`
	Batches      int     `json:"batches"`
	Bytes        int64   `json:"bytes"`
	Dropped      uint64  `json:"dropped"`
}

type feature struct {
	name         string
	orchestrator *storage.Orchestrator
	writer       *storage.AsyncWriter
	worker       *upload.Worker
}

// Core hosts the registered features.
type Core struct {
	config Config
	logger *slog.Logger

	mu       sync.RWMutex
	features map[string]*feature
	stopped  bool
}

// New validates config and returns an empty Core.
func New(config Config) (*Core, error) {
	var errs []error
	if config.Directory == "" {
		errs = append(errs, errors.New("directory is required"))
	}
	if config.Clock == nil {
		errs = append(errs, errors.New("clock is required"))
	}
	if config.Logger == nil {
		errs = append(errs, errors.New("logger is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("spool: invalid config: %w", err)
	}
	if config.Telemetry == nil {
		config.Telemetry = upload.NOPTelemetry{}
	}
	return &Core{
		config:   config,
		logger:   config.Logger,
		features: make(map[string]*feature),
	}, nil
}

// Register creates the feature's storage and starts its upload worker.
func (c *Core) Register(config FeatureConfig) error {
	if config.Name == "" {
		return errors.New("spool: feature name is required")
	}
	if config.Name != filepath.Base(config.Name) || config.Name == "." || config.Name == ".." {
		return fmt.Errorf("spool: feature name %q is not a plain directory name", config.Name)
	}
	if config.Uploader == nil {
		return fmt.Errorf("spool: feature %q has no uploader", config.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrStopped
	}
	if _, exists := c.features[config.Name]; exists {
		return fmt.Errorf("spool: feature %q is already registered", config.Name)
	}

	performance := c.config.Performance
	if config.Performance != nil {
		performance = *config.Performance
	}
	logger := c.logger.With("feature", config.Name)
	name := config.Name

	orchestrator, err := storage.NewOrchestrator(storage.OrchestratorConfig{
		Directory:   filepath.Join(c.config.Directory, name),
		Performance: performance,
		Clock:       c.config.Clock,
		Logger:      logger,
		FreeSpace:   c.config.FreeSpace,
		OnDelete: func(file *storage.File, reason storage.DeletionReason) {
			c.config.Metrics.BatchDeleted(name, string(reason))
			c.config.Telemetry.Metric("Batch Deleted",
				"feature", name,
				"reason", string(reason),
				"batch_age", clock.Since(c.config.Clock, file.Created()).String(),
			)
		},
	})
	if err != nil {
		return fmt.Errorf("spool: feature %q: %w", name, err)
	}

	delay, err := upload.NewDelay(config.Delay)
	if err != nil {
		return fmt.Errorf("spool: feature %q: %w", name, err)
	}

	fileWriter := storage.NewFileWriter(storage.WriterConfig{
		Orchestrator: orchestrator,
		Encryption:   c.config.Encryption,
		Compress:     c.config.Compress,
		Logger:       logger,
	})
	reader := storage.NewFileReader(storage.ReaderConfig{
		Orchestrator: orchestrator,
		Encryption:   c.config.Encryption,
		Logger:       logger,
	})

	worker, err := upload.NewWorker(upload.WorkerConfig{
		Feature:         name,
		Reader:          reader,
		Uploader:        config.Uploader,
		Delay:           delay,
		Admission:       c.config.Admission,
		ContextProvider: c.config.ContextProvider,
		BackgroundTasks: c.config.BackgroundTasks,
		Telemetry:       c.config.Telemetry,
		Metrics:         c.config.Metrics,
		Tracer:          c.config.Tracer,
		Clock:           c.config.Clock,
		Logger:          c.logger,
	})
	if err != nil {
		return fmt.Errorf("spool: feature %q: %w", name, err)
	}

	c.features[name] = &feature{
		name:         name,
		orchestrator: orchestrator,
		writer:       storage.NewAsyncWriter(fileWriter, c.config.QueueSize, logger),
		worker:       worker,
	}
	logger.Info("feature registered",
		"directory", orchestrator.Directory(),
		"initial_delay", delay.Current(),
	)
	return nil
}

// Writer returns the feature's writer, or a writer that discards
// everything when the feature is not registered or the core is
// stopped.
func (c *Core) Writer(name string) storage.Writer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.features[name]
	if !ok || c.stopped {
		c.logger.Debug("writer requested for unknown feature", "feature", name)
		return storage.NOPWriter{}
	}
	return f.writer
}

// Features lists registered feature names in sorted order.
func (c *Core) Features() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.features))
	for name := range c.features {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// UploadDelay reports the feature's current upload interval.
func (c *Core) UploadDelay(name string) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.features[name]
	if !ok {
		return 0, false
	}
	return f.worker.Delay().Current(), true
}

// Flush persists every queued event, then uploads every batch on disk
// for every feature, including batches that are still open or have
// not settled. Each batch is deleted after its attempt whatever the
// outcome. Blocks until done.
func (c *Core) Flush() {
	for _, f := range c.snapshot() {
		f.writer.Flush()
		f.orchestrator.SealCurrent()
		f.orchestrator.SetIgnoreFileAge(true)
		f.worker.FlushSynchronously()
		f.orchestrator.SetIgnoreFileAge(false)
	}
}

// Stop cancels every worker, waiting for in-flight uploads, then
// writes out queued events and closes the writers. Batches stay on
// disk for the next run. Safe to call more than once.
func (c *Core) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	for _, f := range c.snapshot() {
		f.worker.CancelSynchronously()
		f.writer.Close()
		if dropped := f.writer.Dropped(); dropped > 0 {
			c.logger.Warn("events dropped during this run", "feature", f.name, "dropped", dropped)
		}
	}
}

// Status reports every feature's state.
func (c *Core) Status() []FeatureStatus {
	features := c.snapshot()
	statuses := make([]FeatureStatus, 0, len(features))
	for _, f := range features {
		status := FeatureStatus{
			Name:         f.name,
			State:        f.worker.State().String(),
			DelaySeconds: f.worker.Delay().Current().Seconds(),
			Dropped:      f.writer.Dropped(),
		}
		files, err := f.orchestrator.Files()
		if err != nil {
			c.logger.Warn("listing batches failed", "feature", f.name, "error", err)
		}
		for _, file := range files {
			status.Batches++
			status.Bytes += file.Size()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// snapshot returns the features in name order.
func (c *Core) snapshot() []*feature {
	c.mu.RLock()
	defer c.mu.RUnlock()
	features := make([]*feature, 0, len(c.features))
	for _, f := range c.features {
		features = append(features, f)
	}
	slices.SortFunc(features, func(a, b *feature) int {
		return cmp.Compare(a.name, b.name)
	})
	return features
}
