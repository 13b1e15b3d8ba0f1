// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/trace"

	"github.com/bureau-foundation/spool/lib/clock"
	"github.com/bureau-foundation/spool/lib/config"
	"github.com/bureau-foundation/spool/lib/intake"
	"github.com/bureau-foundation/spool/lib/secret"
	"github.com/bureau-foundation/spool/lib/service"
	"github.com/bureau-foundation/spool/lib/spool"
	"github.com/bureau-foundation/spool/lib/upload"
	"github.com/bureau-foundation/spool/lib/version"
)

// inputStopTimeout bounds how long shutdown waits for the input reader.
const inputStopTimeout = 5 * time.Second

func runAgent(ctx context.Context, args []string, stdin io.Reader, stderr io.Writer) error {
	var (
		configPath    string
		input         string
		socketPath    string
		statusAddress string
		logLevel      string
		traceStdout   bool
		noFlush       bool
	)
	flagSet := pflag.NewFlagSet("spool-agent", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&configPath, "config", "", "config file (default: $"+config.EnvVar+")")
	flagSet.StringVar(&input, "input", "", "NDJSON input file, '-' for stdin (default: stdin unless --socket is set)")
	flagSet.StringVar(&socketPath, "socket", "", "accept NDJSON producers on this Unix socket")
	flagSet.StringVar(&statusAddress, "status-address", "", "serve /metrics, /healthz and /status here (overrides agent.status_address)")
	flagSet.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	flagSet.BoolVar(&traceStdout, "trace-stdout", false, "write upload spans to stderr")
	flagSet.BoolVar(&noFlush, "no-flush-on-exit", false, "leave batches on disk at shutdown instead of uploading them")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	logger, err := newLogger(stderr, logLevel)
	if err != nil {
		return err
	}

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if statusAddress != "" {
		cfg.Agent.StatusAddress = statusAddress
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config:\n%w", err)
	}

	tracer, shutdownTracing, err := newTracer(traceStdout, stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("flushing spans failed", "error", err)
		}
	}()

	a, err := newAgent(cfg, agentOptions{
		Clock:      clock.Real(),
		Logger:     logger,
		Tracer:     tracer,
		HTTPClient: &http.Client{Timeout: cfg.Upload.RequestTimeout},
	})
	if err != nil {
		return err
	}
	defer a.close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if cfg.Agent.StatusAddress != "" {
		server := service.NewHTTPServer(service.HTTPServerConfig{
			Address: cfg.Agent.StatusAddress,
			Handler: a.statusHandler(),
			Logger:  logger,
		})
		wg.Go(func() {
			if err := server.Serve(runCtx); err != nil {
				logger.Error("status server failed", "error", err)
			}
		})
	}

	ingest := newIngestor(a.core, logger)
	if socketPath != "" {
		listener, err := listenUnix(socketPath)
		if err != nil {
			return err
		}
		wg.Go(func() { ingest.serve(runCtx, listener) })
	}

	// Without a socket the agent lives as long as its input.
	if input == "" && socketPath == "" {
		input = "-"
	}
	var inputDone, inputStopped <-chan struct{}
	if input != "" {
		reader, closeInput, err := openInput(input, stdin)
		if err != nil {
			return err
		}
		done := make(chan struct{})
		go func() {
			defer close(done)
			// Closing the input unblocks a read that is waiting on it.
			stopClose := context.AfterFunc(runCtx, closeInput)
			defer func() {
				if stopClose() {
					closeInput()
				}
			}()
			if err := ingest.ingest(runCtx, reader, input); err != nil {
				logger.Error("reading input failed", "input", input, "error", err)
			}
		}()
		inputStopped = done
		if socketPath == "" {
			inputDone = done
		}
	}

	logger.Info("spool agent running",
		"version", version.Short(),
		"directory", cfg.Storage.Directory,
		"features", strings.Join(a.core.Features(), ","),
		"status_address", cfg.Agent.StatusAddress,
		"socket", socketPath,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-inputDone:
		logger.Info("input finished, shutting down")
	}
	cancel()
	wg.Wait()
	if inputStopped != nil {
		select {
		case <-inputStopped:
		case <-time.After(inputStopTimeout):
			// A blocking stdin cannot be interrupted. Anything it
			// delivers later stays on disk for the next run.
			logger.Warn("input still blocked at shutdown, flushing without it", "input", input)
		}
	}

	// Every producer has stopped, so the flush sees all accepted events.
	if !noFlush {
		a.core.Flush()
	}
	a.core.Stop()
	logger.Info("spool agent stopped", "accepted", ingest.accepted.Load(), "rejected", ingest.rejected.Load())
	return nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parsed})), nil
}

// openInput returns the reader for path and a func that closes it.
// Stdin is closed only when it is a real file or pipe.
func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "-" {
		if file, ok := stdin.(*os.File); ok {
			return file, func() { file.Close() }, nil
		}
		return stdin, func() {}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening input: %w", err)
	}
	return file, func() { file.Close() }, nil
}

type agentOptions struct {
	Clock      clock.Clock
	Logger     *slog.Logger
	Tracer     trace.Tracer
	HTTPClient upload.HTTPClient

	// Host overrides the host probes, for tests.
	Host *hostProbes
}

// agent is the wired pipeline plus what must be released at exit.
type agent struct {
	core            *spool.Core
	registry        *prometheus.Registry
	backgroundTasks *upload.TrackedBackgroundTaskCoordinator
	directory       string
	closers         []func()
}

func newAgent(cfg *config.Config, options agentOptions) (_ *agent, err error) {
	logger := options.Logger
	result := &agent{directory: cfg.Storage.Directory}
	defer func() {
		if err != nil {
			result.close()
		}
	}()

	if err := os.MkdirAll(cfg.Storage.Directory, 0o700); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	clientToken, err := secret.ReadFile(cfg.Intake.ClientTokenFile)
	if err != nil {
		return nil, fmt.Errorf("reading client token: %w", err)
	}
	result.closers = append(result.closers, func() { clientToken.Close() })

	encryption, closeEncryption, err := loadEncryption(cfg.Encryption)
	if err != nil {
		return nil, err
	}
	result.closers = append(result.closers, closeEncryption)

	performance, err := cfg.Storage.Performance()
	if err != nil {
		return nil, err
	}
	delay, err := cfg.Upload.Delay()
	if err != nil {
		return nil, err
	}

	result.registry = prometheus.NewRegistry()
	result.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	result.backgroundTasks = upload.NewTrackedBackgroundTaskCoordinator(
		func(token uuid.UUID) { logger.Debug("background task started", "token", token) },
		func(token uuid.UUID) { logger.Debug("background task ended", "token", token) },
	)

	probes := options.Host
	if probes == nil {
		probes = defaultHostProbes()
	}

	result.core, err = spool.New(spool.Config{
		Directory:       cfg.Storage.Directory,
		Performance:     performance,
		Encryption:      encryption,
		Compress:        cfg.Storage.Compress,
		QueueSize:       cfg.Agent.QueueSize,
		Admission:       cfg.Upload.Conditions(),
		ContextProvider: probes.contextProvider(cfg.Intake),
		BackgroundTasks: result.backgroundTasks,
		Telemetry:       upload.LogTelemetry{Logger: logger},
		Metrics:         upload.NewMetrics(result.registry),
		Tracer:          options.Tracer,
		Clock:           options.Clock,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	result.closers = append(result.closers, result.core.Stop)

	for _, feature := range cfg.Features {
		if !feature.IsEnabled() {
			logger.Info("feature disabled", "feature", feature.Name)
			continue
		}
		builder, err := intake.NewBuilder(intake.Config{
			Site:        cfg.Intake.Site,
			Endpoint:    cfg.Intake.Endpoint,
			Track:       feature.IntakeTrack(),
			Format:      feature.Format,
			Encoding:    cfg.Intake.Encoding,
			ClientToken: clientToken,
			Source:      cfg.Intake.Source,
			UserAgent:   version.UserAgent("spool-agent"),
		})
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", feature.Name, err)
		}
		err = result.core.Register(spool.FeatureConfig{
			Name:     feature.Name,
			Uploader: upload.NewDataUploader(builder, options.HTTPClient, logger),
			Delay:    delay,
		})
		if err != nil {
			return nil, err
		}
	}
	if len(result.core.Features()) == 0 {
		return nil, errors.New("every configured feature is disabled")
	}
	return result, nil
}

// close releases resources in reverse order of acquisition.
func (a *agent) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *agent) statusHandler() http.Handler {
	return service.NewStatusHandler(service.StatusConfig{
		Gatherer: a.registry,
		Health: func() error {
			info, err := os.Stat(a.directory)
			if err != nil {
				return fmt.Errorf("storage directory: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("storage directory %s is not a directory", a.directory)
			}
			return nil
		},
		Status: func() any {
			return struct {
				Version         string                `json:"version"`
				BackgroundTasks int                   `json:"background_tasks"`
				Features        []spool.FeatureStatus `json:"features"`
			}{
				Version:         version.Short(),
				BackgroundTasks: a.backgroundTasks.Active(),
				Features:        a.core.Status(),
			}
		},
	})
}
