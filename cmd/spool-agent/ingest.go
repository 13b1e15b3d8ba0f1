// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/spool/lib/netutil"
	"github.com/bureau-foundation/spool/lib/spool"
)

// maxLineSize bounds one input line. Anything longer could never fit
// in a batch record anyway.
const maxLineSize = 4 << 20

// inputLine is one producer record.
type inputLine struct {
	Feature  string          `json:"feature"`
	Event    json.RawMessage `json:"event"`
	Metadata json.RawMessage `json:"metadata"`
}

// ingestor feeds producer input into the core.
type ingestor struct {
	core     *spool.Core
	logger   *slog.Logger
	features map[string]bool

	accepted atomic.Uint64
	rejected atomic.Uint64
}

func newIngestor(core *spool.Core, logger *slog.Logger) *ingestor {
	features := make(map[string]bool)
	for _, name := range core.Features() {
		features[name] = true
	}
	return &ingestor{core: core, logger: logger, features: features}
}

// ingest reads NDJSON from r until it ends or ctx is cancelled. Bad
// lines are logged and skipped. Only read failures other than the
// stream closing are returned.
func (i *ingestor) ingest(ctx context.Context, r io.Reader, source string) error {
	reader := bufio.NewReaderSize(r, 64<<10)
	for lineNumber := 1; ctx.Err() == nil; lineNumber++ {
		line, err := readLine(reader)
		if len(line) > 0 {
			i.handle(line, source, lineNumber)
		}
		if err != nil {
			if netutil.IsExpectedCloseError(err) {
				return nil
			}
			if errors.Is(err, errLineTooLong) {
				i.rejected.Add(1)
				i.logger.Warn("skipping oversized input line", "source", source, "line", lineNumber)
				continue
			}
			return err
		}
	}
	return nil
}

var errLineTooLong = errors.New("input line too long")

// readLine returns the next line without its terminator. An overlong
// line is consumed and reported as errLineTooLong.
func readLine(reader *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, err := reader.ReadSlice('\n')
		if len(line)+len(chunk) > maxLineSize {
			line = nil
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = reader.ReadSlice('\n')
			}
			if err != nil {
				return nil, err
			}
			return nil, errLineTooLong
		}
		line = append(line, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimSpace(line), err
	}
}

func (i *ingestor) handle(line []byte, source string, lineNumber int) {
	if err := i.write(line); err != nil {
		i.rejected.Add(1)
		i.logger.Warn("skipping input line", "source", source, "line", lineNumber, "error", err)
		return
	}
	i.accepted.Add(1)
}

func (i *ingestor) write(line []byte) error {
	var record inputLine
	if err := json.Unmarshal(line, &record); err != nil {
		return fmt.Errorf("malformed record: %w", err)
	}
	if record.Feature == "" {
		return errors.New("record has no feature")
	}
	if !i.features[record.Feature] {
		return fmt.Errorf("feature %q is not configured", record.Feature)
	}
	if len(record.Event) == 0 || bytes.Equal(record.Event, []byte("null")) {
		return errors.New("record has no event")
	}

	// Metadata is re-encoded as CBOR on disk, so decode it to plain
	// values first.
	var metadata any
	if len(record.Metadata) > 0 {
		if err := json.Unmarshal(record.Metadata, &metadata); err != nil {
			return fmt.Errorf("malformed metadata: %w", err)
		}
	}
	i.core.Writer(record.Feature).Write(record.Event, metadata)
	return nil
}

// listenUnix binds path, replacing a stale socket left by a previous
// run.
func listenUnix(path string) (net.Listener, error) {
	if info, err := os.Lstat(path); err == nil {
		if info.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("%s exists and is not a socket", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("removing stale socket: %w", err)
		}
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	return listener, nil
}

// serve accepts producer connections until ctx is cancelled, then
// closes the listener and every open connection and waits for their
// readers to finish.
func (i *ingestor) serve(ctx context.Context, listener net.Listener) {
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	var connections sync.WaitGroup
	defer connections.Wait()
	for {
		connection, err := listener.Accept()
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				i.logger.Error("accepting producer connection failed", "error", err)
			}
			return
		}
		connections.Go(func() {
			defer connection.Close()
			stopConnection := context.AfterFunc(ctx, func() { connection.Close() })
			defer stopConnection()
			if err := i.ingest(ctx, connection, "socket"); err != nil {
				i.logger.Warn("producer connection failed", "error", err)
			}
		})
	}
}
