// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds small HTTP and stream helpers shared by the
// uploader and the agent.
//
// Intake responses carry at most a short JSON status, so every body
// read is bounded by MaxResponseSize. A misbehaving endpoint cannot
// make the uploader allocate more than that.
package netutil

import (
	"errors"
	"io"
)

// MaxResponseSize bounds every intake response body read.
const MaxResponseSize int64 = 1 << 20

// ReadResponse reads a response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DrainAndClose discards what is left of a response body, up to
// MaxResponseSize, then closes it. Draining lets net/http reuse the
// connection for the next upload.
func DrainAndClose(body io.ReadCloser) error {
	_, copyErr := io.Copy(io.Discard, io.LimitReader(body, MaxResponseSize))
	return errors.Join(copyErr, body.Close())
}

// ErrorBody returns a response body for use in diagnostics, truncated
// to maxBytes. Read errors are ignored: a partial body still helps.
func ErrorBody(body io.Reader, maxBytes int) string {
	data, _ := io.ReadAll(io.LimitReader(body, int64(maxBytes)))
	return string(data)
}
