// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"testing"
)

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func TestReadResponseBounded(t *testing.T) {
	data, err := ReadResponse(bytes.NewReader(make([]byte, MaxResponseSize+10)))
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if int64(len(data)) != MaxResponseSize {
		t.Fatalf("read %d bytes, want %d", len(data), MaxResponseSize)
	}
}

func TestDrainAndClose(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(`{"status":"accepted"}`)}
	if err := DrainAndClose(body); err != nil {
		t.Fatalf("DrainAndClose: %v", err)
	}
	if !body.closed {
		t.Fatal("body not closed")
	}
	if rest, _ := io.ReadAll(body.Reader); len(rest) != 0 {
		t.Errorf("%d bytes left undrained", len(rest))
	}
}

func TestDrainAndCloseReportsReadError(t *testing.T) {
	body := &trackingBody{Reader: io.MultiReader(strings.NewReader("x"), failingReader{})}
	if err := DrainAndClose(body); err == nil {
		t.Fatal("DrainAndClose swallowed the read error")
	}
	if !body.closed {
		t.Fatal("body not closed after read error")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestErrorBodyTruncates(t *testing.T) {
	if got := ErrorBody(strings.NewReader("bad request: missing field"), 11); got != "bad request" {
		t.Fatalf("ErrorBody = %q, want %q", got, "bad request")
	}
}

func TestIsExpectedCloseError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{io.EOF, true},
		{fmt.Errorf("reading input: %w", io.ErrUnexpectedEOF), true},
		{os.ErrClosed, true},
		{fmt.Errorf("write: %w", syscall.EPIPE), true},
		{syscall.ECONNRESET, true},
		{syscall.ENOSPC, false},
		{errors.New("boom"), false},
	}
	for _, test := range tests {
		if got := IsExpectedCloseError(test.err); got != test.want {
			t.Errorf("IsExpectedCloseError(%v) = %v, want %v", test.err, got, test.want)
		}
	}
}
