// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// File is one batch file. Its name is the creation time in Unix
// milliseconds, which doubles as the upload order.
type File struct {
	path    string
	name    string
	created time.Time
	size    int64
}

func newFile(directory string, millis int64, size int64) *File {
	name := strconv.FormatInt(millis, 10)
	return &File{
		path:    filepath.Join(directory, name),
		name:    name,
		created: time.UnixMilli(millis),
		size:    size,
	}
}

// parseFileName returns the creation time encoded in a batch file
// name, or false for anything that is not a batch file.
func parseFileName(name string) (int64, bool) {
	if name == "" || name[0] == '0' && len(name) > 1 {
		return 0, false
	}
	millis, err := strconv.ParseInt(name, 10, 64)
	if err != nil || millis < 0 {
		return 0, false
	}
	return millis, true
}

// Name returns the file name, which is also the batch ID.
func (f *File) Name() string { return f.name }

// Path returns the absolute path of the file.
func (f *File) Path() string { return f.path }

// Created returns the creation time encoded in the name.
func (f *File) Created() time.Time { return f.created }

// Size returns the size observed when the file was listed.
func (f *File) Size() int64 { return f.size }

// Append writes data to the end of the file in a single write. A
// short write leaves a torn record, which readers discard.
func (f *File) Append(data []byte) error {
	handle, err := os.OpenFile(f.path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("opening batch %s: %w", f.name, err)
	}
	written, writeErr := handle.Write(data)
	closeErr := handle.Close()
	if writeErr != nil {
		return fmt.Errorf("appending to batch %s: %w", f.name, writeErr)
	}
	if written != len(data) {
		return fmt.Errorf("appending to batch %s: %w", f.name, io.ErrShortWrite)
	}
	if closeErr != nil {
		return fmt.Errorf("closing batch %s: %w", f.name, closeErr)
	}
	return nil
}

// ReadAll returns the full contents of the file.
func (f *File) ReadAll() ([]byte, error) {
	return os.ReadFile(f.path)
}
