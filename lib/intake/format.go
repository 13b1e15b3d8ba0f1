// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package intake

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bureau-foundation/spool/lib/storage"
)

// Format is how a batch's events are laid out in the request body.
type Format string

const (
	// FormatNDJSON puts one event per line.
	FormatNDJSON Format = "ndjson"
	// FormatJSONArray wraps the events in a single JSON array.
	FormatJSONArray Format = "json_array"
)

func (f Format) contentType() string {
	if f == FormatJSONArray {
		return "application/json"
	}
	return "text/plain;charset=UTF-8"
}

func (f Format) validate() error {
	switch f {
	case FormatNDJSON, FormatJSONArray:
		return nil
	default:
		return fmt.Errorf("unknown request format %q (want ndjson or json_array)", f)
	}
}

// encode lays out the events. Every event must be a single JSON
// value: anything else would corrupt its neighbours in the body.
func (f Format) encode(events []storage.Event) ([]byte, error) {
	if len(events) == 0 {
		return nil, errors.New("batch has no events")
	}
	size := 2
	for _, event := range events {
		size += len(event.Data) + 1
	}
	body := bytes.NewBuffer(make([]byte, 0, size))

	separator := byte('\n')
	if f == FormatJSONArray {
		separator = ','
		body.WriteByte('[')
	}
	for i, event := range events {
		data := bytes.TrimSpace(event.Data)
		if !json.Valid(data) {
			return nil, fmt.Errorf("event %d is not valid JSON", i)
		}
		if f == FormatNDJSON && bytes.IndexByte(data, '\n') >= 0 {
			compact := bytes.NewBuffer(make([]byte, 0, len(data)))
			if err := json.Compact(compact, data); err != nil {
				return nil, fmt.Errorf("compacting event %d: %w", i, err)
			}
			data = compact.Bytes()
		}
		if i > 0 {
			body.WriteByte(separator)
		}
		body.Write(data)
	}
	if f == FormatJSONArray {
		body.WriteByte(']')
	}
	return body.Bytes(), nil
}
