// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
)

// ReadFile loads a secret such as a client token from path, trimming
// surrounding whitespace. The file contents are zeroed on the heap
// once copied into the returned Buffer.
func ReadFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defer Zero(data)

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret file %s is empty", path)
	}
	return NewFromBytes(trimmed)
}

// ReadHexFile loads a hex-encoded binary key from path and returns the
// decoded bytes. size, when positive, is the required decoded length.
func ReadHexFile(path string, size int) (*Buffer, error) {
	encoded, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	defer encoded.Close()

	decoded := make([]byte, hex.DecodedLen(encoded.Len()))
	if _, err := hex.Decode(decoded, encoded.Bytes()); err != nil {
		Zero(decoded)
		return nil, fmt.Errorf("decoding key in %s: %w", path, err)
	}
	if size > 0 && len(decoded) != size {
		Zero(decoded)
		return nil, fmt.Errorf("key in %s is %d bytes, want %d", path, len(decoded), size)
	}
	return NewFromBytes(decoded)
}
