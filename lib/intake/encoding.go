// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package intake

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Encoding is the Content-Encoding applied to request bodies.
type Encoding string

const (
	EncodingIdentity Encoding = "identity"
	EncodingGzip     Encoding = "gzip"
	// EncodingDeflate is the zlib format, which is what HTTP calls
	// "deflate".
	EncodingDeflate Encoding = "deflate"
	EncodingZstd    Encoding = "zstd"
)

// zstdEncoder is shared by every builder. EncodeAll is safe for
// concurrent use.
var zstdEncoder *zstd.Encoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("intake: zstd encoder initialization failed: " + err.Error())
	}
}

func (e Encoding) validate() error {
	switch e {
	case "", EncodingIdentity, EncodingGzip, EncodingDeflate, EncodingZstd:
		return nil
	default:
		return fmt.Errorf("unknown content encoding %q (want identity, gzip, deflate or zstd)", e)
	}
}

// header is the Content-Encoding value, empty for identity.
func (e Encoding) header() string {
	if e == "" || e == EncodingIdentity {
		return ""
	}
	return string(e)
}

func (e Encoding) encode(body []byte) ([]byte, error) {
	switch e {
	case "", EncodingIdentity:
		return body, nil
	case EncodingZstd:
		return zstdEncoder.EncodeAll(body, make([]byte, 0, len(body)/2)), nil
	}

	var buffer bytes.Buffer
	buffer.Grow(len(body) / 2)
	var writer interface {
		Write([]byte) (int, error)
		Close() error
	}
	switch e {
	case EncodingGzip:
		writer = gzip.NewWriter(&buffer)
	case EncodingDeflate:
		writer = zlib.NewWriter(&buffer)
	default:
		return nil, fmt.Errorf("unknown content encoding %q", e)
	}
	if _, err := writer.Write(body); err != nil {
		return nil, fmt.Errorf("%s encoding: %w", e, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%s encoding: %w", e, err)
	}
	return buffer.Bytes(), nil
}
