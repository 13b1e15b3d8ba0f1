// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// A batch file is a sequence of blocks:
//
//	type   uint16 big-endian
//	length uint32 big-endian
//	payload [length]byte
//
// An event is one data block, optionally followed by one metadata
// block. When encryption is configured each payload is sealed on its
// own, so a corrupt block costs one event and not the whole batch.
type blockType uint16

const (
	blockEventData     blockType = 0x00
	blockEventMetadata blockType = 0x01
	// blockEventDataLZ4 payload: uncompressed length (uint32
	// big-endian) followed by an LZ4 block.
	blockEventDataLZ4 blockType = 0x02
)

const blockHeaderSize = 6

// MaxBlockLength bounds a single block payload. A header claiming
// more is treated as corruption and ends decoding of the file.
const MaxBlockLength = 10 << 20

// Encryption seals and opens individual block payloads. Implemented
// by sealed.AEAD and sealed.Age.
type Encryption interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

type block struct {
	kind    blockType
	payload []byte
}

func appendBlock(dst []byte, kind blockType, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, uint16(kind))
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// splitBlocks parses blocks until the data runs out. It returns the
// complete blocks and the number of bytes it could not parse: a torn
// final block or an oversized header.
func splitBlocks(data []byte) ([]block, int) {
	var blocks []block
	offset := 0
	for offset < len(data) {
		if len(data)-offset < blockHeaderSize {
			break
		}
		kind := blockType(binary.BigEndian.Uint16(data[offset:]))
		length := binary.BigEndian.Uint32(data[offset+2:])
		if length > MaxBlockLength {
			break
		}
		start := offset + blockHeaderSize
		if uint64(len(data)-start) < uint64(length) {
			break
		}
		end := start + int(length)
		blocks = append(blocks, block{kind: kind, payload: data[start:end]})
		offset = end
	}
	return blocks, len(data) - offset
}

// encodeRecord produces the blocks for one event.
func encodeRecord(event Event, compress bool, encryption Encryption) ([]byte, error) {
	kind := blockEventData
	data := event.Data
	if compress {
		if compressed, ok := compressLZ4(data); ok {
			kind = blockEventDataLZ4
			data = compressed
		}
	}
	data, err := seal(encryption, data)
	if err != nil {
		return nil, fmt.Errorf("encrypting event data: %w", err)
	}
	if len(data) > MaxBlockLength {
		return nil, fmt.Errorf("%w: data block of %d bytes", ErrObjectTooLarge, len(data))
	}

	record := make([]byte, 0, blockHeaderSize*2+len(data)+len(event.Metadata))
	record = appendBlock(record, kind, data)

	if len(event.Metadata) > 0 {
		metadata, err := seal(encryption, event.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encrypting event metadata: %w", err)
		}
		if len(metadata) > MaxBlockLength {
			return nil, fmt.Errorf("%w: metadata block of %d bytes", ErrObjectTooLarge, len(metadata))
		}
		record = appendBlock(record, blockEventMetadata, metadata)
	}
	return record, nil
}

func seal(encryption Encryption, payload []byte) ([]byte, error) {
	if encryption == nil {
		return payload, nil
	}
	return encryption.Encrypt(payload)
}

func open(encryption Encryption, payload []byte) ([]byte, error) {
	if encryption == nil {
		return payload, nil
	}
	return encryption.Decrypt(payload)
}

// compressLZ4 returns the framed payload for a blockEventDataLZ4
// block, or false when compression would not shrink the data.
func compressLZ4(data []byte) ([]byte, bool) {
	if len(data) == 0 {
		return nil, false
	}
	framed := make([]byte, 4+lz4.CompressBlockBound(len(data)))
	binary.BigEndian.PutUint32(framed, uint32(len(data)))
	var compressor lz4.Compressor
	n, err := compressor.CompressBlock(data, framed[4:])
	if err != nil || n == 0 || 4+n >= len(data) {
		return nil, false
	}
	return framed[:4+n], true
}

func decompressLZ4(payload []byte) ([]byte, error) {
	if len(payload) < 4 {
		return nil, errors.New("lz4 block shorter than its length prefix")
	}
	size := binary.BigEndian.Uint32(payload)
	if size > MaxBlockLength {
		return nil, fmt.Errorf("lz4 block claims %d uncompressed bytes", size)
	}
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(payload[4:], out)
	if err != nil {
		return nil, fmt.Errorf("decompressing lz4 block: %w", err)
	}
	if n != int(size) {
		return nil, fmt.Errorf("lz4 block decompressed to %d bytes, header says %d", n, size)
	}
	return out, nil
}

// DecodeResult is the outcome of decoding one batch file.
type DecodeResult struct {
	// Events holds every event that decoded, in write order.
	Events []Event

	// Skipped counts data blocks dropped because they failed to
	// decrypt or decompress.
	Skipped int

	// TrailingBytes is the size of the unparseable tail, usually a
	// record torn by a crash mid-append.
	TrailingBytes int
}

// Decode parses the contents of a batch file. It never fails: damage
// shows up as skipped blocks or trailing bytes. Unknown block types
// are ignored. A metadata block attaches to the event decoded
// immediately before it, and is dropped if that event was skipped.
func Decode(data []byte, encryption Encryption) DecodeResult {
	blocks, trailing := splitBlocks(data)
	result := DecodeResult{TrailingBytes: trailing}

	attachable := false
	for _, b := range blocks {
		switch b.kind {
		case blockEventData, blockEventDataLZ4:
			attachable = false
			payload, err := open(encryption, b.payload)
			if err != nil {
				result.Skipped++
				continue
			}
			if b.kind == blockEventDataLZ4 {
				payload, err = decompressLZ4(payload)
				if err != nil {
					result.Skipped++
					continue
				}
			}
			result.Events = append(result.Events, Event{Data: payload})
			attachable = true

		case blockEventMetadata:
			if !attachable {
				continue
			}
			attachable = false
			payload, err := open(encryption, b.payload)
			if err != nil {
				continue
			}
			result.Events[len(result.Events)-1].Metadata = payload
		}
	}
	return result
}
