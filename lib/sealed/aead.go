// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/spool/lib/secret"
)

// KeySize is the length of the master key accepted by NewAEAD.
const KeySize = 32

// blobVersion prefixes every sealed record and is authenticated as
// additional data, so a flipped version byte fails to open.
const blobVersion byte = 0x01

// BlobOverhead is the per-record cost of AEAD sealing: version byte,
// 24-byte XChaCha20 nonce and 16-byte Poly1305 tag.
const BlobOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// hkdfInfoRecord separates the record key from anything else that
// might one day be derived from the same master key. Changing it makes
// every existing batch file unreadable.
var hkdfInfoRecord = []byte("spool.batch.record.v1")

// AEAD seals batch records with XChaCha20-Poly1305 under a key derived
// from a 32-byte master key. Sealed layout:
//
//	[version: 1][nonce: 24][ciphertext+tag: n+16]
type AEAD struct {
	recordKey *secret.Buffer
}

// NewAEAD derives the record key from masterKey. masterKey is borrowed:
// the caller still owns and closes it. Close the returned AEAD to
// release the derived key.
func NewAEAD(masterKey *secret.Buffer) (*AEAD, error) {
	if masterKey.Len() != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", KeySize, masterKey.Len())
	}
	reader := hkdf.New(sha256.New, masterKey.Bytes(), nil, hkdfInfoRecord)
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		secret.Zero(derived)
		return nil, fmt.Errorf("deriving record key: %w", err)
	}
	recordKey, err := secret.NewFromBytes(derived)
	if err != nil {
		return nil, fmt.Errorf("protecting record key: %w", err)
	}
	return &AEAD{recordKey: recordKey}, nil
}

// Encrypt seals one record payload.
func (a *AEAD) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(a.recordKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	output := make([]byte, 1+len(nonce), BlobOverhead+len(plaintext))
	output[0] = blobVersion
	copy(output[1:], nonce[:])
	return aead.Seal(output, nonce[:], plaintext, []byte{blobVersion}), nil
}

// Decrypt opens a payload produced by Encrypt.
func (a *AEAD) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < BlobOverhead {
		return nil, fmt.Errorf("sealed record is %d bytes, minimum is %d", len(blob), BlobOverhead)
	}
	if blob[0] != blobVersion {
		return nil, fmt.Errorf("sealed record version %d is not supported", blob[0])
	}

	aead, err := chacha20poly1305.NewX(a.recordKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}
	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], []byte{blob[0]})
	if err != nil {
		return nil, fmt.Errorf("opening sealed record: %w", err)
	}
	return plaintext, nil
}

// Close zeroes the derived record key. Idempotent.
func (a *AEAD) Close() error {
	return a.recordKey.Close()
}

// GenerateKey returns a fresh random master key.
func GenerateKey() (*secret.Buffer, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return secret.NewFromBytes(key)
}
