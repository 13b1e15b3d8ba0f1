// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/bureau-foundation/spool/lib/secret"
)

// ErrNoIdentity is returned by Age.Decrypt when the Age was built from
// recipients only.
var ErrNoIdentity = errors.New("age: no identity available for decryption")

// Age seals each record as a standalone age file addressed to one or
// more X25519 recipients. Every record carries its own age header
// (roughly 200 bytes), which is why AEAD is the default mode.
//
// The device holds the identity so the uploader can read its own
// batches; extra recipients let an operator decrypt copied batch files
// offline with spool-agent inspect.
type Age struct {
	recipients []age.Recipient
	identity   *secret.Buffer
}

// NewAge returns an Age that decrypts with identity and encrypts to the
// identity's own recipient plus every key in extraRecipients. identity
// may be nil for an encrypt-only Age, in which case extraRecipients
// must not be empty. identity is borrowed and must outlive the Age.
func NewAge(identity *secret.Buffer, extraRecipients []string) (*Age, error) {
	sealer := &Age{identity: identity}

	if identity != nil {
		parsed, err := age.ParseX25519Identity(identity.String())
		if err != nil {
			return nil, fmt.Errorf("parsing age identity: %w", err)
		}
		sealer.recipients = append(sealer.recipients, parsed.Recipient())
	}
	for _, key := range extraRecipients {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient %q: %w", key, err)
		}
		sealer.recipients = append(sealer.recipients, recipient)
	}
	if len(sealer.recipients) == 0 {
		return nil, errors.New("age: at least one recipient or an identity is required")
	}
	return sealer, nil
}

// Encrypt seals one record payload.
func (a *Age) Encrypt(plaintext []byte) ([]byte, error) {
	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, a.recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

// Decrypt opens a payload produced by Encrypt.
func (a *Age) Decrypt(ciphertext []byte) ([]byte, error) {
	if a.identity == nil {
		return nil, ErrNoIdentity
	}
	identity, err := age.ParseX25519Identity(a.identity.String())
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted record: %w", err)
	}
	return plaintext, nil
}

// Keypair is a freshly generated age X25519 identity.
type Keypair struct {
	// PrivateKey is the AGE-SECRET-KEY-1... string.
	PrivateKey *secret.Buffer
	// PublicKey is the age1... recipient string.
	PublicKey string
}

// Close releases the private key.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair creates a new age identity for spool-agent keygen.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}
