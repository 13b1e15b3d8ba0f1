// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/bureau-foundation/spool/lib/config"
	"github.com/bureau-foundation/spool/lib/sealed"
	"github.com/bureau-foundation/spool/lib/secret"
	"github.com/bureau-foundation/spool/lib/storage"
)

// loadEncryption reads the configured key material. The returned
// release function zeroes it; call it only after the last use of the
// Encryption.
func loadEncryption(cfg config.EncryptionConfig) (storage.Encryption, func(), error) {
	switch cfg.Mode {
	case "", config.EncryptionNone:
		return nil, func() {}, nil

	case config.EncryptionAEAD:
		key, err := secret.ReadHexFile(cfg.KeyFile, sealed.KeySize)
		if err != nil {
			return nil, nil, fmt.Errorf("reading encryption key: %w", err)
		}
		aead, err := sealed.NewAEAD(key)
		key.Close()
		if err != nil {
			return nil, nil, err
		}
		return aead, func() { aead.Close() }, nil

	case config.EncryptionAge:
		identity, err := secret.ReadFile(cfg.IdentityFile)
		if err != nil {
			return nil, nil, fmt.Errorf("reading age identity: %w", err)
		}
		sealer, err := sealed.NewAge(identity, cfg.Recipients)
		if err != nil {
			identity.Close()
			return nil, nil, err
		}
		return sealer, func() { identity.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown encryption mode %q", cfg.Mode)
	}
}
