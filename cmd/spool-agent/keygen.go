// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/spool/lib/config"
	"github.com/bureau-foundation/spool/lib/sealed"
	"github.com/bureau-foundation/spool/lib/secret"
)

func runKeygen(args []string, stdout, stderr io.Writer) error {
	var mode, out string
	flagSet := pflag.NewFlagSet("spool-agent keygen", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&mode, "mode", string(config.EncryptionAEAD), "aead or age")
	flagSet.StringVar(&out, "out", "", "write the key here (required, must not exist)")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if out == "" {
		return errors.New("--out is required")
	}

	switch config.EncryptionMode(mode) {
	case config.EncryptionAEAD:
		key, err := sealed.GenerateKey()
		if err != nil {
			return err
		}
		defer key.Close()
		encoded := make([]byte, hex.EncodedLen(key.Len())+1)
		defer secret.Zero(encoded)
		hex.Encode(encoded, key.Bytes())
		encoded[len(encoded)-1] = '\n'
		if err := writeKeyFile(out, encoded); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", out)

	case config.EncryptionAge:
		keypair, err := sealed.GenerateKeypair()
		if err != nil {
			return err
		}
		defer keypair.Close()
		contents := make([]byte, keypair.PrivateKey.Len()+1)
		defer secret.Zero(contents)
		copy(contents, keypair.PrivateKey.Bytes())
		contents[len(contents)-1] = '\n'
		if err := writeKeyFile(out, contents); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\npublic key: %s\n", out, keypair.PublicKey)

	default:
		return fmt.Errorf("--mode %q must be aead or age", mode)
	}
	return nil
}

// writeKeyFile creates path with owner-only permissions and refuses to
// overwrite an existing key.
func writeKeyFile(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating key file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("writing key file: %w", err)
	}
	return file.Close()
}
