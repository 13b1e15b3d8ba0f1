// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/spool/lib/codec"
	"github.com/bureau-foundation/spool/lib/config"
	"github.com/bureau-foundation/spool/lib/storage"
)

// inspectedEvent is one output line of spool-agent inspect.
type inspectedEvent struct {
	Batch string          `json:"batch"`
	Index int             `json:"index"`
	Event json.RawMessage `json:"event"`
	// Metadata is CBOR diagnostic notation.
	Metadata string `json:"metadata,omitempty"`
}

func runInspect(args []string, stdout, stderr io.Writer) error {
	var encryption config.EncryptionConfig
	flagSet := pflag.NewFlagSet("spool-agent inspect", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&encryption.KeyFile, "key-file", "", "hex master key for aead-encrypted batches")
	flagSet.StringVar(&encryption.IdentityFile, "identity-file", "", "age identity for age-encrypted batches")
	flagSet.Usage = func() {
		fmt.Fprintln(stderr, "Usage: spool-agent inspect [flags] BATCH-FILE-OR-DIRECTORY...")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() == 0 {
		return errors.New("inspect needs at least one batch file or directory")
	}

	switch {
	case encryption.KeyFile != "" && encryption.IdentityFile != "":
		return errors.New("--key-file and --identity-file are mutually exclusive")
	case encryption.KeyFile != "":
		encryption.Mode = config.EncryptionAEAD
	case encryption.IdentityFile != "":
		encryption.Mode = config.EncryptionAge
	default:
		encryption.Mode = config.EncryptionNone
	}
	decrypter, release, err := loadEncryption(encryption)
	if err != nil {
		return err
	}
	defer release()

	paths, err := batchPaths(flagSet.Args())
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(stdout)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		result := storage.Decode(data, decrypter)
		name := filepath.Base(path)
		for index, event := range result.Events {
			line := inspectedEvent{Batch: name, Index: index, Event: event.Data}
			if !json.Valid(event.Data) {
				quoted, _ := json.Marshal(string(event.Data))
				line.Event = quoted
			}
			if len(event.Metadata) > 0 {
				line.Metadata, err = codec.Diagnose(event.Metadata)
				if err != nil {
					line.Metadata = fmt.Sprintf("<undecodable: %v>", err)
				}
			}
			if err := encoder.Encode(line); err != nil {
				return err
			}
		}
		if result.Skipped > 0 || result.TrailingBytes > 0 {
			fmt.Fprintf(stderr, "%s: %d events, %d undecodable, %d trailing bytes\n",
				path, len(result.Events), result.Skipped, result.TrailingBytes)
		}
	}
	return nil
}

// batchPaths expands directories into their batch files, oldest first.
func batchPaths(arguments []string) ([]string, error) {
	var paths []string
	for _, argument := range arguments {
		info, err := os.Stat(argument)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, argument)
			continue
		}
		entries, err := os.ReadDir(argument)
		if err != nil {
			return nil, err
		}
		var files []string
		for _, entry := range entries {
			if entry.Type().IsRegular() {
				files = append(files, entry.Name())
			}
		}
		// Batch names are creation milliseconds with no leading
		// zeros, so shorter sorts first.
		slices.SortFunc(files, func(a, b string) int {
			return cmp.Or(cmp.Compare(len(a), len(b)), strings.Compare(a, b))
		})
		for _, file := range files {
			paths = append(paths, filepath.Join(argument, file))
		}
	}
	return paths, nil
}
