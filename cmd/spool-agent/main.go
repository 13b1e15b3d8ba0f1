// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/spool/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches to a subcommand. Everything the process touches
// comes in through the arguments so tests can drive it.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) > 0 && args[0] == "--version" {
		version.Print(stdout, "spool-agent")
		return nil
	}

	command := "run"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	switch command {
	case "run":
		return runAgent(ctx, args, stdin, stderr)
	case "inspect":
		return runInspect(args, stdout, stderr)
	case "keygen":
		return runKeygen(args, stdout, stderr)
	case "version":
		version.Print(stdout, "spool-agent")
		return nil
	default:
		return fmt.Errorf("unknown command %q (want run, inspect, keygen or version)", command)
	}
}
