// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Spool-agent is a store-and-forward telemetry agent. Local producers
// hand it events; it persists them to per-feature batch files and
// uploads the batches to the intake on an adaptive schedule, backing
// off while the intake or the network is unhappy and holding uploads
// while the host is on a low battery.
//
// Events arrive as NDJSON, one object per line:
//
//	{"feature": "rum", "event": {...}, "metadata": {...}}
//
// from stdin, a file, or connections on a Unix socket (--socket).
// The event is sent to the intake verbatim; the optional metadata is
// kept beside it on disk for the uploader and never sent.
//
// Subcommands:
//
//	spool-agent [run] [flags]      run the agent (default)
//	spool-agent inspect [flags] PATH...
//	                               decode batch files to stdout
//	spool-agent keygen --mode aead|age --out FILE
//	                               create an at-rest encryption key
//
// On SIGINT or SIGTERM the agent stops reading input, uploads every
// batch it holds (unless --no-flush-on-exit), and exits. Batches that
// could not be delivered stay on disk for the next run.
//
// With --status-address (or agent.status_address in the config file)
// the agent serves Prometheus metrics at /metrics, a health probe at
// /healthz, and per-feature state at /status.
package main
