// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the agent's local HTTP surface.
//
// [HTTPServer] owns a TCP listener and its graceful shutdown; callers
// supply the handler. [NewStatusHandler] builds the handler the agent
// serves: Prometheus metrics, a health probe, and a JSON snapshot of
// each feature's upload state for operators.
//
// The surface is meant for loopback or a private network. It carries
// no authentication.
package service
