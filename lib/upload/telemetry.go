// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"log/slog"
)

// Telemetry receives the SDK's reports about its own health. Workers
// behave the same whichever sink is installed.
type Telemetry interface {
	Error(message string, err error)
	Debug(message string, attributes ...any)
	Metric(name string, attributes ...any)
}

// NOPTelemetry discards everything.
type NOPTelemetry struct{}

func (NOPTelemetry) Error(string, error)   {}
func (NOPTelemetry) Debug(string, ...any)  {}
func (NOPTelemetry) Metric(string, ...any) {}

// LogTelemetry writes telemetry to a structured logger. Errors render
// as "<message> - <error>" so the line reads on its own.
type LogTelemetry struct {
	Logger *slog.Logger
}

func (t LogTelemetry) Error(message string, err error) {
	if err != nil {
		message = message + " - " + err.Error()
	}
	t.Logger.Error(message, "telemetry", "error")
}

func (t LogTelemetry) Debug(message string, attributes ...any) {
	t.Logger.Debug(message, append([]any{"telemetry", "debug"}, attributes...)...)
}

func (t LogTelemetry) Metric(name string, attributes ...any) {
	t.Logger.Log(context.Background(), slog.LevelInfo, name, append([]any{"telemetry", "metric"}, attributes...)...)
}
