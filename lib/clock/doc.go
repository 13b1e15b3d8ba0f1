// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used across spool.
//
// The upload worker schedules every tick with AfterFunc and the batch
// orchestrator derives file ages from Now, so both are fully
// deterministic under the fake clock:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	worker := upload.NewWorker(upload.WorkerConfig{Clock: c, ...})
//	c.WaitForTimers(1)          // the worker has scheduled its first tick
//	c.Advance(10 * time.Second) // fire it
//
// Only Now, After and AfterFunc are offered. Nothing in spool needs a
// ticker or a blocking sleep: periodic work reschedules itself.
package clock
