// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package upload moves stored batches to the intake.
//
// A [Worker] owns one feature. Its goroutine wakes after the adaptive
// [Delay], checks the device [Admission] conditions against a fresh
// [Context] snapshot, takes the oldest batch from the storage reader,
// and hands it to an [Uploader]. The resulting [Status] decides the
// batch's fate: delivered or permanently rejected batches are deleted
// and the delay shrinks; batches worth retrying stay on disk and the
// delay grows. Batches whose request cannot even be built are deleted
// after an error report.
//
// [DataUploader] is the HTTP Uploader. It delegates request
// construction to a [RequestBuilder] (see package intake) and
// classifies the response.
//
// Failures never leave the package as errors. They are reported
// through [Telemetry], the worker's logger, and optional Prometheus
// [Metrics].
package upload
