// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies why an upload did not succeed.
type ErrorKind string

const (
	// ErrorUnauthorized: the intake rejected the credentials. Retrying
	// with the same token cannot help.
	ErrorUnauthorized ErrorKind = "unauthorized"
	// ErrorHTTP: the intake failed on its side (5xx).
	ErrorHTTP ErrorKind = "http_error"
	// ErrorNetwork: the request never got a response.
	ErrorNetwork ErrorKind = "network_error"
)

// Status is the outcome of one upload attempt.
type Status struct {
	// NeedsRetry keeps the batch for a later attempt. When false the
	// batch is deleted whether or not it was accepted.
	NeedsRetry bool

	// ResponseCode is the HTTP status, zero when no response arrived.
	ResponseCode int

	// RequestID is the identifier sent with the request, if any.
	RequestID string

	// Error is set when the attempt failed in a way worth reporting.
	Error *UploadError
}

// UploadError carries the failure class and, for network and server
// failures, the underlying detail.
type UploadError struct {
	Kind ErrorKind
	Code int
	Err  error
}

func (e *UploadError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Code != 0:
		return fmt.Sprintf("%s: status %d", e.Kind, e.Code)
	default:
		return string(e.Kind)
	}
}

func (e *UploadError) Unwrap() error { return e.Err }

// Accepted reports whether the intake took the batch.
func (s Status) Accepted() bool {
	return s.ResponseCode >= 200 && s.ResponseCode < 300
}

// UserDebugDescription summarizes the attempt for log lines a human
// will read.
func (s Status) UserDebugDescription() string {
	if s.ResponseCode == 0 {
		if s.Error != nil {
			return fmt.Sprintf("[error: %v, request ID: %s]", s.Error, orNone(s.RequestID))
		}
		return fmt.Sprintf("[no response, request ID: %s]", orNone(s.RequestID))
	}
	return fmt.Sprintf("[response code: %d (%s), request ID: %s]",
		s.ResponseCode, http.StatusText(s.ResponseCode), orNone(s.RequestID))
}

func orNone(value string) string {
	if value == "" {
		return "(null)"
	}
	return value
}

// statusForResponse classifies an intake response.
//
// 408 and 429 are the intake asking the client to slow down, so they
// are retried along with 5xx. Every other 4xx means the batch itself
// is unacceptable and resending it would fail the same way.
func statusForResponse(code int, requestID string) Status {
	status := Status{ResponseCode: code, RequestID: requestID}
	switch {
	case code >= 200 && code < 300:
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		status.Error = &UploadError{Kind: ErrorUnauthorized, Code: code}
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
		status.NeedsRetry = true
	case code >= 400 && code < 500:
	case code >= 500:
		status.NeedsRetry = true
		status.Error = &UploadError{Kind: ErrorHTTP, Code: code}
	default:
		// 1xx and 3xx never reach us through net/http in practice.
		// Treat them as a server problem rather than drop data.
		status.NeedsRetry = true
		status.Error = &UploadError{Kind: ErrorHTTP, Code: code}
	}
	return status
}

func statusForNetworkError(err error, requestID string) Status {
	return Status{
		NeedsRetry: true,
		RequestID:  requestID,
		Error:      &UploadError{Kind: ErrorNetwork, Err: err},
	}
}
