// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bureau-foundation/spool/lib/netutil"
	"github.com/bureau-foundation/spool/lib/storage"
)

// RequestIDHeader carries the per-attempt request identifier.
const RequestIDHeader = "DD-REQUEST-ID"

// RequestBuilder turns a batch into an intake request. A returned
// error means this batch can never be sent.
type RequestBuilder interface {
	Request(events []storage.Event, uploadContext Context) (*http.Request, error)
}

// HTTPClient executes requests. *http.Client satisfies it.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Uploader sends one batch and reports how it went.
type Uploader interface {
	Upload(ctx context.Context, events []storage.Event, uploadContext Context) (Status, error)
}

// DataUploader is the HTTP Uploader.
type DataUploader struct {
	builder RequestBuilder
	client  HTTPClient
	logger  *slog.Logger
}

// NewDataUploader returns a DataUploader. Panics on nil arguments.
func NewDataUploader(builder RequestBuilder, client HTTPClient, logger *slog.Logger) *DataUploader {
	if builder == nil {
		panic("upload: NewDataUploader requires a request builder")
	}
	if client == nil {
		panic("upload: NewDataUploader requires an HTTP client")
	}
	if logger == nil {
		panic("upload: NewDataUploader requires a logger")
	}
	return &DataUploader{builder: builder, client: client, logger: logger}
}

// Upload builds and sends the request for events. The error return is
// reserved for request construction failures; everything that happens
// on the wire is described by the Status.
func (u *DataUploader) Upload(ctx context.Context, events []storage.Event, uploadContext Context) (Status, error) {
	request, err := u.builder.Request(events, uploadContext)
	if err != nil {
		return Status{}, err
	}
	if request == nil {
		return Status{}, errors.New("request builder returned no request")
	}
	request = request.WithContext(ctx)
	requestID := request.Header.Get(RequestIDHeader)

	response, err := u.client.Do(request)
	if err != nil {
		return statusForNetworkError(err, requestID), nil
	}

	status := statusForResponse(response.StatusCode, requestID)
	if !status.Accepted() {
		u.logger.Debug("intake did not accept upload",
			"status", response.StatusCode,
			"request_id", requestID,
			"body", netutil.ErrorBody(response.Body, 512),
		)
	}
	if err := netutil.DrainAndClose(response.Body); err != nil {
		u.logger.Debug("draining intake response failed", "error", fmt.Errorf("request %s: %w", requestID, err))
	}
	return status, nil
}
