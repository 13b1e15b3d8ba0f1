// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/spool/lib/storage"
	"github.com/bureau-foundation/spool/lib/testutil"
)

// staticBuilder posts the concatenated event data to url.
type staticBuilder struct {
	url string
	err error
}

func (b staticBuilder) Request(events []storage.Event, _ Context) (*http.Request, error) {
	if b.err != nil {
		return nil, b.err
	}
	var body bytes.Buffer
	for _, event := range events {
		body.Write(event.Data)
		body.WriteByte('\n')
	}
	request, err := http.NewRequest(http.MethodPost, b.url, &body)
	if err != nil {
		return nil, err
	}
	request.Header.Set(RequestIDHeader, "req-42")
	return request, nil
}

func TestDataUploaderClassifiesResponses(t *testing.T) {
	tests := []struct {
		code      int
		retry     bool
		errorKind ErrorKind
	}{
		{http.StatusAccepted, false, ""},
		{http.StatusOK, false, ""},
		{http.StatusBadRequest, false, ""},
		{http.StatusRequestEntityTooLarge, false, ""},
		{http.StatusUnauthorized, false, ErrorUnauthorized},
		{http.StatusForbidden, false, ErrorUnauthorized},
		{http.StatusRequestTimeout, true, ""},
		{http.StatusTooManyRequests, true, ""},
		{http.StatusInternalServerError, true, ErrorHTTP},
		{http.StatusServiceUnavailable, true, ErrorHTTP},
	}
	for _, test := range tests {
		t.Run(http.StatusText(test.code), func(t *testing.T) {
			received := make(chan string, 1)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				data, _ := io.ReadAll(r.Body)
				received <- string(data)
				w.WriteHeader(test.code)
				io.WriteString(w, `{"errors":["example"]}`)
			}))
			defer server.Close()

			uploader := NewDataUploader(staticBuilder{url: server.URL}, server.Client(), testutil.Logger(t))
			status, err := uploader.Upload(context.Background(), []storage.Event{{Data: []byte(`{"a":1}`)}}, Context{})
			if err != nil {
				t.Fatalf("Upload: %v", err)
			}
			if body := testutil.RequireReceive(t, received, 5*time.Second, "request body"); body != "{\"a\":1}\n" {
				t.Errorf("server received %q", body)
			}
			if status.ResponseCode != test.code || status.NeedsRetry != test.retry {
				t.Errorf("status = %+v, want code %d retry %v", status, test.code, test.retry)
			}
			if status.RequestID != "req-42" {
				t.Errorf("request ID = %q", status.RequestID)
			}
			var kind ErrorKind
			if status.Error != nil {
				kind = status.Error.Kind
			}
			if kind != test.errorKind {
				t.Errorf("error kind = %q, want %q", kind, test.errorKind)
			}
		})
	}
}

func TestDataUploaderNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	uploader := NewDataUploader(staticBuilder{url: url}, http.DefaultClient, testutil.Logger(t))
	status, err := uploader.Upload(context.Background(), []storage.Event{{Data: []byte("x")}}, Context{})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !status.NeedsRetry || status.Error == nil || status.Error.Kind != ErrorNetwork {
		t.Fatalf("status = %+v, want retryable network error", status)
	}
	if status.Error.Err == nil {
		t.Error("network error lost its cause")
	}
}

func TestDataUploaderBuildError(t *testing.T) {
	buildErr := errors.New("no client token")
	uploader := NewDataUploader(staticBuilder{err: buildErr}, http.DefaultClient, testutil.Logger(t))
	if _, err := uploader.Upload(context.Background(), nil, Context{}); !errors.Is(err, buildErr) {
		t.Fatalf("Upload error = %v, want %v", err, buildErr)
	}
}

func TestUserDebugDescription(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{Status{ResponseCode: 202, RequestID: "abc"}, "[response code: 202 (Accepted), request ID: abc]"},
		{Status{ResponseCode: 500}, "[response code: 500 (Internal Server Error), request ID: (null)]"},
		{statusForNetworkError(errors.New("timeout"), "r1"), "[error: network_error: timeout, request ID: r1]"},
	}
	for _, test := range tests {
		if got := test.status.UserDebugDescription(); got != test.want {
			t.Errorf("UserDebugDescription = %q, want %q", got, test.want)
		}
	}
}

func TestUploadErrorUnwraps(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	status := statusForNetworkError(cause, "")
	if !errors.Is(status.Error, cause) {
		t.Error("UploadError does not unwrap to its cause")
	}
	if got := (&UploadError{Kind: ErrorHTTP, Code: 502}).Error(); !strings.Contains(got, "502") {
		t.Errorf("Error() = %q, want the status code", got)
	}
}
