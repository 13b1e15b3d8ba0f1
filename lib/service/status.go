// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusConfig configures NewStatusHandler. Every field is optional;
// a nil field leaves its route reporting 404.
type StatusConfig struct {
	// Gatherer backs /metrics.
	Gatherer prometheus.Gatherer

	// Health backs /healthz. A non-nil error turns the probe into a
	// 503 carrying the error text.
	Health func() error

	// Status backs /status. The value is encoded as JSON.
	Status func() any
}

// NewStatusHandler returns the agent's operator routes.
func NewStatusHandler(config StatusConfig) http.Handler {
	mux := http.NewServeMux()
	if config.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}))
	}
	if config.Health != nil {
		mux.HandleFunc("GET /healthz", func(writer http.ResponseWriter, request *http.Request) {
			if err := config.Health(); err != nil {
				http.Error(writer, err.Error(), http.StatusServiceUnavailable)
				return
			}
			writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
			writer.Write([]byte("ok\n"))
		})
	}
	if config.Status != nil {
		mux.HandleFunc("GET /status", func(writer http.ResponseWriter, request *http.Request) {
			body, err := json.MarshalIndent(config.Status(), "", "  ")
			if err != nil {
				http.Error(writer, "encoding status: "+err.Error(), http.StatusInternalServerError)
				return
			}
			writer.Header().Set("Content-Type", "application/json")
			writer.Write(append(body, '\n'))
		})
	}
	return mux
}
