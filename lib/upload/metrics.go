// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus series the upload path maintains. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	uploads         *prometheus.CounterVec
	uploadDuration  *prometheus.HistogramVec
	batchesDeleted  *prometheus.CounterVec
	blocked         *prometheus.CounterVec
	delaySeconds    *prometheus.GaugeVec
	backgroundTasks prometheus.Gauge
}

// Outcome labels for spool_uploads_total.
const (
	OutcomeAccepted   = "accepted"
	OutcomeRetry      = "retry"
	OutcomeRejected   = "rejected"
	OutcomeBuildError = "build_error"
)

// NewMetrics registers the upload series with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spool_uploads_total",
			Help: "Upload attempts by feature and outcome.",
		}, []string{"feature", "outcome"}),
		uploadDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spool_upload_duration_seconds",
			Help:    "Time from request start to response for upload attempts.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"feature"}),
		batchesDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spool_batches_deleted_total",
			Help: "Batch files removed, by feature and reason.",
		}, []string{"feature", "reason"}),
		blocked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spool_upload_blocked_total",
			Help: "Ticks skipped because an admission condition failed.",
		}, []string{"feature", "blocker"}),
		delaySeconds: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spool_upload_delay_seconds",
			Help: "Current interval before the next upload attempt.",
		}, []string{"feature"}),
		backgroundTasks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "spool_background_tasks",
			Help: "Upload background tasks currently held open.",
		}),
	}
}

func (m *Metrics) observeUpload(feature, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(feature, outcome).Inc()
	if elapsed > 0 {
		m.uploadDuration.WithLabelValues(feature).Observe(elapsed.Seconds())
	}
}

// BatchDeleted counts one removed batch. Exported so the storage
// layer's deletion hook can report purges and expiries too.
func (m *Metrics) BatchDeleted(feature, reason string) {
	if m == nil {
		return
	}
	m.batchesDeleted.WithLabelValues(feature, reason).Inc()
}

func (m *Metrics) observeBlocked(feature string, blockers []Blocker) {
	if m == nil {
		return
	}
	for _, blocker := range blockers {
		m.blocked.WithLabelValues(feature, string(blocker)).Inc()
	}
}

func (m *Metrics) setDelay(feature string, delay time.Duration) {
	if m == nil {
		return
	}
	m.delaySeconds.WithLabelValues(feature).Set(delay.Seconds())
}

func (m *Metrics) backgroundTaskStarted() {
	if m == nil {
		return
	}
	m.backgroundTasks.Inc()
}

func (m *Metrics) backgroundTaskEnded() {
	if m == nil {
		return
	}
	m.backgroundTasks.Dec()
}
