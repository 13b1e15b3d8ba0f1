// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spool

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/spool/lib/clock"
	"github.com/bureau-foundation/spool/lib/storage"
	"github.com/bureau-foundation/spool/lib/testutil"
	"github.com/bureau-foundation/spool/lib/upload"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeUploader struct {
	mu     sync.Mutex
	events []string
	status upload.Status
}

func (u *fakeUploader) Upload(_ context.Context, events []storage.Event, _ upload.Context) (upload.Status, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, event := range events {
		u.events = append(u.events, string(event.Data))
	}
	return u.status, nil
}

func (u *fakeUploader) uploaded() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return slices.Clone(u.events)
}

type recordingTelemetry struct {
	upload.NOPTelemetry
	mu      sync.Mutex
	metrics []string
}

func (r *recordingTelemetry) Metric(name string, attributes ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fields := []string{name}
	for _, attribute := range attributes {
		fields = append(fields, fmt.Sprint(attribute))
	}
	r.metrics = append(r.metrics, strings.Join(fields, " "))
}

func (r *recordingTelemetry) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.metrics)
}

type fixture struct {
	core      *Core
	clock     *clock.FakeClock
	directory string
	telemetry *recordingTelemetry
	registry  *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:     clock.Fake(testEpoch),
		directory: t.TempDir(),
		telemetry: &recordingTelemetry{},
		registry:  prometheus.NewRegistry(),
	}
	core, err := New(Config{
		Directory: f.directory,
		Performance: storage.Performance{
			MaxFileSize:        1 << 20,
			MaxFileAgeForWrite: 500 * time.Millisecond,
			MinFileAgeForRead:  time.Second,
			MaxFileAgeForRead:  time.Hour,
			MaxObjectsInFile:   100,
			MaxObjectSize:      64 << 10,
		},
		Admission: upload.AlwaysAdmit{},
		Telemetry: f.telemetry,
		Metrics:   upload.NewMetrics(f.registry),
		Clock:     f.clock,
		Logger:    testutil.Logger(t),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.core = core
	t.Cleanup(core.Stop)
	return f
}

func testDelay() upload.DelayConfig {
	return upload.DelayConfig{
		Initial:    time.Second,
		Min:        500 * time.Millisecond,
		Max:        4 * time.Second,
		ChangeRate: 0.1,
	}
}

func (f *fixture) register(t *testing.T, name string) *fakeUploader {
	t.Helper()
	uploader := &fakeUploader{status: upload.Status{ResponseCode: 202}}
	if err := f.core.Register(FeatureConfig{Name: name, Uploader: uploader, Delay: testDelay()}); err != nil {
		t.Fatalf("Register(%q): %v", name, err)
	}
	return uploader
}

func TestFlushUploadsEverything(t *testing.T) {
	f := newFixture(t)
	rum := f.register(t, "rum")
	logs := f.register(t, "logs")

	f.core.Writer("rum").Write(map[string]int{"view": 1}, nil)
	f.core.Writer("rum").Write(map[string]int{"view": 2}, map[string]string{"session": "s1"})
	f.core.Writer("logs").Write(map[string]string{"message": "hello"}, nil)

	// No time passes: the batches are still open and unsettled.
	f.core.Flush()

	if got, want := rum.uploaded(), []string{`{"view":1}`, `{"view":2}`}; !slices.Equal(got, want) {
		t.Errorf("rum uploads = %v, want %v", got, want)
	}
	if got, want := logs.uploaded(), []string{`{"message":"hello"}`}; !slices.Equal(got, want) {
		t.Errorf("logs uploads = %v, want %v", got, want)
	}
	for _, name := range []string{"rum", "logs"} {
		if files := testutil.ListDir(t, filepath.Join(f.directory, name)); len(files) != 0 {
			t.Errorf("%s directory still holds %v", name, files)
		}
	}

	expected := `
# HELP spool_batches_deleted_total Batch files removed, by feature and reason.
# TYPE spool_batches_deleted_total counter
spool_batches_deleted_total{feature="logs",reason="flushed"} 1
spool_batches_deleted_total{feature="rum",reason="flushed"} 1
`
	if err := promtestutil.GatherAndCompare(f.registry, strings.NewReader(expected), "spool_batches_deleted_total"); err != nil {
		t.Error(err)
	}
	metrics := f.telemetry.recorded()
	if len(metrics) != 2 || !strings.HasPrefix(metrics[0], "Batch Deleted") || !strings.Contains(metrics[0], "flushed") {
		t.Errorf("telemetry metrics = %q", metrics)
	}
}

func TestScheduledUpload(t *testing.T) {
	f := newFixture(t)
	uploader := f.register(t, "traces")
	f.clock.WaitForTimers(1)

	writer := f.core.Writer("traces")
	writer.Write(map[string]string{"span": "a"}, nil)
	writer.(*storage.AsyncWriter).Flush()

	// The worker wakes after its initial delay, by which time the
	// batch has settled.
	f.clock.Advance(time.Second)
	f.clock.WaitForTimers(1)

	if got := uploader.uploaded(); !slices.Equal(got, []string{`{"span":"a"}`}) {
		t.Fatalf("uploads = %v", got)
	}
	if files := testutil.ListDir(t, filepath.Join(f.directory, "traces")); len(files) != 0 {
		t.Errorf("accepted batch not deleted: %v", files)
	}
	if delay, ok := f.core.UploadDelay("traces"); !ok || delay != 900*time.Millisecond {
		t.Errorf("UploadDelay = %s, %v; want 900ms after a success", delay, ok)
	}
}

func TestWriterForUnknownFeature(t *testing.T) {
	f := newFixture(t)
	f.register(t, "rum")
	if _, ok := f.core.Writer("crash").(storage.NOPWriter); !ok {
		t.Error("unknown feature did not get a NOPWriter")
	}
	if _, ok := f.core.Writer("rum").(*storage.AsyncWriter); !ok {
		t.Error("registered feature did not get its AsyncWriter")
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	f.register(t, "rum")
	uploader := &fakeUploader{}

	tests := []struct {
		name   string
		config FeatureConfig
		want   string
	}{
		{"no name", FeatureConfig{Uploader: uploader, Delay: testDelay()}, "name is required"},
		{"path name", FeatureConfig{Name: "a/b", Uploader: uploader, Delay: testDelay()}, "plain directory name"},
		{"dot dot", FeatureConfig{Name: "..", Uploader: uploader, Delay: testDelay()}, "plain directory name"},
		{"no uploader", FeatureConfig{Name: "logs", Delay: testDelay()}, "no uploader"},
		{"duplicate", FeatureConfig{Name: "rum", Uploader: uploader, Delay: testDelay()}, "already registered"},
		{"bad delay", FeatureConfig{Name: "logs", Uploader: uploader}, "logs"},
		{"bad performance", FeatureConfig{
			Name: "logs", Uploader: uploader, Delay: testDelay(),
			Performance: &storage.Performance{},
		}, "invalid performance"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := f.core.Register(test.config)
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Fatalf("Register error = %v, want it to mention %q", err, test.want)
			}
		})
	}
	if got := f.core.Features(); !slices.Equal(got, []string{"rum"}) {
		t.Errorf("Features = %v after failed registrations", got)
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Fatal("New with empty config succeeded")
	}
	for _, want := range []string{"directory", "clock", "logger"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestStop(t *testing.T) {
	f := newFixture(t)
	uploader := f.register(t, "rum")
	writer := f.core.Writer("rum")
	writer.Write(map[string]int{"n": 1}, nil)

	f.core.Stop()
	f.core.Stop()

	// The queued event was written out and stays for the next run.
	if files := testutil.ListDir(t, filepath.Join(f.directory, "rum")); len(files) != 1 {
		t.Errorf("files after Stop = %v, want one batch", files)
	}
	f.clock.Advance(time.Minute)
	if got := uploader.uploaded(); len(got) != 0 {
		t.Errorf("uploads after Stop = %v", got)
	}
	if err := f.core.Register(FeatureConfig{Name: "logs", Uploader: uploader, Delay: testDelay()}); !errors.Is(err, ErrStopped) {
		t.Errorf("Register after Stop = %v, want ErrStopped", err)
	}
	if _, ok := f.core.Writer("rum").(storage.NOPWriter); !ok {
		t.Error("Writer after Stop is not a NOPWriter")
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.register(t, "rum")
	f.register(t, "logs")
	writer := f.core.Writer("rum")
	writer.Write(map[string]int{"n": 1}, nil)
	writer.(*storage.AsyncWriter).Flush()

	statuses := f.core.Status()
	if len(statuses) != 2 || statuses[0].Name != "logs" || statuses[1].Name != "rum" {
		t.Fatalf("Status = %+v", statuses)
	}
	rum := statuses[1]
	if rum.Batches != 1 || rum.Bytes == 0 {
		t.Errorf("rum status = %+v, want one non-empty batch", rum)
	}
	if rum.DelaySeconds != 1 {
		t.Errorf("rum delay = %v, want the initial 1s", rum.DelaySeconds)
	}
	if _, ok := f.core.UploadDelay("missing"); ok {
		t.Error("UploadDelay reported an unknown feature")
	}
}
