// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/bureau-foundation/spool/lib/intake"
	"github.com/bureau-foundation/spool/lib/testutil"
)

func TestVersion(t *testing.T) {
	for _, args := range [][]string{{"--version"}, {"version"}} {
		var stdout bytes.Buffer
		if err := run(context.Background(), args, nil, &stdout, io.Discard); err != nil {
			t.Fatalf("run(%v): %v", args, err)
		}
		if !strings.HasPrefix(stdout.String(), "spool-agent ") {
			t.Errorf("run(%v) printed %q", args, stdout.String())
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"frobnicate"}, nil, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), `unknown command "frobnicate"`) {
		t.Fatalf("run error = %v", err)
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--log-level", "loud"}, "--log-level"},
		{[]string{"--config", "/nonexistent/spool.yaml"}, "/nonexistent/spool.yaml"},
		{[]string{"run", "extra"}, "unexpected argument: extra"},
	}
	for _, test := range tests {
		err := run(context.Background(), test.args, nil, io.Discard, io.Discard)
		if err == nil || !strings.Contains(err.Error(), test.want) {
			t.Errorf("run(%v) error = %v, want it to mention %q", test.args, err, test.want)
		}
	}
}

// intakeRecorder is a local intake that accepts everything.
type intakeRecorder struct {
	mu     sync.Mutex
	bodies map[string][]string
}

func (r *intakeRecorder) ServeHTTP(w http.ResponseWriter, request *http.Request) {
	var body io.Reader = request.Body
	if request.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(request.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body = gzipReader
	}
	data, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if request.Header.Get(intake.HeaderAPIKey) != "test-client-token" {
		http.Error(w, "bad token", http.StatusForbidden)
		return
	}
	r.mu.Lock()
	r.bodies[request.URL.Path] = append(r.bodies[request.URL.Path], string(data))
	r.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func (r *intakeRecorder) received(path string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.bodies[path])
}

func TestRunAgentEndToEnd(t *testing.T) {
	recorder := &intakeRecorder{bodies: make(map[string][]string)}
	server := httptest.NewServer(recorder)
	t.Cleanup(server.Close)

	directory := t.TempDir()
	testutil.WriteFile(t, filepath.Join(directory, "token"), []byte("test-client-token\n"))
	if err := run(context.Background(), []string{"keygen", "--out", filepath.Join(directory, "master.key")}, nil, io.Discard, io.Discard); err != nil {
		t.Fatalf("keygen: %v", err)
	}
	configPath := filepath.Join(directory, "spool.yaml")
	testutil.WriteFile(t, configPath, []byte(`
storage:
  directory: `+filepath.Join(directory, "data")+`
  batch_size: small
  compress: true
  overrides:
    min_free_disk_space: 1
intake:
  endpoint: `+server.URL+`
  client_token_file: ${SPOOL_ROOT}/../token
  encoding: gzip
  service: checkout
encryption:
  mode: aead
  key_file: `+filepath.Join(directory, "master.key")+`
agent:
  status_address: 127.0.0.1:0
features:
  - name: rum
    format: ndjson
  - name: logs
    format: json_array
  - name: crash
    format: ndjson
    enabled: false
`))

	input := strings.Join([]string{
		`{"feature":"rum","event":{"view":"home"},"metadata":{"session":"s1"}}`,
		`{"feature":"logs","event":{"message":"started"}}`,
		`not json at all`,
		`{"feature":"crash","event":{"signal":11}}`,
		`{"feature":"rum","event":{"view":"cart"}}`,
		``,
		`{"feature":"logs","event":{"message":"stopped"}}`,
	}, "\n")

	var stderr bytes.Buffer
	err := run(context.Background(), []string{"--config", configPath, "--log-level", "debug"},
		strings.NewReader(input), io.Discard, &stderr)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, stderr.String())
	}

	if got, want := recorder.received("/api/v2/rum"), []string{"{\"view\":\"home\"}\n{\"view\":\"cart\"}"}; !slices.Equal(got, want) {
		t.Errorf("rum bodies = %q, want %q", got, want)
	}
	if got, want := recorder.received("/api/v2/logs"), []string{`[{"message":"started"},{"message":"stopped"}]`}; !slices.Equal(got, want) {
		t.Errorf("logs bodies = %q, want %q", got, want)
	}
	if got := recorder.received("/api/v2/crash"); len(got) != 0 {
		t.Errorf("disabled feature uploaded %q", got)
	}

	log := stderr.String()
	for _, want := range []string{"accepted=4", "rejected=2", "is not configured"} {
		if !strings.Contains(log, want) {
			t.Errorf("log missing %q:\n%s", want, log)
		}
	}
	for _, feature := range []string{"rum", "logs"} {
		entries, err := os.ReadDir(filepath.Join(directory, "data", feature))
		if err != nil {
			t.Fatalf("reading %s directory: %v", feature, err)
		}
		if len(entries) != 0 {
			t.Errorf("%s still holds %d batches after the exit flush", feature, len(entries))
		}
	}
}

func TestRunAgentFlushesEverythingAcceptedAtShutdown(t *testing.T) {
	recorder := &intakeRecorder{bodies: make(map[string][]string)}
	server := httptest.NewServer(recorder)
	t.Cleanup(server.Close)

	directory := t.TempDir()
	testutil.WriteFile(t, filepath.Join(directory, "token"), []byte("test-client-token"))
	configPath := filepath.Join(directory, "spool.yaml")
	testutil.WriteFile(t, configPath, []byte(`
storage:
  directory: `+filepath.Join(directory, "data")+`
  batch_size: small
  overrides:
    min_free_disk_space: 1
intake:
  endpoint: `+server.URL+`
  client_token_file: `+filepath.Join(directory, "token")+`
features:
  - name: rum
    format: ndjson
`))
	var input strings.Builder
	for i := range 300 {
		fmt.Fprintf(&input, `{"feature":"rum","event":{"i":%d}}`+"\n", i)
	}
	inputPath := filepath.Join(directory, "events.ndjson")
	testutil.WriteFile(t, inputPath, []byte(input.String()))
	socketPath := filepath.Join(shortTempDir(t), "spool.sock")

	// With a socket the agent runs until cancelled, while the input
	// file may still be mid-read.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var stderr bytes.Buffer
	finished := make(chan error, 1)
	go func() {
		finished <- run(ctx, []string{"--config", configPath, "--input", inputPath, "--socket", socketPath},
			nil, io.Discard, &stderr)
	}()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := testutil.RequireReceive(t, finished, 30*time.Second, "agent did not stop"); err != nil {
		t.Fatalf("run: %v\n%s", err, stderr.String())
	}

	match := regexp.MustCompile(`accepted=(\d+)`).FindStringSubmatch(stderr.String())
	if match == nil {
		t.Fatalf("no accepted count in log:\n%s", stderr.String())
	}
	accepted, _ := strconv.Atoi(match[1])
	uploaded := 0
	for _, body := range recorder.received("/api/v2/rum") {
		uploaded += len(strings.Split(body, "\n"))
	}
	if uploaded != accepted {
		t.Errorf("uploaded %d events, agent accepted %d", uploaded, accepted)
	}
	if entries := testutil.ListDir(t, filepath.Join(directory, "data", "rum")); len(entries) != 0 {
		t.Errorf("batches left after the exit flush: %v", entries)
	}
}

func TestInspect(t *testing.T) {
	directory := t.TempDir()
	keyPath := filepath.Join(directory, "master.key")
	if err := run(context.Background(), []string{"keygen", "--mode", "aead", "--out", keyPath}, nil, io.Discard, io.Discard); err != nil {
		t.Fatalf("keygen: %v", err)
	}
	batches := filepath.Join(directory, "rum")
	writeTestBatches(t, batches, keyPath)

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"inspect", "--key-file", keyPath, batches}, nil, &stdout, &stderr); err != nil {
		t.Fatalf("inspect: %v\n%s", err, stderr.String())
	}

	var lines []inspectedEvent
	decoder := json.NewDecoder(&stdout)
	for decoder.More() {
		var line inspectedEvent
		if err := decoder.Decode(&line); err != nil {
			t.Fatalf("decoding inspect output: %v", err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 3 {
		t.Fatalf("inspect printed %d events, want 3: %+v", len(lines), lines)
	}
	if string(lines[0].Event) != `{"n":1}` || lines[0].Metadata != `{"session": "s1"}` {
		t.Errorf("first event = %s metadata %q", lines[0].Event, lines[0].Metadata)
	}
	if lines[2].Batch == lines[0].Batch || lines[2].Index != 0 {
		t.Errorf("third event should open the second batch: %+v", lines[2])
	}

	// Without the key the sealed payloads are shown as opaque strings.
	stdout.Reset()
	if err := run(context.Background(), []string{"inspect", batches}, nil, &stdout, io.Discard); err != nil {
		t.Fatalf("inspect without key: %v", err)
	}
	if strings.Contains(stdout.String(), `"n":1`) || strings.Count(stdout.String(), "\n") != 3 {
		t.Errorf("inspect without key printed:\n%s", stdout.String())
	}
}

func TestInspectArguments(t *testing.T) {
	if err := run(context.Background(), []string{"inspect"}, nil, io.Discard, io.Discard); err == nil {
		t.Error("inspect with no paths succeeded")
	}
	err := run(context.Background(), []string{"inspect", "--key-file", "a", "--identity-file", "b", "."}, nil, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("inspect with both keys = %v", err)
	}
}

func TestKeygen(t *testing.T) {
	directory := t.TempDir()

	agePath := filepath.Join(directory, "identity.txt")
	var stdout bytes.Buffer
	if err := run(context.Background(), []string{"keygen", "--mode", "age", "--out", agePath}, nil, &stdout, io.Discard); err != nil {
		t.Fatalf("keygen age: %v", err)
	}
	if !strings.Contains(stdout.String(), "public key: age1") {
		t.Errorf("keygen age output %q", stdout.String())
	}
	info, err := os.Stat(agePath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key file mode = %v, want 0600", info.Mode().Perm())
	}

	err = run(context.Background(), []string{"keygen", "--mode", "age", "--out", agePath}, nil, io.Discard, io.Discard)
	if err == nil {
		t.Error("keygen overwrote an existing key")
	}
	err = run(context.Background(), []string{"keygen", "--mode", "rot13", "--out", filepath.Join(directory, "x")}, nil, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "aead or age") {
		t.Errorf("keygen bad mode = %v", err)
	}
	if err := run(context.Background(), []string{"keygen"}, nil, io.Discard, io.Discard); err == nil {
		t.Error("keygen without --out succeeded")
	}
}
