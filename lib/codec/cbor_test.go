// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type eventMetadata struct {
	SessionID string    `cbor:"session_id"`
	Sampled   bool      `cbor:"sampled"`
	Timestamp time.Time `cbor:"timestamp"`
}

func TestMetadataRoundtrip(t *testing.T) {
	original := eventMetadata{
		SessionID: "b1c3",
		Sampled:   true,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !Valid(data) {
		t.Fatal("Marshal output is not well-formed CBOR")
	}

	var decoded eventMetadata
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.SessionID != original.SessionID || decoded.Sampled != original.Sampled {
		t.Errorf("decoded %+v, want %+v", decoded, original)
	}
	if !decoded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("timestamp = %v, want %v", decoded.Timestamp, original.Timestamp)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	// Map iteration order is random; deterministic encoding must hide it.
	value := map[string]any{"z": 1, "a": 2, "m": "three"}
	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 20 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("two encodings of the same map differ")
		}
	}
}

func TestUnmarshalIntoAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"source": "logs", "nested": map[string]any{"k": "v"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	top, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type %T, want map[string]any", decoded)
	}
	if _, ok := top["nested"].(map[string]any); !ok {
		t.Fatalf("nested type %T, want map[string]any", top["nested"])
	}
}

func TestValidRejectsTruncated(t *testing.T) {
	data, err := Marshal(map[string]string{"key": "value"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if Valid(data[:len(data)-2]) {
		t.Fatal("truncated CBOR reported as valid")
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]int{"count": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(diagnostic, `"count": 3`) {
		t.Errorf("Diagnose = %q, want it to contain %q", diagnostic, `"count": 3`)
	}
}
