// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"testing"
	"time"
)

func TestDelayIncreaseMonotonicAndClamped(t *testing.T) {
	delay, err := NewDelay(testDelayConfig())
	if err != nil {
		t.Fatalf("NewDelay: %v", err)
	}
	previous := delay.Current()
	for range 50 {
		delay.Increase()
		current := delay.Current()
		if current < previous {
			t.Fatalf("Increase moved delay down: %v -> %v", previous, current)
		}
		if current > 2*time.Second {
			t.Fatalf("delay %v exceeds max", current)
		}
		previous = current
	}
	if previous != 2*time.Second {
		t.Errorf("delay settled at %v, want max 2s", previous)
	}
}

func TestDelayDecreaseMonotonicAndClamped(t *testing.T) {
	delay, err := NewDelay(testDelayConfig())
	if err != nil {
		t.Fatalf("NewDelay: %v", err)
	}
	previous := delay.Current()
	for range 50 {
		delay.Decrease()
		current := delay.Current()
		if current > previous {
			t.Fatalf("Decrease moved delay up: %v -> %v", previous, current)
		}
		if current < 500*time.Millisecond {
			t.Fatalf("delay %v below min", current)
		}
		previous = current
	}
	if previous != 500*time.Millisecond {
		t.Errorf("delay settled at %v, want min 500ms", previous)
	}
}

func TestDelayStep(t *testing.T) {
	delay, err := NewDelay(testDelayConfig())
	if err != nil {
		t.Fatalf("NewDelay: %v", err)
	}
	delay.Increase()
	if got := delay.Current(); got != 1100*time.Millisecond {
		t.Errorf("after Increase = %v, want 1.1s", got)
	}
	delay.Decrease()
	if got := delay.Current(); got != 990*time.Millisecond {
		t.Errorf("after Decrease = %v, want 990ms", got)
	}
}

func TestDelayConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		config DelayConfig
	}{
		{"zero", DelayConfig{}},
		{"max below min", DelayConfig{Initial: time.Second, Min: time.Second, Max: time.Millisecond, ChangeRate: 0.1}},
		{"initial outside", DelayConfig{Initial: time.Hour, Min: time.Second, Max: time.Minute, ChangeRate: 0.1}},
		{"rate of one", DelayConfig{Initial: time.Second, Min: time.Second, Max: time.Minute, ChangeRate: 1}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := NewDelay(test.config); err == nil {
				t.Fatal("NewDelay accepted invalid config")
			}
		})
	}
}

func TestDelayForPresets(t *testing.T) {
	tests := []struct {
		frequency Frequency
		min       time.Duration
	}{
		{FrequencyFrequent, 500 * time.Millisecond},
		{FrequencyAverage, 2 * time.Second},
		{FrequencyRare, 5 * time.Second},
	}
	for _, test := range tests {
		config, err := DelayFor(test.frequency)
		if err != nil {
			t.Fatalf("DelayFor(%s): %v", test.frequency, err)
		}
		if config.Min != test.min || config.Initial != 5*test.min || config.Max != 10*test.min {
			t.Errorf("DelayFor(%s) = %+v", test.frequency, config)
		}
		if err := config.Validate(); err != nil {
			t.Errorf("preset %s invalid: %v", test.frequency, err)
		}
	}
	if _, err := DelayFor("hourly"); err == nil {
		t.Error("DelayFor(hourly) succeeded")
	}
}
