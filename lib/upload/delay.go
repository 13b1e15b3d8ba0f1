// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DelayConfig bounds the adaptive interval between upload attempts.
type DelayConfig struct {
	Initial time.Duration `yaml:"initial"`
	Min     time.Duration `yaml:"min"`
	Max     time.Duration `yaml:"max"`

	// ChangeRate is the fraction by which the delay grows after an
	// unproductive tick and shrinks after a delivered batch.
	ChangeRate float64 `yaml:"change_rate"`
}

// Validate checks that the bounds are ordered and the rate is usable.
func (c DelayConfig) Validate() error {
	var errs []error
	if c.Min <= 0 {
		errs = append(errs, errors.New("min delay must be positive"))
	}
	if c.Max < c.Min {
		errs = append(errs, fmt.Errorf("max delay %v is below min delay %v", c.Max, c.Min))
	}
	if c.Initial < c.Min || c.Initial > c.Max {
		errs = append(errs, fmt.Errorf("initial delay %v is outside [%v, %v]", c.Initial, c.Min, c.Max))
	}
	if c.ChangeRate <= 0 || c.ChangeRate >= 1 {
		errs = append(errs, fmt.Errorf("change rate %v must be in (0, 1)", c.ChangeRate))
	}
	return errors.Join(errs...)
}

// Frequency selects how eagerly batches are uploaded.
type Frequency string

const (
	FrequencyFrequent Frequency = "frequent"
	FrequencyAverage  Frequency = "average"
	FrequencyRare     Frequency = "rare"
)

// DelayFor returns the preset delay bounds for a frequency. The
// worker starts at five times the minimum and backs off to at most
// ten times it.
func DelayFor(frequency Frequency) (DelayConfig, error) {
	var minimum time.Duration
	switch frequency {
	case FrequencyFrequent:
		minimum = 500 * time.Millisecond
	case FrequencyAverage:
		minimum = 2 * time.Second
	case FrequencyRare:
		minimum = 5 * time.Second
	default:
		return DelayConfig{}, fmt.Errorf("unknown upload frequency %q (want frequent, average or rare)", frequency)
	}
	return DelayConfig{
		Initial:    5 * minimum,
		Min:        minimum,
		Max:        10 * minimum,
		ChangeRate: 0.1,
	}, nil
}

// Delay is the current upload interval. The worker goroutine moves it;
// other goroutines may read it for diagnostics.
type Delay struct {
	config DelayConfig

	mu      sync.Mutex
	current time.Duration
}

// NewDelay returns a Delay starting at config.Initial.
func NewDelay(config DelayConfig) (*Delay, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("upload: invalid delay: %w", err)
	}
	return &Delay{config: config, current: config.Initial}, nil
}

// Current returns the interval before the next attempt.
func (d *Delay) Current() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Increase backs off, never past Max.
func (d *Delay) Increase() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = min(time.Duration(float64(d.current)*(1+d.config.ChangeRate)), d.config.Max)
}

// Decrease speeds up, never below Min.
func (d *Delay) Decrease() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = max(time.Duration(float64(d.current)*(1-d.config.ChangeRate)), d.config.Min)
}
