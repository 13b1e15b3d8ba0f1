// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import "fmt"

// Blocker names a reason an upload was not attempted.
type Blocker string

const (
	BlockerBattery      Blocker = "battery"
	BlockerLowPowerMode Blocker = "low_power_mode"
	BlockerNetwork      Blocker = "network"
)

// Admission decides whether the device is in a state to upload.
type Admission interface {
	// Blockers returns every reason to skip this tick. Empty means go.
	Blockers(Context) []Blocker
}

// DefaultMinBatteryLevel is the charge below which an unplugged
// device defers uploads.
const DefaultMinBatteryLevel = 0.1

// Conditions is the standard admission policy.
type Conditions struct {
	// MinBatteryLevel is the lowest charge fraction at which a device
	// running on battery still uploads.
	MinBatteryLevel float64
}

// Validate checks the battery threshold is a fraction.
func (c Conditions) Validate() error {
	if c.MinBatteryLevel < 0 || c.MinBatteryLevel > 1 {
		return fmt.Errorf("min battery level %v must be in [0, 1]", c.MinBatteryLevel)
	}
	return nil
}

// Blockers implements Admission. Missing battery information never
// blocks; a charging or full battery never blocks on level.
func (c Conditions) Blockers(ctx Context) []Blocker {
	var blockers []Blocker
	if battery := ctx.Battery; battery != nil {
		onBattery := battery.State == BatteryUnplugged || battery.State == BatteryUnknown
		if onBattery && battery.Level < c.MinBatteryLevel {
			blockers = append(blockers, BlockerBattery)
		}
		if battery.LowPowerMode {
			blockers = append(blockers, BlockerLowPowerMode)
		}
	}
	if ctx.Network == ReachabilityNo {
		blockers = append(blockers, BlockerNetwork)
	}
	return blockers
}

// AlwaysAdmit never blocks.
type AlwaysAdmit struct{}

func (AlwaysAdmit) Blockers(Context) []Blocker { return nil }
