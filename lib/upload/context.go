// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upload

// Context is an immutable snapshot of what the host knows at the
// moment an upload is attempted: who is sending, and the device state
// that admission conditions look at. A fresh snapshot is taken for
// every tick.
type Context struct {
	Service         string
	Env             string
	Version         string
	Source          string
	SDKVersion      string
	ApplicationName string
	Device          string

	// Battery is nil when the host has no battery or cannot read it.
	Battery *BatteryStatus

	Network NetworkReachability
}

// ContextProvider returns the current snapshot. Called on the worker
// goroutine.
type ContextProvider func() Context

// StaticContext returns a provider that always reports c.
func StaticContext(c Context) ContextProvider {
	return func() Context { return c }
}

// BatteryState is the charging state reported by the power supply.
type BatteryState string

const (
	BatteryUnknown   BatteryState = "unknown"
	BatteryUnplugged BatteryState = "unplugged"
	BatteryCharging  BatteryState = "charging"
	BatteryFull      BatteryState = "full"
)

// BatteryStatus is a battery reading.
type BatteryStatus struct {
	// Level is the charge fraction in [0, 1].
	Level        float64
	State        BatteryState
	LowPowerMode bool
}

// NetworkReachability is a coarse connectivity estimate.
type NetworkReachability string

const (
	ReachabilityYes   NetworkReachability = "yes"
	ReachabilityMaybe NetworkReachability = "maybe"
	ReachabilityNo    NetworkReachability = "no"
)
