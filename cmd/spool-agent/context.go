// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/bureau-foundation/spool/lib/config"
	"github.com/bureau-foundation/spool/lib/hostinfo"
	"github.com/bureau-foundation/spool/lib/upload"
	"github.com/bureau-foundation/spool/lib/version"
)

// hostProbes reads the device state that admission conditions use.
type hostProbes struct {
	power   func() hostinfo.PowerStatus
	network func() hostinfo.NetworkState
}

func defaultHostProbes() *hostProbes {
	return &hostProbes{
		power:   hostinfo.ReadPowerStatus,
		network: hostinfo.ReadNetworkState,
	}
}

// contextProvider combines the configured sender identity with a
// fresh host reading on every call.
func (p *hostProbes) contextProvider(identity config.IntakeConfig) upload.ContextProvider {
	return func() upload.Context {
		return upload.Context{
			Service:         identity.Service,
			Env:             identity.Env,
			Version:         identity.Version,
			Source:          identity.Source,
			SDKVersion:      version.Version,
			ApplicationName: identity.Service,
			Device:          "linux",
			Battery:         batteryStatus(p.power()),
			Network:         reachability(p.network()),
		}
	}
}

func batteryStatus(power hostinfo.PowerStatus) *upload.BatteryStatus {
	if !power.BatteryPresent {
		return nil
	}
	status := &upload.BatteryStatus{
		Level:        power.Level,
		LowPowerMode: power.LowPowerMode,
	}
	switch {
	case power.State == hostinfo.ChargeFull:
		status.State = upload.BatteryFull
	case power.State == hostinfo.ChargeCharging, power.ExternalPower:
		status.State = upload.BatteryCharging
	case power.State == hostinfo.ChargeDischarging, power.State == hostinfo.ChargeNotCharging:
		status.State = upload.BatteryUnplugged
	default:
		status.State = upload.BatteryUnknown
	}
	return status
}

func reachability(state hostinfo.NetworkState) upload.NetworkReachability {
	switch state {
	case hostinfo.NetworkUp:
		return upload.ReachabilityYes
	case hostinfo.NetworkDown:
		return upload.ReachabilityNo
	default:
		return upload.ReachabilityMaybe
	}
}
