// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hostinfo

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ChargeState is the normalized power_supply "status" attribute.
type ChargeState string

const (
	ChargeUnknown     ChargeState = "unknown"
	ChargeCharging    ChargeState = "charging"
	ChargeDischarging ChargeState = "discharging"
	ChargeNotCharging ChargeState = "not_charging"
	ChargeFull        ChargeState = "full"
)

// PowerStatus is a snapshot of the host's power supplies.
type PowerStatus struct {
	// BatteryPresent is false on hosts without a battery; the other
	// battery fields are then zero.
	BatteryPresent bool

	// Level is the battery charge in [0, 1].
	Level float64

	State ChargeState

	// ExternalPower is true when any mains or USB supply is online.
	ExternalPower bool

	// LowPowerMode reflects the ACPI platform profile.
	LowPowerMode bool
}

// ReadPowerStatus reads the current power status from /sys.
func ReadPowerStatus() PowerStatus {
	return readPowerStatusFrom("/sys")
}

// readPowerStatusFrom is the testable implementation of
// ReadPowerStatus, rooted at a synthetic sysfs tree.
func readPowerStatusFrom(sysRoot string) PowerStatus {
	var status PowerStatus

	supplyRoot := filepath.Join(sysRoot, "class/power_supply")
	entries, err := os.ReadDir(supplyRoot)
	if err == nil {
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		// BAT0 before BAT1 regardless of directory order.
		sort.Strings(names)

		for _, name := range names {
			supplyPath := filepath.Join(supplyRoot, name)
			switch ReadSysfsString(filepath.Join(supplyPath, "type")) {
			case "Battery":
				if status.BatteryPresent {
					continue
				}
				capacity, ok := ReadSysfsInt(filepath.Join(supplyPath, "capacity"))
				if !ok {
					continue
				}
				status.BatteryPresent = true
				status.Level = clampLevel(float64(capacity) / 100)
				status.State = parseChargeState(ReadSysfsString(filepath.Join(supplyPath, "status")))
			case "Mains", "USB":
				if online, ok := ReadSysfsInt(filepath.Join(supplyPath, "online")); ok && online == 1 {
					status.ExternalPower = true
				}
			}
		}
	}

	profile := ReadSysfsString(filepath.Join(sysRoot, "firmware/acpi/platform_profile"))
	status.LowPowerMode = profile == "low-power"
	return status
}

func parseChargeState(value string) ChargeState {
	switch strings.ToLower(value) {
	case "charging":
		return ChargeCharging
	case "discharging":
		return ChargeDischarging
	case "not charging":
		return ChargeNotCharging
	case "full":
		return ChargeFull
	default:
		return ChargeUnknown
	}
}

func clampLevel(level float64) float64 {
	switch {
	case level < 0:
		return 0
	case level > 1:
		return 1
	default:
		return level
	}
}
