// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hostinfo reads the host state that gates uploads and writes
// on a Linux device.
//
// # Power
//
// [ReadPowerStatus] walks /sys/class/power_supply: the first supply of
// type "Battery" provides the charge level and charging state, any
// "Mains" or "USB" supply that is online marks the device as plugged
// in, and /sys/firmware/acpi/platform_profile set to "low-power" maps
// to low-power mode. A host with no battery reports BatteryPresent
// false, which never blocks an upload.
//
// # Network
//
// [ReadNetworkState] inspects /sys/class/net/*/operstate, ignoring the
// loopback interface. Any interface "up" means reachable; interfaces
// reporting "unknown" (tunnels, some virtual NICs) mean maybe; all
// interfaces down means unreachable.
//
// # Disk
//
// [FreeDiskSpace] returns the bytes available to unprivileged users on
// the filesystem holding a path, via statfs(2).
//
// Every reader degrades to a zero value on unreadable files instead of
// failing: a container without /sys is still a valid host.
package hostinfo
