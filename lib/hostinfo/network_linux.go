// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hostinfo

import (
	"os"
	"path/filepath"
)

// NetworkState summarizes interface link state.
type NetworkState string

const (
	NetworkUp    NetworkState = "up"
	NetworkMaybe NetworkState = "maybe"
	NetworkDown  NetworkState = "down"
)

// ReadNetworkState reports whether any non-loopback interface is up.
func ReadNetworkState() NetworkState {
	return readNetworkStateFrom("/sys")
}

func readNetworkStateFrom(sysRoot string) NetworkState {
	netRoot := filepath.Join(sysRoot, "class/net")
	entries, err := os.ReadDir(netRoot)
	if err != nil {
		// No sysfs: we cannot tell, so do not block uploads on it.
		return NetworkMaybe
	}

	state := NetworkDown
	for _, entry := range entries {
		if entry.Name() == "lo" {
			continue
		}
		switch ReadSysfsString(filepath.Join(netRoot, entry.Name(), "operstate")) {
		case "up":
			return NetworkUp
		case "unknown":
			state = NetworkMaybe
		}
	}
	return state
}
