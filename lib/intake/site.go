// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package intake

import (
	"fmt"
	"slices"
	"strings"
)

// Site is a regional intake deployment.
type Site string

const (
	SiteUS1    Site = "us1"
	SiteUS3    Site = "us3"
	SiteUS5    Site = "us5"
	SiteEU1    Site = "eu1"
	SiteAP1    Site = "ap1"
	SiteUS1FED Site = "us1_fed"
)

var siteEndpoints = map[Site]string{
	SiteUS1:    "https://browser-intake-datadoghq.com",
	SiteUS3:    "https://browser-intake-us3-datadoghq.com",
	SiteUS5:    "https://browser-intake-us5-datadoghq.com",
	SiteEU1:    "https://browser-intake-datadoghq.eu",
	SiteAP1:    "https://browser-intake-ap1-datadoghq.com",
	SiteUS1FED: "https://browser-intake-ddog-gov.com",
}

// Endpoint returns the base URL for the site.
func (s Site) Endpoint() (string, error) {
	endpoint, ok := siteEndpoints[s]
	if !ok {
		return "", fmt.Errorf("unknown intake site %q (want one of %s)", s, strings.Join(Sites(), ", "))
	}
	return endpoint, nil
}

// Sites lists the known site names in sorted order.
func Sites() []string {
	names := make([]string, 0, len(siteEndpoints))
	for site := range siteEndpoints {
		names = append(names, string(site))
	}
	slices.Sort(names)
	return names
}
