// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"runtime"
	"strings"
	"testing"
)

func TestInfoMarksDirtyBuilds(t *testing.T) {
	savedCommit, savedDirty := GitCommit, GitDirty
	t.Cleanup(func() { GitCommit, GitDirty = savedCommit, savedDirty })

	GitCommit, GitDirty = "abc1234", "true"
	if got := Info(); !strings.Contains(got, "(abc1234-dirty, ") {
		t.Errorf("Info = %q, want dirty commit", got)
	}
	GitDirty = "false"
	if got := Info(); strings.Contains(got, "dirty") {
		t.Errorf("Info = %q for a clean build", got)
	}
}

func TestUserAgent(t *testing.T) {
	got := UserAgent("spool-agent")
	want := "spool-agent/" + Version + " (" + runtime.GOOS + "; " + runtime.GOARCH + ")"
	if got != want {
		t.Errorf("UserAgent = %q, want %q", got, want)
	}
}

func TestPrint(t *testing.T) {
	var buffer bytes.Buffer
	Print(&buffer, "spool-agent")
	if !strings.HasPrefix(buffer.String(), "spool-agent "+Version) || !strings.Contains(buffer.String(), "Go: ") {
		t.Errorf("Print wrote %q", buffer.String())
	}
}
