// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version_test

import (
	"strings"
	"testing"

	"github.com/bureau-foundation/depot/lib/version"
)

func TestInfoMarksDirtyBuilds(t *testing.T) {
	savedDirty := version.GitDirty
	savedCommit := version.GitCommit
	t.Cleanup(func() {
		version.GitDirty = savedDirty
		version.GitCommit = savedCommit
	})

	version.GitCommit = "abc123"
	version.GitDirty = "false"
	if got := version.Info(); strings.Contains(got, "-dirty") {
		t.Errorf("clean build reported dirty: %q", got)
	}

	version.GitDirty = "true"
	if got := version.Info(); !strings.Contains(got, "abc123-dirty") {
		t.Errorf("dirty build not marked: %q", got)
	}
}

func TestShortIsBareVersion(t *testing.T) {
	if got := version.Short(); got != version.Version {
		t.Errorf("Short() = %q, want %q", got, version.Version)
	}
}
