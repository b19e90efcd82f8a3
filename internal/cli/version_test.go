// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import "testing"

func TestGetBuildInfo_LdflagsWin(t *testing.T) {
	oldCommit, oldDate := Commit, BuildDate
	t.Cleanup(func() { Commit, BuildDate = oldCommit, oldDate })

	Commit = "abc1234"
	BuildDate = "2026-08-30T12:00:00Z"

	info := GetBuildInfo("1.2.3")
	if info.Version != "1.2.3" {
		t.Errorf("Expected version 1.2.3, got %s", info.Version)
	}
	if info.Commit != "abc1234" {
		t.Errorf("Expected the ldflags commit, got %s", info.Commit)
	}
	if info.BuildTime != "2026-08-30T12:00:00Z" {
		t.Errorf("Expected the ldflags build time, got %s", info.BuildTime)
	}
}

func TestGetBuildInfo_Defaults(t *testing.T) {
	oldCommit, oldDate := Commit, BuildDate
	t.Cleanup(func() { Commit, BuildDate = oldCommit, oldDate })
	Commit, BuildDate = "", ""

	info := GetBuildInfo("dev")
	if info.Commit == "" || info.BuildTime == "" {
		t.Error("Expected fallback values, got empty strings")
	}
	if info.GoVersion == "" || info.OS == "" || info.Arch == "" {
		t.Error("Expected runtime fields to be populated")
	}
}
