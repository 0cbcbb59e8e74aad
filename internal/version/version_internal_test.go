package version

import (
	"runtime/debug"
	"testing"
)

func TestFromSettings(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs", Value: "git"},
		{Key: "vcs.revision", Value: "9f1c2e7a4b0d11aa"},
		{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
	}

	i := Info{Commit: unknownCommit}
	i.fromSettings(settings)
	if i.Commit != "9f1c2e7a4b0d11aa" {
		t.Errorf("Commit = %q", i.Commit)
	}
	if i.CommitDate != "2026-10-01T12:00:00Z" || i.BuildDate != "2026-10-01T12:00:00Z" {
		t.Errorf("dates = %q/%q", i.CommitDate, i.BuildDate)
	}
	if i.VCSDirty == nil || !*i.VCSDirty {
		t.Errorf("VCSDirty = %v, want true", i.VCSDirty)
	}

	stamped := Info{Commit: "release-sha", BuildDate: "2026-10-02T00:00:00Z"}
	stamped.fromSettings(settings)
	if stamped.Commit != "release-sha" || stamped.BuildDate != "2026-10-02T00:00:00Z" {
		t.Errorf("ldflags values overwritten: %+v", stamped)
	}
}

func TestFromSettings_IgnoresGarbage(t *testing.T) {
	i := Info{Commit: unknownCommit}
	i.fromSettings([]debug.BuildSetting{
		{Key: "vcs.revision", Value: ""},
		{Key: "vcs.modified", Value: "maybe"},
	})
	if i.Commit != unknownCommit || i.VCSDirty != nil {
		t.Errorf("got %+v", i)
	}
}
