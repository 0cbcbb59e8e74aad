// Package version carries build metadata stamped in with -ldflags and
// filled in from the Go toolchain's VCS stamping when absent.
package version

import (
	"fmt"
	"runtime/debug"
	"strconv"
)

// AppName labels build info, traces and the CMS client user agent.
const AppName = "storefront"

// unknownCommit is the ldflags default, replaced by vcs.revision when stamped.
const unknownCommit = "none"

var (
	Version    = "dev"
	Commit     = unknownCommit
	CommitDate string
	BuildDate  string
	BuildId    string
	GoVersion  string
	VCSDirty   *bool
)

type Info struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date"`
	BuildDate  string `json:"build_date"`
	BuildId    string `json:"build_id"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

// Get returns the ldflags values, completed from the embedded build info.
func Get() Info {
	out := Info{
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		BuildId:    BuildId,
		GoVersion:  GoVersion,
		VCSDirty:   VCSDirty,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		out.GoVersion = bi.GoVersion
		out.fromSettings(bi.Settings)
	}
	return out
}

// fromSettings fills the commit, dates and dirty flag from vcs.* settings.
// ldflags values win for commit and build date.
func (i *Info) fromSettings(settings []debug.BuildSetting) {
	for _, s := range settings {
		if s.Value == "" {
			continue
		}
		switch s.Key {
		case "vcs.revision":
			if i.Commit == unknownCommit || i.Commit == "" {
				i.Commit = s.Value
			}
		case "vcs.time":
			i.CommitDate = s.Value
			if i.BuildDate == "" {
				i.BuildDate = s.Value
			}
		case "vcs.modified":
			if b, err := strconv.ParseBool(s.Value); err == nil {
				i.VCSDirty = &b
			}
		}
	}
}

// UserAgent identifies this build on outbound requests, e.g. "storefront/1.4.0 (abc123def456)".
func (i Info) UserAgent() string {
	c := i.ReleaseCommit()
	if c == "" {
		return AppName + "/" + i.Version
	}
	if len(c) > 12 {
		c = c[:12]
	}
	return fmt.Sprintf("%s/%s (%s)", AppName, i.Version, c)
}

// ReleaseVersion and ReleaseCommit let Info feed the release response headers.
func (i Info) ReleaseVersion() string { return i.Version }

func (i Info) ReleaseCommit() string {
	if i.Commit == unknownCommit {
		return ""
	}
	return i.Commit
}
