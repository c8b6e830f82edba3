// Package config holds the tdt configuration file and build metadata.
package config

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Release metadata, set with
// -ldflags "-X github.com/good-yellow-bee/tdt/pkg/config.Version=v1.2.3".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running tdt binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetBuildInfo returns the release metadata. Values not set through ldflags
// come from the module and VCS stamps `go install` embeds, when present.
func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.Commit == "unknown":
			info.Commit = s.Value
		case s.Key == "vcs.time" && info.BuildTime == "unknown":
			info.BuildTime = s.Value
		}
	}
	return info
}

// String formats the build info as a one-line version banner.
func (b BuildInfo) String() string {
	return fmt.Sprintf("tdt %s (commit %s, built %s, %s %s)",
		b.Version, b.Commit, b.BuildTime, b.GoVersion, b.Platform)
}
