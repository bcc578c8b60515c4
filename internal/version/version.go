// Package version reports build metadata of the vidcap binary.
package version

import (
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/smazurov/vidcap/internal/version.Version=...".
// Unset values fall back to the VCS stamp the go tool embeds.
var (
	Version   = ""
	GitCommit = ""
	BuildDate = ""
)

// BuildInfo is the build description served on /api/version.
type BuildInfo struct {
	Version   string `json:"version" example:"0.4.0" doc:"Release version, dev for local builds"`
	GitCommit string `json:"git_commit" example:"3f9c2ab" doc:"Source revision"`
	Modified  bool   `json:"modified" doc:"Built from a tree with uncommitted changes"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Commit or build time"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go toolchain"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target GOOS/GOARCH"`
}

// Get assembles BuildInfo from ldflags and the embedded build info.
func Get() BuildInfo {
	info := BuildInfo{
		Version:   orDefault(Version, "dev"),
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		if Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.GitCommit == "" {
					info.GitCommit = shortRevision(s.Value)
				}
			case "vcs.time":
				if info.BuildDate == "" {
					info.BuildDate = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}

	info.GitCommit = orDefault(info.GitCommit, "unknown")
	info.BuildDate = orDefault(info.BuildDate, "unknown")
	return info
}

// String returns the version alone.
func String() string {
	return Get().Version
}

func shortRevision(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
