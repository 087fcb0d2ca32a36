// Package version holds the jobsift build metadata.
//
// The variables are set at build time:
//
//	go build -ldflags "-X github.com/jmylchreest/jobsift/internal/version.Version=0.3.0 -X github.com/jmylchreest/jobsift/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Build-time variables set via ldflags
var (
	// Version is the semantic version, e.g. "0.3.0".
	Version = "dev"

	// Commit is the git commit SHA
	Commit = "unknown"

	// Dirty is "true" when the tree had uncommitted changes.
	Dirty = "false"

	// BuildDate is the UTC build time in RFC3339 format.
	BuildDate = "unknown"
)

// Info is the structured form of the build metadata, printed by
// `jobsift version --json`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Dirty     bool   `json:"dirty"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build metadata.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Dirty:     Dirty == "true",
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns the version with a -dirty suffix for modified trees.
func String() string {
	if Dirty == "true" {
		return Version + "-dirty"
	}
	return Version
}

// Full returns the multi-line form shown by `jobsift version`.
func Full() string {
	info := Get()
	var sb strings.Builder
	fmt.Fprintf(&sb, "jobsift %s\n", String())
	fmt.Fprintf(&sb, "  Commit:     %s\n", info.Commit)
	fmt.Fprintf(&sb, "  Built:      %s\n", info.BuildDate)
	fmt.Fprintf(&sb, "  Go version: %s\n", info.GoVersion)
	fmt.Fprintf(&sb, "  OS/Arch:    %s", info.Platform)
	return sb.String()
}
