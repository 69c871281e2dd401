// Package version provides build-time version information
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	// Version is the semantic version (set via ldflags)
	Version = "v0.0.0-dev"

	// GitCommit is the git commit hash (set via ldflags)
	GitCommit = "unknown"

	// BuildTime is the build timestamp (set via ldflags)
	BuildTime = "unknown"
)

// Commit returns GitCommit, falling back to the VCS revision embedded by
// the Go toolchain when no ldflags were given.
func Commit() string {
	if GitCommit != "unknown" {
		return GitCommit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return GitCommit
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return GitCommit
}

// Info returns a formatted version string for `vibeplanner --version`.
func Info() string {
	return fmt.Sprintf("vibeplanner %s (commit %s, built %s)", Version, Commit(), BuildTime)
}
