// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags -X at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty is "true" when the tree had uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version, set by hand for releases.
	Version = "0.1.0-dev"
)

// Info returns the one-line --version output.
func Info() string {
	commit, dirty, built := GitCommit, GitDirty == "true", BuildTime
	if commit == "unknown" {
		commit, dirty, built = fromBuildInfo()
	}

	suffix := ""
	if dirty {
		suffix = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, commit, suffix, built)
}

// Full returns Info plus the Go toolchain and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// fromBuildInfo reads the VCS stamp the go command embeds when ldflags
// were not supplied.
func fromBuildInfo() (commit string, dirty bool, built string) {
	commit, built = "unknown", BuildTime
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return commit, false, built
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			commit = setting.Value
			if len(commit) > 12 {
				commit = commit[:12]
			}
		case "vcs.modified":
			dirty = setting.Value == "true"
		case "vcs.time":
			built = setting.Value
		}
	}
	return commit, dirty, built
}
