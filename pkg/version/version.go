// Package version reports which build of loom is running.
package version

import "runtime/debug"

// AppName prefixes version strings in logs and the health payload.
const AppName = "loom"

// gitCommitOverride can be injected with -ldflags when the build has no
// .git directory to read from.
var gitCommitOverride string

// GitCommit is the short (8 char) commit hash of this build, or "dev" when
// no VCS metadata is available, as under `go test`.
var GitCommit = initGitCommit()

func initGitCommit() string {
	if gitCommitOverride != "" {
		return shorten(gitCommitOverride)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return shorten(s.Value)
		}
	}
	return "dev"
}

func shorten(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "loom/<commit>".
func Full() string {
	return AppName + "/" + GitCommit
}
