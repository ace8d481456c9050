// Package misc keeps build information.
package misc

import "runtime/debug"

// Set with -ldflags "-X jncweb/misc.version=... -X jncweb/misc.githash=..."
var (
	version = "dev"
	githash = ""
)

// GetVersion returns program version.
func GetVersion() string {
	return version
}

// GetGitHash returns hash of the commit program was built from.
func GetGitHash() string {
	if len(githash) > 0 {
		return githash
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
