// Package version reports riptide-proxy's build version for the
// --version CLI flag (spec.md §6), grounded on caddy.Version()'s use of
// runtime/debug.ReadBuildInfo to recover module version information
// without requiring a manually maintained version string.
package version

import "runtime/debug"

// ImportPath is this module's path. The module version is only reported
// when the embedded build info's main module matches it; the build info's
// dependency list is not searched.
const ImportPath = "github.com/theCapypara/riptide-proxy"

// CustomVersion may be set at build time via
// -ldflags '-X .../version.CustomVersion=v1.2.3' for packagers that don't
// build from a VCS checkout.
var CustomVersion string

// Get returns a short version string and a full one (module version plus
// VCS revision/dirty marker, when available).
func Get() (short, full string) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		if CustomVersion != "" {
			return CustomVersion, CustomVersion
		}
		return "unknown", "unknown"
	}

	if bi.Main.Path == ImportPath && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		short = bi.Main.Version
		full = bi.Main.Version
	} else {
		short = "unknown"
		full = "unknown"
	}

	var revision string
	var dirty bool
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision != "" {
		if len(revision) > 7 {
			revision = revision[:7]
		}
		full += " " + revision
		if dirty {
			full += " (dirty)"
		}
	}

	if CustomVersion != "" {
		full = CustomVersion + " " + full
	}
	return short, full
}
