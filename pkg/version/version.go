// Package version carries build metadata stamped in via -ldflags.
package version

var (
	// Version is the semantic version of the build.
	Version = "0.4.0-dev"
	// Commit is the short git hash, when stamped.
	Commit = "unknown"
)

// String returns "version (commit)".
func String() string {
	return Version + " (" + Commit + ")"
}
