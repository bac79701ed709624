// Package version holds the candy CLI's build fingerprint, overridable
// at build time via -ldflags (mirroring vovakirdan-surge's own
// internal/version package).
package version

var (
	Version   = "0.1.0-dev"
	GitCommit = ""
	BuildDate = ""
)
