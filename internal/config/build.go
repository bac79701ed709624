package config

import "time"

// BuildConfig groups the knobs cmd/candy's build/run/repl commands take
// (SPEC_FULL.md section 10): where the package lives, whether the
// diagnostic reporter uses color, how many diagnostics to collect
// before giving up, and how long a build/run is allowed to take.
// project.Manifest.ApplyBuildDefaults overlays a candy.toml [build]
// table onto one. cmd/candy does not build a BuildConfig; its commands
// read their own cobra flags directly.
type BuildConfig struct {
	PackageRoot     string
	Color           bool
	MaxDiagnostics  int
	InlineThreshold int
	Timeout         time.Duration
	Tracing         TracingConfig
}

// DefaultBuildConfig returns a BuildConfig holding the same defaults as
// cmd/candy's own flags. cmd/candy does not call it.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		MaxDiagnostics:  100,
		InlineThreshold: 8,
		Timeout:         30 * time.Second,
	}
}
