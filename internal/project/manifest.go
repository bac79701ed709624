package project

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"candy/internal/config"
)

// Manifest is candy.toml's shape, grounded on vovakirdan-surge's
// internal/project.moduleManifest (surge.toml's [package] table), but
// renamed to this repo's own file name per SPEC_FULL.md section 6.
type Manifest struct {
	Package struct {
		Name string `toml:"name"`
		Root string `toml:"root"`
	} `toml:"package"`
	Build struct {
		Color           *bool  `toml:"color"`
		MaxDiagnostics  int    `toml:"max_diagnostics"`
		InlineThreshold int    `toml:"inline_threshold"`
		Timeout         string `toml:"timeout"`
	} `toml:"build"`
}

// LoadManifest parses the candy.toml at path.
func LoadManifest(path string) (Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return Manifest{}, fmt.Errorf("project: reading manifest %s: %w", path, err)
	}
	if m.Package.Name == "" {
		return Manifest{}, fmt.Errorf("project: manifest %s has no [package].name", path)
	}
	if m.Package.Root == "" {
		m.Package.Root = "."
	}
	return m, nil
}

// ApplyBuildDefaults overlays this manifest's [build] table onto base,
// leaving any field the manifest doesn't mention untouched. cmd/candy
// does not call it; its commands read their cobra flags directly.
func (m Manifest) ApplyBuildDefaults(base config.BuildConfig) config.BuildConfig {
	cfg := base
	if m.Build.Color != nil {
		cfg.Color = *m.Build.Color
	}
	if m.Build.MaxDiagnostics > 0 {
		cfg.MaxDiagnostics = m.Build.MaxDiagnostics
	}
	if m.Build.InlineThreshold > 0 {
		cfg.InlineThreshold = m.Build.InlineThreshold
	}
	if m.Build.Timeout != "" {
		if d, err := time.ParseDuration(m.Build.Timeout); err == nil {
			cfg.Timeout = d
		}
	}
	return cfg
}
