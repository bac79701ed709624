package project

import (
	"fmt"
	"os"
	"path/filepath"
)

// ManifestName is the file find_surrounding_package looks for, Candy's
// analogue of vovakirdan-surge's surge.toml.
const ManifestName = "candy.toml"

// FindSurroundingPackage walks upward from startDir looking for a
// candy.toml, mirroring vovakirdan-surge's internal/project.FindSurgeToml
// / FindProjectRoot pair (spec.md section 6's "find_surrounding_package").
func FindSurroundingPackage(startDir string) (Package, bool, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return Package{}, false, fmt.Errorf("project: resolving %s: %w", startDir, err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, statErr := os.Stat(candidate); statErr == nil {
			manifest, loadErr := LoadManifest(candidate)
			if loadErr != nil {
				return Package{}, false, loadErr
			}
			return Package{Name: manifest.Package.Name, Root: filepath.Join(dir, manifest.Package.Root)}, true, nil
		} else if !os.IsNotExist(statErr) {
			return Package{}, false, fmt.Errorf("project: statting %s: %w", candidate, statErr)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Package{}, false, nil
		}
		dir = parent
	}
}
