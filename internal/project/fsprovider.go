package project

import (
	"fmt"
	"path/filepath"

	"candy/internal/source"
)

// moduleExtension is the suffix FsProvider strips/appends when mapping
// a module name to a file path, mirroring vovakirdan-surge's
// NormalizeModulePath handling of ".sg".
const moduleExtension = ".candy"

// FsProvider resolves modules against a single package directory on
// disk (spec.md section 6's concrete module provider), loading each
// file through the shared source.FileSet so every diagnostic and span
// downstream shares one file numbering.
type FsProvider struct {
	Files *source.FileSet
	pkg   Package
}

// NewFsProvider roots provider lookups at pkg.Root.
func NewFsProvider(files *source.FileSet, pkg Package) *FsProvider {
	return &FsProvider{Files: files, pkg: pkg}
}

// Package reports the package this provider serves.
func (p *FsProvider) Package() Package { return p.pkg }

// GetContent loads module's `.candy` file from the package root.
func (p *FsProvider) GetContent(module string) ([]byte, source.FileID, error) {
	path := filepath.Join(p.pkg.Root, filepath.FromSlash(module)+moduleExtension)
	id, err := p.Files.Load(path)
	if err != nil {
		return nil, 0, fmt.Errorf("project: loading module %q: %w", module, err)
	}
	return p.Files.Get(id).Content, id, nil
}
