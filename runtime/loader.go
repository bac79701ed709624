package runtime

import (
	"candy/internal/project"
	"candy/internal/source"
)

// FileLoader pairs the source.FileSet every diagnostic span is resolved
// against with the FsProvider that fed it, so a caller holding only a
// FileLoader can still turn a diag.Diagnostic's Span back into file:line
// text (diag.Reporter's own requirement).
type FileLoader struct {
	Files    *source.FileSet
	Provider *project.FsProvider
}

// NewFileLoader roots module lookups at pkg.Root.
func NewFileLoader(pkg project.Package) *FileLoader {
	files := source.NewFileSet()
	return &FileLoader{
		Files:    files,
		Provider: project.NewFsProvider(files, pkg),
	}
}
