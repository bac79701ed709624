package project

import "candy/internal/source"

// Kind distinguishes an importable library module from a package's
// runnable entry point, mirroring vovakirdan-surge's
// internal/project.ModuleKind.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindModule
	KindBinary
)

// Module is one `.candy` source file's identity within a Package: the
// name other modules' `use` expressions reference it by, the path it
// was loaded from, and the content digest the Cache keys staleness
// checks on (spec.md section 3).
type Module struct {
	Name    string
	Path    string
	Package string
	Kind    Kind
	Digest  Digest
}

// Package is a directory of modules sharing one candy.toml manifest.
type Package struct {
	Name string
	Root string
}

// Provider resolves a module name to its source bytes and records which
// package it belongs to (spec.md section 6's module provider: "get the
// content of a module" / "find the package surrounding a path").
type Provider interface {
	GetContent(module string) ([]byte, source.FileID, error)
	Package() Package
}
