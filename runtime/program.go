// Package runtime is Candy's embedder facade (spec.md section 6):
// compile a package's root module down to LIR, construct a VM from it,
// drive it to completion, and invoke its exported Main with an
// environment struct. cmd/candy's build/run/repl subcommands are all
// thin wrappers over this package; nothing here talks to a terminal or
// a flag set.
package runtime

import (
	"fmt"

	"candy/internal/config"
	"candy/internal/diag"
	"candy/internal/lir"
	"candy/internal/project"
)

// Program is one package's compiled entry module plus the Cache that
// can still resolve anything it imports (kept around so lir.Compile's
// constant heap can be rebuilt if the embedder needs to recompile after
// an edit, e.g. the repl command).
type Program struct {
	Cache       *project.Cache
	EntryModule string
	LIR         *lir.Program
	Diagnostics *diag.Bag
}

// Build compiles entryModule's whole transitive import graph through
// rcst -> ... -> optimized MIR -> LIR, via cache (spec.md section 6's
// "construct a VM from a compiled LIR"). Diagnostics from the entry
// module are returned even on success: a successful compile can still
// carry warnings, and a StaticPanic diagnostic (spec.md section 7) is
// reported without aborting the build.
func Build(cache *project.Cache, entryModule string) (*Program, error) {
	body, bag, err := cache.RootModule(entryModule)
	if err != nil {
		return nil, fmt.Errorf("runtime: building %q: %w", entryModule, err)
	}
	return &Program{
		Cache:       cache,
		EntryModule: entryModule,
		LIR:         lir.Compile(entryModule, body),
		Diagnostics: bag,
	}, nil
}

// NewCache wires a project.Cache for root over an FsProvider, the
// combination cmd/candy's build/run/repl commands construct a Program
// from (spec.md section 6's module provider collaborator).
func NewCache(pkg project.Package, tracing config.TracingConfig, inlineThreshold int) (*project.Cache, *FileLoader) {
	loader := NewFileLoader(pkg)
	return project.NewCache(loader.Provider, tracing, inlineThreshold), loader
}
