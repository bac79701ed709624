package project_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"candy/internal/config"
	"candy/internal/project"
	"candy/internal/source"
)

func writeModules(t *testing.T, files map[string]string) project.Package {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name+".candy"), []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return project.Package{Name: "test", Root: dir}
}

func newCache(t *testing.T, files map[string]string, tracing config.TracingConfig) *project.Cache {
	t.Helper()
	pkg := writeModules(t, files)
	provider := project.NewFsProvider(source.NewFileSet(), pkg)
	return project.NewCache(provider, tracing, 8)
}

// A module with no `use` compiles and memoizes under RootModule, with
// no diagnostics.
func TestRootModuleCompilesAndMemoizes(t *testing.T) {
	c := newCache(t, map[string]string{
		"Main": "pub answer = 42\n",
	}, config.TracingConfig{})

	body, bag, err := c.RootModule("Main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bag != nil && bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %+v", bag.Items())
	}
	if body == nil {
		t.Fatalf("expected a compiled body")
	}

	again, _, err := c.RootModule("Main")
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if again != body {
		t.Fatalf("expected RootModule to return the memoized body on a repeat call")
	}
}

// A module that fails to parse/lower reports its diagnostics bag
// through RootModule without returning an error.
func TestRootModuleSurfacesDiagnosticsOnFailure(t *testing.T) {
	c := newCache(t, map[string]string{
		"Main": "x = doesNotExist\n",
	}, config.TracingConfig{})

	_, bag, err := c.RootModule("Main")
	if err != nil {
		t.Fatalf("lowering diagnostics don't fail compileModule, unexpected error: %v", err)
	}
	if bag == nil || !bag.HasErrors() {
		t.Fatalf("expected an UnknownReference diagnostic, got %+v", bag)
	}
}

// OptimizedModule reports a missing module as !ok rather than panicking
// or blocking forever.
func TestOptimizedModuleOnMissingFileReportsNotOk(t *testing.T) {
	c := newCache(t, map[string]string{
		"Main": "pub answer = 42\n",
	}, config.TracingConfig{})

	_, cycle, ok := c.OptimizedModule("DoesNotExist")
	if ok {
		t.Fatalf("expected a missing module to report !ok")
	}
	if cycle {
		t.Fatalf("a missing module is not a cycle")
	}
}

// Two modules that `use` each other resolve through the cache as a
// cycle rather than recursing forever: A's OptimizedModule("B") lookup
// must come back while A is still mid-compile so B's own use of A sees
// Cache.compiling[A] still set.
func TestOptimizedModuleDetectsImportCycle(t *testing.T) {
	c := newCache(t, map[string]string{
		"A": "other = use \"B\"\npub value = other\n",
		"B": "other = use \"A\"\npub value = other\n",
	}, config.TracingConfig{})

	body, bag, err := c.RootModule("A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bag != nil && bag.HasErrors() {
		t.Fatalf("a cycle is resolved at the mir.Optimize stage, not as an hir diagnostic: %+v", bag.Items())
	}
	if body == nil {
		t.Fatalf("expected A to still compile to a body with a synthesized cycle Panic")
	}
}

// Concurrent RootModule calls for the same module collapse onto one
// compileModule invocation via singleflight, rather than racing two
// independent compiles (Cache's sync.Mutex + singleflight.Group
// contract).
func TestConcurrentRootModuleCallsShareOneCompile(t *testing.T) {
	c := newCache(t, map[string]string{
		"Main": "pub answer = 42\n",
	}, config.TracingConfig{})

	const n = 16
	bodies := make([]bool, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			body, _, err := c.RootModule("Main")
			bodies[i] = err == nil && body != nil
		}()
	}
	wg.Wait()
	for i, ok := range bodies {
		if !ok {
			t.Fatalf("goroutine %d did not get a compiled body", i)
		}
	}
}
