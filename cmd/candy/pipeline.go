package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"candy/internal/config"
	"candy/internal/diag"
	"candy/internal/project"
	"candy/runtime"
)

// resolvePackage finds the candy.toml surrounding path (or, absent one,
// treats path's own directory as an ad-hoc single-file package), and
// returns which module name that file corresponds to.
func resolvePackage(path string) (pkg project.Package, module string, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return project.Package{}, "", fmt.Errorf("resolving %s: %w", path, err)
	}
	dir := filepath.Dir(abs)
	found, ok, err := project.FindSurroundingPackage(dir)
	if err != nil {
		return project.Package{}, "", err
	}
	if !ok {
		found = project.Package{Name: filepath.Base(dir), Root: dir}
	}
	rel, err := filepath.Rel(found.Root, abs)
	if err != nil {
		return project.Package{}, "", fmt.Errorf("resolving module name for %s: %w", path, err)
	}
	module = strings.TrimSuffix(filepath.ToSlash(rel), ".candy")
	return found, module, nil
}

func tracingLevel(s string) config.Level {
	switch s {
	case "all":
		return config.All
	case "current":
		return config.OnlyCurrent
	default:
		return config.Off
	}
}

func callTracingLevel(s string) config.CallLevel {
	switch s {
	case "all":
		return config.CallsAll
	case "current":
		return config.CallsOnlyCurrent
	case "panics":
		return config.CallsOnlyForPanicTraces
	default:
		return config.CallsOff
	}
}

func tracingConfigFromFlags(cmd *cobra.Command) config.TracingConfig {
	calls, _ := cmd.Root().PersistentFlags().GetString("trace-calls")
	values, _ := cmd.Root().PersistentFlags().GetString("trace-values")
	fuzzables, _ := cmd.Root().PersistentFlags().GetString("trace-fuzzables")
	return config.TracingConfig{
		Calls:                callTracingLevel(calls),
		EvaluatedExpressions: tracingLevel(values),
		RegisterFuzzables:    tracingLevel(fuzzables),
	}
}

// buildProgram runs the whole front end through LIR for the module at
// path, reporting diagnostics for every module the Cache touched (not
// just the root) before returning an error if the root failed to
// compile.
func buildProgram(cmd *cobra.Command, path string) (*runtime.Program, error) {
	pkg, module, err := resolvePackage(path)
	if err != nil {
		return nil, err
	}
	maxDiagnostics, _ := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	inlineThreshold, _ := cmd.Root().PersistentFlags().GetInt("inline-threshold")
	_ = maxDiagnostics // per-module bag size is fixed at construction in project.Cache.compileModule

	cache, loader := runtime.NewCache(pkg, tracingConfigFromFlags(cmd), inlineThreshold)
	prog, buildErr := runtime.Build(cache, module)

	reporter := diag.NewReporter(loader.Files, cmd.ErrOrStderr(), useColor(cmd, os.Stderr))
	for _, bag := range cache.Diagnostics {
		reporter.ReportAll(bag)
	}
	if buildErr != nil {
		return nil, buildErr
	}
	return prog, nil
}
