package fuzz

import (
	"math/rand"

	"candy/internal/lir"
	"candy/internal/vm"
)

// DefaultSymbols seeds Tag generation before any module-specific tags
// have been observed. A caller that has surveyed the fuzzed module's
// own tag literals should pass a widened list to Run instead.
var DefaultSymbols = []string{"True", "False", "Nothing", "Ok", "Error", "Equal", "Less", "Greater"}

// Collect runs a module's top-level body once with a Collector tracer
// attached and returns every fuzzable function it announced (lib.rs's
// fuzz function's own first step: "compile with register_fuzzables:
// TracingMode::All ... run_forever_without_handles"). The module body
// itself is not meant to panic during collection; if it does, no
// fuzzable functions after the panic point are discovered, same as
// the original.
func Collect(program *lir.Program) (*Collector, vm.Status) {
	collector := NewCollector()
	f := vm.ForModule(program, collector)
	status := f.Run(defaultInstructionBudget)
	return collector, status
}

// Run fuzzes every record for up to iterations calls each, returning
// the first input that made that function panic, if any (lib.rs's
// fuzz loop, narrowed from candy's coverage-guided search to plain
// random generation/mutation per SPEC_FULL.md section 12's scope: "a
// random-value generator/mutator for fuzzable functions ... realizes
// the fuzz-testing angle spec.md's tracer events gesture at but never
// wire end to end").
func Run(program *lir.Program, source *Collector, symbols []string, iterations int, seed int64) []FailingCase {
	if symbols == nil {
		symbols = DefaultSymbols
	}
	rng := rand.New(rand.NewSource(seed))
	var failures []FailingCase
	for _, rec := range source.Records {
		fz := NewFuzzer(program, source.Heap, rec, symbols, rng)
		if failing, found := fz.Run(iterations); found {
			failures = append(failures, failing)
		}
	}
	return failures
}
