package fuzz

import (
	"math/rand"

	"candy/internal/heap"
	"candy/internal/hir"
	"candy/internal/lir"
	"candy/internal/tracer"
	"candy/internal/vm"
)

// Input is one generated argument list for a fuzzable function, plus
// the heap those arguments live on (values.rs's Input: "heap" +
// "arguments").
type Input struct {
	Heap      *heap.Heap
	Arguments []heap.InlineObject
}

// GenerateInput produces a fresh random Input for a function taking
// numArgs parameters (values.rs's InputGeneration::generate: complexity
// 5.0 per argument).
func GenerateInput(rng *rand.Rand, numArgs int, symbols []string) Input {
	h := heap.New()
	args := make([]heap.InlineObject, numArgs)
	for i := range args {
		args[i] = Generate(h, rng, 5.0, symbols)
	}
	return Input{Heap: h, Arguments: args}
}

// Mutate replaces one randomly chosen argument with a mutated form of
// itself (values.rs's InputGeneration::mutate).
func (in *Input) Mutate(rng *rand.Rand, symbols []string) {
	if len(in.Arguments) == 0 {
		return
	}
	i := rng.Intn(len(in.Arguments))
	in.Arguments[i] = GenerateMutated(in.Heap, rng, in.Arguments[i], symbols)
}

// Complexity sums every argument's Complexity (values.rs's
// InputGeneration::complexity).
func (in *Input) Complexity() int {
	total := 0
	for _, a := range in.Arguments {
		total += Complexity(in.Heap, a)
	}
	return total
}

// defaultInstructionBudget bounds one fuzzing call the way cmd/candy's
// run command bounds a top-level Main call; a fuzzed function that
// hasn't terminated by then is treated as still running rather than
// hung (this implementation has no coverage-guided early exit, unlike
// the original's Status::StillFuzzing bookkeeping).
const defaultInstructionBudget = 100_000

// FailingCase is an Input that made a fuzzed function panic (values.rs/
// lib.rs's FailingFuzzCase, minus the dropped stack-trace formatting
// original_source itself left commented out pending
// candy-lang/candy#458).
type FailingCase struct {
	Function    hir.ID
	Input       Input
	Heap        *heap.Heap
	Reason      heap.InlineObject
	Responsible heap.InlineObject
}

// Fuzzer repeatedly calls one fuzzable function with generated and
// mutated inputs, looking for a panic (lib.rs's Fuzzer/fuzz loop,
// narrowed to this package's scope: no coverage tracking, no input
// pool beyond the single input being mutated in place).
type Fuzzer struct {
	program  *lir.Program
	function hir.ID
	closure  heap.InlineObject
	source   *heap.Heap
	numArgs  int
	symbols  []string
	rng      *rand.Rand
}

// NewFuzzer builds a Fuzzer for rec, drawing tag symbols from symbols
// (typically the union of every tag literal seen in the fuzzed
// module, since values.rs's Tag generation has no other source of
// plausible symbol names).
func NewFuzzer(program *lir.Program, source *heap.Heap, rec Record, symbols []string, rng *rand.Rand) *Fuzzer {
	return &Fuzzer{
		program:  program,
		function: rec.Definition,
		closure:  rec.Function,
		source:   source,
		numArgs:  rec.NumArgs,
		symbols:  symbols,
		rng:      rng,
	}
}

// Run tries up to iterations generated/mutated inputs, returning the
// first one that makes the function panic.
func (fz *Fuzzer) Run(iterations int) (FailingCase, bool) {
	input := GenerateInput(fz.rng, fz.numArgs, fz.symbols)
	for i := 0; i < iterations; i++ {
		if i > 0 {
			input.Mutate(fz.rng, fz.symbols)
		}
		f := vm.ForModule(fz.program, tracer.Null{})
		callee := cloneAcross(f.Heap, fz.source, fz.closure)
		args := make([]heap.InlineObject, len(input.Arguments))
		for j, a := range input.Arguments {
			args[j] = cloneAcross(f.Heap, input.Heap, a)
		}
		f.CallEntryPoint(callee, args, callee)
		status := f.Run(defaultInstructionBudget)
		if status == vm.StatusPanicked {
			return FailingCase{
				Function:    fz.function,
				Input:       input,
				Heap:        f.Heap,
				Reason:      f.PanicReason,
				Responsible: f.PanicResponsible,
			}, true
		}
	}
	return FailingCase{}, false
}
