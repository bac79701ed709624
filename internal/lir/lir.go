// Package lir flattens optimized MIR into the stack-machine instruction
// stream internal/vm executes (spec.md 4.4): a closed instruction set,
// a shared read-only constant heap, and a rich-IR / msgpack dump pair
// (SPEC_FULL.md 4.4). `candy build --dump-lir` prints the rich-IR text;
// no CLI flag writes the msgpack dump.
//
// Grounded on original_source/compiler/src/compiler/lir.rs's
// Instruction enum and original_source/compiler/vm/src/mir_to_lir.rs's
// compile_function shape, adapted to a flat Go slice of instructions
// (body_start offsets instead of nested instruction vectors, since a
// single flat []Instruction plus jump-free control flow is simpler to
// execute and to serialize than the original's tree-shaped closures).
package lir

import (
	"fmt"
	"io"
	"strings"

	"candy/internal/heap"
	"candy/internal/hir"
)

// Op identifies an instruction's operation. The set is closed: every
// variant here is named directly in spec.md 4.4, with no room for an
// implementer-added opcode.
type Op uint8

const (
	OpPushConstant Op = iota
	OpPushFromStack
	OpPopMultipleBelowTop
	OpCreateTag
	OpCreateList
	OpCreateStruct
	OpCreateFunction
	OpCall
	OpTailCall
	OpReturn
	OpPanic
	OpTraceCallStarts
	OpTraceCallEnds
	OpTraceExpressionEvaluated
	OpTraceFoundFuzzableFunction
)

func (op Op) String() string {
	switch op {
	case OpPushConstant:
		return "pushConstant"
	case OpPushFromStack:
		return "pushFromStack"
	case OpPopMultipleBelowTop:
		return "popMultipleBelowTop"
	case OpCreateTag:
		return "createTag"
	case OpCreateList:
		return "createList"
	case OpCreateStruct:
		return "createStruct"
	case OpCreateFunction:
		return "createFunction"
	case OpCall:
		return "call"
	case OpTailCall:
		return "tailCall"
	case OpReturn:
		return "return"
	case OpPanic:
		return "panic"
	case OpTraceCallStarts:
		return "traceCallStarts"
	case OpTraceCallEnds:
		return "traceCallEnds"
	case OpTraceExpressionEvaluated:
		return "traceExpressionEvaluated"
	case OpTraceFoundFuzzableFunction:
		return "traceFoundFuzzableFunction"
	default:
		return fmt.Sprintf("op(%d)", op)
	}
}

// StackOffset counts backward from the top of the data stack: 0 is the
// last item pushed, 1 the one before that, and so on (matching
// lir.rs's StackOffset convention exactly).
type StackOffset = int

// Instruction is one LIR op plus whichever operands Op needs. Like
// every other stage's node type in this module, only the fields
// relevant to Op are populated.
type Instruction struct {
	Op Op

	Constant heap.InlineObject // OpPushConstant
	Offset   StackOffset       // OpPushFromStack
	Count    int               // OpPopMultipleBelowTop / OpCreateList / OpCreateStruct / OpTailCall (num_locals_to_pop)
	Symbol   string            // OpCreateTag

	CapturedOffsets []StackOffset // OpCreateFunction
	NumArgs         int           // OpCreateFunction / OpCall / OpTailCall / OpTraceCallStarts
	BodyStart       int           // OpCreateFunction

	// Origin is the HIR id this instruction was compiled from, carried
	// through for tracers and panic stack traces (spec.md 4.4's "each
	// emitted instruction records the set of HIR IDs it originated
	// from"; simplified here to the single most specific origin rather
	// than a full set, since every one of our call sites has exactly one).
	Origin hir.ID
}

// Program is a fully compiled module: the flat instruction stream plus
// the shared, read-only constant heap every PushConstant references
// into.
type Program struct {
	Module         string
	Instructions   []Instruction
	ConstantHeap   *heap.Heap
	ModuleBodyStart int
}

// DumpRich renders the rich-IR text format named in SPEC_FULL.md
// section 6/10: one line per instruction, indices for cross-reference,
// in emission order, so each function body appears before the
// createFunction line that refers to it.
func (p *Program) DumpRich(w io.Writer) error {
	for i, instr := range p.Instructions {
		if _, err := fmt.Fprintf(w, "%4d  %s\n", i, formatInstruction(instr)); err != nil {
			return err
		}
	}
	return nil
}

func formatInstruction(instr Instruction) string {
	switch instr.Op {
	case OpPushConstant:
		return fmt.Sprintf("pushConstant %s", formatInline(instr.Constant))
	case OpPushFromStack:
		return fmt.Sprintf("pushFromStack %d", instr.Offset)
	case OpPopMultipleBelowTop:
		return fmt.Sprintf("popMultipleBelowTop %d", instr.Count)
	case OpCreateTag:
		return fmt.Sprintf("createTag %s", instr.Symbol)
	case OpCreateList:
		return fmt.Sprintf("createList %d", instr.Count)
	case OpCreateStruct:
		return fmt.Sprintf("createStruct %d", instr.Count)
	case OpCreateFunction:
		captured := "nothing"
		if len(instr.CapturedOffsets) > 0 {
			parts := make([]string, len(instr.CapturedOffsets))
			for i, off := range instr.CapturedOffsets {
				parts[i] = fmt.Sprintf("%d", off)
			}
			captured = strings.Join(parts, ", ")
		}
		return fmt.Sprintf("createFunction body@%d with %d args capturing %s", instr.BodyStart, instr.NumArgs, captured)
	case OpCall:
		return fmt.Sprintf("call with %d arguments", instr.NumArgs)
	case OpTailCall:
		return fmt.Sprintf("tailCall with %d arguments, popping %d locals", instr.NumArgs, instr.Count)
	case OpReturn:
		return "return"
	case OpPanic:
		return "panic"
	case OpTraceCallStarts:
		return fmt.Sprintf("traceCallStarts (%d args)", instr.NumArgs)
	case OpTraceCallEnds:
		return "traceCallEnds"
	case OpTraceExpressionEvaluated:
		return "traceExpressionEvaluated"
	case OpTraceFoundFuzzableFunction:
		return "traceFoundFuzzableFunction"
	default:
		return instr.Op.String()
	}
}

func formatInline(v heap.InlineObject) string {
	switch v.Kind {
	case heap.KindSmallInt:
		return fmt.Sprintf("%d", v.Int)
	case heap.KindInlineTag:
		return v.Text
	case heap.KindBuiltinRef:
		return "builtin:" + v.Text
	case heap.KindPointerValue:
		return fmt.Sprintf("handle(%d)", v.Handle)
	default:
		return "?"
	}
}
