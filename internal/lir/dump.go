package lir

import (
	"github.com/vmihailenco/msgpack/v5"

	"candy/internal/heap"
	"candy/internal/hir"
)

// debugInstruction is the wire shape MarshalDebug serializes: plain
// exported fields msgpack can round-trip without custom codecs, one
// step removed from Instruction's in-memory layout (which carries a
// heap.InlineObject that embeds a live Handle, meaningless outside the
// program that produced it).
type debugInstruction struct {
	Op              uint8
	ConstantKind    uint8
	ConstantInt     int64
	ConstantText    string
	ConstantHandle  uint32
	Offset          int
	Count           int
	Symbol          string
	CapturedOffsets []int
	NumArgs         int
	BodyStart       int
	Origin          uint32
}

type debugProgram struct {
	Module          string
	Instructions    []debugInstruction
	ModuleBodyStart int
}

// MarshalDebug encodes p as a compact binary blob (SPEC_FULL.md 4.4; no
// CLI flag writes it), independent of Go's
// in-memory representation so dumps remain stable across refactors of
// Instruction itself.
func (p *Program) MarshalDebug() ([]byte, error) {
	out := debugProgram{Module: p.Module, ModuleBodyStart: p.ModuleBodyStart}
	for _, instr := range p.Instructions {
		d := debugInstruction{
			Op:              uint8(instr.Op),
			ConstantKind:    uint8(instr.Constant.Kind),
			ConstantInt:     instr.Constant.Int,
			ConstantText:    instr.Constant.Text,
			ConstantHandle:  uint32(instr.Constant.Handle),
			Offset:          instr.Offset,
			Count:           instr.Count,
			Symbol:          instr.Symbol,
			NumArgs:         instr.NumArgs,
			BodyStart:       instr.BodyStart,
			Origin:          uint32(instr.Origin),
		}
		for _, off := range instr.CapturedOffsets {
			d.CapturedOffsets = append(d.CapturedOffsets, off)
		}
		out.Instructions = append(out.Instructions, d)
	}
	return msgpack.Marshal(out)
}

// UnmarshalDebug decodes a blob written by MarshalDebug. The constant
// heap referenced by any KindPointerValue constants is not part of the
// dump; it exists only to let tooling inspect instruction shape and
// provenance, not to reconstruct a runnable Program.
func UnmarshalDebug(data []byte) (module string, instructions []Instruction, moduleBodyStart int, err error) {
	var in debugProgram
	if err := msgpack.Unmarshal(data, &in); err != nil {
		return "", nil, 0, err
	}
	out := make([]Instruction, len(in.Instructions))
	for i, d := range in.Instructions {
		instr := Instruction{
			Op: Op(d.Op),
			Constant: heap.InlineObject{
				Kind:   heap.ValueKind(d.ConstantKind),
				Int:    d.ConstantInt,
				Text:   d.ConstantText,
				Handle: heap.Handle(d.ConstantHandle),
			},
			Offset:    d.Offset,
			Count:     d.Count,
			Symbol:    d.Symbol,
			NumArgs:   d.NumArgs,
			BodyStart: d.BodyStart,
			Origin:    hir.ID(d.Origin),
		}
		for _, off := range d.CapturedOffsets {
			instr.CapturedOffsets = append(instr.CapturedOffsets, off)
		}
		out[i] = instr
	}
	return in.Module, out, in.ModuleBodyStart, nil
}
