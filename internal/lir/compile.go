package lir

import (
	"math/big"

	"candy/internal/heap"
	"candy/internal/hir"
	"candy/internal/mir"
)

// Compile flattens body (assumed already optimized by mir.Optimize) into
// a Program. The module's own top-level body is treated exactly like a
// zero-argument, zero-capture function: its instructions start at
// ModuleBodyStart and end in a Return, so the VM can run it with the
// same frame machinery it uses for every other function (spec.md 4.4,
// grounded on original_source/compiler/vm/src/mir_to_lir.rs's
// module_function, adapted from its nested-closure tree to one flat
// instruction array with absolute body-start offsets).
func Compile(module string, body *mir.Body) *Program {
	c := &compiler{
		constHeap:    heap.New(),
		constants:    map[mir.ID]heap.InlineObject{},
		aliasOf:      map[mir.ID]mir.ID{},
		nextSentinel: ^mir.ID(0),
	}
	start := c.compileTopLevel(body)
	return &Program{
		Module:          module,
		Instructions:    c.instructions,
		ConstantHeap:    c.constHeap,
		ModuleBodyStart: start,
	}
}

type compiler struct {
	instructions []Instruction
	constHeap    *heap.Heap
	constants    map[mir.ID]heap.InlineObject
	aliasOf      map[mir.ID]mir.ID

	// nextSentinel mints synthetic stack-accounting ids for intermediate
	// values (a pushed condition, a freshly created closure) that have
	// no mir.ID of their own, counting down from the top of the id space
	// so they can never collide with a real per-body counter id.
	nextSentinel mir.ID
}

func (c *compiler) emit(instr Instruction) int {
	c.instructions = append(c.instructions, instr)
	return len(c.instructions) - 1
}

func (c *compiler) sentinel() mir.ID {
	s := c.nextSentinel
	c.nextSentinel--
	return s
}

func (c *compiler) resolveAlias(id mir.ID) mir.ID {
	for {
		target, ok := c.aliasOf[id]
		if !ok {
			return id
		}
		id = target
	}
}

func offsetOf(id mir.ID, stack []mir.ID) StackOffset {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == id {
			return len(stack) - 1 - i
		}
	}
	panic("lir: value not found on simulated stack (compiler bug)")
}

// pushOnto emits whichever instruction makes id's value appear on top
// of the simulated stack (a constant load or a dup-from-offset) and
// records the new slot in scratch.
func (c *compiler) pushOnto(scratch *[]mir.ID, id mir.ID, origin hir.ID) {
	id = c.resolveAlias(id)
	if v, ok := c.constants[id]; ok {
		c.emit(Instruction{Op: OpPushConstant, Constant: v, Origin: origin})
	} else {
		c.emit(Instruction{Op: OpPushFromStack, Offset: offsetOf(id, *scratch), Origin: origin})
	}
	*scratch = append(*scratch, id)
}

// pushAnon emits instr (assumed to push exactly one value with no
// mir.ID of its own) and records its slot under a fresh sentinel,
// returning that sentinel so later code can reference the value.
func (c *compiler) pushAnon(scratch *[]mir.ID, instr Instruction) mir.ID {
	c.emit(instr)
	s := c.sentinel()
	*scratch = append(*scratch, s)
	return s
}

func isConstantExpr(expr *mir.Expression) bool {
	switch expr.Kind {
	case mir.KindInt, mir.KindText, mir.KindBuiltin, mir.KindHirID:
		return true
	case mir.KindTag:
		return expr.TagValue == nil
	default:
		return false
	}
}

func (c *compiler) makeConstant(expr *mir.Expression) heap.InlineObject {
	switch expr.Kind {
	case mir.KindInt:
		if expr.Int.IsInt64() {
			return heap.Int(expr.Int.Int64())
		}
		handle := c.constHeap.Allocate(&heap.Object{Kind: heap.KindBigInt, Int: new(big.Int).Set(expr.Int)})
		return heap.Pointer(handle)
	case mir.KindText:
		handle := c.constHeap.Allocate(&heap.Object{Kind: heap.KindText, Text: expr.Text})
		return heap.Pointer(handle)
	case mir.KindTag:
		return heap.Tag(expr.Text)
	case mir.KindBuiltin:
		return heap.BuiltinRef(expr.Text)
	case mir.KindHirID:
		return heap.Int(int64(expr.HirRef))
	default:
		panic("lir: makeConstant called on a non-constant expression")
	}
}

func (c *compiler) internTextConstant(s string) heap.InlineObject {
	handle := c.constHeap.Allocate(&heap.Object{Kind: heap.KindText, Text: s})
	return heap.Pointer(handle)
}

// compileTopLevel compiles the module body as a capture-free, argument-
// free function. Its return value is the module's exported struct.
func (c *compiler) compileTopLevel(body *mir.Body) int {
	start := len(c.instructions)
	var locals []mir.ID
	for _, id := range body.IDs {
		c.compileBodyStatement(id, body.Get(id), &locals)
	}
	if len(body.IDs) == 0 {
		c.emit(Instruction{Op: OpPushConstant, Constant: heap.Nothing})
	} else {
		scratch := append([]mir.ID(nil), locals...)
		c.pushOnto(&scratch, body.ReturnID(), 0)
	}
	c.emit(Instruction{Op: OpReturn})
	return start
}

// compileFunctionBody compiles one lambda: its entry stack is captured
// (in CapturedOffsets order), then responsibleParam, then params, laid
// down in that order by the VM's Call instruction before handing off
// (spec.md 4.6's "push captured inline objects, push args", with
// responsible threaded alongside per spec.md 4.2).
func (c *compiler) compileFunctionBody(body *mir.Body, captured []mir.ID, responsibleParam mir.ID, params []mir.ID) int {
	start := len(c.instructions)
	locals := append([]mir.ID{}, captured...)
	locals = append(locals, responsibleParam)
	locals = append(locals, params...)

	for _, id := range body.IDs {
		c.compileBodyStatement(id, body.Get(id), &locals)
	}

	if len(body.IDs) == 0 {
		c.emit(Instruction{Op: OpPushConstant, Constant: heap.Nothing})
	} else {
		scratch := append([]mir.ID(nil), locals...)
		c.pushOnto(&scratch, body.ReturnID(), 0)
	}
	c.emit(Instruction{Op: OpReturn})
	return start
}

func (c *compiler) compileBodyStatement(id mir.ID, expr *mir.Expression, locals *[]mir.ID) {
	switch {
	case expr.Kind == mir.KindParameter:
		// Already seeded into locals by the caller (captured vars,
		// responsibleParam, or a declared param) before this body's
		// own instructions run.
		return
	case expr.Kind == mir.KindReference:
		c.aliasOf[id] = c.resolveAlias(expr.Target)
	case isConstantExpr(expr):
		c.constants[id] = c.makeConstant(expr)
	default:
		c.compileExpr(id, expr, locals)
	}
}

// compileExpr compiles one non-constant, non-reference, non-parameter
// MIR expression, leaving exactly one new value on top of the
// (simulated) stack and recording it under id in *locals — except for
// TraceCallStarts, TraceCallEnds and TraceFoundFuzzableFunction, which
// have no stack effect of their own and are never referenced again, so
// they're excluded from *locals. TraceExpressionEvaluated leaves its
// pushed copy of the value on the stack and is recorded like any value.
func (c *compiler) compileExpr(id mir.ID, expr *mir.Expression, locals *[]mir.ID) {
	scratch := append([]mir.ID(nil), (*locals)...)
	push := func(target mir.ID) { c.pushOnto(&scratch, target, expr.HirID) }

	switch expr.Kind {
	case mir.KindList:
		for _, item := range expr.Items {
			push(item)
		}
		c.emit(Instruction{Op: OpCreateList, Count: len(expr.Items), Origin: expr.HirID})

	case mir.KindStruct:
		for _, f := range expr.Fields {
			push(f.Key)
			push(f.Value)
		}
		c.emit(Instruction{Op: OpCreateStruct, Count: len(expr.Fields), Origin: expr.HirID})

	case mir.KindTag: // TagValue != nil; payload-less tags are handled as constants
		push(*expr.TagValue)
		c.emit(Instruction{Op: OpCreateTag, Symbol: expr.Text, Origin: expr.HirID})

	case mir.KindFunction:
		captured := c.freeVariables(expr.Body, expr)
		offsets := make([]StackOffset, len(captured))
		for i, cid := range captured {
			offsets[i] = offsetOf(cid, scratch)
		}
		bodyStart := c.compileFunctionBody(expr.Body, captured, expr.ResponsibleParameter, expr.Parameters)
		c.emit(Instruction{
			Op:              OpCreateFunction,
			CapturedOffsets: offsets,
			NumArgs:         len(expr.Parameters),
			BodyStart:       bodyStart,
			Origin:          expr.HirID,
		})

	case mir.KindCall:
		push(expr.Function)
		for _, a := range expr.Arguments {
			push(a)
		}
		push(expr.Responsible)
		c.emit(Instruction{Op: OpCall, NumArgs: len(expr.Arguments), Origin: expr.HirID})

	case mir.KindPanic:
		push(expr.Responsible)
		push(expr.Reason)
		c.emit(Instruction{Op: OpPanic, Origin: expr.HirID})

	case mir.KindTraceCallStarts:
		// Pushed in the same order Call itself will push them in (function,
		// args, responsible); the VM pops and drops all of them again after
		// notifying the tracer, since this instruction has no stack effect
		// of its own — the real Call right after it pushes its own copies.
		push(expr.Function)
		for _, a := range expr.Arguments {
			push(a)
		}
		push(expr.Responsible)
		c.emit(Instruction{Op: OpTraceCallStarts, NumArgs: len(expr.Arguments), Origin: expr.HirCall})
		return

	case mir.KindTraceCallEnds:
		push(expr.ReturnValue)
		c.emit(Instruction{Op: OpTraceCallEnds})
		return

	case mir.KindTraceExpressionEvaluated:
		push(expr.Value)
		c.emit(Instruction{Op: OpTraceExpressionEvaluated, Origin: expr.HirExpression})

	case mir.KindTraceFoundFuzzableFunction:
		push(expr.Function)
		c.emit(Instruction{Op: OpTraceFoundFuzzableFunction, Origin: expr.HirDefinition})
		return

	case mir.KindNeeds:
		c.compileNeeds(expr, locals)
		return

	case mir.KindUseModule:
		// By the time optimized MIR reaches LIR compilation, cross-module
		// references should already have been resolved by mir.Optimize's
		// module-folding pass (see internal/mir/optimize.go's foldModule,
		// which splices the cache's optimized body in or synthesizes a
		// cycle Panic). A surviving KindUseModule here means the LIR was
		// compiled from un-optimized or cache-less MIR; treat it the same
		// way foldModule treats a cycle, rather than defining a separate
		// runtime instruction the closed LIR set has no room for.
		push(expr.Responsible)
		c.pushOnto(&scratch, c.sentinelConstant(c.internTextConstant("module "+pathOf(expr)+" was not resolved before LIR compilation")), expr.HirID)
		c.emit(Instruction{Op: OpPanic, Origin: expr.HirID})

	case mir.KindMultiple:
		// Should already have been spliced away by mir.Optimize's
		// flattenMultiples pass; handle defensively by inlining.
		c.compileInline(expr.Inner, locals, &scratch)

	default:
		panic("lir: compileExpr: unexpected MIR kind")
	}

	*locals = append(*locals, id)
}

// sentinelConstant records a constant under a fresh sentinel id so it
// can flow through the same push-by-id machinery as real values.
func (c *compiler) sentinelConstant(v heap.InlineObject) mir.ID {
	s := c.sentinel()
	c.constants[s] = v
	return s
}

func pathOf(expr *mir.Expression) string {
	if len(expr.RelativePath) == 0 {
		return expr.CurrentModule
	}
	path := expr.CurrentModule
	for _, seg := range expr.RelativePath {
		path += "/" + seg
	}
	return path
}

// compileInline splices inner's instructions into the current body in
// place, used only as a defensive fallback for un-flattened Multiples.
func (c *compiler) compileInline(inner *mir.Body, locals *[]mir.ID, scratch *[]mir.ID) {
	if inner == nil {
		return
	}
	innerLocals := append([]mir.ID(nil), (*scratch)...)
	for _, id := range inner.IDs {
		c.compileBodyStatement(id, inner.Get(id), &innerLocals)
	}
	if len(inner.IDs) > 0 {
		tmp := append([]mir.ID(nil), innerLocals...)
		c.pushOnto(&tmp, inner.ReturnID(), 0)
	}
	*locals = append(*locals, c.sentinel())
}

// compileNeeds desugars a surviving `needs` into the same branch-free
// "build two closures, let ifElse pick one, invoke it" pattern used for
// Match expressions, but at the LIR boundary instead of during MIR
// lowering (mir.go's doc comment explains why KindNeeds is kept as one
// node that far: the optimizer's `needs True -> Nothing` constant fold
// only has to pattern-match a single case, and most needs conditions
// are in fact constant after optimization, so this synthesis path is
// only exercised for genuinely dynamic conditions).
func (c *compiler) compileNeeds(expr *mir.Expression, locals *[]mir.ID) {
	condition := c.resolveAlias(expr.Condition)
	message := c.resolveAlias(expr.Message)
	responsible := c.resolveAlias(expr.Responsible)

	// The then/else branches have no mir.Body of their own — they're
	// synthesized directly as raw instructions rather than routed
	// through compileFunctionBody, which expects a real MIR body to walk.
	thenStart := len(c.instructions)
	c.emit(Instruction{Op: OpPushConstant, Constant: heap.Nothing, Origin: expr.HirID})
	c.emit(Instruction{Op: OpReturn})

	elseStart := len(c.instructions)
	elseEntry := []mir.ID{responsible, message}
	elseScratch := append([]mir.ID(nil), elseEntry...)
	c.pushOnto(&elseScratch, responsible, expr.HirID)
	c.pushOnto(&elseScratch, message, expr.HirID)
	c.emit(Instruction{Op: OpPanic, Origin: expr.HirID})

	scratch := append([]mir.ID(nil), (*locals)...)
	c.pushOnto(&scratch, condition, expr.HirID)
	thenVal := c.pushAnon(&scratch, Instruction{Op: OpCreateFunction, BodyStart: thenStart, Origin: expr.HirID})
	elseOffsets := []StackOffset{offsetOf(responsible, scratch), offsetOf(message, scratch)}
	elseVal := c.pushAnon(&scratch, Instruction{Op: OpCreateFunction, CapturedOffsets: elseOffsets, BodyStart: elseStart, Origin: expr.HirID})

	c.pushOnto(&scratch, c.sentinelConstant(heap.BuiltinRef("ifElse")), expr.HirID)
	c.pushOnto(&scratch, condition, expr.HirID)
	c.pushOnto(&scratch, thenVal, expr.HirID)
	c.pushOnto(&scratch, elseVal, expr.HirID)
	c.pushOnto(&scratch, responsible, expr.HirID)
	selected := c.pushAnon(&scratch, Instruction{Op: OpCall, NumArgs: 3, Origin: expr.HirID})

	c.pushOnto(&scratch, selected, expr.HirID)
	c.pushOnto(&scratch, responsible, expr.HirID)
	result := c.pushAnon(&scratch, Instruction{Op: OpCall, NumArgs: 0, Origin: expr.HirID})

	*locals = append(*locals, result)
}

// freeVariables computes the ids a function body references that it
// does not itself define or bind as a parameter, recursing into nested
// closures so a grandchild's free variable also becomes this function's
// free variable (it must be re-captured and forwarded).
func (c *compiler) freeVariables(body *mir.Body, fnExpr *mir.Expression) []mir.ID {
	bound := map[mir.ID]bool{fnExpr.ResponsibleParameter: true}
	for _, id := range body.IDs {
		bound[id] = true
	}
	for _, p := range fnExpr.Parameters {
		bound[p] = true
	}

	seen := map[mir.ID]bool{}
	var free []mir.ID
	consider := func(id mir.ID) {
		id = c.resolveAlias(id)
		if bound[id] || seen[id] {
			return
		}
		if _, isConst := c.constants[id]; isConst {
			return
		}
		seen[id] = true
		free = append(free, id)
	}

	var walk func(e *mir.Expression)
	walk = func(e *mir.Expression) {
		switch e.Kind {
		case mir.KindReference:
			consider(e.Target)
		case mir.KindTag:
			if e.TagValue != nil {
				consider(*e.TagValue)
			}
		case mir.KindList:
			for _, it := range e.Items {
				consider(it)
			}
		case mir.KindStruct:
			for _, f := range e.Fields {
				consider(f.Key)
				consider(f.Value)
			}
		case mir.KindCall, mir.KindTraceCallStarts:
			consider(e.Function)
			for _, a := range e.Arguments {
				consider(a)
			}
			consider(e.Responsible)
		case mir.KindNeeds:
			consider(e.Condition)
			consider(e.Message)
			consider(e.Responsible)
		case mir.KindPanic:
			consider(e.Reason)
			consider(e.Responsible)
		case mir.KindTraceCallEnds:
			consider(e.ReturnValue)
		case mir.KindTraceExpressionEvaluated:
			consider(e.Value)
		case mir.KindTraceFoundFuzzableFunction:
			consider(e.Function)
		case mir.KindFunction:
			for _, fv := range c.freeVariables(e.Body, e) {
				consider(fv)
			}
		}
	}
	for _, id := range body.IDs {
		walk(body.Get(id))
	}
	return free
}
