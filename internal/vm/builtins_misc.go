package vm

import (
	"strconv"

	"candy/internal/heap"
)

// typeTagOf returns the default tag typeOf produces for v's runtime
// type (spec.md 4.7: "typeOf returns a default tag").
func (f *Fiber) typeTagOf(v heap.InlineObject) string {
	switch v.Kind {
	case heap.KindSmallInt:
		return "Int"
	case heap.KindInlineTag:
		return "Tag"
	case heap.KindBuiltinRef:
		return "Function"
	case heap.KindPointerValue:
		obj := f.Heap.Get(v.Handle)
		if obj == nil {
			return "Nothing"
		}
		switch obj.Kind {
		case heap.KindText:
			return "Text"
		case heap.KindList:
			return "List"
		case heap.KindStruct:
			return "Struct"
		case heap.KindTag:
			return "Tag"
		case heap.KindFunction:
			return "Function"
		case heap.KindBigInt:
			return "Int"
		case heap.KindChannel:
			return "Channel"
		case heap.KindHandle:
			return "Function"
		default:
			return "Nothing"
		}
	default:
		return "Nothing"
	}
}

func (f *Fiber) builtinTypeOf(args []heap.InlineObject) {
	tag := f.typeTagOf(args[0])
	f.dropArgs(args...)
	f.push(heap.Tag(tag))
}

// valuesEqual implements structural equality across every InlineObject
// shape (spec.md 4.7's `equals`), recursing into list items and struct
// fields. Functions and handles compare by identity (same heap handle),
// since Candy has no notion of closure equality beyond "is it the exact
// same value". Read-only: never consumes a or b's refcount.
func valuesEqual(f *Fiber, a, b heap.InlineObject) bool {
	if a.Kind == heap.KindSmallInt || b.Kind == heap.KindSmallInt {
		ai, aok := f.asInt(a)
		bi, bok := f.asInt(b)
		if aok && bok {
			return ai.Cmp(bi) == 0
		}
	}
	switch a.Kind {
	case heap.KindInlineTag:
		return b.Kind == heap.KindInlineTag && a.Text == b.Text
	case heap.KindBuiltinRef:
		return b.Kind == heap.KindBuiltinRef && a.Text == b.Text
	case heap.KindPointerValue:
		if b.Kind != heap.KindPointerValue {
			return false
		}
		if a.Handle == b.Handle {
			return true
		}
		objA, objB := f.Heap.Get(a.Handle), f.Heap.Get(b.Handle)
		if objA == nil || objB == nil || objA.Kind != objB.Kind {
			return false
		}
		switch objA.Kind {
		case heap.KindText:
			return objA.Text == objB.Text
		case heap.KindBigInt:
			return objA.Int.Cmp(objB.Int) == 0
		case heap.KindTag:
			return objA.Symbol == objB.Symbol && valuesEqual(f, objA.Payload, objB.Payload)
		case heap.KindList:
			if len(objA.Items) != len(objB.Items) {
				return false
			}
			for i := range objA.Items {
				if !valuesEqual(f, objA.Items[i], objB.Items[i]) {
					return false
				}
			}
			return true
		case heap.KindStruct:
			if len(objA.Fields) != len(objB.Fields) {
				return false
			}
			for _, fld := range objA.Fields {
				if i, found := findField(objB, f, fld.Key); !found || !valuesEqual(f, fld.Value, objB.Fields[i].Value) {
					return false
				}
			}
			return true
		default:
			return false
		}
	default:
		return false
	}
}

func (f *Fiber) builtinEquals(args []heap.InlineObject) {
	result := valuesEqual(f, args[0], args[1])
	f.dropArgs(args...)
	f.push(heap.Tag(boolName(result)))
}

func (f *Fiber) builtinIfElse(args []heap.InlineObject, responsible heap.InlineObject) {
	condition, thenFn, elseFn := args[0], args[1], args[2]
	if condition.Kind != heap.KindInlineTag || (condition.Text != "True" && condition.Text != "False") {
		f.dropArgs(args...)
		f.triggerPanic("ifElse condition must be True or False", responsible)
		return
	}
	if condition.Text == "True" {
		heap.Drop(f.Heap, elseFn)
		f.InvokeValue(thenFn, nil, responsible)
	} else {
		heap.Drop(f.Heap, thenFn)
		f.InvokeValue(elseFn, nil, responsible)
	}
}

// builtinFunctionRun invokes a zero-argument function value. Unlike
// every other builtin, it cannot compute a result in one step: it must
// re-enter the call machinery itself (push a frame, jump ip into the
// argument's body) exactly as an ordinary Call would, so callBuiltin's
// dispatcher simply hands off to InvokeValue instead of pushing a value.
// responsible is not dropped here: InvokeValue forwards it into the
// invoked body's own locals, so ownership transfers rather than ending.
func (f *Fiber) builtinFunctionRun(args []heap.InlineObject, responsible heap.InlineObject) {
	f.InvokeValue(args[0], nil, responsible)
}

// builtinGetArgumentCount reports a function value's declared arity,
// reading it from either a Function closure or a builtin's own static
// arity table.
func (f *Fiber) builtinGetArgumentCount(args []heap.InlineObject, responsible heap.InlineObject) {
	v := args[0]
	switch v.Kind {
	case heap.KindBuiltinRef:
		arity, ok := builtinArity[v.Text]
		f.dropArgs(args...)
		if !ok {
			f.triggerPanic("getArgumentCount: unknown builtin "+v.Text, responsible)
			return
		}
		f.push(heap.Int(int64(arity)))
	case heap.KindPointerValue:
		obj := f.Heap.Get(v.Handle)
		if obj == nil || obj.Kind != heap.KindFunction {
			f.dropArgs(args...)
			f.triggerPanic("getArgumentCount expects a function", responsible)
			return
		}
		n := obj.Closure.NumArgs
		f.dropArgs(args...)
		f.push(heap.Int(int64(n)))
	default:
		f.dropArgs(args...)
		f.triggerPanic("getArgumentCount expects a function", responsible)
	}
}

// builtinPanic lets Candy code trigger a panic as an ordinary call
// rather than through the dedicated Panic instruction, for library code
// that wants to raise without going through a `needs` condition. reason
// becomes PanicReason outright: no copy, no drop — ownership transfers
// from the call argument directly into the fiber's panic state.
func (f *Fiber) builtinPanic(args []heap.InlineObject, responsible heap.InlineObject) {
	f.setPanic(args[0], responsible)
}

// builtinNeedsFulfilled is the callable counterpart of the `needs`
// expression form that internal/lir desugars inline at compile time
// (see compile.go's compileNeeds): library code that wants the same
// "panic unless true" check as a plain function call uses this instead.
func (f *Fiber) builtinNeedsFulfilled(args []heap.InlineObject, responsible heap.InlineObject) {
	condition := args[0]
	if condition.Kind == heap.KindInlineTag && condition.Text == "True" {
		f.dropArgs(args...)
		f.push(heap.Nothing)
		return
	}
	if condition.Kind == heap.KindInlineTag && condition.Text == "False" {
		f.dropArgs(args...)
		f.triggerPanic("Needs was not fulfilled", responsible)
		return
	}
	f.dropArgs(args...)
	f.triggerPanic("needsFulfilled expects a Tag(True) or Tag(False) condition", responsible)
}

// builtinToDebugText renders any value as Candy's Debug-style text
// representation: quoted for Text, decimal for Int, bracketed for
// List/Struct, symbol(payload) for Tag, and a fixed token for
// Function/Channel values that have no useful literal form.
func (f *Fiber) builtinToDebugText(args []heap.InlineObject, _ heap.InlineObject) {
	s := f.debugTextOf(args[0])
	f.dropArgs(args...)
	f.pushText(s)
}

func (f *Fiber) debugTextOf(v heap.InlineObject) string {
	switch v.Kind {
	case heap.KindSmallInt:
		return strconv.FormatInt(v.Int, 10)
	case heap.KindInlineTag:
		return v.Text
	case heap.KindBuiltinRef:
		return "function"
	case heap.KindPointerValue:
		obj := f.Heap.Get(v.Handle)
		if obj == nil {
			return "Nothing"
		}
		switch obj.Kind {
		case heap.KindText:
			return quoteForDebug(obj.Text)
		case heap.KindBigInt:
			return obj.Int.String()
		case heap.KindTag:
			// A heap KindTag object always carries a real payload — bare
			// tags are represented inline (KindInlineTag) with no heap
			// allocation at all, so there is no "tag with zero payload"
			// case to special-case here.
			return obj.Symbol + "(" + f.debugTextOf(obj.Payload) + ")"
		case heap.KindList:
			parts := make([]string, len(obj.Items))
			for i, item := range obj.Items {
				parts[i] = f.debugTextOf(item)
			}
			return "[" + joinComma(parts) + "]"
		case heap.KindStruct:
			parts := make([]string, len(obj.Fields))
			for i, fld := range obj.Fields {
				parts[i] = f.debugTextOf(fld.Key) + ": " + f.debugTextOf(fld.Value)
			}
			return "{" + joinComma(parts) + "}"
		case heap.KindFunction:
			return "function"
		case heap.KindChannel:
			return "channel"
		case heap.KindHandle:
			return "function"
		default:
			return "Nothing"
		}
	default:
		return "Nothing"
	}
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func (f *Fiber) asTag(v heap.InlineObject) (symbol string, payload heap.InlineObject, hasPayload bool, ok bool) {
	switch v.Kind {
	case heap.KindInlineTag:
		return v.Text, heap.InlineObject{}, false, true
	case heap.KindPointerValue:
		obj := f.Heap.Get(v.Handle)
		if obj == nil || obj.Kind != heap.KindTag {
			return "", heap.InlineObject{}, false, false
		}
		return obj.Symbol, obj.Payload, true, true
	default:
		return "", heap.InlineObject{}, false, false
	}
}

func (f *Fiber) builtinTagGetValue(args []heap.InlineObject, responsible heap.InlineObject) {
	_, payload, hasPayload, ok := f.asTag(args[0])
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("tagGetValue expects a tag", responsible)
		return
	}
	if !hasPayload {
		f.dropArgs(args...)
		f.triggerPanic("tag has no value", responsible)
		return
	}
	heap.Dup(f.Heap, payload)
	f.dropArgs(args...)
	f.push(payload)
}

func (f *Fiber) builtinTagWithoutValue(args []heap.InlineObject, responsible heap.InlineObject) {
	symbol, _, _, ok := f.asTag(args[0])
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("tagWithoutValue expects a tag", responsible)
		return
	}
	f.dropArgs(args...)
	f.push(heap.Tag(symbol))
}

func (f *Fiber) builtinTagHasValue(args []heap.InlineObject, responsible heap.InlineObject) {
	_, _, hasPayload, ok := f.asTag(args[0])
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("tagHasValue expects a tag", responsible)
		return
	}
	f.dropArgs(args...)
	f.push(heap.Tag(boolName(hasPayload)))
}
