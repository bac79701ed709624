package vm

import (
	"math/big"

	"fortio.org/safecast"

	"candy/internal/heap"
)

// builtinArity lists each builtin's fixed argument count (spec.md 4.7:
// "each builtin declares its arity"). callBuiltin panics rather than
// dispatching when the call site disagrees. The key set matches
// internal/hir's BuiltinNames exactly — that list is the Builtins
// module's exported "sparkles" vocabulary, so every name compiled
// Candy code can reference needs a dispatch entry here.
var builtinArity = map[string]int{
	// control flow / core
	"typeOf":            1,
	"equals":            2,
	"ifElse":            3,
	"toDebugText":       1,
	"textConcatenate":   2,
	"structGet":         2,
	"structHasKey":      2,
	"structGetKeys":     1,
	"structValues":      1,
	"structInsert":      3,
	"structLength":      1,
	"functionRun":       1,
	"getArgumentCount":  1,
	"panic":             1,
	"needsFulfilled":    1,

	// arithmetic
	"intAdd":              2,
	"intSubtract":         2,
	"intMultiply":         2,
	"intDivideTruncating": 2,
	"intModulo":           2,
	"intRemainder":        2,
	"intCompareTo":        2,
	"intBitLength":        1,
	"intBitwiseAnd":       2,
	"intBitwiseOr":        2,
	"intBitwiseXor":       2,
	"intShiftLeft":        2,
	"intShiftRight":       2,
	"intParse":            1,

	// text
	"textLength":       1,
	"textGraphemes":    1,
	"textCharacters":   1,
	"textConcatenate2": 2,
	"textContains":     2,
	"textStartsWith":   2,
	"textEndsWith":     2,
	"textTrimStart":    1,
	"textTrimEnd":      1,
	"textGetRange":     3,
	"textCompareTo":    2,
	"textDisplayWidth": 1,

	// list
	"listLength":   1,
	"listGet":      2,
	"listInsert":   3,
	"listReplace":  3,
	"listRemoveAt": 2,

	// tag
	"tagGetValue":    1,
	"tagWithoutValue": 1,
	"tagHasValue":    1,

	// channel / handle
	"channelCreate":  1,
	"channelSend":    2,
	"channelReceive": 1,

	// fiber tree (spec.md 4.8's parallel/try primitive, resolved by
	// internal/fiber)
	"fiberCreate": 1,
	"fiberYield":  1,
}

func (f *Fiber) callBuiltin(name string, args []heap.InlineObject, responsible heap.InlineObject) {
	arity, known := builtinArity[name]
	if !known {
		f.dropArgs(args...)
		f.triggerPanic("unknown builtin "+name, responsible)
		return
	}
	if len(args) != arity {
		f.dropArgs(args...)
		f.triggerPanic("builtin "+name+" called with the wrong number of arguments", responsible)
		return
	}

	switch name {
	case "intAdd":
		f.builtinIntBinary(name, args, responsible, func(a, b *big.Int) *big.Int { return new(big.Int).Add(a, b) })
	case "intSubtract":
		f.builtinIntBinary(name, args, responsible, func(a, b *big.Int) *big.Int { return new(big.Int).Sub(a, b) })
	case "intMultiply":
		f.builtinIntBinary(name, args, responsible, func(a, b *big.Int) *big.Int { return new(big.Int).Mul(a, b) })
	case "intDivideTruncating":
		f.builtinIntDivide(args, responsible)
	case "intRemainder":
		f.builtinIntRemainder(args, responsible)
	case "intModulo":
		f.builtinIntModulo(args, responsible)
	case "intCompareTo":
		f.builtinIntCompare(args, responsible)
	case "intShiftLeft":
		f.builtinIntShift(args, responsible, true)
	case "intShiftRight":
		f.builtinIntShift(args, responsible, false)
	case "intBitwiseAnd":
		f.builtinIntBinary(name, args, responsible, func(a, b *big.Int) *big.Int { return new(big.Int).And(a, b) })
	case "intBitwiseOr":
		f.builtinIntBinary(name, args, responsible, func(a, b *big.Int) *big.Int { return new(big.Int).Or(a, b) })
	case "intBitwiseXor":
		f.builtinIntBinary(name, args, responsible, func(a, b *big.Int) *big.Int { return new(big.Int).Xor(a, b) })
	case "intBitLength":
		f.builtinIntBitLength(args, responsible)
	case "intParse":
		f.builtinIntParse(args, responsible)

	case "textLength":
		f.builtinTextLength(args, responsible)
	case "textGraphemes", "textCharacters":
		f.builtinTextGraphemes(args, responsible)
	case "textContains":
		f.builtinTextContains(args, responsible)
	case "textStartsWith":
		f.builtinTextStartsEndsWith(args, responsible, true)
	case "textEndsWith":
		f.builtinTextStartsEndsWith(args, responsible, false)
	case "textGetRange":
		f.builtinTextGetRange(args, responsible)
	case "textConcatenate", "textConcatenate2":
		f.builtinTextConcatenate(args, responsible)
	case "textTrimStart":
		f.builtinTextTrim(args, responsible, true)
	case "textTrimEnd":
		f.builtinTextTrim(args, responsible, false)
	case "textCompareTo":
		f.builtinTextCompareTo(args, responsible)
	case "textDisplayWidth":
		f.builtinTextDisplayWidth(args, responsible)
	case "toDebugText":
		f.builtinToDebugText(args, responsible)

	case "listLength":
		f.builtinListLength(args, responsible)
	case "listGet":
		f.builtinListGet(args, responsible)
	case "listInsert":
		f.builtinListInsert(args, responsible)
	case "listReplace":
		f.builtinListReplace(args, responsible)
	case "listRemoveAt":
		f.builtinListRemove(args, responsible)

	case "structGet":
		f.builtinStructGet(args, responsible)
	case "structGetKeys":
		f.builtinStructKeys(args, responsible)
	case "structValues":
		f.builtinStructValues(args, responsible)
	case "structInsert":
		f.builtinStructInsert(args, responsible)
	case "structHasKey":
		f.builtinStructHasKey(args, responsible)
	case "structLength":
		f.builtinStructLength(args, responsible)

	case "tagGetValue":
		f.builtinTagGetValue(args, responsible)
	case "tagWithoutValue":
		f.builtinTagWithoutValue(args, responsible)
	case "tagHasValue":
		f.builtinTagHasValue(args, responsible)

	case "typeOf":
		f.builtinTypeOf(args)
	case "equals":
		f.builtinEquals(args)
	case "ifElse":
		f.builtinIfElse(args, responsible)
	case "functionRun":
		f.builtinFunctionRun(args, responsible)
	case "getArgumentCount":
		f.builtinGetArgumentCount(args, responsible)
	case "panic":
		f.builtinPanic(args, responsible)
	case "needsFulfilled":
		f.builtinNeedsFulfilled(args, responsible)

	case "channelCreate":
		f.builtinChannelCreate(args, responsible)
	case "channelSend":
		f.builtinChannelSend(args, responsible)
	case "channelReceive":
		f.builtinChannelReceive(args, responsible)

	case "fiberCreate":
		f.builtinFiberCreate(args, responsible)
	case "fiberYield":
		f.builtinFiberYield(args, responsible)

	default:
		f.dropArgs(args...)
		f.triggerPanic("unknown builtin "+name, responsible)
	}
}

// dropArgs releases every value in args that a builtin read but did not
// move into its result, keeping every builtin's refcount bookkeeping
// self-contained regardless of which path it returns on (spec.md
// testable property 5: no leaks).
func (f *Fiber) dropArgs(args ...heap.InlineObject) {
	for _, a := range args {
		heap.Drop(f.Heap, a)
	}
}

// asInt extracts a and b's arbitrary-precision value, resolving heap
// KindBigInt objects the same way inline small ints are read, so every
// arithmetic builtin works uniformly regardless of how an operand
// happens to be represented (spec.md 4.5's big-int overflow handling).
func (f *Fiber) asInt(v heap.InlineObject) (*big.Int, bool) {
	switch v.Kind {
	case heap.KindSmallInt:
		return big.NewInt(v.Int), true
	case heap.KindPointerValue:
		obj := f.Heap.Get(v.Handle)
		if obj == nil || obj.Kind != heap.KindBigInt {
			return nil, false
		}
		return obj.Int, true
	default:
		return nil, false
	}
}

// pushInt narrows n back to an inline small int when it fits, spilling
// to a heap KindBigInt object only when it doesn't (spec.md 4.5: "all
// narrowing conversions ... go through fortio.org/safecast so overflow
// is a checked panic, never silent wraparound" — here the checked
// failure just means "keep it boxed" rather than panicking, since
// overflow out of inline range is expected, ordinary behavior, not a
// user-visible error). IsInt64 is checked directly rather than relying
// on safecast.Conv on top of n.Int64(), since Int64() itself already
// truncates silently on overflow before safecast would ever see it.
func (f *Fiber) pushInt(n *big.Int) {
	if n.IsInt64() {
		f.push(heap.Int(n.Int64()))
		return
	}
	handle := f.Heap.Allocate(&heap.Object{Kind: heap.KindBigInt, Int: new(big.Int).Set(n)})
	f.push(heap.Pointer(handle))
}

func (f *Fiber) builtinIntBinary(name string, args []heap.InlineObject, responsible heap.InlineObject, op func(a, b *big.Int) *big.Int) {
	a, ok1 := f.asInt(args[0])
	b, ok2 := f.asInt(args[1])
	if !ok1 || !ok2 {
		f.dropArgs(args...)
		f.triggerPanic(name+" expects two ints", responsible)
		return
	}
	result := op(a, b)
	f.dropArgs(args...)
	f.pushInt(result)
}

func (f *Fiber) builtinIntDivide(args []heap.InlineObject, responsible heap.InlineObject) {
	a, ok1 := f.asInt(args[0])
	b, ok2 := f.asInt(args[1])
	if !ok1 || !ok2 {
		f.dropArgs(args...)
		f.triggerPanic("intDivideTruncating expects two ints", responsible)
		return
	}
	if b.Sign() == 0 {
		f.dropArgs(args...)
		f.triggerPanic("division by zero", responsible)
		return
	}
	q := new(big.Int).Quo(a, b)
	f.dropArgs(args...)
	f.pushInt(q)
}

func (f *Fiber) builtinIntRemainder(args []heap.InlineObject, responsible heap.InlineObject) {
	a, ok1 := f.asInt(args[0])
	b, ok2 := f.asInt(args[1])
	if !ok1 || !ok2 {
		f.dropArgs(args...)
		f.triggerPanic("intRemainder expects two ints", responsible)
		return
	}
	if b.Sign() == 0 {
		f.dropArgs(args...)
		f.triggerPanic("division by zero", responsible)
		return
	}
	r := new(big.Int).Rem(a, b)
	f.dropArgs(args...)
	f.pushInt(r)
}

func (f *Fiber) builtinIntModulo(args []heap.InlineObject, responsible heap.InlineObject) {
	a, ok1 := f.asInt(args[0])
	b, ok2 := f.asInt(args[1])
	if !ok1 || !ok2 {
		f.dropArgs(args...)
		f.triggerPanic("intModulo expects two ints", responsible)
		return
	}
	if b.Sign() == 0 {
		f.dropArgs(args...)
		f.triggerPanic("division by zero", responsible)
		return
	}
	m := new(big.Int).Mod(a, b)
	f.dropArgs(args...)
	f.pushInt(m)
}

func (f *Fiber) builtinIntCompare(args []heap.InlineObject, responsible heap.InlineObject) {
	a, ok1 := f.asInt(args[0])
	b, ok2 := f.asInt(args[1])
	if !ok1 || !ok2 {
		f.dropArgs(args...)
		f.triggerPanic("intCompareTo expects two ints", responsible)
		return
	}
	cmp := a.Cmp(b)
	f.dropArgs(args...)
	switch cmp {
	case -1:
		f.push(heap.Tag("Less"))
	case 0:
		f.push(heap.Tag("Equal"))
	default:
		f.push(heap.Tag("Greater"))
	}
}

func (f *Fiber) builtinIntShift(args []heap.InlineObject, responsible heap.InlineObject, left bool) {
	a, ok1 := f.asInt(args[0])
	b, ok2 := f.asInt(args[1])
	if !ok1 || !ok2 || !b.IsUint64() {
		f.dropArgs(args...)
		f.triggerPanic("shift expects an int and a non-negative int amount", responsible)
		return
	}
	amount, err := safecast.Conv[uint](b.Uint64())
	if err != nil {
		f.dropArgs(args...)
		f.triggerPanic("shift amount out of range", responsible)
		return
	}
	var result *big.Int
	if left {
		result = new(big.Int).Lsh(a, amount)
	} else {
		result = new(big.Int).Rsh(a, amount)
	}
	f.dropArgs(args...)
	f.pushInt(result)
}

func (f *Fiber) builtinIntBitLength(args []heap.InlineObject, responsible heap.InlineObject) {
	a, ok := f.asInt(args[0])
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("intBitLength expects an int", responsible)
		return
	}
	n := a.BitLen()
	f.dropArgs(args...)
	f.push(heap.Int(int64(n)))
}

// builtinIntParse reads a base-10 int out of a text, reporting failure
// as a value (Tag("None")) rather than a panic, mirroring the
// Some/Tag-with-payload convention Candy's other option-shaped results
// use (spec.md section 9 leaves the exact failure representation open;
// this follows the teacher's Option-tag idiom rather than inventing a
// distinct error scheme).
func (f *Fiber) builtinIntParse(args []heap.InlineObject, responsible heap.InlineObject) {
	s, ok := f.asText(args[0])
	if !ok {
		f.dropArgs(args...)
		f.triggerPanic("intParse expects a text", responsible)
		return
	}
	n, ok := new(big.Int).SetString(s, 10)
	f.dropArgs(args...)
	if !ok {
		f.push(heap.Tag("None"))
		return
	}
	f.pushInt(n)
	value := f.pop()
	handle := f.Heap.Allocate(&heap.Object{Kind: heap.KindTag, Symbol: "Some", Payload: value})
	f.push(heap.Pointer(handle))
}
