// Package fuzz generates and mutates random heap.InlineObject values
// for a fuzzable function's parameters, grounded directly on
// original_source/compiler/fuzzer/src/values.rs's InputGeneration/
// InlineObjectGeneration extension traits (SPEC_FULL.md section 12).
// Go has no trait-on-foreign-type mechanism, so the Rust extension
// traits become plain functions taking the heap and rng explicitly.
package fuzz

import (
	"math/big"
	"math/rand"

	"candy/internal/heap"
	"candy/internal/hir"
)

// alphabet is mutate_string's insertion character set, carried over
// verbatim from values.rs.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Generate produces one random InlineObject on h, recursing into
// nested lists/structs/tags while complexity stays above the
// thresholds values.rs uses to bound generated-value size. symbols is
// the pool of tag names Tag generation draws from (the fuzzed module's
// own tags, from which the caller assembles one global list).
func Generate(h *heap.Heap, rng *rand.Rand, complexity float64, symbols []string) heap.InlineObject {
	switch rng.Intn(6) + 1 {
	case 1:
		return makeInt(h, randomBigInt(rng, 10))
	case 2:
		return heap.Pointer(h.Allocate(&heap.Object{Kind: heap.KindText, Text: "test"}))
	case 3:
		symbol := symbols[rng.Intn(len(symbols))]
		if rng.Float64() >= 0.8 {
			return heap.Tag(symbol)
		}
		value := Generate(h, rng, complexity-10, symbols)
		return heap.Pointer(h.Allocate(&heap.Object{Kind: heap.KindTag, Symbol: symbol, Payload: value}))
	case 4:
		complexity -= 1
		var items []heap.InlineObject
		for complexity > 10 {
			items = append(items, Generate(h, rng, 10, symbols))
			complexity -= 10
		}
		return heap.Pointer(h.Allocate(&heap.Object{Kind: heap.KindList, Items: items}))
	case 5:
		complexity -= 1
		var fields []heap.StructField
		for complexity > 20 {
			key := Generate(h, rng, 10, symbols)
			value := Generate(h, rng, 10, symbols)
			fields = append(fields, heap.StructField{Key: key, Value: value})
			complexity -= 20
		}
		return heap.Pointer(h.Allocate(&heap.Object{Kind: heap.KindStruct, Fields: fields}))
	default:
		return heap.BuiltinRef(hir.BuiltinNames[rng.Intn(len(hir.BuiltinNames))])
	}
}

// GenerateMutated returns a mutated form of v, 10% of the time simply
// replacing it with a fresh Generate call, otherwise mutating within
// its own kind (values.rs's generate_mutated).
func GenerateMutated(h *heap.Heap, rng *rand.Rand, v heap.InlineObject, symbols []string) heap.InlineObject {
	if rng.Float64() < 0.1 {
		return Generate(h, rng, 100, symbols)
	}

	switch v.Kind {
	case heap.KindSmallInt:
		return makeInt(h, new(big.Int).Add(big.NewInt(v.Int), big.NewInt(int64(rng.Intn(20)-10))))
	case heap.KindBuiltinRef:
		return heap.BuiltinRef(hir.BuiltinNames[rng.Intn(len(hir.BuiltinNames))])
	case heap.KindInlineTag:
		return mutateTag(h, rng, v.Text, heap.InlineObject{}, false, symbols)
	case heap.KindPointerValue:
		return generateMutatedPointer(h, rng, v, symbols)
	default:
		return Generate(h, rng, 100, symbols)
	}
}

func generateMutatedPointer(h *heap.Heap, rng *rand.Rand, v heap.InlineObject, symbols []string) heap.InlineObject {
	obj := h.Get(v.Handle)
	if obj == nil {
		return Generate(h, rng, 100, symbols)
	}
	switch obj.Kind {
	case heap.KindBigInt:
		delta := big.NewInt(int64(rng.Intn(20) - 10))
		return makeInt(h, new(big.Int).Add(obj.Int, delta))
	case heap.KindText:
		return heap.Pointer(h.Allocate(&heap.Object{Kind: heap.KindText, Text: mutateString(rng, obj.Text)}))
	case heap.KindTag:
		return mutateTag(h, rng, obj.Symbol, obj.Payload, true, symbols)
	case heap.KindList:
		return mutateList(h, rng, obj, symbols)
	case heap.KindStruct:
		return mutateStruct(h, rng, obj, symbols)
	default:
		return Generate(h, rng, 100, symbols)
	}
}

// mutateTag mirrors values.rs's Data::Tag arm: rename the symbol
// (keeping whatever payload it had), mutate an existing payload, strip
// one, or add one to a bare tag — hasValue distinguishes a bare inline
// tag (no payload, never stored on the heap) from a heap KindTag
// object (which always carries one).
func mutateTag(h *heap.Heap, rng *rand.Rand, symbol string, payload heap.InlineObject, hasValue bool, symbols []string) heap.InlineObject {
	switch {
	case rng.Float64() < 0.5:
		if !hasValue {
			return heap.Tag(symbols[rng.Intn(len(symbols))])
		}
		return heap.Pointer(h.Allocate(&heap.Object{Kind: heap.KindTag, Symbol: symbols[rng.Intn(len(symbols))], Payload: payload}))
	case hasValue:
		if rng.Float64() < 0.9 {
			mutated := GenerateMutated(h, rng, payload, symbols)
			return heap.Pointer(h.Allocate(&heap.Object{Kind: heap.KindTag, Symbol: symbol, Payload: mutated}))
		}
		return heap.Tag(symbol)
	default:
		value := Generate(h, rng, 100, symbols)
		return heap.Pointer(h.Allocate(&heap.Object{Kind: heap.KindTag, Symbol: symbol, Payload: value}))
	}
}

func mutateList(h *heap.Heap, rng *rand.Rand, obj *heap.Object, symbols []string) heap.InlineObject {
	items := append([]heap.InlineObject(nil), obj.Items...)
	switch {
	case rng.Float64() < 0.9 && len(items) > 0:
		i := rng.Intn(len(items))
		items[i] = GenerateMutated(h, rng, items[i], symbols)
	case rng.Float64() < 0.5 && len(items) > 0:
		i := rng.Intn(len(items))
		items = append(items[:i], items[i+1:]...)
	default:
		i := rng.Intn(len(items) + 1)
		newItem := Generate(h, rng, 100, symbols)
		items = append(items[:i], append([]heap.InlineObject{newItem}, items[i:]...)...)
	}
	return heap.Pointer(h.Allocate(&heap.Object{Kind: heap.KindList, Items: items}))
}

func mutateStruct(h *heap.Heap, rng *rand.Rand, obj *heap.Object, symbols []string) heap.InlineObject {
	fields := append([]heap.StructField(nil), obj.Fields...)
	if rng.Float64() < 0.9 && len(fields) > 0 {
		i := rng.Intn(len(fields))
		fields[i].Value = GenerateMutated(h, rng, fields[i].Value, symbols)
	} else {
		// values.rs's TODO ("Support removing value from a struct") is
		// left unaddressed there too; only insertion/update is mutated.
		key := Generate(h, rng, 10, symbols)
		value := Generate(h, rng, 100, symbols)
		fields = append(fields, heap.StructField{Key: key, Value: value})
	}
	return heap.Pointer(h.Allocate(&heap.Object{Kind: heap.KindStruct, Fields: fields}))
}

func mutateString(rng *rand.Rand, s string) string {
	runes := []rune(s)
	if rng.Float64() < 0.5 && len(runes) > 0 {
		start := rng.Intn(len(runes) + 1)
		end := start + rng.Intn(len(runes)-start+1)
		return string(append(append([]rune{}, runes[:start]...), runes[end:]...))
	}
	at := rng.Intn(len(runes) + 1)
	n := rng.Intn(10)
	inserted := make([]rune, n)
	for i := range inserted {
		inserted[i] = rune(alphabet[rng.Intn(len(alphabet))])
	}
	out := append([]rune{}, runes[:at]...)
	out = append(out, inserted...)
	out = append(out, runes[at:]...)
	return string(out)
}

// makeInt narrows n to an inline small int when it fits, spilling to a
// heap KindBigInt object only when it doesn't — the same convention
// internal/vm's pushInt uses for builtin arithmetic results, followed
// here so generated values aren't distinguishable from ones the VM
// itself would have produced.
func makeInt(h *heap.Heap, n *big.Int) heap.InlineObject {
	if n.IsInt64() {
		return heap.Int(n.Int64())
	}
	return heap.Pointer(h.Allocate(&heap.Object{Kind: heap.KindBigInt, Int: n}))
}

// randomBigInt returns a uniformly random value in [0, 2^bits).
func randomBigInt(rng *rand.Rand, bits uint) *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), bits)
	return new(big.Int).Rand(rng, max)
}

// Complexity measures v's structural size the way values.rs's
// `complexity` does: bit length for ints, byte length for text, and a
// recursive sum for tags/lists/structs.
func Complexity(h *heap.Heap, v heap.InlineObject) int {
	switch v.Kind {
	case heap.KindSmallInt:
		return bitLength(v.Int)
	case heap.KindInlineTag, heap.KindBuiltinRef:
		return 1
	case heap.KindPointerValue:
		return complexityOf(h, v.Handle)
	default:
		return 1
	}
}

func complexityOf(h *heap.Heap, handle heap.Handle) int {
	obj := h.Get(handle)
	if obj == nil {
		return 1
	}
	switch obj.Kind {
	case heap.KindBigInt:
		return obj.Int.BitLen()
	case heap.KindText:
		return len(obj.Text) + 1
	case heap.KindTag:
		// a heap KindTag object always carries a payload (spec.md 4.5;
		// bare tags are represented inline and never reach this branch).
		return len(obj.Symbol) + Complexity(h, obj.Payload)
	case heap.KindList:
		n := 1
		for _, item := range obj.Items {
			n += Complexity(h, item)
		}
		return n
	case heap.KindStruct:
		n := 1
		for _, f := range obj.Fields {
			n += Complexity(h, f.Key) + Complexity(h, f.Value)
		}
		return n
	default:
		return 1
	}
}

func bitLength(v int64) int {
	if v < 0 {
		v = -v
	}
	n := 0
	for v > 0 {
		n++
		v >>= 1
	}
	if n == 0 {
		n = 1
	}
	return n
}
