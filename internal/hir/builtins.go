package hir

// BuiltinModule is the synthetic module name every other module's
// synthesized `use` function calls through `structGet`.
const BuiltinModule = "Builtins"

// BuiltinNames is the closed set of builtin-function symbol names, the
// keys of the Builtins module's "sparkles" struct (spec.md section 4.2).
// Grouped by the VM builtin families spec.md section 4.7 names:
// arithmetic, text (grapheme-aware), list, struct, control flow, and
// channel/handle operations.
var BuiltinNames = []string{
	// control flow / core
	"typeOf", "equals", "ifElse", "toDebugText", "textConcatenate",
	"structGet", "structHasKey", "structGetKeys",
	"functionRun", "getArgumentCount",
	"panic", "needsFulfilled",

	// arithmetic (math/big backed, see internal/heap)
	"intAdd", "intSubtract", "intMultiply", "intDivideTruncating",
	"intModulo", "intRemainder", "intCompareTo", "intBitLength",
	"intBitwiseAnd", "intBitwiseOr", "intBitwiseXor", "intShiftLeft", "intShiftRight",
	"intParse",

	// text (uax29 grapheme segmentation + go-runewidth display width)
	"textLength", "textGraphemes", "textCharacters", "textConcatenate2",
	"textContains", "textStartsWith", "textEndsWith", "textTrimStart", "textTrimEnd",
	"textGetRange", "textCompareTo", "textDisplayWidth",

	// list
	"listLength", "listGet", "listInsert", "listRemoveAt", "listReplace",

	// struct
	"structLength", "structValues", "structInsert",

	// tag
	"tagGetValue", "tagWithoutValue", "tagHasValue",

	// channel / handle (spec.md section 4.8)
	"channelCreate", "channelSend", "channelReceive",
	"fiberCreate", "fiberYield",
}

// pushSparkles synthesizes the Builtins module's "sparkles" struct (a map
// from builtin symbol to the corresponding Builtin reference) directly
// into body, and records its id plus key/value ids on l for the exports
// struct and `use` synthesis to reuse.
func (l *lowerer) pushSparkles(body *Body) {
	var keys, values []ID
	for _, name := range BuiltinNames {
		symbolID := l.fresh(l.root, "sparkles.key."+name)
		body.Push(symbolID, &Expression{Kind: KindSymbol, Text: capitalize(name)})
		valueID := l.fresh(l.root, "sparkles.value."+name)
		body.Push(valueID, &Expression{Kind: KindReference, Target: builtinRefID(name)})
		keys = append(keys, symbolID)
		values = append(values, valueID)
	}
	l.sparklesRef = body.Push(l.fresh(l.root, "sparkles"), &Expression{Kind: KindStruct, Keys: keys, Items: values})
	l.sparklesKeys, l.sparklesValues = keys, values
}

// builtinTable holds one shared synthetic namespace for builtin-function
// reference targets; the VM resolves these specially rather than through
// normal HIR lookup (see internal/vm builtin dispatch table).
var builtinTable = NewIDTable("$builtin")

var builtinIDs = func() map[string]ID {
	ids := make(map[string]ID, len(BuiltinNames))
	for _, name := range BuiltinNames {
		ids[name] = builtinTable.Child(builtinTable.Root(), name)
	}
	return ids
}()

func builtinRefID(name string) ID {
	return builtinIDs[name]
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
