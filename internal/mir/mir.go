// Package mir implements Candy's mid-level IR: explicit per-call
// responsibility threading, optional Trace* instrumentation, and the
// fixed-point optimizer (reference following, constant folding, inlining,
// constant lifting, module folding, common-subtree elimination, tree
// shaking) described in spec.md sections 4.2-4.3.
package mir

import (
	"math/big"

	"candy/internal/hir"
)

// ID is a flat per-body counter, unlike hir.ID's hierarchical arena: MIR
// ids have no shared-prefix structure to exploit (spec.md section 9),
// matching original_source/compiler/frontend/src/mir/id.rs's
// `struct Id(usize)`.
type ID uint32

// Kind enumerates the MIR expression variants, grounded on
// original_source/compiler/frontend/src/mir/expression.rs's Expression
// enum. KindNeeds is a deliberate addition beyond that enum: the
// original desugars `needs` during HIR-to-MIR lowering into a chain of
// ifElse/Panic builtin calls inline, but keeping it as one explicit node
// through to the LIR compiler lets the optimizer's "needs True ..."
// constant-folding rule (spec.md 4.3) and the LIR compiler's Panic
// instruction emission both pattern-match a single case instead of
// threading fragile call-shape recognition through the whole pipeline.
type Kind uint8

const (
	KindInt Kind = iota
	KindText
	KindTag
	KindBuiltin
	KindList
	KindStruct
	KindReference
	KindHirID
	KindFunction
	KindParameter
	KindCall
	KindNeeds
	KindUseModule
	KindPanic
	KindMultiple
	KindTraceCallStarts
	KindTraceCallEnds
	KindTraceExpressionEvaluated
	KindTraceFoundFuzzableFunction
)

// StructField is one key/value pair of a KindStruct expression.
type StructField struct {
	Key   ID
	Value ID
}

// Expression is one MIR node, tagged-struct style like hir.Expression:
// only the fields relevant to Kind are populated.
type Expression struct {
	Kind  Kind
	HirID hir.ID // the HIR expression this MIR expression originates from, for tracers and diagnostics; zero if synthesized

	Int  *big.Int // KindInt
	Text string   // KindText literal / KindTag symbol / KindBuiltin name

	TagValue *ID // KindTag: optional payload

	Fields []StructField // KindStruct

	Target ID   // KindReference
	HirRef hir.ID // KindHirID: a reference to a not-yet-lowered hir.ID (module/global), resolved during module folding

	Items []ID // KindList

	// KindFunction
	OriginalHirs          []hir.ID
	Parameters            []ID
	ResponsibleParameter  ID
	Body                  *Body

	// KindCall / KindNeeds / KindUseModule / KindPanic / KindTraceCallStarts /
	// KindTraceFoundFuzzableFunction (the function whose discovery is
	// being announced)
	Function     ID
	Arguments    []ID
	Condition    ID // KindNeeds
	Message      ID // KindNeeds: zero if the one-argument form was used
	Reason       ID // KindPanic
	Responsible  ID

	CurrentModule string   // KindUseModule
	RelativePath  []string // KindUseModule

	Inner *Body // KindMultiple: a nested body to splice into the outer one at flattening time

	// Trace* (spec.md 4.2, gated by config.TracingConfig)
	HirCall         hir.ID // KindTraceCallStarts
	ReturnValue     ID     // KindTraceCallEnds
	HirExpression   hir.ID // KindTraceExpressionEvaluated
	Value           ID     // KindTraceExpressionEvaluated
	HirDefinition   hir.ID // KindTraceFoundFuzzableFunction

	// pure caches whether this expression has been proven side-effect
	// free by the optimizer's purity pass (spec.md 4.3 step 3); nil
	// means "not yet computed this round".
	pure *bool
}

// Body is an ordered, SSA sequence of MIR expressions: every ID is
// defined exactly once (spec.md section 8, testable property 3), in the
// order IDs records, ending in the expression whose value the
// body evaluates to.
type Body struct {
	nextID      ID
	IDs         []ID
	Expressions map[ID]*Expression
}

// NewBody creates an empty body with its own id counter.
func NewBody() *Body { return &Body{Expressions: map[ID]*Expression{}} }

// Fresh mints a new id without binding it to an expression yet; used by
// the optimizer when it needs an id ahead of constructing the
// expression that will occupy it (e.g. hash-consing).
func (b *Body) Fresh() ID {
	id := b.nextID
	b.nextID++
	return id
}

// Push appends expr under a freshly minted id, in body order.
func (b *Body) Push(expr *Expression) ID {
	id := b.Fresh()
	b.IDs = append(b.IDs, id)
	b.Expressions[id] = expr
	return id
}

// Bind records expr under an id minted earlier via Fresh, in body order.
func (b *Body) Bind(id ID, expr *Expression) {
	b.IDs = append(b.IDs, id)
	b.Expressions[id] = expr
}

// Get returns the expression bound to id, or nil if id does not belong
// to this body (it may be a parameter of an enclosing function).
func (b *Body) Get(id ID) *Expression { return b.Expressions[id] }

// ReturnID is the id whose value the body evaluates to: its last bound
// expression, by construction.
func (b *Body) ReturnID() ID {
	if len(b.IDs) == 0 {
		return 0
	}
	return b.IDs[len(b.IDs)-1]
}

// insertBefore mints a fresh id bound to expr and splices it into the
// instruction order immediately before existing, preserving the
// SSA "referenced id is defined earlier" property (spec.md testable
// property 3) for callers that must introduce a new expression an
// already-processed one will reference.
func (b *Body) insertBefore(existing ID, expr *Expression) ID {
	id := b.Fresh()
	b.Expressions[id] = expr
	for i, other := range b.IDs {
		if other == existing {
			b.IDs = append(b.IDs[:i], append([]ID{id}, b.IDs[i:]...)...)
			return id
		}
	}
	b.IDs = append(b.IDs, id)
	return id
}

// Remove drops id from the body's instruction order and expression map;
// used by tree shaking once no remaining reference targets it.
func (b *Body) Remove(id ID) {
	delete(b.Expressions, id)
	for i, other := range b.IDs {
		if other == id {
			b.IDs = append(b.IDs[:i], b.IDs[i+1:]...)
			return
		}
	}
}
