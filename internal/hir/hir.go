// Package hir implements Candy's high-level IR: named-scope resolution,
// text-interpolation and `needs` desugaring, and the public-exports
// struct every module body evaluates to.
package hir

import (
	"math/big"

	"candy/internal/ast"
	"candy/internal/source"
)

// Kind enumerates the HIR expression variants from spec.md section 4.2.
type Kind uint8

const (
	KindInt Kind = iota
	KindText
	KindSymbol // a bare tag name, e.g. True, False, Nothing, or a user tag
	KindReference
	KindCall
	KindFunction
	KindUseModule
	KindNeeds
	KindMatch
	KindMatchCase
	KindStruct
	KindStructAccess
	KindList
	KindDestructure
	KindPatternIdentifierReference
	KindParameter // a function parameter or match-pattern binding site; carries no sub-expression
	KindError
)

// Expression is one HIR node, tagged-struct style: only the fields for
// Kind are meaningful. Expressions live inside a Body, addressed by ID.
type Expression struct {
	Kind Kind
	Span source.Span
	AST  ast.ID // zero if synthesized (no direct AST origin)

	Int  *big.Int // KindInt
	Text string   // KindText literal / KindSymbol name / KindStructAccess field / KindPatternIdentifierReference binding name

	Target ID   // KindReference target / KindCall callee / KindStructAccess base
	Args   []ID // KindCall arguments / KindList items

	Keys   []ID // KindStruct field keys, parallel to Items
	Items  []ID // KindStruct field values

	Params []ID  // KindFunction parameter IDs (each bound in Body's scope)
	Body   *Body // KindFunction body / KindMatchCase body

	RelativePath []string // KindUseModule

	Condition ID // KindNeeds
	Message   ID // KindNeeds, zero if the one-argument form was used

	Scrutinee ID   // KindMatch
	Cases     []ID // KindMatch -> KindMatchCase ids
	Pattern   ID   // KindMatchCase / KindDestructure: a pattern-shaped HIR expression

	Value ID // KindDestructure: the value being destructured

	ErrorMessage string // KindError
}

// Fuzzable reports whether e counts as fuzzable, that is, safe to drive
// with synthetic inputs: any Function expression with no captured free
// variables beyond its own parameters. Where the function is bound and
// whether it was written with a curly-brace body are not checked.
func (e *Expression) Fuzzable(captures []ID) bool {
	return e.Kind == KindFunction && len(captures) == 0
}

// Body is an ordered sequence of bound expressions plus the id of the
// expression whose value the body evaluates to (its last entry, by
// construction). Order defines evaluation order and LIR stack layout.
type Body struct {
	Table       *IDTable
	IDs         []ID
	Expressions map[ID]*Expression
}

func newBody() *Body { return &Body{Expressions: map[ID]*Expression{}} }

// Push appends a new expression under id, in body order.
func (b *Body) Push(id ID, expr *Expression) ID {
	b.IDs = append(b.IDs, id)
	b.Expressions[id] = expr
	return id
}

// Get returns the expression bound to id, or nil if id is not local to
// this body (it may belong to an enclosing body).
func (b *Body) Get(id ID) *Expression { return b.Expressions[id] }

// ReturnID is the id whose expression value the body evaluates to.
func (b *Body) ReturnID() ID {
	if len(b.IDs) == 0 {
		return ID(0)
	}
	return b.IDs[len(b.IDs)-1]
}
