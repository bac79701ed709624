// Package ast lowers a cst.Tree into an abstract syntax tree: punctuation
// is desugared away, every node gets a stable ast.ID, and a bidirectional
// AST<->CST id map is kept for diagnostics and IDE-style tooling.
package ast

import (
	"candy/internal/cst"
	"candy/internal/diag"
	"candy/internal/ids"
	"candy/internal/rcst"
	"candy/internal/source"
)

// ID identifies an AST node.
type ID = ids.ID

// Kind enumerates the AST node variants from spec.md section 3.
type Kind uint8

const (
	KindInt Kind = iota
	KindText
	KindTextPart
	KindIdentifier
	KindSymbol
	KindList
	KindStruct
	KindStructAccess
	KindFunction
	KindCall
	KindAssignment
	KindMatch
	KindMatchCase
	KindOrPattern
	KindError
)

var kindNames = [...]string{
	"int", "text", "textPart", "identifier", "symbol", "list", "struct",
	"structAccess", "function", "call", "assignment", "match",
	"matchCase", "orPattern", "error",
}

// String renders k's node variant name, for the parse command's output.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Node is one AST node. Only the fields relevant to Kind are populated;
// this mirrors the teacher's tagged-struct variant style rather than a
// Go-interface-per-case hierarchy, keeping traversal allocation-free.
type Node struct {
	Kind Kind
	Span source.Span

	// Leaf payloads.
	Literal  string // decimal text; HIR lowering parses it into the heap's big-int form
	Name      string // Identifier / Symbol / StructAccess field name
	TextParts []ID   // Text: literal TextPart + interpolation expr children, in order

	// Struct-ish.
	Items  []ID // List items, Struct field values (paired with Keys), call args
	Keys   []ID // Struct field keys, parallel to Items

	// Function.
	Params []ID // Identifier nodes
	Body   []ID // statements

	// Call / StructAccess.
	Target ID // Call callee, StructAccess base

	// Assignment.
	IsPublic bool
	LHS      ID // Identifier (value) or Call (function sugar) or List/Struct (destructure)
	RHS      ID

	// Match.
	Scrutinee ID
	Cases     []ID // MatchCase nodes

	// OrPattern.
	Alternatives []ID

	// Error.
	Message string
}

// Tree is one file's AST: an arena plus top-level statement order.
type Tree struct {
	arena    *ids.Arena[Node]
	Roots    []ID
	ToCst    map[ID]cst.ID
	FromCst  map[cst.ID]ID
}

func (t *Tree) Node(id ID) *Node { return t.arena.Get(id) }

func newTree() *Tree {
	return &Tree{arena: ids.NewArena[Node](), ToCst: map[ID]cst.ID{}, FromCst: map[cst.ID]ID{}}
}

func (t *Tree) add(cstID cst.ID, n Node) ID {
	id := t.arena.Add(n)
	if cstID != 0 {
		t.ToCst[id] = cstID
		t.FromCst[cstID] = id
	}
	return id
}

// Lower desugars a cst.Tree into an ast.Tree, accumulating LoweringErrors
// (PublicAssignmentInNotTopLevel, PublicAssignmentWithSameName) in bag.
func Lower(c *cst.Tree, bag *diag.Bag) *Tree {
	t := newTree()
	l := &lowerer{cst: c, t: t, bag: bag, publicNames: map[string]bool{}}
	for _, r := range c.Roots {
		if id, ok := l.lowerTopLevelStatement(r); ok {
			t.Roots = append(t.Roots, id)
		}
	}
	return t
}

type lowerer struct {
	cst         *cst.Tree
	t           *Tree
	bag         *diag.Bag
	publicNames map[string]bool
}

func (l *lowerer) lowerTopLevelStatement(id cst.ID) (ID, bool) {
	return l.lowerStatement(id, true)
}

func (l *lowerer) lowerStatement(id cst.ID, topLevel bool) (ID, bool) {
	n := l.cst.Node(id)
	if n.Kind == rcst.KindAssignment {
		return l.lowerAssignment(id, topLevel), true
	}
	return l.lowerExpr(id), true
}

func (l *lowerer) lowerAssignment(id cst.ID, topLevel bool) ID {
	n := l.cst.Node(id)
	span := n.Span

	isPublic := false
	var exprChildren []cst.ID
	for _, c := range n.Children {
		cn := l.cst.Node(c)
		if cn.Kind == rcst.KindIdentifier && cn.Text == "pub" {
			isPublic = true
			continue
		}
		exprChildren = append(exprChildren, c)
	}
	if len(exprChildren) < 2 {
		return l.t.add(id, Node{Kind: KindError, Span: span, Message: "malformed assignment"})
	}
	lhsCst, rhsCst := exprChildren[0], exprChildren[len(exprChildren)-1]

	if isPublic && !topLevel {
		l.bag.Add(diag.New(diag.CodePublicAssignmentInNotTopLevel, span, "`pub` assignments are only allowed at the top level of a module"))
	}

	lhs := l.lowerExpr(lhsCst)
	rhs := l.lowerExpr(rhsCst)

	lhsNode := l.t.Node(lhs)
	name := lhsNode.Name
	if lhsNode.Kind == KindCall {
		if target := l.t.Node(lhsNode.Target); target.Kind == KindIdentifier {
			name = target.Name
		}
	}
	if isPublic {
		if name != "" {
			if l.publicNames[name] {
				l.bag.Add(diag.New(diag.CodePublicAssignmentWithSameName, span, "duplicate public assignment name `"+name+"`"))
			}
			l.publicNames[name] = true
		}
	}

	return l.t.add(id, Node{
		Kind: KindAssignment, Span: span, IsPublic: isPublic,
		LHS: lhs, RHS: rhs, Name: name,
	})
}

// lowerExpr dispatches on CST kind, desugaring punctuation-only nodes
// away (parens/brackets/commas/colons/arrows are CST-only and never
// reach the AST as their own nodes).
func (l *lowerer) lowerExpr(id cst.ID) ID {
	n := l.cst.Node(id)
	switch n.Kind {
	case rcst.KindInt:
		return l.t.add(id, Node{Kind: KindInt, Span: n.Span, Literal: n.Text})
	case rcst.KindIdentifier:
		return l.t.add(id, Node{Kind: KindIdentifier, Span: n.Span, Name: n.Text})
	case rcst.KindSymbol:
		return l.t.add(id, Node{Kind: KindSymbol, Span: n.Span, Name: n.Text})
	case rcst.KindText:
		return l.lowerText(id)
	case rcst.KindList:
		return l.lowerList(id)
	case rcst.KindStruct:
		return l.lowerStruct(id)
	case rcst.KindStructAccess:
		return l.lowerStructAccess(id)
	case rcst.KindFunction:
		return l.lowerFunction(id)
	case rcst.KindCall:
		return l.lowerCall(id)
	case rcst.KindMatch:
		return l.lowerMatch(id)
	case rcst.KindMatchCase:
		return l.lowerMatchCase(id)
	case rcst.KindOrPattern:
		return l.lowerOrPattern(id)
	case rcst.KindError:
		return l.t.add(id, Node{Kind: KindError, Span: n.Span, Message: "parse error"})
	case rcst.KindAssignment:
		return l.lowerAssignment(id, false)
	default:
		return l.t.add(id, Node{Kind: KindError, Span: n.Span, Message: "unexpected node in expression position"})
	}
}

func (l *lowerer) meaningfulChildren(id cst.ID) []cst.ID {
	n := l.cst.Node(id)
	var out []cst.ID
	for _, c := range n.Children {
		out = append(out, c)
	}
	return out
}

func (l *lowerer) lowerText(id cst.ID) ID {
	n := l.cst.Node(id)
	var parts []ID
	for _, c := range n.Children {
		cn := l.cst.Node(c)
		switch cn.Kind {
		case rcst.KindTextPart:
			parts = append(parts, l.t.add(c, Node{Kind: KindTextPart, Span: cn.Span, Literal: cn.Text}))
		case rcst.KindTextInterpolation:
			for _, ic := range cn.Children {
				icn := l.cst.Node(ic)
				if isExprKind(icn.Kind) {
					parts = append(parts, l.lowerExpr(ic))
				}
			}
		}
	}
	return l.t.add(id, Node{Kind: KindText, Span: n.Span, TextParts: parts})
}

func isExprKind(k rcst.Kind) bool {
	switch k {
	case rcst.KindInt, rcst.KindText, rcst.KindIdentifier, rcst.KindSymbol,
		rcst.KindList, rcst.KindStruct, rcst.KindStructAccess, rcst.KindFunction,
		rcst.KindCall, rcst.KindMatch, rcst.KindAssignment, rcst.KindError:
		return true
	default:
		return false
	}
}

func (l *lowerer) lowerList(id cst.ID) ID {
	n := l.cst.Node(id)
	var items []ID
	for _, c := range n.Children {
		if isExprKind(l.cst.Node(c).Kind) {
			items = append(items, l.lowerExpr(c))
		}
	}
	return l.t.add(id, Node{Kind: KindList, Span: n.Span, Items: items})
}

func (l *lowerer) lowerStruct(id cst.ID) ID {
	n := l.cst.Node(id)
	var keys, values []ID
	for _, c := range n.Children {
		cn := l.cst.Node(c)
		if cn.Kind != rcst.KindStructField {
			continue
		}
		var key, value cst.ID
		idx := 0
		for _, fc := range cn.Children {
			fcn := l.cst.Node(fc)
			if !isExprKind(fcn.Kind) {
				continue
			}
			if idx == 0 {
				key = fc
			} else {
				value = fc
			}
			idx++
		}
		if key != 0 {
			keys = append(keys, l.lowerExpr(key))
		} else {
			keys = append(keys, l.t.add(0, Node{Kind: KindError, Span: cn.Span, Message: "struct field missing key"}))
		}
		if value != 0 {
			values = append(values, l.lowerExpr(value))
		} else {
			values = append(values, l.t.add(0, Node{Kind: KindError, Span: cn.Span, Message: "struct field missing value"}))
		}
	}
	return l.t.add(id, Node{Kind: KindStruct, Span: n.Span, Keys: keys, Items: values})
}

func (l *lowerer) lowerStructAccess(id cst.ID) ID {
	n := l.cst.Node(id)
	var base cst.ID
	var fieldName string
	for _, c := range n.Children {
		cn := l.cst.Node(c)
		if cn.Kind == rcst.KindIdentifier && base != 0 {
			fieldName = cn.Text
			continue
		}
		if isExprKind(cn.Kind) && base == 0 {
			base = c
		}
	}
	target := l.lowerExpr(base)
	return l.t.add(id, Node{Kind: KindStructAccess, Span: n.Span, Target: target, Name: fieldName})
}

func (l *lowerer) lowerFunction(id cst.ID) ID {
	n := l.cst.Node(id)
	var params []ID
	var body []ID
	for _, c := range n.Children {
		cn := l.cst.Node(c)
		switch cn.Kind {
		case rcst.KindFunctionParameters:
			for _, pc := range cn.Children {
				pcn := l.cst.Node(pc)
				if pcn.Kind == rcst.KindIdentifier {
					params = append(params, l.t.add(pc, Node{Kind: KindIdentifier, Span: pcn.Span, Name: pcn.Text}))
				}
			}
		case rcst.KindBody:
			for _, bc := range cn.Children {
				bcn := l.cst.Node(bc)
				if bcn.Kind == rcst.KindAssignment {
					body = append(body, l.lowerAssignment(bc, false))
				} else if isExprKind(bcn.Kind) {
					body = append(body, l.lowerExpr(bc))
				}
			}
		}
	}
	// Whether a function is fuzzable is decided later, during MIR
	// lowering, by hir.Expression.Fuzzable, which looks only at captured
	// variables, not at Params or the shape of the body.
	return l.t.add(id, Node{Kind: KindFunction, Span: n.Span, Params: params, Body: body})
}

func (l *lowerer) lowerCall(id cst.ID) ID {
	n := l.cst.Node(id)
	var exprChildren []cst.ID
	for _, c := range n.Children {
		if isExprKind(l.cst.Node(c).Kind) {
			exprChildren = append(exprChildren, c)
		}
	}
	if len(exprChildren) == 0 {
		return l.t.add(id, Node{Kind: KindError, Span: n.Span, Message: "empty call"})
	}
	fn := l.lowerExpr(exprChildren[0])
	var args []ID
	for _, c := range exprChildren[1:] {
		args = append(args, l.lowerExpr(c))
	}
	return l.t.add(id, Node{Kind: KindCall, Span: n.Span, Target: fn, Items: args})
}

func (l *lowerer) lowerMatch(id cst.ID) ID {
	n := l.cst.Node(id)
	var scrutineeCst cst.ID
	var cases []ID
	for i, c := range n.Children {
		cn := l.cst.Node(c)
		switch cn.Kind {
		case rcst.KindMatchCase:
			cases = append(cases, l.lowerMatchCase(c))
		default:
			// Children[0] is the `match` keyword leaf itself.
			if i > 0 && isExprKind(cn.Kind) && scrutineeCst == 0 {
				scrutineeCst = c
			}
		}
	}
	scrutinee := l.lowerExpr(scrutineeCst)
	return l.t.add(id, Node{Kind: KindMatch, Span: n.Span, Scrutinee: scrutinee, Cases: cases})
}

func (l *lowerer) lowerMatchCase(id cst.ID) ID {
	n := l.cst.Node(id)
	var exprChildren []cst.ID
	for _, c := range n.Children {
		if isExprKind(l.cst.Node(c).Kind) || l.cst.Node(c).Kind == rcst.KindOrPattern {
			exprChildren = append(exprChildren, c)
		}
	}
	if len(exprChildren) < 2 {
		return l.t.add(id, Node{Kind: KindError, Span: n.Span, Message: "malformed match case"})
	}
	pattern := l.lowerPattern(exprChildren[0])
	body := l.lowerExpr(exprChildren[1])
	return l.t.add(id, Node{Kind: KindMatchCase, Span: n.Span, LHS: pattern, RHS: body})
}

func (l *lowerer) lowerOrPattern(id cst.ID) ID {
	n := l.cst.Node(id)
	var alts []ID
	for _, c := range n.Children {
		if isExprKind(l.cst.Node(c).Kind) {
			alts = append(alts, l.lowerPattern(c))
		}
	}
	return l.t.add(id, Node{Kind: KindOrPattern, Span: n.Span, Alternatives: alts})
}

func (l *lowerer) lowerPattern(id cst.ID) ID {
	if l.cst.Node(id).Kind == rcst.KindOrPattern {
		return l.lowerOrPattern(id)
	}
	return l.lowerExpr(id)
}
