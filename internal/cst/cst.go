// Package cst promotes a lossless rcst.Tree into a tree of stable, typed
// node IDs and byte spans, dropping pure-trivia leaves (whitespace,
// comments) but keeping every semantically meaningful node and every
// rcst.Error node (as a diagnostic, surfaced through the returned Bag).
package cst

import (
	"fmt"

	"candy/internal/diag"
	"candy/internal/ids"
	"candy/internal/rcst"
	"candy/internal/source"
)

// ID identifies a CST node.
type ID = ids.ID

// Kind mirrors the semantically-relevant subset of rcst.Kind; trivia kinds
// are never promoted.
type Kind = rcst.Kind

// Node is a promoted CST node: a kind, a span, and promoted children.
// Leaf text (identifiers, ints, literal text parts) is kept verbatim so
// AST lowering never needs to go back to raw source bytes.
type Node struct {
	Kind     Kind
	Span     source.Span
	Text     string
	Children []ID

	ErrorKind rcst.ErrorKind
}

// Tree is one file's promoted CST, plus the inverse map back to the
// originating rcst.ID for every promoted node (the rcst->cst leg of the
// bidirectional span/ID maps spec.md section 2 requires).
type Tree struct {
	File    source.FileID
	arena   *ids.Arena[Node]
	Roots   []ID
	ToRcst  map[ID]rcst.ID
	FromRcst map[rcst.ID]ID
}

// Node returns the promoted node for id.
func (t *Tree) Node(id ID) *Node { return t.arena.Get(id) }

// Lower promotes an rcst.Tree into a cst.Tree, collecting one diagnostic
// per rcst.Error node encountered (ParseError, per spec.md section 7).
func Lower(rc *rcst.Tree, bag *diag.Bag) *Tree {
	t := &Tree{
		File:     rc.File,
		arena:    ids.NewArena[Node](),
		ToRcst:   make(map[ID]rcst.ID),
		FromRcst: make(map[rcst.ID]ID),
	}
	for _, root := range rc.Roots {
		if id, ok := promote(rc, root, t, bag); ok {
			t.Roots = append(t.Roots, id)
		}
	}
	return t
}

// isTrivia reports whether an rcst node kind carries no semantic content.
func isTrivia(k Kind) bool {
	switch k {
	case rcst.KindWhitespace, rcst.KindNewline, rcst.KindComment, rcst.KindTrailingWhitespace,
		rcst.KindOpeningParenthesis, rcst.KindClosingParenthesis,
		rcst.KindOpeningBracket, rcst.KindClosingBracket,
		rcst.KindOpeningCurlyBrace, rcst.KindClosingCurlyBrace,
		rcst.KindComma, rcst.KindColon, rcst.KindColonEqualsSign, rcst.KindBar,
		rcst.KindEqualsSign, rcst.KindPercentSign, rcst.KindArrow, rcst.KindDot,
		rcst.KindOctothorpe, rcst.KindQuote:
		return true
	default:
		return false
	}
}

func promote(rc *rcst.Tree, id rcst.ID, t *Tree, bag *diag.Bag) (ID, bool) {
	n := rc.Node(id)
	if n.Kind == rcst.KindError {
		bag.Add(errorDiagnostic(n))
		// Error nodes are still promoted (as a CST Error node) so later
		// stages can produce an Error AST/HIR node at the same location.
	} else if isTrivia(n.Kind) {
		return 0, false
	}

	var children []ID
	for _, c := range n.Children {
		if cid, ok := promote(rc, c, t, bag); ok {
			children = append(children, cid)
		}
	}

	cid := t.arena.Add(Node{Kind: n.Kind, Span: n.Span, Text: n.Text, Children: children, ErrorKind: n.ErrorKind})
	t.ToRcst[cid] = id
	t.FromRcst[id] = cid
	return cid, true
}

func errorDiagnostic(n *rcst.Node) *diag.Diagnostic {
	code, msg := errorCodeAndMessage(n.ErrorKind)
	return diag.New(code, n.Span, msg)
}

func errorCodeAndMessage(k rcst.ErrorKind) (diag.Code, string) {
	switch k {
	case rcst.ErrCurlyBraceNotClosed:
		return diag.CodeCurlyBraceNotClosed, "unclosed curly brace"
	case rcst.ErrIntContainsNonDigits:
		return diag.CodeIntContainsNonDigits, "integer literal contains non-digit characters"
	case rcst.ErrListItemMissesValue:
		return diag.CodeListItemMissesValue, "list item is missing a value"
	case rcst.ErrListNotClosed:
		return diag.CodeListNotClosed, "unclosed list"
	case rcst.ErrParenthesisNotClosed:
		return diag.CodeParenthesisNotClosed, "unclosed parenthesis"
	case rcst.ErrPipeMissesCall:
		return diag.CodePipeMissesCall, "pipe is not followed by a call"
	case rcst.ErrStructFieldMissesColon:
		return diag.CodeStructFieldMissesColon, "struct field is missing a colon"
	case rcst.ErrStructFieldMissesKey:
		return diag.CodeStructFieldMissesKey, "struct field is missing a key"
	case rcst.ErrStructFieldMissesValue:
		return diag.CodeStructFieldMissesValue, "struct field is missing a value"
	case rcst.ErrStructNotClosed:
		return diag.CodeStructNotClosed, "unclosed struct"
	case rcst.ErrTextNotClosed:
		return diag.CodeTextNotClosed, "unclosed text literal"
	case rcst.ErrTextNotSufficientlyIndented:
		return diag.CodeTextNotSufficientlyIndented, "text literal is not sufficiently indented"
	case rcst.ErrWeirdWhitespace:
		return diag.CodeWeirdWhitespace, "mixed tabs and spaces in whitespace"
	default:
		return diag.CodeUnexpectedCharacters, fmt.Sprintf("unexpected characters (kind %d)", k)
	}
}
