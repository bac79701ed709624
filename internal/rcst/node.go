// Package rcst implements Candy's lossless parser: byte slice in, a forest
// of concrete-syntax-tree nodes covering every byte out. Parsing never
// fails outright; unparsable regions become Error nodes and scanning
// resumes, so downstream stages always see a well-formed tree.
package rcst

import "candy/internal/source"

// ID identifies one rcst node within a single parse.
type ID uint32

// Kind enumerates the ~40 grammar productions a node can be, including
// whitespace, comments, and the closed set of recoverable error kinds.
type Kind uint8

const (
	KindWhitespace Kind = iota
	KindNewline
	KindComment
	KindTrailingWhitespace

	KindIdentifier
	KindSymbol
	KindInt
	KindText
	KindTextPart
	KindTextInterpolation
	KindOpeningParenthesis
	KindClosingParenthesis
	KindOpeningBracket
	KindClosingBracket
	KindOpeningCurlyBrace
	KindClosingCurlyBrace
	KindComma
	KindColon
	KindColonEqualsSign
	KindBar
	KindEqualsSign
	KindPercentSign
	KindArrow
	KindDot
	KindOctothorpe
	KindQuote

	KindList
	KindListItem
	KindStruct
	KindStructField
	KindStructAccess
	KindFunction
	KindFunctionParameters
	KindCall
	KindAssignment
	KindMatch
	KindMatchCase
	KindOrPattern
	KindBody

	KindError
)

var kindNames = [...]string{
	"whitespace", "newline", "comment", "trailingWhitespace",
	"identifier", "symbol", "int", "text", "textPart", "textInterpolation",
	"openParen", "closeParen", "openBracket", "closeBracket",
	"openCurly", "closeCurly", "comma", "colon", "colonEquals", "bar",
	"equals", "percent", "arrow", "dot", "octothorpe", "quote",
	"list", "listItem", "struct", "structField", "structAccess",
	"function", "functionParameters", "call", "assignment",
	"match", "matchCase", "orPattern", "body", "error",
}

// String renders k's grammar-production name, for the tokenize
// command's output.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ErrorKind is the closed set of recoverable parser error reasons.
type ErrorKind uint8

const (
	ErrCurlyBraceNotClosed ErrorKind = iota
	ErrIntContainsNonDigits
	ErrListItemMissesValue
	ErrListNotClosed
	ErrParenthesisNotClosed
	ErrPipeMissesCall
	ErrStructFieldMissesColon
	ErrStructFieldMissesKey
	ErrStructFieldMissesValue
	ErrStructNotClosed
	ErrTextNotClosed
	ErrTextNotSufficientlyIndented
	ErrUnexpectedCharacters
	ErrWeirdWhitespace
)

// Node is one variant of the concrete syntax tree. Every byte of the input
// is covered by exactly one leaf node (Span), including whitespace and
// comments, so the tree can be printed back out byte for byte.
type Node struct {
	ID       ID
	Kind     Kind
	Span     source.Span
	Text     string // verbatim source text this node spans
	Children []ID

	// Error-only fields, valid when Kind == KindError.
	ErrorKind ErrorKind
	ErrorText string
}

// Tree is the full result of parsing one file: an arena of nodes plus
// the IDs of the top-level declarations (in source order).
type Tree struct {
	File  source.FileID
	Nodes []Node
	Roots []ID
}

func (t *Tree) add(n Node) ID {
	n.ID = ID(len(t.Nodes))
	t.Nodes = append(t.Nodes, n)
	return n.ID
}

// Node returns the node for id.
func (t *Tree) Node(id ID) *Node { return &t.Nodes[id] }

// Print reconstructs the exact original byte string by concatenating every
// leaf's Text in order. This is the round-trip invariant's witness.
func (t *Tree) Print() string {
	var out []byte
	var walk func(ID)
	walk = func(id ID) {
		n := t.Node(id)
		if len(n.Children) == 0 {
			out = append(out, n.Text...)
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, r := range t.Roots {
		walk(r)
	}
	return string(out)
}
