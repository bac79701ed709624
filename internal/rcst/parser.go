package rcst

import (
	"candy/internal/source"
)

// Parse scans src into a lossless Tree. Parsing never fails: unparsable
// regions become KindError leaves and scanning resumes after them.
func Parse(file source.FileID, src []byte) *Tree {
	t := &Tree{File: file}
	c := newCursor(file, src)
	p := &parser{c: c, t: t}
	for !c.eof() {
		p.t.Roots = append(p.t.Roots, p.skipTrivia()...)
		if c.eof() {
			break
		}
		p.t.Roots = append(p.t.Roots, p.parseStatement(0))
	}
	return t
}

type parser struct {
	c *cursor
	t *Tree
}

func (p *parser) leaf(kind Kind, start int) ID {
	return p.t.add(Node{Kind: kind, Span: p.c.span(start), Text: p.c.slice(start)})
}

func (p *parser) node(kind Kind, start int, children []ID) ID {
	return p.t.add(Node{Kind: kind, Span: p.c.span(start), Text: p.c.slice(start), Children: children})
}

// punct records the single byte at the cursor as a leaf of kind and
// advances past it. Every punctuation byte consumed during parsing must
// go through this (or punct2) so Tree.Print can reproduce it verbatim.
func (p *parser) punct(kind Kind) ID {
	start := p.c.pos
	p.c.advance()
	return p.leaf(kind, start)
}

// punct2 is punct for a fixed two-byte token such as "->".
func (p *parser) punct2(kind Kind) ID {
	start := p.c.pos
	p.c.advance()
	p.c.advance()
	return p.leaf(kind, start)
}

func (p *parser) errorNode(kind ErrorKind, start int) ID {
	return p.t.add(Node{
		Kind: KindError, Span: p.c.span(start), Text: p.c.slice(start),
		ErrorKind: kind, ErrorText: p.c.slice(start),
	})
}

// skipTrivia consumes and records whitespace, newlines, and comments as
// leading-trivia leaves appended as their own root/child entries; callers
// collect the returned IDs when they need to attach trivia to a parent.
func (p *parser) skipTrivia() []ID {
	var trivia []ID
	for !p.c.eof() {
		switch p.c.peek() {
		case ' ', '\t', '\r':
			start := p.c.pos
			sawTab, sawSpace := false, false
			for !p.c.eof() && (p.c.peek() == ' ' || p.c.peek() == '\t' || p.c.peek() == '\r') {
				if p.c.peek() == '\t' {
					sawTab = true
				} else if p.c.peek() == ' ' {
					sawSpace = true
				}
				p.c.advance()
			}
			if sawTab && sawSpace {
				trivia = append(trivia, p.errorNode(ErrWeirdWhitespace, start))
			} else {
				trivia = append(trivia, p.leaf(KindWhitespace, start))
			}
		case '\n':
			start := p.c.pos
			p.c.advance()
			p.c.lineStart = p.c.pos
			trivia = append(trivia, p.leaf(KindNewline, start))
		case '#':
			start := p.c.pos
			for !p.c.eof() && p.c.peek() != '\n' {
				p.c.advance()
			}
			trivia = append(trivia, p.leaf(KindComment, start))
		default:
			return trivia
		}
	}
	return trivia
}

// parseStatement parses one top-level-or-body statement: an assignment or
// a bare expression, requiring column > minIndent.
func (p *parser) parseStatement(minIndent int) ID {
	start := p.c.pos
	expr := p.parseAssignmentOrExpr(minIndent)
	_ = start
	return expr
}

// parseBody parses a sequence of statements whose column is strictly
// greater than parentIndent, stopping at dedent, EOF, or a closing brace.
func (p *parser) parseBody(parentIndent int) []ID {
	var stmts []ID
	for {
		save := p.c.pos
		trivia := p.skipTrivia()
		if p.c.eof() || p.c.peek() == '}' {
			p.c.pos = save
			return stmts
		}
		if p.c.column() <= parentIndent {
			p.c.pos = save
			return stmts
		}
		stmts = append(stmts, trivia...)
		stmts = append(stmts, p.parseStatement(parentIndent))
	}
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentCont(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
