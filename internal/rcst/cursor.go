package rcst

import "candy/internal/source"

// cursor is a byte-oriented scan position over one file's content.
type cursor struct {
	src       []byte
	pos       int
	file      source.FileID
	indent    int // configuration word: current required indentation column
	lineStart int
}

// column returns the 0-based column of the current position on its line.
func (c *cursor) column() int { return c.pos - c.lineStart }

func newCursor(file source.FileID, src []byte) *cursor {
	return &cursor{src: src, file: file}
}

func (c *cursor) eof() bool { return c.pos >= len(c.src) }

func (c *cursor) peek() byte {
	if c.eof() {
		return 0
	}
	return c.src[c.pos]
}

func (c *cursor) peekAt(offset int) byte {
	if c.pos+offset >= len(c.src) {
		return 0
	}
	return c.src[c.pos+offset]
}

func (c *cursor) advance() byte {
	b := c.src[c.pos]
	c.pos++
	return b
}

func (c *cursor) span(start int) source.Span {
	return source.Span{File: c.file, Start: u32(start), End: u32(c.pos)}
}

func (c *cursor) slice(start int) string {
	return string(c.src[start:c.pos])
}

func u32(n int) uint32 { return uint32(n) } //nolint:gosec // n is always a non-negative byte offset within src
