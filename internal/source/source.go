// Package source manages source files and byte-offset/line-column resolution
// shared by every pipeline stage, from rcst parsing through diagnostics.
package source

import (
	"fmt"
	"os"

	"fortio.org/safecast"
)

// u32 narrows n to uint32, panicking on overflow. Source files are bounded
// by available memory long before this would ever fire in practice.
func u32(n int) uint32 {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		panic(fmt.Errorf("source: %w", err))
	}
	return v
}

// FileID identifies a loaded file within a FileSet.
type FileID uint32

// Span is a half-open byte range [Start, End) within a single file.
type Span struct {
	File  FileID
	Start uint32
	End   uint32
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() uint32 { return s.End - s.Start }

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d", s.File, s.Start, s.End)
}

// Cover returns the smallest span containing both s and other.
// Both spans must belong to the same file.
func (s Span) Cover(other Span) Span {
	if other.File != s.File {
		panic("source: Cover across different files")
	}
	result := s
	if other.Start < result.Start {
		result.Start = other.Start
	}
	if other.End > result.End {
		result.End = other.End
	}
	return result
}

// LineCol is a 1-based line and column position.
type LineCol struct {
	Line   uint32
	Column uint32
}

// File holds the normalized bytes of one loaded source file.
type File struct {
	ID      FileID
	Path    string
	Content []byte
	lineIdx []uint32 // byte offset of the start of each line
}

// GetLine returns the text of the given 1-based line, without its terminator.
func (f *File) GetLine(lineNum uint32) string {
	if lineNum == 0 || int(lineNum) > len(f.lineIdx) {
		return ""
	}
	start := f.lineIdx[lineNum-1]
	var end uint32
	if int(lineNum) < len(f.lineIdx) {
		end = f.lineIdx[lineNum]
	} else {
		end = u32(len(f.Content))
	}
	line := f.Content[start:end]
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return string(line)
}

// FileSet is an append-only collection of loaded files.
type FileSet struct {
	files []*File
	index map[string]FileID
}

// NewFileSet creates an empty FileSet.
func NewFileSet() *FileSet {
	return &FileSet{index: make(map[string]FileID)}
}

// Add registers raw content under path and returns its FileID.
// A new FileID is always minted, even for a path seen before, so
// earlier snapshots (and any diagnostics referencing them) stay valid.
func (fs *FileSet) Add(path string, content []byte) FileID {
	id := FileID(u32(len(fs.files)))
	f := &File{ID: id, Path: path, Content: content, lineIdx: buildLineIndex(content)}
	fs.files = append(fs.files, f)
	fs.index[path] = id
	return id
}

// Load reads a file from disk and adds it to the set.
func (fs *FileSet) Load(path string) (FileID, error) {
	content, err := os.ReadFile(path) // #nosec G304 -- path supplied by caller/manifest
	if err != nil {
		return 0, fmt.Errorf("source: load %s: %w", path, err)
	}
	return fs.Add(path, content), nil
}

// Get returns the file for id. Panics on an out-of-range id, mirroring
// the invariant that FileIDs are only ever minted by this FileSet.
func (fs *FileSet) Get(id FileID) *File {
	return fs.files[id]
}

// GetByPath returns the most recently added file with the given path.
func (fs *FileSet) GetByPath(path string) (*File, bool) {
	id, ok := fs.index[path]
	if !ok {
		return nil, false
	}
	return fs.files[id], true
}

// Resolve converts a span into start/end line-column positions.
func (fs *FileSet) Resolve(span Span) (start, end LineCol) {
	f := fs.files[span.File]
	return toLineCol(f.lineIdx, span.Start), toLineCol(f.lineIdx, span.End)
}

func buildLineIndex(content []byte) []uint32 {
	idx := []uint32{0}
	for i, b := range content {
		if b == '\n' {
			idx = append(idx, u32(i+1))
		}
	}
	return idx
}

func toLineCol(lineIdx []uint32, offset uint32) LineCol {
	// binary search for the line containing offset
	lo, hi := 0, len(lineIdx)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if lineIdx[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return LineCol{Line: u32(lo + 1), Column: offset - lineIdx[lo] + 1}
}
