package project

import (
	"fmt"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// diskEntry is one module's last-known content digest, the wire shape
// DiskIndex persists (SPEC_FULL.md section 11: msgpack backs
// "internal/project (disk cache) & on-disk cache persistence").
type diskEntry struct {
	Module string
	Digest Digest
}

// DiskIndex is a small persisted record of which content digest each
// module had the last time this project was built, letting a
// long-lived process (a `candy repl`, an LSP session) across restarts
// skip a module's Cache entry instead of assuming it's still valid.
// It intentionally does not try to serialize mir.Body itself: MIR
// carries *big.Int constants and handle-shaped references that are
// only meaningful against the Program that produced them, so
// invalidation-by-digest is the cache entry the disk format commits to.
type DiskIndex struct {
	entries map[string]Digest
}

// NewDiskIndex returns an empty index.
func NewDiskIndex() *DiskIndex {
	return &DiskIndex{entries: map[string]Digest{}}
}

// LoadDiskIndex reads an index previously written by Save. A missing
// file is not an error: it just means every module starts out stale.
func LoadDiskIndex(path string) (*DiskIndex, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path supplied by the build driver
	if os.IsNotExist(err) {
		return NewDiskIndex(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("project: reading cache index %s: %w", path, err)
	}
	var entries []diskEntry
	if err := msgpack.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("project: decoding cache index %s: %w", path, err)
	}
	idx := NewDiskIndex()
	for _, e := range entries {
		idx.entries[e.Module] = e.Digest
	}
	return idx, nil
}

// Save writes the index to path.
func (idx *DiskIndex) Save(path string) error {
	entries := make([]diskEntry, 0, len(idx.entries))
	for module, digest := range idx.entries {
		entries = append(entries, diskEntry{Module: module, Digest: digest})
	}
	data, err := msgpack.Marshal(entries)
	if err != nil {
		return fmt.Errorf("project: encoding cache index: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { // #nosec G306 -- build artifact, not a secret
		return fmt.Errorf("project: writing cache index %s: %w", path, err)
	}
	return nil
}

// Stale reports whether module's recorded digest differs from current
// (or it has never been recorded at all).
func (idx *DiskIndex) Stale(module string, current Digest) bool {
	recorded, ok := idx.entries[module]
	return !ok || recorded != current
}

// Record updates module's digest after a successful compile.
func (idx *DiskIndex) Record(module string, digest Digest) {
	idx.entries[module] = digest
}
