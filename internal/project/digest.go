package project

import (
	"bytes"
	"crypto/sha256"
	"sort"
)

// Digest is a fixed 256-bit content hash, mirroring vovakirdan-surge's
// internal/project.Digest (spec.md section 3: "Every project.Module
// carries a content digest").
type Digest [32]byte

// ContentDigest hashes a module's raw source bytes.
func ContentDigest(content []byte) Digest {
	return sha256.Sum256(content)
}

// Combine folds content's digest together with a (pre-sorted, so the
// result is independent of traversal order) set of dependency digests,
// producing the module-level hash used to invalidate a cached
// optimization once anything it transitively imports changes.
func Combine(content Digest, deps ...Digest) Digest {
	sorted := append([]Digest(nil), deps...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i][:], sorted[j][:]) < 0 })
	h := sha256.New()
	h.Write(content[:])
	for _, d := range sorted {
		h.Write(d[:])
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}
