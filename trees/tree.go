// Package trees implements the two authenticated in-memory indexes the
// processor keeps live: UtxoTree and KernelTree (spec.md §2 items 3-4).
// Both share the polymorphic traversal shape spec.md §9 calls for: a
// visitor/traveler callback returning "continue" or "stop", modeled as
// an interface over OnLeaf(leaf) bool rather than inheritance.
//
// No merkle/trie library appears anywhere in the retrieval pack for
// this; the teacher's own authenticated index (model/utxo/coindb.go) is
// a hand-rolled map with a dirty set, not a library-backed structure.
// This package orders its leaves with github.com/google/btree (already
// pulled in for mempool ordering) instead of a bespoke sorted slice, so
// range traversal ("stop at first match") is a native btree operation.
package trees

import "github.com/1M15M3/beam/model"

// Leaf is a single authenticated entry. Key orders leaves within the
// tree and participates in the root hash.
type Leaf interface {
	Key() []byte
}

// Visitor is called once per visited leaf during a range traversal;
// returning false stops the traversal early. Traverse implementations
// wrap it in a google/btree ItemIterator closure for AscendRange.
type Visitor func(leaf Leaf) bool

// Tree is the shared contract both UtxoTree and KernelTree satisfy.
type Tree interface {
	// Traverse walks leaves with key in [from, to) in ascending order,
	// calling visit on each until it returns false or the range is
	// exhausted.
	Traverse(from, to []byte, visit Visitor)
	// Root returns the current authenticated root hash.
	Root() model.Hash
}
