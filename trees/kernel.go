package trees

import (
	"bytes"
	"crypto/sha256"
	"sort"
	"sync"

	"github.com/1M15M3/beam/model"
	"github.com/google/btree"
)

// KernelTree is the authenticated index keyed by kernel ID, presence
// only -- spec.md §2 item 4 / §3. Grounded on the same
// model/utxo/coindb.go cache-over-a-store shape as UtxoTree, minus the
// refcount: spec.md §3 says kernel leaves "carry no value beyond
// existence" and §4.4 requires duplicates to be a hard failure
// ("kernels unique forever").
type KernelTree struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

type kernelLeaf struct {
	id model.Hash
}

func (l *kernelLeaf) Key() []byte { return l.id[:] }

func (l *kernelLeaf) Less(than btree.Item) bool {
	return bytes.Compare(l.id[:], than.(*kernelLeaf).id[:]) < 0
}

func NewKernelTree() *KernelTree {
	return &KernelTree{tree: btree.New(32)}
}

// Has reports whether id is present.
func (t *KernelTree) Has(id model.Hash) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.Get(&kernelLeaf{id: id}) != nil
}

// Insert adds id, failing if it is already present -- kernels are
// unique forever (spec.md §4.4).
func (t *KernelTree) Insert(id model.Hash) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tree.Get(&kernelLeaf{id: id}) != nil {
		return false
	}
	t.tree.ReplaceOrInsert(&kernelLeaf{id: id})
	return true
}

// Delete removes id, failing if it was absent.
func (t *KernelTree) Delete(id model.Hash) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tree.Delete(&kernelLeaf{id: id}) == nil {
		return false
	}
	return true
}

// Traverse implements the Tree interface.
func (t *KernelTree) Traverse(from, to []byte, visit Visitor) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var fromH, toH model.Hash
	copy(fromH[:], from)
	copy(toH[:], to)
	t.tree.AscendRange(&kernelLeaf{id: fromH}, &kernelLeaf{id: toH}, func(item btree.Item) bool {
		return visit(item.(*kernelLeaf))
	})
}

// Root hashes every leaf ID in ascending order -- spec.md §3: "Root
// hash enters the chain definition."
func (t *KernelTree) Root() model.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]model.Hash, 0, t.tree.Len())
	t.tree.Ascend(func(item btree.Item) bool {
		ids = append(ids, item.(*kernelLeaf).id)
		return true
	})
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })

	h := sha256.New()
	for _, id := range ids {
		h.Write(id[:])
	}
	var out model.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Len reports the number of leaves.
func (t *KernelTree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.Len()
}
