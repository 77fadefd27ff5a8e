package trees

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/1M15M3/beam/model"
	"github.com/google/btree"
)

// UtxoTree is the authenticated index over (commitment, maturity) keys
// with per-leaf reference counts, spec.md §2 item 3 / §3. Grounded on
// model/utxo/coindb.go + model/utxo/coinsmap.go's cache-over-a-store
// shape, generalized from Bitcoin's single-owner UTXO set to BEAM's
// refcounted one (the same commitment+maturity pair can be produced by
// more than one still-unconfirmed-distinct output in this model, hence
// a count rather than a boolean).
type UtxoTree struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

type utxoLeaf struct {
	key   [41]byte // commitment(33) || maturity big-endian(8)
	count uint32
}

func (l *utxoLeaf) Key() []byte { return l.key[:] }

func (l *utxoLeaf) Less(than btree.Item) bool {
	return bytes.Compare(l.key[:], than.(*utxoLeaf).key[:]) < 0
}

func utxoKey(c model.Commitment, maturity model.Height) [41]byte {
	var k [41]byte
	copy(k[:33], c[:])
	binary.BigEndian.PutUint64(k[33:], uint64(maturity))
	return k
}

// NewUtxoTree returns an empty tree.
func NewUtxoTree() *UtxoTree {
	return &UtxoTree{tree: btree.New(32)}
}

// Find locates the leaf for (commitment, maturity) exactly, returning
// its refcount if present.
func (t *UtxoTree) Find(c model.Commitment, maturity model.Height) (count uint32, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	k := utxoKey(c, maturity)
	item := t.tree.Get(&utxoLeaf{key: k})
	if item == nil {
		return 0, false
	}
	return item.(*utxoLeaf).count, true
}

// FindInRange locates a leaf matching commitment with maturity in
// [0, maxMaturity], stopping at the first match -- spec.md §4.4's
// forward adjust-maturity input lookup: "locate any leaf with matching
// commitment and maturity in [0, h] (range traversal stops at first)".
func (t *UtxoTree) FindInRange(c model.Commitment, maxMaturity model.Height) (maturity model.Height, count uint32, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	lo := utxoKey(c, 0)
	hi := utxoKey(c, maxMaturity+1)
	var found *utxoLeaf
	t.tree.AscendRange(&utxoLeaf{key: lo}, &utxoLeaf{key: hi}, func(item btree.Item) bool {
		found = item.(*utxoLeaf)
		return false
	})
	if found == nil {
		return 0, 0, false
	}
	return model.Height(binary.BigEndian.Uint64(found.key[33:])), found.count, true
}

// Insert increments the refcount at (commitment, maturity), creating
// the leaf with count 1 if it didn't exist. Used both by forward output
// application and by reverse input application (spec.md §4.4).
func (t *UtxoTree) Insert(c model.Commitment, maturity model.Height) (newCount uint32, overflowed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := utxoKey(c, maturity)
	existing := t.tree.Get(&utxoLeaf{key: k})
	if existing == nil {
		t.tree.ReplaceOrInsert(&utxoLeaf{key: k, count: 1})
		return 1, false
	}
	leaf := existing.(*utxoLeaf)
	if leaf.count == ^uint32(0) {
		return leaf.count, true
	}
	leaf.count++
	return leaf.count, false
}

// Delete decrements the refcount at (commitment, maturity), removing
// the leaf once it reaches zero -- spec.md §3: "Leaves with count 0 are
// deleted." Returns false if the leaf was absent.
func (t *UtxoTree) Delete(c model.Commitment, maturity model.Height) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := utxoKey(c, maturity)
	existing := t.tree.Get(&utxoLeaf{key: k})
	if existing == nil {
		return false
	}
	leaf := existing.(*utxoLeaf)
	if leaf.count <= 1 {
		t.tree.Delete(&utxoLeaf{key: k})
		return true
	}
	leaf.count--
	return true
}

// Traverse implements the Tree interface.
func (t *UtxoTree) Traverse(from, to []byte, visit Visitor) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.tree.AscendRange(&utxoLeaf{key: fixed41(from)}, &utxoLeaf{key: fixed41(to)}, func(item btree.Item) bool {
		return visit(item.(*utxoLeaf))
	})
}

func fixed41(b []byte) (out [41]byte) {
	copy(out[:], b)
	return out
}

// Root hashes every leaf in ascending key order into a single digest.
// Grounded on spec.md §3: "Root hash enters the chain definition."
func (t *UtxoTree) Root() model.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := make([][41]byte, 0, t.tree.Len())
	counts := make(map[[41]byte]uint32, t.tree.Len())
	t.tree.Ascend(func(item btree.Item) bool {
		leaf := item.(*utxoLeaf)
		keys = append(keys, leaf.key)
		counts[leaf.key] = leaf.count
		return true
	})
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })

	h := sha256.New()
	for _, k := range keys {
		h.Write(k[:])
		var cbuf [4]byte
		binary.BigEndian.PutUint32(cbuf[:], counts[k])
		h.Write(cbuf[:])
	}
	var out model.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Len reports the number of distinct leaves, used by tests.
func (t *UtxoTree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.Len()
}
