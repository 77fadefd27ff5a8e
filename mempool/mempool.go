// Package mempool defines the contract the processor expects from its
// pending-transaction collaborator, and a reference, in-memory
// implementation of it.
//
// spec.md §6 is explicit that the mempool's internal data structure is
// out of scope beyond its ordered-iteration contract: "descending by
// fee, with Delete(entry) safe to call during iteration". Grounded on
// mining/mining.go's sortedByFeeWithAncestors (a github.com/google/btree
// ordered index over candidate transactions) and mempool/txmempool.go's
// entry bookkeeping, narrowed to the flat fee ordering spec.md actually
// asks for -- no ancestor-package tracking, since that is a
// Bitcoin-specific relay-policy concern this module never names.
package mempool

import (
	"sync"

	"github.com/1M15M3/beam/model"
	"github.com/google/btree"
)

// Tx is a candidate transaction as the mempool holds it.
type Tx struct {
	Body           *model.Body
	Fee            model.Amount
	SerializedSize uint32
}

// Entry is one iteration step: the candidate plus its mempool-assigned
// sequence number, used only to break ties deterministically and as the
// handle Delete takes.
type Entry struct {
	Seq uint64
	Tx  *Tx
}

// Mempool is the contract the processor's block-generation path (spec.md
// §4.7) and transaction submission path (spec.md §4.4) consume.
type Mempool interface {
	// Add admits tx, assigning it a fresh sequence number.
	Add(tx *Tx) *Entry
	// Iterate calls visit for every entry in descending-fee order (ties
	// broken by ascending sequence, i.e. FIFO among equal fees), until
	// visit returns false or entries are exhausted. Delete is safe to
	// call on the current or any other entry from inside visit.
	Iterate(visit func(e *Entry) bool)
	// Delete removes e. Safe to call during Iterate.
	Delete(e *Entry)
	// Len reports the number of pending entries.
	Len() int
}

// Pool is a github.com/google/btree-backed Mempool, the flat-ordering
// analogue of mining.go's sortedByFeeWithAncestors.
type Pool struct {
	mu      sync.Mutex
	tree    *btree.BTree
	nextSeq uint64
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{tree: btree.New(32)}
}

type poolItem struct {
	entry *Entry
}

// Less orders items by descending fee, then by ascending
// sequence to keep equal-fee admission order stable -- the same
// tie-break mining.go's sortedByFeeWithAncestors comparator uses.
func (a *poolItem) Less(than btree.Item) bool {
	b := than.(*poolItem)
	if a.entry.Tx.Fee != b.entry.Tx.Fee {
		return a.entry.Tx.Fee > b.entry.Tx.Fee
	}
	return a.entry.Seq < b.entry.Seq
}

func (p *Pool) Add(tx *Tx) *Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSeq++
	e := &Entry{Seq: p.nextSeq, Tx: tx}
	p.tree.ReplaceOrInsert(&poolItem{entry: e})
	return e
}

// Iterate snapshots the current ordering before calling visit, so a
// Delete from inside visit (including deleting the entry currently being
// visited) never corrupts the walk -- spec.md §6's "Delete(entry) safe
// during iteration" requirement.
func (p *Pool) Iterate(visit func(e *Entry) bool) {
	p.mu.Lock()
	snapshot := make([]*Entry, 0, p.tree.Len())
	p.tree.Ascend(func(item btree.Item) bool {
		snapshot = append(snapshot, item.(*poolItem).entry)
		return true
	})
	p.mu.Unlock()

	for _, e := range snapshot {
		if !visit(e) {
			return
		}
	}
}

func (p *Pool) Delete(e *Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tree.Delete(&poolItem{entry: e})
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tree.Len()
}
