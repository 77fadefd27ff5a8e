package mempool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1M15M3/beam/mempool"
)

func TestIterateOrdersByDescendingFee(t *testing.T) {
	p := mempool.NewPool()
	low := p.Add(&mempool.Tx{Fee: 10, SerializedSize: 100})
	high := p.Add(&mempool.Tx{Fee: 50, SerializedSize: 100})
	mid := p.Add(&mempool.Tx{Fee: 20, SerializedSize: 100})

	var seen []*mempool.Entry
	p.Iterate(func(e *mempool.Entry) bool {
		seen = append(seen, e)
		return true
	})

	require.Len(t, seen, 3)
	assert.Same(t, high, seen[0])
	assert.Same(t, mid, seen[1])
	assert.Same(t, low, seen[2])
}

func TestIterateTiesBreakByAdmissionOrder(t *testing.T) {
	p := mempool.NewPool()
	first := p.Add(&mempool.Tx{Fee: 10, SerializedSize: 100})
	second := p.Add(&mempool.Tx{Fee: 10, SerializedSize: 100})

	var seen []*mempool.Entry
	p.Iterate(func(e *mempool.Entry) bool {
		seen = append(seen, e)
		return true
	})

	require.Len(t, seen, 2)
	assert.Same(t, first, seen[0])
	assert.Same(t, second, seen[1])
}

// TestDeleteDuringIterationIsSafe exercises spec.md §6's explicit
// contract: Delete(entry) may be called from inside Iterate's visit,
// including deleting the entry currently being visited, without
// corrupting the walk or skipping later entries.
func TestDeleteDuringIterationIsSafe(t *testing.T) {
	p := mempool.NewPool()
	a := p.Add(&mempool.Tx{Fee: 30, SerializedSize: 100})
	b := p.Add(&mempool.Tx{Fee: 20, SerializedSize: 100})
	c := p.Add(&mempool.Tx{Fee: 10, SerializedSize: 100})

	var seen []*mempool.Entry
	p.Iterate(func(e *mempool.Entry) bool {
		seen = append(seen, e)
		p.Delete(e)
		return true
	})

	assert.Equal(t, []*mempool.Entry{a, b, c}, seen)
	assert.Equal(t, 0, p.Len())
}

func TestLenTracksAddAndDelete(t *testing.T) {
	p := mempool.NewPool()
	assert.Equal(t, 0, p.Len())

	e := p.Add(&mempool.Tx{Fee: 1, SerializedSize: 1})
	assert.Equal(t, 1, p.Len())

	p.Delete(e)
	assert.Equal(t, 0, p.Len())
}
