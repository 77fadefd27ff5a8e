package model

import (
	"math/big"

	"github.com/1M15M3/beam/consensus"
)

// Height re-exports consensus.Height so callers working against model
// types don't need to import consensus just to spell the type of a
// height field. HeightGenesis mirrors consensus.HeightGenesis.
type Height = consensus.Height

const HeightGenesis = consensus.HeightGenesis

// Row is the opaque NodeDB handle for a stored header (spec.md §3:
// "row is an opaque DB handle"). 0 means "no row" / empty chain.
type Row uint64

// StateID identifies a header by its DB row and height together,
// spec.md §3.
type StateID struct {
	Row    Row
	Height Height
}

// Empty reports whether this StateID names no state -- spec.md's
// "cursor.sid.row==0 iff chain is empty" invariant.
func (sid StateID) Empty() bool { return sid.Row == 0 }

// PoW carries the difficulty and nonce of a header.
type PoW struct {
	Difficulty consensus.Difficulty
	Nonce      uint64
}

// Full is a complete block header: spec.md §3's SystemState.Full.
// Grounded on model/blockindex/blockindex.go's BlockIndex (Height, Prev,
// ChainWork big.Int, Time) minus the Bitcoin-specific on-disk file
// position bookkeeping (DataPos/File), which belongs to nodedb, not the
// header value itself.
type Full struct {
	Height     Height
	Prev       Hash
	ChainWork  big.Int
	Definition Hash
	TimeStamp  int64
	Pow        PoW
}

// Hash computes the header's identity hash. Out of scope per spec.md §6
// ("wire/on-disk formats delegated to the serializer collaborator"); this
// is the minimal concrete stand-in used internally and by tests.
func (f *Full) Hash() Hash {
	buf := make([]byte, 0, 64)
	buf = appendUint64(buf, uint64(f.Height))
	buf = append(buf, f.Prev[:]...)
	buf = append(buf, f.Definition[:]...)
	buf = appendUint64(buf, uint64(f.TimeStamp))
	buf = appendUint32(buf, f.Pow.Difficulty.Packed)
	buf = appendUint64(buf, f.Pow.Nonce)
	return HashBytes(buf)
}

func appendUint64(b []byte, v uint64) []byte {
	for i := 0; i < 8; i++ {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}

func appendUint32(b []byte, v uint32) []byte {
	for i := 0; i < 4; i++ {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}

// CheckWorkInvariant verifies spec.md §3's header invariant: for a
// non-genesis header, chainWork == parent.chainWork + difficulty.toWork().
func (f *Full) CheckWorkInvariant(parentWork *big.Int) bool {
	if f.Height == HeightGenesis {
		return f.ChainWork.Cmp(f.Pow.Difficulty.ToWork()) == 0
	}
	expected := new(big.Int).Add(parentWork, f.Pow.Difficulty.ToWork())
	return f.ChainWork.Cmp(expected) == 0
}
