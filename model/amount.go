package model

import "math"

// Amount is a quantity of coin, grounded on the teacher's utils.Amount
// (utils/Amount.go) but widened to uint64 since spec.md §4.7's huge-fee
// guard talks about a 64-bit amount's "high word" overflowing -- the
// guard only makes sense if Amount itself is the 64-bit value being
// split into hi/lo 32-bit halves, as BEAM's wire Amount type is.
type Amount uint64

// Hi/Lo split of an Amount into its high and low 32-bit words, the
// representation spec.md §4.7 and §9 refer to when checking "the fee's
// hi word set".
func (a Amount) Hi() uint32 { return uint32(uint64(a) >> 32) }
func (a Amount) Lo() uint32 { return uint32(uint64(a)) }

// AddOverflows reports whether a+b would wrap a uint64, the guard
// spec.md §4.7 requires before accumulating a candidate's fee into the
// block's running fee sum.
func AddOverflows(a, b Amount) bool {
	return a > math.MaxUint64-b
}

// HiWordSet reports whether a's high 32 bits are non-zero -- spec.md
// §9's "evicts transactions whose fee's high 64-bits are set" guard,
// read as "more than a 32-bit amount of headroom used", which is the
// only reading consistent with Amount being 64 bits wide throughout.
func (a Amount) HiWordSet() bool { return a.Hi() != 0 }
