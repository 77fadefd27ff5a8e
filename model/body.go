package model

import (
	"math/big"
	"sort"
)

// Body is a block's transactional payload: spec.md §3.
type Body struct {
	Inputs          []*Input
	Outputs         []*Output
	KernelsInput    []*TxKernel
	KernelsOutput   []*TxKernel
	Offset          Scalar
	Subsidy         Amount
	SubsidyClosing  bool
}

// Normalize sorts each stream per spec.md §3's ordering rule and cancels
// matching input/output pairs (cut-through). Duplicate outputs with
// identical commitment+maturity are not merged: they stay as separate
// entries in the body, and applying them bumps the refcounted UTXO
// leaf once per entry. Cut-through: an input spending exactly
// the commitment+maturity an output in the same body creates cancels
// both, since net effect on the tree is a no-op.
//
// Grounded on model/utxo/coinsmap.go's AddCoin/SpendCoin pairing
// discipline: this is the same cancellation the teacher's CoinsMap
// performs implicitly when a block both creates and immediately spends
// a coin.
func (b *Body) Normalize(h Height, coinbaseLockup Height) {
	b.cutThrough(h, coinbaseLockup)

	sort.Slice(b.Inputs, func(i, j int) bool { return b.Inputs[i].Less(b.Inputs[j]) })
	sort.Slice(b.Outputs, func(i, j int) bool { return b.Outputs[i].Less(b.Outputs[j], h) })
	sort.Slice(b.KernelsInput, func(i, j int) bool { return b.KernelsInput[i].Less(b.KernelsInput[j]) })
	sort.Slice(b.KernelsOutput, func(i, j int) bool { return b.KernelsOutput[i].Less(b.KernelsOutput[j]) })
}

func (b *Body) cutThrough(h Height, coinbaseLockup Height) {
	type key struct {
		c Commitment
		m Height
	}
	outIdx := make(map[key]int, len(b.Outputs))
	for i, o := range b.Outputs {
		outIdx[key{o.Commitment, o.KeyMaturityWithLockup(h, coinbaseLockup)}] = i
	}

	removeOut := make(map[int]bool)
	keepIn := make([]*Input, 0, len(b.Inputs))
	for _, in := range b.Inputs {
		if idx, ok := outIdx[key{in.Commitment, in.Maturity}]; ok && !removeOut[idx] {
			removeOut[idx] = true
			continue
		}
		keepIn = append(keepIn, in)
	}
	b.Inputs = keepIn

	if len(removeOut) > 0 {
		keepOut := make([]*Output, 0, len(b.Outputs))
		for i, o := range b.Outputs {
			if !removeOut[i] {
				keepOut = append(keepOut, o)
			}
		}
		b.Outputs = keepOut
	}
}

// CombineBodies merges src0 and src1's streams into trg, cut-through
// applied across the combined set. Grounded on spec.md §4.10's
// macroblock squash step ("Writer.Combine cut-throughs common
// input/output pairs") and §9's note that the unused bStop parameter
// should be treated as "process fully" -- this implementation has no
// early exit.
func CombineBodies(src0, src1 *Body, h Height, coinbaseLockup Height) *Body {
	trg := &Body{
		Inputs:        append(append([]*Input{}, src0.Inputs...), src1.Inputs...),
		Outputs:       append(append([]*Output{}, src0.Outputs...), src1.Outputs...),
		KernelsInput:  append(append([]*TxKernel{}, src0.KernelsInput...), src1.KernelsInput...),
		KernelsOutput: append(append([]*TxKernel{}, src0.KernelsOutput...), src1.KernelsOutput...),
		Offset:        addScalars(src0.Offset, src1.Offset),
	}
	trg.Subsidy = src0.Subsidy + src1.Subsidy
	trg.SubsidyClosing = src0.SubsidyClosing || src1.SubsidyClosing
	trg.cutThrough(h, coinbaseLockup)
	return trg
}

// addScalars is a placeholder scalar addition; real scalar arithmetic
// is the opaque crypto collaborator (spec.md §1). This module only
// needs the offset to round-trip through export/import, so byte-wise
// accumulation via big.Int modular addition over a fixed-size field is
// a stand-in, documented here rather than hidden.
func addScalars(a, b Scalar) Scalar {
	ai := new(big.Int).SetBytes(a[:])
	bi := new(big.Int).SetBytes(b[:])
	ai.Add(ai, bi)
	var out Scalar
	bs := ai.Bytes()
	if len(bs) > len(out) {
		bs = bs[len(bs)-len(out):]
	}
	copy(out[len(out)-len(bs):], bs)
	return out
}

func negateScalar(a Scalar) Scalar {
	zero := new(big.Int)
	ai := new(big.Int).SetBytes(a[:])
	ai.Sub(zero, ai)
	var out Scalar
	bs := ai.Bytes()
	if len(bs) > len(out) {
		bs = bs[len(bs)-len(out):]
	}
	copy(out[len(out)-len(bs):], bs)
	return out
}

// NegateOffset returns -offset, used when accumulating Extra.offset on
// a reverse apply (spec.md §4.4: "negating offset on reverse").
func NegateOffset(s Scalar) Scalar { return negateScalar(s) }
