package model

import "math/big"

// Extra tracks cumulative, non-authenticated block-building state:
// spec.md §3. SubsidyOpen flips exactly when a block with
// SubsidyClosing is applied or reverted, and is mirrored by the
// presence of the zero-key entry in the kernel tree.
type Extra struct {
	Subsidy     big.Int
	Offset      Scalar
	SubsidyOpen bool
}

// NewExtra returns Extra zeroed with SubsidyOpen true, spec.md §4.1
// step 2.
func NewExtra() *Extra {
	return &Extra{SubsidyOpen: true}
}

// Apply adds (fwd) or subtracts (reverse) amt from the running
// subsidy total, and adds/negates the per-block offset -- spec.md §4.4:
// "adjusts cumulative subsidy and offset (negating offset on reverse)".
func (e *Extra) Apply(amt Amount, offset Scalar, fwd bool) {
	delta := new(big.Int).SetUint64(uint64(amt))
	if fwd {
		e.Subsidy.Add(&e.Subsidy, delta)
		e.Offset = addScalars(e.Offset, offset)
	} else {
		e.Subsidy.Sub(&e.Subsidy, delta)
		e.Offset = addScalars(e.Offset, negateScalar(offset))
	}
}
