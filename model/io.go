package model

// Input is a reference to a UTXO leaf being spent: spec.md §3.
// Maturity is filled in during forward apply (adjust-maturity mode)
// from the leaf actually consumed; in macroblock/explicit-maturity mode
// the caller supplies it up front.
type Input struct {
	Commitment Commitment
	Maturity   Height
}

// Less orders inputs by commitment then maturity, spec.md §3's body
// ordering rule.
func (in *Input) Less(o *Input) bool {
	if in.Commitment != o.Commitment {
		return in.Commitment.Less(o.Commitment)
	}
	return in.Maturity < o.Maturity
}

// Output is a new UTXO leaf being created: spec.md §3.
type Output struct {
	Commitment        Commitment
	ConfidentialProof []byte
	Coinbase          bool
	Incubation        Height
	ExplicitMaturity  *Height
}

// Less orders outputs by commitment then maturity, using KeyMaturity(h)
// as the effective maturity for ordering purposes.
func (o *Output) Less(other *Output, h Height) bool {
	om := o.KeyMaturity(h)
	otherM := other.KeyMaturity(h)
	if o.Commitment != other.Commitment {
		return o.Commitment.Less(other.Commitment)
	}
	return om < otherM
}

// MinMaturity returns h+coinbaseLockup for a coinbase output, h+incubation
// otherwise -- spec.md §3's minMaturity(h).
func (o *Output) MinMaturity(h Height, coinbaseLockup Height) Height {
	if o.Coinbase {
		return h + coinbaseLockup
	}
	return h + o.Incubation
}

// KeyMaturity returns the maturity actually stored in the UTXO tree key:
// max(minMaturity(h), explicitMaturity), spec.md §4.4's UTXO output rule.
// Callers needing the coinbaseLockup-aware variant should use
// KeyMaturityWithLockup; this convenience form assumes lockup has
// already been folded into incubation for non-apply contexts (ordering,
// display).
func (o *Output) KeyMaturity(h Height) Height {
	min := h + o.Incubation
	if o.ExplicitMaturity != nil && *o.ExplicitMaturity > min {
		return *o.ExplicitMaturity
	}
	return min
}

// KeyMaturityWithLockup is the apply-path form of KeyMaturity, used by
// HandleValidatedTx where the coinbase/non-coinbase split matters.
func (o *Output) KeyMaturityWithLockup(h, coinbaseLockup Height) Height {
	min := o.MinMaturity(h, coinbaseLockup)
	if o.ExplicitMaturity != nil && *o.ExplicitMaturity > min {
		return *o.ExplicitMaturity
	}
	return min
}

// TxKernel carries a unique ID, opaque excess/signature material and a
// valid-height range. spec.md §3.
type TxKernel struct {
	ID            Hash
	Excess        Commitment
	Signature     []byte
	MinHeight     Height
	MaxHeight     Height // 0 means unbounded
	Fee           Amount
	AssetID       uint32 // 0 is the native asset
}

// Less orders kernels by ID, spec.md §3's body ordering rule.
func (k *TxKernel) Less(o *TxKernel) bool {
	return bytesLess(k.ID[:], o.ID[:])
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// IsValidAt reports whether the kernel may appear in a block at height h.
func (k *TxKernel) IsValidAt(h Height) bool {
	if h < k.MinHeight {
		return false
	}
	if k.MaxHeight != 0 && h > k.MaxHeight {
		return false
	}
	return true
}
