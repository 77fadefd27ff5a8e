package model

// Commitment is an opaque Pedersen commitment point. spec.md §1 treats
// scalar/point arithmetic as an opaque external collaborator; this
// module only ever compares, hashes and orders commitments, never does
// curve arithmetic on them, so a plain fixed-size byte array (the
// standard compressed-point wire width) is enough.
type Commitment [33]byte

// Less orders commitments byte-lexicographically, the tie-break
// spec.md §3 requires ("inputs sorted by commitment then maturity").
func (c Commitment) Less(o Commitment) bool {
	for i := range c {
		if c[i] != o[i] {
			return c[i] < o[i]
		}
	}
	return false
}

// Scalar is an opaque scalar value (Extra.offset, spec.md §3).
type Scalar [32]byte
