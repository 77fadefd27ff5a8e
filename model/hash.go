// Package model defines the data types the chain state processor
// operates on: heights, state identifiers, headers, block bodies,
// inputs/outputs, kernels, the Extra accounting record, pruning
// horizons and the rollback-blob codec. Grounded on the teacher's
// util/hash.go (Hash type, Serialize/Unserialize over a fixed byte
// array) and model/blockindex/blockindex.go (header/chain-work shape).
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// HashSize is the width of every hash in this module, in bytes.
const HashSize = 32

// Hash is a 256-bit digest. Grounded on util.Hash in the teacher
// (util/hash.go): a fixed byte array with Serialize/Unserialize and a
// hex String form, minus the byte-reversal display quirk that's purely
// a Bitcoin wire-format convention.
type Hash [HashSize]byte

// ZeroHash is the all-zero sentinel used as both "no parent" and the
// subsidy-open zero-key kernel entry (spec.md §3, Extra invariant).
var ZeroHash = Hash{}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero sentinel.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

func (h Hash) Serialize(w io.Writer) error {
	_, err := w.Write(h[:])
	return err
}

func (h *Hash) Unserialize(r io.Reader) error {
	_, err := io.ReadFull(r, h[:])
	return err
}

// Combine authenticates two digests into one, order-significant, per
// spec.md §3's definition hash: H(H(utxoRoot ‖ kernelRoot) ‖ historyHash).
// The combiner itself is sha256(a ‖ b); spec.md leaves the concrete hash
// function to the (out-of-scope) cryptographic collaborator, so this is
// the one place this module picks a concrete stand-in.
func Combine(a, b Hash) Hash {
	h := sha256.New()
	h.Write(a[:])
	h.Write(b[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// HashBytes hashes an arbitrary byte slice, used for kernel IDs and
// commitment digests built from opaque upstream byte representations.
func HashBytes(b []byte) Hash {
	sum := sha256.Sum256(b)
	return Hash(sum)
}
