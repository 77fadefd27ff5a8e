package model

import (
	"bytes"
	"io"
)

// RollbackData serializes the per-input maturities a block's forward
// apply resolved, so a later reverse apply can restore them without
// re-deriving anything from the UTXO tree. spec.md §3 and §9: the wire
// form is either a single zero byte ("no inputs") or a packed array of
// per-input maturities in declaration order -- and crucially, writing
// varint(len(Maturities)) followed by that many varint maturities
// degenerates to exactly one zero byte when there are no inputs, so the
// "no inputs" sentinel falls out of the encoding rather than needing a
// special case. A zero-length stored blob (no bytes at all) means
// "never applied"; a one-byte blob containing 0x00 means "applied, no
// inputs" -- that distinction is made by the caller checking blob
// length before calling Unserialize, matching spec.md §4.3 step 2's
// "empty rollback blob" check.
//
// Grounded on model/undo/undo.go's TxUndo/BlockUndo (varint-counted
// array of per-input undo records), narrowed to just the maturities
// spec.md needs instead of full previous-output reconstruction --
// spec.md §3 is explicit that RollbackData carries "input maturities"
// only, since commitments are already on the Input itself.
type RollbackData struct {
	Maturities []Height
}

func (rd *RollbackData) Serialize(w io.Writer) error {
	if err := WriteVarInt(w, uint64(len(rd.Maturities))); err != nil {
		return err
	}
	for _, m := range rd.Maturities {
		if err := WriteVarInt(w, uint64(m)); err != nil {
			return err
		}
	}
	return nil
}

func (rd *RollbackData) Unserialize(r io.Reader) error {
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	maturities := make([]Height, count)
	for i := range maturities {
		v, err := ReadVarInt(r)
		if err != nil {
			return err
		}
		maturities[i] = Height(v)
	}
	rd.Maturities = maturities
	return nil
}

// Bytes serializes rd to a standalone blob, for NodeDB.SetStateRollback.
func (rd *RollbackData) Bytes() []byte {
	buf := &bytes.Buffer{}
	_ = rd.Serialize(buf)
	return buf.Bytes()
}

// Import re-applies the stored maturities onto a block's inputs, in
// declaration order, so a reverse HandleValidatedTx pass sees the same
// maturities the forward pass resolved. spec.md §4.3 step 3.
func (rd *RollbackData) Import(inputs []*Input) error {
	if len(inputs) != len(rd.Maturities) {
		return errRollbackSizeMismatch
	}
	for i, in := range inputs {
		in.Maturity = rd.Maturities[i]
	}
	return nil
}

// NewRollbackData builds a RollbackData by reading the maturities back
// off a block's (already-resolved) inputs, for persisting after a
// successful forward apply. spec.md §4.3 step 5.
func NewRollbackData(inputs []*Input) *RollbackData {
	m := make([]Height, len(inputs))
	for i, in := range inputs {
		m[i] = in.Maturity
	}
	return &RollbackData{Maturities: m}
}

var errRollbackSizeMismatch = rollbackSizeMismatchError{}

type rollbackSizeMismatchError struct{}

func (rollbackSizeMismatchError) Error() string {
	return "rollback data size mismatch: invariant violation, should be impossible"
}

// IsRollbackSizeMismatch reports whether err is the size-mismatch
// invariant break spec.md §7 classifies as Corrupted.
func IsRollbackSizeMismatch(err error) bool {
	_, ok := err.(rollbackSizeMismatchError)
	return ok
}
