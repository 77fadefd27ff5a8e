// Package nodedb implements the persistent store the processor treats
// as an external collaborator (spec.md §6): headers, bodies, rollback
// blobs, tip sets, the cursor, peer attribution and named parameters,
// all behind scoped transactions.
//
// Grounded on db/db.go + db/bucket.go's DB/Bucket/MetaData interface
// shape and boltdb/boltdb.go's bolt-backed implementation; this package
// narrows that general-purpose KV abstraction down to the exact surface
// spec.md §6 names, translating the original's get_X/set_X naming into
// idiomatic Go (GetState, SetPeer, ...) the way the rest of this module
// does throughout.
package nodedb

import (
	"math/big"

	"github.com/1M15M3/beam/model"
)

// ParamID enumerates the named persistent parameters spec.md §6 calls
// out by name: CfgChecksum, LoHorizon, FossilHeight.
type ParamID int

const (
	ParamCfgChecksum ParamID = iota
	ParamLoHorizon
	ParamFossilHeight
)

// StateFlags mirrors the three independent bits spec.md's GLOSSARY
// defines: Functional (has body), Reachable (all ancestors have
// bodies), Active (on the current best chain).
type StateFlags struct {
	Functional bool
	Reachable  bool
	Active     bool
}

// WalkerState is a cursor over an enumeration (EnumTips,
// EnumFunctionalTips, EnumStatesAt, EnumMacroblocks), spec.md §6.
type WalkerState interface {
	MoveNext() bool
	Sid() model.StateID
}

// Tx is a scoped NodeDB transaction. Commit makes mutations durable;
// any exit path that doesn't call Commit rolls the transaction back,
// matching spec.md §5's "guaranteed commit or rollback on all exit
// paths".
type Tx interface {
	Commit() error
	Rollback() error
}

// NodeDB is the persistent store interface the processor consumes,
// spec.md §6.
type NodeDB interface {
	// Begin opens a scoped transaction. writable controls whether
	// mutating calls made while it is open are permitted.
	Begin(writable bool) (Tx, error)

	// Params.
	GetParam(id ParamID) ([]byte, bool)
	SetParam(id ParamID, value []byte)
	GetParamUint64(id ParamID) (uint64, bool)
	SetParamUint64(id ParamID, value uint64)

	// States.
	InsertState(h *model.Full) model.Row
	GetState(row model.Row) (*model.Full, bool)
	GetStateID(sid model.StateID) model.Hash
	StateFindSafe(id model.Hash) (model.Row, bool)
	GetStateFlags(row model.Row) StateFlags
	SetStateFunctional(row model.Row)
	ClearStateFunctional(row model.Row)
	SetStateReachable(row model.Row, reachable bool)
	SetStateActive(row model.Row, active bool)
	// SetParentRow records row's parent link, consumed by GetPrev and by
	// EnumTips' childless-row scan.
	SetParentRow(row, parent model.Row)
	// DeleteState removes row and returns its parent's row, or 0 if row
	// had no parent (it was the genesis state). Callers must only delete
	// childless rows; deleting a row with children orphans them.
	DeleteState(row model.Row) model.Row
	// HasChildren reports whether any row's parent link points at row.
	HasChildren(row model.Row) bool
	// GetChildren returns every row whose parent link points at row.
	GetChildren(row model.Row) []model.Row
	SetPeer(row model.Row, peer *uint64)
	GetPeer(row model.Row) (uint64, bool)
	MoveForward(sid model.StateID)
	MoveBack(sid model.StateID)
	GetCursor() (model.StateID, bool)
	GetPrev(row model.Row) (model.Row, bool)
	GetChainWork(row model.Row) (big.Int, bool)

	// Bodies.
	GetStateBlock(row model.Row) (body []byte, rollback []byte, ok bool)
	SetStateBlock(row model.Row, body []byte)
	DelStateBlock(row model.Row)
	SetStateRollback(row model.Row, rollback []byte)

	// Enumeration.
	EnumTips() WalkerState
	EnumFunctionalTips() WalkerState
	EnumStatesAt(h model.Height) WalkerState
	EnumMacroblocks() WalkerState
	// RecordMacroblock marks sid as the terminal state of a macroblock
	// a successful ImportMacroBlock just installed, so it surfaces from
	// EnumMacroblocks.
	RecordMacroblock(sid model.StateID)

	// Merkle history (out of scope per spec.md §1: "does not persist the
	// in-memory authenticated trees"; history MMR hashes are the one
	// authenticated structure NodeDB itself is responsible for, since
	// spec.md §3 requires historyNext/history on every cursor). The
	// accumulator is keyed by each state's permanent Row rather than its
	// Height, so a row that lost a past reorg never aliases the winning
	// row that settled at the same height -- every row's entry is
	// Combine(parent row's entry, row's own header hash), fixed forever
	// once the row and its parent link exist, so there is nothing to
	// truncate or rewind on rollback.
	//
	// GetPredictedStatesHash(sid) returns the historyHash sid's own
	// header commits to: its parent's already-recorded accumulator
	// entry, or model.ZeroHash if sid is genesis. One step behind
	// AppendHistory's own entry for sid (which additionally folds in
	// sid's own header hash), so HandleBlock's firstTime verification
	// can check a block's Definition before the block has actually gone
	// forward and AppendHistory has been called for it.
	GetPredictedStatesHash(sid model.StateID) model.Hash
	// GetProof returns the already-recorded accumulator entries for
	// sid's ancestry from fromHeight up to and including sid, in
	// ascending-height order, false if any entry in that range is
	// missing (fromHeight above sid's height, or an ancestor that was
	// never applied forward). Used to bootstrap a macroblock import's
	// running accumulator from the DB instead of trusting the in-memory
	// cursor alone.
	GetProof(sid model.StateID, fromHeight model.Height) ([]model.Hash, bool)
	// AppendHistory records row's accumulator entry once row has gone
	// forward, combining h (row's own header hash) with its parent's
	// already-recorded entry (model.ZeroHash if row is genesis).
	AppendHistory(row model.Row, h model.Hash)
}
