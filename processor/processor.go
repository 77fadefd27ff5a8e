// Package processor implements the chain state processor: header/body
// ingestion, the reorg engine, transaction/block application against
// the UTXO and kernel trees, block generation, pruning and macroblock
// import/export.
//
// Grounded on blockchain/chainstate.go's ChainState (the teacher's
// process-wide struct bundling the active chain, candidate tip set,
// mempool reference and coin view) and directly on
// original_source/node/processor.cpp for the apply/rollback/macroblock
// control flow itself -- the teacher's Bitcoin reorg walks the same
// shape (common ancestor, disconnect, reconnect) but BEAM's original is
// the literal source of this module's apply/undo/macroblock semantics.
package processor

import (
	"github.com/1M15M3/beam/consensus"
	"github.com/1M15M3/beam/errcode"
	"github.com/1M15M3/beam/log"
	"github.com/1M15M3/beam/mempool"
	"github.com/1M15M3/beam/model"
	"github.com/1M15M3/beam/nodedb"
	"github.com/1M15M3/beam/trees"
)

// DataStatus is what ingestion paths surface to callers, spec.md §7's
// closing line: "The Processor surfaces only DataStatus ∈ {Accepted,
// Invalid, Rejected, Unreachable} to callers for ingest paths."
type DataStatus int

const (
	Accepted DataStatus = iota
	Invalid
	Rejected
	Unreachable
)

func (s DataStatus) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case Invalid:
		return "invalid"
	case Rejected:
		return "rejected"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Cursor is the processor's in-memory snapshot of the current chain
// tip, spec.md §2 item 5 / §3.
type Cursor struct {
	Sid            model.StateID
	Full           *model.Full
	History        model.Hash
	HistoryNext    model.Hash
	DifficultyNext consensus.Difficulty
	LoHorizon      model.Height
}

// Empty reports whether the chain is empty (spec.md §3's
// "cursor.sid.row==0 iff chain is empty").
func (c Cursor) Empty() bool { return c.Sid.Empty() }

// Hooks bundles every overridable collaborator callback spec.md §6
// names. All fields are optional; nil means "no-op" except ApproveState
// (defaults true) and OnCorrupted (defaults to a log.Alert + panic,
// since spec.md §7 says Corrupted "terminates the process").
type Hooks struct {
	RequestData    func(id model.Hash, isBlockElseHeader bool, peerHint *uint64)
	OnPeerInsane   func(peer uint64)
	OnNewState     func()
	OnRolledBack   func()
	OnStateData    func()
	OnBlockData    func()
	OpenMacroblock func(sid model.StateID) bool
	AdjustFossilEnd func(h model.Height)
	ApproveState   func(id model.Hash) bool
	OnCorrupted    func(err error)
}

func (h *Hooks) approve(id model.Hash) bool {
	if h.ApproveState == nil {
		return true
	}
	return h.ApproveState(id)
}

func (h *Hooks) corrupted(err error) {
	if h.OnCorrupted != nil {
		h.OnCorrupted(err)
		return
	}
	log.Alert("processor: corrupted: %v", err)
	panic(err)
}

func (h *Hooks) newState() {
	if h.OnNewState != nil {
		h.OnNewState()
	}
}

func (h *Hooks) rolledBack() {
	if h.OnRolledBack != nil {
		h.OnRolledBack()
	}
}

func (h *Hooks) peerInsane(peer uint64) {
	if h.OnPeerInsane != nil {
		h.OnPeerInsane(peer)
	}
}

// Processor is the chain state processor. Construct with NewProcessor
// and call Initialize before any other method.
type Processor struct {
	db      nodedb.NodeDB
	rules   *consensus.Rules
	mempool mempool.Mempool
	hooks   Hooks

	utxo   *trees.UtxoTree
	kernel *trees.KernelTree
	extra  *model.Extra

	cursor  Cursor
	horizon model.Horizon
}

// NewProcessor builds a processor over db, governed by rules, consuming
// candidates from pool. Rules is taken as an explicit constructor
// parameter rather than read from a global, per spec.md §9's "model as
// an explicit parameter to the processor constructor to avoid ambient
// state in tests". horizon is node-local pruning policy, not a consensus
// parameter, so it is kept separate from rules.
func NewProcessor(db nodedb.NodeDB, rules *consensus.Rules, pool mempool.Mempool, horizon model.Horizon, hooks Hooks) *Processor {
	horizon.Normalize(rules.MaxRollbackHeight)
	return &Processor{
		db:      db,
		rules:   rules,
		mempool: pool,
		hooks:   hooks,
		utxo:    trees.NewUtxoTree(),
		kernel:  trees.NewKernelTree(),
		extra:   model.NewExtra(),
		horizon: horizon,
	}
}

// Cursor returns the current tip snapshot.
func (p *Processor) Cursor() Cursor { return p.cursor }

// Initialize checks the config checksum of the already-open store,
// optionally resets the cursor, then rebuilds the in-memory trees by
// replaying the active chain -- spec.md §4.1. bootstrapMacroblock is an
// optional pre-verified macroblock archive (SPEC_FULL's Rescan supplement,
// grounded on original_source/node/processor.cpp's treasury/snapshot
// bootstrap): when non-nil, its cut-through body is applied once as a
// single block at its own MinHeight, with MaxHeight as the
// explicit-maturity bound, instead of replaying every
// individual height under it one at a time, the same way
// ImportMacroBlock itself applied it when the archive was first
// installed. Pass nil for an ordinary full-genesis replay.
func (p *Processor) Initialize(resetCursor bool, bootstrapMacroblock *MacroBlock) error {
	checksum, ok := p.db.GetParam(nodedb.ParamCfgChecksum)
	if !ok {
		p.db.SetParam(nodedb.ParamCfgChecksum, p.rules.Checksum[:])
	} else if !bytesEqual(checksum, p.rules.Checksum[:]) {
		return errcode.New(errcode.Corrupted, "processor", "config checksum mismatch: incompatible database")
	}

	p.extra = model.NewExtra()
	if p.rules.TreasuryEmission != nil && p.rules.TreasuryEmission.Sign() != 0 {
		p.extra.Subsidy.Add(&p.extra.Subsidy, p.rules.TreasuryEmission)
	}

	if resetCursor {
		p.db.MoveBack(model.StateID{})
		p.cursor = Cursor{}
	}

	p.initCursor()
	if err := p.initializeFromBlocks(bootstrapMacroblock); err != nil {
		return err
	}

	if lo, ok := p.db.GetParamUint64(nodedb.ParamLoHorizon); ok {
		p.cursor.LoHorizon = model.Height(lo)
	}
	p.horizon.Normalize(p.rules.MaxRollbackHeight)

	if !resetCursor {
		if err := p.TryGoUp(); err != nil {
			return err
		}
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// initCursor loads the persisted cursor (if any) into p.cursor.
func (p *Processor) initCursor() {
	sid, ok := p.db.GetCursor()
	if !ok {
		p.cursor = Cursor{}
		p.refreshDerivedCursorFields()
		return
	}
	full, _ := p.db.GetState(sid.Row)
	p.cursor = Cursor{Sid: sid, Full: full}
	p.refreshDerivedCursorFields()
}

// initializeFromBlocks replays every active-chain block from genesis up
// to the cursor forward through HandleValidatedBlock, rebuilding the
// UTXO/kernel trees and Extra from scratch -- spec.md §4.1 step 4. The
// recomputed definition must match the cursor header's; mismatch is
// fatal corruption. If bootstrapMacroblock is non-nil, every height at
// or below its MaxHeight is covered by one application of its
// cut-through body instead of individual per-height replay (those
// heights' own bodies are gone from NodeDB, deleted by ImportMacroBlock
// when the archive was installed, so they're nothing to skip over --
// bootstrapMacroblock.Body is genuinely the only record of them left).
func (p *Processor) initializeFromBlocks(bootstrapMacroblock *MacroBlock) error {
	if p.cursor.Empty() {
		return nil
	}

	type step struct {
		row    model.Row
		height model.Height
	}
	var chain []step
	row, height := p.cursor.Sid.Row, p.cursor.Sid.Height
	for row != 0 {
		chain = append(chain, step{row, height})
		parent, ok := p.db.GetPrev(row)
		if !ok {
			break
		}
		row = parent
		height--
	}

	if bootstrapMacroblock != nil {
		maxH := bootstrapMacroblock.MaxHeight
		if !p.HandleValidatedBlock(bootstrapMacroblock.Body, bootstrapMacroblock.MinHeight, true, false, &maxH) {
			return errcode.New(errcode.Corrupted, "processor", "replay: bootstrap macroblock failed to reapply")
		}
	}

	// chain is tip-to-genesis; walk genesis-to-tip, skipping any height
	// the bootstrap macroblock already covered.
	for i := len(chain) - 1; i >= 0; i-- {
		st := chain[i]
		if bootstrapMacroblock != nil && st.height <= bootstrapMacroblock.MaxHeight {
			continue
		}
		bodyBlob, _, ok := p.db.GetStateBlock(st.row)
		if !ok {
			continue
		}
		body, err := model.BodyFromBytes(bodyBlob)
		if err != nil {
			return errcode.Wrap(err, errcode.Corrupted, "processor", "replay: malformed stored body")
		}
		if !p.HandleValidatedBlock(body, st.height, true, true, nil) {
			return errcode.New(errcode.Corrupted, "processor", "replay: stored block failed to reapply")
		}
	}

	if !p.cursor.Full.Definition.IsZero() {
		got := p.computeDefinition(p.cursor.History)
		if got != p.cursor.Full.Definition {
			return errcode.New(errcode.Corrupted, "processor", "replay: definition mismatch after rebuild")
		}
	}
	return nil
}

// computeDefinition binds the current tree roots to historyHash,
// spec.md §3's definition hash.
func (p *Processor) computeDefinition(historyHash model.Hash) model.Hash {
	return model.ComputeDefinition(p.utxo.Root(), p.kernel.Root(), historyHash)
}

// refreshDerivedCursorFields recomputes DifficultyNext and the
// history-MMR hashes after the cursor's underlying row changes.
func (p *Processor) refreshDerivedCursorFields() {
	if p.cursor.Full == nil {
		p.cursor.DifficultyNext = p.rules.StartDifficulty
		p.cursor.History = model.ZeroHash
		p.cursor.HistoryNext = model.ZeroHash
		return
	}
	p.cursor.History = p.db.GetPredictedStatesHash(p.cursor.Sid)
	p.cursor.HistoryNext = model.Combine(p.cursor.History, p.cursor.Full.Hash())
	p.cursor.DifficultyNext = nextDifficulty(p.rules, p.cursor.Full, p.ancestorOfHandle(p.cursor.Sid.Row, p.cursor.Sid.Height))
}
