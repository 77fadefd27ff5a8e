package processor

import (
	"bytes"

	"github.com/1M15M3/beam/model"
	"github.com/1M15M3/beam/nodedb"
	"github.com/1M15M3/beam/pow"
)

// HandleBlock applies or reverts the block stored at sid, spec.md §4.3.
// fwd selects direction. Forward application distinguishes "first
// time" (no rollback blob persisted yet -- full consensus verification
// required) from a later replay during initialization (rollback blob
// already present, verification already done once).
func (p *Processor) HandleBlock(sid model.StateID, fwd bool) bool {
	bodyBlob, rollbackBlob, ok := p.db.GetStateBlock(sid.Row)
	if !ok {
		return false
	}
	body, err := model.BodyFromBytes(bodyBlob)
	if err != nil {
		return false
	}

	firstTime := fwd && len(rollbackBlob) == 0
	if !fwd {
		if len(rollbackBlob) == 0 {
			p.hooks.corrupted(errCorrupt("HandleBlock: backward apply with no rollback blob"))
			return false
		}
		rd := &model.RollbackData{}
		if err := rd.Unserialize(bytes.NewReader(rollbackBlob)); err != nil {
			p.hooks.corrupted(errCorrupt("HandleBlock: malformed rollback blob"))
			return false
		}
		if err := rd.Import(body.Inputs); err != nil {
			p.hooks.corrupted(err)
			return false
		}
	}

	full, ok := p.db.GetState(sid.Row)
	if !ok {
		return false
	}

	if firstTime {
		parent, hasParent := p.db.GetPrev(sid.Row)
		if !p.verifyHeaderForApply(full, parent, hasParent) {
			return false
		}
		if !kernelsValidAt(body, sid.Height) {
			return false
		}
	}

	if !p.HandleValidatedBlock(body, sid.Height, fwd, true, nil) {
		if fwd {
			p.HandleValidatedBlock(body, sid.Height, false, true, nil)
		}
		return false
	}

	if firstTime {
		got := p.computeDefinition(p.historyNextFor(sid))
		if got != full.Definition {
			p.HandleValidatedBlock(body, sid.Height, false, true, nil)
			return false
		}
		rd := model.NewRollbackData(body.Inputs)
		p.db.SetStateRollback(sid.Row, rd.Bytes())
		p.maybeAdvanceLoHorizon(sid.Height)
	}

	return true
}

// historyNextFor returns the history-MMR hash a block at sid commits to
// -- the accumulator through sid's parent, not yet folding in sid's own
// header -- spec.md §3's historyHash selection rule.
func (p *Processor) historyNextFor(sid model.StateID) model.Hash {
	return p.db.GetPredictedStatesHash(sid)
}

// kernelsValidAt checks every kernel body newly asserts at h against its
// own MinHeight/MaxHeight window, model.TxKernel.IsValidAt -- spec.md
// §4.3 step 2's context-free VerifyBlock checks, the same structural
// window test mining.go's candidate selection runs before ever offering
// a kernel to a generated block. Only KernelsOutput is checked:
// KernelsInput kernels already passed this test at the height they were
// first output.
func kernelsValidAt(body *model.Body, h model.Height) bool {
	for _, k := range body.KernelsOutput {
		if !k.IsValidAt(h) {
			return false
		}
	}
	return true
}

// verifyHeaderForApply runs spec.md §4.3 step 2's context-free checks
// against full before its first forward application.
func (p *Processor) verifyHeaderForApply(full *model.Full, parentRow model.Row, hasParent bool) bool {
	if hasParent {
		parentWork, ok := p.db.GetChainWork(parentRow)
		if !ok {
			return false
		}
		if !full.CheckWorkInvariant(&parentWork) {
			return false
		}
	} else {
		if full.Height != model.HeightGenesis {
			return false
		}
		if !full.CheckWorkInvariant(nil) {
			return false
		}
	}

	if full.Pow.Difficulty.Packed != p.cursor.DifficultyNext.Packed {
		return false
	}

	median := pow.MovingMedian(p.rules, p.cursor.Full, p.ancestorOfHandle(p.cursor.Sid.Row, p.cursor.Sid.Height))
	if full.TimeStamp <= median {
		return false
	}
	return true
}

// maybeAdvanceLoHorizon advances the persistent loHorizon parameter
// when the cursor-horizon gap would otherwise exceed MaxRollbackHeight,
// spec.md §4.3 step 5.
func (p *Processor) maybeAdvanceLoHorizon(height model.Height) {
	if height <= p.rules.MaxRollbackHeight {
		return
	}
	newLo := height - p.rules.MaxRollbackHeight
	if newLo > p.cursor.LoHorizon {
		p.cursor.LoHorizon = newLo
		p.db.SetParamUint64(nodedb.ParamLoHorizon, uint64(newLo))
	}
}
