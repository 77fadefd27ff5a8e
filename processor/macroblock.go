package processor

import (
	"bytes"

	"github.com/1M15M3/beam/model"
	"github.com/1M15M3/beam/nodedb"
)

// MacroBlock is a compacted archive of a contiguous height range: one
// cut-through body plus the header sequence it applies against,
// spec.md §4.10 / GLOSSARY.
type MacroBlock struct {
	MinHeight model.Height
	MaxHeight model.Height
	Headers   []*model.Full
	Body      *model.Body
}

// ExportMacroBlock extracts [minH, maxH] off the active chain into a
// single normalized body, spec.md §4.10's export half. Returns false if
// any height in the range lacks a stored body (e.g. it's already been
// pruned into the fossil zone) or isn't on the active chain.
func (p *Processor) ExportMacroBlock(minH, maxH model.Height) (*MacroBlock, bool) {
	var headers []*model.Full
	var stack []*model.Body
	i := 0
	walked := p.EnumBlocks(minH, maxH, func(full *model.Full, body *model.Body, rd *model.RollbackData) bool {
		if rd != nil {
			if err := rd.Import(body.Inputs); err != nil {
				return false
			}
		}
		for _, out := range body.Outputs {
			maturity := out.KeyMaturityWithLockup(full.Height, p.rules.CoinbaseLockup)
			out.ExplicitMaturity = &maturity
		}

		headers = append(headers, full)
		stack = append(stack, body)
		// Binary-counter squash: after push i+1 (1-based), merge the top
		// two as long as the running count is even, spec.md §4.10's
		// "while i's low bit is 1" rule.
		count := i + 1
		for count&1 == 0 && len(stack) >= 2 {
			top := stack[len(stack)-1]
			second := stack[len(stack)-2]
			stack = stack[:len(stack)-2]
			stack = append(stack, model.CombineBodies(second, top, maxH, p.rules.CoinbaseLockup))
			count >>= 1
		}
		i++
		return true
	})
	if !walked {
		return nil, false
	}
	for len(stack) > 1 {
		top := stack[len(stack)-1]
		second := stack[len(stack)-2]
		stack = stack[:len(stack)-2]
		stack = append(stack, model.CombineBodies(second, top, maxH, p.rules.CoinbaseLockup))
	}

	var combined *model.Body
	if len(stack) == 1 {
		combined = stack[0]
	} else {
		combined = &model.Body{}
	}

	return &MacroBlock{MinHeight: minH, MaxHeight: maxH, Headers: headers, Body: combined}, true
}

// activeRowsInRange walks the active chain down from the cursor,
// returning rows for [minH, maxH] in increasing-height order.
func (p *Processor) activeRowsInRange(minH, maxH model.Height) ([]model.Row, bool) {
	if p.cursor.Full == nil || maxH > p.cursor.Full.Height || minH > maxH {
		return nil, false
	}
	byHeight := make(map[model.Height]model.Row)
	row, height := p.cursor.Sid.Row, p.cursor.Sid.Height
	for height >= minH {
		if height <= maxH {
			byHeight[height] = row
		}
		if height == model.HeightGenesis {
			break
		}
		parent, ok := p.db.GetPrev(row)
		if !ok {
			return nil, false
		}
		row = parent
		height--
	}
	rows := make([]model.Row, 0, maxH-minH+1)
	for h := minH; h <= maxH; h++ {
		r, ok := byHeight[h]
		if !ok {
			return nil, false
		}
		rows = append(rows, r)
	}
	return rows, true
}

// ImportMacroBlock installs mb onto the current tip, spec.md §4.10's
// import half, in its own DB transaction. On any verification failure
// the transaction is rolled back and the in-memory trees are exactly as
// they were before the call.
func (p *Processor) ImportMacroBlock(mb *MacroBlock, peer *uint64) DataStatus {
	if len(mb.Headers) == 0 {
		return Invalid
	}
	expectHeight := model.HeightGenesis
	var expectPrev model.Hash
	if p.cursor.Full != nil {
		expectHeight = p.cursor.Full.Height + 1
		expectPrev = p.cursor.Full.Hash()
	}
	if mb.Headers[0].Height != expectHeight || mb.Headers[0].Prev != expectPrev {
		return Invalid
	}

	tx, err := p.db.Begin(true)
	if err != nil {
		p.hooks.corrupted(err)
		return Invalid
	}

	rows := make([]model.Row, len(mb.Headers))
	cmmr := model.ZeroHash
	if p.cursor.Full != nil {
		// Bootstrap the running accumulator from the DB's own recorded
		// history rather than trusting the in-memory cursor field --
		// spec.md §4.10's "build a compact MMR over ancestor history,
		// bootstrap with proof from DB". A one-element proof at the
		// cursor's own height is exactly its recorded accumulator entry.
		proof, ok := p.db.GetProof(p.cursor.Sid, p.cursor.Sid.Height)
		if !ok || len(proof) != 1 {
			tx.Rollback()
			return Invalid
		}
		cmmr = proof[0]
	}

	// defHistory ends up as the accumulator through the final header's
	// parent: the history value a header's own definition commits to.
	var defHistory model.Hash
	for i, full := range mb.Headers {
		if i == 0 {
			if p.cursor.Full != nil {
				if !full.CheckWorkInvariant(&p.cursor.Full.ChainWork) {
					tx.Rollback()
					return Invalid
				}
			} else if !full.CheckWorkInvariant(nil) {
				tx.Rollback()
				return Invalid
			}
		} else {
			prev := mb.Headers[i-1]
			if !full.CheckWorkInvariant(&prev.ChainWork) {
				tx.Rollback()
				return Invalid
			}
			if full.Prev != prev.Hash() || full.Height != prev.Height+1 {
				tx.Rollback()
				return Invalid
			}
		}
		if !p.hooks.approve(full.Hash()) {
			tx.Rollback()
			return Invalid
		}
		rows[i] = p.db.InsertState(full)
		if i > 0 {
			p.db.SetParentRow(rows[i], rows[i-1])
		} else if p.cursor.Sid.Row != 0 {
			p.db.SetParentRow(rows[i], p.cursor.Sid.Row)
		}
		defHistory = cmmr
		cmmr = model.Combine(cmmr, full.Hash())
	}

	firstHeight := mb.Headers[0].Height
	finalHeight := mb.Headers[len(mb.Headers)-1].Height
	if !p.HandleValidatedBlock(mb.Body, firstHeight, true, false, &finalHeight) {
		tx.Rollback()
		return Invalid
	}

	gotDefinition := p.computeDefinition(defHistory)
	finalHeader := mb.Headers[len(mb.Headers)-1]
	if gotDefinition != finalHeader.Definition {
		p.HandleValidatedBlock(mb.Body, firstHeight, false, false, &finalHeight)
		tx.Rollback()
		return Invalid
	}

	for i, full := range mb.Headers {
		p.db.SetStateActive(rows[i], true)
		p.db.SetStateFunctional(rows[i])
		p.db.SetStateReachable(rows[i], true)
		p.db.DelStateBlock(rows[i])
		p.db.SetPeer(rows[i], peer)
		p.db.AppendHistory(rows[i], full.Hash())
	}
	finalSid := model.StateID{Row: rows[len(rows)-1], Height: finalHeight}
	p.db.MoveForward(finalSid)
	p.db.RecordMacroblock(finalSid)
	p.db.SetParamUint64(nodedb.ParamLoHorizon, uint64(finalHeight))
	p.db.SetParamUint64(nodedb.ParamFossilHeight, uint64(finalHeight))

	if err := tx.Commit(); err != nil {
		p.hooks.corrupted(err)
		return Invalid
	}

	p.cursor = Cursor{Sid: finalSid, Full: finalHeader, LoHorizon: finalHeight}
	p.refreshDerivedCursorFields()
	p.hooks.newState()
	return Accepted
}

// EnumBlocks walks the active chain from minH to maxH, calling fn with
// each height's header, stored body and rollback data (nil if none was
// recorded, e.g. a macroblock-imported height), in increasing-height
// order -- spec.md §2 item 7 / the SUPPLEMENTED FEATURES entry on
// EnumBlocks. fn returning false stops the walk early. A height in range
// missing its header, body or not on the active chain at all fails the
// whole walk, since both ExportMacroBlock and an external replay
// consumer need every height in the range materialized, not a silently
// sparse subset.
func (p *Processor) EnumBlocks(minH, maxH model.Height, fn func(full *model.Full, body *model.Body, rd *model.RollbackData) bool) bool {
	rows, ok := p.activeRowsInRange(minH, maxH)
	if !ok {
		return false
	}
	for _, row := range rows {
		full, ok := p.db.GetState(row)
		if !ok {
			return false
		}
		bodyBlob, rollbackBlob, ok := p.db.GetStateBlock(row)
		if !ok {
			return false
		}
		body, err := model.BodyFromBytes(bodyBlob)
		if err != nil {
			return false
		}
		var rd *model.RollbackData
		if len(rollbackBlob) > 0 {
			rd = &model.RollbackData{}
			if err := rd.Unserialize(bytes.NewReader(rollbackBlob)); err != nil {
				return false
			}
		}
		if !fn(full, body, rd) {
			return false
		}
	}
	return true
}
