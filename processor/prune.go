package processor

import (
	"github.com/1M15M3/beam/log"
	"github.com/1M15M3/beam/model"
	"github.com/1M15M3/beam/nodedb"
	"gopkg.in/eapache/queue.v1"
)

// pruneOld enforces the two horizons spec.md §4.9 names: Branching
// trims dead, non-active tips out of the candidate set entirely;
// Schwarzschild trims bodies off the active chain's tail, leaving
// headers only.
func (p *Processor) pruneOld() {
	p.pruneBranching()
	p.pruneSchwarzschild()
}

// pruneBranching deletes non-active states whose height has fallen
// more than Branching below the cursor, working up from tips so a row
// is only removed once every descendant of it is already gone --
// grounded on model/chain/chain.go's AddToBranch queue walk, here run
// in the opposite direction (tip to root) to retire dead forks instead
// of growing live ones.
func (p *Processor) pruneBranching() {
	if p.cursor.Full == nil {
		return
	}
	cutoff := p.cursor.Full.Height
	if cutoff <= p.horizon.Branching {
		return
	}
	cutoff -= p.horizon.Branching

	q := queue.New()
	w := p.db.EnumTips()
	for w.MoveNext() {
		sid := w.Sid()
		if sid.Height < cutoff {
			q.Add(sid.Row)
		}
	}

	for q.Length() > 0 {
		row := q.Remove().(model.Row)
		flags := p.db.GetStateFlags(row)
		if flags.Active {
			continue
		}
		if p.db.HasChildren(row) {
			continue
		}
		parent := p.db.DeleteState(row)
		if parent != 0 {
			if full, ok := p.db.GetState(parent); ok && full.Height < cutoff {
				q.Add(parent)
			}
		}
	}
}

// pruneSchwarzschild advances FossilHeight one height at a time,
// dropping the body (but never the header) of every state at that
// height, active or not, spec.md §4.9's fossil zone. Non-active states at the
// fossil height are marked non-functional too, since their body is
// gone and they can no longer serve as reorg candidates.
func (p *Processor) pruneSchwarzschild() {
	if p.cursor.Full == nil {
		return
	}
	limit := p.cursor.Full.Height
	if limit <= p.horizon.Schwarzschild {
		return
	}
	limit -= p.horizon.Schwarzschild
	if limit > p.cursor.LoHorizon {
		limit = p.cursor.LoHorizon
	}

	fossil := model.HeightGenesis - 1
	if v, ok := p.db.GetParamUint64(nodedb.ParamFossilHeight); ok {
		fossil = model.Height(v)
	}

	for fossil < limit {
		fossil++
		w := p.db.EnumStatesAt(fossil)
		for w.MoveNext() {
			sid := w.Sid()
			flags := p.db.GetStateFlags(sid.Row)
			p.db.DelStateBlock(sid.Row)
			if !flags.Active {
				p.db.ClearStateFunctional(sid.Row)
				p.db.SetPeer(sid.Row, nil)
			}
		}
		p.db.SetParamUint64(nodedb.ParamFossilHeight, uint64(fossil))
		if p.hooks.AdjustFossilEnd != nil {
			p.hooks.AdjustFossilEnd(fossil)
		}
	}
	log.Debug("processor: fossil height advanced to %d", fossil)
}
