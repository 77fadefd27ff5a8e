package processor

import (
	"math/big"

	"github.com/1M15M3/beam/consensus"
	"github.com/1M15M3/beam/errcode"
	"github.com/1M15M3/beam/log"
	"github.com/1M15M3/beam/model"
	"github.com/1M15M3/beam/pow"
	"gopkg.in/eapache/queue.v1"
	"gopkg.in/fatih/set.v0"
)

// ancestorOf adapts nodedb's parent-pointer walk to pow.Ancestor,
// grounded on model/blockindex/blockindex.go's GetAncestor (here a
// direct parent-pointer walk rather than a skip-list, since this
// module's rollback depths are small enough that the skip-list
// optimization isn't load-bearing).
type ancestorOf struct {
	p      *Processor
	row    model.Row
	height model.Height
}

func (a ancestorOf) GetAncestor(h model.Height) *model.Full {
	row, height := a.row, a.height
	for height > h {
		parent, ok := a.p.db.GetPrev(row)
		if !ok {
			return nil
		}
		row = parent
		height--
	}
	if height != h {
		return nil
	}
	full, ok := a.p.db.GetState(row)
	if !ok {
		return nil
	}
	return full
}

func (p *Processor) ancestorOfHandle(row model.Row, height model.Height) pow.Ancestor {
	return ancestorOf{p: p, row: row, height: height}
}

func nextDifficulty(rules *consensus.Rules, tip *model.Full, anc pow.Ancestor) consensus.Difficulty {
	return pow.NextDifficulty(rules, tip, anc)
}

// OnState ingests a header, spec.md §4.5.
func (p *Processor) OnState(h *model.Full, peer *uint64) DataStatus {
	if !p.headerSane(h) {
		return Invalid
	}
	if h.Height < p.cursor.LoHorizon {
		return Unreachable
	}
	id := h.Hash()
	if _, known := p.db.StateFindSafe(id); known {
		return Rejected
	}
	if !p.hooks.approve(id) {
		return Invalid
	}

	tx, err := p.db.Begin(true)
	if err != nil {
		p.hooks.corrupted(err)
		return Invalid
	}
	row := p.db.InsertState(h)
	if parent, ok := p.db.StateFindSafe(h.Prev); ok {
		p.db.SetParentRow(row, parent)
	}
	if peer != nil {
		p.db.SetPeer(row, peer)
	}
	if err := tx.Commit(); err != nil {
		p.hooks.corrupted(err)
		return Invalid
	}
	if p.hooks.OnStateData != nil {
		p.hooks.OnStateData()
	}
	return Accepted
}

// headerSane checks the invariants OnState can verify without DB
// access: a non-nil header with non-negative chain work. Definition and
// prev are not inspected here.
func (p *Processor) headerSane(h *model.Full) bool {
	return h != nil && h.ChainWork.Sign() >= 0
}

// OnBlock ingests a body, spec.md §4.6.
func (p *Processor) OnBlock(id model.Hash, body []byte, peer *uint64) DataStatus {
	if uint32(len(body)) > p.rules.MaxBodySize {
		return Invalid
	}
	row, ok := p.db.StateFindSafe(id)
	if !ok {
		return Unreachable
	}
	full, ok := p.db.GetState(row)
	if !ok {
		p.hooks.corrupted(errCorrupt("OnBlock: state row missing its header"))
		return Invalid
	}
	if full.Height < p.cursor.LoHorizon {
		return Unreachable
	}
	if p.db.GetStateFlags(row).Functional {
		return Rejected
	}

	tx, err := p.db.Begin(true)
	if err != nil {
		p.hooks.corrupted(err)
		return Invalid
	}
	p.db.SetStateBlock(row, body)
	p.db.SetStateFunctional(row)
	if peer != nil {
		p.db.SetPeer(row, peer)
	}
	p.updateReachability(row)

	if p.isReachableFromCursor(row) {
		if err := p.tryGoUpLocked(); err != nil {
			tx.Rollback()
			p.hooks.corrupted(err)
			return Invalid
		}
	}

	if err := tx.Commit(); err != nil {
		p.hooks.corrupted(err)
		return Invalid
	}
	if p.hooks.OnBlockData != nil {
		p.hooks.OnBlockData()
	}
	return Accepted
}

// updateReachability recomputes the Reachable bit (spec.md GLOSSARY:
// "all ancestors have bodies") starting at row and cascading forward
// into any children row's own transition to reachable newly unblocks --
// grounded on model/chain/chain.go's orphan-children queue walk, run
// here forward (root to tip) instead of on newly connected headers.
// EnumFunctionalTips filters on this bit, not the local Functional bit
// alone, since a reorg candidate needs bodies all the way to genesis.
func (p *Processor) updateReachability(row model.Row) {
	q := queue.New()
	q.Add(row)
	for q.Length() > 0 {
		r := q.Remove().(model.Row)
		flags := p.db.GetStateFlags(r)
		if !flags.Functional || flags.Reachable {
			continue
		}
		parent, hasParent := p.db.GetPrev(r)
		reachable := !hasParent
		if hasParent {
			reachable = p.db.GetStateFlags(parent).Reachable
		}
		if !reachable {
			continue
		}
		p.db.SetStateReachable(r, true)
		for _, child := range p.db.GetChildren(r) {
			q.Add(child)
		}
	}
}

// isReachableFromCursor reports whether every ancestor of row back to
// the cursor's common ancestor already has a body.
func (p *Processor) isReachableFromCursor(row model.Row) bool {
	for row != 0 {
		if !p.db.GetStateFlags(row).Functional {
			return false
		}
		if row == p.cursor.Sid.Row {
			return true
		}
		parent, ok := p.db.GetPrev(row)
		if !ok {
			return p.cursor.Empty()
		}
		row = parent
	}
	return p.cursor.Empty()
}

// TryGoUp runs the reorg engine to a fixed point, spec.md §4.2, wrapped
// in its own DB transaction.
func (p *Processor) TryGoUp() error {
	tx, err := p.db.Begin(true)
	if err != nil {
		return err
	}
	if err := p.tryGoUpLocked(); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (p *Processor) tryGoUpLocked() error {
	for {
		target, targetWork, found := p.bestFunctionalTip()
		if !found {
			return nil
		}
		if p.cursor.Full != nil && targetWork.Cmp(&p.cursor.Full.ChainWork) == 0 {
			return nil
		}

		path, failed, err := p.buildForwardPath(target, targetWork)
		if err != nil {
			return err
		}
		if failed {
			continue
		}

		mutated := len(path) > 0
		if p.applyPathOrRestart(path) {
			continue
		}
		if mutated {
			p.pruneOld()
			p.hooks.newState()
		}
		return nil
	}
}

// bestFunctionalTip picks the functional tip with maximum chain work,
// spec.md §4.2 step 1-2.
func (p *Processor) bestFunctionalTip() (row model.Row, work big.Int, ok bool) {
	w := p.db.EnumFunctionalTips()
	var bestRow model.Row
	var bestWork *big.Int
	for w.MoveNext() {
		sid := w.Sid()
		tw, found := p.db.GetChainWork(sid.Row)
		if !found {
			continue
		}
		if bestWork == nil || tw.Cmp(bestWork) > 0 {
			bestRow = sid.Row
			cp := tw
			bestWork = &cp
		}
	}
	if bestWork == nil {
		return 0, big.Int{}, false
	}
	return bestRow, *bestWork, true
}

// buildForwardPath walks target back toward the cursor, rolling the
// cursor back one step whenever the cursor currently has more work than
// the (shrinking) target path, and otherwise extending the path --
// spec.md §4.2 step 3. failed reports that target dead-ended (missing
// parent) before reaching the cursor, meaning this outer iteration
// should restart from scratch.
func (p *Processor) buildForwardPath(target model.Row, targetWork big.Int) (path []model.Row, failed bool, err error) {
	// visited guards against a corrupt parent-pointer cycle walking this
	// loop forever -- the same ad-hoc membership tracking
	// blockchain/Validation.go reaches for gopkg.in/fatih/set.v0 for.
	visited := set.New(set.NonThreadSafe)
	for target != 0 && target != p.cursor.Sid.Row {
		if p.cursor.Full != nil && p.cursor.Full.ChainWork.Cmp(&targetWork) > 0 {
			if err := p.rollback(); err != nil {
				return nil, false, err
			}
			continue
		}

		if visited.Has(target) {
			return nil, false, errcode.New(errcode.Corrupted, "processor", "buildForwardPath: cycle in parent pointers")
		}
		visited.Add(target)
		path = append(path, target)
		parent, ok := p.db.GetPrev(target)
		if !ok {
			// target has no parent link: it's a genesis candidate. If the
			// cursor is already empty, the path just built reaches all the
			// way down and target is this iteration's new root. Otherwise
			// target and the cursor root two different trees entirely;
			// roll the cursor all the way back (same as the post-loop
			// "unconnected trees" fallback below) and signal restart.
			if p.cursor.Empty() {
				return path, false, nil
			}
			for !p.cursor.Empty() {
				if err := p.rollback(); err != nil {
					return nil, false, err
				}
			}
			return nil, true, nil
		}
		tw, ok := p.db.GetChainWork(parent)
		if !ok {
			return nil, true, nil
		}
		target = parent
		targetWork = tw
	}
	if target != p.cursor.Sid.Row {
		// cursor never reached target (e.g. different, unconnected
		// trees); roll the cursor all the way back and signal restart.
		for !p.cursor.Empty() {
			if err := p.rollback(); err != nil {
				return nil, false, err
			}
		}
		return nil, true, nil
	}
	return path, false, nil
}

// applyPathOrRestart applies path in reverse (tip-to-cursor order, so
// genesis-ward entries apply first) via goForward. On any failure the
// failing row is marked non-functional and its peer blamed; true is
// returned to signal the caller should restart its outer loop.
func (p *Processor) applyPathOrRestart(path []model.Row) bool {
	for i := len(path) - 1; i >= 0; i-- {
		row := path[i]
		if err := p.goForward(row); err != nil {
			p.db.ClearStateFunctional(row)
			p.db.SetStateReachable(row, false)
			if peer, ok := p.db.GetPeer(row); ok {
				p.hooks.peerInsane(peer)
			}
			log.Warn("processor: block at row %d failed to apply: %v", row, err)
			return true
		}
	}
	return false
}

// rollback undoes the current cursor's block by one step, spec.md
// §4.2's note that Rollback must be total.
func (p *Processor) rollback() error {
	if p.cursor.Empty() {
		return errcode.New(errcode.Corrupted, "processor", "rollback: cursor already empty")
	}
	if !p.HandleBlock(p.cursor.Sid, false) {
		p.hooks.corrupted(errCorrupt("rollback: backward apply failed"))
		return errCorrupt("rollback: backward apply failed")
	}
	parent, _ := p.db.GetPrev(p.cursor.Sid.Row)
	var newSid model.StateID
	if parent != 0 {
		if full, ok := p.db.GetState(parent); ok {
			newSid = model.StateID{Row: parent, Height: full.Height}
		}
	}
	p.db.SetStateActive(p.cursor.Sid.Row, false)
	p.db.MoveBack(newSid)
	if newSid.Row != 0 {
		full, _ := p.db.GetState(newSid.Row)
		p.cursor = Cursor{Sid: newSid, Full: full, LoHorizon: p.cursor.LoHorizon}
	} else {
		p.cursor = Cursor{LoHorizon: p.cursor.LoHorizon}
	}
	p.refreshDerivedCursorFields()
	p.hooks.rolledBack()
	return nil
}

// goForward advances the cursor to row by applying its stored block
// forward, spec.md §4.2 step 4 / §4.3.
func (p *Processor) goForward(row model.Row) error {
	full, ok := p.db.GetState(row)
	if !ok {
		return errCorrupt("goForward: missing header")
	}
	sid := model.StateID{Row: row, Height: full.Height}
	if !p.HandleBlock(sid, true) {
		return errCorrupt("goForward: forward apply failed")
	}
	p.db.SetStateActive(row, true)
	p.db.MoveForward(sid)
	p.cursor = Cursor{Sid: sid, Full: full, LoHorizon: p.cursor.LoHorizon}
	p.refreshDerivedCursorFields()
	p.db.AppendHistory(row, full.Hash())
	return nil
}
