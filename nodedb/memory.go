package nodedb

import (
	"fmt"
	"math/big"

	"github.com/1M15M3/beam/model"
)

// dbState is the mutable content of a MemDB snapshot. Begin/Commit/
// Rollback clone and swap this struct wholesale, giving MemDB's
// transactions the all-or-nothing semantics spec.md §5 requires without
// needing per-call undo logs -- appropriate for a test fake, grounded
// on model/chain/fake_chain.go's in-memory stand-in for the real chain
// store.
type dbState struct {
	params         map[ParamID][]byte
	nextRow        model.Row
	states         map[model.Row]*model.Full
	idToRow        map[model.Hash]model.Row
	parent         map[model.Row]model.Row
	children       map[model.Row][]model.Row
	flags          map[model.Row]StateFlags
	peers          map[model.Row]uint64
	bodies         map[model.Row][]byte
	rollbacks      map[model.Row][]byte
	statesAtHeight map[model.Height][]model.Row
	cursor         model.StateID
	hasCursor      bool
	historyByRow   map[model.Row]model.Hash
	macroblocks    []model.StateID
}

func newDBState() *dbState {
	return &dbState{
		params:         make(map[ParamID][]byte),
		states:         make(map[model.Row]*model.Full),
		idToRow:        make(map[model.Hash]model.Row),
		parent:         make(map[model.Row]model.Row),
		children:       make(map[model.Row][]model.Row),
		flags:          make(map[model.Row]StateFlags),
		peers:          make(map[model.Row]uint64),
		bodies:         make(map[model.Row][]byte),
		rollbacks:      make(map[model.Row][]byte),
		statesAtHeight: make(map[model.Height][]model.Row),
		historyByRow:   make(map[model.Row]model.Hash),
	}
}

func (s *dbState) clone() *dbState {
	c := &dbState{
		nextRow:   s.nextRow,
		cursor:    s.cursor,
		hasCursor: s.hasCursor,
	}
	c.params = cloneMap(s.params)
	c.states = cloneMap(s.states)
	c.idToRow = cloneMap(s.idToRow)
	c.parent = cloneMap(s.parent)
	c.flags = cloneMap(s.flags)
	c.peers = cloneMap(s.peers)
	c.bodies = cloneMap(s.bodies)
	c.rollbacks = cloneMap(s.rollbacks)
	c.historyByRow = cloneMap(s.historyByRow)

	c.children = make(map[model.Row][]model.Row, len(s.children))
	for k, v := range s.children {
		c.children[k] = append([]model.Row{}, v...)
	}
	c.statesAtHeight = make(map[model.Height][]model.Row, len(s.statesAtHeight))
	for k, v := range s.statesAtHeight {
		c.statesAtHeight[k] = append([]model.Row{}, v...)
	}
	c.macroblocks = append([]model.StateID{}, s.macroblocks...)
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MemDB is an in-memory NodeDB, used by processor tests in place of the
// bolt-backed store (SPEC_FULL's ambient "test tooling" section).
type MemDB struct {
	live   *dbState
	tx     *dbState
	txOpen bool
}

// NewMemDB returns an empty in-memory store.
func NewMemDB() *MemDB {
	return &MemDB{live: newDBState()}
}

func (db *MemDB) cur() *dbState {
	if db.tx != nil {
		return db.tx
	}
	return db.live
}

type memTx struct {
	db       *MemDB
	writable bool
	done     bool
}

func (db *MemDB) Begin(writable bool) (Tx, error) {
	if db.txOpen {
		return nil, fmt.Errorf("nodedb: transaction already open")
	}
	db.txOpen = true
	if writable {
		db.tx = db.live.clone()
	}
	return &memTx{db: db, writable: writable}, nil
}

func (t *memTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.writable {
		t.db.live = t.db.tx
	}
	t.db.tx = nil
	t.db.txOpen = false
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.db.tx = nil
	t.db.txOpen = false
	return nil
}

func (db *MemDB) GetParam(id ParamID) ([]byte, bool) {
	v, ok := db.cur().params[id]
	return v, ok
}

func (db *MemDB) SetParam(id ParamID, value []byte) {
	db.cur().params[id] = value
}

func (db *MemDB) GetParamUint64(id ParamID) (uint64, bool) {
	v, ok := db.cur().params[id]
	if !ok || len(v) != 8 {
		return 0, false
	}
	return beUint64(v), true
}

func (db *MemDB) SetParamUint64(id ParamID, value uint64) {
	db.cur().params[id] = beBytes(value)
}

func beBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * (7 - i)))
	}
	return b
}

func beUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func (db *MemDB) InsertState(h *model.Full) model.Row {
	s := db.cur()
	s.nextRow++
	row := s.nextRow
	cp := *h
	s.states[row] = &cp
	s.idToRow[h.Hash()] = row
	s.statesAtHeight[h.Height] = append(s.statesAtHeight[h.Height], row)
	return row
}

func (db *MemDB) GetState(row model.Row) (*model.Full, bool) {
	h, ok := db.cur().states[row]
	return h, ok
}

func (db *MemDB) GetStateID(sid model.StateID) model.Hash {
	h, ok := db.cur().states[sid.Row]
	if !ok {
		return model.ZeroHash
	}
	return h.Hash()
}

func (db *MemDB) StateFindSafe(id model.Hash) (model.Row, bool) {
	row, ok := db.cur().idToRow[id]
	return row, ok
}

func (db *MemDB) GetStateFlags(row model.Row) StateFlags {
	return db.cur().flags[row]
}

func (db *MemDB) SetStateFunctional(row model.Row) {
	s := db.cur()
	f := s.flags[row]
	f.Functional = true
	s.flags[row] = f
}

func (db *MemDB) ClearStateFunctional(row model.Row) {
	s := db.cur()
	f := s.flags[row]
	f.Functional = false
	s.flags[row] = f
}

func (db *MemDB) SetStateReachable(row model.Row, reachable bool) {
	s := db.cur()
	f := s.flags[row]
	f.Reachable = reachable
	s.flags[row] = f
}

func (db *MemDB) SetStateActive(row model.Row, active bool) {
	s := db.cur()
	f := s.flags[row]
	f.Active = active
	s.flags[row] = f
}

func (db *MemDB) SetParentRow(row, parent model.Row) {
	s := db.cur()
	s.parent[row] = parent
	s.children[parent] = append(s.children[parent], row)
}

func (db *MemDB) DeleteState(row model.Row) model.Row {
	s := db.cur()
	parent := s.parent[row]
	if h, ok := s.states[row]; ok {
		delete(s.idToRow, h.Hash())
		rows := s.statesAtHeight[h.Height]
		for i, r := range rows {
			if r == row {
				s.statesAtHeight[h.Height] = append(rows[:i], rows[i+1:]...)
				break
			}
		}
	}
	delete(s.states, row)
	delete(s.flags, row)
	delete(s.peers, row)
	delete(s.bodies, row)
	delete(s.rollbacks, row)
	delete(s.parent, row)
	siblings := s.children[parent]
	for i, r := range siblings {
		if r == row {
			s.children[parent] = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	delete(s.children, row)
	return parent
}

func (db *MemDB) HasChildren(row model.Row) bool {
	return len(db.cur().children[row]) > 0
}

func (db *MemDB) GetChildren(row model.Row) []model.Row {
	return append([]model.Row{}, db.cur().children[row]...)
}

func (db *MemDB) SetPeer(row model.Row, peer *uint64) {
	s := db.cur()
	if peer == nil {
		delete(s.peers, row)
		return
	}
	s.peers[row] = *peer
}

func (db *MemDB) GetPeer(row model.Row) (uint64, bool) {
	v, ok := db.cur().peers[row]
	return v, ok
}

func (db *MemDB) MoveForward(sid model.StateID) {
	db.cur().cursor = sid
	db.cur().hasCursor = true
}

func (db *MemDB) MoveBack(sid model.StateID) {
	db.cur().cursor = sid
	db.cur().hasCursor = sid.Row != 0
}

func (db *MemDB) GetCursor() (model.StateID, bool) {
	s := db.cur()
	return s.cursor, s.hasCursor
}

func (db *MemDB) GetPrev(row model.Row) (model.Row, bool) {
	s := db.cur()
	p, ok := s.parent[row]
	return p, ok
}

func (db *MemDB) GetChainWork(row model.Row) (big.Int, bool) {
	h, ok := db.cur().states[row]
	if !ok {
		return big.Int{}, false
	}
	return h.ChainWork, true
}

func (db *MemDB) GetStateBlock(row model.Row) ([]byte, []byte, bool) {
	s := db.cur()
	body, ok := s.bodies[row]
	if !ok {
		return nil, nil, false
	}
	return body, s.rollbacks[row], true
}

func (db *MemDB) SetStateBlock(row model.Row, body []byte) {
	db.cur().bodies[row] = body
}

func (db *MemDB) DelStateBlock(row model.Row) {
	delete(db.cur().bodies, row)
	delete(db.cur().rollbacks, row)
}

func (db *MemDB) SetStateRollback(row model.Row, rollback []byte) {
	db.cur().rollbacks[row] = rollback
}

// memWalker is a simple slice-backed WalkerState.
type memWalker struct {
	rows []model.Row
	db   *MemDB
	i    int
}

func (w *memWalker) MoveNext() bool {
	if w.i >= len(w.rows) {
		return false
	}
	w.i++
	return true
}

func (w *memWalker) Sid() model.StateID {
	row := w.rows[w.i-1]
	h, ok := w.db.cur().states[row]
	if !ok {
		return model.StateID{}
	}
	return model.StateID{Row: row, Height: h.Height}
}

func (db *MemDB) EnumTips() WalkerState {
	s := db.cur()
	var rows []model.Row
	for row := range s.states {
		if len(s.children[row]) == 0 {
			rows = append(rows, row)
		}
	}
	return &memWalker{rows: rows, db: db}
}

func (db *MemDB) EnumFunctionalTips() WalkerState {
	s := db.cur()
	var rows []model.Row
	for row := range s.states {
		if len(s.children[row]) == 0 && s.flags[row].Reachable {
			rows = append(rows, row)
		}
	}
	return &memWalker{rows: rows, db: db}
}

func (db *MemDB) EnumStatesAt(h model.Height) WalkerState {
	rows := append([]model.Row{}, db.cur().statesAtHeight[h]...)
	return &memWalker{rows: rows, db: db}
}

func (db *MemDB) EnumMacroblocks() WalkerState {
	s := db.cur()
	rows := make([]model.Row, len(s.macroblocks))
	for i, sid := range s.macroblocks {
		rows[i] = sid.Row
	}
	return &memWalker{rows: rows, db: db}
}

func (db *MemDB) RecordMacroblock(sid model.StateID) {
	s := db.cur()
	s.macroblocks = append(s.macroblocks, sid)
}

// GetPredictedStatesHash returns the accumulator entry sid's own header
// commits to: its parent's already-recorded entry, or model.ZeroHash if
// sid is genesis (or unknown). This is the historyHash a block's
// Definition is computed against, one step behind AppendHistory's own
// entry for sid, which additionally folds in sid's own header hash.
func (db *MemDB) GetPredictedStatesHash(sid model.StateID) model.Hash {
	s := db.cur()
	parent, ok := s.parent[sid.Row]
	if !ok {
		return model.ZeroHash
	}
	return s.historyByRow[parent]
}

func (db *MemDB) GetProof(sid model.StateID, fromHeight model.Height) ([]model.Hash, bool) {
	s := db.cur()
	if fromHeight > sid.Height {
		return nil, false
	}
	var rows []model.Row
	row, height := sid.Row, sid.Height
	for {
		rows = append(rows, row)
		if height == fromHeight {
			break
		}
		parent, ok := s.parent[row]
		if !ok {
			return nil, false
		}
		row = parent
		height--
	}

	out := make([]model.Hash, len(rows))
	for i, r := range rows {
		acc, ok := s.historyByRow[r]
		if !ok {
			return nil, false
		}
		out[len(rows)-1-i] = acc
	}
	return out, true
}

// AppendHistory records row's accumulator entry -- model.ZeroHash
// combined with h, or the parent's entry combined with h if row has a
// parent. Rows are permanent and never reused across a reorg, so this
// entry is correct forever once written; there is nothing to rewind on
// rollback.
func (db *MemDB) AppendHistory(row model.Row, h model.Hash) {
	s := db.cur()
	parentAcc := model.ZeroHash
	if parent, ok := s.parent[row]; ok {
		parentAcc = s.historyByRow[parent]
	}
	s.historyByRow[row] = model.Combine(parentAcc, h)
}
