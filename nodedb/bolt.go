package nodedb

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/1M15M3/beam/model"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Bucket names. Grounded on boltdb/boltdb.go's single-file-many-buckets
// layout; bbolt replaces the teacher's archived github.com/boltdb/bolt
// (same API, maintained fork -- noted in DESIGN.md).
var (
	bucketParams   = []byte("params")
	bucketStates   = []byte("states")   // row(8) -> header blob
	bucketStateID  = []byte("stateid")  // hash(32) -> row(8)
	bucketBodies   = []byte("bodies")   // row(8) -> body blob
	bucketRollback = []byte("rollback") // row(8) -> rollback blob
	bucketPeers    = []byte("peers")    // row(8) -> peer(8)
	bucketParent   = []byte("parent")   // row(8) -> parent row(8)
	bucketChildren = []byte("children") // row(8) -> concatenated child rows
	bucketFlags    = []byte("flags")    // row(8) -> flags byte
	bucketHeight   = []byte("height")   // height(8) -> concatenated rows
	bucketMeta        = []byte("meta")        // "cursor" -> row(8)||height(8)
	bucketHistory     = []byte("history")     // row(8) -> accumulator hash(32)
	bucketMacroblocks = []byte("macroblocks") // "rows" -> concatenated row(8)
)

var allBuckets = [][]byte{
	bucketParams, bucketStates, bucketStateID, bucketBodies, bucketRollback,
	bucketPeers, bucketParent, bucketChildren, bucketFlags, bucketHeight,
	bucketMeta, bucketHistory, bucketMacroblocks,
}

// BoltDB is the persistent NodeDB, backed by go.etcd.io/bbolt.
type BoltDB struct {
	db *bolt.DB
}

// Open opens (creating if absent) a bbolt-backed NodeDB at path.
func Open(path string) (*BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "nodedb: open")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "nodedb: init buckets")
	}
	return &BoltDB{db: db}, nil
}

// Close releases the underlying file.
func (b *BoltDB) Close() error { return b.db.Close() }

type boltTx struct {
	tx *bolt.Tx
}

func (b *BoltDB) Begin(writable bool) (Tx, error) {
	tx, err := b.db.Begin(writable)
	if err != nil {
		return nil, errors.Wrap(err, "nodedb: begin")
	}
	return &boltTx{tx: tx}, nil
}

func (t *boltTx) Commit() error   { return t.tx.Commit() }
func (t *boltTx) Rollback() error { return t.tx.Rollback() }

// withTx runs fn against an ad-hoc transaction when the caller didn't
// already open one via Begin -- every NodeDB accessor is individually
// atomic this way, matching spec.md §5's "each accessor call not itself
// part of a larger transaction is its own atomic unit" allowance.
func (b *BoltDB) view(fn func(tx *bolt.Tx) error) {
	if err := b.db.View(fn); err != nil {
		panic(fmt.Sprintf("nodedb: view: %v", err))
	}
}

func (b *BoltDB) update(fn func(tx *bolt.Tx) error) {
	if err := b.db.Update(fn); err != nil {
		panic(fmt.Sprintf("nodedb: update: %v", err))
	}
}

func rowKey(row model.Row) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(row))
	return k
}

func heightKey(h model.Height) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(h))
	return k
}

func rowFromKey(k []byte) model.Row { return model.Row(binary.BigEndian.Uint64(k)) }

func (b *BoltDB) GetParam(id ParamID) (v []byte, ok bool) {
	b.view(func(tx *bolt.Tx) error {
		val := tx.Bucket(bucketParams).Get(paramKey(id))
		if val != nil {
			v = append([]byte{}, val...)
			ok = true
		}
		return nil
	})
	return v, ok
}

func paramKey(id ParamID) []byte {
	return []byte(fmt.Sprintf("p%d", id))
}

func (b *BoltDB) SetParam(id ParamID, value []byte) {
	b.update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketParams).Put(paramKey(id), value)
	})
}

func (b *BoltDB) GetParamUint64(id ParamID) (uint64, bool) {
	v, ok := b.GetParam(id)
	if !ok || len(v) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(v), true
}

func (b *BoltDB) SetParamUint64(id ParamID, value uint64) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	b.SetParam(id, buf)
}

// encodeFull/decodeFull serialize a model.Full header. Out of scope per
// spec.md §6 for the wire format; this on-disk layout is internal to
// BoltDB and never crosses the NodeDB interface boundary.
func encodeFull(h *model.Full) []byte {
	work := h.ChainWork.Bytes()
	buf := make([]byte, 0, 8+32+2+len(work)+32+8+4+8)
	buf = appendU64(buf, uint64(h.Height))
	buf = append(buf, h.Prev[:]...)
	buf = appendU16(buf, uint16(len(work)))
	buf = append(buf, work...)
	buf = append(buf, h.Definition[:]...)
	buf = appendU64(buf, uint64(h.TimeStamp))
	buf = appendU32(buf, h.Pow.Difficulty.Packed)
	buf = appendU64(buf, h.Pow.Nonce)
	return buf
}

func decodeFull(b []byte) (*model.Full, error) {
	if len(b) < 8+32+2 {
		return nil, errors.New("nodedb: truncated header")
	}
	h := &model.Full{}
	off := 0
	h.Height = model.Height(readU64(b, &off))
	copy(h.Prev[:], b[off:off+32])
	off += 32
	wlen := int(readU16(b, &off))
	if len(b) < off+wlen+32+8+4+8 {
		return nil, errors.New("nodedb: truncated header body")
	}
	h.ChainWork.SetBytes(b[off : off+wlen])
	off += wlen
	copy(h.Definition[:], b[off:off+32])
	off += 32
	h.TimeStamp = int64(readU64(b, &off))
	h.Pow.Difficulty.Packed = readU32(b, &off)
	h.Pow.Nonce = readU64(b, &off)
	return h, nil
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}
func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}
func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}
func readU64(b []byte, off *int) uint64 {
	v := binary.BigEndian.Uint64(b[*off : *off+8])
	*off += 8
	return v
}
func readU32(b []byte, off *int) uint32 {
	v := binary.BigEndian.Uint32(b[*off : *off+4])
	*off += 4
	return v
}
func readU16(b []byte, off *int) uint16 {
	v := binary.BigEndian.Uint16(b[*off : *off+2])
	*off += 2
	return v
}

func (b *BoltDB) InsertState(h *model.Full) model.Row {
	var row model.Row
	b.update(func(tx *bolt.Tx) error {
		states := tx.Bucket(bucketStates)
		seq, err := states.NextSequence()
		if err != nil {
			return err
		}
		row = model.Row(seq)
		if err := states.Put(rowKey(row), encodeFull(h)); err != nil {
			return err
		}
		id := h.Hash()
		if err := tx.Bucket(bucketStateID).Put(id[:], rowKey(row)); err != nil {
			return err
		}
		hb := tx.Bucket(bucketHeight)
		existing := hb.Get(heightKey(h.Height))
		return hb.Put(heightKey(h.Height), append(existing, rowKey(row)...))
	})
	return row
}

func (b *BoltDB) GetState(row model.Row) (h *model.Full, ok bool) {
	b.view(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketStates).Get(rowKey(row))
		if v == nil {
			return nil
		}
		decoded, err := decodeFull(v)
		if err != nil {
			return err
		}
		h, ok = decoded, true
		return nil
	})
	return h, ok
}

func (b *BoltDB) GetStateID(sid model.StateID) model.Hash {
	h, ok := b.GetState(sid.Row)
	if !ok {
		return model.ZeroHash
	}
	return h.Hash()
}

func (b *BoltDB) StateFindSafe(id model.Hash) (row model.Row, ok bool) {
	b.view(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketStateID).Get(id[:])
		if v != nil {
			row, ok = rowFromKey(v), true
		}
		return nil
	})
	return row, ok
}

const (
	flagFunctional byte = 1 << 0
	flagReachable  byte = 1 << 1
	flagActive     byte = 1 << 2
)

func (b *BoltDB) GetStateFlags(row model.Row) StateFlags {
	var f StateFlags
	b.view(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketFlags).Get(rowKey(row))
		if len(v) == 1 {
			f = decodeFlags(v[0])
		}
		return nil
	})
	return f
}

func decodeFlags(v byte) StateFlags {
	return StateFlags{
		Functional: v&flagFunctional != 0,
		Reachable:  v&flagReachable != 0,
		Active:     v&flagActive != 0,
	}
}

func encodeFlags(f StateFlags) byte {
	var v byte
	if f.Functional {
		v |= flagFunctional
	}
	if f.Reachable {
		v |= flagReachable
	}
	if f.Active {
		v |= flagActive
	}
	return v
}

func (b *BoltDB) setFlagBit(row model.Row, bit byte, set bool) {
	b.update(func(tx *bolt.Tx) error {
		fb := tx.Bucket(bucketFlags)
		v := fb.Get(rowKey(row))
		var cur byte
		if len(v) == 1 {
			cur = v[0]
		}
		if set {
			cur |= bit
		} else {
			cur &^= bit
		}
		return fb.Put(rowKey(row), []byte{cur})
	})
}

func (b *BoltDB) SetStateFunctional(row model.Row)   { b.setFlagBit(row, flagFunctional, true) }
func (b *BoltDB) ClearStateFunctional(row model.Row) { b.setFlagBit(row, flagFunctional, false) }
func (b *BoltDB) SetStateReachable(row model.Row, reachable bool) {
	b.setFlagBit(row, flagReachable, reachable)
}
func (b *BoltDB) SetStateActive(row model.Row, active bool) {
	b.setFlagBit(row, flagActive, active)
}

func (b *BoltDB) SetParentRow(row, parent model.Row) {
	b.update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketParent).Put(rowKey(row), rowKey(parent)); err != nil {
			return err
		}
		cb := tx.Bucket(bucketChildren)
		existing := cb.Get(rowKey(parent))
		return cb.Put(rowKey(parent), append(existing, rowKey(row)...))
	})
}

func (b *BoltDB) DeleteState(row model.Row) model.Row {
	var parent model.Row
	b.update(func(tx *bolt.Tx) error {
		pb := tx.Bucket(bucketParent)
		if pv := pb.Get(rowKey(row)); pv != nil {
			parent = rowFromKey(pv)
		}

		states := tx.Bucket(bucketStates)
		if hv := states.Get(rowKey(row)); hv != nil {
			if h, err := decodeFull(hv); err == nil {
				id := h.Hash()
				tx.Bucket(bucketStateID).Delete(id[:])
				hb := tx.Bucket(bucketHeight)
				removeRow(hb, heightKey(h.Height), row)
			}
		}
		states.Delete(rowKey(row))
		tx.Bucket(bucketFlags).Delete(rowKey(row))
		tx.Bucket(bucketPeers).Delete(rowKey(row))
		tx.Bucket(bucketBodies).Delete(rowKey(row))
		tx.Bucket(bucketRollback).Delete(rowKey(row))
		pb.Delete(rowKey(row))

		cb := tx.Bucket(bucketChildren)
		removeRow(cb, rowKey(parent), row)
		cb.Delete(rowKey(row))
		return nil
	})
	return parent
}

func (b *BoltDB) HasChildren(row model.Row) bool {
	var has bool
	b.view(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketChildren).Get(rowKey(row))
		has = len(v) > 0
		return nil
	})
	return has
}

func (b *BoltDB) GetChildren(row model.Row) []model.Row {
	var rows []model.Row
	b.view(func(tx *bolt.Tx) error {
		rows = splitRows(tx.Bucket(bucketChildren).Get(rowKey(row)))
		return nil
	})
	return rows
}

func removeRow(bucket *bolt.Bucket, key []byte, row model.Row) {
	v := bucket.Get(key)
	rows := splitRows(v)
	out := make([]byte, 0, len(v))
	for _, r := range rows {
		if r != row {
			out = append(out, rowKey(r)...)
		}
	}
	if len(out) == 0 {
		bucket.Delete(key)
		return
	}
	bucket.Put(key, out)
}

func splitRows(v []byte) []model.Row {
	out := make([]model.Row, 0, len(v)/8)
	for i := 0; i+8 <= len(v); i += 8 {
		out = append(out, rowFromKey(v[i:i+8]))
	}
	return out
}

func (b *BoltDB) SetPeer(row model.Row, peer *uint64) {
	b.update(func(tx *bolt.Tx) error {
		pb := tx.Bucket(bucketPeers)
		if peer == nil {
			return pb.Delete(rowKey(row))
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, *peer)
		return pb.Put(rowKey(row), buf)
	})
}

func (b *BoltDB) GetPeer(row model.Row) (peer uint64, ok bool) {
	b.view(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPeers).Get(rowKey(row))
		if v != nil {
			peer, ok = binary.BigEndian.Uint64(v), true
		}
		return nil
	})
	return peer, ok
}

func (b *BoltDB) MoveForward(sid model.StateID) {
	b.update(func(tx *bolt.Tx) error {
		buf := append(rowKey(sid.Row), heightKey(sid.Height)...)
		return tx.Bucket(bucketMeta).Put([]byte("cursor"), buf)
	})
}

func (b *BoltDB) MoveBack(sid model.StateID) {
	b.update(func(tx *bolt.Tx) error {
		mb := tx.Bucket(bucketMeta)
		if sid.Row == 0 {
			return mb.Delete([]byte("cursor"))
		}
		buf := append(rowKey(sid.Row), heightKey(sid.Height)...)
		return mb.Put([]byte("cursor"), buf)
	})
}

func (b *BoltDB) GetCursor() (sid model.StateID, ok bool) {
	b.view(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get([]byte("cursor"))
		if len(v) == 16 {
			sid = model.StateID{Row: rowFromKey(v[:8]), Height: model.Height(binary.BigEndian.Uint64(v[8:]))}
			ok = true
		}
		return nil
	})
	return sid, ok
}

func (b *BoltDB) GetPrev(row model.Row) (parent model.Row, ok bool) {
	b.view(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketParent).Get(rowKey(row))
		if v != nil {
			parent, ok = rowFromKey(v), true
		}
		return nil
	})
	return parent, ok
}

func (b *BoltDB) GetChainWork(row model.Row) (big.Int, bool) {
	h, ok := b.GetState(row)
	if !ok {
		return big.Int{}, false
	}
	return h.ChainWork, true
}

func (b *BoltDB) GetStateBlock(row model.Row) (body []byte, rollback []byte, ok bool) {
	b.view(func(tx *bolt.Tx) error {
		bv := tx.Bucket(bucketBodies).Get(rowKey(row))
		if bv == nil {
			return nil
		}
		body = append([]byte{}, bv...)
		if rv := tx.Bucket(bucketRollback).Get(rowKey(row)); rv != nil {
			rollback = append([]byte{}, rv...)
		}
		ok = true
		return nil
	})
	return body, rollback, ok
}

func (b *BoltDB) SetStateBlock(row model.Row, body []byte) {
	b.update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBodies).Put(rowKey(row), body)
	})
}

func (b *BoltDB) DelStateBlock(row model.Row) {
	b.update(func(tx *bolt.Tx) error {
		tx.Bucket(bucketBodies).Delete(rowKey(row))
		tx.Bucket(bucketRollback).Delete(rowKey(row))
		return nil
	})
}

func (b *BoltDB) SetStateRollback(row model.Row, rollback []byte) {
	b.update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRollback).Put(rowKey(row), rollback)
	})
}

// boltWalker materializes the matching rows eagerly under a single
// view transaction, then walks the in-memory slice -- bbolt cursors
// don't outlive their transaction, so EnumXxx can't return a live
// cursor the way the interface's MoveNext-style API suggests.
type boltWalker struct {
	rows []model.Row
	db   *BoltDB
	i    int
}

func (w *boltWalker) MoveNext() bool {
	if w.i >= len(w.rows) {
		return false
	}
	w.i++
	return true
}

func (w *boltWalker) Sid() model.StateID {
	row := w.rows[w.i-1]
	h, ok := w.db.GetState(row)
	if !ok {
		return model.StateID{}
	}
	return model.StateID{Row: row, Height: h.Height}
}

func (b *BoltDB) EnumTips() WalkerState {
	var rows []model.Row
	b.view(func(tx *bolt.Tx) error {
		cb := tx.Bucket(bucketChildren)
		return tx.Bucket(bucketStates).ForEach(func(k, _ []byte) error {
			row := rowFromKey(k)
			if cb.Get(rowKey(row)) == nil {
				rows = append(rows, row)
			}
			return nil
		})
	})
	return &boltWalker{rows: rows, db: b}
}

func (b *BoltDB) EnumFunctionalTips() WalkerState {
	var rows []model.Row
	b.view(func(tx *bolt.Tx) error {
		cb := tx.Bucket(bucketChildren)
		fb := tx.Bucket(bucketFlags)
		return tx.Bucket(bucketStates).ForEach(func(k, _ []byte) error {
			row := rowFromKey(k)
			if cb.Get(rowKey(row)) != nil {
				return nil
			}
			v := fb.Get(rowKey(row))
			if len(v) == 1 && decodeFlags(v[0]).Reachable {
				rows = append(rows, row)
			}
			return nil
		})
	})
	return &boltWalker{rows: rows, db: b}
}

func (b *BoltDB) EnumStatesAt(h model.Height) WalkerState {
	var rows []model.Row
	b.view(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketHeight).Get(heightKey(h))
		rows = splitRows(v)
		return nil
	})
	return &boltWalker{rows: rows, db: b}
}

func (b *BoltDB) EnumMacroblocks() WalkerState {
	var rows []model.Row
	b.view(func(tx *bolt.Tx) error {
		rows = splitRows(tx.Bucket(bucketMacroblocks).Get([]byte("rows")))
		return nil
	})
	return &boltWalker{rows: rows, db: b}
}

func (b *BoltDB) RecordMacroblock(sid model.StateID) {
	b.update(func(tx *bolt.Tx) error {
		mb := tx.Bucket(bucketMacroblocks)
		existing := mb.Get([]byte("rows"))
		return mb.Put([]byte("rows"), append(existing, rowKey(sid.Row)...))
	})
}

// historyEntry reads row's recorded accumulator entry, model.ZeroHash if
// row has none recorded yet (e.g. row is the implicit pre-genesis parent).
func historyEntry(hb *bolt.Bucket, row model.Row) model.Hash {
	var out model.Hash
	if v := hb.Get(rowKey(row)); len(v) == 32 {
		copy(out[:], v)
	}
	return out
}

// GetPredictedStatesHash returns the accumulator entry sid's own header
// commits to: its parent's already-recorded entry, or model.ZeroHash if
// sid has no parent link recorded. This is the historyHash a block's
// Definition is computed against, one step behind AppendHistory's own
// entry for sid, which additionally folds in sid's own header hash.
func (b *BoltDB) GetPredictedStatesHash(sid model.StateID) model.Hash {
	var out model.Hash
	b.view(func(tx *bolt.Tx) error {
		if pv := tx.Bucket(bucketParent).Get(rowKey(sid.Row)); pv != nil {
			out = historyEntry(tx.Bucket(bucketHistory), rowFromKey(pv))
		}
		return nil
	})
	return out
}

// GetProof returns the recorded accumulator entries for sid's ancestry
// from fromHeight up to and including sid, ascending by height, false if
// any entry in that range was never recorded (row has no parent link
// before reaching fromHeight, or a parent link points at a row whose own
// entry is missing).
func (b *BoltDB) GetProof(sid model.StateID, fromHeight model.Height) ([]model.Hash, bool) {
	if fromHeight > sid.Height {
		return nil, false
	}
	var out []model.Hash
	ok := true
	b.view(func(tx *bolt.Tx) error {
		pb := tx.Bucket(bucketParent)
		hb := tx.Bucket(bucketHistory)

		var rows []model.Row
		row, height := sid.Row, sid.Height
		for {
			rows = append(rows, row)
			if height == fromHeight {
				break
			}
			pv := pb.Get(rowKey(row))
			if pv == nil {
				ok = false
				return nil
			}
			row = rowFromKey(pv)
			height--
		}

		out = make([]model.Hash, len(rows))
		for i, r := range rows {
			v := hb.Get(rowKey(r))
			if v == nil {
				ok = false
				return nil
			}
			var h model.Hash
			copy(h[:], v)
			out[len(rows)-1-i] = h
		}
		return nil
	})
	if !ok {
		return nil, false
	}
	return out, true
}

// AppendHistory records row's accumulator entry -- its parent's entry
// (model.ZeroHash if row is genesis) combined with h. Rows are permanent
// and never reused across a reorg, so this entry is correct forever once
// written; there is nothing to rewind on rollback.
func (b *BoltDB) AppendHistory(row model.Row, h model.Hash) {
	b.update(func(tx *bolt.Tx) error {
		hb := tx.Bucket(bucketHistory)
		parentAcc := model.ZeroHash
		if pv := tx.Bucket(bucketParent).Get(rowKey(row)); pv != nil {
			parentAcc = historyEntry(hb, rowFromKey(pv))
		}
		acc := model.Combine(parentAcc, h)
		return hb.Put(rowKey(row), acc[:])
	})
}
