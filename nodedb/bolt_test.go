package nodedb_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1M15M3/beam/model"
	"github.com/1M15M3/beam/nodedb"
)

func openTestBolt(t *testing.T) *nodedb.BoltDB {
	t.Helper()
	db, err := nodedb.Open(filepath.Join(t.TempDir(), "chain.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBoltInsertAndGetStateRoundTrip(t *testing.T) {
	db := openTestBolt(t)
	h := &model.Full{Height: model.HeightGenesis, TimeStamp: 123}

	row := db.InsertState(h)
	got, ok := db.GetState(row)
	require.True(t, ok)
	assert.Equal(t, h.Height, got.Height)
	assert.Equal(t, h.TimeStamp, got.TimeStamp)

	foundRow, ok := db.StateFindSafe(h.Hash())
	require.True(t, ok)
	assert.Equal(t, row, foundRow)
}

func TestBoltParamUint64RoundTrip(t *testing.T) {
	db := openTestBolt(t)
	_, ok := db.GetParamUint64(nodedb.ParamFossilHeight)
	assert.False(t, ok)

	db.SetParamUint64(nodedb.ParamFossilHeight, 7)
	got, ok := db.GetParamUint64(nodedb.ParamFossilHeight)
	require.True(t, ok)
	assert.Equal(t, uint64(7), got)
}

func TestBoltStateBlockRoundTrip(t *testing.T) {
	db := openTestBolt(t)
	row := db.InsertState(&model.Full{Height: model.HeightGenesis})

	_, _, ok := db.GetStateBlock(row)
	assert.False(t, ok)

	db.SetStateBlock(row, []byte("body-bytes"))
	db.SetStateRollback(row, []byte("rollback-bytes"))
	body, rollback, ok := db.GetStateBlock(row)
	require.True(t, ok)
	assert.Equal(t, []byte("body-bytes"), body)
	assert.Equal(t, []byte("rollback-bytes"), rollback)

	db.DelStateBlock(row)
	_, _, ok = db.GetStateBlock(row)
	assert.False(t, ok)
}

func TestBoltParentChildLinkAndDelete(t *testing.T) {
	db := openTestBolt(t)
	parent := db.InsertState(&model.Full{Height: model.HeightGenesis})
	child := db.InsertState(&model.Full{Height: model.HeightGenesis + 1})
	db.SetParentRow(child, parent)

	require.True(t, db.HasChildren(parent))
	assert.Equal(t, []model.Row{child}, db.GetChildren(parent))

	gotParent, ok := db.GetPrev(child)
	require.True(t, ok)
	assert.Equal(t, parent, gotParent)

	removedParent := db.DeleteState(child)
	assert.Equal(t, parent, removedParent)
	assert.False(t, db.HasChildren(parent))
}

// TestBoltHistoryAccumulatorChain mirrors
// TestHistoryAccumulatorChain against the bbolt backend.
func TestBoltHistoryAccumulatorChain(t *testing.T) {
	db := openTestBolt(t)
	genesis := &model.Full{Height: model.HeightGenesis, TimeStamp: 1}
	rowG := db.InsertState(genesis)

	assert.Equal(t, model.ZeroHash, db.GetPredictedStatesHash(model.StateID{Row: rowG, Height: genesis.Height}))
	db.AppendHistory(rowG, genesis.Hash())
	accG := model.Combine(model.ZeroHash, genesis.Hash())

	proof, ok := db.GetProof(model.StateID{Row: rowG, Height: genesis.Height}, genesis.Height)
	require.True(t, ok)
	assert.Equal(t, []model.Hash{accG}, proof)

	second := &model.Full{Height: genesis.Height + 1, TimeStamp: 2}
	rowB := db.InsertState(second)
	db.SetParentRow(rowB, rowG)

	sidB := model.StateID{Row: rowB, Height: second.Height}
	assert.Equal(t, accG, db.GetPredictedStatesHash(sidB))
	db.AppendHistory(rowB, second.Hash())
	accB := model.Combine(accG, second.Hash())

	proof, ok = db.GetProof(sidB, genesis.Height)
	require.True(t, ok)
	assert.Equal(t, []model.Hash{accG, accB}, proof)
}

func TestBoltCursorRoundTrip(t *testing.T) {
	db := openTestBolt(t)
	_, ok := db.GetCursor()
	assert.False(t, ok)

	sid := model.StateID{Row: 5, Height: model.HeightGenesis + 4}
	db.MoveForward(sid)
	got, ok := db.GetCursor()
	require.True(t, ok)
	assert.Equal(t, sid, got)
}

// TestBoltBeginCommitPersists checks the scoped Tx wraps a real bbolt
// transaction: mutations made through direct accessors while one is open
// are visible once committed.
func TestBoltBeginCommitPersists(t *testing.T) {
	db := openTestBolt(t)
	tx, err := db.Begin(true)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	row := db.InsertState(&model.Full{Height: model.HeightGenesis})
	_, ok := db.GetState(row)
	assert.True(t, ok)
}
