package nodedb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1M15M3/beam/model"
	"github.com/1M15M3/beam/nodedb"
)

func TestInsertAndGetStateRoundTrip(t *testing.T) {
	db := nodedb.NewMemDB()
	h := &model.Full{Height: model.HeightGenesis, TimeStamp: 1}

	row := db.InsertState(h)
	got, ok := db.GetState(row)
	require.True(t, ok)
	assert.Equal(t, h.Height, got.Height)

	foundRow, ok := db.StateFindSafe(h.Hash())
	require.True(t, ok)
	assert.Equal(t, row, foundRow)
}

func TestStateFlagsDefaultFalse(t *testing.T) {
	db := nodedb.NewMemDB()
	row := db.InsertState(&model.Full{Height: model.HeightGenesis})

	flags := db.GetStateFlags(row)
	assert.False(t, flags.Functional)
	assert.False(t, flags.Reachable)
	assert.False(t, flags.Active)

	db.SetStateFunctional(row)
	db.SetStateReachable(row, true)
	db.SetStateActive(row, true)
	flags = db.GetStateFlags(row)
	assert.True(t, flags.Functional)
	assert.True(t, flags.Reachable)
	assert.True(t, flags.Active)

	db.ClearStateFunctional(row)
	assert.False(t, db.GetStateFlags(row).Functional)
}

func TestDeleteStateReturnsParentAndUnlinksChild(t *testing.T) {
	db := nodedb.NewMemDB()
	parent := db.InsertState(&model.Full{Height: model.HeightGenesis})
	child := db.InsertState(&model.Full{Height: model.HeightGenesis + 1})
	db.SetParentRow(child, parent)
	require.True(t, db.HasChildren(parent))

	got := db.DeleteState(child)
	assert.Equal(t, parent, got)
	assert.False(t, db.HasChildren(parent), "deleting the only child must clear the parent's children list")

	_, ok := db.GetState(child)
	assert.False(t, ok)
}

func TestDeleteGenesisStateReturnsZeroRow(t *testing.T) {
	db := nodedb.NewMemDB()
	genesis := db.InsertState(&model.Full{Height: model.HeightGenesis})

	got := db.DeleteState(genesis)
	assert.Equal(t, model.Row(0), got)
}

func TestParamUint64RoundTrip(t *testing.T) {
	db := nodedb.NewMemDB()
	_, ok := db.GetParamUint64(nodedb.ParamLoHorizon)
	assert.False(t, ok)

	db.SetParamUint64(nodedb.ParamLoHorizon, 42)
	got, ok := db.GetParamUint64(nodedb.ParamLoHorizon)
	require.True(t, ok)
	assert.Equal(t, uint64(42), got)
}

// TestWritableTxRollbackDiscardsChanges exercises spec.md §5's "guaranteed
// commit or rollback on all exit paths" contract: a writable transaction
// that is rolled back must leave the store exactly as it was before Begin.
func TestWritableTxRollbackDiscardsChanges(t *testing.T) {
	db := nodedb.NewMemDB()
	before := db.InsertState(&model.Full{Height: model.HeightGenesis})

	tx, err := db.Begin(true)
	require.NoError(t, err)
	inTx := &model.Full{Height: model.HeightGenesis + 1}
	db.InsertState(inTx)
	require.NoError(t, tx.Rollback())

	_, ok := db.GetState(before)
	assert.True(t, ok, "pre-existing state must survive a rolled-back transaction")

	_, ok = db.StateFindSafe(inTx.Hash())
	assert.False(t, ok, "a row inserted inside a rolled-back transaction must not persist")
}

func TestWritableTxCommitPersistsChanges(t *testing.T) {
	db := nodedb.NewMemDB()

	tx, err := db.Begin(true)
	require.NoError(t, err)
	row := db.InsertState(&model.Full{Height: model.HeightGenesis})
	require.NoError(t, tx.Commit())

	_, ok := db.GetState(row)
	assert.True(t, ok, "a committed transaction's mutations must be visible afterward")
}

func TestBeginRejectsNestedTransaction(t *testing.T) {
	db := nodedb.NewMemDB()
	tx, err := db.Begin(true)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = db.Begin(true)
	assert.Error(t, err, "a second Begin while one is open must fail")
}

// TestHistoryAccumulatorChain walks a 3-block chain through
// AppendHistory and checks GetPredictedStatesHash/GetProof agree with
// the row-keyed Combine chain at every step.
func TestHistoryAccumulatorChain(t *testing.T) {
	db := nodedb.NewMemDB()
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
	assert.Equal(t, accG, db.GetPredictedStatesHash(sidB), "predicted hash must match parent's entry, not fold in its own hash")
	db.AppendHistory(rowB, second.Hash())
	accB := model.Combine(accG, second.Hash())

	proof, ok = db.GetProof(sidB, genesis.Height)
	require.True(t, ok)
	assert.Equal(t, []model.Hash{accG, accB}, proof)
}

// TestHistoryAccumulatorDoesNotAliasAcrossForks confirms two competing
// rows at the same height get independent accumulator entries, the bug
// a height-keyed index would have masked.
func TestHistoryAccumulatorDoesNotAliasAcrossForks(t *testing.T) {
	db := nodedb.NewMemDB()
	genesis := &model.Full{Height: model.HeightGenesis}
	rowG := db.InsertState(genesis)
	db.AppendHistory(rowG, genesis.Hash())

	left := &model.Full{Height: genesis.Height + 1, TimeStamp: 10}
	right := &model.Full{Height: genesis.Height + 1, TimeStamp: 20}
	rowL := db.InsertState(left)
	rowR := db.InsertState(right)
	db.SetParentRow(rowL, rowG)
	db.SetParentRow(rowR, rowG)

	db.AppendHistory(rowL, left.Hash())
	db.AppendHistory(rowR, right.Hash())

	proofL, ok := db.GetProof(model.StateID{Row: rowL, Height: left.Height}, left.Height)
	require.True(t, ok)
	proofR, ok := db.GetProof(model.StateID{Row: rowR, Height: right.Height}, right.Height)
	require.True(t, ok)
	assert.NotEqual(t, proofL[0], proofR[0], "competing rows at the same height must not share an accumulator entry")
}

func TestCursorMoveForwardAndBack(t *testing.T) {
	db := nodedb.NewMemDB()
	_, ok := db.GetCursor()
	assert.False(t, ok)

	sid := model.StateID{Row: 1, Height: model.HeightGenesis}
	db.MoveForward(sid)
	got, ok := db.GetCursor()
	require.True(t, ok)
	assert.Equal(t, sid, got)

	db.MoveBack(model.StateID{})
	_, ok = db.GetCursor()
	assert.False(t, ok)
}
