package processor_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1M15M3/beam/consensus"
	"github.com/1M15M3/beam/mempool"
	"github.com/1M15M3/beam/model"
	"github.com/1M15M3/beam/nodedb"
	"github.com/1M15M3/beam/processor"
)

// testRules returns a minimal, deterministic Rules value: no difficulty
// retargeting, a short rollback horizon, and a starting difficulty that
// contributes work, so CheckWorkInvariant has something to check.
func testRules() *consensus.Rules {
	return &consensus.Rules{
		Checksum:                  [32]byte{1},
		MaxBodySize:               1 << 20,
		MaxRollbackHeight:         5,
		DifficultyReviewCycle:     0,
		AdjustDifficulty:          consensus.DefaultAdjustDifficulty,
		TargetSpacing_s:           60,
		WindowForMedian:           5,
		TimestampAheadThreshold_s: 3600,
		CoinbaseEmission:          1000,
		CoinbaseLockup:            2,
		StartDifficulty:           consensus.Difficulty{Packed: 0x1d00ffff},
	}
}

func newTestProcessor(t *testing.T) *processor.Processor {
	t.Helper()
	db := nodedb.NewMemDB()
	p := processor.NewProcessor(db, testRules(), mempool.NewPool(), model.Horizon{Branching: 2, Schwarzschild: 5}, processor.Hooks{})
	require.NoError(t, p.Initialize(false, nil))
	return p
}

// newTestProcessorBolt is newTestProcessor backed by a real bbolt file
// instead of MemDB, so a reorg exercises the on-disk history accumulator
// (bucketHistory) rather than the in-memory map.
func newTestProcessorBolt(t *testing.T) *processor.Processor {
	t.Helper()
	db, err := nodedb.Open(filepath.Join(t.TempDir(), "chain.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	p := processor.NewProcessor(db, testRules(), mempool.NewPool(), model.Horizon{Branching: 2, Schwarzschild: 5}, processor.Hooks{})
	require.NoError(t, p.Initialize(false, nil))
	return p
}

// mineAndIngest generates a block atop the processor's current cursor,
// then feeds it through OnState/OnBlock exactly the way a peer delivery
// would, returning the accepted header.
func mineAndIngest(t *testing.T, p *processor.Processor) *model.Full {
	t.Helper()
	full, body, ok := p.GenerateNewBlock(nil)
	require.True(t, ok, "GenerateNewBlock failed")

	id := full.Hash()
	require.Equal(t, processor.Accepted, p.OnState(full, nil))
	require.Equal(t, processor.Accepted, p.OnBlock(id, body.Bytes(), nil))
	return full
}

func TestGenesisAcceptance(t *testing.T) {
	p := newTestProcessor(t)
	assert.True(t, p.Cursor().Empty())

	full := mineAndIngest(t, p)

	cur := p.Cursor()
	require.False(t, cur.Empty())
	assert.Equal(t, model.HeightGenesis, cur.Full.Height)
	assert.Equal(t, full.Hash(), cur.Full.Hash())
}

func TestChainGrowth(t *testing.T) {
	p := newTestProcessor(t)

	var last *model.Full
	for i := 0; i < 5; i++ {
		last = mineAndIngest(t, p)
	}

	cur := p.Cursor()
	require.False(t, cur.Empty())
	assert.Equal(t, model.HeightGenesis+4, cur.Full.Height)
	assert.Equal(t, last.Hash(), cur.Full.Hash())
}

// ingestBlock feeds an already-built header+body into p the way a peer
// delivery would, and requires both steps to be accepted.
func ingestBlock(t *testing.T, p *processor.Processor, full *model.Full, body *model.Body) {
	t.Helper()
	require.Equal(t, processor.Accepted, p.OnState(full, nil))
	require.Equal(t, processor.Accepted, p.OnBlock(full.Hash(), body.Bytes(), nil))
}

// TestSimpleReorg builds a 2-block chain on one processor, then builds an
// independent 3-block fork off genesis on a second processor (seeding its
// first block with extra kernel content so it diverges from the first
// processor's own genesis instead of reproducing it byte-for-byte) and
// delivers the fork's headers/bodies into the first processor. Despite
// rooting a second, disconnected genesis candidate -- exactly the case
// buildForwardPath's dead-end branch has to negotiate -- the heavier fork
// must win.
func TestSimpleReorg(t *testing.T) {
	p := newTestProcessor(t)
	genesis := mineAndIngest(t, p)
	short1 := mineAndIngest(t, p)
	require.Equal(t, genesis.Height+1, short1.Height)

	fork := newTestProcessor(t)
	diverge := &model.Body{KernelsOutput: []*model.TxKernel{{ID: model.HashBytes([]byte("fork-seed"))}}}
	forkFull, forkBody, ok := fork.GenerateNewBlock(diverge)
	require.True(t, ok)
	require.NotEqual(t, genesis.Hash(), forkFull.Hash(), "fork genesis must diverge from the main chain's")
	ingestBlock(t, fork, forkFull, forkBody)

	var forkBlocks []*model.Full
	var forkBodies []*model.Body
	forkBlocks = append(forkBlocks, forkFull)
	forkBodies = append(forkBodies, forkBody)
	for i := 0; i < 2; i++ {
		full, body, ok := fork.GenerateNewBlock(nil)
		require.True(t, ok)
		ingestBlock(t, fork, full, body)
		forkBlocks = append(forkBlocks, full)
		forkBodies = append(forkBodies, body)
	}
	require.Equal(t, model.HeightGenesis+2, fork.Cursor().Full.Height)

	for i, full := range forkBlocks {
		ingestBlock(t, p, full, forkBodies[i])
	}
	require.NoError(t, p.TryGoUp())

	cur := p.Cursor()
	require.False(t, cur.Empty())
	assert.Equal(t, forkBlocks[len(forkBlocks)-1].Hash(), cur.Full.Hash())
	assert.Equal(t, model.HeightGenesis+2, cur.Full.Height)
}

// TestSimpleReorgBolt is TestSimpleReorg against a real bbolt-backed
// NodeDB on both sides, so the rolled-back short branch and the adopted
// fork each get real history accumulator entries recorded to disk
// (rather than MemDB's in-memory map) and the definition check the
// adopted fork's last header has to pass reads genuinely persisted
// history state, not a value still sitting in a Go map.
func TestSimpleReorgBolt(t *testing.T) {
	p := newTestProcessorBolt(t)
	genesis := mineAndIngest(t, p)
	short1 := mineAndIngest(t, p)
	require.Equal(t, genesis.Height+1, short1.Height)

	fork := newTestProcessorBolt(t)
	diverge := &model.Body{KernelsOutput: []*model.TxKernel{{ID: model.HashBytes([]byte("fork-seed-bolt"))}}}
	forkFull, forkBody, ok := fork.GenerateNewBlock(diverge)
	require.True(t, ok)
	require.NotEqual(t, genesis.Hash(), forkFull.Hash(), "fork genesis must diverge from the main chain's")
	ingestBlock(t, fork, forkFull, forkBody)

	var forkBlocks []*model.Full
	var forkBodies []*model.Body
	forkBlocks = append(forkBlocks, forkFull)
	forkBodies = append(forkBodies, forkBody)
	for i := 0; i < 2; i++ {
		full, body, ok := fork.GenerateNewBlock(nil)
		require.True(t, ok)
		ingestBlock(t, fork, full, body)
		forkBlocks = append(forkBlocks, full)
		forkBodies = append(forkBodies, body)
	}
	require.Equal(t, model.HeightGenesis+2, fork.Cursor().Full.Height)

	for i, full := range forkBlocks {
		ingestBlock(t, p, full, forkBodies[i])
	}
	require.NoError(t, p.TryGoUp())

	cur := p.Cursor()
	require.False(t, cur.Empty())
	assert.Equal(t, forkBlocks[len(forkBlocks)-1].Hash(), cur.Full.Hash())
	assert.Equal(t, model.HeightGenesis+2, cur.Full.Height)
}
