package processor

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1M15M3/beam/consensus"
	"github.com/1M15M3/beam/mempool"
	"github.com/1M15M3/beam/model"
	"github.com/1M15M3/beam/nodedb"
)

func newInternalTestProcessor() *Processor {
	rules := &consensus.Rules{
		Checksum:                  [32]byte{2},
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
	return NewProcessor(nodedb.NewMemDB(), rules, mempool.NewPool(), model.Horizon{Branching: 2, Schwarzschild: 5}, Hooks{})
}

func kernelWithID(tag string) *model.TxKernel {
	return &model.TxKernel{ID: model.HashBytes([]byte(tag))}
}

func commitmentFor(tag byte) model.Commitment {
	var c model.Commitment
	c[0] = tag
	return c
}

// TestDuplicateKernelRejected exercises spec.md §4.4's "kernels unique
// forever" invariant: once a kernel ID is live in the tree, a second body
// trying to output the same ID is rejected and its own partial
// application is undone, leaving the tree exactly as the first body left
// it.
func TestDuplicateKernelRejected(t *testing.T) {
	p := newInternalTestProcessor()
	require.NoError(t, p.Initialize(false, nil))

	k := kernelWithID("replayed-kernel")
	first := &model.Body{KernelsOutput: []*model.TxKernel{k}}
	require.True(t, p.HandleValidatedTx(first, model.HeightGenesis, true, true, nil))
	assert.True(t, p.kernel.Has(k.ID))

	replay := &model.Body{
		Outputs:       []*model.Output{{Commitment: commitmentFor(9)}},
		KernelsOutput: []*model.TxKernel{k},
	}
	ok := p.HandleValidatedTx(replay, model.HeightGenesis, true, true, nil)
	assert.False(t, ok, "a body re-outputting an already-live kernel must be rejected")

	// The replay's own output must have been undone along with the
	// kernel insert failure, not left dangling in the tree.
	_, found := p.utxo.Find(replay.Outputs[0].Commitment, replay.Outputs[0].KeyMaturityWithLockup(model.HeightGenesis, p.rules.CoinbaseLockup))
	assert.False(t, found)
}

// TestSubsidyClosingRoundTrip checks Extra.SubsidyOpen flips on a
// SubsidyClosing block's forward apply and flips back on its reverse,
// with the zero-key kernel tracking the same transition -- spec.md §3's
// Extra invariant.
func TestSubsidyClosingRoundTrip(t *testing.T) {
	p := newInternalTestProcessor()
	require.NoError(t, p.Initialize(false, nil))
	require.True(t, p.extra.SubsidyOpen)

	closing := &model.Body{SubsidyClosing: true, Subsidy: 500}
	require.True(t, p.HandleValidatedBlock(closing, model.HeightGenesis, true, true, nil))
	assert.False(t, p.extra.SubsidyOpen)
	assert.True(t, p.kernel.Has(model.ZeroHash))

	require.True(t, p.HandleValidatedBlock(closing, model.HeightGenesis, false, true, nil))
	assert.True(t, p.extra.SubsidyOpen)
	assert.False(t, p.kernel.Has(model.ZeroHash))
}

// TestTreasuryEmissionAppliedOnceAtInitialize checks
// Rules.TreasuryEmission is folded into the running subsidy total
// exactly once when Initialize rebuilds Extra, not touched again by
// ordinary block application.
func TestTreasuryEmissionAppliedOnceAtInitialize(t *testing.T) {
	p := newInternalTestProcessor()
	p.rules.TreasuryEmission = big.NewInt(5_000_000)
	require.NoError(t, p.Initialize(false, nil))

	assert.Equal(t, big.NewInt(5_000_000), &p.extra.Subsidy)

	body := &model.Body{Subsidy: 100}
	require.True(t, p.HandleValidatedBlock(body, model.HeightGenesis, true, true, nil))
	assert.Equal(t, big.NewInt(5_000_100), &p.extra.Subsidy)
}

// TestKernelHeightRangeRejectedOnFirstApply checks a peer-supplied
// block whose body outputs a kernel outside its own MinHeight/MaxHeight
// window is rejected during HandleBlock's firstTime verification --
// spec.md §4.3 step 2's context-free VerifyBlock checks -- and never
// becomes the cursor, the same way mining.go's own candidate selection
// would never have offered such a kernel in the first place.
func TestKernelHeightRangeRejectedOnFirstApply(t *testing.T) {
	p := newInternalTestProcessor()
	require.NoError(t, p.Initialize(false, nil))

	full, body, ok := p.GenerateNewBlock(nil)
	require.True(t, ok)
	body.KernelsOutput = append(body.KernelsOutput, &model.TxKernel{
		ID:        model.HashBytes([]byte("too-early")),
		MinHeight: full.Height + 100,
	})

	id := full.Hash()
	require.Equal(t, Accepted, p.OnState(full, nil))
	require.Equal(t, Accepted, p.OnBlock(id, body.Bytes(), nil))

	assert.True(t, p.cursor.Empty(), "a block whose kernel fails its height-range check must never become the cursor")
}
