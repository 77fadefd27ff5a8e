package pow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/1M15M3/beam/consensus"
	"github.com/1M15M3/beam/model"
	"github.com/1M15M3/beam/pow"
)

// fakeChain is a linear chain of headers indexed by height, standing in
// for the processor's own ancestor walk.
type fakeChain map[model.Height]*model.Full

func (c fakeChain) GetAncestor(h model.Height) *model.Full {
	return c[h]
}

func header(h model.Height, ts int64, packed uint32) *model.Full {
	return &model.Full{Height: h, TimeStamp: ts, Pow: model.PoW{Difficulty: consensus.Difficulty{Packed: packed}}}
}

func TestNextDifficultyPreGenesisUsesStartDifficulty(t *testing.T) {
	rules := &consensus.Rules{StartDifficulty: consensus.Difficulty{Packed: 0x1d00ffff}}
	got := pow.NextDifficulty(rules, nil, fakeChain{})
	assert.Equal(t, rules.StartDifficulty, got)
}

func TestNextDifficultyOffCycleBoundaryHoldsSteady(t *testing.T) {
	rules := &consensus.Rules{DifficultyReviewCycle: 10, StartDifficulty: consensus.Difficulty{Packed: 0x1d00ffff}}
	tip := header(model.HeightGenesis+3, 1000, 0x1d001234)
	got := pow.NextDifficulty(rules, tip, fakeChain{})
	assert.Equal(t, tip.Pow.Difficulty, got, "off a review boundary the difficulty must carry forward unchanged")
}

func TestNextDifficultyAtBoundaryAdjusts(t *testing.T) {
	rules := &consensus.Rules{
		DifficultyReviewCycle: 10,
		TargetSpacing_s:       60,
		AdjustDifficulty:      consensus.DefaultAdjustDifficulty,
		StartDifficulty:       consensus.Difficulty{Packed: 0x1d00ffff},
	}
	chain := fakeChain{}
	past := header(model.HeightGenesis, 0, 0x1d00ffff)
	chain[past.Height] = past
	tip := header(model.HeightGenesis+10, 60*10*2, 0x1d00ffff) // took twice as long as expected
	chain[tip.Height] = tip

	got := pow.NextDifficulty(rules, tip, chain)
	want := consensus.DefaultAdjustDifficulty(tip.Pow.Difficulty, past.TimeStamp, tip.TimeStamp, rules.TargetSpacing_s*int64(rules.DifficultyReviewCycle))
	assert.Equal(t, want, got)
}

func TestMovingMedianOddWindow(t *testing.T) {
	rules := &consensus.Rules{WindowForMedian: 3}
	chain := fakeChain{}
	chain[model.HeightGenesis] = header(model.HeightGenesis, 100, 0)
	chain[model.HeightGenesis+1] = header(model.HeightGenesis+1, 300, 0)
	tip := header(model.HeightGenesis+2, 200, 0)
	chain[tip.Height] = tip

	got := pow.MovingMedian(rules, tip, chain)
	assert.Equal(t, int64(200), got, "median of {100,300,200} is 200")
}

func TestMovingMedianStopsShortAtChainStart(t *testing.T) {
	rules := &consensus.Rules{WindowForMedian: 5}
	chain := fakeChain{}
	tip := header(model.HeightGenesis, 42, 0)
	chain[tip.Height] = tip

	got := pow.MovingMedian(rules, tip, chain)
	assert.Equal(t, int64(42), got, "a lone genesis header is its own median")
}
