// Package pow implements the two proof-of-work helpers the processor
// calls on every header it validates or generates: the next-difficulty
// retarget and the moving median of past timestamps.
//
// Grounded on blockchain/pow.go's calculateNextWorkRequired (retarget
// every N blocks by comparing against an ancestor N blocks back) and
// blockchain/MedianTime.go / model/blockindex/blockindex.go's
// GetMedianTimePast (sorted window, pick the middle element). spec.md
// §4.8 only names a single review cycle with no EDA/ASERT fallback, so
// only that core shape survives the port.
package pow

import (
	"sort"

	"github.com/1M15M3/beam/consensus"
	"github.com/1M15M3/beam/model"
)

// Ancestor abstracts the walk-back-N-headers lookup both NextDifficulty
// and MovingMedian need, so this package doesn't depend on nodedb or the
// processor's in-memory header cache directly.
type Ancestor interface {
	// GetAncestor returns the header at the given height on the chain
	// ending at the header this was called against, or nil if h exceeds
	// that chain's height.
	GetAncestor(h model.Height) *model.Full
}

// NextDifficulty computes the difficulty the block following `tip`
// should carry -- spec.md §4.8's get_NextDifficulty. Below the first
// review cycle, or off a cycle boundary, it returns the rules' starting
// difficulty / the tip's own difficulty respectively; at a boundary it
// calls rules.AdjustDifficulty over the cycle's bracketing timestamps.
func NextDifficulty(rules *consensus.Rules, tip *model.Full, ancestorOf Ancestor) consensus.Difficulty {
	if tip == nil {
		return rules.StartDifficulty
	}
	cycle := rules.DifficultyReviewCycle
	if cycle == 0 || uint64(tip.Height-model.HeightGenesis)%uint64(cycle) != 0 {
		return tip.Pow.Difficulty
	}
	if tip.Height < model.HeightGenesis+cycle {
		return rules.StartDifficulty
	}

	past := ancestorOf.GetAncestor(tip.Height - cycle)
	if past == nil {
		return tip.Pow.Difficulty
	}
	return rules.AdjustDifficulty(tip.Pow.Difficulty, past.TimeStamp, tip.TimeStamp, rules.TargetSpacing_s*int64(cycle))
}

// MovingMedian returns the median timestamp over the window of up to
// rules.WindowForMedian headers ending at (and including) tip -- spec.md
// §4.8's get_MovingMedian, used both to timestamp-validate incoming
// headers and to seed a generated block's own timestamp floor. Grounded
// on GetMedianTimePast's "collect up to N ancestor timestamps, sort,
// take the middle" shape.
func MovingMedian(rules *consensus.Rules, tip *model.Full, ancestorOf Ancestor) int64 {
	if tip == nil {
		return 0
	}
	window := rules.WindowForMedian
	if window <= 0 {
		window = 1
	}
	samples := make([]int64, 0, window)
	samples = append(samples, tip.TimeStamp)
	for i := 1; i < window; i++ {
		if tip.Height < model.Height(i) {
			break
		}
		h := ancestorOf.GetAncestor(tip.Height - model.Height(i))
		if h == nil {
			break
		}
		samples = append(samples, h.TimeStamp)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return samples[len(samples)/2]
}
