// Package consensus holds the process-wide, immutable consensus
// parameters the rest of the module treats as an opaque configuration
// value. Rules is constructed once at boot and handed explicitly to the
// processor constructor; nothing in this module reads it from a global.
package consensus

import (
	"math/big"
)

// Height is a monotonically increasing block height. Height 0 is the
// pre-genesis sentinel.
type Height uint64

// HeightGenesis is the height of the first block of the chain.
const HeightGenesis Height = 1

// Difficulty packs the proof-of-work target in the compact (packed)
// representation the header carries on the wire.
type Difficulty struct {
	Packed uint32
}

// ToWork converts a packed difficulty into its 256-bit work contribution.
// Grounded on blockchain/pow.go's CompactToBig/oneLsh256 shape: work is
// the expected number of hashes needed to find a block at this
// difficulty, i.e. 2^256 / (target+1).
func (d Difficulty) ToWork() *big.Int {
	target := CompactToBig(d.Packed)
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}
	work := new(big.Int).Div(oneLsh256, new(big.Int).Add(target, big.NewInt(1)))
	return work
}

var oneLsh256 = new(big.Int).Lsh(big.NewInt(1), 256)

// CompactToBig expands the packed ("nBits") representation into a target.
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	exponent := uint(compact >> 24)

	var result *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		result = big.NewInt(int64(mantissa))
	} else {
		result = big.NewInt(int64(mantissa))
		result.Lsh(result, 8*(exponent-3))
	}

	if mantissa != 0 && compact&0x00800000 != 0 {
		result.Neg(result)
	}
	return result
}

// BigToCompact packs a target back into its compact representation.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	var isNegative bool
	work := n
	if n.Sign() < 0 {
		isNegative = true
		work = new(big.Int).Neg(n)
	}

	exponent := uint((len(work.Bytes())))
	var mantissa uint32
	if exponent <= 3 {
		mantissa = uint32(work.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(work)
		mantissa = uint32(new(big.Int).Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa
	if isNegative {
		compact |= 0x00800000
	}
	return compact
}

// AdjustDifficultyFunc recomputes the next period's packed difficulty
// from the current one and the timestamps bracketing the review cycle.
type AdjustDifficultyFunc func(current Difficulty, firstTimestamp, lastTimestamp int64, targetSpacing int64) Difficulty

// Rules bundles the immutable consensus parameters named by spec.md §4.1
// and §2 item 1. A Rules value is constructed once at boot and passed
// explicitly to the processor constructor (spec.md §9: "model as an
// explicit parameter ... to avoid ambient state in tests").
type Rules struct {
	// Checksum identifies this parameter set on disk (persist/global.go's
	// DbFlag convention, narrowed to a single fingerprint per spec.md §4.1).
	Checksum [32]byte

	// MaxBodySize caps a serialized block body in bytes.
	MaxBodySize uint32

	// MaxRollbackHeight bounds how deep a reorg may reach.
	MaxRollbackHeight Height

	// DifficultyReviewCycle is the number of blocks between difficulty
	// adjustments.
	DifficultyReviewCycle Height

	// AdjustDifficulty recomputes difficulty at a review boundary.
	AdjustDifficulty AdjustDifficultyFunc

	// TargetSpacing_s is the intended time between blocks, seconds.
	TargetSpacing_s int64

	// WindowForMedian bounds how many past timestamps MovingMedian
	// considers.
	WindowForMedian int

	// TimestampAheadThreshold_s rejects headers whose timestamp is more
	// than this many seconds ahead of the local clock.
	TimestampAheadThreshold_s int64

	// CoinbaseEmission is the per-block subsidy paid to the coinbase
	// output.
	CoinbaseEmission uint64

	// CoinbaseLockup is the number of blocks a coinbase output stays
	// immature (added to its creation height to get minMaturity).
	CoinbaseLockup Height

	// StartDifficulty is used for the first DifficultyReviewCycle blocks,
	// and whenever get_NextDifficulty is asked about a pre-genesis chain.
	StartDifficulty Difficulty

	// TreasuryEmission is a one-time emission applied at genesis,
	// orthogonal to per-block coinbase subsidy (SPEC_FULL supplement,
	// grounded on original_source/node/processor.cpp's treasury
	// bootstrap). Nil/zero means no treasury event.
	TreasuryEmission *big.Int
}

// DefaultAdjustDifficulty is a linear retarget: the new target scales by
// the ratio of actual to expected elapsed time, clamped to a factor of 4
// in either direction. Grounded on blockchain/pow.go's
// calculateNextWorkRequired.
func DefaultAdjustDifficulty(current Difficulty, firstTimestamp, lastTimestamp int64, targetSpacing int64) Difficulty {
	actualTimespan := lastTimestamp - firstTimestamp
	expectedTimespan := targetSpacing
	if expectedTimespan <= 0 {
		expectedTimespan = 1
	}
	if actualTimespan < expectedTimespan/4 {
		actualTimespan = expectedTimespan / 4
	}
	if actualTimespan > expectedTimespan*4 {
		actualTimespan = expectedTimespan * 4
	}
	if actualTimespan <= 0 {
		actualTimespan = 1
	}

	target := CompactToBig(current.Packed)
	target.Mul(target, big.NewInt(actualTimespan))
	target.Div(target, big.NewInt(expectedTimespan))
	return Difficulty{Packed: BigToCompact(target)}
}
