package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commitmentFor(tag byte) Commitment {
	var c Commitment
	c[0] = tag
	return c
}

func TestBodyNormalizeCutThrough(t *testing.T) {
	h := Height(10)
	const lockup = Height(2)

	out := &Output{Commitment: commitmentFor(1), Incubation: 0}
	maturity := out.KeyMaturityWithLockup(h, lockup)
	in := &Input{Commitment: commitmentFor(1), Maturity: maturity}

	survivor := &Output{Commitment: commitmentFor(2)}

	b := &Body{
		Inputs:  []*Input{in},
		Outputs: []*Output{out, survivor},
	}
	b.Normalize(h, lockup)

	assert.Empty(t, b.Inputs, "matching input/output pair should cancel")
	require.Len(t, b.Outputs, 1)
	assert.Equal(t, survivor.Commitment, b.Outputs[0].Commitment)
}

func TestBodyNormalizeOrdering(t *testing.T) {
	h := Height(1)
	low := commitmentFor(1)
	high := commitmentFor(2)

	b := &Body{
		Inputs: []*Input{
			{Commitment: high, Maturity: 1},
			{Commitment: low, Maturity: 5},
			{Commitment: low, Maturity: 1},
		},
	}
	b.Normalize(h, 0)

	require.Len(t, b.Inputs, 3)
	assert.Equal(t, low, b.Inputs[0].Commitment)
	assert.Equal(t, Height(1), b.Inputs[0].Maturity)
	assert.Equal(t, low, b.Inputs[1].Commitment)
	assert.Equal(t, Height(5), b.Inputs[1].Maturity)
	assert.Equal(t, high, b.Inputs[2].Commitment)
}

func TestCombineBodiesCutThroughAcrossSources(t *testing.T) {
	h := Height(10)
	const lockup = Height(2)

	shared := &Output{Commitment: commitmentFor(3)}
	maturity := shared.KeyMaturityWithLockup(h, lockup)

	src0 := &Body{Outputs: []*Output{shared}}
	src1 := &Body{Inputs: []*Input{{Commitment: shared.Commitment, Maturity: maturity}}}

	combined := CombineBodies(src0, src1, h, lockup)

	assert.Empty(t, combined.Inputs, "output from src0 and input from src1 should cut through")
	assert.Empty(t, combined.Outputs)
}

func TestCombineBodiesSubsidyAccumulates(t *testing.T) {
	src0 := &Body{Subsidy: 100, SubsidyClosing: false}
	src1 := &Body{Subsidy: 50, SubsidyClosing: true}

	combined := CombineBodies(src0, src1, 1, 0)

	assert.Equal(t, Amount(150), combined.Subsidy)
	assert.True(t, combined.SubsidyClosing)
}
