package model

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollbackDataEmptyIsOneZeroByte(t *testing.T) {
	rd := NewRollbackData(nil)
	assert.Equal(t, []byte{0x00}, rd.Bytes())
}

func TestRollbackDataRoundTrip(t *testing.T) {
	inputs := []*Input{
		{Commitment: commitmentFor(1), Maturity: 7},
		{Commitment: commitmentFor(2), Maturity: 0},
		{Commitment: commitmentFor(3), Maturity: 1000},
	}
	rd := NewRollbackData(inputs)
	blob := rd.Bytes()

	got := &RollbackData{}
	require.NoError(t, got.Unserialize(bytes.NewReader(blob)))
	require.Len(t, got.Maturities, len(inputs))
	for i, in := range inputs {
		assert.Equal(t, in.Maturity, got.Maturities[i])
	}
}

func TestRollbackDataImportMismatchedLength(t *testing.T) {
	rd := &RollbackData{Maturities: []Height{1, 2}}
	err := rd.Import([]*Input{{Commitment: commitmentFor(1)}})
	require.Error(t, err)
	assert.True(t, IsRollbackSizeMismatch(err))
}

func TestBodySerializeRoundTrip(t *testing.T) {
	explicit := Height(42)
	b := &Body{
		Inputs:        []*Input{{Commitment: commitmentFor(1), Maturity: 3}},
		Outputs:       []*Output{{Commitment: commitmentFor(2), Coinbase: true, ExplicitMaturity: &explicit}},
		KernelsInput:  []*TxKernel{{ID: HashBytes([]byte("in"))}},
		KernelsOutput: []*TxKernel{{ID: HashBytes([]byte("out")), Fee: 5}},
		Subsidy:       1000,
	}

	blob := b.Bytes()
	got, err := BodyFromBytes(blob)
	require.NoError(t, err)

	require.Len(t, got.Inputs, 1)
	assert.Equal(t, b.Inputs[0].Commitment, got.Inputs[0].Commitment)
	assert.Equal(t, b.Inputs[0].Maturity, got.Inputs[0].Maturity)

	require.Len(t, got.Outputs, 1)
	assert.True(t, got.Outputs[0].Coinbase)
	require.NotNil(t, got.Outputs[0].ExplicitMaturity)
	assert.Equal(t, explicit, *got.Outputs[0].ExplicitMaturity)

	require.Len(t, got.KernelsInput, 1)
	assert.Equal(t, b.KernelsInput[0].ID, got.KernelsInput[0].ID)
	require.Len(t, got.KernelsOutput, 1)
	assert.Equal(t, b.KernelsOutput[0].Fee, got.KernelsOutput[0].Fee)

	assert.Equal(t, b.Subsidy, got.Subsidy)
}
