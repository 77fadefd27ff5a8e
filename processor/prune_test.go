package processor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1M15M3/beam/model"
)

// TestSchwarzschildPrunesOldBodies grows a chain past MaxRollbackHeight
// and checks that the tail's stored bodies are dropped once they fall
// below the Schwarzschild horizon, while the chain's headers (and the
// still-recent tail) remain fully exportable.
func TestSchwarzschildPrunesOldBodies(t *testing.T) {
	p := newTestProcessor(t)

	var last *model.Full
	for i := 0; i < 8; i++ {
		last = mineAndIngest(t, p)
	}
	require.Equal(t, model.HeightGenesis+7, last.Height)

	_, ok := p.ExportMacroBlock(model.HeightGenesis, model.HeightGenesis)
	assert.False(t, ok, "genesis body should have fallen out of the fossil horizon")

	_, ok = p.ExportMacroBlock(last.Height, last.Height)
	assert.True(t, ok, "the current tip's body must still be exportable")
}
