package processor

import (
	"math/big"
	"time"

	"github.com/1M15M3/beam/mining"
	"github.com/1M15M3/beam/model"
	"github.com/1M15M3/beam/pow"
)

// ApplyBody and UndoBody let this package's Processor satisfy
// mining.Applier without mining importing processor back.
func (p *Processor) ApplyBody(body *model.Body, h model.Height) bool {
	return p.HandleValidatedTx(body, h, true, true, nil)
}

func (p *Processor) UndoBody(body *model.Body, h model.Height) {
	p.HandleValidatedTx(body, h, false, true, nil)
}

func serializedSize(b *model.Body) uint32 {
	return uint32(len(b.Bytes()))
}

// GenerateNewBlock assembles a candidate block at cursor.height+1,
// spec.md §4.7. Assembly speculatively mutates the live UTXO/kernel
// trees through Assembler's Applier calls and unwinds them again before
// returning (step 8), so this touches no NodeDB transaction: the trees
// are the only state in play and they end up exactly as they started.
func (p *Processor) GenerateNewBlock(partial *model.Body) (*model.Full, *model.Body, bool) {
	h := model.HeightGenesis
	if !p.cursor.Empty() {
		h = p.cursor.Full.Height + 1
	}

	coinbase := &model.Output{
		Commitment: coinbaseCommitment(h),
		Coinbase:   true,
	}
	kernel := &model.TxKernel{ID: model.HashBytes(heightBytes(h))}

	asm := &mining.Assembler{
		Rules:          p.rules,
		Mempool:        p.mempool,
		Applier:        p,
		SerializedSize: serializedSize,
	}
	body, _, ok := asm.Generate(h, partial, coinbase, kernel)
	if !ok {
		return nil, nil, false
	}

	full, ok := p.buildGeneratedHeader(h, body)
	if !ok {
		return nil, nil, false
	}
	return full, body, true
}

// buildGeneratedHeader computes the header fields spec.md §4.7 step 7
// names. mining.Assembler already undid its own speculative application
// of body (step 8), so the trees here are exactly as they were before
// Generate was called -- one step short of what the definition has to
// commit to. Re-applying and re-undoing body brackets the one
// computeDefinition call that needs the post-application roots, leaving
// the trees as untouched on return as Generate itself left them.
func (p *Processor) buildGeneratedHeader(h model.Height, body *model.Body) (*model.Full, bool) {
	var prev model.Hash
	var parentWork big.Int
	if p.cursor.Full != nil {
		prev = p.cursor.Full.Hash()
		parentWork = p.cursor.Full.ChainWork
	}

	if !p.HandleValidatedBlock(body, h, true, true, nil) {
		return nil, false
	}
	definition := p.computeDefinition(p.cursor.HistoryNext)
	p.HandleValidatedBlock(body, h, false, true, nil)

	difficulty := p.cursor.DifficultyNext
	work := new(big.Int).Add(&parentWork, difficulty.ToWork())

	median := pow.MovingMedian(p.rules, p.cursor.Full, p.ancestorOfHandle(p.cursor.Sid.Row, p.cursor.Sid.Height))
	now := time.Now().Unix()
	ts := now
	if ts <= median {
		ts = median + 1
	}

	return &model.Full{
		Height:     h,
		Prev:       prev,
		ChainWork:  *work,
		Definition: definition,
		TimeStamp:  ts,
		Pow:        model.PoW{Difficulty: difficulty},
	}, true
}

func heightBytes(h model.Height) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(uint64(h) >> (8 * i))
	}
	return b
}

func coinbaseCommitment(h model.Height) model.Commitment {
	digest := model.HashBytes(append([]byte("coinbase"), heightBytes(h)...))
	var c model.Commitment
	copy(c[:], digest[:])
	return c
}
