// Package mining implements block generation, spec.md §4.7. Grounded on
// mining/mining.go's BlockAssembler (resetBlockAssembler, addPackageTxs,
// running size/fee accounting, "skip one candidate, don't abort the
// whole pass" eviction discipline) and mining/blocktemplate.go's block
// template shape, narrowed to the mempool contract spec.md §6 defines
// (flat fee ordering, no package/ancestor tracking).
package mining

import (
	"github.com/1M15M3/beam/consensus"
	"github.com/1M15M3/beam/mempool"
	"github.com/1M15M3/beam/model"
)

// Applier is the subset of processor behavior GenerateNewBlock needs in
// order to apply/undo candidate tx elements against the live trees
// without importing the processor package (which itself imports
// mining), keeping the dependency one-directional.
type Applier interface {
	// ApplyBody runs HandleValidatedTx forward (adjust-maturity mode)
	// over every input/output/kernel in body at height h. On failure it
	// has already undone whatever it itself applied and returns false.
	ApplyBody(body *model.Body, h model.Height) bool
	// UndoBody runs HandleValidatedTx backward over body at height h.
	// Used to roll back everything GenerateNewBlock speculatively
	// applied once the template has been captured (spec.md §4.7 step 8:
	// "the cursor must remain unchanged").
	UndoBody(body *model.Body, h model.Height)
}

// SerializedSizeFunc estimates a body's serialized size in bytes. Out of
// scope per spec.md §1 (wire format is an external collaborator); the
// processor supplies its own serializer-backed estimator.
type SerializedSizeFunc func(*model.Body) uint32

// Assembler builds candidate blocks. Grounded on mining.go's
// BlockAssembler struct (cached limits + a reference to the shared
// mempool/coin view).
type Assembler struct {
	Rules          *consensus.Rules
	Mempool        mempool.Mempool
	Applier        Applier
	SerializedSize SerializedSizeFunc

	// sizeUtxoCommission is estimated once per processor lifetime
	// (spec.md §4.7 step 4) by serializing a placeholder commission
	// output, then cached here.
	sizeUtxoCommission uint32
	sizeEstimated      bool
}

// Generate builds a block body at height cursor.Height+1, per spec.md
// §4.7. partial, if non-nil, is caller-supplied body content applied
// first (step 1); coinbase is the coinbase output + kernel Generate
// seeds the body with (step 2). The header timestamp (step 7's
// max(now, movingMedian+1)) is not computed here; the caller picks it,
// since MovingMedian needs header history this package doesn't hold.
func (a *Assembler) Generate(h model.Height, partial *model.Body, coinbase *model.Output, kernel *model.TxKernel) (*model.Body, model.Amount, bool) {
	body := &model.Body{}
	if partial != nil {
		if !a.Applier.ApplyBody(partial, h) {
			return nil, 0, false
		}
		mergeBody(body, partial)
	}

	seed := &model.Body{
		Outputs:       []*model.Output{coinbase},
		KernelsOutput: []*model.TxKernel{kernel},
		Subsidy:       model.Amount(a.Rules.CoinbaseEmission),
	}
	if !a.Applier.ApplyBody(seed, h) {
		a.Applier.UndoBody(body, h)
		return nil, 0, false
	}
	mergeBody(body, seed)

	if a.SerializedSize(body) > a.Rules.MaxBodySize {
		a.Applier.UndoBody(body, h)
		return nil, 0, false
	}

	if !a.sizeEstimated {
		a.sizeUtxoCommission = estimateCommissionOutputSize()
		a.sizeEstimated = true
	}

	var feeSum model.Amount
	var toEvict []*mempool.Entry
	a.Mempool.Iterate(func(e *mempool.Entry) bool {
		fee := e.Tx.Fee
		if fee.HiWordSet() || model.AddOverflows(feeSum, fee) {
			toEvict = append(toEvict, e)
			return true
		}

		extra := e.Tx.SerializedSize
		if feeSum == 0 {
			extra += a.sizeUtxoCommission
		}
		curSize := a.SerializedSize(body)
		if curSize+extra > a.Rules.MaxBodySize {
			if len(body.Outputs) == 1 && len(body.KernelsOutput) == 1 {
				// block is otherwise empty (only the coinbase seed) and
				// this single candidate alone won't fit: it can never fit
				// later either, so evict rather than skip.
				toEvict = append(toEvict, e)
			}
			return true
		}

		if !e.Tx.Body.KernelsOutput[0].IsValidAt(h) {
			toEvict = append(toEvict, e)
			return true
		}

		if !a.Applier.ApplyBody(e.Tx.Body, h) {
			toEvict = append(toEvict, e)
			return true
		}

		mergeBody(body, e.Tx.Body)
		feeSum += fee
		return true
	})

	for _, e := range toEvict {
		a.Mempool.Delete(e)
	}

	if feeSum > 0 {
		feeOutput := &model.Output{Commitment: commissionCommitment(h, feeSum)}
		feeKernel := &model.TxKernel{ID: model.HashBytes(appendHeight(nil, h)), Fee: feeSum}
		commission := &model.Body{
			Outputs:       []*model.Output{feeOutput},
			KernelsOutput: []*model.TxKernel{feeKernel},
		}
		if a.Applier.ApplyBody(commission, h) {
			mergeBody(body, commission)
		}
	}

	// Step 8: the body is now authoritative as returned data; undo every
	// application made while assembling it so the cursor (and the trees
	// it backs) are exactly as they were before Generate was called.
	a.Applier.UndoBody(body, h)
	body.Normalize(h, a.Rules.CoinbaseLockup)
	if a.SerializedSize(body) > a.Rules.MaxBodySize {
		return nil, 0, false
	}

	return body, feeSum, true
}

func mergeBody(dst, src *model.Body) {
	dst.Inputs = append(dst.Inputs, src.Inputs...)
	dst.Outputs = append(dst.Outputs, src.Outputs...)
	dst.KernelsInput = append(dst.KernelsInput, src.KernelsInput...)
	dst.KernelsOutput = append(dst.KernelsOutput, src.KernelsOutput...)
	dst.Subsidy += src.Subsidy
	if src.SubsidyClosing {
		dst.SubsidyClosing = true
	}
}

// estimateCommissionOutputSize is the step-4 one-time placeholder
// measurement: a confidential-proof-sized output's typical wire size.
// The actual proof format is an opaque crypto collaborator (spec.md
// §1), so this is a fixed stand-in for "an output with a full range
// proof attached".
func estimateCommissionOutputSize() uint32 {
	placeholder := &model.Output{ConfidentialProof: make([]byte, 675)}
	return uint32(33 + len(placeholder.ConfidentialProof) + 9)
}

func commissionCommitment(h model.Height, fee model.Amount) model.Commitment {
	digest := model.HashBytes(appendHeight(appendAmount(nil, fee), h))
	var c model.Commitment
	copy(c[:], digest[:])
	return c
}

func appendHeight(b []byte, h model.Height) []byte {
	for i := 0; i < 8; i++ {
		b = append(b, byte(h>>(8*i)))
	}
	return b
}

func appendAmount(b []byte, a model.Amount) []byte {
	for i := 0; i < 8; i++ {
		b = append(b, byte(a>>(8*i)))
	}
	return b
}
