package processor

import "github.com/1M15M3/beam/model"

// applied records what HandleValidatedTx actually did to the trees, so
// a forward failure can undo exactly the elements already applied, in
// reverse order -- spec.md §9's "implementations should count during
// the forward pass and decrement on unwind".
type applied struct {
	inputs  int
	outputs int
	kIn     int
	kOut    int
}

// HandleValidatedTx iterates a tx/body's four streams in fixed order --
// utxoIn, utxoOut, kernelIn, kernelOut -- applying each element against
// the UTXO/kernel trees, spec.md §4.4. adjustInputMaturity selects
// normal-block mode (locate by range, resolve maturity) vs macroblock
// mode (hMaxOpt must be set, explicit maturity only). On forward
// failure, every already-applied element of this same call is undone in
// reverse order before returning false.
func (p *Processor) HandleValidatedTx(body *model.Body, h model.Height, fwd bool, adjustInputMaturity bool, hMaxOpt *model.Height) bool {
	var done applied

	for _, in := range body.Inputs {
		if !p.applyInput(in, h, fwd, adjustInputMaturity, hMaxOpt) {
			p.undoApplied(body, h, fwd, adjustInputMaturity, hMaxOpt, done)
			return false
		}
		done.inputs++
	}
	for _, out := range body.Outputs {
		if !p.applyOutput(out, h, fwd, hMaxOpt) {
			p.undoApplied(body, h, fwd, adjustInputMaturity, hMaxOpt, done)
			return false
		}
		done.outputs++
	}
	for _, k := range body.KernelsInput {
		if !p.applyKernel(k, fwd, true) {
			p.undoApplied(body, h, fwd, adjustInputMaturity, hMaxOpt, done)
			return false
		}
		done.kIn++
	}
	for _, k := range body.KernelsOutput {
		if !p.applyKernel(k, fwd, false) {
			p.undoApplied(body, h, fwd, adjustInputMaturity, hMaxOpt, done)
			return false
		}
		done.kOut++
	}
	return true
}

// undoApplied reverses exactly the elements recorded in done, in
// reverse stream order then reverse element order within each stream --
// backward application is assumed total (spec.md §4.2: "once invoked it
// must succeed"), so any failure here is corruption.
func (p *Processor) undoApplied(body *model.Body, h model.Height, fwd, adjustInputMaturity bool, hMaxOpt *model.Height, done applied) {
	for i := done.kOut - 1; i >= 0; i-- {
		if !p.applyKernel(body.KernelsOutput[i], !fwd, false) {
			p.hooks.corrupted(errCorrupt("undo kernel output"))
		}
	}
	for i := done.kIn - 1; i >= 0; i-- {
		if !p.applyKernel(body.KernelsInput[i], !fwd, true) {
			p.hooks.corrupted(errCorrupt("undo kernel input"))
		}
	}
	for i := done.outputs - 1; i >= 0; i-- {
		if !p.applyOutput(body.Outputs[i], h, !fwd, hMaxOpt) {
			p.hooks.corrupted(errCorrupt("undo output"))
		}
	}
	for i := done.inputs - 1; i >= 0; i-- {
		if !p.applyInput(body.Inputs[i], h, !fwd, adjustInputMaturity, hMaxOpt) {
			p.hooks.corrupted(errCorrupt("undo input"))
		}
	}
}

func (p *Processor) applyInput(in *model.Input, h model.Height, fwd, adjustInputMaturity bool, hMaxOpt *model.Height) bool {
	if fwd {
		if adjustInputMaturity {
			maturity, count, ok := p.utxo.FindInRange(in.Commitment, h)
			if !ok || count == 0 {
				return false
			}
			in.Maturity = maturity
			p.utxo.Delete(in.Commitment, maturity)
			return true
		}
		if hMaxOpt == nil || in.Maturity > *hMaxOpt {
			return false
		}
		return p.utxo.Delete(in.Commitment, in.Maturity)
	}
	_, overflowed := p.utxo.Insert(in.Commitment, in.Maturity)
	return !overflowed
}

func (p *Processor) applyOutput(out *model.Output, h model.Height, fwd bool, hMaxOpt *model.Height) bool {
	maturity := out.KeyMaturityWithLockup(h, p.rules.CoinbaseLockup)
	if out.ExplicitMaturity != nil {
		if hMaxOpt == nil {
			return false
		}
		if *out.ExplicitMaturity < out.MinMaturity(h, p.rules.CoinbaseLockup) {
			return false
		}
		maturity = *out.ExplicitMaturity
	}

	if fwd {
		_, overflowed := p.utxo.Insert(out.Commitment, maturity)
		return !overflowed
	}
	return p.utxo.Delete(out.Commitment, maturity)
}

// applyKernel implements spec.md §4.4's bAdd = fwd XOR isInput rule:
// forward-output and reverse-input insert; forward-input and
// reverse-output delete.
func (p *Processor) applyKernel(k *model.TxKernel, fwd bool, isInput bool) bool {
	add := fwd != isInput
	if add {
		return p.kernel.Insert(k.ID)
	}
	return p.kernel.Delete(k.ID)
}

// HandleValidatedBlock wraps HandleValidatedTx with the subsidy-closing
// toggle and Extra accounting, spec.md §4.4.
func (p *Processor) HandleValidatedBlock(body *model.Body, h model.Height, fwd bool, adjustInputMaturity bool, hMaxOpt *model.Height) bool {
	if body.SubsidyClosing && p.extra.SubsidyOpen != fwd {
		return false
	}

	if !p.HandleValidatedTx(body, h, fwd, adjustInputMaturity, hMaxOpt) {
		return false
	}

	p.extra.Apply(body.Subsidy, body.Offset, fwd)
	if body.SubsidyClosing {
		p.extra.SubsidyOpen = !fwd
		if fwd {
			p.kernel.Insert(model.ZeroHash)
		} else {
			p.kernel.Delete(model.ZeroHash)
		}
	}
	return true
}

type corruptError string

func (e corruptError) Error() string { return string(e) }

func errCorrupt(msg string) error { return corruptError(msg) }
