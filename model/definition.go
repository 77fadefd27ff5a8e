package model

// ComputeDefinition implements spec.md §3's definition hash:
// H(H(utxoRoot ‖ kernelRoot) ‖ historyHash). historyHash is the
// caller's choice of historyNext (state-after-inclusion, used when
// validating a header) or history (state-before, used when checking
// definition against the previous tip) -- spec.md §3 and §4.3 step 5.
func ComputeDefinition(utxoRoot, kernelRoot, historyHash Hash) Hash {
	inner := Combine(utxoRoot, kernelRoot)
	return Combine(inner, historyHash)
}
