package model

// Horizon bundles the two pruning depths spec.md §3 defines:
// Branching trims non-active forks, Schwarzschild trims bodies down to
// a "fossil" zone where only headers survive.
type Horizon struct {
	Branching     Height
	Schwarzschild Height
}

// Normalize enforces spec.md §3's invariant: Schwarzschild >= Branching
// and >= maxRollback.
func (h *Horizon) Normalize(maxRollback Height) {
	if h.Schwarzschild < h.Branching {
		h.Schwarzschild = h.Branching
	}
	if h.Schwarzschild < maxRollback {
		h.Schwarzschild = maxRollback
	}
}
