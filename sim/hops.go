package sim

// MaxPathHops returns the longest switch-to-switch path, by link type, that a
// routing algorithm can produce. VC counts per traffic class must cover it.
func MaxPathHops(algorithm string) HopCount {
	switch algorithm {
	case "valiant", "ugal", "pb":
		// l g l to the Valiant switch, l g l to the destination
		return HopCount{Local: 4, Global: 2}
	case "par":
		// l (minimal or local misroute), g (misroute), l g l
		return HopCount{Local: 3, Global: 2}
	default:
		return HopCount{Local: 2, Global: 1}
	}
}

// DetourPhase returns the VC sub-range reserved for hops taken toward an
// intermediate target when VCs are assigned by phase (the offset strategy).
func DetourPhase(algorithm string) HopCount {
	switch algorithm {
	case "valiant", "ugal", "pb":
		return HopCount{Local: 2, Global: 1}
	}
	return HopCount{}
}

// distanceFunc returns switch-to-switch minimal hop counts.
type distanceFunc func(from, to int) HopCount

// HopBudget computes the worst-case hops a flit still has ahead of it, by link
// type, given the routing algorithm. Flexible VC strategies keep that many
// channels free above the one they assign.
type HopBudget struct {
	topo      *Topology
	algorithm string
	policy    string // global misrouting candidates
	dist      distanceFunc
}

// NewHopBudget returns a budget computed from topology arithmetic.
func NewHopBudget(topo *Topology, routing RoutingConfig) *HopBudget {
	return &HopBudget{topo: topo, algorithm: routing.Algorithm, policy: routing.GlobalMisrouting, dist: topo.MinimalHops}
}

// NewTabulatedHopBudget returns a budget whose distances come from a table
// precomputed for every switch pair.
func NewTabulatedHopBudget(topo *Topology, routing RoutingConfig) *HopBudget {
	n := topo.NumSwitches
	table := make([]HopCount, n*n)
	for from := 0; from < n; from++ {
		for to := 0; to < n; to++ {
			table[from*n+to] = topo.MinimalHops(from, to)
		}
	}
	return &HopBudget{
		topo:      topo,
		algorithm: routing.Algorithm,
		policy:    routing.GlobalMisrouting,
		dist:      func(from, to int) HopCount { return table[from*n+to] },
	}
}

// Remaining returns the worst-case hops from switch `from` to the destination
// for a flit that has just been routed to `from`.
func (b *HopBudget) Remaining(from int, f *Flit) HopCount {
	if f.MandatoryGlobal {
		return HopCount{Global: 1}.Add(b.worstAfterGlobal(from, f.DestSwitch))
	}
	var r HopCount
	if f.ValNode >= 0 && !f.ValNodeReached && from != f.ValNode {
		r = b.dist(from, f.ValNode).Add(b.dist(f.ValNode, f.DestSwitch))
	} else {
		r = b.dist(from, f.DestSwitch)
	}
	if b.mayMisrouteAt(from, f) {
		detour := HopCount{Global: 1}.Add(b.worstAfterGlobal(from, f.DestSwitch))
		r = HopCount{Local: max(r.Local, detour.Local), Global: max(r.Global, detour.Global)}
	}
	return r
}

// mayMisrouteAt reports whether the algorithm may still decide a global
// misroute for this flit once it sits at `from`.
func (b *HopBudget) mayMisrouteAt(from int, f *Flit) bool {
	if b.algorithm != "par" || b.policy == "nrg" {
		return false
	}
	t := b.topo
	return t.GroupOf(from) == f.SourceGroup && f.Hops.Global == 0 && !f.GlobalMisrouteDone &&
		f.DestGroup != f.SourceGroup && t.H > 0
}

// worstAfterGlobal returns the longest minimal path to dest from any switch
// reached through a global port of `from`.
func (b *HopBudget) worstAfterGlobal(from, dest int) HopCount {
	t := b.topo
	var worst HopCount
	for k := 0; k < t.H; k++ {
		n, _ := t.Neighbor(from, t.FirstGlobalPort()+k)
		d := b.dist(n, dest)
		worst = HopCount{Local: max(worst.Local, d.Local), Global: max(worst.Global, d.Global)}
	}
	return worst
}
