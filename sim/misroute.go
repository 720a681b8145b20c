package sim

import "math/rand"

// valiantSwitch picks the intermediate switch of a packet. The pick depends
// only on the packet id and the run key, so every retry sees the same switch.
// The switch lies in a group other than the source and destination groups when
// one exists; otherwise any switch other than both endpoints. Returns -1 when
// the topology has no such switch.
func (r *router) valiantSwitch(f *Flit) int {
	t := r.topo
	x := mix64(r.valSalt ^ uint64(f.PacketID))
	groups := t.G - 1
	if f.SourceGroup != f.DestGroup {
		groups--
	}
	if groups > 0 {
		k := int(x % uint64(groups))
		g := 0
		for ; ; g++ {
			if g == f.SourceGroup || g == f.DestGroup {
				continue
			}
			if k == 0 {
				break
			}
			k--
		}
		return t.SwitchID(g, int(mix64(x)%uint64(t.A)))
	}
	others := t.NumSwitches - 1
	if f.SourceSwitch != f.DestSwitch {
		others--
	}
	if others <= 0 {
		return -1
	}
	k := int(x % uint64(others))
	for sw := 0; ; sw++ {
		if sw == f.SourceSwitch || sw == f.DestSwitch {
			continue
		}
		if k == 0 {
			return sw
		}
		k--
	}
}

// valiant returns the first hop toward the packet's Valiant switch.
func (r *router) valiant(rc *RouteContext) (RouteDecision, bool) {
	val := r.valiantSwitch(rc.Flit)
	if val < 0 || val == rc.Switch {
		return RouteDecision{}, false
	}
	return RouteDecision{
		Port:    r.topo.MinimalPort(rc.Switch, val, rc.Flit.DestNode),
		Hop:     MisrouteValiant,
		ValNode: val,
	}, true
}

// mandatoryGlobal routes a flit that must leave through a global port: the
// first admissible global port in rotation order, or the rotation start when
// none is admissible this cycle.
func (r *router) mandatoryGlobal(rc *RouteContext) RouteDecision {
	ports := rotated(r.topo.FirstGlobalPort(), r.topo.H, -1, rc.Rng)
	d := RouteDecision{Port: ports[0], Hop: MisrouteGlobalMandatory, ValNode: -1}
	for _, p := range ports {
		if rc.Ports.Admissible(p, MisrouteGlobalMandatory, -1) {
			d.Port = p
			break
		}
	}
	return d
}

// localCandidates nominates the local ports other than skip.
func (r *router) localCandidates(rc *RouteContext, skip int, hop MisrouteType) []RouteDecision {
	var out []RouteDecision
	for _, p := range rotated(r.topo.FirstLocalPort(), r.topo.A-1, skip, rc.Rng) {
		out = append(out, RouteDecision{Port: p, Hop: hop, ValNode: -1})
	}
	return out
}

// globalCandidates nominates the global ports of this switch that lead to a
// group other than the destination group.
func (r *router) globalCandidates(rc *RouteContext) []RouteDecision {
	var out []RouteDecision
	for _, p := range rotated(r.topo.FirstGlobalPort(), r.topo.H, -1, rc.Rng) {
		if r.topo.GlobalTarget(rc.Switch, p) == rc.Flit.DestGroup {
			continue
		}
		out = append(out, RouteDecision{Port: p, Hop: MisrouteGlobal, ValNode: -1})
	}
	return out
}

// rotated lists ports [first, first+n) minus skip, starting at a random offset.
func rotated(first, n, skip int, rng *rand.Rand) []int {
	if n <= 0 {
		return nil
	}
	start := 0
	if rng != nil {
		start = rng.Intn(n)
	}
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		p := first + (start+i)%n
		if p != skip {
			out = append(out, p)
		}
	}
	return out
}

// applyHop returns the flit state after taking decision d from switch sw
// through a port of type pt that reaches switch next (-1 for node ports).
func applyHop(before *Flit, d RouteDecision, pt PortType, next int) Flit {
	f := *before
	f.Misroute = d.Hop
	if d.ValNode >= 0 {
		f.ValNode = d.ValNode
		f.ValNodeReached = false
	}
	switch d.Hop {
	case MisrouteLocal, MisrouteLocalMandatory:
		f.LocalMisrouteDone = true
	case MisrouteGlobal, MisrouteGlobalMandatory:
		f.GlobalMisrouteDone = true
	}
	f.MandatoryGlobal = d.Hop == MisrouteLocalMandatory
	switch pt {
	case PortLocal:
		f.Hops.Local++
		f.GroupHops++
		if isDetourHop(before, &f, d.Hop) {
			f.DetourHops.Local++
		}
	case PortGlobal:
		f.Hops.Global++
		f.GroupHops = 0
		if isDetourHop(before, &f, d.Hop) {
			f.DetourHops.Global++
		}
	}
	if f.ValNode >= 0 && next == f.ValNode {
		f.ValNodeReached = true
	}
	f.checkFlags()
	return f
}
