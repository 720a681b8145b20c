package sim

// PBRouting (piggyback) decides at injection. When the global link of the
// minimal path is saturated, according to the switch's own queues or the state
// piggybacked by its group peers, the packet goes through its Valiant switch.
// With pb_any it may instead take one opportunistic local misroute when the
// minimal local port is contended.
type PBRouting struct {
	router
}

// Enroute implements RoutingAlgorithm.
func (r *PBRouting) Enroute(rc *RouteContext) RouteDecision {
	f := rc.Flit
	decide := rc.AtInjection() && f.ValNode < 0 && f.SourceSwitch != f.DestSwitch
	return adaptive(r, &r.router, rc, decide)
}

// minimalLinkSaturated reports whether the global link the minimal path uses
// to leave the current group is saturated.
func (r *PBRouting) minimalLinkSaturated(rc *RouteContext) bool {
	t := r.topo
	g := t.GroupOf(rc.Switch)
	if rc.Flit.DestGroup == g {
		return false
	}
	exit, port := t.GlobalExit(g, rc.Flit.DestGroup)
	return rc.Links.Saturated(exit, port)
}

func (r *PBRouting) localMisroute(rc *RouteContext, minPort int) bool {
	return r.cfg.Routing.PBAny && !rc.Flit.LocalMisrouteDone &&
		r.topo.PortType(minPort) == PortLocal && rc.Signals.IsThereContention(minPort)
}

// MisrouteCondition implements Misrouter.
func (r *PBRouting) MisrouteCondition(rc *RouteContext, minPort int) bool {
	return r.minimalLinkSaturated(rc) || r.localMisroute(rc, minPort)
}

// MisrouteCandidates implements Misrouter.
func (r *PBRouting) MisrouteCandidates(rc *RouteContext, minPort int) []RouteDecision {
	var out []RouteDecision
	if r.minimalLinkSaturated(rc) {
		if d, ok := r.valiant(rc); ok {
			out = append(out, d)
		}
	}
	if r.localMisroute(rc, minPort) {
		out = append(out, r.localCandidates(rc, minPort, MisrouteLocal)...)
	}
	return out
}
