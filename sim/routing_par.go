package sim

// PARRouting (progressive adaptive) re-evaluates the route at every switch of
// the source group until the packet takes a global hop. The candidate kinds
// follow global_misrouting:
//
//	crg  global ports of the current switch (MisrouteGlobal)
//	nrg  local ports toward a neighbor that must then leave through one of its
//	     global ports (MisrouteLocalMandatory, injection switch only)
//	mm   crg candidates first, then nrg candidates
type PARRouting struct {
	router
}

// Enroute implements RoutingAlgorithm.
func (r *PARRouting) Enroute(rc *RouteContext) RouteDecision {
	return adaptive(r, &r.router, rc, r.decisionPoint(rc))
}

func (r *PARRouting) decisionPoint(rc *RouteContext) bool {
	f, t := rc.Flit, r.topo
	return t.H > 0 && t.G > 2 &&
		f.DestGroup != f.SourceGroup &&
		t.GroupOf(rc.Switch) == f.SourceGroup &&
		f.Hops.Global == 0 && !f.GlobalMisrouteDone && !f.MandatoryGlobal
}

// MisrouteCondition implements Misrouter. The "credits" trigger looks at the
// minimal output only; contention triggers also consult the group-wide view of
// the destination group.
func (r *PARRouting) MisrouteCondition(rc *RouteContext, minPort int) bool {
	if rc.Signals.IsThereContention(minPort) {
		return true
	}
	return r.cfg.Routing.MisroutingTrigger != "credits" && rc.Signals.IsThereGlobalContention(rc.Flit.DestGroup)
}

// MisrouteCandidates implements Misrouter.
func (r *PARRouting) MisrouteCandidates(rc *RouteContext, minPort int) []RouteDecision {
	var out []RouteDecision
	policy := r.cfg.Routing.GlobalMisrouting
	if policy == "crg" || policy == "mm" {
		out = append(out, r.globalCandidates(rc)...)
	}
	if (policy == "nrg" || policy == "mm") && rc.AtInjection() {
		out = append(out, r.localCandidates(rc, minPort, MisrouteLocalMandatory)...)
	}
	return out
}
