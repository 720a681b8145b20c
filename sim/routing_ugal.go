package sim

// UGALRouting chooses, at injection, between the minimal path and the path
// through the packet's Valiant switch.
//
// Trigger "credits" compares queue length times path length on both paths:
// misroute when minQ·minLen > valQ·valLen + ugal_threshold. Triggers "ca" and
// "filtered" use the contention handler instead, and "hybrid" fires on either.
type UGALRouting struct {
	router
}

// Enroute implements RoutingAlgorithm.
func (r *UGALRouting) Enroute(rc *RouteContext) RouteDecision {
	f := rc.Flit
	decide := rc.AtInjection() && f.ValNode < 0 && f.SourceSwitch != f.DestSwitch
	return adaptive(r, &r.router, rc, decide)
}

// MisrouteCondition implements Misrouter.
func (r *UGALRouting) MisrouteCondition(rc *RouteContext, minPort int) bool {
	switch r.cfg.Routing.MisroutingTrigger {
	case "credits":
		return r.creditsCondition(rc, minPort)
	case "hybrid":
		return r.creditsCondition(rc, minPort) || r.contentionCondition(rc, minPort)
	default:
		return r.contentionCondition(rc, minPort)
	}
}

func (r *UGALRouting) creditsCondition(rc *RouteContext, minPort int) bool {
	f := rc.Flit
	val := r.valiantSwitch(f)
	if val < 0 || val == rc.Switch {
		return false
	}
	t := r.topo
	valPort := t.MinimalPort(rc.Switch, val, f.DestNode)
	minLen := t.MinimalHops(rc.Switch, f.DestSwitch).Total()
	valLen := t.MinimalHops(rc.Switch, val).Total() + t.MinimalHops(val, f.DestSwitch).Total()
	minQ := rc.Ports.Queue(minPort, f.CoS)
	valQ := rc.Ports.Queue(valPort, f.CoS)
	return minQ*minLen > valQ*valLen+r.cfg.Routing.UGALThreshold
}

func (r *UGALRouting) contentionCondition(rc *RouteContext, minPort int) bool {
	f := rc.Flit
	if rc.Signals.IsThereContention(minPort) {
		return true
	}
	return f.DestGroup != r.topo.GroupOf(rc.Switch) && rc.Signals.IsThereGlobalContention(f.DestGroup)
}

// MisrouteCandidates implements Misrouter: the Valiant path is the only option.
func (r *UGALRouting) MisrouteCandidates(rc *RouteContext, _ int) []RouteDecision {
	if d, ok := r.valiant(rc); ok {
		return []RouteDecision{d}
	}
	return nil
}
