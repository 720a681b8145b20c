package sim

import (
	"fmt"
	"math/rand"
)

// RouteDecision is the output a head flit asks for at one switch.
type RouteDecision struct {
	Port    int
	Hop     MisrouteType // tag recorded on the flit when the hop is taken
	ValNode int          // Valiant switch chosen by this decision, -1 when none
	Minimal bool         // Port lies on the minimal path to the current target
}

// RouteContext is everything a routing algorithm sees while deciding the head
// flit of one input VC. Flit is the state on arrival and must not be mutated;
// the switch commits the decision only when the petition is granted.
type RouteContext struct {
	Now     int64
	Switch  int
	InPort  int
	InType  PortType
	Flit    *Flit
	Ports   PortView
	Signals CongestionSignals
	Links   GlobalLinkState
	Rng     *rand.Rand
}

// AtInjection reports whether the flit is still in its injection buffer.
func (rc *RouteContext) AtInjection() bool { return rc.InType == PortNode }

// PortView is the read-only view of the deciding switch's outputs.
type PortView interface {
	// Queue returns the phits queued toward the next hop through port for cos.
	Queue(port, cos int) int
	// Admissible reports whether the flit could take port with the given hop
	// tag this cycle: a legal VC exists, it has credits and no other packet holds it.
	Admissible(port int, hop MisrouteType, valNode int) bool
}

// CongestionSignals exposes the contention handler's predicates to routing.
type CongestionSignals interface {
	IsThereContention(port int) bool
	IsThereGlobalContention(group int) bool
}

// GlobalLinkState reports whether a global link of the deciding switch's group
// is saturated, from the switch's own queues or piggybacked peer state.
type GlobalLinkState interface {
	Saturated(localIndex, globalPort int) bool
}

// RoutingAlgorithm decides the output of head flits.
type RoutingAlgorithm interface {
	Enroute(rc *RouteContext) RouteDecision
}

// Misrouter is implemented by adaptive algorithms only. Oblivious ones have
// nothing to nominate, so the operations do not exist on them.
type Misrouter interface {
	RoutingAlgorithm
	// MisrouteCondition reports whether the flit should leave the minimal path
	// at this switch. minPort is the minimal output.
	MisrouteCondition(rc *RouteContext, minPort int) bool
	// MisrouteCandidates returns the non-minimal options in preference order.
	MisrouteCandidates(rc *RouteContext, minPort int) []RouteDecision
}

// router holds what every algorithm needs.
type router struct {
	topo    *Topology
	cfg     *Config
	valSalt uint64
}

// minimal returns the minimal decision toward the flit's current target.
func (r *router) minimal(rc *RouteContext) RouteDecision {
	f := rc.Flit
	if f.MandatoryGlobal {
		return r.mandatoryGlobal(rc)
	}
	return RouteDecision{
		Port:    r.topo.MinimalPort(rc.Switch, f.Target(), f.DestNode),
		Hop:     MisrouteNone,
		ValNode: -1,
		Minimal: true,
	}
}

// adaptive runs the shared misrouting state machine: minimal port, condition,
// first admissible candidate, else minimal.
func adaptive(m Misrouter, base *router, rc *RouteContext, decide bool) RouteDecision {
	d := base.minimal(rc)
	if !decide || rc.Flit.MandatoryGlobal {
		return d
	}
	if !m.MisrouteCondition(rc, d.Port) {
		return d
	}
	for _, c := range m.MisrouteCandidates(rc, d.Port) {
		if rc.Ports.Admissible(c.Port, c.Hop, c.ValNode) {
			return c
		}
	}
	return d
}

// MinimalRouting always takes the minimal path.
type MinimalRouting struct {
	router
}

// Enroute implements RoutingAlgorithm.
func (r *MinimalRouting) Enroute(rc *RouteContext) RouteDecision {
	return r.minimal(rc)
}

// ValiantRouting sends every packet through a random intermediate switch,
// chosen at injection and kept for all retries of the packet.
type ValiantRouting struct {
	router
}

// Enroute implements RoutingAlgorithm.
func (r *ValiantRouting) Enroute(rc *RouteContext) RouteDecision {
	f := rc.Flit
	if rc.AtInjection() && f.ValNode < 0 && f.SourceSwitch != f.DestSwitch {
		if d, ok := r.valiant(rc); ok {
			return d
		}
	}
	return r.minimal(rc)
}

// NewRoutingAlgorithm creates a routing algorithm by name.
// Valid names are defined in ValidRoutingAlgorithms (config.go).
// Panics on unrecognized names.
func NewRoutingAlgorithm(cfg *Config, topo *Topology, key SimulationKey) RoutingAlgorithm {
	name := cfg.Routing.Algorithm
	if !ValidRoutingAlgorithms[name] {
		panic(fmt.Sprintf("unknown routing algorithm %q", name))
	}
	base := router{topo: topo, cfg: cfg, valSalt: uint64(int64(key) ^ fnv1a64(SubsystemValiant))}
	switch name {
	case "minimal":
		return &MinimalRouting{router: base}
	case "valiant":
		return &ValiantRouting{router: base}
	case "ugal":
		return &UGALRouting{router: base}
	case "pb":
		return &PBRouting{router: base}
	case "par":
		return &PARRouting{router: base}
	default:
		panic(fmt.Sprintf("unhandled routing algorithm %q", name))
	}
}
