package sim

import (
	"fmt"
	"math/rand"
)

// VCRequest describes one switch-to-switch hop that needs an output channel.
type VCRequest struct {
	Switch  int
	OutPort int
	Type    PortType // PortLocal or PortGlobal
	Next    int      // switch reached through OutPort
	Hop     MisrouteType
	Before  *Flit // state on arrival at Switch
	After   *Flit // state once the hop is taken; hop counters already advanced
	Out     *OutputPort
}

// VCManager assigns the output VC of a hop so that the channel sequence of any
// path is monotone per link type, which rules out cyclic buffer dependencies.
type VCManager interface {
	// Channel returns the VC for the hop, or ok=false when the hop would leave
	// the flit without a legal channel later on its path.
	Channel(req *VCRequest) (vc int, ok bool)
}

// NextChannel returns the VC for a hop that routing has already accepted.
// Having no legal channel there is a configuration error and panics.
func NextChannel(m VCManager, req *VCRequest) int {
	vc, ok := m.Channel(req)
	if !ok {
		panic(fmt.Sprintf("switch %d port %d: no legal %s VC for packet %d (hops %+v, last %d)",
			req.Switch, req.OutPort, req.Type, req.After.PacketID, req.After.Hops, req.Before.LastVC(req.Type)))
	}
	return vc
}

// vcWindow maps window-relative channel indices to absolute ones. In reactive
// mode requests use the lower half of every port's VCs and responses the upper.
type vcWindow struct {
	local, global, injection int
	reactive                 bool
}

func newVCWindow(ch ChannelConfig, reactive bool) vcWindow {
	return vcWindow{local: ch.LocalVCs, global: ch.GlobalVCs, injection: ch.InjectionVCs, reactive: reactive}
}

// bounds returns the first absolute VC and the size of the window a flit may use.
func (w vcWindow) bounds(t PortType, response bool) (base, size int) {
	switch t {
	case PortLocal:
		size = w.local
	case PortGlobal:
		size = w.global
	default:
		size = w.injection
	}
	if !w.reactive {
		return 0, size
	}
	size /= 2
	if response {
		return size, size
	}
	return 0, size
}

// absolute converts a window index; ok=false when it falls outside the window.
func (w vcWindow) absolute(t PortType, response bool, idx int) (int, bool) {
	base, size := w.bounds(t, response)
	if idx < 0 || idx >= size {
		return -1, false
	}
	return base + idx, true
}

// relative returns the window index of the last VC used on type t, or -1.
func (w vcWindow) relative(f *Flit, t PortType) int {
	last := f.LastVC(t)
	if last < 0 {
		return -1
	}
	base, _ := w.bounds(t, f.Response)
	return last - base
}

// FixedVCs assigns VC k to the k-th hop of each link type.
type FixedVCs struct {
	window vcWindow
}

// Channel implements VCManager.
func (m *FixedVCs) Channel(req *VCRequest) (int, bool) {
	return m.window.absolute(req.Type, req.After.Response, req.After.Hops.Of(req.Type)-1)
}

// OpportunisticVCs is FixedVCs except that a local misroute hop reuses the VC of
// the preceding local hop (the first local VC when there is none). The next
// minimal local hop advances past it, so only misroute hops repeat a channel.
type OpportunisticVCs struct {
	window vcWindow
}

// Channel implements VCManager.
func (m *OpportunisticVCs) Channel(req *VCRequest) (int, bool) {
	f := req.After
	if req.Type != PortLocal {
		return m.window.absolute(req.Type, f.Response, f.Hops.Of(req.Type)-1)
	}
	last := m.window.relative(req.Before, PortLocal)
	if req.Hop.IsLocal() {
		return m.window.absolute(PortLocal, f.Response, max(last, 0))
	}
	return m.window.absolute(PortLocal, f.Response, last+1)
}

// OffsetVCs splits every window in two phases: hops toward an intermediate
// target (Valiant switch, local misroute) use the low sub-range from index 0,
// the remaining hops continue above DetourPhase(algorithm).
type OffsetVCs struct {
	window vcWindow
	detour HopCount
}

// Channel implements VCManager.
func (m *OffsetVCs) Channel(req *VCRequest) (int, bool) {
	f, t := req.After, req.Type
	if isDetourHop(req.Before, req.After, req.Hop) {
		return m.window.absolute(t, f.Response, f.DetourHops.Of(t)-1)
	}
	direct := f.Hops.Of(t) - f.DetourHops.Of(t)
	return m.window.absolute(t, f.Response, m.detour.Of(t)+direct-1)
}

// isDetourHop reports whether a hop belongs to the detour phase of a path.
func isDetourHop(before, after *Flit, hop MisrouteType) bool {
	return hop.IsLocal() || (after.ValNode >= 0 && !before.ValNodeReached)
}

// FlexibleVCs picks a channel from the pool [last+1, size-1-remaining], where
// remaining is the worst-case number of hops of the same type still ahead.
// A pending misroute widens remaining, which excludes the top channels.
type FlexibleVCs struct {
	window vcWindow
	budget *HopBudget
	policy string
	rng    *rand.Rand
	pool   []int
}

// Channel implements VCManager.
func (m *FlexibleVCs) Channel(req *VCRequest) (int, bool) {
	f, t := req.After, req.Type
	_, size := m.window.bounds(t, f.Response)
	rem := m.budget.Remaining(req.Next, f)
	lo := m.window.relative(req.Before, t) + 1
	hi := size - 1 - rem.Of(t)
	if lo > hi {
		return -1, false
	}
	other := PortGlobal
	if t == PortGlobal {
		other = PortLocal
	}
	_, otherSize := m.window.bounds(other, f.Response)
	if m.window.relative(req.Before, other)+rem.Of(other) > otherSize-1 {
		return -1, false
	}

	// Prefer channels the packet can use now; fall back to the whole pool so a
	// blocked hop still retries on a legal channel.
	m.pool = m.pool[:0]
	for idx := lo; idx <= hi; idx++ {
		vc, _ := m.window.absolute(t, f.Response, idx)
		if req.Out == nil || req.Out.Available(f.CoS, vc, f.PacketID) && req.Out.Credits(f.CoS, vc) >= f.Length {
			m.pool = append(m.pool, vc)
		}
	}
	if len(m.pool) == 0 {
		for idx := lo; idx <= hi; idx++ {
			vc, _ := m.window.absolute(t, f.Response, idx)
			m.pool = append(m.pool, vc)
		}
	}
	return m.pick(req.Out, f.CoS), true
}

func (m *FlexibleVCs) pick(out *OutputPort, cos int) int {
	switch m.policy {
	case "highest":
		return m.pool[len(m.pool)-1]
	case "lowest-occupancy":
		if out == nil {
			return m.pool[0]
		}
		best := m.pool[0]
		for _, vc := range m.pool[1:] {
			if out.CreditsOccupancy(cos, vc) < out.CreditsOccupancy(cos, best) {
				best = vc
			}
		}
		return best
	case "random":
		return m.pool[m.rng.Intn(len(m.pool))]
	default:
		return m.pool[0]
	}
}

// NewVCManager creates the VC manager of one switch by strategy name.
// Valid names are defined in ValidVCStrategies (config.go).
// rng is only drawn by the "random" pool policy.
// Panics on unrecognized names.
func NewVCManager(cfg *Config, topo *Topology, rng *rand.Rand) VCManager {
	r := cfg.Routing
	if !ValidVCStrategies[r.VCStrategy] {
		panic(fmt.Sprintf("unknown vc strategy %q", r.VCStrategy))
	}
	w := newVCWindow(cfg.Channels, r.Reactive)
	switch r.VCStrategy {
	case "fixed":
		return &FixedVCs{window: w}
	case "opportunistic":
		return &OpportunisticVCs{window: w}
	case "offset":
		return &OffsetVCs{window: w, detour: DetourPhase(r.Algorithm)}
	case "flexible":
		return &FlexibleVCs{window: w, budget: NewHopBudget(topo, r), policy: r.VCPolicy, rng: rng}
	case "table":
		return &FlexibleVCs{window: w, budget: NewTabulatedHopBudget(topo, r), policy: r.VCPolicy, rng: rng}
	default:
		panic(fmt.Sprintf("unhandled vc strategy %q", r.VCStrategy))
	}
}

// assertMonotone panics when a hop's channel does not advance the per-type VC
// sequence. Under the opportunistic strategy a local misroute hop may reuse the
// previous local VC; minimal hops always advance.
func assertMonotone(strategy string, before *Flit, t PortType, hop MisrouteType, vc int) {
	last := before.LastVC(t)
	if last < 0 || vc > last {
		return
	}
	if vc == last && strategy == "opportunistic" && t == PortLocal && hop.IsLocal() {
		return
	}
	panic(fmt.Sprintf("packet %d: non-monotone %s VC sequence (%d after %d, hop %s)", before.PacketID, t, vc, last, hop))
}
