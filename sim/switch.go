package sim

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/fabric-sim/dfsim/sim/trace"
)

// SwitchStats counts what crossed one switch. Counters are cumulative; the
// network subtracts a snapshot taken at the end of warmup.
type SwitchStats struct {
	LinkPhits [3]int64                  // phits sent, by output port type
	Hops      [len(misrouteNames)]int64 // committed head-flit hops, by tag
	Petitions int64
	Grants    int64
}

// petition is a ready flit asking for one output this cycle.
type petition struct {
	in, cos, vc int
	decision    RouteDecision
	outVC       int
	after       Flit
	entry       int64 // age key for AGE arbiters
}

// Switch is one dragonfly router. Cycle only mutates the switch's own state;
// everything another switch or a node must see leaves through the outbox as a
// timestamped message.
type Switch struct {
	ID    int
	cfg   *Config
	topo  *Topology
	arena *FlitArena

	inputs  []*InputPort
	outputs []*OutputPort

	routing    RoutingAlgorithm
	vcm        VCManager
	contention *ContentionHandler
	piggyback  *PiggybackState
	rng        *rand.Rand

	vcArbiters     [][]Arbiter // [input][cos], over the VCs of one cos
	outputArbiters []Arbiter   // [output], over inputs
	linkArbiters   []Arbiter   // [output], over (cos, VC) output buffers; ioq only

	inbox   *Inbox
	outbox  []Message
	gossip  bool // partial contention is only read by contention triggers
	traceOn bool
	records []trace.RoutingRecord

	petitions []petition
	pending   [][]int // [output][input] → index into petitions, -1 when none
	view      portView
	rc        RouteContext

	Stats SwitchStats
}

// phitCapacity rounds a buffer size down to whole flits.
func phitCapacity(phits, flitSize int) int {
	return phits / flitSize * flitSize
}

// NewSwitch builds switch id with its ports, arbiters and per-switch policy state.
// routing is shared by all switches and must be stateless.
func NewSwitch(id int, cfg *Config, topo *Topology, arena *FlitArena, routing RoutingAlgorithm, rng *rand.Rand) *Switch {
	ch := cfg.Channels
	s := &Switch{
		ID:      id,
		cfg:     cfg,
		topo:    topo,
		arena:   arena,
		routing: routing,
		rng:     rng,
		inbox:   NewInbox(),
		gossip:  cfg.Routing.MisroutingTrigger != "credits",
		traceOn: trace.TraceConfig{Level: trace.TraceLevel(cfg.Simulation.Trace)}.Enabled(),
	}
	s.vcm = NewVCManager(cfg, topo, rng)
	s.contention = NewContentionHandler(cfg, topo, id, s)
	if cfg.Routing.Algorithm == "pb" {
		s.piggyback = NewPiggybackState(cfg, topo, id)
	}

	s.inputs = make([]*InputPort, topo.Radix)
	s.outputs = make([]*OutputPort, topo.Radix)
	for p := 0; p < topo.Radix; p++ {
		pt := topo.PortType(p)
		var vcs, inCap, downCap int
		switch pt {
		case PortNode:
			vcs, inCap = ch.InjectionVCs, ch.InjectionBuffer
			downCap = ch.ConsumptionBuffer
		case PortLocal:
			vcs, inCap, downCap = ch.LocalVCs, ch.LocalBuffer, ch.LocalBuffer
		case PortGlobal:
			vcs, inCap, downCap = ch.GlobalVCs, ch.GlobalBuffer, ch.GlobalBuffer
		}
		s.inputs[p] = NewInputPort(p, pt, ch.CoSLevels, vcs, inCap, ch.FlitSize)
		outVCs := vcs
		if pt == PortNode {
			outVCs = 1 // one consumption buffer per cos
		}
		s.outputs[p] = NewOutputPort(p, pt, ch.CoSLevels, outVCs, phitCapacity(downCap, ch.FlitSize))
		if ch.SwitchType == "ioq" {
			s.outputs[p].withOutputBuffers(ch.OutputBuffer, ch.FlitSize)
		}
	}
	s.buildArbiters()
	s.view = portView{s: s}
	s.rc = RouteContext{Switch: id, Ports: &s.view, Signals: s.contention, Rng: rng}
	if s.piggyback != nil {
		s.rc.Links = s.piggyback
	}
	return s
}

func (s *Switch) buildArbiters() {
	policy := s.cfg.Arbiter.Policy
	radix := s.topo.Radix
	s.vcArbiters = make([][]Arbiter, radix)
	for in, port := range s.inputs {
		s.vcArbiters[in] = make([]Arbiter, port.CoSLevels())
		for cos := range s.vcArbiters[in] {
			port, cos := port, cos
			s.vcArbiters[in][cos] = NewArbiter(policy, port.NumVCs(), 0, func(vc int) (int64, bool) {
				b := port.Buffer(cos, vc)
				if b.Empty() {
					return 0, false
				}
				return b.HeadEntry(), true
			})
		}
	}
	s.pending = make([][]int, radix)
	s.outputArbiters = make([]Arbiter, radix)
	for o := range s.outputs {
		o := o
		s.pending[o] = make([]int, radix)
		s.outputArbiters[o] = NewArbiter(policy, radix, s.topo.P, func(in int) (int64, bool) {
			idx := s.pending[o][in]
			if idx < 0 {
				return 0, false
			}
			return s.petitions[idx].entry, true
		})
	}
	if s.cfg.Channels.SwitchType != "ioq" {
		return
	}
	s.linkArbiters = make([]Arbiter, radix)
	for o, out := range s.outputs {
		out := out
		n := out.CoSLevels() * out.NumVCs()
		s.linkArbiters[o] = NewArbiter(policy, n, 0, func(k int) (int64, bool) {
			b := out.Buffer(k/out.NumVCs(), k%out.NumVCs())
			if b.Empty() {
				return 0, false
			}
			return b.HeadEntry(), true
		})
	}
}

// Input returns input port p.
func (s *Switch) Input(p int) *InputPort { return s.inputs[p] }

// Output returns output port p.
func (s *Switch) Output(p int) *OutputPort { return s.outputs[p] }

// Contention returns the switch's contention handler.
func (s *Switch) Contention() *ContentionHandler { return s.contention }

// GetCredits returns the credits of output (port, cos, vc).
func (s *Switch) GetCredits(port, cos, vc int) int {
	return s.outputs[port].Credits(cos, vc)
}

// CheckConsumePort reports whether flit f could be delivered to the node on
// port this cycle.
func (s *Switch) CheckConsumePort(port int, f *Flit, now int64) bool {
	out := s.outputs[port]
	if out.Type != PortNode {
		return false
	}
	return out.Credits(f.CoS, 0) >= f.Length && out.Available(f.CoS, 0, f.PacketID) && out.LinkFree(now)
}

// Post schedules a message for this switch. Only called between cycles.
func (s *Switch) Post(m Message) {
	s.inbox.Post(m)
}

// drainOutbox hands every message produced during the last cycle to fn, in
// production order, and empties the outbox.
func (s *Switch) drainOutbox(fn func(Message)) {
	for _, m := range s.outbox {
		fn(m)
	}
	s.outbox = s.outbox[:0]
}

// drainRecords moves the trace records of the last cycle into st.
func (s *Switch) drainRecords(st *trace.SimulationTrace) {
	for _, r := range s.records {
		st.RecordRouting(r)
	}
	s.records = s.records[:0]
}

// Cycle advances the switch by one cycle.
func (s *Switch) Cycle(now int64) {
	s.deliver(now)

	s.contention.Refresh()
	lat := s.cfg.Channels.LocalLatency
	if s.gossip {
		for _, m := range s.contention.Gossip(now) {
			m.At = now + lat
			s.outbox = append(s.outbox, m)
		}
	}
	if s.piggyback != nil {
		s.piggyback.Refresh(s.minimalQueue)
		for _, m := range s.piggyback.Broadcast(now) {
			m.At = now + lat
			s.outbox = append(s.outbox, m)
		}
	}

	s.collectPetitions(now)
	s.grant(now)
	if s.linkArbiters != nil {
		s.linkStage(now)
	}
}

// deliver applies every inbox message due at now.
func (s *Switch) deliver(now int64) {
	for {
		m, ok := s.inbox.Due(now)
		if !ok {
			return
		}
		switch m.Kind {
		case MsgCredit:
			s.outputs[m.Port].ReturnCredits(m.CoS, m.VC, m.Phits, m.Minimal)
		case MsgFlit:
			f := s.arena.Get(m.Flit)
			f.EntryCycle = now
			f.Channel = m.VC
			s.inputs[m.Port].Buffer(m.CoS, m.VC).Insert(m.Flit, f.Length, now, s.cfg.Channels.CrossbarLatency)
		case MsgGossip:
			s.contention.Receive(m.Gossip)
		case MsgPiggyback:
			if s.piggyback != nil {
				s.piggyback.Receive(m.Piggyback)
			}
		default:
			panic(fmt.Sprintf("switch %d: unknown message kind %d", s.ID, m.Kind))
		}
	}
}

// collectPetitions walks every input: cos levels highest first, the VCs of a
// cos in arbiter order, at most speedup petitions per input.
func (s *Switch) collectPetitions(now int64) {
	s.petitions = s.petitions[:0]
	for in, port := range s.inputs {
		budget := s.cfg.Channels.Speedup
		for cos := port.CoSLevels() - 1; cos >= 0 && budget > 0; cos-- {
			for _, vc := range s.vcArbiters[in][cos].Order() {
				if budget == 0 {
					break
				}
				if p, ok := s.petition(now, in, cos, vc); ok {
					s.petitions = append(s.petitions, p)
					budget--
				}
			}
		}
	}
	s.Stats.Petitions += int64(len(s.petitions))
}

// petition routes the head of (in, cos, vc) and checks that the resulting hop
// is legal this cycle.
func (s *Switch) petition(now int64, in, cos, vc int) (petition, bool) {
	port := s.inputs[in]
	buf := port.Buffer(cos, vc)
	if !buf.CanSendFlit(now) {
		return petition{}, false
	}
	f := s.arena.Get(buf.Head())
	route := &port.routes[cos][vc]

	var d RouteDecision
	outVC := 0
	if f.Head {
		s.rc.Now, s.rc.InPort, s.rc.InType, s.rc.Flit = now, in, port.Type, f
		s.view.now, s.view.in, s.view.f = now, in, f
		d = s.routing.Enroute(&s.rc)
	} else {
		if !route.valid || route.packetID != f.PacketID {
			panic(fmt.Sprintf("switch %d input %d (cos=%d, vc=%d): body flit of packet %d without a route", s.ID, in, cos, vc, f.PacketID))
		}
		d, outVC = route.decision, route.outVC
	}

	pt := s.topo.PortType(d.Port)
	next := -1
	if pt != PortNode {
		next, _ = s.topo.Neighbor(s.ID, d.Port)
	}
	after := applyHop(f, d, pt, next)
	if f.Head && pt != PortNode {
		outVC = NextChannel(s.vcm, &VCRequest{
			Switch: s.ID, OutPort: d.Port, Type: pt, Next: next, Hop: d.Hop,
			Before: f, After: &after, Out: s.outputs[d.Port],
		})
	}
	if !s.legal(now, in, f, d.Port, outVC) {
		return petition{}, false
	}
	return petition{in: in, cos: cos, vc: vc, decision: d, outVC: outVC, after: after, entry: f.EntryCycle}, true
}

// legal checks the petition of flit f for (outPort, outVC) against the state
// at the start of the cycle.
func (s *Switch) legal(now int64, in int, f *Flit, outPort, outVC int) bool {
	out := s.outputs[outPort]
	if f.MandatoryGlobal && out.Type != PortGlobal {
		return false
	}
	if !out.Available(f.CoS, outVC, f.PacketID) {
		return false
	}
	need := f.Length
	if out.Type != PortNode && s.cfg.Congestion.BaseCongestionControl && s.inputs[in].Type == PortNode {
		need *= 1 + s.cfg.Congestion.Bubble
	}
	if s.linkArbiters != nil {
		return out.Buffer(f.CoS, outVC).Space() >= need
	}
	return out.Credits(f.CoS, outVC) >= need && out.LinkFree(now)
}

// grant gives every output to the first petitioning input in its arbiter's order.
func (s *Switch) grant(now int64) {
	for o := range s.pending {
		for i := range s.pending[o] {
			s.pending[o][i] = -1
		}
	}
	for i, p := range s.petitions {
		if s.pending[p.decision.Port][p.in] < 0 {
			s.pending[p.decision.Port][p.in] = i
		}
	}
	for o := range s.outputs {
		for _, in := range s.outputArbiters[o].Order() {
			idx := s.pending[o][in]
			if idx < 0 {
				continue
			}
			s.move(now, &s.petitions[idx])
			s.outputArbiters[o].Update(in)
			s.Stats.Grants++
			break
		}
	}
}

// move takes a granted flit out of its input buffer, commits its routing
// state and sends it on (iq) or into the output buffer (ioq).
func (s *Switch) move(now int64, p *petition) {
	port := s.inputs[p.in]
	h := port.Buffer(p.cos, p.vc).Extract(now)
	f := s.arena.Get(h)
	before := *f
	s.returnCredit(now, p.in, p.cos, p.vc, f.Length, before.Misroute == MisrouteNone)

	out := s.outputs[p.decision.Port]
	*f = p.after
	switch out.Type {
	case PortLocal:
		assertMonotone(s.cfg.Routing.VCStrategy, &before, PortLocal, p.decision.Hop, p.outVC)
		f.LastLocalVC = p.outVC
	case PortGlobal:
		assertMonotone(s.cfg.Routing.VCStrategy, &before, PortGlobal, p.decision.Hop, p.outVC)
		f.LastGlobalVC = p.outVC
	}
	f.Channel = p.outVC

	route := &port.routes[p.cos][p.vc]
	if f.Head {
		out.Lock(f.CoS, p.outVC, f.PacketID)
		s.Stats.Hops[p.decision.Hop]++
		s.recordDecision(now, p, f)
		*route = packetRoute{valid: true, packetID: f.PacketID, decision: p.decision, outVC: p.outVC}
	}
	if f.Tail {
		out.Unlock(f.CoS, p.outVC, f.PacketID)
		*route = packetRoute{}
	}
	s.vcArbiters[p.in][p.cos].Update(p.vc)

	if s.linkArbiters != nil {
		// The crossbar delay was already paid on arrival at the input buffer.
		out.Buffer(f.CoS, p.outVC).Insert(h, f.Length, now, 0)
		return
	}
	s.transmit(now, out, h, f)
}

func (s *Switch) recordDecision(now int64, p *petition, f *Flit) {
	if p.decision.Hop != MisrouteNone && logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.Debugf("[cycle %07d] switch %d: packet %d %s misroute via port %d vc %d (val=%d)",
			now, s.ID, f.PacketID, p.decision.Hop, p.decision.Port, p.outVC, f.ValNode)
	}
	if !s.traceOn {
		return
	}
	s.records = append(s.records, trace.RoutingRecord{
		PacketID: f.PacketID,
		Clock:    now,
		Switch:   s.ID,
		InPort:   p.in,
		OutPort:  p.decision.Port,
		OutVC:    p.outVC,
		PortType: s.outputs[p.decision.Port].Type.String(),
		Hop:      p.decision.Hop.String(),
		ValNode:  f.ValNode,
		Minimal:  p.decision.Minimal,
	})
}

// transmit puts a flit on the link of out: credits are consumed now, the flit
// reaches the other end one link latency later.
func (s *Switch) transmit(now int64, out *OutputPort, h FlitHandle, f *Flit) {
	out.ConsumeCredits(f.CoS, f.Channel, f.Length, f.Misroute == MisrouteNone)
	out.occupyLink(now, f.Length)
	s.Stats.LinkPhits[out.Type] += int64(f.Length)
	m := Message{
		At:   now + s.topo.Latency(&s.cfg.Channels, out.Type),
		Kind: MsgFlit,
		From: s.ID,
		CoS:  f.CoS,
		VC:   f.Channel,
		Flit: h,
	}
	if out.Type == PortNode {
		m.To, m.Node, m.Port = -1, s.topo.NodeID(s.ID, out.Index), out.Index
	} else {
		m.To, m.Port = s.topo.Neighbor(s.ID, out.Index)
	}
	s.outbox = append(s.outbox, m)
}

// returnCredit tells the upstream end of input in that phits left (cos, vc).
func (s *Switch) returnCredit(now int64, in, cos, vc, phits int, minimal bool) {
	pt := s.inputs[in].Type
	m := Message{
		At:      now + s.topo.Latency(&s.cfg.Channels, pt),
		Kind:    MsgCredit,
		From:    s.ID,
		CoS:     cos,
		VC:      vc,
		Phits:   phits,
		Minimal: minimal,
	}
	if pt == PortNode {
		m.To, m.Node, m.Port = -1, s.topo.NodeID(s.ID, in), in
	} else {
		m.To, m.Port = s.topo.Neighbor(s.ID, in)
	}
	s.outbox = append(s.outbox, m)
}

// linkStage sends, on every idle output link, the first ready output buffer
// in the link arbiter's order that has downstream credits (ioq only).
func (s *Switch) linkStage(now int64) {
	for o, out := range s.outputs {
		if !out.LinkFree(now) {
			continue
		}
		nvc := out.NumVCs()
		for _, k := range s.linkArbiters[o].Order() {
			b := out.Buffer(k/nvc, k%nvc)
			if !b.CanSendFlit(now) {
				continue
			}
			f := s.arena.Get(b.Head())
			if out.Credits(f.CoS, f.Channel) < f.Length {
				continue
			}
			h := b.Extract(now)
			s.transmit(now, out, h, f)
			s.linkArbiters[o].Update(k)
			break
		}
	}
}

// EachHead implements ContentionSource.
func (s *Switch) EachHead(fn func(in PortType, minPort int, f *Flit)) {
	for _, port := range s.inputs {
		for _, vcs := range port.buffers {
			for _, b := range vcs {
				h := b.Head()
				if h == NoFlit {
					continue
				}
				f := s.arena.Get(h)
				fn(port.Type, s.topo.MinimalPort(s.ID, f.Target(), f.DestNode), f)
			}
		}
	}
}

// LockedVCs implements ContentionSource.
func (s *Switch) LockedVCs(port int) int { return s.outputs[port].Locked() }

// PortQueue implements ContentionSource.
func (s *Switch) PortQueue(port int) int {
	out := s.outputs[port]
	q := 0
	for cos := 0; cos < out.CoSLevels(); cos++ {
		q += out.Occupancy(cos)
	}
	return q
}

// minimalQueue returns the downstream phits of port held by minimally-routed
// flits, summed over every (cos, VC).
func (s *Switch) minimalQueue(port int) int {
	out := s.outputs[port]
	q := 0
	for cos := 0; cos < out.CoSLevels(); cos++ {
		for vc := 0; vc < out.NumVCs(); vc++ {
			q += out.MinimalOccupancy(cos, vc)
		}
	}
	return q
}

// portView implements PortView for the flit currently being routed.
type portView struct {
	s   *Switch
	now int64
	in  int
	f   *Flit
}

// Queue implements PortView.
func (v *portView) Queue(port, cos int) int {
	return v.s.outputs[port].Occupancy(cos)
}

// Admissible implements PortView.
func (v *portView) Admissible(port int, hop MisrouteType, valNode int) bool {
	s := v.s
	pt := s.topo.PortType(port)
	d := RouteDecision{Port: port, Hop: hop, ValNode: valNode}
	if pt == PortNode {
		return s.legal(v.now, v.in, v.f, port, 0)
	}
	next, _ := s.topo.Neighbor(s.ID, port)
	after := applyHop(v.f, d, pt, next)
	vc, ok := s.vcm.Channel(&VCRequest{
		Switch: s.ID, OutPort: port, Type: pt, Next: next, Hop: hop,
		Before: v.f, After: &after, Out: s.outputs[port],
	})
	return ok && s.legal(v.now, v.in, v.f, port, vc)
}
