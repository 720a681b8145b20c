package sim

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/fabric-sim/dfsim/sim/trace"
)

// Injector is the network side of the traffic boundary.
type Injector interface {
	// GetCredits returns the free injection-buffer phits of (node, cos, vc).
	GetCredits(node, cos, vc int) int
	// GetCreditsOccupancy returns the occupied injection-buffer phits of (node, cos, vc).
	GetCreditsOccupancy(node, cos, vc int) int
	// InjectFlit hands a flit to node's switch on injection VC vc. It is
	// accepted only when the VC has credits for the whole flit.
	InjectFlit(node, vc int, f Flit) bool
	// NewPacketID returns a fresh packet id.
	NewPacketID() int64
}

// TrafficSource feeds the network and is told about deliveries.
type TrafficSource interface {
	// Inject offers this cycle's flits through inj.
	Inject(now int64, inj Injector)
	// ConsumeFlit notifies the arrival of f at its destination node.
	ConsumeFlit(f *Flit, inputPort, inputChannel int, now int64)
}

// Network owns the switches, the node endpoints and the global cycle.
//
// Step runs in phases: node deliveries and injection (serial), every
// Switch.Cycle (serial or parallel), then the outboxes are drained in switch
// order. Switches never touch each other during a cycle, so the parallel and
// serial runs are identical.
type Network struct {
	cfg      *Config
	topo     *Topology
	arena    *FlitArena
	switches []*Switch
	traffic  TrafficSource

	nodeCredits [][][]int // [node][cos][vc] injection-buffer credits
	nodeMaxCred int
	nodeInbox   *Inbox

	now      int64
	packetID int64
	workers  int

	metrics  *Metrics
	baseline []SwitchStats
	trace    *trace.SimulationTrace
}

// NewNetwork builds a network for a validated configuration.
func NewNetwork(cfg *Config, traffic TrafficSource) *Network {
	topo := NewTopology(cfg.Topology)
	rng := NewPartitionedRNG(NewSimulationKey(cfg.Simulation.Seed))
	n := &Network{
		cfg:       cfg,
		topo:      topo,
		arena:     NewFlitArena(),
		traffic:   traffic,
		nodeInbox: NewInbox(),
		workers:   cfg.Simulation.Workers,
		metrics:   NewMetrics(topo.NumNodes),
	}
	routing := NewRoutingAlgorithm(cfg, topo, rng.Key())
	n.switches = make([]*Switch, topo.NumSwitches)
	for id := range n.switches {
		n.switches[id] = NewSwitch(id, cfg, topo, n.arena, routing, rng.ForSubsystem(SubsystemSwitch(id)))
	}
	n.baseline = make([]SwitchStats, topo.NumSwitches)

	ch := cfg.Channels
	n.nodeMaxCred = phitCapacity(ch.InjectionBuffer, ch.FlitSize)
	n.nodeCredits = make([][][]int, topo.NumNodes)
	for node := range n.nodeCredits {
		n.nodeCredits[node] = grid(ch.CoSLevels, ch.InjectionVCs, n.nodeMaxCred)
	}
	level := trace.TraceLevel(cfg.Simulation.Trace)
	if level == "" {
		level = trace.TraceLevelNone
	}
	n.trace = trace.NewSimulationTrace(trace.TraceConfig{Level: level})
	if n.workers > runtime.NumCPU() {
		logrus.Warnf("workers=%d exceeds %d CPUs", n.workers, runtime.NumCPU())
	}
	return n
}

// Topology returns the topology.
func (n *Network) Topology() *Topology { return n.topo }

// Switch returns switch id.
func (n *Network) Switch(id int) *Switch { return n.switches[id] }

// Now returns the current cycle.
func (n *Network) Now() int64 { return n.now }

// Metrics returns the metrics collected so far.
func (n *Network) Metrics() *Metrics { return n.metrics }

// Trace returns the decision trace.
func (n *Network) Trace() *trace.SimulationTrace { return n.trace }

// FlitsInFlight returns the flits currently held anywhere in the network.
func (n *Network) FlitsInFlight() int { return n.arena.Live() }

// GetCredits implements Injector.
func (n *Network) GetCredits(node, cos, vc int) int {
	return n.nodeCredits[node][cos][vc]
}

// GetCreditsOccupancy implements Injector.
func (n *Network) GetCreditsOccupancy(node, cos, vc int) int {
	return n.nodeMaxCred - n.nodeCredits[node][cos][vc]
}

// NewPacketID implements Injector.
func (n *Network) NewPacketID() int64 {
	id := n.packetID
	n.packetID++
	return id
}

// InjectFlit implements Injector. Source and destination switch/group fields
// are derived from the node ids.
func (n *Network) InjectFlit(node, vc int, f Flit) bool {
	if f.Length < 1 || f.Length > n.nodeMaxCred {
		panic(fmt.Sprintf("node %d: flit length %d outside (0, %d]", node, f.Length, n.nodeMaxCred))
	}
	if node < 0 || node >= len(n.nodeCredits) {
		panic(fmt.Sprintf("injection from node %d outside [0, %d)", node, len(n.nodeCredits)))
	}
	checkIndex("injection", node, f.CoS, vc, len(n.nodeCredits[node]), len(n.nodeCredits[node][0]))
	if n.nodeCredits[node][f.CoS][vc] < f.Length {
		return false
	}
	t := n.topo
	f.SourceNode = node
	f.SourceSwitch = t.SwitchOfNode(node)
	f.SourceGroup = t.GroupOf(f.SourceSwitch)
	f.DestSwitch = t.SwitchOfNode(f.DestNode)
	f.DestGroup = t.GroupOf(f.DestSwitch)
	f.InjectionCycle = n.now
	f.MinimalHops = t.MinimalHops(f.SourceSwitch, f.DestSwitch).Total()
	f.Channel = vc
	h := n.arena.Alloc(f)
	n.nodeCredits[node][f.CoS][vc] -= f.Length

	n.switches[f.SourceSwitch].Post(Message{
		At:   n.now + n.cfg.Channels.InjectionLatency,
		Kind: MsgFlit,
		From: -1,
		To:   f.SourceSwitch,
		Node: node,
		Port: t.NodePort(node),
		CoS:  f.CoS,
		VC:   vc,
		Flit: h,
	})
	if n.measuring() {
		n.metrics.RecordInjection(&f)
	}
	if f.Head && n.trace.Config.Enabled() {
		n.trace.RecordInjection(trace.InjectionRecord{
			PacketID: f.PacketID, Clock: n.now, SourceNode: node, DestNode: f.DestNode, Response: f.Response,
		})
	}
	return true
}

func (n *Network) measuring() bool {
	return n.now >= n.cfg.Simulation.Warmup
}

// Step advances the whole network by one cycle.
func (n *Network) Step() error {
	n.deliverToNodes()
	n.traffic.Inject(n.now, n)

	if err := n.cycleSwitches(); err != nil {
		return err
	}
	for _, s := range n.switches {
		s.drainOutbox(n.route)
		if n.trace.Config.Enabled() {
			s.drainRecords(n.trace)
		}
	}

	n.now++
	if n.now == n.cfg.Simulation.Warmup {
		n.resetMeasurement()
	}
	return nil
}

func (n *Network) cycleSwitches() error {
	now := n.now
	if n.workers <= 1 {
		for _, s := range n.switches {
			s.Cycle(now)
		}
		return nil
	}
	var g errgroup.Group
	g.SetLimit(n.workers)
	for _, s := range n.switches {
		s := s
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("switch %d at cycle %d: %v", s.ID, now, r)
				}
			}()
			s.Cycle(now)
			return nil
		})
	}
	return g.Wait()
}

// route forwards an outbox message to its receiver.
func (n *Network) route(m Message) {
	if m.To >= 0 {
		n.switches[m.To].Post(m)
		return
	}
	n.nodeInbox.Post(m)
}

// deliverToNodes applies the node-side messages due now: injection credits
// come back, flits are consumed and their consumption credit is returned.
func (n *Network) deliverToNodes() {
	for {
		m, ok := n.nodeInbox.Due(n.now)
		if !ok {
			return
		}
		switch m.Kind {
		case MsgCredit:
			c := &n.nodeCredits[m.Node][m.CoS][m.VC]
			*c += m.Phits
			if *c > n.nodeMaxCred {
				panic(fmt.Sprintf("node %d (cos=%d, vc=%d): injection credits %d over max %d", m.Node, m.CoS, m.VC, *c, n.nodeMaxCred))
			}
		case MsgFlit:
			n.consume(m)
		default:
			panic(fmt.Sprintf("node %d: unexpected message kind %d", m.Node, m.Kind))
		}
	}
}

func (n *Network) consume(m Message) {
	f := n.arena.Get(m.Flit)
	if f.DestNode != m.Node {
		panic(fmt.Sprintf("packet %d flit %d delivered to node %d, destination %d", f.PacketID, f.Seq, m.Node, f.DestNode))
	}
	if n.measuring() {
		n.metrics.RecordConsumption(f, n.now)
	}
	n.traffic.ConsumeFlit(f, m.Port, m.VC, n.now)
	n.switches[m.From].Post(Message{
		At:      n.now + n.cfg.Channels.InjectionLatency,
		Kind:    MsgCredit,
		From:    -1,
		To:      m.From,
		Node:    m.Node,
		Port:    m.Port,
		CoS:     m.CoS,
		VC:      m.VC,
		Phits:   f.Length,
		Minimal: f.Misroute == MisrouteNone,
	})
	n.arena.Free(m.Flit)
}

// resetMeasurement starts the measured window: metrics restart from zero and
// switch counters are snapshotted.
func (n *Network) resetMeasurement() {
	n.metrics = NewMetrics(n.topo.NumNodes)
	for i, s := range n.switches {
		n.baseline[i] = s.Stats
	}
}

// Run steps the network for the configured number of cycles and finalizes the
// metrics. With workers > 1, an invariant violation inside a switch is
// returned as an error instead of crashing a worker goroutine.
func (n *Network) Run() (*Metrics, error) {
	cfg := n.cfg.Simulation
	logrus.Infof("dfsim: %d groups, %d switches, %d nodes, routing=%s vc=%s, %d cycles (warmup %d)",
		n.topo.G, n.topo.NumSwitches, n.topo.NumNodes, n.cfg.Routing.Algorithm, n.cfg.Routing.VCStrategy, cfg.Cycles, cfg.Warmup)
	for n.now < cfg.Cycles {
		if err := n.Step(); err != nil {
			return nil, err
		}
		if n.now%10000 == 0 {
			logrus.Debugf("[cycle %07d] %d flits in flight", n.now, n.arena.Live())
		}
	}
	return n.Finalize(), nil
}

// Finalize folds switch counters into the metrics.
func (n *Network) Finalize() *Metrics {
	m := n.metrics
	m.Cycles = n.now - n.cfg.Simulation.Warmup
	if m.Cycles < 0 {
		m.Cycles = 0
	}
	m.Hops = make(map[string]int64)
	m.LinkPhits = make(map[string]int64)
	m.Petitions, m.Grants = 0, 0
	for i, s := range n.switches {
		m.addSwitchStats(s.Stats, n.baseline[i])
	}
	logrus.Infof("dfsim: finished at cycle %d, %d packets consumed, %d flits in flight", n.now, m.ConsumedPackets, n.arena.Live())
	return m
}
