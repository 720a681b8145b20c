// Package traffic generates synthetic load for a dragonfly network: an
// injection process decides when a node creates a packet, a destination
// pattern decides where it goes, and the Generator segments packets into
// flits and hands them to the network one flit per node per cycle.
package traffic

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/fabric-sim/dfsim/sim"
)

// maxQueuedPackets bounds each node's request queue. Packets generated while
// the queue is full are counted as suppressed instead of growing memory
// without bound past saturation.
const maxQueuedPackets = 64

// pendingPacket is a packet waiting at its source node.
type pendingPacket struct {
	id        int64 // -1 until the head flit is injected
	dest      int
	response  bool
	generated int64
	next      int // sequence number of the next flit to inject
	vc        int // injection VC, fixed by the head flit
}

// GeneratorStats counts what the generator produced.
type GeneratorStats struct {
	GeneratedPackets  int64
	SuppressedPackets int64
	ResponsePackets   int64
	InjectedFlits     int64
}

// Generator implements sim.TrafficSource.
type Generator struct {
	topo       *sim.Topology
	rng        *rand.Rand
	process    InjectionProcess
	pattern    DestinationPattern
	packetSize int
	flitSize   int
	cosLevels  int
	vcs        int
	reactive   bool

	requests  [][]pendingPacket // [node] FIFO
	responses [][]pendingPacket // [node] FIFO, reactive only

	Stats GeneratorStats
}

// NewGenerator builds the generator described by cfg.Traffic. Its random
// stream is the traffic subsystem of the configured seed.
func NewGenerator(cfg *sim.Config, topo *sim.Topology) *Generator {
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Simulation.Seed)).ForSubsystem(sim.SubsystemTraffic)
	ch := cfg.Channels
	tc := cfg.Traffic
	g := &Generator{
		topo:       topo,
		rng:        rng,
		packetSize: ch.PacketSize,
		flitSize:   ch.FlitSize,
		cosLevels:  ch.CoSLevels,
		vcs:        ch.InjectionVCs,
		reactive:   cfg.Routing.Reactive,
		requests:   make([][]pendingPacket, topo.NumNodes),
		responses:  make([][]pendingPacket, topo.NumNodes),
	}
	g.process = NewInjectionProcess(tc.Process, tc.Load, ch.PacketSize*ch.FlitSize, tc.BurstLength, topo.NumNodes)
	g.pattern = NewDestinationPattern(tc.Pattern, topo, tc.AdversarialOffset, rng)
	if tc.Load == 0 {
		logrus.Warnf("traffic load is 0: no packets will be generated")
	}
	return g
}

// Queued returns the packets waiting at node, requests and responses.
func (g *Generator) Queued(node int) int {
	return len(g.requests[node]) + len(g.responses[node])
}

// Inject implements sim.TrafficSource: every node first draws whether it
// generates a packet, then offers at most one flit. Responses are served
// before requests.
func (g *Generator) Inject(now int64, inj sim.Injector) {
	for node := range g.requests {
		if g.process.Generate(node, g.rng) {
			g.generate(node, now)
		}
		if g.reactive && g.injectFrom(&g.responses[node], node, inj) {
			continue
		}
		g.injectFrom(&g.requests[node], node, inj)
	}
}

func (g *Generator) generate(node int, now int64) {
	dest := g.pattern.Destination(node, g.rng)
	if dest < 0 {
		return
	}
	g.Stats.GeneratedPackets++
	if len(g.requests[node]) >= maxQueuedPackets {
		g.Stats.SuppressedPackets++
		return
	}
	g.requests[node] = append(g.requests[node], pendingPacket{id: -1, dest: dest, generated: now})
}

// injectFrom offers the next flit of the first packet of q and reports
// whether the network took it.
func (g *Generator) injectFrom(q *[]pendingPacket, node int, inj sim.Injector) bool {
	if len(*q) == 0 {
		return false
	}
	pkt := &(*q)[0]
	cos := g.cos(pkt.response)
	if pkt.next == 0 {
		vc, ok := g.pickVC(inj, node, cos, pkt.response)
		if !ok {
			return false
		}
		pkt.vc = vc
	}
	f := sim.NewFlit()
	f.PacketID = pkt.id
	f.Seq = pkt.next
	f.PacketSize = g.packetSize
	f.Length = g.flitSize
	f.Head = pkt.next == 0
	f.Tail = pkt.next == g.packetSize-1
	f.CoS = cos
	f.Response = pkt.response
	f.DestNode = pkt.dest
	f.GenerationCycle = pkt.generated
	if f.Head {
		f.PacketID = inj.NewPacketID()
	}
	if !inj.InjectFlit(node, pkt.vc, f) {
		return false
	}
	pkt.id = f.PacketID
	pkt.next++
	g.Stats.InjectedFlits++
	if pkt.next == g.packetSize {
		*q = (*q)[1:]
	}
	return true
}

// cos maps requests to the lowest class and responses to the highest.
func (g *Generator) cos(response bool) int {
	if response {
		return g.cosLevels - 1
	}
	return 0
}

// pickVC returns the injection VC of the packet's window with the most free
// credits, lowest index first on ties. In reactive mode requests use the
// lower half of the VCs and responses the upper half.
func (g *Generator) pickVC(inj sim.Injector, node, cos int, response bool) (int, bool) {
	lo, hi := 0, g.vcs
	if g.reactive {
		half := g.vcs / 2
		if response {
			lo = half
		} else {
			hi = half
		}
	}
	best, bestCredits := -1, g.flitSize-1
	for vc := lo; vc < hi; vc++ {
		if c := inj.GetCredits(node, cos, vc); c > bestCredits {
			best, bestCredits = vc, c
		}
	}
	return best, best >= 0
}

// ConsumeFlit implements sim.TrafficSource. In reactive mode the tail of a
// request makes its destination queue a response to the source.
func (g *Generator) ConsumeFlit(f *sim.Flit, inputPort, inputChannel int, now int64) {
	if !g.reactive || f.Response || !f.Tail {
		return
	}
	g.Stats.ResponsePackets++
	g.responses[f.DestNode] = append(g.responses[f.DestNode], pendingPacket{
		id: -1, dest: f.SourceNode, response: true, generated: now,
	})
}
