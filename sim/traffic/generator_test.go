package traffic

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabric-sim/dfsim/sim"
)

type injected struct {
	node, vc int
	f        sim.Flit
}

// fakeInjector hands out credits per (node, cos, vc) and records accepted flits.
type fakeInjector struct {
	credits map[[3]int]int
	dflt    int
	flits   []injected
	nextID  int64
}

func (inj *fakeInjector) GetCredits(node, cos, vc int) int {
	if c, ok := inj.credits[[3]int{node, cos, vc}]; ok {
		return c
	}
	return inj.dflt
}

func (inj *fakeInjector) GetCreditsOccupancy(node, cos, vc int) int {
	return 0
}

func (inj *fakeInjector) NewPacketID() int64 {
	id := inj.nextID
	inj.nextID++
	return id
}

func (inj *fakeInjector) InjectFlit(node, vc int, f sim.Flit) bool {
	if inj.GetCredits(node, f.CoS, vc) < f.Length {
		return false
	}
	f.SourceNode = node
	inj.flits = append(inj.flits, injected{node: node, vc: vc, f: f})
	return true
}

// scriptedProcess generates one packet per listed (cycle, node).
type scriptedProcess struct {
	cycle int64
	at    map[int64][]int
}

func (p *scriptedProcess) Generate(node int, _ *rand.Rand) bool {
	for _, n := range p.at[p.cycle] {
		if n == node {
			return true
		}
	}
	return false
}

type alwaysProcess struct{}

func (alwaysProcess) Generate(int, *rand.Rand) bool { return true }

func newTestGenerator(t *testing.T, mutate func(*sim.Config)) (*Generator, *sim.Config) {
	t.Helper()
	cfg := sim.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Validate())
	return NewGenerator(&cfg, sim.NewTopology(cfg.Topology)), &cfg
}

// step runs one generator cycle against inj.
func step(g *Generator, p *scriptedProcess, inj *fakeInjector) {
	g.Inject(p.cycle, inj)
	p.cycle++
}

func TestGenerator_SegmentsPacketOneFlitPerCycle(t *testing.T) {
	// GIVEN node 0 generating one packet at cycle 0
	g, cfg := newTestGenerator(t, nil)
	proc := &scriptedProcess{at: map[int64][]int{0: {0}}}
	g.process = proc
	inj := &fakeInjector{dflt: 32}

	// WHEN the generator runs for a packet's worth of cycles
	for i := 0; i < cfg.Channels.PacketSize; i++ {
		step(g, proc, inj)
		require.Len(t, inj.flits, i+1, "one flit per node per cycle")
	}

	// THEN the flits form one packet, head to tail, on one VC
	for i, in := range inj.flits {
		assert.Equal(t, 0, in.node)
		assert.Equal(t, int64(0), in.f.PacketID)
		assert.Equal(t, i, in.f.Seq)
		assert.Equal(t, i == 0, in.f.Head)
		assert.Equal(t, i == cfg.Channels.PacketSize-1, in.f.Tail)
		assert.Equal(t, inj.flits[0].vc, in.vc)
		assert.Equal(t, inj.flits[0].f.DestNode, in.f.DestNode)
		assert.Equal(t, int64(0), in.f.GenerationCycle)
	}
	assert.Equal(t, 0, g.Queued(0))
	assert.Equal(t, int64(1), g.Stats.GeneratedPackets)
	assert.Equal(t, int64(cfg.Channels.PacketSize), g.Stats.InjectedFlits)
}

func TestGenerator_WaitsForCredits(t *testing.T) {
	g, _ := newTestGenerator(t, nil)
	proc := &scriptedProcess{at: map[int64][]int{0: {3}}}
	g.process = proc
	inj := &fakeInjector{}

	step(g, proc, inj)
	step(g, proc, inj)
	assert.Empty(t, inj.flits)
	assert.Equal(t, 1, g.Queued(3))

	inj.dflt = 1
	step(g, proc, inj)
	require.Len(t, inj.flits, 1)
	assert.True(t, inj.flits[0].f.Head)
}

func TestGenerator_BoundedSourceQueue(t *testing.T) {
	g, _ := newTestGenerator(t, nil)
	g.process = alwaysProcess{}
	inj := &fakeInjector{}
	for c := int64(0); c < 100; c++ {
		g.Inject(c, inj)
	}
	nodes := int64(g.topo.NumNodes)
	assert.Equal(t, maxQueuedPackets, g.Queued(0))
	assert.Equal(t, 100*nodes, g.Stats.GeneratedPackets)
	assert.Equal(t, (100-maxQueuedPackets)*nodes, g.Stats.SuppressedPackets)
}

func TestGenerator_PicksVCWithMostCredits(t *testing.T) {
	g, _ := newTestGenerator(t, func(c *sim.Config) { c.Channels.InjectionVCs = 3 })
	proc := &scriptedProcess{at: map[int64][]int{0: {0}}}
	g.process = proc
	inj := &fakeInjector{credits: map[[3]int]int{{0, 0, 0}: 2, {0, 0, 1}: 5, {0, 0, 2}: 5}}
	step(g, proc, inj)
	require.Len(t, inj.flits, 1)
	assert.Equal(t, 1, inj.flits[0].vc, "ties go to the lower VC")
}

func TestGenerator_ReactiveResponses(t *testing.T) {
	// GIVEN reactive traffic with two classes of service and split VCs
	g, cfg := newTestGenerator(t, func(c *sim.Config) {
		c.Routing.Reactive = true
		c.Channels.InjectionVCs = 2
		c.Channels.CoSLevels = 2
	})
	proc := &scriptedProcess{at: map[int64][]int{0: {0}}}
	g.process = proc
	inj := &fakeInjector{dflt: 32}
	for i := 0; i < cfg.Channels.PacketSize; i++ {
		step(g, proc, inj)
	}
	require.Len(t, inj.flits, cfg.Channels.PacketSize)
	req := inj.flits[len(inj.flits)-1].f
	assert.Equal(t, 0, inj.flits[0].vc, "requests use the lower VC window")
	assert.Equal(t, 0, req.CoS)
	assert.False(t, req.Response)

	// WHEN the request tail is consumed at its destination
	g.ConsumeFlit(&req, 0, 0, proc.cycle)
	dest := req.DestNode
	assert.Equal(t, 1, g.Queued(dest))
	assert.Equal(t, int64(1), g.Stats.ResponsePackets)

	// THEN the destination answers on the upper window with the highest class
	inj.flits = nil
	step(g, proc, inj)
	require.Len(t, inj.flits, 1)
	resp := inj.flits[0]
	assert.Equal(t, dest, resp.node)
	assert.Equal(t, 1, resp.vc)
	assert.Equal(t, 1, resp.f.CoS)
	assert.True(t, resp.f.Response)
	assert.Equal(t, 0, resp.f.DestNode)

	// AND consuming a response triggers nothing further
	g.ConsumeFlit(&resp.f, 0, 1, proc.cycle)
	assert.Equal(t, int64(1), g.Stats.ResponsePackets)
}
