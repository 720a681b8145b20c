package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomPackets scripts n packets between random distinct nodes, spread over
// the first spread cycles.
func randomPackets(seed int64, nodes, n, size, spread int) []scriptedPacket {
	rng := rand.New(rand.NewSource(seed))
	out := make([]scriptedPacket, 0, n)
	for i := 0; i < n; i++ {
		src := rng.Intn(nodes)
		dst := rng.Intn(nodes - 1)
		if dst >= src {
			dst++
		}
		out = append(out, scriptedPacket{at: rng.Intn(spread), src: src, dst: dst, size: size})
	}
	return out
}

// runScripted runs cfg with the given packets and returns the network and the
// traffic after the run.
func runScripted(t *testing.T, cfg *Config, packets []scriptedPacket) (*Network, *scriptedTraffic, *Metrics) {
	t.Helper()
	tr := &scriptedTraffic{packets: packets, flitSize: cfg.Channels.FlitSize}
	net := NewNetwork(cfg, tr)
	m, err := net.Run()
	require.NoError(t, err)
	return net, tr, m
}

// assertDrained checks that every packet arrived whole and in order, and
// that every credit went home.
func assertDrained(t *testing.T, net *Network, tr *scriptedTraffic) {
	t.Helper()
	want := 0
	for _, p := range tr.packets {
		want += p.size
		require.Equal(t, p.size, p.sent, "packet %d from node %d not fully injected", p.id, p.src)
	}
	require.Len(t, tr.delivered, want)
	assert.Equal(t, 0, net.FlitsInFlight())

	next := make(map[int64]int)
	for _, f := range tr.delivered {
		assert.Equal(t, next[f.PacketID], f.Seq, "packet %d out of order", f.PacketID)
		next[f.PacketID]++
	}

	topo := net.Topology()
	for node := 0; node < topo.NumNodes; node++ {
		assert.Equal(t, net.nodeMaxCred, net.GetCredits(node, 0, 0), "node %d injection credits", node)
	}
	for sw := 0; sw < topo.NumSwitches; sw++ {
		s := net.Switch(sw)
		for p := 0; p < topo.Radix; p++ {
			out := s.Output(p)
			for cos := 0; cos < out.CoSLevels(); cos++ {
				for vc := 0; vc < out.NumVCs(); vc++ {
					assert.Equal(t, out.MaxCredits(cos, vc), out.Credits(cos, vc), "switch %d port %d vc %d", sw, p, vc)
					assert.Equal(t, int64(-1), out.LockedBy(cos, vc), "switch %d port %d vc %d still locked", sw, p, vc)
				}
			}
		}
	}
}

func TestNetwork_SinglePacketTakesMinimalPath(t *testing.T) {
	// GIVEN a traced minimal network and one packet across the machine
	cfg := testConfig(t, func(c *Config) { c.Simulation.Trace = "decisions" })
	packets := []scriptedPacket{{at: 0, src: 0, dst: 71, size: 4}}

	// WHEN the network runs
	net, tr, m := runScripted(t, cfg, packets)

	// THEN the packet arrives over the minimal path, recorded hop by hop
	assertDrained(t, net, tr)
	topo := net.Topology()
	hops := topo.MinimalHops(0, topo.SwitchOfNode(71))
	tail := tr.delivered[len(tr.delivered)-1]
	assert.Equal(t, hops, tail.Hops)
	path := net.Trace().PacketPath(tail.PacketID)
	require.Len(t, path, hops.Total()+1)
	assert.Equal(t, "node", path[len(path)-1].PortType)
	for _, r := range path {
		assert.True(t, r.Minimal)
		assert.Equal(t, "none", r.Hop)
	}
	assert.Equal(t, int64(1), m.ConsumedPackets)
	assert.Equal(t, int64(hops.Total()+1), m.Hops["none"], "one committed head hop per switch")

	// the network latency covers at least the links traversed
	ch := cfg.Channels
	minLatency := int64(hops.Local)*ch.LocalLatency + int64(hops.Global)*ch.GlobalLatency + ch.InjectionLatency*2
	assert.GreaterOrEqual(t, m.NetworkLatencies[0], minLatency)
}

func TestNetwork_SameSwitchDelivery(t *testing.T) {
	cfg := testConfig(t, nil)
	net, tr, m := runScripted(t, cfg, []scriptedPacket{{at: 3, src: 0, dst: 1, size: 8}})
	assertDrained(t, net, tr)
	assert.Equal(t, HopCount{}, tr.delivered[0].Hops)
	assert.Equal(t, int64(8), m.ConsumedPhits)
}

func TestNetwork_EveryAlgorithmAndVCStrategyDrains(t *testing.T) {
	for _, alg := range []string{"minimal", "valiant", "ugal", "pb", "par"} {
		for _, vcs := range []string{"fixed", "opportunistic", "offset", "flexible", "table"} {
			if vcs == "offset" && alg == "par" {
				continue
			}
			t.Run(alg+"/"+vcs, func(t *testing.T) {
				cfg := testConfig(t, func(c *Config) {
					c.Routing.Algorithm = alg
					c.Routing.VCStrategy = vcs
					c.Routing.MisroutingTrigger = "ca"
					c.Congestion.LocalThreshold = 2
					c.Congestion.GlobalThreshold = 2
					c.Simulation.Cycles = 4000
				})
				net, tr, _ := runScripted(t, cfg, randomPackets(7, 72, 150, 4, 100))
				assertDrained(t, net, tr)
			})
		}
	}
}

func TestNetwork_IOQSwitchDrains(t *testing.T) {
	cfg := testConfig(t, func(c *Config) {
		c.Channels.SwitchType = "ioq"
		c.Channels.Speedup = 2
		c.Routing.Algorithm = "ugal"
	})
	net, tr, _ := runScripted(t, cfg, randomPackets(3, 72, 100, 8, 50))
	assertDrained(t, net, tr)
}

func TestNetwork_ParallelMatchesSerial(t *testing.T) {
	// GIVEN the same packets and seed
	packets := randomPackets(11, 72, 200, 4, 200)
	run := func(workers int) ([]*Flit, MetricsSummary) {
		cfg := testConfig(t, func(c *Config) {
			c.Routing.Algorithm = "par"
			c.Routing.MisroutingTrigger = "hybrid"
			c.Simulation.Workers = workers
		})
		_, tr, m := runScripted(t, cfg, append([]scriptedPacket(nil), packets...))
		return tr.delivered, m.Summary()
	}

	// WHEN stepped serially and with four workers
	serialFlits, serial := run(1)
	parallelFlits, parallel := run(4)

	// THEN the runs are identical flit for flit
	assert.Equal(t, serial, parallel)
	require.Len(t, parallelFlits, len(serialFlits))
	for i := range serialFlits {
		assert.Equal(t, *serialFlits[i], *parallelFlits[i], "flit %d", i)
	}
}

func TestNetwork_WarmupResetsMeasurement(t *testing.T) {
	cfg := testConfig(t, func(c *Config) { c.Simulation.Warmup = 500 })
	packets := []scriptedPacket{
		{at: 0, src: 0, dst: 3, size: 4},   // same group, done well before warmup ends
		{at: 600, src: 4, dst: 7, size: 4}, // measured
	}
	net, tr, m := runScripted(t, cfg, packets)
	assertDrained(t, net, tr)
	assert.Equal(t, cfg.Simulation.Cycles-500, m.Cycles)
	assert.Equal(t, int64(1), m.InjectedPackets)
	assert.Equal(t, int64(1), m.ConsumedPackets)
	assert.Equal(t, int64(2), m.Hops["none"], "only the measured packet's hops")
}

func TestNetwork_InjectFlitRespectsCredits(t *testing.T) {
	cfg := testConfig(t, nil)
	net := NewNetwork(cfg, &scriptedTraffic{flitSize: 1})
	f := NewFlit()
	f.Length = 1
	f.DestNode = 5
	for i := 0; i < net.nodeMaxCred; i++ {
		require.True(t, net.InjectFlit(0, 0, f))
	}
	assert.False(t, net.InjectFlit(0, 0, f), "injection buffer full")
	assert.Equal(t, net.nodeMaxCred, net.GetCreditsOccupancy(0, 0, 0))

	f.Length = net.nodeMaxCred + 1
	assert.Panics(t, func() { net.InjectFlit(1, 0, f) })
}

func TestNetwork_InjectFlitRejectsUnknownChannel(t *testing.T) {
	cfg := testConfig(t, nil)
	net := NewNetwork(cfg, &scriptedTraffic{flitSize: 1})
	f := NewFlit()
	f.Length = 1
	f.DestNode = 5

	assert.PanicsWithValue(t, "injection port 0: (cos=0, vc=1) out of range (1 cos, 1 VCs)",
		func() { net.InjectFlit(0, 1, f) })
	f.CoS = 1
	assert.PanicsWithValue(t, "injection port 0: (cos=1, vc=0) out of range (1 cos, 1 VCs)",
		func() { net.InjectFlit(0, 0, f) })
	f.CoS = 0
	assert.PanicsWithValue(t, "injection from node 72 outside [0, 72)",
		func() { net.InjectFlit(72, 0, f) })
	assert.Equal(t, 0, net.GetCreditsOccupancy(0, 0, 0), "a rejected flit takes no credit")
}

func TestNetwork_BodyFlitsFollowTheirHead(t *testing.T) {
	for _, alg := range []string{"valiant", "ugal", "par", "pb"} {
		t.Run(alg, func(t *testing.T) {
			// GIVEN misroute-prone thresholds and long packets
			cfg := testConfig(t, func(c *Config) {
				c.Routing.Algorithm = alg
				c.Routing.VCStrategy = "opportunistic"
				c.Routing.MisroutingTrigger = "ca"
				c.Routing.PBThreshold = 4
				c.Congestion.LocalThreshold = 1
				c.Congestion.GlobalThreshold = 1
				c.Simulation.Cycles = 4000
			})

			// WHEN the packets cross the network
			net, tr, m := runScripted(t, cfg, randomPackets(21, 72, 120, 8, 60))
			assertDrained(t, net, tr)

			// THEN every body flit carries its head's path state
			heads := make(map[int64]*Flit)
			for _, f := range tr.delivered {
				if f.Head {
					heads[f.PacketID] = f
					continue
				}
				h := heads[f.PacketID]
				require.NotNil(t, h, "packet %d body before head", f.PacketID)
				assert.Equal(t, h.Hops, f.Hops, "packet %d flit %d hops", f.PacketID, f.Seq)
				assert.Equal(t, h.DetourHops, f.DetourHops, "packet %d flit %d detours", f.PacketID, f.Seq)
				assert.Equal(t, h.LastLocalVC, f.LastLocalVC, "packet %d flit %d local vc", f.PacketID, f.Seq)
				assert.Equal(t, h.LastGlobalVC, f.LastGlobalVC, "packet %d flit %d global vc", f.PacketID, f.Seq)
				assert.Equal(t, h.ValNode, f.ValNode, "packet %d flit %d valiant switch", f.PacketID, f.Seq)
				assert.Equal(t, h.Channel, f.Channel, "packet %d flit %d channel", f.PacketID, f.Seq)
				assert.Equal(t, h.LocalMisrouteDone, f.LocalMisrouteDone, "packet %d flit %d", f.PacketID, f.Seq)
				assert.Equal(t, h.GlobalMisrouteDone, f.GlobalMisrouteDone, "packet %d flit %d", f.PacketID, f.Seq)
			}
			if alg == "valiant" {
				assert.Greater(t, m.MisrouteFraction(), 0.0, "valiant always detours")
			}
		})
	}
}

func TestNetwork_IOQPaysCrossbarLatencyOnce(t *testing.T) {
	// GIVEN one packet across the machine on an idle network
	packets := []scriptedPacket{{at: 0, src: 0, dst: 71, size: 4}}
	latency := func(switchType string) int64 {
		cfg := testConfig(t, func(c *Config) { c.Channels.SwitchType = switchType })
		net, tr, m := runScripted(t, cfg, append([]scriptedPacket(nil), packets...))
		assertDrained(t, net, tr)
		require.Len(t, m.NetworkLatencies, 1)
		return m.NetworkLatencies[0]
	}

	// WHEN it runs through input-queued and input-output-queued switches
	iq, ioq := latency("iq"), latency("ioq")

	// THEN an idle output buffer adds no cycle of its own
	assert.Equal(t, iq, ioq)
}

func TestNetwork_PacketIDsAreSequential(t *testing.T) {
	net := NewNetwork(testConfig(t, nil), &scriptedTraffic{flitSize: 1})
	assert.Equal(t, int64(0), net.NewPacketID())
	assert.Equal(t, int64(1), net.NewPacketID())
}
