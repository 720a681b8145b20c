package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHead struct {
	in      PortType
	minPort int
	f       Flit
}

type fakeContentionSource struct {
	heads  []fakeHead
	locked map[int]int
	queue  map[int]int
}

func (s *fakeContentionSource) EachHead(fn func(in PortType, minPort int, f *Flit)) {
	for i := range s.heads {
		fn(s.heads[i].in, s.heads[i].minPort, &s.heads[i].f)
	}
}

func (s *fakeContentionSource) LockedVCs(port int) int { return s.locked[port] }
func (s *fakeContentionSource) PortQueue(port int) int { return s.queue[port] }

func headTo(in PortType, minPort, destGroup, length int) fakeHead {
	f := NewFlit()
	f.Head, f.DestGroup, f.Length = true, destGroup, length
	return fakeHead{in: in, minPort: minPort, f: f}
}

func TestContentionHandler_CountersFromHeadsAndLocks(t *testing.T) {
	cfg := testConfig(t, func(c *Config) { c.Routing.MisroutingTrigger = "ca" })
	topo := NewTopology(cfg.Topology)
	src := &fakeContentionSource{
		heads: []fakeHead{
			headTo(PortNode, 5, 4, 1),
			headTo(PortGlobal, 5, 4, 1),
			headTo(PortLocal, 5, 4, 1), // local inputs feed inst but not partial
			headTo(PortNode, 2, 0, 1),  // own group: no partial contention
		},
		locked: map[int]int{5: 2},
	}
	c := NewContentionHandler(cfg, topo, 0, src)

	c.Refresh()

	assert.Equal(t, 5, c.instCount(5), "three heads plus two locked VCs")
	assert.Equal(t, 1, c.instCount(2))
	assert.Equal(t, 2, c.partialTo(4))
	assert.Equal(t, 0, c.partialTo(0))
	assert.InDelta(t, 0.25*5, c.filtered(5), 1e-9)
	assert.False(t, c.IsThereContention(5), "threshold 6 not reached")

	src.heads = append(src.heads, headTo(PortNode, 5, 4, 1))
	c.Refresh()
	assert.True(t, c.IsThereContention(5))
}

func TestContentionHandler_TriggerSelectsCounter(t *testing.T) {
	for _, tc := range []struct {
		trigger string
		want    bool
	}{
		{"credits", true},   // queued phits 10 >= 6
		{"ca", false},       // inst 0
		{"filtered", false}, // acc 0
	} {
		t.Run(tc.trigger, func(t *testing.T) {
			cfg := testConfig(t, func(c *Config) { c.Routing.MisroutingTrigger = tc.trigger })
			c := NewContentionHandler(cfg, NewTopology(cfg.Topology), 0, &fakeContentionSource{queue: map[int]int{3: 10}})
			c.Refresh()
			assert.Equal(t, tc.want, c.IsThereContention(3))
		})
	}
}

// exchange delivers every gossip message to the handler it is addressed to.
func exchange(t *testing.T, handlers map[int]*ContentionHandler, msgs []Message) {
	t.Helper()
	for _, m := range msgs {
		require.Equal(t, MsgGossip, m.Kind)
		h, ok := handlers[m.To]
		require.True(t, ok, "gossip leaves the group: to %d", m.To)
		h.Receive(m.Gossip)
	}
}

func TestContentionHandler_GossipConverges(t *testing.T) {
	for _, perExchange := range []int{0, 1} {
		// GIVEN the four routers of group 0; router r sees r+1 packets for group 5
		cfg := testConfig(t, func(c *Config) {
			c.Routing.MisroutingTrigger = "ca"
			c.Congestion.LinksPerExchange = perExchange
		})
		topo := NewTopology(cfg.Topology)
		handlers := make(map[int]*ContentionHandler)
		for r := 0; r < topo.A; r++ {
			src := &fakeContentionSource{}
			for i := 0; i <= r; i++ {
				src.heads = append(src.heads, headTo(PortNode, topo.FirstGlobalPort(), 5, 1))
			}
			handlers[r] = NewContentionHandler(cfg, topo, r, src)
			handlers[r].Refresh()
		}

		// WHEN gossip runs for A-1 periods with no new traffic
		period := cfg.Congestion.GossipPeriod
		for round := int64(0); round < int64(topo.A-1); round++ {
			for r := 0; r < topo.A; r++ {
				assert.Empty(t, handlers[r].Gossip(round*period+1), "off-period cycles send nothing")
				exchange(t, handlers, handlers[r].Gossip(round*period))
			}
		}

		// THEN every router holds the same matrix and the column sum is known everywhere
		for r := 0; r < topo.A; r++ {
			for peer := 0; peer < topo.A; peer++ {
				assert.Equal(t, peer+1, handlers[r].row(peer)[5], "perExchange=%d router %d row %d", perExchange, r, peer)
			}
			assert.True(t, handlers[r].IsThereGlobalContention(5), "1+2+3+4 >= 8")
			assert.False(t, handlers[r].IsThereGlobalContention(6))
		}
	}
}

func TestContentionHandler_ReceiveIgnoresStaleRows(t *testing.T) {
	cfg := testConfig(t, nil)
	topo := NewTopology(cfg.Topology)
	c := NewContentionHandler(cfg, topo, 0, &fakeContentionSource{})
	counts := make([]int, topo.G)
	counts[2] = 7
	c.Receive(&ContentionVector{From: 1, Stamp: 100, Counts: counts})
	old := make([]int, topo.G)
	c.Receive(&ContentionVector{From: 1, Stamp: 50, Counts: old})
	assert.Equal(t, 7, c.row(1)[2])
}
