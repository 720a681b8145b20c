package sim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// testConfig returns a validated copy of DefaultConfig after mutate.
func testConfig(t *testing.T, mutate func(*Config)) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Simulation.Cycles = 2000
	cfg.Simulation.Warmup = 0
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Validate())
	return &cfg
}

// scriptedTraffic injects a fixed list of packets and records deliveries.
type scriptedTraffic struct {
	packets   []scriptedPacket
	pending   []*scriptedPacket
	delivered []*Flit
	flitSize  int
}

type scriptedPacket struct {
	at, src, dst, size int
	id                 int64
	sent               int
}

func (s *scriptedTraffic) Inject(now int64, inj Injector) {
	for i := range s.packets {
		if int64(s.packets[i].at) == now {
			s.pending = append(s.pending, &s.packets[i])
		}
	}
	busy := make(map[int]bool)
	for _, p := range s.pending {
		if p.sent == p.size || busy[p.src] {
			continue
		}
		busy[p.src] = true
		f := NewFlit()
		if p.sent == 0 {
			p.id = inj.NewPacketID()
		}
		f.PacketID = p.id
		f.Seq = p.sent
		f.PacketSize = p.size
		f.Length = s.flitSize
		f.Head = p.sent == 0
		f.Tail = p.sent == p.size-1
		f.DestNode = p.dst
		f.GenerationCycle = int64(p.at)
		if inj.InjectFlit(p.src, 0, f) {
			p.sent++
		}
	}
}

func (s *scriptedTraffic) ConsumeFlit(f *Flit, _, _ int, _ int64) {
	c := *f
	s.delivered = append(s.delivered, &c)
}
