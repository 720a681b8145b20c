package traffic

import (
	"math/rand"

	"github.com/sirupsen/logrus"
)

// InjectionProcess decides, once per node and cycle, whether a new packet is generated.
type InjectionProcess interface {
	// Generate reports whether node creates a packet this cycle.
	Generate(node int, rng *rand.Rand) bool
}

// BernoulliProcess generates a packet with a fixed probability every cycle.
type BernoulliProcess struct {
	prob float64
}

func (p *BernoulliProcess) Generate(_ int, rng *rand.Rand) bool {
	return rng.Float64() < p.prob
}

// BurstyProcess is a two-state on/off source per node. While on, a node
// offers one phit per cycle (one packet every packetPhits cycles) and leaves
// the burst after each packet with probability 1/burstLength. While off it
// turns on with a probability chosen so that the long-run duty cycle equals
// the load.
type BurstyProcess struct {
	packetPhits int
	leave       float64 // per-packet probability of ending a burst
	wake        float64 // per-cycle probability of starting a burst
	on          []bool
	countdown   []int // cycles until the next packet of the current burst
}

func (p *BurstyProcess) Generate(node int, rng *rand.Rand) bool {
	if !p.on[node] {
		if rng.Float64() >= p.wake {
			return false
		}
		p.on[node] = true
		p.countdown[node] = 0
	}
	if p.countdown[node] > 0 {
		p.countdown[node]--
		return false
	}
	p.countdown[node] = p.packetPhits - 1
	if rng.Float64() < p.leave {
		p.on[node] = false
	}
	return true
}

// NewInjectionProcess creates the process named by name for a load given in
// phits per node per cycle. Panics on unknown names.
func NewInjectionProcess(name string, load float64, packetPhits, burstLength, nodes int) InjectionProcess {
	switch name {
	case "bernoulli":
		return &BernoulliProcess{prob: load / float64(packetPhits)}
	case "bursty":
		if burstLength < 1 {
			burstLength = 1
		}
		p := &BurstyProcess{
			packetPhits: packetPhits,
			leave:       1 / float64(burstLength),
			on:          make([]bool, nodes),
			countdown:   make([]int, nodes),
		}
		switch {
		case load <= 0:
			p.wake = 0
		case load >= 1:
			p.wake = 1
		default:
			onCycles := float64(burstLength * packetPhits)
			offCycles := onCycles * (1 - load) / load
			p.wake = 1 / (1 + offCycles)
		}
		if load > 0 && load < 0.05 {
			logrus.Warnf("bursty process at load %.3f: bursts will be rare", load)
		}
		return p
	default:
		panic("unknown injection process " + name)
	}
}
