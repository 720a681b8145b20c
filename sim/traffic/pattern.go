package traffic

import (
	"math/rand"

	"github.com/fabric-sim/dfsim/sim"
)

// DestinationPattern picks the destination node of a new request packet.
type DestinationPattern interface {
	// Destination returns the destination of a packet from src, or -1 when
	// src has no valid destination.
	Destination(src int, rng *rand.Rand) int
}

// UniformPattern sends to any other node with equal probability.
type UniformPattern struct {
	topo *sim.Topology
}

func (p *UniformPattern) Destination(src int, rng *rand.Rand) int {
	n := p.topo.NumNodes
	if n < 2 {
		return -1
	}
	d := rng.Intn(n - 1)
	if d >= src {
		d++
	}
	return d
}

// AdversarialPattern sends every node of group g to a random node of group
// g+offset, which loads the single global link between the two groups.
type AdversarialPattern struct {
	topo   *sim.Topology
	offset int
}

func (p *AdversarialPattern) Destination(src int, rng *rand.Rand) int {
	t := p.topo
	perGroup := t.A * t.P
	g := t.GroupOf(t.SwitchOfNode(src))
	dg := (g + p.offset) % t.G
	if dg == g {
		return (&UniformPattern{topo: t}).Destination(src, rng)
	}
	return dg*perGroup + rng.Intn(perGroup)
}

// AdversarialLocalPattern sends every node to a random node of the next
// switch in its own group, which loads one local link per switch pair.
type AdversarialLocalPattern struct {
	topo *sim.Topology
}

func (p *AdversarialLocalPattern) Destination(src int, rng *rand.Rand) int {
	t := p.topo
	sw := t.SwitchOfNode(src)
	if t.A < 2 {
		return (&UniformPattern{topo: t}).Destination(src, rng)
	}
	g := t.GroupOf(sw)
	dst := t.SwitchID(g, (t.LocalIndex(sw)+1)%t.A)
	return t.NodeID(dst, rng.Intn(t.P))
}

// PermutationPattern sends every node to a fixed partner drawn once at
// construction. No node sends to itself when there are at least two nodes.
type PermutationPattern struct {
	partner []int
}

func newPermutationPattern(topo *sim.Topology, rng *rand.Rand) *PermutationPattern {
	n := topo.NumNodes
	perm := rng.Perm(n)
	// Rotate fixed points away: swapping a fixed point with its successor
	// keeps the permutation a bijection.
	for i := 0; i < n && n > 1; i++ {
		if perm[i] == i {
			j := (i + 1) % n
			perm[i], perm[j] = perm[j], perm[i]
		}
	}
	return &PermutationPattern{partner: perm}
}

func (p *PermutationPattern) Destination(src int, _ *rand.Rand) int {
	d := p.partner[src]
	if d == src {
		return -1
	}
	return d
}

// NewDestinationPattern creates the pattern named by name. Panics on unknown names.
func NewDestinationPattern(name string, topo *sim.Topology, offset int, rng *rand.Rand) DestinationPattern {
	switch name {
	case "uniform":
		return &UniformPattern{topo: topo}
	case "adversarial":
		return &AdversarialPattern{topo: topo, offset: offset}
	case "adversarial-local":
		return &AdversarialLocalPattern{topo: topo}
	case "permutation":
		return newPermutationPattern(topo, rng)
	default:
		panic("unknown traffic pattern " + name)
	}
}
