package sim

import "fmt"

// PortType classifies the ports of a dragonfly switch.
type PortType int

const (
	PortNode   PortType = iota // injection (input) / consumption (output) port of an attached node
	PortLocal                  // intra-group link
	PortGlobal                 // inter-group link
)

func (p PortType) String() string {
	return [...]string{"node", "local", "global"}[p]
}

// HopCount counts switch-to-switch hops by link type.
type HopCount struct {
	Local  int
	Global int
}

// Add returns the component-wise sum.
func (h HopCount) Add(o HopCount) HopCount {
	return HopCount{Local: h.Local + o.Local, Global: h.Global + o.Global}
}

// Total returns the number of hops of any type.
func (h HopCount) Total() int {
	return h.Local + h.Global
}

// Of returns the count for one link type. Node ports never count.
func (h HopCount) Of(t PortType) int {
	switch t {
	case PortLocal:
		return h.Local
	case PortGlobal:
		return h.Global
	}
	return 0
}

// Topology implements the dragonfly address arithmetic.
//
// Port layout of every switch:
//
//	[0, p)                 node ports
//	[p, p+a-1)             local ports, one per other switch of the group
//	[p+a-1, p+a-1+h)       global ports
//
// Global links follow the palm-tree arrangement: global port k of the switch with
// local index r in group G reaches group (G + r*h + k + 1) mod g.
type Topology struct {
	P, A, H, G  int
	Radix       int
	NumSwitches int
	NumNodes    int
}

// NewTopology derives the full topology from its configuration.
func NewTopology(cfg TopologyConfig) *Topology {
	t := &Topology{
		P: cfg.NodesPerSwitch,
		A: cfg.SwitchesPerGroup,
		H: cfg.GlobalLinksPerSwitch,
		G: cfg.NumGroups(),
	}
	t.Radix = t.P + t.A - 1 + t.H
	t.NumSwitches = t.A * t.G
	t.NumNodes = t.P * t.NumSwitches
	return t
}

// PortType returns the class of a port; out-of-range ports panic.
func (t *Topology) PortType(port int) PortType {
	switch {
	case port < 0 || port >= t.Radix:
		panic(fmt.Sprintf("port %d out of range [0,%d)", port, t.Radix))
	case port < t.P:
		return PortNode
	case port < t.P+t.A-1:
		return PortLocal
	default:
		return PortGlobal
	}
}

// FirstLocalPort is the index of local port 0.
func (t *Topology) FirstLocalPort() int { return t.P }

// FirstGlobalPort is the index of global port 0.
func (t *Topology) FirstGlobalPort() int { return t.P + t.A - 1 }

// GroupOf returns the group of a switch.
func (t *Topology) GroupOf(sw int) int { return sw / t.A }

// LocalIndex returns the position of a switch inside its group.
func (t *Topology) LocalIndex(sw int) int { return sw % t.A }

// SwitchID composes a switch id from group and local index.
func (t *Topology) SwitchID(group, local int) int { return group*t.A + local }

// SwitchOfNode returns the switch a node is attached to.
func (t *Topology) SwitchOfNode(node int) int { return node / t.P }

// NodePort returns the node port a node is attached to on its switch.
func (t *Topology) NodePort(node int) int { return node % t.P }

// NodeID composes a node id from switch and node port.
func (t *Topology) NodeID(sw, port int) int { return sw*t.P + port }

// LocalPortTo returns the local port of sw that reaches the switch with local index dst.
func (t *Topology) LocalPortTo(sw, dst int) int {
	s := t.LocalIndex(sw)
	if s == dst {
		panic(fmt.Sprintf("switch %d has no local port to itself", sw))
	}
	if dst < s {
		return t.P + dst
	}
	return t.P + dst - 1
}

// GlobalExit returns the local index of the switch in group g that owns the
// global link toward dstGroup, and the global port on that switch.
func (t *Topology) GlobalExit(g, dstGroup int) (local, port int) {
	offset := (dstGroup - g + t.G) % t.G
	if offset == 0 {
		panic(fmt.Sprintf("group %d has no global link to itself", g))
	}
	idx := offset - 1
	return idx / t.H, t.FirstGlobalPort() + idx%t.H
}

// Neighbor returns the switch and the input port reached through an output port.
// Node ports have no switch neighbor and panic.
func (t *Topology) Neighbor(sw, port int) (nsw, nport int) {
	switch t.PortType(port) {
	case PortLocal:
		k := port - t.P
		s := t.LocalIndex(sw)
		d := k
		if k >= s {
			d = k + 1
		}
		nsw = t.SwitchID(t.GroupOf(sw), d)
		return nsw, t.LocalPortTo(nsw, s)
	case PortGlobal:
		g := t.GroupOf(sw)
		offset := t.LocalIndex(sw)*t.H + (port - t.FirstGlobalPort()) + 1
		dg := (g + offset) % t.G
		rev := t.G - offset - 1
		nsw = t.SwitchID(dg, rev/t.H)
		return nsw, t.FirstGlobalPort() + rev%t.H
	default:
		panic(fmt.Sprintf("port %d of switch %d is a node port", port, sw))
	}
}

// GlobalTarget returns the group reached through a global port of sw.
func (t *Topology) GlobalTarget(sw, port int) int {
	nsw, _ := t.Neighbor(sw, port)
	return t.GroupOf(nsw)
}

// MinimalPort returns the output port of sw on the minimal path to dstSwitch.
// When sw is dstSwitch the node port of dstNode is returned.
func (t *Topology) MinimalPort(sw, dstSwitch, dstNode int) int {
	if sw == dstSwitch {
		return t.NodePort(dstNode)
	}
	g, dg := t.GroupOf(sw), t.GroupOf(dstSwitch)
	if g == dg {
		return t.LocalPortTo(sw, t.LocalIndex(dstSwitch))
	}
	exit, port := t.GlobalExit(g, dg)
	if exit == t.LocalIndex(sw) {
		return port
	}
	return t.LocalPortTo(sw, exit)
}

// MinimalHops returns the switch-to-switch hops of the minimal path.
func (t *Topology) MinimalHops(from, to int) HopCount {
	if from == to {
		return HopCount{}
	}
	g, dg := t.GroupOf(from), t.GroupOf(to)
	if g == dg {
		return HopCount{Local: 1}
	}
	h := HopCount{Global: 1}
	exit, _ := t.GlobalExit(g, dg)
	if exit != t.LocalIndex(from) {
		h.Local++
	}
	entry, _ := t.GlobalExit(dg, g)
	if entry != t.LocalIndex(to) {
		h.Local++
	}
	return h
}

// Latency returns the link latency of a port type.
func (t *Topology) Latency(ch *ChannelConfig, pt PortType) int64 {
	switch pt {
	case PortLocal:
		return ch.LocalLatency
	case PortGlobal:
		return ch.GlobalLatency
	}
	return ch.InjectionLatency
}
