package sim

import "fmt"

// noLock marks an output VC that no packet holds.
const noLock int64 = -1

// packetRoute is the output chosen by a packet's head flit, replayed by its body.
type packetRoute struct {
	valid    bool
	packetID int64
	decision RouteDecision
	outVC    int
}

// InputPort holds one buffer per (cos, VC) of an incoming link and remembers
// the route of the packet currently crossing each VC.
type InputPort struct {
	Index   int
	Type    PortType
	buffers [][]*Buffer // [cos][vc]
	routes  [][]packetRoute
}

// NewInputPort creates an input port with numVCs buffers per cos level.
func NewInputPort(index int, pt PortType, cosLevels, numVCs, capacityPhits, flitSize int) *InputPort {
	p := &InputPort{Index: index, Type: pt}
	p.buffers = make([][]*Buffer, cosLevels)
	p.routes = make([][]packetRoute, cosLevels)
	for c := range p.buffers {
		p.buffers[c] = make([]*Buffer, numVCs)
		p.routes[c] = make([]packetRoute, numVCs)
		for v := range p.buffers[c] {
			p.buffers[c][v] = NewBuffer(capacityPhits, flitSize)
		}
	}
	return p
}

// NumVCs returns the VCs per cos level.
func (p *InputPort) NumVCs() int { return len(p.buffers[0]) }

// CoSLevels returns the cos levels of the port.
func (p *InputPort) CoSLevels() int { return len(p.buffers) }

// Buffer returns the buffer of (cos, vc); out-of-range indices panic.
func (p *InputPort) Buffer(cos, vc int) *Buffer {
	checkIndex("input", p.Index, cos, vc, len(p.buffers), len(p.buffers[0]))
	return p.buffers[cos][vc]
}

// Occupancy returns the phits stored across every buffer of the port.
func (p *InputPort) Occupancy() int {
	occ := 0
	for _, vcs := range p.buffers {
		for _, b := range vcs {
			occ += b.Occupancy()
		}
	}
	return occ
}

// OutputPort tracks what the switch knows about the next hop: credits per
// (cos, VC), the share of them held by minimally-routed flits, HOL locks, and
// when the link finishes its current transmission. In ioq switches it also owns
// the output buffers.
type OutputPort struct {
	Index int
	Type  PortType

	credits    [][]int
	maxCredits [][]int
	minOcc     [][]int
	sent       [][]int64
	returned   [][]int64
	locks      [][]int64

	busyUntil int64
	buffers   [][]*Buffer // ioq only; nil otherwise
}

// NewOutputPort creates an output port whose downstream buffers hold
// downstreamPhits per (cos, VC).
func NewOutputPort(index int, pt PortType, cosLevels, numVCs, downstreamPhits int) *OutputPort {
	p := &OutputPort{Index: index, Type: pt}
	p.credits = grid(cosLevels, numVCs, downstreamPhits)
	p.maxCredits = grid(cosLevels, numVCs, downstreamPhits)
	p.minOcc = grid(cosLevels, numVCs, 0)
	p.locks = make([][]int64, cosLevels)
	p.sent = make([][]int64, cosLevels)
	p.returned = make([][]int64, cosLevels)
	for c := 0; c < cosLevels; c++ {
		p.locks[c] = make([]int64, numVCs)
		p.sent[c] = make([]int64, numVCs)
		p.returned[c] = make([]int64, numVCs)
		for v := range p.locks[c] {
			p.locks[c][v] = noLock
		}
	}
	return p
}

func grid(rows, cols, v int) [][]int {
	g := make([][]int, rows)
	for r := range g {
		g[r] = make([]int, cols)
		for c := range g[r] {
			g[r][c] = v
		}
	}
	return g
}

func checkIndex(kind string, port, cos, vc, cosLevels, numVCs int) {
	if cos < 0 || cos >= cosLevels || vc < 0 || vc >= numVCs {
		panic(fmt.Sprintf("%s port %d: (cos=%d, vc=%d) out of range (%d cos, %d VCs)", kind, port, cos, vc, cosLevels, numVCs))
	}
}

// withOutputBuffers gives the port one output buffer per (cos, VC).
func (p *OutputPort) withOutputBuffers(capacityPhits, flitSize int) *OutputPort {
	p.buffers = make([][]*Buffer, len(p.credits))
	for c := range p.buffers {
		p.buffers[c] = make([]*Buffer, len(p.credits[c]))
		for v := range p.buffers[c] {
			p.buffers[c][v] = NewBuffer(capacityPhits, flitSize)
		}
	}
	return p
}

// NumVCs returns the VCs per cos level.
func (p *OutputPort) NumVCs() int { return len(p.credits[0]) }

// CoSLevels returns the cos levels of the port.
func (p *OutputPort) CoSLevels() int { return len(p.credits) }

// Credits returns the phits known free downstream on (cos, vc).
func (p *OutputPort) Credits(cos, vc int) int {
	checkIndex("output", p.Index, cos, vc, len(p.credits), len(p.credits[0]))
	return p.credits[cos][vc]
}

// MaxCredits returns the downstream buffer capacity of (cos, vc).
func (p *OutputPort) MaxCredits(cos, vc int) int {
	checkIndex("output", p.Index, cos, vc, len(p.credits), len(p.credits[0]))
	return p.maxCredits[cos][vc]
}

// CreditsOccupancy returns the downstream phits not yet acknowledged on (cos, vc).
func (p *OutputPort) CreditsOccupancy(cos, vc int) int {
	return p.MaxCredits(cos, vc) - p.Credits(cos, vc)
}

// MinimalOccupancy returns the part of CreditsOccupancy held by minimally-routed flits.
func (p *OutputPort) MinimalOccupancy(cos, vc int) int {
	checkIndex("output", p.Index, cos, vc, len(p.credits), len(p.credits[0]))
	return p.minOcc[cos][vc]
}

// Occupancy returns the queue length of the port for one cos: unacknowledged
// downstream phits plus phits waiting in output buffers.
func (p *OutputPort) Occupancy(cos int) int {
	occ := 0
	for vc := range p.credits[cos] {
		occ += p.maxCredits[cos][vc] - p.credits[cos][vc]
		if p.buffers != nil {
			occ += p.buffers[cos][vc].Occupancy()
		}
	}
	return occ
}

// ConsumeCredits accounts for a flit sent downstream. Going negative panics.
func (p *OutputPort) ConsumeCredits(cos, vc, phits int, minimal bool) {
	checkIndex("output", p.Index, cos, vc, len(p.credits), len(p.credits[0]))
	if p.credits[cos][vc] < phits {
		panic(fmt.Sprintf("output port %d (cos=%d, vc=%d): sending %d phits with %d credits", p.Index, cos, vc, phits, p.credits[cos][vc]))
	}
	p.credits[cos][vc] -= phits
	p.sent[cos][vc] += int64(phits)
	if minimal {
		p.minOcc[cos][vc] += phits
	}
}

// ReturnCredits accounts for a credit message. Exceeding the maximum panics.
func (p *OutputPort) ReturnCredits(cos, vc, phits int, minimal bool) {
	checkIndex("output", p.Index, cos, vc, len(p.credits), len(p.credits[0]))
	if p.credits[cos][vc]+phits > p.maxCredits[cos][vc] {
		panic(fmt.Sprintf("output port %d (cos=%d, vc=%d): returning %d phits over max %d (have %d)",
			p.Index, cos, vc, phits, p.maxCredits[cos][vc], p.credits[cos][vc]))
	}
	p.credits[cos][vc] += phits
	p.returned[cos][vc] += int64(phits)
	if minimal {
		p.minOcc[cos][vc] -= phits
		if p.minOcc[cos][vc] < 0 {
			panic(fmt.Sprintf("output port %d (cos=%d, vc=%d): negative minimal occupancy", p.Index, cos, vc))
		}
	}
}

// CreditTotals returns the phits sent and returned on (cos, vc) since the start.
func (p *OutputPort) CreditTotals(cos, vc int) (sent, returned int64) {
	checkIndex("output", p.Index, cos, vc, len(p.credits), len(p.credits[0]))
	return p.sent[cos][vc], p.returned[cos][vc]
}

// LockedBy returns the packet holding (cos, vc), or -1.
func (p *OutputPort) LockedBy(cos, vc int) int64 {
	checkIndex("output", p.Index, cos, vc, len(p.locks), len(p.locks[0]))
	return p.locks[cos][vc]
}

// Available reports whether packet may use (cos, vc): the VC is unlocked or
// locked by that same packet.
func (p *OutputPort) Available(cos, vc int, packet int64) bool {
	l := p.LockedBy(cos, vc)
	return l == noLock || l == packet
}

// Lock reserves (cos, vc) for packet. Locking a VC held by another packet panics.
func (p *OutputPort) Lock(cos, vc int, packet int64) {
	if !p.Available(cos, vc, packet) {
		panic(fmt.Sprintf("output port %d (cos=%d, vc=%d): packet %d reuses a VC locked by packet %d",
			p.Index, cos, vc, packet, p.locks[cos][vc]))
	}
	p.locks[cos][vc] = packet
}

// Unlock releases (cos, vc). Only the locking packet may release it.
func (p *OutputPort) Unlock(cos, vc int, packet int64) {
	if l := p.LockedBy(cos, vc); l != packet {
		panic(fmt.Sprintf("output port %d (cos=%d, vc=%d): packet %d releases a lock held by %d", p.Index, cos, vc, packet, l))
	}
	p.locks[cos][vc] = noLock
}

// Locked returns the number of VCs of the port currently held by a packet.
func (p *OutputPort) Locked() int {
	n := 0
	for _, vcs := range p.locks {
		for _, l := range vcs {
			if l != noLock {
				n++
			}
		}
	}
	return n
}

// LinkFree reports whether the link has finished its previous transmission.
func (p *OutputPort) LinkFree(now int64) bool {
	return p.busyUntil <= now
}

// occupyLink marks the link busy for the transmission of length phits.
func (p *OutputPort) occupyLink(now int64, length int) {
	p.busyUntil = now + int64(length)
}

// Buffer returns the ioq output buffer of (cos, vc).
func (p *OutputPort) Buffer(cos, vc int) *Buffer {
	if p.buffers == nil {
		panic(fmt.Sprintf("output port %d has no output buffers", p.Index))
	}
	checkIndex("output", p.Index, cos, vc, len(p.buffers), len(p.buffers[0]))
	return p.buffers[cos][vc]
}
