package sim

// ContentionSource is what a contention handler reads from its switch.
type ContentionSource interface {
	// EachHead calls fn for the head flit of every non-empty input buffer with
	// the type of its input port and its minimal output port.
	EachHead(fn func(in PortType, minPort int, f *Flit))
	// LockedVCs returns how many VCs of an output port are held by packets in flight.
	LockedVCs(port int) int
	// PortQueue returns the phits queued toward the next hop through port, all cos.
	PortQueue(port int) int
}

// ContentionHandler estimates load from the switch's own buffers and shares a
// per-destination-group summary with the other routers of the group.
//
// Counters:
//
//	inst[p]     phits of input-buffer heads whose minimal port is p, plus one
//	            flit per VC of p locked by a packet in flight
//	acc[p]      EWMA of inst: acc = (1-α)·inst + α·acc
//	partial[g]  head packets in injection/global buffers minimally routed to group g
//	matrix[r]   last partial vector received from group peer r (own row is live)
type ContentionHandler struct {
	topo     *Topology
	sw       int
	local    int
	flitSize int

	trigger         string
	localThreshold  int
	globalThreshold int
	alpha           float64
	period          int64
	perExchange     int

	inst    []int
	acc     []float64
	partial []int
	matrix  [][]int
	stamps  []int64
	cursor  int // next peer offset for round-robin exchanges

	src ContentionSource
}

// NewContentionHandler creates the handler of switch sw.
func NewContentionHandler(cfg *Config, topo *Topology, sw int, src ContentionSource) *ContentionHandler {
	c := &ContentionHandler{
		topo:            topo,
		sw:              sw,
		local:           topo.LocalIndex(sw),
		flitSize:        cfg.Channels.FlitSize,
		trigger:         cfg.Routing.MisroutingTrigger,
		localThreshold:  cfg.Congestion.LocalThreshold,
		globalThreshold: cfg.Congestion.GlobalThreshold,
		alpha:           cfg.Congestion.EWMAAlpha,
		period:          cfg.Congestion.GossipPeriod,
		perExchange:     cfg.Congestion.LinksPerExchange,
		inst:            make([]int, topo.Radix),
		acc:             make([]float64, topo.Radix),
		partial:         make([]int, topo.G),
		matrix:          make([][]int, topo.A),
		stamps:          make([]int64, topo.A),
		src:             src,
	}
	for r := range c.matrix {
		c.matrix[r] = make([]int, topo.G)
		c.stamps[r] = -1
	}
	return c
}

// Refresh recomputes the local counters from the switch state.
func (c *ContentionHandler) Refresh() {
	for p := range c.inst {
		c.inst[p] = c.src.LockedVCs(p) * c.flitSize
	}
	for g := range c.partial {
		c.partial[g] = 0
	}
	own := c.topo.GroupOf(c.sw)
	c.src.EachHead(func(in PortType, minPort int, f *Flit) {
		c.inst[minPort] += f.Length
		if f.Head && in != PortLocal && f.DestGroup != own {
			c.partial[f.DestGroup]++
		}
	})
	for p := range c.acc {
		c.acc[p] = (1-c.alpha)*float64(c.inst[p]) + c.alpha*c.acc[p]
	}
	copy(c.matrix[c.local], c.partial)
}

// instCount returns the instantaneous contention of an output port.
func (c *ContentionHandler) instCount(port int) int { return c.inst[port] }

// filtered returns the EWMA-filtered contention of an output port.
func (c *ContentionHandler) filtered(port int) float64 { return c.acc[port] }

// partialTo returns the local partial contention toward group g.
func (c *ContentionHandler) partialTo(g int) int { return c.partial[g] }

// row returns the partial contention vector known for group peer r.
func (c *ContentionHandler) row(r int) []int { return c.matrix[r] }

// IsThereContention reports whether an output port is contended under the
// configured trigger: queued phits for "credits", instantaneous counters for
// "ca" and "hybrid", filtered counters for "filtered".
func (c *ContentionHandler) IsThereContention(port int) bool {
	switch c.trigger {
	case "credits":
		return c.src.PortQueue(port) >= c.localThreshold
	case "filtered":
		return c.acc[port] >= float64(c.localThreshold)
	default:
		return c.inst[port] >= c.localThreshold
	}
}

// IsThereGlobalContention sums group g's column over the routers of this group.
func (c *ContentionHandler) IsThereGlobalContention(g int) bool {
	sum := 0
	for r := range c.matrix {
		sum += c.matrix[r][g]
	}
	return sum >= c.globalThreshold
}

// Gossip returns the messages to send at cycle now: on every gossip period,
// the partial vector goes to perExchange peers in round-robin order, or to
// every peer when perExchange is 0.
func (c *ContentionHandler) Gossip(now int64) []Message {
	peers := c.topo.A - 1
	if peers == 0 || now%c.period != 0 {
		return nil
	}
	n := c.perExchange
	if n == 0 || n > peers {
		n = peers
	}
	g := c.topo.GroupOf(c.sw)
	out := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		offset := 1 + (c.cursor+i)%peers
		peer := (c.local + offset) % c.topo.A
		vec := &ContentionVector{From: c.local, Stamp: now, Counts: append([]int(nil), c.partial...)}
		out = append(out, Message{
			Kind:   MsgGossip,
			From:   c.sw,
			To:     c.topo.SwitchID(g, peer),
			Port:   -1,
			Gossip: vec,
		})
	}
	c.cursor = (c.cursor + n) % peers
	return out
}

// Receive applies a gossip message; rows older than the stored one are ignored.
func (c *ContentionHandler) Receive(v *ContentionVector) {
	if v.From == c.local || v.Stamp <= c.stamps[v.From] {
		return
	}
	copy(c.matrix[v.From], v.Counts)
	c.stamps[v.From] = v.Stamp
}
